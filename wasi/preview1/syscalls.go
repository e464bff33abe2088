package preview1

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// Policy says how a syscall behaves when the sandbox cannot honor it.
type Policy uint8

const (
	// PolicyImplemented marks syscalls with real behavior.
	PolicyImplemented Policy = iota
	// PolicyTolerate returns an errno and lets the guest continue.
	PolicyTolerate
	// PolicyTrap aborts the run.
	PolicyTrap
)

func (p Policy) String() string {
	switch p {
	case PolicyImplemented:
		return "implemented"
	case PolicyTolerate:
		return "tolerate"
	case PolicyTrap:
		return "trap"
	}
	return "unknown"
}

type handler func(d *Dispatcher, ctx context.Context, mod api.Module, p []uint64) Errno

type param struct {
	name string
	typ  api.ValueType
}

func i32(name string) param { return param{name, api.ValueTypeI32} }
func i64(name string) param { return param{name, api.ValueTypeI64} }

type syscall struct {
	name     string
	params   []param
	noResult bool
	policy   Policy
	fn       handler
}

func (s syscall) paramTypes() []api.ValueType {
	out := make([]api.ValueType, len(s.params))
	for i, p := range s.params {
		out[i] = p.typ
	}
	return out
}

func (s syscall) paramNames() []string {
	out := make([]string, len(s.params))
	for i, p := range s.params {
		out[i] = p.name
	}
	return out
}

func (s syscall) resultTypes() []api.ValueType {
	if s.noResult {
		return nil
	}
	return []api.ValueType{api.ValueTypeI32}
}

func def(name string, fn handler, params ...param) syscall {
	return syscall{name: name, params: params, fn: fn}
}

func tolerate(name string, errno Errno, params ...param) syscall {
	return syscall{name: name, params: params, policy: PolicyTolerate, fn: unsupported(name, errno)}
}

var syscalls = []syscall{
	def("args_get", argsGet, i32("argv"), i32("argv_buf")),
	def("args_sizes_get", argsSizesGet, i32("result.argc"), i32("result.argv_len")),
	def("environ_get", environGet, i32("environ"), i32("environ_buf")),
	def("environ_sizes_get", environSizesGet, i32("result.environc"), i32("result.environv_len")),
	def("clock_res_get", clockResGet, i32("id"), i32("result.resolution")),
	def("clock_time_get", clockTimeGet, i32("id"), i64("precision"), i32("result.timestamp")),
	def("fd_advise", fdAdvise, i32("fd"), i64("offset"), i64("len"), i32("advice")),
	def("fd_allocate", fdAllocate, i32("fd"), i64("offset"), i64("len")),
	def("fd_close", fdClose, i32("fd")),
	def("fd_datasync", fdSync, i32("fd")),
	def("fd_fdstat_get", fdFdstatGet, i32("fd"), i32("result.stat")),
	def("fd_fdstat_set_flags", fdFdstatSetFlags, i32("fd"), i32("flags")),
	def("fd_fdstat_set_rights", fdFdstatSetRights, i32("fd"), i64("fs_rights_base"), i64("fs_rights_inheriting")),
	def("fd_filestat_get", fdFilestatGet, i32("fd"), i32("result.filestat")),
	def("fd_filestat_set_size", fdFilestatSetSize, i32("fd"), i64("size")),
	tolerate("fd_filestat_set_times", ErrnoNosys, i32("fd"), i64("atim"), i64("mtim"), i32("fst_flags")),
	def("fd_pread", fdPread, i32("fd"), i32("iovs"), i32("iovs_len"), i64("offset"), i32("result.nread")),
	def("fd_prestat_get", fdPrestatGet, i32("fd"), i32("result.prestat")),
	def("fd_prestat_dir_name", fdPrestatDirName, i32("fd"), i32("path"), i32("path_len")),
	def("fd_pwrite", fdPwrite, i32("fd"), i32("iovs"), i32("iovs_len"), i64("offset"), i32("result.nwritten")),
	def("fd_read", fdRead, i32("fd"), i32("iovs"), i32("iovs_len"), i32("result.nread")),
	def("fd_readdir", fdReaddir, i32("fd"), i32("buf"), i32("buf_len"), i64("cookie"), i32("result.bufused")),
	def("fd_renumber", fdRenumber, i32("fd"), i32("to")),
	def("fd_seek", fdSeek, i32("fd"), i64("offset"), i32("whence"), i32("result.newoffset")),
	def("fd_sync", fdSync, i32("fd")),
	def("fd_tell", fdTell, i32("fd"), i32("result.offset")),
	def("fd_write", fdWrite, i32("fd"), i32("iovs"), i32("iovs_len"), i32("result.nwritten")),
	def("path_create_directory", pathCreateDirectory, i32("fd"), i32("path"), i32("path_len")),
	def("path_filestat_get", pathFilestatGet, i32("fd"), i32("flags"), i32("path"), i32("path_len"), i32("result.filestat")),
	tolerate("path_filestat_set_times", ErrnoNosys, i32("fd"), i32("flags"), i32("path"), i32("path_len"), i64("atim"), i64("mtim"), i32("fst_flags")),
	tolerate("path_link", ErrnoNotsup, i32("old_fd"), i32("old_flags"), i32("old_path"), i32("old_path_len"), i32("new_fd"), i32("new_path"), i32("new_path_len")),
	def("path_open", pathOpen, i32("fd"), i32("dirflags"), i32("path"), i32("path_len"), i32("oflags"), i64("fs_rights_base"), i64("fs_rights_inheriting"), i32("fdflags"), i32("result.opened_fd")),
	def("path_readlink", pathReadlink, i32("fd"), i32("path"), i32("path_len"), i32("buf"), i32("buf_len"), i32("result.bufused")),
	def("path_remove_directory", pathRemoveDirectory, i32("fd"), i32("path"), i32("path_len")),
	def("path_rename", pathRename, i32("fd"), i32("old_path"), i32("old_path_len"), i32("new_fd"), i32("new_path"), i32("new_path_len")),
	tolerate("path_symlink", ErrnoNotsup, i32("old_path"), i32("old_path_len"), i32("fd"), i32("new_path"), i32("new_path_len")),
	def("path_unlink_file", pathUnlinkFile, i32("fd"), i32("path"), i32("path_len")),
	def("poll_oneoff", pollOneoff, i32("in"), i32("out"), i32("nsubscriptions"), i32("result.nevents")),
	{name: "proc_exit", params: []param{i32("rval")}, noResult: true, fn: procExit},
	{name: "proc_raise", params: []param{i32("sig")}, policy: PolicyTrap, fn: procRaise},
	def("sched_yield", schedYield),
	def("random_get", randomGet, i32("buf"), i32("buf_len")),
	tolerate("sock_accept", ErrnoNotsup, i32("fd"), i32("flags"), i32("result.fd")),
	tolerate("sock_recv", ErrnoNotsup, i32("fd"), i32("ri_data"), i32("ri_data_len"), i32("ri_flags"), i32("result.ro_datalen"), i32("result.ro_flags")),
	tolerate("sock_send", ErrnoNotsup, i32("fd"), i32("si_data"), i32("si_data_len"), i32("si_flags"), i32("result.so_datalen")),
	tolerate("sock_shutdown", ErrnoNotsup, i32("fd"), i32("how")),
}

// Syscalls lists every exported function name in export order.
func Syscalls() []string {
	out := make([]string, len(syscalls))
	for i, sc := range syscalls {
		out[i] = sc.name
	}
	return out
}

// PolicyOf reports the policy of the named syscall.
func PolicyOf(name string) (Policy, bool) {
	for _, sc := range syscalls {
		if sc.name == name {
			return sc.policy, true
		}
	}
	return 0, false
}

func unsupported(name string, errno Errno) handler {
	return func(d *Dispatcher, _ context.Context, _ api.Module, _ []uint64) Errno {
		d.logger.Debug("unsupported syscall", zap.String("syscall", name), zap.Stringer("errno", errno))
		return errno
	}
}
