package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:   PhaseFS,
				Kind:    KindEscape,
				Path:    []string{"sysroot", "..", "etc"},
				Syscall: "path_open",
				Detail:  "path leaves the preopen",
			},
			contains: []string{"[fs]", "escape", "in path_open", "sysroot/../etc", "path leaves the preopen"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseRun,
				Kind:  KindBusy,
			},
			contains: []string{"[run]", "busy"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseAssets,
				Kind:   KindFetch,
				Detail: "fetch miri.wasm",
				Cause:  errors.New("connection refused"),
			},
			contains: []string{"[assets]", "fetch", "miri.wasm", "caused by", "connection refused"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseLoad,
		Kind:  KindInvalidData,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is did not find cause through chain")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{Phase: PhaseRun, Kind: KindBusy, Detail: "run in progress"}

	if !errors.Is(err, &Error{Phase: PhaseRun, Kind: KindBusy}) {
		t.Error("expected match on phase and kind")
	}
	if errors.Is(err, &Error{Phase: PhaseRun, Kind: KindClosed}) {
		t.Error("unexpected match on different kind")
	}
	if errors.Is(err, &Error{Phase: PhaseLoad, Kind: KindBusy}) {
		t.Error("unexpected match on different phase")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("bad magic")
	err := New(PhaseLoad, KindInvalidData).
		Path("bin", "miri.wasm").
		Syscall("").
		Value(42).
		Cause(cause).
		Detail("compile %s", "guest").
		Build()

	if err.Phase != PhaseLoad || err.Kind != KindInvalidData {
		t.Errorf("unexpected phase/kind: %s/%s", err.Phase, err.Kind)
	}
	if len(err.Path) != 2 || err.Path[1] != "miri.wasm" {
		t.Errorf("unexpected path: %v", err.Path)
	}
	if err.Value != 42 {
		t.Errorf("unexpected value: %v", err.Value)
	}
	if err.Detail != "compile guest" {
		t.Errorf("unexpected detail: %q", err.Detail)
	}
	if !errors.Is(err, cause) {
		t.Error("cause not reachable")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name  string
		err   *Error
		phase Phase
		kind  Kind
	}{
		{"unsupported syscall", UnsupportedSyscall("proc_raise", "signal 6"), PhaseDispatch, KindUnsupported},
		{"invalid data", InvalidData(PhaseAssets, []string{"manifest"}, "empty"), PhaseAssets, KindInvalidData},
		{"not initialized", NotInitialized(PhaseRun, "guest"), PhaseRun, KindNotInitialized},
		{"not found", NotFound(PhaseAssets, "asset", "libstd.rlib"), PhaseAssets, KindNotFound},
		{"invalid input", InvalidInput(PhaseConfig, "bad level"), PhaseConfig, KindInvalidInput},
		{"missing export", MissingExport("_start"), PhaseLoad, KindMissingExport},
		{"instantiation", Instantiation(errors.New("x")), PhaseRun, KindInstantiation},
		{"load", Load("compile", errors.New("x")), PhaseLoad, KindInvalidData},
		{"fetch", Fetch("miri.wasm", errors.New("x")), PhaseAssets, KindFetch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Phase != tt.phase {
				t.Errorf("phase = %s, want %s", tt.err.Phase, tt.phase)
			}
			if tt.err.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", tt.err.Kind, tt.kind)
			}
		})
	}

	if msg := UnsupportedSyscall("proc_raise", "signal 6").Error(); !strings.Contains(msg, "proc_raise") {
		t.Errorf("syscall name missing from %q", msg)
	}
}

func TestMissingImportsError(t *testing.T) {
	t.Run("grouped by module", func(t *testing.T) {
		err := NewMissingImportsError([]string{
			"wasi_snapshot_preview1#fd_write",
			"env#abort",
			"wasi_snapshot_preview1#fd_read",
		})
		msg := err.Error()

		if !strings.Contains(msg, "missing 3 host function(s)") {
			t.Errorf("missing count in %q", msg)
		}
		if strings.Count(msg, "wasi_snapshot_preview1:") != 1 {
			t.Errorf("module should be listed once: %q", msg)
		}
		if !strings.Contains(msg, "- abort") {
			t.Errorf("missing function in %q", msg)
		}
		if strings.Index(msg, "wasi_snapshot_preview1:") > strings.Index(msg, "env:") {
			t.Errorf("modules should keep first-seen order: %q", msg)
		}
	})

	t.Run("empty", func(t *testing.T) {
		err := NewMissingImportsError(nil)
		if !strings.Contains(err.Error(), "no imports specified") {
			t.Errorf("unexpected message: %q", err.Error())
		}
	})

	t.Run("is", func(t *testing.T) {
		var err error = NewMissingImportsError([]string{"env#memory"})
		if !errors.Is(err, &MissingImportsError{}) {
			t.Error("expected errors.Is match")
		}
		var mie *MissingImportsError
		if !errors.As(err, &mie) || mie.Imports[0].Function != "memory" {
			t.Error("expected errors.As to expose imports")
		}
	})
}
