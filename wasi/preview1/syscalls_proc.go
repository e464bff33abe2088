package preview1

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/wasi-harness/errors"
)

func argsGet(d *Dispatcher, _ context.Context, mod api.Module, p []uint64) Errno {
	return writeStrings(mod.Memory(), uint32(p[0]), uint32(p[1]), d.args)
}

func argsSizesGet(d *Dispatcher, _ context.Context, mod api.Module, p []uint64) Errno {
	return writeSizes(mod.Memory(), uint32(p[0]), uint32(p[1]), d.args)
}

func environGet(d *Dispatcher, _ context.Context, mod api.Module, p []uint64) Errno {
	return writeStrings(mod.Memory(), uint32(p[0]), uint32(p[1]), d.env)
}

func environSizesGet(d *Dispatcher, _ context.Context, mod api.Module, p []uint64) Errno {
	return writeSizes(mod.Memory(), uint32(p[0]), uint32(p[1]), d.env)
}

func writeSizes(mem api.Memory, countPtr, sizePtr uint32, values []string) Errno {
	count, size := stringsSize(values)
	if errno := writeU32(mem, countPtr, count); errno != ErrnoSuccess {
		return errno
	}
	return writeU32(mem, sizePtr, size)
}

func clockResGet(d *Dispatcher, _ context.Context, mod api.Module, p []uint64) Errno {
	if _, errno := d.readClock(uint32(p[0])); errno != ErrnoSuccess {
		return errno
	}
	return writeU64(mod.Memory(), uint32(p[1]), uint64(time.Microsecond))
}

func clockTimeGet(d *Dispatcher, _ context.Context, mod api.Module, p []uint64) Errno {
	now, errno := d.readClock(uint32(p[0]))
	if errno != ErrnoSuccess {
		return errno
	}
	d.advance(d.step)
	return writeU64(mod.Memory(), uint32(p[2]), now)
}

// pollOneoff answers every subscription at once. Clock subscriptions fire
// immediately and the virtual clock jumps forward by the longest wait.
func pollOneoff(d *Dispatcher, _ context.Context, mod api.Module, p []uint64) Errno {
	in, out, nsubs, neventsPtr := uint32(p[0]), uint32(p[1]), uint32(p[2]), uint32(p[3])
	if nsubs == 0 {
		return ErrnoInval
	}
	mem := mod.Memory()
	if uint64(nsubs)*sizeSubscription > uint64(mem.Size()) {
		return ErrnoFault
	}
	subs, errno := readBytes(mem, in, nsubs*sizeSubscription)
	if errno != ErrnoSuccess {
		return errno
	}
	if _, errno := readBytes(mem, out, nsubs*sizeEvent); errno != ErrnoSuccess {
		return errno
	}
	// Copy out before writing events; in and out may overlap.
	subs = append([]byte(nil), subs...)

	var wait time.Duration
	for i := range nsubs {
		sub := subs[i*sizeSubscription:]
		var ev [sizeEvent]byte
		le.PutUint64(ev[0:], le.Uint64(sub[0:]))
		ev[10] = sub[8]

		switch sub[8] {
		case eventtypeClock:
			id := le.Uint32(sub[16:])
			timeout := le.Uint64(sub[24:])
			flags := le.Uint16(sub[40:])
			now, errno := d.readClock(id)
			if errno != ErrnoSuccess {
				le.PutUint16(ev[8:], uint16(errno))
				break
			}
			delay := timeout
			if flags&subclockAbstime != 0 {
				delay = 0
				if timeout > now {
					delay = timeout - now
				}
			}
			wait = max(wait, time.Duration(delay))
		case eventtypeFdRead, eventtypeFdWrite:
			if _, ok := d.table.Get(le.Uint32(sub[16:])); !ok {
				le.PutUint16(ev[8:], uint16(ErrnoBadf))
			}
		default:
			return ErrnoInval
		}
		if errno := writeBytes(mem, out+i*sizeEvent, ev[:]); errno != ErrnoSuccess {
			return errno
		}
	}
	d.advance(wait)
	return writeU32(mem, neventsPtr, nsubs)
}

// procExit closes the guest with the exit code and unwinds through wazero.
func procExit(_ *Dispatcher, ctx context.Context, mod api.Module, p []uint64) Errno {
	code := uint32(p[0])
	_ = mod.CloseWithExitCode(ctx, code)
	panic(sys.NewExitError(code))
}

func procRaise(d *Dispatcher, _ context.Context, _ api.Module, p []uint64) Errno {
	err := errors.UnsupportedSyscall("proc_raise", fmt.Sprintf("signal %d cannot be delivered", uint32(p[0])))
	d.logger.Debug("trapping guest", zap.Error(err))
	panic(err)
}

func schedYield(*Dispatcher, context.Context, api.Module, []uint64) Errno {
	return ErrnoSuccess
}

func randomGet(d *Dispatcher, _ context.Context, mod api.Module, p []uint64) Errno {
	buf, errno := readBytes(mod.Memory(), uint32(p[0]), uint32(p[1]))
	if errno != ErrnoSuccess {
		return errno
	}
	if _, err := io.ReadFull(d.entropy, buf); err != nil {
		d.logger.Warn("entropy source failed", zap.Error(err))
		return ErrnoIO
	}
	return ErrnoSuccess
}
