package natives

import (
	"fmt"
	"os"

	"github.com/corvusvm/corvus/pkg/oop"
	"github.com/corvusvm/corvus/pkg/runtime"
)

// registerThread binds java.lang.Thread's native surface: the
// currentThread accessor, priority/liveness bookkeeping, and start0 —
// the one native that actually spawns a goroutine, modeling "one
// goroutine per Java thread." start0/isAlive resolve a Java Thread
// object back to its runtime.Thread via an eetop-keyed lookup into the
// engine's thread table.
func registerThread(e *runtime.Engine) {
	registerNoArgVoid(e, "java/lang/Thread", "registerNatives", "()V")

	e.RegisterNative("java/lang/Thread", "currentThread", "()Ljava/lang/Thread;", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		if t.JavaThread == nil {
			return oop.Null(), nil
		}
		return oop.FromRef(t.JavaThread), nil
	})

	e.RegisterNative("java/lang/Thread", "setPriority0", "(I)V", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		return oop.Oop{}, nil
	})

	e.RegisterNative("java/lang/Thread", "isAlive", "()Z", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		eetop, ok := eetopOf(args[0])
		if !ok {
			return oop.Int(0), nil
		}
		target := e.ThreadByID(eetop)
		if target == nil || !target.IsAlive() {
			return oop.Int(0), nil
		}
		return oop.Int(1), nil
	})

	e.RegisterNative("java/lang/Thread", "isInterrupted", "(Z)Z", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		return oop.Int(0), nil
	})

	e.RegisterNative("java/lang/Thread", "start0", "()V", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		return oop.Oop{}, startThread(e, t, args[0])
	})
}

func eetopOf(threadObj oop.Oop) (int64, bool) {
	if threadObj.IsNull() {
		return 0, false
	}
	inst, ok := threadObj.Ref.Data.(*oop.InstanceData)
	if !ok {
		return 0, false
	}
	f := inst.Klass.FieldID("eetop", "J", false)
	if f == nil {
		return 0, false
	}
	return inst.FieldValues[f.Offset].L, true
}

// startThread spawns the goroutine backing a Thread.start() call,
// invoking the receiver's run()V (Runnable.run via the Thread
// subclass's override, resolved the same way invokevirtual would) and
// recording the eetop field so isAlive/join can find it again.
func startThread(e *runtime.Engine, caller *runtime.Thread, threadObj oop.Oop) error {
	inst, ok := threadObj.Ref.Data.(*oop.InstanceData)
	if !ok {
		return fmt.Errorf("natives: Thread.start0: receiver is not an instance")
	}
	runMethod := inst.Klass.LookupVirtualMethod("run", "()V")
	if runMethod == nil {
		return fmt.Errorf("natives: Thread.start0: no run()V method on %s", inst.Klass.Name)
	}

	newThread := e.NewThread(threadObj.Ref)
	if f := inst.Klass.FieldID("eetop", "J", false); f != nil {
		inst.FieldValues[f.Offset] = oop.Long(newThread.ID)
	}

	go func() {
		defer e.RetireThread(newThread)
		if _, err := e.Invoke(newThread, runMethod, []oop.Oop{threadObj}, false); err != nil {
			if te, ok := err.(*runtime.ThrownException); ok {
				e.DispatchUncaughtException(newThread, te.Exception)
			} else {
				fmt.Fprintln(os.Stderr, "Exception in thread:", err)
			}
		}
	}()
	return nil
}
