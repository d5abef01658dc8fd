package runtime

import (
	"fmt"

	"github.com/corvusvm/corvus/pkg/oop"
)

const maxFrameDepth = 2048

// Invoke is the C8 invocation runtime entry point. forceNoResolve is
// true for invokespecial/invokestatic/<init>/<clinit> (method binds at
// link time); false for invokevirtual/invokeinterface, where Invoke
// re-resolves against the receiver's concrete class before running.
func (e *Engine) Invoke(t *Thread, method *oop.Method, args []oop.Oop, forceNoResolve bool) (oop.Oop, error) {
	if !forceNoResolve && !method.IsStatic() && len(args) > 0 {
		receiver := args[0]
		if receiver.IsNull() {
			return oop.Oop{}, e.throwSimple(t, "java/lang/NullPointerException", "")
		}
		if resolved := receiverKlass(receiver).LookupVirtualMethod(method.Name, method.Descriptor); resolved != nil {
			method = resolved
		}
	}

	if method.IsAbstract() {
		return oop.Oop{}, fmt.Errorf("runtime: AbstractMethodError: %s.%s%s", method.Owner.Name, method.Name, method.Descriptor)
	}

	if method.IsNative() {
		return e.invokeNative(t, method, args)
	}

	if method.Code == nil {
		return oop.Oop{}, fmt.Errorf("runtime: method %s.%s%s has no Code attribute", method.Owner.Name, method.Name, method.Descriptor)
	}

	if method.IsStatic() {
		// JLS §12.4.1: invocation of a static method declared by T is
		// itself an initialization trigger, independent of any static
		// field access the method body may or may not perform.
		if err := e.Boot.EnsureInitialized(t.ID, method.Owner); err != nil {
			return oop.Oop{}, err
		}
	}

	if t.Depth() >= maxFrameDepth {
		return oop.Oop{}, e.throwSimple(t, "java/lang/StackOverflowError", "")
	}

	frame := NewFrame(method, method.Owner)
	slot := 0
	for _, a := range args {
		frame.SetLocal(slot, a)
		if a.IsCategory2() {
			slot += 2
		} else {
			slot++
		}
	}

	var monitor *oop.Reference
	if method.IsSynchronized() {
		if method.IsStatic() {
			m, err := e.classMirror(t, method.Owner)
			if err != nil {
				return oop.Oop{}, err
			}
			monitor = m
		} else {
			monitor = args[0].Ref
		}
		monitor.MonitorEnter(t.ID)
	}

	t.PushFrame(frame)
	err := e.run(t, frame)
	t.PopFrame()

	if monitor != nil {
		monitor.MonitorExit(t.ID)
	}

	if err != nil {
		return oop.Oop{}, err
	}
	if t.HasException() {
		return oop.Oop{}, &ThrownException{Exception: t.PendingException()}
	}
	return frame.Return, nil
}

func (e *Engine) invokeNative(t *Thread, method *oop.Method, args []oop.Oop) (oop.Oop, error) {
	fn, ok := e.lookupNative(method.Owner.Name, method.Name, method.Descriptor)
	if !ok {
		return oop.Oop{}, fmt.Errorf("runtime: UnsatisfiedLinkError: %s.%s%s", method.Owner.Name, method.Name, method.Descriptor)
	}
	return fn(e, t, args)
}

func receiverKlass(receiver oop.Oop) *oop.Klass {
	switch d := receiver.Ref.Data.(type) {
	case *oop.InstanceData:
		return d.Klass
	case *oop.ObjectArrayData:
		return d.Klass
	case *oop.TypeArrayData:
		return d.Klass
	case *oop.MirrorData:
		return d.Klass
	default:
		return nil
	}
}

// ThrownException wraps a Java exception Oop so it can travel through
// Go's error interface to a caller above the interpreter loop (e.g.
// the CLI's main, which reports it and exits non-zero).
type ThrownException struct {
	Exception oop.Oop
}

func (e *ThrownException) Error() string {
	return "uncaught exception: " + describeException(e.Exception)
}
