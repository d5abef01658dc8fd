package runtime

import (
	"fmt"

	"github.com/corvusvm/corvus/pkg/classfile"
	"github.com/corvusvm/corvus/pkg/oop"
)

// throwSimple builds a Throwable (§4.7, C9) of className with message,
// records it as t's pending exception, and returns a *ThrownException
// the caller can propagate as a Go error without re-unwinding through
// language-level panics — the dispatch loop's post-opcode check is
// what actually drives handler search.
func (e *Engine) throwSimple(t *Thread, className, message string) error {
	exc, err := e.NewException(t, className, message)
	if err != nil {
		return err
	}
	t.SetException(exc)
	return &ThrownException{Exception: exc}
}

// ThrowSimple is the exported form of throwSimple, for pkg/natives
// bindings that need to raise a Java exception from Go.
func (e *Engine) ThrowSimple(t *Thread, className, message string) error {
	return e.throwSimple(t, className, message)
}

// DescribeException is the exported form of describeException, used by
// Throwable.printStackTrace and uncaught-exception reporting.
func DescribeException(exc oop.Oop) string { return describeException(exc) }

// NewException allocates and constructs a Throwable instance, invoking
// its (String) or ()-constructor per §4.7.
func (e *Engine) NewException(t *Thread, className, message string) (oop.Oop, error) {
	klass, err := e.Boot.Require(t.ID, className)
	if err != nil {
		return oop.Oop{}, fmt.Errorf("runtime: resolving exception class %s: %w", className, err)
	}
	if err := e.Boot.EnsureInitialized(t.ID, klass); err != nil {
		return oop.Oop{}, err
	}

	ref := oop.NewInstance(klass)
	excOop := oop.FromRef(ref)

	if message != "" {
		if ctor := klass.LookupMethod("<init>", "(Ljava/lang/String;)V"); ctor != nil {
			msgRef, err := e.newJavaString(t, message)
			if err != nil {
				return oop.Oop{}, err
			}
			if _, err := e.Invoke(t, ctor, []oop.Oop{excOop, oop.FromRef(msgRef)}, true); err != nil {
				return oop.Oop{}, err
			}
			return excOop, nil
		}
	}
	if ctor := klass.LookupMethod("<init>", "()V"); ctor != nil {
		if _, err := e.Invoke(t, ctor, []oop.Oop{excOop}, true); err != nil {
			return oop.Oop{}, err
		}
	}
	return excOop, nil
}

// DispatchUncaughtException routes exc through the Java-level
// Thread.dispatchUncaughtException method (which itself consults the
// thread's UncaughtExceptionHandler, falling back to the thread
// group's default stack-trace print) when t has a backing
// java.lang.Thread instance; otherwise it writes a description
// straight to e.Stderr, for host-internal threads that never had one.
func (e *Engine) DispatchUncaughtException(t *Thread, exc oop.Oop) {
	if t.JavaThread != nil {
		if inst, ok := t.JavaThread.Data.(*oop.InstanceData); ok {
			dispatch := inst.Klass.LookupMethod("dispatchUncaughtException", "(Ljava/lang/Throwable;)V")
			if dispatch != nil {
				if _, err := e.Invoke(t, dispatch, []oop.Oop{oop.FromRef(t.JavaThread), exc}, true); err == nil {
					return
				}
			}
		}
	}
	fmt.Fprintln(e.Stderr, "Exception in thread:", describeException(exc))
}

func describeException(exc oop.Oop) string {
	if exc.IsNull() || exc.Ref == nil {
		return "<null>"
	}
	inst, ok := exc.Ref.Data.(*oop.InstanceData)
	if !ok {
		return "<non-instance exception>"
	}
	name := inst.Klass.Name
	if f := inst.Klass.FieldID("detailMessage", "Ljava/lang/String;", false); f != nil {
		v := inst.FieldValues[f.Offset]
		if !v.IsNull() {
			return name + ": " + javaStringValue(v.Ref)
		}
	}
	return name
}

// findExceptionHandler implements §4.5's "Exception handling within a
// frame": the first exception-table entry whose [start_pc, end_pc)
// contains pc and whose catch_type is a superclass of excKlass (or 0,
// meaning catch-all / finally).
func findExceptionHandler(code *classfile.CodeAttribute, pc int, excKlass *oop.Klass, frameKlass *oop.Klass, e *Engine, t *Thread) (*classfile.ExceptionHandler, error) {
	pool := frameKlass.Instance.ClassFile.ConstantPool
	for i := range code.ExceptionHandlers {
		h := &code.ExceptionHandlers[i]
		if pc < int(h.StartPC) || pc >= int(h.EndPC) {
			continue
		}
		if h.CatchType == 0 {
			return h, nil
		}
		catchName, err := classfile.GetClassName(pool, h.CatchType)
		if err != nil {
			return nil, fmt.Errorf("runtime: resolving catch type at index %d: %w", h.CatchType, err)
		}
		catchKlass, err := e.Boot.Require(t.ID, catchName)
		if err != nil {
			return nil, fmt.Errorf("runtime: resolving catch type %s: %w", catchName, err)
		}
		if excKlass.IsSubclassOf(catchKlass) {
			return h, nil
		}
	}
	return nil, nil
}
