package natives

import (
	"github.com/corvusvm/corvus/pkg/oop"
	"github.com/corvusvm/corvus/pkg/runtime"
)

// registerThrowable binds fillInStackTrace/getStackTraceDepth/
// getStackTraceElement — the native half of Throwable's stack-trace
// support. fillInStackTrace snapshots the caller's frames (via
// runtime.Thread.CaptureStackTrace) into a real StackTraceElement[]
// and stores it in Throwable's own backtrace field, so
// getStackTraceElement/getStackTraceDepth can read it back without any
// extra bookkeeping on the natives side.
func registerThrowable(e *runtime.Engine) {
	e.RegisterNative("java/lang/Throwable", "fillInStackTrace", "(I)Ljava/lang/Throwable;", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		recv := args[0]
		elems, err := buildStackTraceElements(e, t)
		if err != nil {
			return oop.Oop{}, err
		}
		arrKlass, err := e.Boot.Require(t.ID, "[Ljava/lang/StackTraceElement;")
		if err != nil {
			return oop.Oop{}, err
		}
		if err := setBacktrace(recv, arrKlass, elems); err != nil {
			return oop.Oop{}, err
		}
		return recv, nil
	})

	e.RegisterNative("java/lang/Throwable", "getStackTraceDepth", "()I", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		backtrace, ok := backtraceOf(args[0])
		if !ok {
			return oop.Int(0), nil
		}
		return oop.Int(int32(len(backtrace.Elements))), nil
	})

	e.RegisterNative("java/lang/Throwable", "getStackTraceElement", "(I)Ljava/lang/StackTraceElement;", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		backtrace, ok := backtraceOf(args[0])
		idx := int(args[1].I)
		if !ok || idx < 0 || idx >= len(backtrace.Elements) {
			return oop.Oop{}, e.ThrowSimple(t, "java/lang/IndexOutOfBoundsException", "")
		}
		return backtrace.Elements[idx], nil
	})
}

// buildStackTraceElements constructs one java.lang.StackTraceElement
// per captured frame, innermost first. Every frame on the thread's
// stack is included; none is skipped.
func buildStackTraceElements(e *runtime.Engine, t *runtime.Thread) ([]oop.Oop, error) {
	klass, err := e.Boot.Require(t.ID, "java/lang/StackTraceElement")
	if err != nil {
		return nil, err
	}
	if err := e.Boot.EnsureInitialized(t.ID, klass); err != nil {
		return nil, err
	}
	ctor := klass.LookupMethod("<init>", "(Ljava/lang/String;Ljava/lang/String;Ljava/lang/String;I)V")
	if ctor == nil {
		return nil, nil
	}

	frames := t.CaptureStackTrace()
	out := make([]oop.Oop, 0, len(frames))
	for _, f := range frames {
		className, err := e.NewJavaString(t, f.ClassName)
		if err != nil {
			return nil, err
		}
		methodName, err := e.NewJavaString(t, f.MethodName)
		if err != nil {
			return nil, err
		}
		instRef := oop.NewInstance(klass)
		inst := oop.FromRef(instRef)
		args := []oop.Oop{inst, oop.FromRef(className), oop.FromRef(methodName), oop.Null(), oop.Int(int32(f.Line))}
		if _, err := e.Invoke(t, ctor, args, true); err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

func setBacktrace(recv oop.Oop, arrKlass *oop.Klass, elems []oop.Oop) error {
	inst, ok := recv.Ref.Data.(*oop.InstanceData)
	if !ok {
		return nil
	}
	f := inst.Klass.FieldID("backtrace", "Ljava/lang/Object;", false)
	if f == nil {
		return nil
	}
	inst.FieldValues[f.Offset] = oop.FromRef(oop.NewReference(&oop.ObjectArrayData{Klass: arrKlass, Elements: elems}))
	return nil
}

type backtraceArray struct {
	Elements []oop.Oop
}

func backtraceOf(recv oop.Oop) (*backtraceArray, bool) {
	if recv.IsNull() {
		return nil, false
	}
	inst, ok := recv.Ref.Data.(*oop.InstanceData)
	if !ok {
		return nil, false
	}
	f := inst.Klass.FieldID("backtrace", "Ljava/lang/Object;", false)
	if f == nil {
		return nil, false
	}
	v := inst.FieldValues[f.Offset]
	if v.IsNull() {
		return nil, false
	}
	arr, ok := v.Ref.Data.(*oop.ObjectArrayData)
	if !ok {
		return nil, false
	}
	return &backtraceArray{Elements: arr.Elements}, true
}
