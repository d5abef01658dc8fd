package classloader

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/corvusvm/corvus/pkg/oop"
)

func timeoutCh() <-chan time.Time { return time.After(2 * time.Second) }

func TestEnsureInitializedRunsClinit(t *testing.T) {
	data := buildClass(classSpec{
		className:       "Config",
		methodName:      "get",
		methodDesc:      "()V",
		code:            []byte{0xB1},
		staticFieldName: "ready",
		clinitCode:      []byte{0xB1},
	})

	var ran []string
	var mu sync.Mutex
	invoker := func(threadID int64, m *oop.Method, args []oop.Oop) (oop.Oop, error) {
		mu.Lock()
		ran = append(ran, m.Owner.Name+"."+m.Name)
		mu.Unlock()
		return oop.Null(), nil
	}
	l := NewBootstrapLoader(withObject(fakeReader{"Config": data}), NewDictionary(), invoker)

	k, err := l.Require(0, "Config")
	if err != nil {
		t.Fatalf("Require: %v", err)
	}
	if err := l.EnsureInitialized(0, k); err != nil {
		t.Fatalf("EnsureInitialized: %v", err)
	}
	if k.State() != oop.FullyInitialized {
		t.Errorf("state = %v, want FullyInitialized", k.State())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(ran) != 1 || ran[0] != "Config.<clinit>" {
		t.Errorf("ran = %v, want [Config.<clinit>]", ran)
	}
}

func TestEnsureInitializedIsIdempotent(t *testing.T) {
	data := buildClass(classSpec{
		className:  "Config",
		methodName: "get",
		methodDesc: "()V",
		code:       []byte{0xB1},
		clinitCode: []byte{0xB1},
	})

	count := 0
	invoker := func(threadID int64, m *oop.Method, args []oop.Oop) (oop.Oop, error) {
		count++
		return oop.Null(), nil
	}
	l := NewBootstrapLoader(withObject(fakeReader{"Config": data}), NewDictionary(), invoker)
	k, err := l.Require(0, "Config")
	if err != nil {
		t.Fatalf("Require: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := l.EnsureInitialized(0, k); err != nil {
			t.Fatalf("EnsureInitialized[%d]: %v", i, err)
		}
	}
	if count != 1 {
		t.Errorf("<clinit> ran %d times, want 1", count)
	}
}

func TestEnsureInitializedInitializesSuperFirst(t *testing.T) {
	base := buildClass(classSpec{className: "Base", methodName: "m", methodDesc: "()V", code: []byte{0xB1}, clinitCode: []byte{0xB1}})
	child := buildClass(classSpec{className: "Child", superName: "Base", methodName: "m2", methodDesc: "()V", code: []byte{0xB1}, clinitCode: []byte{0xB1}})

	var order []string
	var mu sync.Mutex
	invoker := func(threadID int64, m *oop.Method, args []oop.Oop) (oop.Oop, error) {
		mu.Lock()
		order = append(order, m.Owner.Name)
		mu.Unlock()
		return oop.Null(), nil
	}
	l := NewBootstrapLoader(withObject(fakeReader{"Base": base, "Child": child}), NewDictionary(), invoker)

	k, err := l.Require(0, "Child")
	if err != nil {
		t.Fatalf("Require: %v", err)
	}
	if err := l.EnsureInitialized(0, k); err != nil {
		t.Fatalf("EnsureInitialized: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "Base" || order[1] != "Child" {
		t.Errorf("init order = %v, want [Base Child]", order)
	}
}

func TestEnsureInitializedRecordsErrorOnClinitFailure(t *testing.T) {
	data := buildClass(classSpec{className: "Bad", methodName: "m", methodDesc: "()V", code: []byte{0xB1}, clinitCode: []byte{0xB1}})

	invoker := func(threadID int64, m *oop.Method, args []oop.Oop) (oop.Oop, error) {
		return oop.Null(), fmt.Errorf("boom")
	}
	l := NewBootstrapLoader(withObject(fakeReader{"Bad": data}), NewDictionary(), invoker)
	k, err := l.Require(0, "Bad")
	if err != nil {
		t.Fatalf("Require: %v", err)
	}

	if err := l.EnsureInitialized(0, k); err == nil {
		t.Fatal("expected error from failing <clinit>")
	}
	if k.State() != oop.InitializationError {
		t.Errorf("state = %v, want InitializationError", k.State())
	}

	// A second attempt must report the earlier failure rather than
	// re-running <clinit> or panicking on an illegal state transition.
	if err := l.EnsureInitialized(0, k); err == nil {
		t.Error("expected error re-querying a class that failed to initialize")
	}
}

func TestEnsureInitializedSeedsStaticFieldZeroValue(t *testing.T) {
	data := buildClass(classSpec{className: "Consts", methodName: "m", methodDesc: "()V", code: []byte{0xB1}, staticFieldName: "x"})
	l := NewBootstrapLoader(withObject(fakeReader{"Consts": data}), NewDictionary(), noopInvoker)

	k, err := l.Require(0, "Consts")
	if err != nil {
		t.Fatalf("Require: %v", err)
	}
	if err := l.EnsureInitialized(0, k); err != nil {
		t.Fatalf("EnsureInitialized: %v", err)
	}

	f := k.Instance.StaticFields["x\x00I"]
	if f == nil {
		t.Fatal("field x not found")
	}
	got := k.StaticValue(f.Offset)
	if got.Kind != oop.KindInt || got.I != 0 {
		t.Errorf("static field without ConstantValue = %v, want zero int", got)
	}
}

func TestEnsureInitializedReentrantFromOwnClinit(t *testing.T) {
	data := buildClass(classSpec{className: "Self", methodName: "m", methodDesc: "()V", code: []byte{0xB1}, clinitCode: []byte{0xB1}})

	var l *Loader
	var k *oop.Klass
	invoker := func(threadID int64, m *oop.Method, args []oop.Oop) (oop.Oop, error) {
		// Simulate a <clinit> that (indirectly) re-triggers
		// initialization of its own class, which JLS §5.5 requires to
		// pass straight through rather than deadlock.
		if err := l.EnsureInitialized(threadID, k); err != nil {
			return oop.Null(), err
		}
		return oop.Null(), nil
	}
	l = NewBootstrapLoader(withObject(fakeReader{"Self": data}), NewDictionary(), invoker)

	var err error
	k, err = l.Require(0, "Self")
	if err != nil {
		t.Fatalf("Require: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- l.EnsureInitialized(42, k) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("EnsureInitialized: %v", err)
		}
	case <-timeoutCh():
		t.Fatal("EnsureInitialized deadlocked on reentrant <clinit>")
	}
}
