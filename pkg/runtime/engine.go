package runtime

import (
	"io"
	"os"
	"sync"

	"github.com/corvusvm/corvus/pkg/classloader"
	"github.com/corvusvm/corvus/pkg/oop"
	"github.com/pkg/errors"
)

// NativeFunc is the signature every registered native method binding
// implements (§4.6 step 1, §6 "native method bridge"). It receives the
// engine (for further class loading / allocation), the calling
// thread, and the argument vector (receiver first, for instance
// methods).
type NativeFunc func(e *Engine, t *Thread, args []oop.Oop) (oop.Oop, error)

// Engine is the process-wide VM context (§9's "global mutable state…
// treat as an explicit VM context"): the class loader, the native
// method registry, and thread bookkeeping. Exactly one Engine exists
// per process.
type Engine struct {
	Boot *classloader.Loader
	Dict *classloader.Dictionary

	Stdout io.Writer
	Stderr io.Writer

	mu      sync.RWMutex
	natives map[string]NativeFunc
	threads map[int64]*Thread

	// primitiveMirrors caches the java.lang.Class mirrors for the
	// eight primitive types and void, seeded once (§4.4, §9).
	primitiveMirrors map[string]*oop.Reference
}

func NewEngine(boot *classloader.Loader, dict *classloader.Dictionary) *Engine {
	return &Engine{
		Boot:             boot,
		Dict:             dict,
		Stdout:           os.Stdout,
		Stderr:           os.Stderr,
		natives:          make(map[string]NativeFunc),
		threads:          make(map[int64]*Thread),
		primitiveMirrors: make(map[string]*oop.Reference),
	}
}

func nativeKey(class, name, descriptor string) string {
	return class + "." + name + ":" + descriptor
}

// RegisterNative binds a Go function to (class, name, descriptor),
// per §6's "native method bridge."
func (e *Engine) RegisterNative(class, name, descriptor string, fn NativeFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.natives[nativeKey(class, name, descriptor)] = fn
}

func (e *Engine) lookupNative(class, name, descriptor string) (NativeFunc, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn, ok := e.natives[nativeKey(class, name, descriptor)]
	return fn, ok
}

// NewThread allocates a Thread and registers it with the engine so
// MethodInvoker (which only carries a thread id across the
// classloader/runtime boundary) can find it again.
func (e *Engine) NewThread(javaThread *oop.Reference) *Thread {
	t := NewThread(javaThread)
	e.mu.Lock()
	e.threads[t.ID] = t
	e.mu.Unlock()
	return t
}

func (e *Engine) forgetThread(id int64) {
	e.mu.Lock()
	delete(e.threads, id)
	e.mu.Unlock()
}

func (e *Engine) threadByID(id int64) *Thread {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.threads[id]
}

// MethodInvoker adapts Engine.Invoke to classloader.MethodInvoker's
// thread-id-based signature, closing the dependency-injection loop
// established in pkg/classloader/loader.go.
func (e *Engine) MethodInvoker(threadID int64, method *oop.Method, args []oop.Oop) (oop.Oop, error) {
	t := e.threadByID(threadID)
	if t == nil {
		return oop.Oop{}, errors.Errorf("runtime: no registered thread for id %d", threadID)
	}
	return e.Invoke(t, method, args, true)
}

// ThreadByID exposes threadByID to pkg/natives bindings that need to
// recover a *Thread from a java.lang.Thread instance's eetop-style id
// (Thread.start0/join's native half).
func (e *Engine) ThreadByID(id int64) *Thread { return e.threadByID(id) }

// RetireThread marks t dead and drops it from the engine's thread
// table, for pkg/natives' Thread.start0 goroutine to call once the
// spawned run() method returns (or panics out via a thrown exception),
// so isAlive() and a caller's join loop observe completion.
func (e *Engine) RetireThread(t *Thread) {
	t.markDead()
	e.forgetThread(t.ID)
}

// PrimitiveMirror returns the cached java.lang.Class instance for a
// primitive type or void ("int", "boolean", ..., "void"), creating and
// caching one on first use. Primitive mirrors have no backing Klass
// (Target stays nil in MirrorData), matching §4.4's "eight primitive
// types and void are also represented by Class objects."
func (e *Engine) PrimitiveMirror(name string) *oop.Reference {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ref, ok := e.primitiveMirrors[name]; ok {
		return ref
	}
	ref := oop.NewReference(&oop.MirrorData{IsPrimitive: true, Name: name})
	e.primitiveMirrors[name] = ref
	return ref
}
