package runtime

import (
	"sync"
	"sync/atomic"

	"github.com/corvusvm/corvus/pkg/classfile"
	"github.com/corvusvm/corvus/pkg/oop"
)

var nextThreadID int64

// Thread is the runtime state of one Java thread (§3.7): a frame
// stack, a pending-exception slot, a system-assigned id, an alive
// flag, and a back-reference to the Java-level Thread object. One
// goroutine runs each Thread's interpreter loop — the "parallel OS
// threads" model of §5, not a cooperative scheduler.
type Thread struct {
	ID int64

	frames []*Frame

	mu               sync.Mutex
	pendingException oop.Oop
	hasException     bool

	alive int32

	JavaThread *oop.Reference // the java.lang.Thread instance this backs; nil for a host-internal thread
}

// NewThread allocates a Thread with the next monotonic id, mirroring
// the real JVM's eetop assignment.
func NewThread(javaThread *oop.Reference) *Thread {
	return &Thread{
		ID:         atomic.AddInt64(&nextThreadID, 1),
		alive:      1,
		JavaThread: javaThread,
	}
}

func (t *Thread) PushFrame(f *Frame) { t.frames = append(t.frames, f) }

func (t *Thread) PopFrame() *Frame {
	n := len(t.frames)
	f := t.frames[n-1]
	t.frames = t.frames[:n-1]
	return f
}

func (t *Thread) CurrentFrame() *Frame {
	if len(t.frames) == 0 {
		return nil
	}
	return t.frames[len(t.frames)-1]
}

func (t *Thread) Depth() int { return len(t.frames) }

// SetException records exc as the thread's pending exception (§3.7,
// §4.7). The interpreter's dispatch loop checks HasException after
// every opcode.
func (t *Thread) SetException(exc oop.Oop) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pendingException = exc
	t.hasException = true
}

func (t *Thread) ClearException() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hasException = false
	t.pendingException = oop.Oop{}
}

func (t *Thread) HasException() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hasException
}

func (t *Thread) PendingException() oop.Oop {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pendingException
}

func (t *Thread) IsAlive() bool { return atomic.LoadInt32(&t.alive) != 0 }

func (t *Thread) markDead() { atomic.StoreInt32(&t.alive, 0) }

// StackTraceElement is one entry of a captured call stack, mirroring
// java.lang.StackTraceElement's (declaringClass, methodName, line)
// triple closely enough for Throwable.fillInStackTrace/
// getStackTraceElement to build the real Java objects from it.
type StackTraceElement struct {
	ClassName  string
	MethodName string
	Line       int
}

// CaptureStackTrace snapshots t's current frame stack, innermost
// first, for Throwable.fillInStackTrace (§4.7).
func (t *Thread) CaptureStackTrace() []StackTraceElement {
	trace := make([]StackTraceElement, 0, len(t.frames))
	for i := len(t.frames) - 1; i >= 0; i-- {
		f := t.frames[i]
		trace = append(trace, StackTraceElement{
			ClassName:  f.Method.Owner.Name,
			MethodName: f.Method.Name,
			Line:       lineForPC(f.Method.LineNumbers, f.pc),
		})
	}
	return trace
}

func lineForPC(table []classfile.LineNumberEntry, pc int) int {
	line := -1
	for _, e := range table {
		if int(e.StartPC) <= pc {
			line = int(e.LineNumber)
		} else {
			break
		}
	}
	return line
}
