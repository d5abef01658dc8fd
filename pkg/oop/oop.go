package oop

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Kind discriminates the Oop tagged union (§3.3): four unboxed
// primitive payloads, Null, and Reference (itself a four-way sum
// dispatched through ReferenceData).
type Kind int

const (
	KindInt Kind = iota
	KindLong
	KindFloat
	KindDouble
	KindNull
	KindReference
)

// Oop is the value that flows through the operand stack, local
// variable array, and heap. It is deliberately a small value type
// (primitives inline, references as a pointer) rather than an
// interface, since it is pushed/popped on every instruction.
type Oop struct {
	Kind Kind
	I    int32
	L    int64
	F    float32
	D    float64
	Ref  *Reference
}

func Int(v int32) Oop    { return Oop{Kind: KindInt, I: v} }
func Long(v int64) Oop   { return Oop{Kind: KindLong, L: v} }
func Float(v float32) Oop  { return Oop{Kind: KindFloat, F: v} }
func Double(v float64) Oop { return Oop{Kind: KindDouble, D: v} }
func Null() Oop          { return Oop{Kind: KindNull} }

func FromRef(r *Reference) Oop { return Oop{Kind: KindReference, Ref: r} }

// IsNull reports whether this Oop is the null reference. A reference
// Oop can never itself be nil-valued; KindNull is the only spelling of
// "no object."
func (o Oop) IsNull() bool { return o.Kind == KindNull }

// IsCategory2 reports whether this value occupies two stack/local
// slots (JVMS §2.6.1): true for long and double, false otherwise.
func (o Oop) IsCategory2() bool { return o.Kind == KindLong || o.Kind == KindDouble }

func (o Oop) String() string {
	switch o.Kind {
	case KindInt:
		return fmt.Sprintf("int(%d)", o.I)
	case KindLong:
		return fmt.Sprintf("long(%d)", o.L)
	case KindFloat:
		return fmt.Sprintf("float(%g)", o.F)
	case KindDouble:
		return fmt.Sprintf("double(%g)", o.D)
	case KindNull:
		return "null"
	case KindReference:
		return fmt.Sprintf("ref(%s)", o.Ref.Data.describe())
	default:
		return "?"
	}
}

// RefKind discriminates the four Reference variants (§3.3).
type RefKind int

const (
	RefInstance RefKind = iota
	RefObjectArray
	RefTypeArray
	RefMirror
)

// ReferenceData is implemented by each concrete reference payload.
// Dispatch happens via a type switch on the concrete type, not a
// class hierarchy.
type ReferenceData interface {
	Kind() RefKind
	describe() string
}

var nextIdentity int32

// Reference is a heap cell: its variant payload plus the monitor,
// condition variable, and identity hash every Java object carries
// (§3.3). The monitor is reentrant — the owning goroutine may
// MonitorEnter repeatedly without deadlocking itself.
type Reference struct {
	Data ReferenceData

	mu         sync.Mutex
	cond       *sync.Cond
	owner      int64
	depth      int
	generation uint64
	timedOut   bool

	identityHash int32
	hashed       bool
	hashMu       sync.Mutex
}

// NewReference wraps a variant payload in a fresh heap cell with its
// own monitor and condition variable.
func NewReference(data ReferenceData) *Reference {
	r := &Reference{Data: data}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// IdentityHash returns this object's cached identity hash code,
// computing and caching it on first use (matches
// java.lang.Object.hashCode()'s default, identity-based behavior).
func (r *Reference) IdentityHash() int32 {
	r.hashMu.Lock()
	defer r.hashMu.Unlock()
	if !r.hashed {
		r.identityHash = atomic.AddInt32(&nextIdentity, 1)
		r.hashed = true
	}
	return r.identityHash
}

// MonitorEnter acquires the object's monitor on behalf of threadID,
// reentrant if threadID already holds it.
func (r *Reference) MonitorEnter(threadID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.depth > 0 && r.owner != threadID {
		r.cond.Wait()
	}
	r.owner = threadID
	r.depth++
}

// MonitorExit releases one level of the reentrant monitor held by
// threadID. Panics if threadID does not hold it — the caller
// (monitorexit / synchronized-method epilogue) is responsible for
// raising IllegalMonitorStateException before this is reached.
func (r *Reference) MonitorExit(threadID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.depth == 0 || r.owner != threadID {
		panic("MonitorExit: thread does not own the monitor")
	}
	r.depth--
	if r.depth == 0 {
		r.owner = 0
		r.cond.Broadcast()
	}
}

// HeldBy reports whether threadID currently holds this monitor at
// least once.
func (r *Reference) HeldBy(threadID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.depth > 0 && r.owner == threadID
}

// Wait implements Object.wait(): releases the monitor (remembering its
// full reentrancy depth), blocks until Notify/NotifyAll or timeoutMs
// elapses (0 means no timeout), then reacquires it at the same depth.
func (r *Reference) Wait(threadID int64, timeoutMs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.depth == 0 || r.owner != threadID {
		return fmt.Errorf("wait: thread does not own the monitor")
	}

	savedDepth := r.depth
	startGen := r.generation
	r.timedOut = false
	r.depth = 0
	r.owner = 0
	r.cond.Broadcast() // let other waiters for the monitor itself proceed

	if timeoutMs > 0 {
		timer := time.AfterFunc(time.Duration(timeoutMs)*time.Millisecond, func() {
			r.mu.Lock()
			r.timedOut = true
			r.cond.Broadcast()
			r.mu.Unlock()
		})
		defer timer.Stop()
	}

	for r.generation == startGen && !r.timedOut {
		r.cond.Wait()
	}

	for r.depth > 0 {
		r.cond.Wait()
	}
	r.owner = threadID
	r.depth = savedDepth
	return nil
}

// Notify wakes a single thread blocked in Wait on this monitor.
func (r *Reference) Notify() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	r.cond.Signal()
}

// NotifyAll wakes every thread blocked in Wait on this monitor.
func (r *Reference) NotifyAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	r.cond.Broadcast()
}

// InstanceData is the Instance reference variant: a Klass pointer and
// a flat, offset-indexed field-value vector.
type InstanceData struct {
	Klass       *Klass
	FieldValues []Oop
}

func (d *InstanceData) Kind() RefKind { return RefInstance }
func (d *InstanceData) describe() string {
	if d.Klass == nil {
		return "instance"
	}
	return "instance:" + d.Klass.Name
}

// ObjectArrayData is the ObjectArray reference variant: a Klass
// pointer and a vector of Oop elements (each Null, Reference, or in
// practice never a bare primitive).
type ObjectArrayData struct {
	Klass    *Klass
	Elements []Oop
}

func (d *ObjectArrayData) Kind() RefKind { return RefObjectArray }
func (d *ObjectArrayData) describe() string {
	return fmt.Sprintf("objectarray:%s[%d]", d.Klass.Name, len(d.Elements))
}

// TypeArrayData is the TypeArray reference variant: exactly one of
// the eight primitive-kind vectors is populated, selected by Elem.
type TypeArrayData struct {
	Klass *Klass
	Elem  PrimitiveKind

	Bools   []bool
	Bytes   []int8
	Chars   []uint16
	Shorts  []int16
	Ints    []int32
	Longs   []int64
	Floats  []float32
	Doubles []float64
}

func (d *TypeArrayData) Kind() RefKind { return RefTypeArray }

func (d *TypeArrayData) Len() int {
	switch d.Elem {
	case PrimBoolean:
		return len(d.Bools)
	case PrimByte:
		return len(d.Bytes)
	case PrimChar:
		return len(d.Chars)
	case PrimShort:
		return len(d.Shorts)
	case PrimInt:
		return len(d.Ints)
	case PrimLong:
		return len(d.Longs)
	case PrimFloat:
		return len(d.Floats)
	case PrimDouble:
		return len(d.Doubles)
	default:
		return 0
	}
}

func (d *TypeArrayData) describe() string {
	return fmt.Sprintf("typearray[%d]", d.Len())
}

// MirrorData is the Mirror reference variant backing a
// java.lang.Class instance: the instance field values of the
// java.lang.Class object itself, plus the Klass it represents
// (absent, i.e. nil Target, for primitive-type mirrors like
// int.class).
type MirrorData struct {
	Klass       *Klass // always java.lang.Class's Klass
	FieldValues []Oop
	Target      *Klass
	Primitive   PrimitiveKind
	IsPrimitive bool
	Name        string // Java source name ("int", "void", ...) when IsPrimitive; unused otherwise
}

func (d *MirrorData) Kind() RefKind { return RefMirror }
func (d *MirrorData) describe() string {
	if d.Target != nil {
		return "mirror:" + d.Target.Name
	}
	return "mirror:primitive"
}

// NewInstance allocates an Instance reference for klass, with every
// field slot set to its JVMS §2.3/§2.4 default value (0, 0.0, or null).
func NewInstance(klass *Klass) *Reference {
	values := make([]Oop, klass.Instance.NumInstanceFields)
	InitFieldDefaults(klass, values)
	return NewReference(&InstanceData{
		Klass:       klass,
		FieldValues: values,
	})
}

// NewObjectArray allocates an ObjectArray reference of the given
// length, every element initialized to Null.
func NewObjectArray(klass *Klass, length int) *Reference {
	elems := make([]Oop, length)
	for i := range elems {
		elems[i] = Null()
	}
	return NewReference(&ObjectArrayData{Klass: klass, Elements: elems})
}

// NewTypeArray allocates a TypeArray reference of the given length and
// primitive element kind, zero-initialized.
func NewTypeArray(klass *Klass, elem PrimitiveKind, length int) *Reference {
	d := &TypeArrayData{Klass: klass, Elem: elem}
	switch elem {
	case PrimBoolean:
		d.Bools = make([]bool, length)
	case PrimByte:
		d.Bytes = make([]int8, length)
	case PrimChar:
		d.Chars = make([]uint16, length)
	case PrimShort:
		d.Shorts = make([]int16, length)
	case PrimInt:
		d.Ints = make([]int32, length)
	case PrimLong:
		d.Longs = make([]int64, length)
	case PrimFloat:
		d.Floats = make([]float32, length)
	case PrimDouble:
		d.Doubles = make([]float64, length)
	}
	return NewReference(d)
}
