package classloader

import (
	"fmt"
	"sync"

	"github.com/corvusvm/corvus/internal/hostenv"
	"github.com/corvusvm/corvus/pkg/classfile"
	"github.com/corvusvm/corvus/pkg/oop"
)

// initLock tracks, per Klass, which thread (if any) currently holds
// the class-initialization lock and how many times it has re-entered
// it — JLS §5.5 permits the initializing thread to recurse into its
// own class's <clinit> (e.g. a static field initializer that
// allocates an instance of the class being initialized).
type initLock struct {
	mu     sync.Mutex
	cond   *sync.Cond
	owner  int64
	depth  int
	active bool
}

var (
	locksMu sync.Mutex
	locks   = map[*oop.Klass]*initLock{}
)

func lockFor(k *oop.Klass) *initLock {
	locksMu.Lock()
	defer locksMu.Unlock()
	l, ok := locks[k]
	if !ok {
		l = &initLock{}
		l.cond = sync.NewCond(&l.mu)
		locks[k] = l
	}
	return l
}

// EnsureInitialized drives a Klass through BeingInitialized to
// FullyInitialized (or InitializationError), running its superclass's
// initializer first and then its own <clinit>, if present. Concurrent
// callers for the same Klass serialize on its init lock; the same
// thread re-entering (directly or via a static initializer that
// triggers initialization of its own class) passes straight through.
func (l *Loader) EnsureInitialized(threadID int64, k *oop.Klass) error {
	if !k.IsInstance() {
		if k.State() < oop.Linked {
			k.SetState(oop.Loaded)
			k.SetState(oop.Linked)
		}
		return nil
	}

	lk := lockFor(k)
	lk.mu.Lock()
	for lk.active && lk.owner != threadID {
		lk.cond.Wait()
	}
	if k.State() == oop.FullyInitialized || k.State() == oop.InitializationError {
		lk.mu.Unlock()
		if k.State() == oop.InitializationError {
			return fmt.Errorf("classloader: %s failed to initialize previously", k.Name)
		}
		return nil
	}
	lk.active = true
	lk.owner = threadID
	lk.depth++
	lk.mu.Unlock()

	defer func() {
		lk.mu.Lock()
		lk.depth--
		if lk.depth == 0 {
			lk.active = false
			lk.owner = 0
			lk.cond.Broadcast()
		}
		lk.mu.Unlock()
	}()

	if lk.depth > 1 {
		// Reentrant call from within our own <clinit>: JLS §5.5 says
		// proceed without waiting or re-running initialization.
		return nil
	}

	if k.State() == oop.Linked {
		k.SetState(oop.BeingInitialized)
	}
	if k.State() != oop.BeingInitialized {
		return nil
	}

	if k.Super != nil {
		if err := l.EnsureInitialized(threadID, k.Super); err != nil {
			k.SetState(oop.InitializationError)
			return err
		}
	}

	if err := l.initStaticFieldDefaults(threadID, k); err != nil {
		k.SetState(oop.InitializationError)
		return fmt.Errorf("classloader: %s: seeding static field defaults: %w", k.Name, err)
	}

	hostenv.Log.WithField("class", k.Name).Debug("initializing")

	clinit := k.Instance.AllMethods["<clinit>\x00()V"]
	if clinit != nil {
		if _, err := l.Invoker(threadID, clinit, nil); err != nil {
			k.SetState(oop.InitializationError)
			return fmt.Errorf("classloader: %s.<clinit>: %w", k.Name, err)
		}
	}

	k.SetState(oop.FullyInitialized)
	hostenv.Log.WithField("class", k.Name).Debug("initialized")
	return nil
}

// initStaticFieldDefaults seeds every static field with its
// ConstantValue attribute (or its zero value, for one assigned only
// in <clinit>), matching JLS §12.4.2 step 7's "prepare" phase folded
// in here rather than as a separate pass. A ConstantValue of type
// String (JVMS §4.7.2) is the one case Field.ConstantOopValue cannot
// resolve on its own — it needs a live Klass to allocate a real
// java.lang.String into — so it is special-cased here instead.
func (l *Loader) initStaticFieldDefaults(threadID int64, k *oop.Klass) error {
	pool := k.Instance.ClassFile.ConstantPool
	for _, f := range k.Instance.StaticFields {
		if cs, ok := f.ConstantValue.(*classfile.ConstantString); ok {
			s, err := classfile.GetUtf8(pool, cs.StringIndex)
			if err != nil {
				return fmt.Errorf("resolving ConstantValue string for %s: %w", f.Name, err)
			}
			strOop, err := l.newConstantString(threadID, s)
			if err != nil {
				return fmt.Errorf("allocating ConstantValue string for %s: %w", f.Name, err)
			}
			k.SetStaticValue(f.Offset, strOop)
			continue
		}
		k.SetStaticValue(f.Offset, f.ConstantOopValue())
	}
	return nil
}

// newConstantString allocates a java.lang.String instance with its
// value char[] field populated from s, the same minimal construction
// pkg/runtime's newJavaString performs — duplicated here rather than
// imported, since pkg/runtime already depends on pkg/classloader and
// importing it back would cycle.
func (l *Loader) newConstantString(threadID int64, s string) (oop.Oop, error) {
	strKlass, err := l.Require(threadID, "java/lang/String")
	if err != nil {
		return oop.Oop{}, err
	}
	if err := l.EnsureInitialized(threadID, strKlass); err != nil {
		return oop.Oop{}, err
	}
	charArrayKlass, err := l.Require(threadID, "[C")
	if err != nil {
		return oop.Oop{}, err
	}

	utf16 := encodeUTF16(s)
	arr := oop.NewTypeArray(charArrayKlass, oop.PrimChar, len(utf16))
	copy(arr.Data.(*oop.TypeArrayData).Chars, utf16)

	ref := oop.NewInstance(strKlass)
	if f := strKlass.FieldID("value", "[C", false); f != nil {
		ref.Data.(*oop.InstanceData).FieldValues[f.Offset] = oop.FromRef(arr)
	}
	return oop.FromRef(ref), nil
}

// encodeUTF16 converts a UTF-8 Go string into the UTF-16 code units
// java.lang.String's value field stores (surrogate pairs for
// astral-plane runes, matching JVMS char semantics).
func encodeUTF16(s string) []uint16 {
	var out []uint16
	for _, r := range s {
		if r <= 0xFFFF {
			out = append(out, uint16(r))
			continue
		}
		r -= 0x10000
		out = append(out, uint16(0xD800+(r>>10)), uint16(0xDC00+(r&0x3FF)))
	}
	return out
}
