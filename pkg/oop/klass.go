// Package oop implements the runtime object model: Klass (the loaded,
// linked representation of a class) and Oop (the tagged value that
// flows through the interpreter's operand stack and heap).
package oop

import (
	"fmt"
	"sync"

	"github.com/corvusvm/corvus/pkg/classfile"
)

// State is a Klass's position in the JLS §5.5 lifecycle. It only ever
// advances, except for the single retreating edge BeingInitialized ->
// InitializationError.
type State int

const (
	Allocated State = iota
	Loaded
	Linked
	BeingInitialized
	FullyInitialized
	InitializationError
)

func (s State) String() string {
	switch s {
	case Allocated:
		return "allocated"
	case Loaded:
		return "loaded"
	case Linked:
		return "linked"
	case BeingInitialized:
		return "being-initialized"
	case FullyInitialized:
		return "fully-initialized"
	case InitializationError:
		return "initialization-error"
	default:
		return "unknown"
	}
}

// PrimitiveKind enumerates the eight primitive element kinds a TypeArray
// Klass may hold.
type PrimitiveKind int

const (
	PrimBoolean PrimitiveKind = iota
	PrimByte
	PrimChar
	PrimShort
	PrimInt
	PrimLong
	PrimFloat
	PrimDouble
)

// Klass is the runtime representation of a loaded class, interface,
// or array type. Exactly one of Instance, ObjectArray, or TypeArray
// is populated, selected by Kind.
type Klass struct {
	Name        string
	AccessFlags uint16
	Loader      string // defining loader's identity; "" is the bootstrap loader
	Super       *Klass // nil only for java/lang/Object

	mu    sync.RWMutex
	state State

	clinitMu sync.Mutex
	clinitBy int64 // goroutine-local thread id holding clinitMu; 0 = unheld
	clinitN  int   // reentrancy count

	Kind        KlassKind
	Instance    *InstanceKlass
	ObjectArray *ObjectArrayKlass
	TypeArray   *TypeArrayKlass

	Mirror *Oop // java.lang.Class instance representing this Klass
}

// KlassKind discriminates the three Klass variants (§3.2).
type KlassKind int

const (
	KindInstanceKlass KlassKind = iota
	KindObjectArrayKlass
	KindTypeArrayKlass
)

// InstanceKlass is the Instance-class variant: the parsed class file,
// field/method tables, and the lazily-populated constant-pool cache.
type InstanceKlass struct {
	ClassFile *classfile.ClassFile

	Interfaces []*Klass

	// AllMethods is keyed by "name\x00descriptor".
	AllMethods map[string]*Method
	// VTable holds only non-static, non-private, non-constructor methods.
	VTable map[string]*Method

	// StaticFields and InstFields are keyed by "name\x00descriptor".
	StaticFields map[string]*Field
	InstFields   map[string]*Field

	NumInstanceFields int
	staticValues      []Oop

	Signature       string
	SourceFile      string
	InnerClasses    []classfile.InnerClassInfo
	CPCache         *CPCache
}

// ObjectArrayKlass is the ObjectArray-class variant: an array whose
// element type is itself a reference type.
type ObjectArrayKlass struct {
	Component *Klass // element Klass
	DownType  *Klass // one dimension down, for arrays of arrays; nil at depth 1
}

// TypeArrayKlass is the TypeArray-class variant: an array of a
// primitive kind.
type TypeArrayKlass struct {
	Elem PrimitiveKind
}

// NewInstanceKlass allocates an Instance Klass in state Allocated. The
// caller (the class loader) advances it through Loaded/Linked/etc.
func NewInstanceKlass(cf *classfile.ClassFile, name string, loader string) *Klass {
	return &Klass{
		Name:        name,
		AccessFlags: cf.AccessFlags,
		Loader:      loader,
		state:       Allocated,
		Kind:        KindInstanceKlass,
		Instance: &InstanceKlass{
			ClassFile:    cf,
			AllMethods:   make(map[string]*Method),
			VTable:       make(map[string]*Method),
			StaticFields: make(map[string]*Field),
			InstFields:   make(map[string]*Field),
		},
	}
}

// NewObjectArrayKlass builds an array-of-references Klass whose name
// follows JVMS §4.3.2 array-type encoding, e.g. "[Ljava/lang/String;".
func NewObjectArrayKlass(name, loader string, component, downType *Klass) *Klass {
	return &Klass{
		Name:   name,
		Loader: loader,
		state:  Loaded,
		Kind:   KindObjectArrayKlass,
		ObjectArray: &ObjectArrayKlass{
			Component: component,
			DownType:  downType,
		},
	}
}

// NewTypeArrayKlass builds a primitive array Klass, e.g. "[I" for int[].
func NewTypeArrayKlass(name, loader string, elem PrimitiveKind) *Klass {
	return &Klass{
		Name:   name,
		Loader: loader,
		state:  Loaded,
		Kind:   KindTypeArrayKlass,
		TypeArray: &TypeArrayKlass{
			Elem: elem,
		},
	}
}

func (k *Klass) State() State {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.state
}

// SetState advances the Klass's lifecycle state. Panics on an illegal
// transition — class loading code is expected to only ever request
// forward transitions, or the one retreating edge into
// InitializationError.
func (k *Klass) SetState(s State) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !isLegalTransition(k.state, s) {
		panic(fmt.Sprintf("illegal klass state transition for %s: %s -> %s", k.Name, k.state, s))
	}
	k.state = s
}

func isLegalTransition(from, to State) bool {
	if to == InitializationError {
		return from == BeingInitialized
	}
	return to == from+1
}

// IsInstance reports whether this Klass is the Instance variant.
func (k *Klass) IsInstance() bool { return k.Kind == KindInstanceKlass }

// IsArray reports whether this Klass is an array of any kind.
func (k *Klass) IsArray() bool { return k.Kind != KindInstanceKlass }

// IsInterface reports whether this Klass describes a Java interface.
func (k *Klass) IsInterface() bool {
	return k.Kind == KindInstanceKlass && k.AccessFlags&classfile.AccInterface != 0
}

// ComponentKlass returns the element type of an array Klass, or nil for
// an Instance Klass or a primitive TypeArray.
func (k *Klass) ComponentKlass() *Klass {
	switch k.Kind {
	case KindObjectArrayKlass:
		return k.ObjectArray.Component
	default:
		return nil
	}
}

// IsSubclassOf walks the super-class chain (not interfaces) looking for
// target. Used for class (not interface) assignability checks.
func (k *Klass) IsSubclassOf(target *Klass) bool {
	for c := k; c != nil; c = c.Super {
		if c == target {
			return true
		}
	}
	return false
}

// ImplementsInterface reports whether k (or any of its superclasses)
// directly or transitively implements target.
func (k *Klass) ImplementsInterface(target *Klass) bool {
	for c := k; c != nil; c = c.Super {
		if c.Kind != KindInstanceKlass {
			continue
		}
		for _, iface := range c.Instance.Interfaces {
			if iface == target || iface.ImplementsInterface(target) {
				return true
			}
		}
	}
	return false
}

// IsAssignableTo implements the JVMS §4.10.1.2 array subtyping rule
// among other things: every array type is assignable to Object,
// Cloneable, and java.io.Serializable.
func (k *Klass) IsAssignableTo(target *Klass) bool {
	if k == target {
		return true
	}
	if target.IsInterface() {
		if k.IsArray() {
			return target.Name == "java/lang/Cloneable" || target.Name == "java/io/Serializable"
		}
		return k.ImplementsInterface(target)
	}
	if target.Name == "java/lang/Object" {
		return true
	}
	if k.Kind != target.Kind {
		return false
	}
	switch k.Kind {
	case KindObjectArrayKlass:
		return k.ObjectArray.Component.IsAssignableTo(target.ObjectArray.Component)
	case KindTypeArrayKlass:
		return k.TypeArray.Elem == target.TypeArray.Elem
	default:
		return k.IsSubclassOf(target)
	}
}

// LookupMethod resolves (name, descriptor) by walking this Klass then
// its superclass chain; it does not consult interfaces (see
// LookupInterfaceMethod for that search).
func (k *Klass) LookupMethod(name, descriptor string) *Method {
	key := methodKey(name, descriptor)
	for c := k; c != nil; c = c.Super {
		if c.Kind != KindInstanceKlass {
			continue
		}
		if m, ok := c.Instance.AllMethods[key]; ok {
			return m
		}
	}
	return nil
}

// LookupVirtualMethod resolves (name, descriptor) via the virtual
// table, walking superclasses on a miss.
func (k *Klass) LookupVirtualMethod(name, descriptor string) *Method {
	key := methodKey(name, descriptor)
	for c := k; c != nil; c = c.Super {
		if c.Kind != KindInstanceKlass {
			continue
		}
		if m, ok := c.Instance.VTable[key]; ok {
			return m
		}
	}
	return nil
}

// LookupInterfaceMethod resolves (name, descriptor) against this
// Klass's vtable, then its interfaces (recursively), then its
// superclass.
func (k *Klass) LookupInterfaceMethod(name, descriptor string) *Method {
	key := methodKey(name, descriptor)
	for c := k; c != nil; c = c.Super {
		if c.Kind != KindInstanceKlass {
			continue
		}
		if m, ok := c.Instance.VTable[key]; ok {
			return m
		}
		for _, iface := range c.Instance.Interfaces {
			if m := iface.LookupInterfaceMethod(name, descriptor); m != nil {
				return m
			}
		}
	}
	return nil
}

// FieldID resolves (name, descriptor) to a Field, walking superclasses
// when the field isn't declared directly on k.
func (k *Klass) FieldID(name, descriptor string, static bool) *Field {
	key := fieldKey(name, descriptor)
	for c := k; c != nil; c = c.Super {
		if c.Kind != KindInstanceKlass {
			continue
		}
		table := c.Instance.InstFields
		if static {
			table = c.Instance.StaticFields
		}
		if f, ok := table[key]; ok {
			return f
		}
	}
	return nil
}

// StaticValue returns the current value of the static field at offset.
// Static storage belongs to the Klass that declares the field, so the
// caller must pass the declaring Klass's offset (as returned by
// FieldID), not necessarily k itself.
func (k *Klass) StaticValue(offset int) Oop {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.Instance.staticValues[offset]
}

// SetStaticValue stores a value into static storage at offset.
func (k *Klass) SetStaticValue(offset int, v Oop) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.Instance.staticValues[offset] = v
}

// AllocStaticValues sizes static storage to n zero slots; the class
// loader calls it once while linking.
func (k *Klass) AllocStaticValues(n int) {
	k.Instance.staticValues = make([]Oop, n)
}

func methodKey(name, descriptor string) string { return name + "\x00" + descriptor }
func fieldKey(name, descriptor string) string  { return name + "\x00" + descriptor }
