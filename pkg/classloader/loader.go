package classloader

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/corvusvm/corvus/internal/classpath"
	"github.com/corvusvm/corvus/internal/hostenv"
	"github.com/corvusvm/corvus/pkg/classfile"
	"github.com/corvusvm/corvus/pkg/oop"
)

// MethodInvoker runs a parsed method's bytecode to completion and
// returns its result. The class loader needs this only to run
// <clinit>; the concrete implementation (pkg/runtime's interpreter)
// would otherwise import this package, so it is injected instead of
// imported, breaking the cycle.
type MethodInvoker func(threadID int64, method *oop.Method, args []oop.Oop) (oop.Oop, error)

// Loader loads, links, and (via Invoker) triggers initialization of
// classes for one defining-loader identity. The bootstrap loader has
// Name == "" and Parent == nil; a user loader delegates to its parent
// first, per JVMS §5.3's parent-first delegation model.
type Loader struct {
	Name    string
	Reader  classpath.Reader
	Parent  *Loader
	Dict    *Dictionary
	Invoker MethodInvoker
}

// NewBootstrapLoader builds the loader that owns the JDK's own classes.
func NewBootstrapLoader(reader classpath.Reader, dict *Dictionary, invoker MethodInvoker) *Loader {
	return &Loader{Reader: reader, Dict: dict, Invoker: invoker}
}

// NewUserLoader builds a classpath-entry loader delegating to parent.
func NewUserLoader(name string, reader classpath.Reader, parent *Loader) *Loader {
	return &Loader{Name: name, Reader: reader, Parent: parent, Dict: parent.Dict, Invoker: parent.Invoker}
}

// Require resolves name (internal form, e.g. "java/lang/String" or
// "[I") to a Linked Klass, loading and linking it if this is the
// first reference. It does not initialize the class — callers that
// need a fully-initialized class call EnsureInitialized separately
// (§3.2's "exactly one thread may hold the class-initialization lock").
func (l *Loader) Require(threadID int64, name string) (*oop.Klass, error) {
	if k := l.Dict.Find(l.Name, name); k != nil {
		return k, nil
	}

	if strings.HasPrefix(name, "[") {
		return l.requireArrayClass(threadID, name)
	}

	if l.Parent != nil {
		if k, err := l.Parent.Require(threadID, name); err == nil {
			return k, nil
		}
	}

	data, err := l.Reader.ReadClass(name)
	if err != nil {
		return nil, fmt.Errorf("classloader: %s: %w", name, err)
	}
	cf, err := classfile.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("classloader: parsing %s: %w", name, err)
	}

	k := oop.NewInstanceKlass(cf, name, l.Name)
	k.SetState(oop.Loaded)
	hostenv.Log.WithField("class", name).WithField("loader", l.Name).Debug("loaded")

	if err := l.linkInstance(threadID, k); err != nil {
		return nil, fmt.Errorf("classloader: linking %s: %w", name, err)
	}
	k.SetState(oop.Linked)
	hostenv.Log.WithField("class", name).Debug("linked")

	l.Dict.Put(l.Name, name, k)
	return k, nil
}

func (l *Loader) requireArrayClass(threadID int64, name string) (*oop.Klass, error) {
	dim := leadingBrackets(name)
	if dim == 0 {
		return nil, fmt.Errorf("classloader: not an array type: %q", name)
	}

	if dim > 1 {
		// A multi-dimensional array is always a reference array whose
		// elements are themselves arrays (e.g. int[][] holds int[]
		// references) — only the innermost dimension can be a
		// TypeArray.
		down, err := l.Require(threadID, name[1:])
		if err != nil {
			return nil, err
		}
		k := oop.NewObjectArrayKlass(name, l.Name, down, down)
		l.Dict.Put(l.Name, name, k)
		return k, nil
	}

	elemChar := name[1]
	if elemChar == 'L' {
		elemName := name[2 : len(name)-1]
		elem, err := l.Require(threadID, elemName)
		if err != nil {
			return nil, err
		}
		k := oop.NewObjectArrayKlass(name, l.Name, elem, nil)
		l.Dict.Put(l.Name, name, k)
		return k, nil
	}

	prim, err := primitiveKindOf(elemChar)
	if err != nil {
		return nil, err
	}
	k := oop.NewTypeArrayKlass(name, l.Name, prim)
	l.Dict.Put(l.Name, name, k)
	return k, nil
}

func leadingBrackets(name string) int {
	n := 0
	for n < len(name) && name[n] == '[' {
		n++
	}
	return n
}

func primitiveKindOf(c byte) (oop.PrimitiveKind, error) {
	switch c {
	case 'Z':
		return oop.PrimBoolean, nil
	case 'B':
		return oop.PrimByte, nil
	case 'C':
		return oop.PrimChar, nil
	case 'S':
		return oop.PrimShort, nil
	case 'I':
		return oop.PrimInt, nil
	case 'J':
		return oop.PrimLong, nil
	case 'F':
		return oop.PrimFloat, nil
	case 'D':
		return oop.PrimDouble, nil
	default:
		return 0, fmt.Errorf("classloader: unknown array element type %q", string(c))
	}
}

// linkInstance resolves the super class and interfaces, assigns field
// offsets (own fields appended after the super's), builds the method
// table and vtable, and allocates the constant-pool cache.
func (l *Loader) linkInstance(threadID int64, k *oop.Klass) error {
	cf := k.Instance.ClassFile
	inst := k.Instance

	superName := cf.SuperClassName()
	if superName != "" {
		super, err := l.Require(threadID, superName)
		if err != nil {
			return fmt.Errorf("resolving superclass %s: %w", superName, err)
		}
		if !super.IsInstance() {
			return fmt.Errorf("superclass %s of %s is not a class", superName, k.Name)
		}
		k.Super = super
	} else if k.Name != "java/lang/Object" {
		return fmt.Errorf("class %s has no superclass but is not java/lang/Object", k.Name)
	}

	for _, ifaceIdx := range cf.Interfaces {
		ifaceName, err := classfile.GetClassName(cf.ConstantPool, ifaceIdx)
		if err != nil {
			return fmt.Errorf("resolving interface index %d: %w", ifaceIdx, err)
		}
		iface, err := l.Require(threadID, ifaceName)
		if err != nil {
			return fmt.Errorf("resolving interface %s: %w", ifaceName, err)
		}
		inst.Interfaces = append(inst.Interfaces, iface)
	}

	baseOffset := 0
	if k.Super != nil {
		baseOffset = k.Super.Instance.NumInstanceFields
	}
	offset := baseOffset
	numStatic := 0

	for i := range cf.Fields {
		fi := &cf.Fields[i]
		ft, err := classfile.ParseFieldDescriptor(fi.Descriptor)
		if err != nil {
			return fmt.Errorf("field %s descriptor: %w", fi.Name, err)
		}
		f := &oop.Field{
			Owner:         k,
			Name:          fi.Name,
			Descriptor:    fi.Descriptor,
			ValueType:     ft,
			AccessFlags:   fi.AccessFlags,
			ConstantValue: fi.ConstantValue,
		}
		key := fi.Name + "\x00" + fi.Descriptor
		if f.IsStatic() {
			f.Offset = numStatic
			inst.StaticFields[key] = f
			numStatic++
		} else {
			f.Offset = offset
			inst.InstFields[key] = f
			offset++
		}
	}
	inst.NumInstanceFields = offset
	k.AllocStaticValues(numStatic)

	for i := range cf.Methods {
		mi := &cf.Methods[i]
		m, err := oop.NewMethod(k, mi)
		if err != nil {
			return fmt.Errorf("method %s%s: %w", mi.Name, mi.Descriptor, err)
		}
		key := mi.Name + "\x00" + mi.Descriptor
		inst.AllMethods[key] = m
		if !m.IsStatic() && !m.IsConstructor() && !m.IsPrivate() {
			inst.VTable[key] = m
		}
	}

	inst.Signature = cf.Signature
	inst.SourceFile = cf.SourceFile
	inst.InnerClasses = cf.InnerClasses
	inst.CPCache = oop.NewCPCache(len(cf.ConstantPool))

	return nil
}
