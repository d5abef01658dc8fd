package oop

import "github.com/corvusvm/corvus/pkg/classfile"

// Method is the runtime representation of one method_info (§3.4):
// its owning Klass, parsed signature, and (if not abstract or native)
// its code.
type Method struct {
	Owner       *Klass
	Name        string
	Descriptor  string
	Signature   *classfile.MethodSignature
	AccessFlags uint16
	Code        *classfile.CodeAttribute
	LineNumbers []classfile.LineNumberEntry
	Index       int // method_info index, for annotation lookup (C11)
}

func (m *Method) IsStatic() bool       { return m.AccessFlags&classfile.AccStatic != 0 }
func (m *Method) IsNative() bool       { return m.AccessFlags&classfile.AccNative != 0 }
func (m *Method) IsAbstract() bool     { return m.AccessFlags&classfile.AccAbstract != 0 }
func (m *Method) IsSynchronized() bool { return m.AccessFlags&classfile.AccSynchronized != 0 }
func (m *Method) IsPrivate() bool      { return m.AccessFlags&classfile.AccPrivate != 0 }
func (m *Method) IsVarargs() bool      { return m.AccessFlags&classfile.AccVarargs != 0 }

// IsConstructor reports whether this Method is an instance
// initializer ("<init>"). Constructors, like private and static
// methods, are excluded from the virtual table (§3.2).
func (m *Method) IsConstructor() bool { return m.Name == "<init>" }

// ArgSlots returns the number of local-variable slots the method's
// parameters occupy (category-2 types counting double), not including
// the implicit "this" slot for an instance method.
func (m *Method) ArgSlots() int {
	n := 0
	for _, a := range m.Signature.Args {
		n++
		if a.IsCategory2() {
			n++
		}
	}
	return n
}

// NewMethod builds a runtime Method from a parsed method_info, linking
// it to owner. The descriptor is parsed eagerly since every call site
// needs the arg/return shape to build a frame.
func NewMethod(owner *Klass, mi *classfile.MethodInfo) (*Method, error) {
	sig, err := classfile.ParseMethodDescriptor(mi.Descriptor)
	if err != nil {
		return nil, err
	}
	m := &Method{
		Owner:       owner,
		Name:        mi.Name,
		Descriptor:  mi.Descriptor,
		Signature:   sig,
		AccessFlags: mi.AccessFlags,
		Code:        mi.Code,
		Index:       mi.Index,
	}
	if mi.Code != nil {
		m.LineNumbers = mi.Code.LineNumbers
	}
	return m, nil
}
