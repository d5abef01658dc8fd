package oop

import "github.com/corvusvm/corvus/pkg/classfile"

// Field is the runtime representation of one field_info, laid out
// slot-indexed rather than name-keyed: every Field carries the Offset
// assigned to it at link time, stable for the lifetime of the owning
// Klass (§3.5).
type Field struct {
	Owner       *Klass
	Name        string
	Descriptor  string
	ValueType   classfile.Type
	AccessFlags uint16
	Offset      int

	// ConstantValue is set only for a static final field whose
	// ConstantValue attribute supplies its initializer (§3.5).
	ConstantValue classfile.ConstantPoolEntry
}

func (f *Field) IsStatic() bool { return f.AccessFlags&classfile.AccStatic != 0 }
func (f *Field) IsFinal() bool  { return f.AccessFlags&classfile.AccFinal != 0 }

// DefaultValue returns the JVMS §2.3/§2.4 zero value for this field's
// type: 0, 0.0, or null, chosen by the field's descriptor kind.
func (f *Field) DefaultValue() Oop {
	switch f.ValueType.Kind {
	case classfile.KindLong:
		return Long(0)
	case classfile.KindFloat:
		return Float(0)
	case classfile.KindDouble:
		return Double(0)
	case classfile.KindObject, classfile.KindArray:
		return Null()
	default:
		return Int(0)
	}
}

// InitFieldDefaults fills values (an Instance's FieldValues, sized to
// klass.Instance.NumInstanceFields) with each declared field's JVMS
// §2.3/§2.4 default — the Go zero Oop is *not* a safe default on its
// own, since Kind 0 is KindInt, not KindNull, so reference fields need
// this pass before the instance is visible to bytecode.
func InitFieldDefaults(klass *Klass, values []Oop) {
	for c := klass; c != nil; c = c.Super {
		if c.Kind != KindInstanceKlass {
			continue
		}
		for _, f := range c.Instance.InstFields {
			values[f.Offset] = f.DefaultValue()
		}
	}
}

// ConstantOopValue converts a ConstantValue attribute's constant-pool
// entry into the Oop it seeds a static final field with. Returns the
// field's default value if there is no ConstantValue attribute (the
// field is instead assigned in <clinit>).
func (f *Field) ConstantOopValue() Oop {
	if f.ConstantValue == nil {
		return f.DefaultValue()
	}
	switch c := f.ConstantValue.(type) {
	case *classfile.ConstantInteger:
		switch f.ValueType.Kind {
		case classfile.KindBoolean, classfile.KindByte, classfile.KindChar, classfile.KindShort, classfile.KindInt:
			return Int(c.Value)
		}
		return Int(c.Value)
	case *classfile.ConstantLong:
		return Long(c.Value)
	case *classfile.ConstantFloat:
		return Float(c.Value)
	case *classfile.ConstantDouble:
		return Double(c.Value)
	case *classfile.ConstantString:
		// A bare Field has no Klass to allocate a real java.lang.String
		// into, so this returns Null; callers that seed static fields
		// from ConstantValue (pkg/classloader's initStaticFieldDefaults)
		// special-case ConstantString before ever reaching this branch.
		return Null()
	default:
		return f.DefaultValue()
	}
}
