// Package classfile decodes the Java SE 8 class file format (JVMS §4)
// into an immutable, structured representation.
package classfile

// Access flags (JVMS §4.1, §4.5, §4.6 — the subset this core inspects).
const (
	AccPublic       = 0x0001
	AccPrivate      = 0x0002
	AccProtected    = 0x0004
	AccStatic       = 0x0008
	AccFinal        = 0x0010
	AccSuper        = 0x0020
	AccSynchronized = 0x0020
	AccVolatile     = 0x0040
	AccBridge       = 0x0040
	AccTransient    = 0x0080
	AccVarargs      = 0x0080
	AccNative       = 0x0100
	AccInterface    = 0x0200
	AccAbstract     = 0x0400
	AccStrict       = 0x0800
	AccSynthetic    = 0x1000
	AccAnnotation   = 0x2000
	AccEnum         = 0x4000
)

// ClassFile is the fully decoded, immutable content of one .class file.
type ClassFile struct {
	MinorVersion     uint16
	MajorVersion     uint16
	ConstantPool     []ConstantPoolEntry // 1-indexed; slot 0 is nil
	AccessFlags      uint16
	ThisClass        uint16
	SuperClass       uint16
	Interfaces       []uint16
	Fields           []FieldInfo
	Methods          []MethodInfo
	Attributes       []AttributeInfo
	BootstrapMethods []BootstrapMethod
	SourceFile       string
	InnerClasses     []InnerClassInfo
	Signature        string // generic class signature, if present
}

// ConstantPoolEntry is implemented by every tagged constant pool member.
type ConstantPoolEntry interface {
	Tag() uint8
}

type ConstantUtf8 struct{ Value string }

func (c *ConstantUtf8) Tag() uint8 { return TagUtf8 }

type ConstantInteger struct{ Value int32 }

func (c *ConstantInteger) Tag() uint8 { return TagInteger }

type ConstantFloat struct{ Value float32 }

func (c *ConstantFloat) Tag() uint8 { return TagFloat }

type ConstantLong struct{ Value int64 }

func (c *ConstantLong) Tag() uint8 { return TagLong }

type ConstantDouble struct{ Value float64 }

func (c *ConstantDouble) Tag() uint8 { return TagDouble }

type ConstantClass struct{ NameIndex uint16 }

func (c *ConstantClass) Tag() uint8 { return TagClass }

type ConstantString struct{ StringIndex uint16 }

func (c *ConstantString) Tag() uint8 { return TagString }

type ConstantFieldref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (c *ConstantFieldref) Tag() uint8 { return TagFieldref }

type ConstantMethodref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (c *ConstantMethodref) Tag() uint8 { return TagMethodref }

type ConstantInterfaceMethodref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (c *ConstantInterfaceMethodref) Tag() uint8 { return TagInterfaceMethodref }

type ConstantNameAndType struct {
	NameIndex       uint16
	DescriptorIndex uint16
}

func (c *ConstantNameAndType) Tag() uint8 { return TagNameAndType }

// ConstantMethodHandle is CONSTANT_MethodHandle_info (JVMS §4.4.8).
type ConstantMethodHandle struct {
	ReferenceKind  uint8
	ReferenceIndex uint16
}

func (c *ConstantMethodHandle) Tag() uint8 { return TagMethodHandle }

// ConstantMethodType is CONSTANT_MethodType_info (JVMS §4.4.9).
type ConstantMethodType struct{ DescriptorIndex uint16 }

func (c *ConstantMethodType) Tag() uint8 { return TagMethodType }

// ConstantDynamic is CONSTANT_Dynamic_info (JVMS §4.4.10, Java 11+; parsed
// for forward compatibility even though this core targets SE 8 bytecode).
type ConstantDynamic struct {
	BootstrapMethodAttrIndex uint16
	NameAndTypeIndex         uint16
}

func (c *ConstantDynamic) Tag() uint8 { return TagDynamic }

// ConstantInvokeDynamic is CONSTANT_InvokeDynamic_info (JVMS §4.4.10).
type ConstantInvokeDynamic struct {
	BootstrapMethodAttrIndex uint16
	NameAndTypeIndex         uint16
}

func (c *ConstantInvokeDynamic) Tag() uint8 { return TagInvokeDynamic }

// MethodInfo is one method_info entry, with its Code attribute (if any)
// pre-extracted for the interpreter's convenience.
type MethodInfo struct {
	AccessFlags uint16
	Name        string
	Descriptor  string
	Attributes  []AttributeInfo
	Code        *CodeAttribute
	Exceptions  []string // throws clause, class names in internal form
	Signature   string   // generic method signature, if present
	Index       int      // method_info index, for annotation lookup (C11)
}

// FieldInfo is one field_info entry.
type FieldInfo struct {
	AccessFlags   uint16
	Name          string
	Descriptor    string
	Attributes    []AttributeInfo
	ConstantValue ConstantPoolEntry // from a ConstantValue attribute, if present
	Signature     string            // generic field signature, if present
	Index         int
}

// AttributeInfo is a raw, name-tagged attribute. Attributes this parser
// doesn't specially interpret are kept as opaque blobs rather than
// rejected, so forward-compatible class files still load.
type AttributeInfo struct {
	Name string
	Data []byte
}

// ExceptionHandler is one entry of a Code attribute's exception table.
type ExceptionHandler struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType uint16 // constant pool index of a CONSTANT_Class, or 0 for catch-all
}

// LineNumberEntry maps a bytecode offset to a source line.
type LineNumberEntry struct {
	StartPC    uint16
	LineNumber uint16
}

// CodeAttribute is the decoded Code attribute of a method.
type CodeAttribute struct {
	MaxStack          uint16
	MaxLocals         uint16
	Code              []byte
	ExceptionHandlers []ExceptionHandler
	LineNumbers       []LineNumberEntry
}

// BootstrapMethod is one entry of the class-level BootstrapMethods
// attribute, consumed by invokedynamic.
type BootstrapMethod struct {
	MethodRef          uint16
	BootstrapArguments []uint16
}

// InnerClassInfo is one entry of the InnerClasses attribute.
type InnerClassInfo struct {
	InnerClassIndex  uint16
	OuterClassIndex  uint16
	InnerNameIndex   uint16
	InnerAccessFlags uint16
}
