package classfile

import (
	"bytes"
	"encoding/binary"
	"os"
	"testing"
)

// cpBuilder assembles a constant pool byte stream and tracks the next
// 1-based index to hand out, mirroring how a real compiler emits one.
type cpBuilder struct {
	buf  bytes.Buffer
	next uint16
}

func newCPBuilder() *cpBuilder { return &cpBuilder{next: 1} }

func (b *cpBuilder) utf8(s string) uint16 {
	b.buf.WriteByte(TagUtf8)
	binary.Write(&b.buf, binary.BigEndian, uint16(len(s)))
	b.buf.WriteString(s)
	idx := b.next
	b.next++
	return idx
}

func (b *cpBuilder) class(name string) uint16 {
	nameIdx := b.utf8(name)
	b.buf.WriteByte(TagClass)
	binary.Write(&b.buf, binary.BigEndian, nameIdx)
	idx := b.next
	b.next++
	return idx
}

func (b *cpBuilder) nameAndType(name, desc string) uint16 {
	nameIdx := b.utf8(name)
	descIdx := b.utf8(desc)
	b.buf.WriteByte(TagNameAndType)
	binary.Write(&b.buf, binary.BigEndian, nameIdx)
	binary.Write(&b.buf, binary.BigEndian, descIdx)
	idx := b.next
	b.next++
	return idx
}

func (b *cpBuilder) methodref(classIdx, natIdx uint16) uint16 {
	b.buf.WriteByte(TagMethodref)
	binary.Write(&b.buf, binary.BigEndian, classIdx)
	binary.Write(&b.buf, binary.BigEndian, natIdx)
	idx := b.next
	b.next++
	return idx
}

// count returns constant_pool_count (number of entries handed out, plus 1
// for the reserved slot-0 convention).
func (b *cpBuilder) count() uint16 { return b.next }

// buildMinimalClass synthesizes the smallest class file this parser
// accepts: one class extending java/lang/Object, one method with the
// given name and descriptor and a trivial Code attribute, no fields, no
// interfaces, no class-level attributes.
func buildMinimalClass(t *testing.T, className, methodName, methodDesc string, code []byte) []byte {
	t.Helper()

	cp := newCPBuilder()
	thisClassIdx := cp.class(className)
	superClassIdx := cp.class("java/lang/Object")
	codeAttrNameIdx := cp.utf8("Code")
	_ = cp.nameAndType(methodName, methodDesc) // exercised only via method_info below
	methodNameIdx := cp.utf8(methodName)
	methodDescIdx := cp.utf8(methodDesc)

	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(classMagic))
	binary.Write(&buf, binary.BigEndian, uint16(0))  // minor
	binary.Write(&buf, binary.BigEndian, uint16(52)) // major: Java 8
	binary.Write(&buf, binary.BigEndian, cp.count())
	buf.Write(cp.buf.Bytes())

	binary.Write(&buf, binary.BigEndian, uint16(AccPublic|AccSuper)) // access_flags
	binary.Write(&buf, binary.BigEndian, thisClassIdx)
	binary.Write(&buf, binary.BigEndian, superClassIdx)
	binary.Write(&buf, binary.BigEndian, uint16(0)) // interfaces_count
	binary.Write(&buf, binary.BigEndian, uint16(0)) // fields_count

	binary.Write(&buf, binary.BigEndian, uint16(1)) // methods_count
	binary.Write(&buf, binary.BigEndian, uint16(AccPublic|AccStatic))
	binary.Write(&buf, binary.BigEndian, methodNameIdx)
	binary.Write(&buf, binary.BigEndian, methodDescIdx)
	binary.Write(&buf, binary.BigEndian, uint16(1)) // attributes_count

	var codeAttr bytes.Buffer
	binary.Write(&codeAttr, binary.BigEndian, uint16(2)) // max_stack
	binary.Write(&codeAttr, binary.BigEndian, uint16(1)) // max_locals
	binary.Write(&codeAttr, binary.BigEndian, uint32(len(code)))
	codeAttr.Write(code)
	binary.Write(&codeAttr, binary.BigEndian, uint16(0)) // exception_table_length
	binary.Write(&codeAttr, binary.BigEndian, uint16(0)) // code's own attributes_count

	binary.Write(&buf, binary.BigEndian, codeAttrNameIdx)
	binary.Write(&buf, binary.BigEndian, uint32(codeAttr.Len()))
	buf.Write(codeAttr.Bytes())

	binary.Write(&buf, binary.BigEndian, uint16(0)) // class attributes_count

	return buf.Bytes()
}

func TestParseMinimalClass(t *testing.T) {
	code := []byte{0xB1} // return
	data := buildMinimalClass(t, "Hello", "main", "([Ljava/lang/String;)V", code)

	cf, err := Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cf.MajorVersion != 52 {
		t.Errorf("major version: got %d, want 52", cf.MajorVersion)
	}

	className, err := cf.ClassName()
	if err != nil {
		t.Fatalf("ClassName: %v", err)
	}
	if className != "Hello" {
		t.Errorf("this_class: got %q, want %q", className, "Hello")
	}

	if got := cf.SuperClassName(); got != "java/lang/Object" {
		t.Errorf("SuperClassName: got %q, want %q", got, "java/lang/Object")
	}

	mainMethod := cf.FindMethod("main", "([Ljava/lang/String;)V")
	if mainMethod == nil {
		t.Fatal("main method not found")
	}
	if mainMethod.Code == nil {
		t.Fatal("main method has no Code attribute")
	}
	if len(mainMethod.Code.Code) != len(code) {
		t.Errorf("Code: got %d bytes, want %d", len(mainMethod.Code.Code), len(code))
	}
	if mainMethod.Code.MaxStack == 0 {
		t.Error("Code attribute has MaxStack == 0")
	}
	if mainMethod.Code.MaxLocals == 0 {
		t.Error("Code attribute has MaxLocals == 0")
	}
}

func TestParseFindMethodByDescriptor(t *testing.T) {
	code := []byte{0x1A, 0x1B, 0x60, 0xAC} // iload_0, iload_1, iadd, ireturn
	data := buildMinimalClass(t, "Add", "add", "(II)I", code)

	cf, err := Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	addMethod := cf.FindMethod("add", "(II)I")
	if addMethod == nil {
		t.Fatal("add(II)I method not found")
	}
	if addMethod.Code == nil {
		t.Fatal("add method has no Code attribute")
	}
	if cf.FindMethod("add", "(JJ)J") != nil {
		t.Error("FindMethod matched on name alone, ignoring descriptor")
	}
	if cf.FindMethodByName("add") == nil {
		t.Error("FindMethodByName did not find add")
	}
}

func TestParseRejectsOutOfRangeVersion(t *testing.T) {
	code := []byte{0xB1}
	data := buildMinimalClass(t, "TooNew", "main", "()V", code)
	// major version lives right after the 4-byte magic + 2-byte minor.
	binary.BigEndian.PutUint16(data[6:8], 61) // Java 17

	_, err := Parse(bytes.NewReader(data))
	if err == nil {
		t.Error("expected error for out-of-range major version, got nil")
	}
}

func TestParseInvalidMagic(t *testing.T) {
	f, err := os.CreateTemp("", "invalid*.class")
	if err != nil {
		t.Fatalf("creating temp file: %v", err)
	}
	defer os.Remove(f.Name())

	f.Write([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	f.Close()

	r, err := os.Open(f.Name())
	if err != nil {
		t.Fatalf("opening temp file: %v", err)
	}
	defer r.Close()

	if _, err := Parse(r); err == nil {
		t.Error("expected error for invalid magic number, got nil")
	}
}

func TestParseTruncatedStream(t *testing.T) {
	_, err := Parse(bytes.NewReader([]byte{0xCA, 0xFE, 0xBA}))
	if err == nil {
		t.Error("expected error for truncated magic, got nil")
	}
}
