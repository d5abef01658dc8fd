package classloader

import (
	"bytes"
	"encoding/binary"

	"github.com/corvusvm/corvus/pkg/classfile"
)

// cpBuilder assembles a constant pool byte stream, mirroring the one in
// pkg/classfile's own tests (unexported there, so reproduced here rather
// than reaching across package boundaries for a test helper).
type cpBuilder struct {
	buf  bytes.Buffer
	next uint16
}

func newCPBuilder() *cpBuilder { return &cpBuilder{next: 1} }

func (b *cpBuilder) utf8(s string) uint16 {
	b.buf.WriteByte(classfile.TagUtf8)
	binary.Write(&b.buf, binary.BigEndian, uint16(len(s)))
	b.buf.WriteString(s)
	idx := b.next
	b.next++
	return idx
}

func (b *cpBuilder) class(name string) uint16 {
	nameIdx := b.utf8(name)
	b.buf.WriteByte(classfile.TagClass)
	binary.Write(&b.buf, binary.BigEndian, nameIdx)
	idx := b.next
	b.next++
	return idx
}

func (b *cpBuilder) count() uint16 { return b.next }

// buildClass synthesizes a minimal class file named className, extending
// superName (pass "" for java/lang/Object; java/lang/Object itself gets no
// superclass entry), with one static method carrying the given code bytes,
// an optional static int field named staticFieldName, and, when clinitCode
// is non-nil, a static no-arg <clinit> whose body is clinitCode.
type classSpec struct {
	className       string
	superName       string
	methodName      string
	methodDesc      string
	code            []byte
	staticFieldName string
	clinitCode      []byte
}

func buildClass(spec classSpec) []byte {
	cp := newCPBuilder()
	thisClassIdx := cp.class(spec.className)
	var superClassIdx uint16
	if spec.className != "java/lang/Object" {
		super := spec.superName
		if super == "" {
			super = "java/lang/Object"
		}
		superClassIdx = cp.class(super)
	}
	codeAttrNameIdx := cp.utf8("Code")
	methodNameIdx := cp.utf8(spec.methodName)
	methodDescIdx := cp.utf8(spec.methodDesc)

	var fieldNameIdx, fieldDescIdx uint16
	if spec.staticFieldName != "" {
		fieldNameIdx = cp.utf8(spec.staticFieldName)
		fieldDescIdx = cp.utf8("I")
	}

	var clinitNameIdx, clinitDescIdx uint16
	if spec.clinitCode != nil {
		clinitNameIdx = cp.utf8("<clinit>")
		clinitDescIdx = cp.utf8("()V")
	}

	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(0xCAFEBABE))
	binary.Write(&buf, binary.BigEndian, uint16(0))
	binary.Write(&buf, binary.BigEndian, uint16(52))
	binary.Write(&buf, binary.BigEndian, cp.count())
	buf.Write(cp.buf.Bytes())

	binary.Write(&buf, binary.BigEndian, uint16(classfile.AccPublic|classfile.AccSuper))
	binary.Write(&buf, binary.BigEndian, thisClassIdx)
	binary.Write(&buf, binary.BigEndian, superClassIdx)
	binary.Write(&buf, binary.BigEndian, uint16(0)) // interfaces_count

	if spec.staticFieldName != "" {
		binary.Write(&buf, binary.BigEndian, uint16(1)) // fields_count
		binary.Write(&buf, binary.BigEndian, uint16(classfile.AccStatic))
		binary.Write(&buf, binary.BigEndian, fieldNameIdx)
		binary.Write(&buf, binary.BigEndian, fieldDescIdx)
		binary.Write(&buf, binary.BigEndian, uint16(0)) // attributes_count
	} else {
		binary.Write(&buf, binary.BigEndian, uint16(0))
	}

	methodsCount := uint16(1)
	if spec.clinitCode != nil {
		methodsCount = 2
	}
	binary.Write(&buf, binary.BigEndian, methodsCount)

	writeMethod := func(nameIdx, descIdx uint16, code []byte, static bool) {
		flags := uint16(classfile.AccPublic)
		if static {
			flags |= classfile.AccStatic
		}
		binary.Write(&buf, binary.BigEndian, flags)
		binary.Write(&buf, binary.BigEndian, nameIdx)
		binary.Write(&buf, binary.BigEndian, descIdx)
		binary.Write(&buf, binary.BigEndian, uint16(1)) // attributes_count

		var codeAttr bytes.Buffer
		binary.Write(&codeAttr, binary.BigEndian, uint16(4))
		binary.Write(&codeAttr, binary.BigEndian, uint16(2))
		binary.Write(&codeAttr, binary.BigEndian, uint32(len(code)))
		codeAttr.Write(code)
		binary.Write(&codeAttr, binary.BigEndian, uint16(0))
		binary.Write(&codeAttr, binary.BigEndian, uint16(0))

		binary.Write(&buf, binary.BigEndian, codeAttrNameIdx)
		binary.Write(&buf, binary.BigEndian, uint32(codeAttr.Len()))
		buf.Write(codeAttr.Bytes())
	}

	writeMethod(methodNameIdx, methodDescIdx, spec.code, true)
	if spec.clinitCode != nil {
		writeMethod(clinitNameIdx, clinitDescIdx, spec.clinitCode, true)
	}

	binary.Write(&buf, binary.BigEndian, uint16(0)) // class attributes_count

	return buf.Bytes()
}

// fakeReader serves pre-built class bytes from an in-memory map, standing
// in for internal/classpath.Reader in tests.
type fakeReader map[string][]byte

func (r fakeReader) ReadClass(name string) ([]byte, error) {
	data, ok := r[name]
	if !ok {
		return nil, errNotFound(name)
	}
	return data, nil
}

// withObject adds a minimal java/lang/Object to r: linking any other
// class resolves its superclass chain up to Object.
func withObject(r fakeReader) fakeReader {
	r["java/lang/Object"] = buildClass(classSpec{className: "java/lang/Object", methodName: "registerNatives", methodDesc: "()V", code: []byte{0xB1}})
	return r
}

type errNotFound string

func (e errNotFound) Error() string { return "fakeReader: class not found: " + string(e) }
