package runtime

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/corvusvm/corvus/pkg/classfile"
	"github.com/corvusvm/corvus/pkg/classloader"
)

// cpBuilder assembles a constant pool byte stream for hand-built test
// classes, mirroring the builder reproduced in pkg/classloader's own
// tests (kept local rather than exported across package boundaries).
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

func (b *cpBuilder) nameAndType(name, desc string) uint16 {
	nameIdx := b.utf8(name)
	descIdx := b.utf8(desc)
	b.buf.WriteByte(classfile.TagNameAndType)
	binary.Write(&b.buf, binary.BigEndian, nameIdx)
	binary.Write(&b.buf, binary.BigEndian, descIdx)
	idx := b.next
	b.next++
	return idx
}

func (b *cpBuilder) methodref(className, name, desc string) uint16 {
	classIdx := b.class(className)
	natIdx := b.nameAndType(name, desc)
	b.buf.WriteByte(classfile.TagMethodref)
	binary.Write(&b.buf, binary.BigEndian, classIdx)
	binary.Write(&b.buf, binary.BigEndian, natIdx)
	idx := b.next
	b.next++
	return idx
}

func (b *cpBuilder) fieldref(className, name, desc string) uint16 {
	classIdx := b.class(className)
	natIdx := b.nameAndType(name, desc)
	b.buf.WriteByte(classfile.TagFieldref)
	binary.Write(&b.buf, binary.BigEndian, classIdx)
	binary.Write(&b.buf, binary.BigEndian, natIdx)
	idx := b.next
	b.next++
	return idx
}

func (b *cpBuilder) count() uint16 { return b.next }

type fieldSpec struct {
	name, desc  string
	accessFlags uint16
}

type methodSpec struct {
	name, desc           string
	accessFlags          uint16
	maxStack, maxLocals  uint16
	code                 []byte
}

// buildClass synthesizes a complete class file around a caller-filled
// cpBuilder (so the caller can pre-allocate methodref/fieldref entries
// that cross-reference other classes before the code bytes that use
// their indices are written).
func buildClass(cp *cpBuilder, name, super string, fields []fieldSpec, methods []methodSpec) []byte {
	thisClassIdx := cp.class(name)
	var superClassIdx uint16
	if super != "" {
		superClassIdx = cp.class(super)
	}

	type builtField struct {
		nameIdx, descIdx uint16
		spec             fieldSpec
	}
	builtFields := make([]builtField, len(fields))
	for i, fs := range fields {
		builtFields[i] = builtField{cp.utf8(fs.name), cp.utf8(fs.desc), fs}
	}

	codeAttrNameIdx := cp.utf8("Code")
	type builtMethod struct {
		nameIdx, descIdx uint16
		spec             methodSpec
	}
	builtMethods := make([]builtMethod, len(methods))
	for i, ms := range methods {
		builtMethods[i] = builtMethod{cp.utf8(ms.name), cp.utf8(ms.desc), ms}
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

	binary.Write(&buf, binary.BigEndian, uint16(len(builtFields)))
	for _, bf := range builtFields {
		binary.Write(&buf, binary.BigEndian, bf.spec.accessFlags)
		binary.Write(&buf, binary.BigEndian, bf.nameIdx)
		binary.Write(&buf, binary.BigEndian, bf.descIdx)
		binary.Write(&buf, binary.BigEndian, uint16(0)) // attributes_count
	}

	binary.Write(&buf, binary.BigEndian, uint16(len(builtMethods)))
	for _, bm := range builtMethods {
		binary.Write(&buf, binary.BigEndian, bm.spec.accessFlags)
		binary.Write(&buf, binary.BigEndian, bm.nameIdx)
		binary.Write(&buf, binary.BigEndian, bm.descIdx)
		binary.Write(&buf, binary.BigEndian, uint16(1)) // attributes_count

		var codeAttr bytes.Buffer
		binary.Write(&codeAttr, binary.BigEndian, bm.spec.maxStack)
		binary.Write(&codeAttr, binary.BigEndian, bm.spec.maxLocals)
		binary.Write(&codeAttr, binary.BigEndian, uint32(len(bm.spec.code)))
		codeAttr.Write(bm.spec.code)
		binary.Write(&codeAttr, binary.BigEndian, uint16(0)) // exception_table_length
		binary.Write(&codeAttr, binary.BigEndian, uint16(0)) // code attributes_count

		binary.Write(&buf, binary.BigEndian, codeAttrNameIdx)
		binary.Write(&buf, binary.BigEndian, uint32(codeAttr.Len()))
		buf.Write(codeAttr.Bytes())
	}

	binary.Write(&buf, binary.BigEndian, uint16(0)) // class attributes_count

	return buf.Bytes()
}

type fakeClasspath map[string][]byte

func (f fakeClasspath) ReadClass(name string) ([]byte, error) {
	data, ok := f[name]
	if !ok {
		return nil, fmt.Errorf("no such class: %s", name)
	}
	return data, nil
}

func buildObjectClass() []byte {
	return buildClass(newCPBuilder(), "java/lang/Object", "", nil, []methodSpec{
		{name: "<init>", desc: "()V", accessFlags: classfile.AccPublic, maxStack: 1, maxLocals: 1, code: []byte{OpReturn}},
	})
}

// newTestEngine wires a bootstrap loader over classes, seeded with a
// trivial java/lang/Object so every test class can extend it.
func newTestEngine(t *testing.T, classes fakeClasspath) (*Engine, *Thread) {
	t.Helper()
	classes["java/lang/Object"] = buildObjectClass()

	dict := classloader.NewDictionary()
	e := NewEngine(nil, dict)
	e.Boot = classloader.NewBootstrapLoader(classes, dict, e.MethodInvoker)
	e.Dict = dict
	th := e.NewThread(nil)
	return e, th
}

// TestInvokestaticAcrossClasses exercises the full load -> link ->
// initialize -> invokestatic -> interpret pipeline: a "Callee" class
// exposes a static add(II)I, and "Main" calls it through a Methodref
// resolved at runtime via execInvokeOp/dispatchInvoke.
func TestInvokestaticAcrossClasses(t *testing.T) {
	calleeCP := newCPBuilder()
	calleeBytes := buildClass(calleeCP, "Callee", "java/lang/Object", nil, []methodSpec{
		{
			name: "add", desc: "(II)I", accessFlags: classfile.AccPublic | classfile.AccStatic,
			maxStack: 2, maxLocals: 2,
			code: []byte{OpIload0, OpIload1, OpIadd, OpIreturn},
		},
	})

	mainCP := newCPBuilder()
	addRefIdx := mainCP.methodref("Callee", "add", "(II)I")
	mainBytes := buildClass(mainCP, "Main", "java/lang/Object", nil, []methodSpec{
		{
			name: "run", desc: "()I", accessFlags: classfile.AccPublic | classfile.AccStatic,
			maxStack: 2, maxLocals: 0,
			code: []byte{
				OpIconst2,
				OpIconst3,
				OpInvokestatic, byte(addRefIdx >> 8), byte(addRefIdx),
				OpIreturn,
			},
		},
	})

	classes := fakeClasspath{
		"Callee": calleeBytes,
		"Main":   mainBytes,
	}
	e, th := newTestEngine(t, classes)

	mainKlass, err := e.Boot.Require(th.ID, "Main")
	if err != nil {
		t.Fatalf("Require(Main): %v", err)
	}
	if err := e.Boot.EnsureInitialized(th.ID, mainKlass); err != nil {
		t.Fatalf("EnsureInitialized(Main): %v", err)
	}

	method := mainKlass.LookupMethod("run", "()I")
	if method == nil {
		t.Fatal("Main.run()I not found")
	}

	result, err := e.Invoke(th, method, nil, true)
	if err != nil {
		t.Fatalf("Invoke(Main.run): %v", err)
	}
	if result.I != 5 {
		t.Fatalf("Main.run() = %d, want 5 (2+3 via invokestatic)", result.I)
	}
}

// TestInvokestaticTriggersOwnerInitialization exercises JLS §12.4.1's
// invocation trigger directly: Callee.add(II)I never touches a static
// field itself, but Callee's <clinit> sets a separate static field
// that only <clinit> running would set. Main never initializes Callee
// on its own (no getstatic/putstatic/new of Callee) before calling
// add via invokestatic, so the only way Callee.touched ends up 1 is
// if Invoke initializes Callee before running add.
func TestInvokestaticTriggersOwnerInitialization(t *testing.T) {
	calleeCP := newCPBuilder()
	touchedFieldref := calleeCP.fieldref("Callee", "touched", "I")
	calleeBytes := buildClass(calleeCP, "Callee",
		"java/lang/Object",
		[]fieldSpec{{name: "touched", desc: "I", accessFlags: classfile.AccStatic}},
		[]methodSpec{
			{
				name: "<clinit>", desc: "()V", accessFlags: classfile.AccStatic,
				maxStack: 1, maxLocals: 0,
				code: []byte{
					OpIconst1,
					OpPutstatic, byte(touchedFieldref >> 8), byte(touchedFieldref),
					OpReturn,
				},
			},
			{
				name: "add", desc: "(II)I", accessFlags: classfile.AccPublic | classfile.AccStatic,
				maxStack: 2, maxLocals: 2,
				code: []byte{OpIload0, OpIload1, OpIadd, OpIreturn},
			},
		})

	mainCP := newCPBuilder()
	addRefIdx := mainCP.methodref("Callee", "add", "(II)I")
	mainBytes := buildClass(mainCP, "Main", "java/lang/Object", nil, []methodSpec{
		{
			name: "run", desc: "()I", accessFlags: classfile.AccPublic | classfile.AccStatic,
			maxStack: 2, maxLocals: 0,
			code: []byte{
				OpIconst2,
				OpIconst3,
				OpInvokestatic, byte(addRefIdx >> 8), byte(addRefIdx),
				OpIreturn,
			},
		},
	})

	classes := fakeClasspath{
		"Callee": calleeBytes,
		"Main":   mainBytes,
	}
	e, th := newTestEngine(t, classes)

	mainKlass, err := e.Boot.Require(th.ID, "Main")
	if err != nil {
		t.Fatalf("Require(Main): %v", err)
	}
	if err := e.Boot.EnsureInitialized(th.ID, mainKlass); err != nil {
		t.Fatalf("EnsureInitialized(Main): %v", err)
	}

	method := mainKlass.LookupMethod("run", "()I")
	if method == nil {
		t.Fatal("Main.run()I not found")
	}

	if _, err := e.Invoke(th, method, nil, true); err != nil {
		t.Fatalf("Invoke(Main.run): %v", err)
	}

	calleeKlass, err := e.Boot.Require(th.ID, "Callee")
	if err != nil {
		t.Fatalf("Require(Callee): %v", err)
	}
	touchedField := calleeKlass.FieldID("touched", "I", true)
	if touchedField == nil {
		t.Fatal("no static field Callee.touched")
	}
	if got := calleeKlass.StaticValue(touchedField.Offset).I; got != 1 {
		t.Fatalf("Callee.touched = %d, want 1 (invokestatic should run Callee.<clinit> before Callee.add)", got)
	}
}

// TestInvokestaticSynchronizedMaterializesMirror exercises a static
// synchronized method invoked as the very first bytecode to touch its
// own class: nothing in Main's run()I does an ldc <class>, getClass(),
// or Class.forName0 on Callee first, so Callee.Mirror starts out nil.
// Invoke must materialize it rather than dereference it directly.
func TestInvokestaticSynchronizedMaterializesMirror(t *testing.T) {
	calleeCP := newCPBuilder()
	calleeBytes := buildClass(calleeCP, "Callee", "java/lang/Object", nil, []methodSpec{
		{
			name: "add", desc: "(II)I", accessFlags: classfile.AccPublic | classfile.AccStatic | classfile.AccSynchronized,
			maxStack: 2, maxLocals: 2,
			code: []byte{OpIload0, OpIload1, OpIadd, OpIreturn},
		},
	})
	classBytes := buildClass(newCPBuilder(), "java/lang/Class", "java/lang/Object", nil, nil)

	mainCP := newCPBuilder()
	addRefIdx := mainCP.methodref("Callee", "add", "(II)I")
	mainBytes := buildClass(mainCP, "Main", "java/lang/Object", nil, []methodSpec{
		{
			name: "run", desc: "()I", accessFlags: classfile.AccPublic | classfile.AccStatic,
			maxStack: 2, maxLocals: 0,
			code: []byte{
				OpIconst2,
				OpIconst3,
				OpInvokestatic, byte(addRefIdx >> 8), byte(addRefIdx),
				OpIreturn,
			},
		},
	})

	classes := fakeClasspath{
		"Callee":          calleeBytes,
		"Main":            mainBytes,
		"java/lang/Class": classBytes,
	}
	e, th := newTestEngine(t, classes)

	mainKlass, err := e.Boot.Require(th.ID, "Main")
	if err != nil {
		t.Fatalf("Require(Main): %v", err)
	}
	if err := e.Boot.EnsureInitialized(th.ID, mainKlass); err != nil {
		t.Fatalf("EnsureInitialized(Main): %v", err)
	}

	method := mainKlass.LookupMethod("run", "()I")
	if method == nil {
		t.Fatal("Main.run()I not found")
	}

	result, err := e.Invoke(th, method, nil, true)
	if err != nil {
		t.Fatalf("Invoke(Main.run): %v", err)
	}
	if result.I != 5 {
		t.Fatalf("Main.run() = %d, want 5 (2+3 via a static synchronized invokestatic)", result.I)
	}
}
