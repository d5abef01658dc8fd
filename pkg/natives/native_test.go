package natives

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/corvusvm/corvus/pkg/classfile"
	"github.com/corvusvm/corvus/pkg/classloader"
	"github.com/corvusvm/corvus/pkg/oop"
	"github.com/corvusvm/corvus/pkg/runtime"
)

// The builder below mirrors pkg/runtime's own integration-test
// builder; kept local since neither package exports its test
// helpers across the boundary.
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

type fieldSpec struct {
	name, desc  string
	accessFlags uint16
}

type methodSpec struct {
	name, desc  string
	accessFlags uint16
	maxStack    uint16
	maxLocals   uint16
	code        []byte
}

// buildClass assembles a minimal class file. Every utf8/class constant
// pool entry the fields/methods/Code attribute need is registered on
// cp *before* the constant_pool_count and pool bytes are serialized —
// mirroring pkg/runtime's own integration-test builder, since the
// indices have to be known ahead of the count they're counted in.
// Methods with a nil code slice are emitted native (no Code
// attribute), matching a real native method_info's shape.
func buildClass(cp *cpBuilder, name, super string, fields []fieldSpec, methods []methodSpec) []byte {
	nameIdx := cp.class(name)
	var superIdx uint16
	if super != "" {
		superIdx = cp.class(super)
	}

	type builtField struct{ accessFlags, nameIdx, descIdx uint16 }
	builtFields := make([]builtField, 0, len(fields))
	for _, f := range fields {
		builtFields = append(builtFields, builtField{
			accessFlags: f.accessFlags,
			nameIdx:     cp.utf8(f.name),
			descIdx:     cp.utf8(f.desc),
		})
	}

	var codeNameIdx uint16
	hasCode := false
	for _, m := range methods {
		if m.code != nil {
			hasCode = true
		}
	}
	if hasCode {
		codeNameIdx = cp.utf8("Code")
	}

	type builtMethod struct {
		accessFlags, nameIdx, descIdx uint16
		code                          []byte
		maxStack, maxLocals           uint16
	}
	builtMethods := make([]builtMethod, 0, len(methods))
	for _, m := range methods {
		builtMethods = append(builtMethods, builtMethod{
			accessFlags: m.accessFlags,
			nameIdx:     cp.utf8(m.name),
			descIdx:     cp.utf8(m.desc),
			code:        m.code,
			maxStack:    m.maxStack,
			maxLocals:   m.maxLocals,
		})
	}

	var out bytes.Buffer
	binary.Write(&out, binary.BigEndian, uint32(0xCAFEBABE))
	binary.Write(&out, binary.BigEndian, uint16(0))  // minor
	binary.Write(&out, binary.BigEndian, uint16(52)) // major
	binary.Write(&out, binary.BigEndian, cp.count())
	out.Write(cp.buf.Bytes())
	binary.Write(&out, binary.BigEndian, uint16(classfile.AccPublic|classfile.AccSuper))
	binary.Write(&out, binary.BigEndian, nameIdx)
	binary.Write(&out, binary.BigEndian, superIdx)
	binary.Write(&out, binary.BigEndian, uint16(0)) // interfaces_count

	binary.Write(&out, binary.BigEndian, uint16(len(builtFields)))
	for _, f := range builtFields {
		binary.Write(&out, binary.BigEndian, f.accessFlags)
		binary.Write(&out, binary.BigEndian, f.nameIdx)
		binary.Write(&out, binary.BigEndian, f.descIdx)
		binary.Write(&out, binary.BigEndian, uint16(0)) // attributes_count
	}

	binary.Write(&out, binary.BigEndian, uint16(len(builtMethods)))
	for _, m := range builtMethods {
		binary.Write(&out, binary.BigEndian, m.accessFlags)
		binary.Write(&out, binary.BigEndian, m.nameIdx)
		binary.Write(&out, binary.BigEndian, m.descIdx)
		if m.code == nil {
			binary.Write(&out, binary.BigEndian, uint16(0)) // attributes_count: native/abstract, no Code
			continue
		}
		binary.Write(&out, binary.BigEndian, uint16(1)) // attributes_count: one Code attribute

		var codeBody bytes.Buffer
		binary.Write(&codeBody, binary.BigEndian, m.maxStack)
		binary.Write(&codeBody, binary.BigEndian, m.maxLocals)
		binary.Write(&codeBody, binary.BigEndian, uint32(len(m.code)))
		codeBody.Write(m.code)
		binary.Write(&codeBody, binary.BigEndian, uint16(0)) // exception_table_length
		binary.Write(&codeBody, binary.BigEndian, uint16(0)) // attributes_count

		binary.Write(&out, binary.BigEndian, codeNameIdx)
		binary.Write(&out, binary.BigEndian, uint32(codeBody.Len()))
		out.Write(codeBody.Bytes())
	}

	binary.Write(&out, binary.BigEndian, uint16(0)) // class attributes_count
	return out.Bytes()
}

func nativeMethod(name, desc string, static bool) methodSpec {
	flags := uint16(classfile.AccPublic | classfile.AccNative)
	if static {
		flags |= classfile.AccStatic
	}
	return methodSpec{name: name, desc: desc, accessFlags: flags}
}

type fakeClasspath map[string][]byte

func (c fakeClasspath) ReadClass(name string) ([]byte, error) {
	data, ok := c[name]
	if !ok {
		return nil, classloader_NotFoundError(name)
	}
	return data, nil
}

// classloader_NotFoundError avoids importing classloader's own
// unexported sentinel; any error value satisfies Require's contract.
func classloader_NotFoundError(name string) error {
	return &classNotFoundErr{name}
}

type classNotFoundErr struct{ name string }

func (e *classNotFoundErr) Error() string { return "class not found: " + e.name }

// testClasses returns a classpath with the handful of JDK classes
// these tests exercise, each just complete enough (right fields,
// right native method signatures) for the bindings under test.
func testClasses() fakeClasspath {
	classes := fakeClasspath{}

	objCP := newCPBuilder()
	classes["java/lang/Object"] = buildClass(objCP, "java/lang/Object", "", nil, []methodSpec{
		{name: "<init>", desc: "()V", accessFlags: classfile.AccPublic, maxStack: 0, maxLocals: 1, code: []byte{0xb1}},
		nativeMethod("hashCode", "()I", false),
		nativeMethod("getClass", "()Ljava/lang/Class;", false),
	})

	classCP := newCPBuilder()
	classes["java/lang/Class"] = buildClass(classCP, "java/lang/Class", "java/lang/Object", nil, []methodSpec{
		nativeMethod("getPrimitiveClass", "(Ljava/lang/String;)Ljava/lang/Class;", true),
	})

	strCP := newCPBuilder()
	classes["java/lang/String"] = buildClass(strCP, "java/lang/String", "java/lang/Object",
		[]fieldSpec{{name: "value", desc: "[C", accessFlags: classfile.AccPrivate}},
		[]methodSpec{nativeMethod("intern", "()Ljava/lang/String;", false)})

	excCP := newCPBuilder()
	classes["java/lang/Throwable"] = buildClass(excCP, "java/lang/Throwable", "java/lang/Object",
		[]fieldSpec{{name: "detailMessage", desc: "Ljava/lang/String;", accessFlags: classfile.AccPrivate}}, nil)

	aioobeCP := newCPBuilder()
	classes["java/lang/ArrayIndexOutOfBoundsException"] = buildClass(aioobeCP, "java/lang/ArrayIndexOutOfBoundsException", "java/lang/Throwable", nil, nil)

	mathCP := newCPBuilder()
	classes["java/lang/Math"] = buildClass(mathCP, "java/lang/Math", "java/lang/Object", nil, []methodSpec{
		nativeMethod("sqrt", "(D)D", true),
	})

	floatCP := newCPBuilder()
	classes["java/lang/Float"] = buildClass(floatCP, "java/lang/Float", "java/lang/Object", nil, []methodSpec{
		nativeMethod("floatToRawIntBits", "(F)I", true),
		nativeMethod("intBitsToFloat", "(I)F", true),
	})

	return classes
}

func newTestEngine(t *testing.T) (*runtime.Engine, *runtime.Thread) {
	t.Helper()
	classes := testClasses()
	dict := classloader.NewDictionary()
	e := runtime.NewEngine(nil, dict)
	e.Boot = classloader.NewBootstrapLoader(classes, dict, e.MethodInvoker)
	th := e.NewThread(nil)
	Register(e)
	return e, th
}

func requireInstance(t *testing.T, e *runtime.Engine, th *runtime.Thread, className string) oop.Oop {
	t.Helper()
	klass, err := e.Boot.Require(th.ID, className)
	if err != nil {
		t.Fatalf("Require(%s): %v", className, err)
	}
	if err := e.Boot.EnsureInitialized(th.ID, klass); err != nil {
		t.Fatalf("EnsureInitialized(%s): %v", className, err)
	}
	return oop.FromRef(oop.NewInstance(klass))
}

func invokeNative(t *testing.T, e *runtime.Engine, th *runtime.Thread, owner *oop.Klass, name, desc string, args []oop.Oop) oop.Oop {
	t.Helper()
	method := owner.LookupMethod(name, desc)
	if method == nil {
		t.Fatalf("no method %s.%s%s", owner.Name, name, desc)
	}
	result, err := e.Invoke(th, method, args, true)
	if err != nil {
		t.Fatalf("invoking %s.%s%s: %v", owner.Name, name, desc, err)
	}
	return result
}

func TestObjectHashCodeIsStableAndDistinct(t *testing.T) {
	e, th := newTestEngine(t)
	objKlass, _ := e.Boot.Require(th.ID, "java/lang/Object")

	a := requireInstance(t, e, th, "java/lang/Object")
	b := requireInstance(t, e, th, "java/lang/Object")

	h1 := invokeNative(t, e, th, objKlass, "hashCode", "()I", []oop.Oop{a})
	h2 := invokeNative(t, e, th, objKlass, "hashCode", "()I", []oop.Oop{a})
	h3 := invokeNative(t, e, th, objKlass, "hashCode", "()I", []oop.Oop{b})

	if h1.I != h2.I {
		t.Errorf("hashCode not stable across calls: %d != %d", h1.I, h2.I)
	}
	if h1.I == h3.I {
		t.Errorf("distinct objects got the same hashCode: %d", h1.I)
	}
}

func TestObjectGetClassRoundTrip(t *testing.T) {
	e, th := newTestEngine(t)
	objKlass, _ := e.Boot.Require(th.ID, "java/lang/Object")
	inst := requireInstance(t, e, th, "java/lang/Object")

	mirror := invokeNative(t, e, th, objKlass, "getClass", "()Ljava/lang/Class;", []oop.Oop{inst})
	if mirror.IsNull() {
		t.Fatal("getClass returned null")
	}
	m, ok := mirror.Ref.Data.(*oop.MirrorData)
	if !ok || m.Target != objKlass {
		t.Errorf("getClass mirror target = %v, want %s", m, objKlass.Name)
	}
}

func TestStringInternContentEquality(t *testing.T) {
	e, th := newTestEngine(t)
	strKlass, _ := e.Boot.Require(th.ID, "java/lang/String")

	s1, err := e.NewJavaString(th, "hello")
	if err != nil {
		t.Fatal(err)
	}
	s2, err := e.NewJavaString(th, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if s1 == s2 {
		t.Fatal("test setup bug: distinct NewJavaString calls returned the same Reference")
	}

	i1 := invokeNative(t, e, th, strKlass, "intern", "()Ljava/lang/String;", []oop.Oop{oop.FromRef(s1)})
	i2 := invokeNative(t, e, th, strKlass, "intern", "()Ljava/lang/String;", []oop.Oop{oop.FromRef(s2)})

	if i1.Ref != i2.Ref {
		t.Errorf("intern() of equal-content distinct strings did not converge: %p != %p", i1.Ref, i2.Ref)
	}
}

func TestClassGetPrimitiveClassAndAssignability(t *testing.T) {
	e, th := newTestEngine(t)
	classKlass, _ := e.Boot.Require(th.ID, "java/lang/Class")

	nameRef, err := e.NewJavaString(th, "int")
	if err != nil {
		t.Fatal(err)
	}
	intMirror := invokeNative(t, e, th, classKlass, "getPrimitiveClass", "(Ljava/lang/String;)Ljava/lang/Class;", []oop.Oop{oop.FromRef(nameRef)})
	if intMirror.IsNull() {
		t.Fatal("getPrimitiveClass(int) returned null")
	}
	m := intMirror.Ref.Data.(*oop.MirrorData)
	if !m.IsPrimitive || m.Name != "int" {
		t.Errorf("getPrimitiveClass(int) = %+v, want IsPrimitive Name=int", m)
	}

	again := invokeNative(t, e, th, classKlass, "getPrimitiveClass", "(Ljava/lang/String;)Ljava/lang/Class;", []oop.Oop{oop.FromRef(nameRef)})
	if intMirror.Ref != again.Ref {
		t.Error("getPrimitiveClass(int) is not cached to a single mirror instance")
	}
}

func TestSystemArraycopyObjectArray(t *testing.T) {
	e, th := newTestEngine(t)
	arrKlass, err := e.Boot.Require(th.ID, "[Ljava/lang/Object;")
	if err != nil {
		t.Fatal(err)
	}

	a := requireInstance(t, e, th, "java/lang/Object")
	b := requireInstance(t, e, th, "java/lang/Object")
	src := oop.FromRef(oop.NewReference(&oop.ObjectArrayData{Klass: arrKlass, Elements: []oop.Oop{a, b, oop.Null()}}))
	dst := oop.FromRef(oop.NewReference(&oop.ObjectArrayData{Klass: arrKlass, Elements: make([]oop.Oop, 3)}))

	if err := arraycopy(e, th, []oop.Oop{src, oop.Int(0), dst, oop.Int(0), oop.Int(3)}); err != nil {
		t.Fatalf("arraycopy: %v", err)
	}
	dstData := dst.Ref.Data.(*oop.ObjectArrayData)
	if dstData.Elements[0].Ref != a.Ref || dstData.Elements[1].Ref != b.Ref {
		t.Errorf("arraycopy did not copy elements correctly: %+v", dstData.Elements)
	}
}

func TestSystemArraycopyOutOfBounds(t *testing.T) {
	e, th := newTestEngine(t)
	arrKlass, err := e.Boot.Require(th.ID, "[Ljava/lang/Object;")
	if err != nil {
		t.Fatal(err)
	}
	src := oop.FromRef(oop.NewReference(&oop.ObjectArrayData{Klass: arrKlass, Elements: make([]oop.Oop, 2)}))
	dst := oop.FromRef(oop.NewReference(&oop.ObjectArrayData{Klass: arrKlass, Elements: make([]oop.Oop, 2)}))

	err = arraycopy(e, th, []oop.Oop{src, oop.Int(0), dst, oop.Int(0), oop.Int(5)})
	if err == nil {
		t.Fatal("expected an ArrayIndexOutOfBoundsException for an over-length copy")
	}
	if !th.HasException() {
		t.Fatal("arraycopy bounds failure did not record a pending exception")
	}
}

func TestMathSqrtAndFloatBits(t *testing.T) {
	e, th := newTestEngine(t)
	mathKlass, err := e.Boot.Require(th.ID, "java/lang/Math")
	if err != nil {
		t.Fatal(err)
	}
	result := invokeNative(t, e, th, mathKlass, "sqrt", "(D)D", []oop.Oop{oop.Double(16.0)})
	if result.D != 4.0 {
		t.Errorf("Math.sqrt(16.0) = %v, want 4.0", result.D)
	}

	floatKlass, err := e.Boot.Require(th.ID, "java/lang/Float")
	if err != nil {
		t.Fatal(err)
	}
	bits := invokeNative(t, e, th, floatKlass, "floatToRawIntBits", "(F)I", []oop.Oop{oop.Float(1.0)})
	back := invokeNative(t, e, th, floatKlass, "intBitsToFloat", "(I)F", []oop.Oop{bits})
	if back.F != 1.0 {
		t.Errorf("floatToRawIntBits/intBitsToFloat round trip = %v, want 1.0", back.F)
	}
}
