package natives

import (
	"encoding/binary"
	"testing"

	"github.com/corvusvm/corvus/internal/hostenv"
	"github.com/corvusvm/corvus/pkg/classfile"
	"github.com/corvusvm/corvus/pkg/classloader"
	"github.com/corvusvm/corvus/pkg/oop"
	"github.com/corvusvm/corvus/pkg/runtime"
)

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

// propertiesTestEngine builds a classpath where java/util/Properties'
// setProperty(String,String)Object just increments a static counter,
// so initProperties's "invoke the real method once per entry" contract
// can be observed without a full Hashtable implementation.
func propertiesTestEngine(t *testing.T) (*runtime.Engine, *runtime.Thread, *oop.Klass) {
	t.Helper()
	classes := testClasses()

	sysCP := newCPBuilder()
	classes["java/lang/System"] = buildClass(sysCP, "java/lang/System", "java/lang/Object", nil, []methodSpec{
		nativeMethod("initProperties", "(Ljava/util/Properties;)Ljava/util/Properties;", true),
	})

	propsCP := newCPBuilder()
	callsFieldref := propsCP.fieldref("java/util/Properties", "calls", "I")
	code := []byte{
		0xB2, byte(callsFieldref >> 8), byte(callsFieldref), // getstatic calls
		0x04, // iconst_1
		0x60, // iadd
		0xB3, byte(callsFieldref >> 8), byte(callsFieldref), // putstatic calls
		0x01, // aconst_null
		0xB0, // areturn
	}
	classes["java/util/Properties"] = buildClass(propsCP, "java/util/Properties", "java/lang/Object",
		[]fieldSpec{{name: "calls", desc: "I", accessFlags: classfile.AccStatic}},
		[]methodSpec{
			{name: "<init>", desc: "()V", accessFlags: classfile.AccPublic, maxStack: 1, maxLocals: 1, code: []byte{0xb1}},
			{name: "setProperty", desc: "(Ljava/lang/String;Ljava/lang/String;)Ljava/lang/Object;", accessFlags: classfile.AccPublic, maxStack: 2, maxLocals: 3, code: code},
		})

	dict := classloader.NewDictionary()
	e := runtime.NewEngine(nil, dict)
	e.Boot = classloader.NewBootstrapLoader(classes, dict, e.MethodInvoker)
	th := e.NewThread(nil)
	Register(e)

	propsKlass, err := e.Boot.Require(th.ID, "java/util/Properties")
	if err != nil {
		t.Fatalf("Require(java/util/Properties): %v", err)
	}
	return e, th, propsKlass
}

func TestSystemInitPropertiesInvokesSetPropertyPerEntry(t *testing.T) {
	e, th, propsKlass := propertiesTestEngine(t)

	hostenv.JavaHome = "/opt/jdk8"
	hostenv.Classpath = "/tmp/app"
	defer func() { hostenv.JavaHome, hostenv.Classpath = "", "" }()

	if err := e.Boot.EnsureInitialized(th.ID, propsKlass); err != nil {
		t.Fatalf("EnsureInitialized(Properties): %v", err)
	}
	inst := oop.FromRef(oop.NewInstance(propsKlass))

	sysKlass, err := e.Boot.Require(th.ID, "java/lang/System")
	if err != nil {
		t.Fatalf("Require(System): %v", err)
	}
	result := invokeNative(t, e, th, sysKlass, "initProperties", "(Ljava/util/Properties;)Ljava/util/Properties;", []oop.Oop{inst})
	if result.Ref != inst.Ref {
		t.Errorf("initProperties did not return the same Properties instance")
	}

	callsField := propsKlass.FieldID("calls", "I", true)
	if callsField == nil {
		t.Fatal("no static field Properties.calls")
	}
	got := propsKlass.StaticValue(callsField.Offset).I
	want := int32(len(hostenv.Properties()))
	if got != want {
		t.Errorf("setProperty invoked %d times, want %d (one per host property)", got, want)
	}
}

func TestSystemInitPropertiesNullReceiverThrowsNPE(t *testing.T) {
	e, th, _ := propertiesTestEngine(t)
	sysKlass, err := e.Boot.Require(th.ID, "java/lang/System")
	if err != nil {
		t.Fatalf("Require(System): %v", err)
	}
	method := sysKlass.LookupMethod("initProperties", "(Ljava/util/Properties;)Ljava/util/Properties;")
	_, err = e.Invoke(th, method, []oop.Oop{oop.Null()}, true)
	if err == nil {
		t.Fatal("expected a NullPointerException for a null Properties receiver")
	}
}
