// Package natives binds the native-method surface of the JDK's core
// classes — the part of the class library that cannot be expressed as
// bytecode because it touches the host (console I/O, the clock,
// identity hashes, raw memory/field offsets) — to Go functions.
//
// This package only binds methods the real JDK itself marks native:
// everything else (String.equals, StringBuilder.append, ...) runs as
// ordinary bytecode loaded from JAVA_HOME.
package natives

import (
	"github.com/corvusvm/corvus/pkg/oop"
	"github.com/corvusvm/corvus/pkg/runtime"
)

// Register installs every binding this package knows about onto e.
// Called once during VM bootstrap (cmd/jvm's startup sequence).
func Register(e *runtime.Engine) {
	registerObject(e)
	registerClass(e)
	registerSystem(e)
	registerString(e)
	registerThread(e)
	registerMath(e)
	registerFloatDouble(e)
	registerThrowable(e)
	registerReflect(e)
	registerMisc(e)
}

// registerNoArgVoid wires a no-op `(...)V` native, the shape of
// registerNatives/initIDs — JNI-era hooks every JDK class calls once
// at class-init time to bind native function pointers, meaningless
// here since every binding in this package is already wired at
// startup.
func registerNoArgVoid(e *runtime.Engine, class, name, descriptor string) {
	e.RegisterNative(class, name, descriptor, func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		return oop.Oop{}, nil
	})
}
