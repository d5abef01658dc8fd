package natives

import (
	"sync"

	"github.com/corvusvm/corvus/pkg/oop"
	"github.com/corvusvm/corvus/pkg/runtime"
)

// internTable is the process-wide String.intern() pool (JLS §3.10.5):
// keyed by content rather than by any particular String instance, so
// interning two distinct instances with equal content converges on the
// same Reference and satisfies intern()==intern() regardless of which
// instance either call started from.
var (
	internMu    sync.Mutex
	internTable = map[string]*oop.Reference{}
)

func registerString(e *runtime.Engine) {
	registerNoArgVoid(e, "java/lang/String", "registerNatives", "()V")

	e.RegisterNative("java/lang/String", "intern", "()Ljava/lang/String;", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		content := runtime.JavaStringValue(args[0].Ref)

		internMu.Lock()
		defer internMu.Unlock()
		if ref, ok := internTable[content]; ok {
			return oop.FromRef(ref), nil
		}
		internTable[content] = args[0].Ref
		return args[0], nil
	})

	// StringUTF16 always stores chars little-endian on this host's Go
	// []uint16 backing.
	e.RegisterNative("java/lang/StringUTF16", "isBigEndian", "()Z", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		return oop.Int(0), nil
	})
}
