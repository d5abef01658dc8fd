package runtime

import (
	"github.com/corvusvm/corvus/pkg/oop"
)

// NewJavaString is the exported form of newJavaString, for pkg/natives
// bindings (String.valueOf, StringBuilder, Throwable construction)
// that live outside this package but need the same char[] layout.
func (e *Engine) NewJavaString(t *Thread, s string) (*oop.Reference, error) {
	return e.newJavaString(t, s)
}

// JavaStringValue is the exported form of javaStringValue.
func JavaStringValue(ref *oop.Reference) string { return javaStringValue(ref) }

// newJavaString allocates a java.lang.String instance with its `value`
// char[] field populated from s. String interning and the rest of
// java.lang.String's native surface live in the natives package; this
// is the minimal construction path the interpreter and exception
// runtime both need (ldc of a String constant, Throwable messages).
func (e *Engine) newJavaString(t *Thread, s string) (*oop.Reference, error) {
	klass, err := e.Boot.Require(t.ID, "java/lang/String")
	if err != nil {
		return nil, err
	}
	if err := e.Boot.EnsureInitialized(t.ID, klass); err != nil {
		return nil, err
	}

	utf16 := encodeUTF16(s)
	charArrayKlass, err := e.Boot.Require(t.ID, "[C")
	if err != nil {
		return nil, err
	}
	arr := oop.NewTypeArray(charArrayKlass, oop.PrimChar, len(utf16))
	copy(arr.Data.(*oop.TypeArrayData).Chars, utf16)

	ref := oop.NewInstance(klass)
	if f := klass.FieldID("value", "[C", false); f != nil {
		ref.Data.(*oop.InstanceData).FieldValues[f.Offset] = oop.FromRef(arr)
	}
	return ref, nil
}

// javaStringValue reads back a Go string from a java.lang.String
// instance's `value` char[] field — the inverse of newJavaString, used
// to format exception messages and println arguments.
func javaStringValue(ref *oop.Reference) string {
	if ref == nil {
		return "null"
	}
	inst, ok := ref.Data.(*oop.InstanceData)
	if !ok {
		return ""
	}
	f := inst.Klass.FieldID("value", "[C", false)
	if f == nil {
		return ""
	}
	v := inst.FieldValues[f.Offset]
	if v.IsNull() {
		return ""
	}
	chars := v.Ref.Data.(*oop.TypeArrayData).Chars
	return decodeUTF16(chars)
}

// encodeUTF16 converts a UTF-8 Go string into the UTF-16 code units
// java.lang.String's `value` field stores (surrogate pairs for
// astral-plane runes, matching JVMS char semantics).
func encodeUTF16(s string) []uint16 {
	var out []uint16
	for _, r := range s {
		if r <= 0xFFFF {
			out = append(out, uint16(r))
			continue
		}
		r -= 0x10000
		out = append(out, uint16(0xD800+(r>>10)), uint16(0xDC00+(r&0x3FF)))
	}
	return out
}

func decodeUTF16(units []uint16) string {
	runes := make([]rune, 0, len(units))
	for i := 0; i < len(units); i++ {
		u := units[i]
		if u >= 0xD800 && u <= 0xDBFF && i+1 < len(units) && units[i+1] >= 0xDC00 && units[i+1] <= 0xDFFF {
			r := (rune(u)-0xD800)<<10 + (rune(units[i+1]) - 0xDC00) + 0x10000
			runes = append(runes, r)
			i++
			continue
		}
		runes = append(runes, rune(u))
	}
	return string(runes)
}
