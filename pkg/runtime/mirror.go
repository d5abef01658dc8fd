package runtime

import "github.com/corvusvm/corvus/pkg/oop"

// classMirror returns k's java.lang.Class instance, lazily allocating
// and caching it on k.Mirror the first time it's needed (ldc of a
// Class constant, the monitor of a synchronized static method,
// Object.getClass()). Full reflective population of the mirror's own
// fields (C11) is reflectutil's job; this only guarantees the mirror
// exists and carries its Target.
func (e *Engine) classMirror(t *Thread, k *oop.Klass) (*oop.Reference, error) {
	if k.Mirror != nil {
		return k.Mirror.Ref, nil
	}

	var classKlass *oop.Klass
	if k.Name == "java/lang/Class" {
		classKlass = k
	} else {
		var err error
		classKlass, err = e.Boot.Require(t.ID, "java/lang/Class")
		if err != nil {
			return nil, err
		}
		if err := e.Boot.EnsureInitialized(t.ID, classKlass); err != nil {
			return nil, err
		}
	}

	data := &oop.MirrorData{Klass: classKlass, Target: k}
	if classKlass.IsInstance() {
		data.FieldValues = make([]oop.Oop, classKlass.Instance.NumInstanceFields)
		oop.InitFieldDefaults(classKlass, data.FieldValues)
	}
	ref := oop.NewReference(data)
	mirrorOop := oop.FromRef(ref)
	k.Mirror = &mirrorOop
	return ref, nil
}

// ClassMirror is the exported form of classMirror, for pkg/natives and
// pkg/reflectutil bindings (Object.getClass, Class.forName0,
// Class.getSuperclass, and the reflect mirror populators) that need a
// Klass's java.lang.Class instance without duplicating the laziness.
func (e *Engine) ClassMirror(t *Thread, k *oop.Klass) (*oop.Reference, error) {
	return e.classMirror(t, k)
}
