package runtime

import (
	"math"

	"github.com/corvusvm/corvus/pkg/oop"
	"github.com/pkg/errors"
)

// run drives the frame-based stack machine (C7, §4.5): read one
// opcode, dispatch, mutate stack/locals/pc, repeat until the frame
// returns or an exception escapes it unhandled. Covers the full Oop
// tagged union and the ~200-opcode standard instruction set.
func (e *Engine) run(t *Thread, frame *Frame) error {
	code := frame.Method.Code
	for frame.pc < len(frame.code) {
		opcodePC := frame.pc
		opcode := frame.readU8()

		err := e.step(t, frame, opcode)
		if err != nil {
			if texc, ok := err.(*ThrownException); ok {
				_ = texc // already pending on t; fall through to handler search
			} else {
				return errors.Wrapf(err, "in %s.%s%s at pc=%d", frame.Class.Name, frame.Method.Name, frame.Method.Descriptor, opcodePC)
			}
		}

		if t.HasException() {
			excOop := t.PendingException()
			excKlass := receiverKlass(excOop)
			handler, herr := findExceptionHandler(code, opcodePC, excKlass, frame.Class, e, t)
			if herr != nil {
				return herr
			}
			if handler != nil {
				frame.ClearStack()
				frame.Push(excOop)
				frame.SetPC(int(handler.HandlerPC))
				t.ClearException()
				continue
			}
			return &ThrownException{Exception: excOop}
		}

		if frame.returned {
			return nil
		}
	}
	return nil
}

// step executes a single opcode. Object/array/invocation opcodes that
// need class-loader cooperation live in interp_objects.go and
// interp_invoke.go; everything else (constants, loads/stores, stack
// shuffling, arithmetic, conversions, comparisons, plain control flow)
// is handled here.
func (e *Engine) step(t *Thread, f *Frame, opcode byte) error {
	switch opcode {
	case OpNop:

	case OpAconstNull:
		f.Push(oop.Null())
	case OpIconstM1:
		f.Push(oop.Int(-1))
	case OpIconst0:
		f.Push(oop.Int(0))
	case OpIconst1:
		f.Push(oop.Int(1))
	case OpIconst2:
		f.Push(oop.Int(2))
	case OpIconst3:
		f.Push(oop.Int(3))
	case OpIconst4:
		f.Push(oop.Int(4))
	case OpIconst5:
		f.Push(oop.Int(5))
	case OpLconst0:
		f.Push(oop.Long(0))
	case OpLconst1:
		f.Push(oop.Long(1))
	case OpFconst0:
		f.Push(oop.Float(0))
	case OpFconst1:
		f.Push(oop.Float(1))
	case OpFconst2:
		f.Push(oop.Float(2))
	case OpDconst0:
		f.Push(oop.Double(0))
	case OpDconst1:
		f.Push(oop.Double(1))

	case OpBipush:
		f.Push(oop.Int(int32(f.readI8())))
	case OpSipush:
		f.Push(oop.Int(int32(f.readI16())))

	case OpLdc:
		return e.execLdc(t, f, uint16(f.readU8()))
	case OpLdcW:
		return e.execLdc(t, f, f.readU16())
	case OpLdc2W:
		return e.execLdc2W(f, f.readU16())

	// --- loads ---
	case OpIload, OpFload, OpAload, OpLload, OpDload:
		f.Push(f.GetLocal(f.readVarIndex()))
	case OpIload0, OpFload0, OpAload0:
		f.Push(f.GetLocal(0))
	case OpIload1, OpFload1, OpAload1:
		f.Push(f.GetLocal(1))
	case OpIload2, OpFload2, OpAload2:
		f.Push(f.GetLocal(2))
	case OpIload3, OpFload3, OpAload3:
		f.Push(f.GetLocal(3))
	case OpLload0, OpDload0:
		f.Push(f.GetLocal(0))
	case OpLload1, OpDload1:
		f.Push(f.GetLocal(1))
	case OpLload2, OpDload2:
		f.Push(f.GetLocal(2))
	case OpLload3, OpDload3:
		f.Push(f.GetLocal(3))

	// --- stores ---
	case OpIstore, OpFstore, OpAstore, OpLstore, OpDstore:
		f.SetLocal(f.readVarIndex(), f.Pop())
	case OpIstore0, OpFstore0, OpAstore0, OpLstore0, OpDstore0:
		f.SetLocal(0, f.Pop())
	case OpIstore1, OpFstore1, OpAstore1, OpLstore1, OpDstore1:
		f.SetLocal(1, f.Pop())
	case OpIstore2, OpFstore2, OpAstore2, OpLstore2, OpDstore2:
		f.SetLocal(2, f.Pop())
	case OpIstore3, OpFstore3, OpAstore3, OpLstore3, OpDstore3:
		f.SetLocal(3, f.Pop())

	case OpIaload, OpLaload, OpFaload, OpDaload, OpAaload, OpBaload, OpCaload, OpSaload:
		return e.execArrayLoad(t, f, opcode)
	case OpIastore, OpLastore, OpFastore, OpDastore, OpAastore, OpBastore, OpCastore, OpSastore:
		return e.execArrayStore(t, f, opcode)

	// --- stack ---
	case OpPop:
		f.Pop()
	case OpPop2:
		v := f.Pop()
		if !v.IsCategory2() {
			f.Pop()
		}
	case OpDup:
		v := f.Pop()
		f.Push(v)
		f.Push(v)
	case OpDupX1:
		v1 := f.Pop()
		v2 := f.Pop()
		f.Push(v1)
		f.Push(v2)
		f.Push(v1)
	case OpDupX2:
		v1 := f.Pop()
		v2 := f.Pop()
		if v2.IsCategory2() {
			f.Push(v1)
			f.Push(v2)
			f.Push(v1)
		} else {
			v3 := f.Pop()
			f.Push(v1)
			f.Push(v3)
			f.Push(v2)
			f.Push(v1)
		}
	case OpDup2:
		v1 := f.Pop()
		if v1.IsCategory2() {
			f.Push(v1)
			f.Push(v1)
		} else {
			v2 := f.Pop()
			f.Push(v2)
			f.Push(v1)
			f.Push(v2)
			f.Push(v1)
		}
	case OpDup2X1:
		v1 := f.Pop()
		if v1.IsCategory2() {
			v2 := f.Pop()
			f.Push(v1)
			f.Push(v2)
			f.Push(v1)
		} else {
			v2 := f.Pop()
			v3 := f.Pop()
			f.Push(v2)
			f.Push(v1)
			f.Push(v3)
			f.Push(v2)
			f.Push(v1)
		}
	case OpDup2X2:
		v1 := f.Pop()
		if v1.IsCategory2() {
			v2 := f.Pop()
			if v2.IsCategory2() {
				f.Push(v1)
				f.Push(v2)
				f.Push(v1)
			} else {
				v3 := f.Pop()
				f.Push(v1)
				f.Push(v3)
				f.Push(v2)
				f.Push(v1)
			}
		} else {
			v2 := f.Pop()
			v3 := f.Pop()
			if v3.IsCategory2() {
				f.Push(v2)
				f.Push(v1)
				f.Push(v3)
				f.Push(v2)
				f.Push(v1)
			} else {
				v4 := f.Pop()
				f.Push(v2)
				f.Push(v1)
				f.Push(v4)
				f.Push(v3)
				f.Push(v2)
				f.Push(v1)
			}
		}
	case OpSwap:
		v1 := f.Pop()
		v2 := f.Pop()
		f.Push(v1)
		f.Push(v2)

	// --- arithmetic ---
	case OpIadd:
		b, a := f.Pop().I, f.Pop().I
		f.Push(oop.Int(a + b))
	case OpLadd:
		b, a := f.Pop().L, f.Pop().L
		f.Push(oop.Long(a + b))
	case OpFadd:
		b, a := f.Pop().F, f.Pop().F
		f.Push(oop.Float(a + b))
	case OpDadd:
		b, a := f.Pop().D, f.Pop().D
		f.Push(oop.Double(a + b))
	case OpIsub:
		b, a := f.Pop().I, f.Pop().I
		f.Push(oop.Int(a - b))
	case OpLsub:
		b, a := f.Pop().L, f.Pop().L
		f.Push(oop.Long(a - b))
	case OpFsub:
		b, a := f.Pop().F, f.Pop().F
		f.Push(oop.Float(a - b))
	case OpDsub:
		b, a := f.Pop().D, f.Pop().D
		f.Push(oop.Double(a - b))
	case OpImul:
		b, a := f.Pop().I, f.Pop().I
		f.Push(oop.Int(a * b))
	case OpLmul:
		b, a := f.Pop().L, f.Pop().L
		f.Push(oop.Long(a * b))
	case OpFmul:
		b, a := f.Pop().F, f.Pop().F
		f.Push(oop.Float(a * b))
	case OpDmul:
		b, a := f.Pop().D, f.Pop().D
		f.Push(oop.Double(a * b))
	case OpIdiv:
		b, a := f.Pop().I, f.Pop().I
		if b == 0 {
			return e.throwSimple(t, "java/lang/ArithmeticException", "/ by zero")
		}
		if a == math.MinInt32 && b == -1 {
			f.Push(oop.Int(math.MinInt32))
		} else {
			f.Push(oop.Int(a / b))
		}
	case OpLdiv:
		b, a := f.Pop().L, f.Pop().L
		if b == 0 {
			return e.throwSimple(t, "java/lang/ArithmeticException", "/ by zero")
		}
		if a == math.MinInt64 && b == -1 {
			f.Push(oop.Long(math.MinInt64))
		} else {
			f.Push(oop.Long(a / b))
		}
	case OpFdiv:
		b, a := f.Pop().F, f.Pop().F
		f.Push(oop.Float(a / b))
	case OpDdiv:
		b, a := f.Pop().D, f.Pop().D
		f.Push(oop.Double(a / b))
	case OpIrem:
		b, a := f.Pop().I, f.Pop().I
		if b == 0 {
			return e.throwSimple(t, "java/lang/ArithmeticException", "/ by zero")
		}
		if a == math.MinInt32 && b == -1 {
			f.Push(oop.Int(0))
		} else {
			f.Push(oop.Int(a % b))
		}
	case OpLrem:
		b, a := f.Pop().L, f.Pop().L
		if b == 0 {
			return e.throwSimple(t, "java/lang/ArithmeticException", "/ by zero")
		}
		if a == math.MinInt64 && b == -1 {
			f.Push(oop.Long(0))
		} else {
			f.Push(oop.Long(a % b))
		}
	case OpFrem:
		b, a := f.Pop().F, f.Pop().F
		f.Push(oop.Float(float32(math.Mod(float64(a), float64(b)))))
	case OpDrem:
		b, a := f.Pop().D, f.Pop().D
		f.Push(oop.Double(math.Mod(a, b)))
	case OpIneg:
		f.Push(oop.Int(-f.Pop().I))
	case OpLneg:
		f.Push(oop.Long(-f.Pop().L))
	case OpFneg:
		f.Push(oop.Float(-f.Pop().F))
	case OpDneg:
		f.Push(oop.Double(-f.Pop().D))

	case OpIshl:
		s, v := f.Pop().I, f.Pop().I
		f.Push(oop.Int(v << (uint32(s) & 31)))
	case OpLshl:
		s, v := f.Pop().I, f.Pop().L
		f.Push(oop.Long(v << (uint64(s) & 63)))
	case OpIshr:
		s, v := f.Pop().I, f.Pop().I
		f.Push(oop.Int(v >> (uint32(s) & 31)))
	case OpLshr:
		s, v := f.Pop().I, f.Pop().L
		f.Push(oop.Long(v >> (uint64(s) & 63)))
	case OpIushr:
		s, v := f.Pop().I, f.Pop().I
		f.Push(oop.Int(int32(uint32(v) >> (uint32(s) & 31))))
	case OpLushr:
		s, v := f.Pop().I, f.Pop().L
		f.Push(oop.Long(int64(uint64(v) >> (uint64(s) & 63))))
	case OpIand:
		b, a := f.Pop().I, f.Pop().I
		f.Push(oop.Int(a & b))
	case OpLand:
		b, a := f.Pop().L, f.Pop().L
		f.Push(oop.Long(a & b))
	case OpIor:
		b, a := f.Pop().I, f.Pop().I
		f.Push(oop.Int(a | b))
	case OpLor:
		b, a := f.Pop().L, f.Pop().L
		f.Push(oop.Long(a | b))
	case OpIxor:
		b, a := f.Pop().I, f.Pop().I
		f.Push(oop.Int(a ^ b))
	case OpLxor:
		b, a := f.Pop().L, f.Pop().L
		f.Push(oop.Long(a ^ b))

	case OpIinc:
		wasWide := f.wide
		idx := f.readVarIndex()
		var delta int32
		if wasWide {
			delta = int32(f.readI16())
		} else {
			delta = int32(f.readI8())
		}
		v := f.GetLocal(idx)
		f.SetLocal(idx, oop.Int(v.I+delta))

	case OpI2l:
		f.Push(oop.Long(int64(f.Pop().I)))
	case OpI2f:
		f.Push(oop.Float(float32(f.Pop().I)))
	case OpI2d:
		f.Push(oop.Double(float64(f.Pop().I)))
	case OpL2i:
		f.Push(oop.Int(int32(f.Pop().L)))
	case OpL2f:
		f.Push(oop.Float(float32(f.Pop().L)))
	case OpL2d:
		f.Push(oop.Double(float64(f.Pop().L)))
	case OpF2i:
		f.Push(oop.Int(f2i(f.Pop().F)))
	case OpF2l:
		f.Push(oop.Long(f2l(f.Pop().F)))
	case OpF2d:
		f.Push(oop.Double(float64(f.Pop().F)))
	case OpD2i:
		f.Push(oop.Int(d2i(f.Pop().D)))
	case OpD2l:
		f.Push(oop.Long(d2l(f.Pop().D)))
	case OpD2f:
		f.Push(oop.Float(float32(f.Pop().D)))
	case OpI2b:
		f.Push(oop.Int(int32(int8(f.Pop().I))))
	case OpI2c:
		f.Push(oop.Int(int32(uint16(f.Pop().I))))
	case OpI2s:
		f.Push(oop.Int(int32(int16(f.Pop().I))))

	case OpLcmp:
		b, a := f.Pop().L, f.Pop().L
		f.Push(oop.Int(cmp64(a, b)))
	case OpFcmpl:
		b, a := f.Pop().F, f.Pop().F
		f.Push(oop.Int(fcmp(float64(a), float64(b), -1)))
	case OpFcmpg:
		b, a := f.Pop().F, f.Pop().F
		f.Push(oop.Int(fcmp(float64(a), float64(b), 1)))
	case OpDcmpl:
		b, a := f.Pop().D, f.Pop().D
		f.Push(oop.Int(fcmp(a, b, -1)))
	case OpDcmpg:
		b, a := f.Pop().D, f.Pop().D
		f.Push(oop.Int(fcmp(a, b, 1)))

	case OpIfeq:
		e.branchIf(f, f.Pop().I == 0)
	case OpIfne:
		e.branchIf(f, f.Pop().I != 0)
	case OpIflt:
		e.branchIf(f, f.Pop().I < 0)
	case OpIfge:
		e.branchIf(f, f.Pop().I >= 0)
	case OpIfgt:
		e.branchIf(f, f.Pop().I > 0)
	case OpIfle:
		e.branchIf(f, f.Pop().I <= 0)
	case OpIfIcmpeq:
		b, a := f.Pop().I, f.Pop().I
		e.branchIf(f, a == b)
	case OpIfIcmpne:
		b, a := f.Pop().I, f.Pop().I
		e.branchIf(f, a != b)
	case OpIfIcmplt:
		b, a := f.Pop().I, f.Pop().I
		e.branchIf(f, a < b)
	case OpIfIcmpge:
		b, a := f.Pop().I, f.Pop().I
		e.branchIf(f, a >= b)
	case OpIfIcmpgt:
		b, a := f.Pop().I, f.Pop().I
		e.branchIf(f, a > b)
	case OpIfIcmple:
		b, a := f.Pop().I, f.Pop().I
		e.branchIf(f, a <= b)
	case OpIfAcmpeq:
		b, a := f.Pop(), f.Pop()
		e.branchIf(f, sameRef(a, b))
	case OpIfAcmpne:
		b, a := f.Pop(), f.Pop()
		e.branchIf(f, !sameRef(a, b))
	case OpIfnull:
		e.branchIf(f, f.Pop().IsNull())
	case OpIfnonnull:
		e.branchIf(f, !f.Pop().IsNull())

	case OpGoto:
		branchPC := f.pc - 1
		off := f.readI16()
		f.pc = branchPC + int(off)
	case OpGotoW:
		branchPC := f.pc - 1
		off := f.readI32()
		f.pc = branchPC + int(off)
	case OpJsr:
		branchPC := f.pc - 1
		off := f.readI16()
		ret := f.pc
		f.pc = branchPC + int(off)
		f.Push(oop.Int(int32(ret)))
	case OpJsrW:
		branchPC := f.pc - 1
		off := f.readI32()
		ret := f.pc
		f.pc = branchPC + int(off)
		f.Push(oop.Int(int32(ret)))
	case OpRet:
		idx := f.readVarIndex()
		f.pc = int(f.GetLocal(idx).I)

	case OpTableswitch:
		e.execTableswitch(f)
	case OpLookupswitch:
		e.execLookupswitch(f)

	case OpIreturn, OpFreturn, OpAreturn, OpLreturn, OpDreturn:
		f.Return = f.Pop()
		f.returned = true
	case OpReturn:
		f.returned = true

	case OpWide:
		f.wide = true

	case OpNew, OpNewarray, OpAnewarray, OpMultianewarray, OpArraylength,
		OpAthrow, OpCheckcast, OpInstanceof, OpMonitorenter, OpMonitorexit,
		OpGetstatic, OpPutstatic, OpGetfield, OpPutfield:
		return e.execObjectOp(t, f, opcode)

	case OpInvokevirtual, OpInvokespecial, OpInvokestatic, OpInvokeinterface, OpInvokedynamic:
		return e.execInvokeOp(t, f, opcode)

	default:
		return errors.Errorf("unimplemented opcode 0x%02X", opcode)
	}
	return nil
}

func (e *Engine) branchIf(f *Frame, taken bool) {
	branchPC := f.pc - 1
	off := f.readI16()
	if taken {
		f.pc = branchPC + int(off)
	}
}

func sameRef(a, b oop.Oop) bool {
	if a.IsNull() || b.IsNull() {
		return a.IsNull() == b.IsNull()
	}
	return a.Ref == b.Ref
}

func cmp64(a, b int64) int32 {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}

// fcmp implements fcmpl/fcmpg and dcmpl/dcmpg: nanResult is the value
// pushed when either operand is NaN (-1 for the 'l' variant, 1 for 'g').
func fcmp(a, b float64, nanResult int32) int32 {
	if math.IsNaN(a) || math.IsNaN(b) {
		return nanResult
	}
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}

func f2i(v float32) int32 {
	if math.IsNaN(float64(v)) {
		return 0
	}
	if v >= math.MaxInt32 {
		return math.MaxInt32
	}
	if v <= math.MinInt32 {
		return math.MinInt32
	}
	return int32(v)
}

func f2l(v float32) int64 {
	if math.IsNaN(float64(v)) {
		return 0
	}
	if v >= math.MaxInt64 {
		return math.MaxInt64
	}
	if v <= math.MinInt64 {
		return math.MinInt64
	}
	return int64(v)
}

func d2i(v float64) int32 {
	if math.IsNaN(v) {
		return 0
	}
	if v >= math.MaxInt32 {
		return math.MaxInt32
	}
	if v <= math.MinInt32 {
		return math.MinInt32
	}
	return int32(v)
}

func d2l(v float64) int64 {
	if math.IsNaN(v) {
		return 0
	}
	if v >= math.MaxInt64 {
		return math.MaxInt64
	}
	if v <= math.MinInt64 {
		return math.MinInt64
	}
	return int64(v)
}
