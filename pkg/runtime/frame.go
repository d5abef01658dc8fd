package runtime

import (
	"github.com/corvusvm/corvus/pkg/classfile"
	"github.com/corvusvm/corvus/pkg/oop"
)

// Frame is one method activation (§3.6): operand stack and locals
// hold the full Oop tagged union rather than int/ref-only slots, plus
// the owning method, class pointer, wide flag, and return slot a
// frame needs to drive the interpreter loop (pending-exception state
// lives on Thread instead, since §3.7 puts it there).
type Frame struct {
	Method *oop.Method
	Class  *oop.Klass

	code []byte
	pc   int

	stack  *operandStack
	locals *localVars

	wide     bool
	returned bool

	Return oop.Oop
}

// NewFrame builds a Frame for method on class, with locals sized to
// max_locals and stack sized to max_stack per the method's Code
// attribute.
func NewFrame(method *oop.Method, class *oop.Klass) *Frame {
	code := method.Code
	return &Frame{
		Method: method,
		Class:  class,
		code:   code.Code,
		stack:  newOperandStack(int(code.MaxStack)),
		locals: newLocalVars(int(code.MaxLocals)),
	}
}

func (f *Frame) PC() int      { return f.pc }
func (f *Frame) SetPC(pc int) { f.pc = pc }

func (f *Frame) Push(v oop.Oop)    { f.stack.push(v) }
func (f *Frame) Pop() oop.Oop      { return f.stack.pop() }
func (f *Frame) Peek() oop.Oop     { return f.stack.peek() }
func (f *Frame) ClearStack()       { f.stack.clear() }
func (f *Frame) StackSize() int    { return f.stack.size() }

func (f *Frame) GetLocal(i int) oop.Oop    { return f.locals.get(i) }
func (f *Frame) SetLocal(i int, v oop.Oop) { f.locals.set(i, v) }

func (f *Frame) readU8() uint8 {
	v := f.code[f.pc]
	f.pc++
	return v
}

func (f *Frame) readI8() int8 { return int8(f.readU8()) }

func (f *Frame) readU16() uint16 {
	v := uint16(f.code[f.pc])<<8 | uint16(f.code[f.pc+1])
	f.pc += 2
	return v
}

func (f *Frame) readI16() int16 { return int16(f.readU16()) }

func (f *Frame) readU32() uint32 {
	v := uint32(f.code[f.pc])<<24 | uint32(f.code[f.pc+1])<<16 | uint32(f.code[f.pc+2])<<8 | uint32(f.code[f.pc+3])
	f.pc += 4
	return v
}

func (f *Frame) readI32() int32 { return int32(f.readU32()) }

// readVarIndex reads a local-variable index, 16-bit if the one-shot
// wide flag is set (consumed here), 8-bit otherwise.
func (f *Frame) readVarIndex() int {
	if f.wide {
		f.wide = false
		return int(f.readU16())
	}
	return int(f.readU8())
}

// constantPool is a convenience accessor to the owning class's parsed
// constant pool; it is read through f.Class on each call, not cached
// on the Frame.
func (f *Frame) constantPool() []classfile.ConstantPoolEntry {
	return f.Class.Instance.ClassFile.ConstantPool
}
