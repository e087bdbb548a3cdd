// Package values implements the tagged Entity value used throughout the
// runtime: nil, a primitive (char/int32/float64), or a reference to a
// heap-allocated Object.
package values

import (
	"fmt"
	"math"
)

// Kind identifies the variant an Entity currently holds.
type Kind byte

const (
	KindNil Kind = iota
	KindChar
	KindInt
	KindFloat
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "Nil"
	case KindChar:
		return "Char"
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindObject:
		return "Object"
	default:
		return "Unknown"
	}
}

// Ref is an opaque handle to a heap-allocated Object. The heap package owns
// the Object bodies; values only needs a comparable identity so Entity can
// be copied by value like any other tagged union member.
type Ref uint32

// NilRef is never a valid allocation.
const NilRef Ref = 0

// Entity is the tagged value carried on the operand stack, in locals, and in
// object members. It is always safe to copy by value.
type Entity struct {
	kind  Kind
	ch    int8
	i     int32
	f     float64
	obj   Ref
}

// Nil constructs the nil entity.
func Nil() Entity { return Entity{kind: KindNil} }

// Char constructs a character primitive.
func Char(c int8) Entity { return Entity{kind: KindChar, ch: c} }

// Int constructs a 32-bit integer primitive.
func Int(i int32) Entity { return Entity{kind: KindInt, i: i} }

// Float constructs a 64-bit float primitive.
func Float(f float64) Entity { return Entity{kind: KindFloat, f: f} }

// Object wraps a heap reference as an Entity.
func Object(ref Ref) Entity { return Entity{kind: KindObject, obj: ref} }

func (e Entity) Kind() Kind   { return e.kind }
func (e Entity) IsNil() bool  { return e.kind == KindNil }
func (e Entity) IsObject() bool { return e.kind == KindObject }
func (e Entity) IsPrimitive() bool {
	return e.kind == KindChar || e.kind == KindInt || e.kind == KindFloat
}

// CharValue returns the char payload, which is zero for any other kind;
// callers check Kind first.
func (e Entity) CharValue() int8    { return e.ch }
func (e Entity) IntValue() int32    { return e.i }
func (e Entity) FloatValue() float64 { return e.f }
func (e Entity) ObjectRef() Ref     { return e.obj }

// Truthy reports falsy-ness: Nil is the only falsy entity, everything else
// -- including integer zero -- is truthy.
func (e Entity) Truthy() bool {
	return e.kind != KindNil
}

// promoted describes the common primitive type two operands are lifted to
// before an arithmetic op, following char < int < float.
type promoted byte

const (
	promotedChar promoted = iota
	promotedInt
	promotedFloat
)

func promotionOf(e Entity) promoted {
	switch e.kind {
	case KindFloat:
		return promotedFloat
	case KindInt:
		return promotedInt
	default:
		return promotedChar
	}
}

func maxPromotion(a, b promoted) promoted {
	if a > b {
		return a
	}
	return b
}

func (e Entity) asFloat() float64 {
	switch e.kind {
	case KindFloat:
		return e.f
	case KindInt:
		return float64(e.i)
	case KindChar:
		return float64(e.ch)
	default:
		return 0
	}
}

func (e Entity) asInt() int32 {
	switch e.kind {
	case KindFloat:
		return int32(e.f)
	case KindInt:
		return e.i
	case KindChar:
		return int32(e.ch)
	default:
		return 0
	}
}

// ArithError reports that an op was applied to non-primitive or
// integer-only-incompatible operands.
type ArithError struct {
	Op   string
	Lhs  Entity
	Rhs  Entity
}

func (e *ArithError) Error() string {
	return fmt.Sprintf("cannot apply %s to %s and %s", e.Op, e.Lhs.Kind(), e.Rhs.Kind())
}

func requirePrimitives(op string, a, b Entity) error {
	if !a.IsPrimitive() || !b.IsPrimitive() {
		return &ArithError{Op: op, Lhs: a, Rhs: b}
	}
	return nil
}

func fromPromotion(p promoted, f float64) Entity {
	switch p {
	case promotedFloat:
		return Float(f)
	case promotedInt:
		return Int(int32(f))
	default:
		return Char(int8(f))
	}
}

// Add implements ADD with char<int<float promotion.
func Add(a, b Entity) (Entity, error) {
	if err := requirePrimitives("ADD", a, b); err != nil {
		return Nil(), err
	}
	p := maxPromotion(promotionOf(a), promotionOf(b))
	return fromPromotion(p, a.asFloat()+b.asFloat()), nil
}

func Sub(a, b Entity) (Entity, error) {
	if err := requirePrimitives("SUB", a, b); err != nil {
		return Nil(), err
	}
	p := maxPromotion(promotionOf(a), promotionOf(b))
	return fromPromotion(p, a.asFloat()-b.asFloat()), nil
}

func Mult(a, b Entity) (Entity, error) {
	if err := requirePrimitives("MULT", a, b); err != nil {
		return Nil(), err
	}
	p := maxPromotion(promotionOf(a), promotionOf(b))
	return fromPromotion(p, a.asFloat()*b.asFloat()), nil
}

func Div(a, b Entity) (Entity, error) {
	if err := requirePrimitives("DIV", a, b); err != nil {
		return Nil(), err
	}
	p := maxPromotion(promotionOf(a), promotionOf(b))
	if p != promotedFloat && b.asFloat() == 0 {
		return Nil(), &ArithError{Op: "DIV", Lhs: a, Rhs: b}
	}
	return fromPromotion(p, a.asFloat()/b.asFloat()), nil
}

// Mod is integer-only; float operands raise.
func Mod(a, b Entity) (Entity, error) {
	if err := requirePrimitives("MOD", a, b); err != nil {
		return Nil(), err
	}
	if a.kind == KindFloat || b.kind == KindFloat {
		return Nil(), &ArithError{Op: "MOD", Lhs: a, Rhs: b}
	}
	bi := b.asInt()
	if bi == 0 {
		return Nil(), &ArithError{Op: "MOD", Lhs: a, Rhs: b}
	}
	return Int(a.asInt() % bi), nil
}

func bitwiseOnly(op string, a, b Entity) (int32, int32, error) {
	if err := requirePrimitives(op, a, b); err != nil {
		return 0, 0, err
	}
	if a.kind == KindFloat || b.kind == KindFloat {
		return 0, 0, &ArithError{Op: op, Lhs: a, Rhs: b}
	}
	return a.asInt(), b.asInt(), nil
}

func BitAnd(a, b Entity) (Entity, error) {
	x, y, err := bitwiseOnly("AND", a, b)
	if err != nil {
		return Nil(), err
	}
	return Int(x & y), nil
}

func BitOr(a, b Entity) (Entity, error) {
	x, y, err := bitwiseOnly("OR", a, b)
	if err != nil {
		return Nil(), err
	}
	return Int(x | y), nil
}

func BitXor(a, b Entity) (Entity, error) {
	x, y, err := bitwiseOnly("XOR", a, b)
	if err != nil {
		return Nil(), err
	}
	return Int(x ^ y), nil
}

// Compare orders two primitives by promoted numeric value. Returns -1/0/1.
func Compare(a, b Entity) (int, error) {
	if err := requirePrimitives("CMP", a, b); err != nil {
		return 0, err
	}
	af, bf := a.asFloat(), b.asFloat()
	switch {
	case af < bf:
		return -1, nil
	case af > bf:
		return 1, nil
	default:
		return 0, nil
	}
}

// PrimitiveEqual compares two primitives for equality using promoted value,
// following spec's char<int<float promotion rule for EQ/NEQ on primitives.
func PrimitiveEqual(a, b Entity) (bool, error) {
	if err := requirePrimitives("EQ", a, b); err != nil {
		return false, err
	}
	return a.asFloat() == b.asFloat(), nil
}

// Inc/Dec step a value by one in its own kind (float, char, otherwise int).
// Dispatch uses Inc for INC and SINC and Dec for DEC; FINC/FDEC go through
// Add/Sub with a float one instead.
func Inc(a Entity) Entity  { return addConst(a, 1) }
func Dec(a Entity) Entity  { return addConst(a, -1) }

func addConst(a Entity, delta float64) Entity {
	switch a.kind {
	case KindFloat:
		return Float(a.f + delta)
	case KindChar:
		return Char(int8(int(a.ch) + int(delta)))
	default:
		return Int(a.i + int32(delta))
	}
}

// String renders an Entity for diagnostics/PRNT; object rendering is the
// caller's responsibility since it may need heap access for member dumps.
func (e Entity) String() string {
	switch e.kind {
	case KindNil:
		return "nil"
	case KindChar:
		return string(rune(e.ch))
	case KindInt:
		return fmt.Sprintf("%d", e.i)
	case KindFloat:
		return formatFloat(e.f)
	case KindObject:
		return fmt.Sprintf("<object #%d>", e.obj)
	default:
		return "<?>"
	}
}

func formatFloat(f float64) string {
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if math.IsNaN(f) {
		return "nan"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return fmt.Sprintf("%.1f", f)
	}
	return fmt.Sprintf("%g", f)
}
