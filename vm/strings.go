package vm

import (
	"fmt"
	"strings"

	"github.com/jay-lang/jay/values"
)

// NewString allocates a char-array Object holding one Char element per rune
// of s. There is no dedicated string primitive: text is an Array of Char,
// the same as any other array, so indexing and ARRAYLIKE_INDEX_KEY fall out
// of the array machinery for free.
func (p *Process) NewString(s string) (values.Ref, error) {
	obj, err := p.Heap.NewArray()
	if err != nil {
		return values.NilRef, err
	}
	ref := obj.Ref()
	for _, r := range s {
		p.Heap.ArrayAppend(ref, values.Char(int8(r)))
	}
	return ref, nil
}

// StringValue decodes an Array-class object back to a Go string for native
// functions operating on the language's char-array strings; succeeds only
// when every element is a Char.
func (p *Process) StringValue(ref values.Ref) (string, bool) {
	return p.stringFromArray(ref)
}

// stringFromArray decodes an Array-class object back to a Go string,
// succeeding only when every element is a Char.
func (p *Process) stringFromArray(ref values.Ref) (string, bool) {
	obj, ok := p.Heap.Get(ref)
	if !ok || obj.Class != "Array" {
		return "", false
	}
	n := p.Heap.ArrayLen(ref)
	var b strings.Builder
	for i := 0; i < n; i++ {
		e, _ := p.Heap.ArrayGet(ref, i)
		if e.Kind() != values.KindChar {
			return "", false
		}
		b.WriteRune(rune(e.CharValue()))
	}
	return b.String(), true
}

// Render stringifies an Entity for PRNT and for error messages: char-arrays
// render as text, other objects as a class-tagged handle, primitives via
// their own String method.
func (p *Process) Render(e values.Entity) string {
	if e.Kind() == values.KindObject {
		if s, ok := p.stringFromArray(e.ObjectRef()); ok {
			return s
		}
		if obj, ok := p.Heap.Get(e.ObjectRef()); ok {
			return fmt.Sprintf("<%s #%d>", obj.Class, e.ObjectRef())
		}
	}
	return e.String()
}

// unquote strips the surrounding quotes a string literal's Arg.Text carries.
// Escape processing is the compiler's job at lowering time; by the time a
// literal reaches the tape it is already the exact text to materialize.
func unquote(lit string) string {
	if len(lit) >= 2 && lit[0] == '"' && lit[len(lit)-1] == '"' {
		return lit[1 : len(lit)-1]
	}
	return lit
}
