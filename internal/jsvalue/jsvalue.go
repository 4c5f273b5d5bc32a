// Package jsvalue builds JavaScript literal values and encodes them
// deterministically.
package jsvalue

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/phobologic/judc/internal/model"
)

// Value is a JavaScript literal.
type Value interface {
	encode(e *encoder)
}

// Object is an object literal whose keys keep insertion order.
type Object struct {
	keys []string
	vals map[string]Value
	// Pos, when set, is reported to the mark callback at the object's
	// opening brace.
	Pos *model.Position
}

// NewObject returns an empty object.
func NewObject() *Object {
	return &Object{vals: make(map[string]Value)}
}

// Set assigns key. Re-setting a key keeps its original position.
func (o *Object) Set(key string, v Value) *Object {
	if _, ok := o.vals[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = v
	return o
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (Value, bool) {
	v, ok := o.vals[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	return append([]string(nil), o.keys...)
}

// Len returns the number of keys.
func (o *Object) Len() int { return len(o.keys) }

func (o *Object) encode(e *encoder) {
	if o.Pos != nil && e.mark != nil {
		e.mark(e.buf.Len(), *o.Pos)
	}
	e.buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		e.buf.WriteString(Quote(k))
		e.buf.WriteByte(':')
		o.vals[k].encode(e)
	}
	e.buf.WriteByte('}')
}

// Array is an array literal.
type Array []Value

func (a Array) encode(e *encoder) {
	e.buf.WriteByte('[')
	for i, v := range a {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		v.encode(e)
	}
	e.buf.WriteByte(']')
}

// String is a string literal.
type String string

func (s String) encode(e *encoder) { e.buf.WriteString(Quote(string(s))) }

// Number is a numeric literal.
type Number float64

func (n Number) encode(e *encoder) {
	e.buf.WriteString(strconv.FormatFloat(float64(n), 'f', -1, 64))
}

// Func is a getter function returning the JavaScript expression it holds.
type Func string

func (f Func) encode(e *encoder) {
	e.buf.WriteString("function () {return ")
	e.buf.WriteString(string(f))
	e.buf.WriteByte('}')
}

type encoder struct {
	buf  strings.Builder
	mark func(offset int, pos model.Position)
}

// Encode renders v as compact JavaScript.
func Encode(v Value) string {
	return EncodeMarked(v, nil)
}

// EncodeMarked renders v and calls mark with the byte offset of every
// object carrying a position.
func EncodeMarked(v Value, mark func(offset int, pos model.Position)) string {
	e := &encoder{mark: mark}
	v.encode(e)
	return e.buf.String()
}

// Quote returns s as a double-quoted JavaScript string literal.
func Quote(s string) string {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	// Encoding a string cannot fail.
	_ = enc.Encode(s)
	return strings.TrimSuffix(b.String(), "\n")
}
