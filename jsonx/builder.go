package jsonx

import "fmt"

// Builder constructs a JSON tree incrementally, grounded on u_json.hpp's
// JSONBuilder pushdown automaton. Go's closures and slices let the stack be
// a plain []frame instead of a hand-rolled state table: each Array/Object
// call pushes a frame, each End pops it and splices the finished value into
// its parent, and a bare Value at the root finishes the build immediately.
type Builder struct {
	stack      []frame
	root       interface{}
	rootIsSet  bool
	pendingKey string
	haveKey    bool
	err        error
}

type frameKind int

const (
	frameArray frameKind = iota
	frameObject
)

type frame struct {
	kind  frameKind
	array []interface{}
	obj   map[string]interface{}
}

// NewBuilder returns an empty Builder ready for Array/Object/Value calls.
func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) fail(format string, args ...interface{}) {
	if b.err == nil {
		b.err = fmt.Errorf("jsonx: builder: "+format, args...)
	}
}

// Key starts a key/value pair inside the currently open object.
func (b *Builder) Key(name string) *Builder {
	if b.err != nil {
		return b
	}
	if len(b.stack) == 0 || b.stack[len(b.stack)-1].kind != frameObject {
		b.fail("Key(%q) called outside an open object", name)
		return b
	}
	if b.haveKey {
		b.fail("Key(%q) called while key %q is still pending a value", name, b.pendingKey)
		return b
	}
	b.pendingKey = name
	b.haveKey = true
	return b
}

// Array opens a new array, either as the document root, an array element,
// or an object value (the pending Key's value).
func (b *Builder) Array() *Builder {
	if b.err != nil {
		return b
	}
	b.stack = append(b.stack, frame{kind: frameArray})
	return b
}

// Object opens a new object.
func (b *Builder) Object() *Builder {
	if b.err != nil {
		return b
	}
	b.stack = append(b.stack, frame{kind: frameObject, obj: map[string]interface{}{}})
	return b
}

// End closes the innermost open array or object, splicing it into its
// parent container (or setting it as the finished root).
func (b *Builder) End() *Builder {
	if b.err != nil {
		return b
	}
	if len(b.stack) == 0 {
		b.fail("End() with nothing open")
		return b
	}
	top := b.stack[len(b.stack)-1]
	b.stack = b.stack[:len(b.stack)-1]

	var finished interface{}
	switch top.kind {
	case frameArray:
		if top.array == nil {
			top.array = []interface{}{}
		}
		finished = top.array
	case frameObject:
		finished = top.obj
	}
	return b.place(finished)
}

// Value pushes a scalar (string, number, bool, or nil) into the current
// array element or object value slot, or sets it as the whole document if
// called at the root with nothing open. Numbers are stored as float64, the
// same representation Parse produces, so Node's numeric accessors read a
// built tree the same way as a parsed one.
func (b *Builder) Value(v interface{}) *Builder {
	if b.err != nil {
		return b
	}
	switch n := v.(type) {
	case string, bool, nil, float64:
	case int:
		v = float64(n)
	case int32:
		v = float64(n)
	case int64:
		v = float64(n)
	case float32:
		v = float64(n)
	case uint32:
		v = float64(n)
	default:
		b.fail("Value(%v): unsupported scalar type %T", v, v)
		return b
	}
	return b.place(v)
}

// place routes a finished value (scalar, array, or object) to wherever it
// belongs given the current stack top.
func (b *Builder) place(v interface{}) *Builder {
	if len(b.stack) == 0 {
		if b.rootIsSet {
			b.fail("a value was already built at the root")
			return b
		}
		b.root = v
		b.rootIsSet = true
		return b
	}
	top := &b.stack[len(b.stack)-1]
	switch top.kind {
	case frameArray:
		top.array = append(top.array, v)
	case frameObject:
		if !b.haveKey {
			b.fail("value %v pushed into an object with no pending key", v)
			return b
		}
		top.obj[b.pendingKey] = v
		b.haveKey = false
		b.pendingKey = ""
	}
	return b
}

// Build finishes construction and returns the root Node. It fails if any
// array/object is still open, a key is pending a value, or an earlier call
// already recorded an error.
func (b *Builder) Build() (Node, error) {
	if b.err != nil {
		return Node{}, b.err
	}
	if len(b.stack) != 0 {
		return Node{}, fmt.Errorf("jsonx: builder: %d container(s) left open", len(b.stack))
	}
	if b.haveKey {
		return Node{}, fmt.Errorf("jsonx: builder: key %q never given a value", b.pendingKey)
	}
	if !b.rootIsSet {
		return Node{}, fmt.Errorf("jsonx: builder: nothing built")
	}
	return Wrap(b.root), nil
}
