// Package jsonx wraps encoding/json with the navigable node type the
// calibration file format (spec §6, xrcalib) and any other ad-hoc JSON blob
// in this module need. Grounded directly on original_source's
// u_json.hpp JSONNode/JSONBuilder: the same operator[]/asX() navigation
// idiom, and the same push-based tree builder, re-expressed with Go types
// instead of a cJSON-backed variant. encoding/json is used rather than a
// third-party codec because no JSON library of its own appears anywhere in
// the example pack — cogentcore-core's base/iox/jsonx wraps the very same
// stdlib package for the same reason, which is the library this file is
// modeled on.
package jsonx

import (
	"encoding/json"
	"fmt"
)

// Node wraps an arbitrary decoded JSON value (the result of
// json.Unmarshal into interface{}) and offers the same typed-accessor,
// default-on-mismatch API as u_json.hpp's JSONNode, rather than forcing
// every caller to do their own type assertions on interface{}.
type Node struct {
	value   interface{}
	present bool
	name    string
}

// Parse decodes a JSON document into a navigable root Node.
func Parse(data []byte) (Node, error) {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return Node{}, fmt.Errorf("jsonx: parse: %w", err)
	}
	return Node{value: v, present: true}, nil
}

// Wrap builds a Node directly from an already-decoded Go value, useful for
// re-navigating a value built by Builder without a serialize/parse round
// trip.
func Wrap(v interface{}) Node {
	return Node{value: v, present: true}
}

// Field retrieves a field from an object node, mirroring
// JSONNode::operator[](key). An absent field or a non-object receiver
// yields a Node with Present() == false rather than an error or panic, the
// same "warn and return invalid node" tolerance u_json.hpp uses.
func (n Node) Field(key string) Node {
	obj, ok := n.value.(map[string]interface{})
	if !ok {
		return Node{name: key}
	}
	v, ok := obj[key]
	if !ok {
		return Node{name: key}
	}
	return Node{value: v, present: true, name: key}
}

// Index retrieves an element from an array node, mirroring
// JSONNode::operator[](int).
func (n Node) Index(i int) Node {
	arr, ok := n.value.([]interface{})
	if !ok || i < 0 || i >= len(arr) {
		return Node{}
	}
	return Node{value: arr[i], present: true}
}

// Present reports whether this node resolved to an actual value.
func (n Node) Present() bool { return n.present }

// Name is the object key this node was retrieved under, if any.
func (n Node) Name() string { return n.name }

func (n Node) IsObject() bool { _, ok := n.value.(map[string]interface{}); return ok }
func (n Node) IsArray() bool  { _, ok := n.value.([]interface{}); return ok }
func (n Node) IsString() bool { _, ok := n.value.(string); return ok }
func (n Node) IsNumber() bool { _, ok := n.value.(float64); return ok }
func (n Node) IsBool() bool   { _, ok := n.value.(bool); return ok }
func (n Node) IsNull() bool   { return n.present && n.value == nil }

// HasKey mirrors JSONNode::hasKey.
func (n Node) HasKey(key string) bool {
	obj, ok := n.value.(map[string]interface{})
	if !ok {
		return false
	}
	_, ok = obj[key]
	return ok
}

// AsString returns the node's string value, or otherwise if it is not a
// string.
func (n Node) AsString(otherwise string) string {
	if s, ok := n.value.(string); ok {
		return s
	}
	return otherwise
}

// AsInt returns the node's numeric value truncated to int, or otherwise if
// it is not a number.
func (n Node) AsInt(otherwise int) int {
	if f, ok := n.value.(float64); ok {
		return int(f)
	}
	return otherwise
}

// AsFloat64 returns the node's numeric value, or otherwise if it is not a
// number.
func (n Node) AsFloat64(otherwise float64) float64 {
	if f, ok := n.value.(float64); ok {
		return f
	}
	return otherwise
}

// AsBool returns the node's boolean value, or otherwise if it is not a
// bool.
func (n Node) AsBool(otherwise bool) bool {
	if b, ok := n.value.(bool); ok {
		return b
	}
	return otherwise
}

// Keys returns the sorted-by-insertion-unstable key set of an object node
// (Go maps have no order; callers that need the original document's key
// order should keep their own schema instead of relying on this).
func (n Node) Keys() []string {
	obj, ok := n.value.(map[string]interface{})
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	return keys
}

// Len reports an array node's element count, or 0 for anything else.
func (n Node) Len() int {
	arr, ok := n.value.([]interface{})
	if !ok {
		return 0
	}
	return len(arr)
}

// Raw exposes the underlying decoded value for callers that need to hand it
// to encoding/json directly (e.g. json.Marshal on a sub-tree).
func (n Node) Raw() interface{} { return n.value }

// String renders the node back to a compact JSON string, mirroring
// JSONNode::toString(false).
func (n Node) String() string {
	b, err := json.Marshal(n.value)
	if err != nil {
		return fmt.Sprintf("<jsonx: unmarshalable: %v>", err)
	}
	return string(b)
}
