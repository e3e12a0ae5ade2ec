// Package config holds free-form, possibly-linked property bundles.
// Grounded on the teacher's Usage property bag (usage.go): a named bundle
// of properties with an optional "linked" fallback bundle. The teacher's
// map[string]{string,int,bool,float32} shape is kept for free-form
// backend-specific hints a window-system Target backend wants to stash.
// The options spec §4.1 names (only_compute_queue, selected_gpu_index, ...)
// are typed fields of vklib.Options, which is what vklib.CreateFrom takes;
// nothing in this package is read by vklib.
package config

// Bundle is a named, possibly-linked set of free-form properties, grounded
// on usage.go's Usage type. A Target backend (outside this module's scope)
// can stash display-specific hints here (e.g. "Display" -> "Window") the
// way the teacher's test/render_test.go does via NewUsage("Vulkan",
// 5).String_props["Display"] = "Window".
type Bundle struct {
	Name    string
	Strings map[string]string
	Ints    map[string]int
	Bools   map[string]bool
	Floats  map[string]float32
	Linked  *Bundle
}

// New allocates a Bundle with the given name and map pre-sizing hint,
// mirroring the teacher's NewUsage(name, default_size).
func New(name string, sizeHint int) *Bundle {
	return &Bundle{
		Name:    name,
		Strings: make(map[string]string, sizeHint),
		Ints:    make(map[string]int, sizeHint),
		Bools:   make(map[string]bool, sizeHint),
		Floats:  make(map[string]float32, sizeHint),
	}
}

// HasLinked reports whether this bundle falls back to another one, mirroring
// the teacher's Usage.HasNext.
func (b *Bundle) HasLinked() bool { return b.Linked != nil }

// String looks up a string property, falling back to the linked bundle (if
// any) when absent from this one.
func (b *Bundle) String(key string) (string, bool) {
	if v, ok := b.Strings[key]; ok {
		return v, true
	}
	if b.Linked != nil {
		return b.Linked.String(key)
	}
	return "", false
}
