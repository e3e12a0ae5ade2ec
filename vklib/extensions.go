package vklib

import (
	vk "github.com/vulkan-go/vulkan"
)

// InstanceExtensions lists the instance extensions available on the
// platform. Grounded on the teacher's extensions.go free function of the
// same name.
func InstanceExtensions() ([]string, error) {
	var count uint32
	ret := vk.EnumerateInstanceExtensionProperties("", &count, nil)
	if err := FromResult(ret, "EnumerateInstanceExtensionProperties(count)"); err != nil {
		return nil, err
	}
	list := make([]vk.ExtensionProperties, count)
	ret = vk.EnumerateInstanceExtensionProperties("", &count, list)
	if err := FromResult(ret, "EnumerateInstanceExtensionProperties(list)"); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(list))
	for _, ext := range list {
		ext.Deref()
		names = append(names, vk.ToString(ext.ExtensionName[:]))
	}
	return names, nil
}

// DeviceExtensions lists the extensions available on the given physical
// device. Grounded on the teacher's extensions.go DeviceExtensions.
func DeviceExtensions(gpu vk.PhysicalDevice) ([]string, error) {
	var count uint32
	ret := vk.EnumerateDeviceExtensionProperties(gpu, "", &count, nil)
	if err := FromResult(ret, "EnumerateDeviceExtensionProperties(count)"); err != nil {
		return nil, err
	}
	list := make([]vk.ExtensionProperties, count)
	ret = vk.EnumerateDeviceExtensionProperties(gpu, "", &count, list)
	if err := FromResult(ret, "EnumerateDeviceExtensionProperties(list)"); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(list))
	for _, ext := range list {
		ext.Deref()
		names = append(names, vk.ToString(ext.ExtensionName[:]))
	}
	return names, nil
}

// ValidationLayers lists the validation layers available on the platform.
// Grounded on the teacher's extensions.go ValidationLayers.
func ValidationLayers() ([]string, error) {
	var count uint32
	ret := vk.EnumerateInstanceLayerProperties(&count, nil)
	if err := FromResult(ret, "EnumerateInstanceLayerProperties(count)"); err != nil {
		return nil, err
	}
	list := make([]vk.LayerProperties, count)
	ret = vk.EnumerateInstanceLayerProperties(&count, list)
	if err := FromResult(ret, "EnumerateInstanceLayerProperties(list)"); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(list))
	for _, l := range list {
		l.Deref()
		names = append(names, vk.ToString(l.LayerName[:]))
	}
	return names, nil
}

// extensionSet generalizes the teacher's BaseInstanceExtensions /
// BaseDeviceExtensions / BaseLayerExtensions (extensions_2.go) — three
// structurally identical wanted/required/actual filters — into one type
// shared across all three axes per spec §4.1 ("Optional extensions are
// filtered by support and by rules...; duplicate appends are idempotent").
type extensionSet struct {
	required []string
	optional []string
	actual   []string
	// skipIfNotEnabled mirrors spec §4.1's "skip X if Y not enabled" rule:
	// key X is only added when value Y is already present in the resolved set.
	skipIfNotEnabled map[string]string
}

func newExtensionSet(required, optional, actual []string) *extensionSet {
	return &extensionSet{required: required, optional: optional, actual: actual}
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// Missing returns the subset of required extensions absent from actual.
func (e *extensionSet) Missing() []string {
	var missing []string
	for _, req := range e.required {
		if !contains(e.actual, req) {
			missing = append(missing, req)
		}
	}
	return missing
}

// Resolve returns the final extension list: every required extension, plus
// every optional extension that is both supported and not excluded by a
// skipIfNotEnabled dependency rule. Appends are idempotent (duplicates
// collapse), matching spec §4.1.
func (e *extensionSet) Resolve() []string {
	seen := make(map[string]bool, len(e.required)+len(e.optional))
	var out []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, req := range e.required {
		add(req)
	}
	for _, opt := range e.optional {
		if !contains(e.actual, opt) {
			continue
		}
		if dep, ok := e.skipIfNotEnabled[opt]; ok && !seen[dep] {
			continue
		}
		add(opt)
	}
	return out
}
