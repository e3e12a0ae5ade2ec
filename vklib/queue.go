package vklib

import (
	vk "github.com/vulkan-go/vulkan"
)

// queueFamilies is the per-physical-device queue family table, grounded on
// the teacher's queue.go CoreQueue (GetPhysicalDeviceQueueFamilyProperties
// enumeration + IsDeviceSuitable/FindSuitableQueue family search).
type queueFamilies struct {
	properties []vk.QueueFamilyProperties
}

func queryQueueFamilies(gpu vk.PhysicalDevice) *queueFamilies {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, nil)
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, props)
	for i := range props {
		props[i].Deref()
	}
	return &queueFamilies{properties: props}
}

func (q *queueFamilies) hasBits(index int, bits vk.QueueFlagBits) bool {
	return vk.QueueFlags(q.properties[index].QueueFlags)&vk.QueueFlags(bits) == vk.QueueFlags(bits)
}

func (q *queueFamilies) hasAnyBits(index int, bits vk.QueueFlagBits) bool {
	return vk.QueueFlags(q.properties[index].QueueFlags)&vk.QueueFlags(bits) != 0
}

// selectGraphics picks the first family with the GRAPHICS bit, per spec
// §4.1 "Queue selection: a graphics queue (first family with GRAPHICS bit)".
func (q *queueFamilies) selectGraphics() (int, bool) {
	for i := range q.properties {
		if q.hasBits(i, vk.QueueGraphicsBit) {
			return i, true
		}
	}
	return 0, false
}

// selectCompute implements spec §4.1's only_compute_queue rule: "prefer
// COMPUTE-without-GRAPHICS then any COMPUTE".
func (q *queueFamilies) selectCompute() (int, bool) {
	for i := range q.properties {
		if q.hasBits(i, vk.QueueComputeBit) && !q.hasBits(i, vk.QueueGraphicsBit) {
			return i, true
		}
	}
	for i := range q.properties {
		if q.hasBits(i, vk.QueueComputeBit) {
			return i, true
		}
	}
	return 0, false
}

// SelectQueueFamily implements the full selection rule of spec §4.1.
func (q *queueFamilies) SelectQueueFamily(onlyCompute bool) (int, error) {
	if onlyCompute {
		if idx, ok := q.selectCompute(); ok {
			return idx, nil
		}
		return 0, NewError(KindNoDevice, "no compute-capable queue family")
	}
	if idx, ok := q.selectGraphics(); ok {
		return idx, nil
	}
	return 0, NewError(KindNoDevice, "no graphics-capable queue family")
}
