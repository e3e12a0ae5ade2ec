package vkswap

import (
	"syscall"

	"github.com/dieselvk/xrcompositor/vklib"
	vk "github.com/vulkan-go/vulkan"
)

// ExportHandle returns the OS handle for image index, per spec §4.4's
// "export_handle(image_idx) -> OsHandle". Ownership of the returned
// handle transfers to the caller on Unix FD platforms (the caller closes
// it); on Windows the kernel object is duped; on Android the
// AHardwareBuffer is refcount-incremented — this implementation documents
// and uses the Unix FD semantics, matching the teacher's Linux-only
// platform assumptions (platform.go has no Windows/Android backend).
func (n *Native) ExportHandle(index int, kind vklib.HandleKind) (*vklib.MemoryHandle, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if index < 0 || index >= len(n.images) {
		return nil, vklib.NewError(vklib.KindVulkan, "image index out of range")
	}

	getFdInfo := vk.MemoryGetFdInfoKHR{
		SType:      vk.StructureTypeMemoryGetFDInfoKhr,
		Memory:     n.images[index].Memory,
		HandleType: vk.ExternalMemoryHandleTypeFlagBits(vk.ExternalMemoryHandleTypeOpaqueFdBit),
	}
	var fd int
	ret := vk.GetMemoryFdKHR(n.bundle.Device, &getFdInfo, &fd)
	if err := vklib.FromResult(ret, "GetMemoryFdKHR"); err != nil {
		return nil, err
	}

	return vklib.NewMemoryHandle(kind, uintptr(fd), closeUnixFD), nil
}

// closeUnixFD is the release callback for a Unix memory handle: spec §6
// "Swapchain handle interchange" requires Unix fds to close exactly once
// on each side, which MemoryHandle.Close enforces by calling this once.
func closeUnixFD(raw uintptr) {
	syscall.Close(int(raw))
}
