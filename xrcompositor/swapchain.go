package xrcompositor

import (
	"github.com/dieselvk/xrcompositor/vklib"
	"github.com/dieselvk/xrcompositor/vkswap"
)

// CreateSwapchain implements spec §6's create_swapchain: allocates a
// native swapchain, exports one OS handle per image, and appends it to the
// compositor's swapchain list. handleKind is checked for export support by
// vkswap.NewNative and tagged on each returned handle; the memory itself is
// always exported as an opaque fd (see Native.ExportHandle).
func (c *Compositor) CreateSwapchain(info vkswap.CreateInfo, imageCount int, handleKind vklib.HandleKind) (*vkswap.Native, []*vklib.MemoryHandle, error) {
	native, err := vkswap.NewNative(c.bundle, info, imageCount, handleKind)
	if err != nil {
		return nil, nil, err
	}

	handles := make([]*vklib.MemoryHandle, native.ImageCount())
	for i := range handles {
		h, err := native.ExportHandle(i, handleKind)
		if err != nil {
			for _, done := range handles[:i] {
				if done != nil {
					done.Close()
				}
			}
			return nil, nil, err
		}
		handles[i] = h
	}

	c.mu.Lock()
	c.swapchains = append(c.swapchains, native)
	c.mu.Unlock()

	return native, handles, nil
}

// ImportSwapchain implements spec §6's import_swapchain: client-side
// only, binds the given OS handles to freshly created images matching
// info exactly, per spec §4.4's Client half.
func (c *Compositor) ImportSwapchain(info vkswap.CreateInfo, handles []*vklib.MemoryHandle, externalQueueFamily uint32) (*vkswap.Client, error) {
	return vkswap.Import(c.bundle, c.pool, info, handles, externalQueueFamily)
}

// DestroySwapchain enqueues a native swapchain for deferred destruction
// once its refcount reaches zero, per spec §4.4: "destruction is
// deferred... closing a swapchain appends it to the queue."
func (c *Compositor) DestroySwapchain(n *vkswap.Native) {
	if n.ReleaseRef() {
		c.gc.Enqueue(n)
	}
}
