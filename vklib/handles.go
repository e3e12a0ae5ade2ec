package vklib

// HandleKind enumerates the OS-exportable forms of Vulkan external memory,
// fence, and semaphore objects named in the GLOSSARY ("Fence handle /
// semaphore handle") and spec §4.4's export/import contract.
type HandleKind int

const (
	HandleOpaqueFD HandleKind = iota
	HandleOpaqueWin32
	HandleD3D11Texture
	HandleAHardwareBuffer
	HandleSyncFD
	HandleD3D12Fence
)

func (k HandleKind) String() string {
	switch k {
	case HandleOpaqueFD:
		return "OpaqueFD"
	case HandleOpaqueWin32:
		return "OpaqueWin32"
	case HandleD3D11Texture:
		return "D3D11Texture"
	case HandleAHardwareBuffer:
		return "AHardwareBuffer"
	case HandleSyncFD:
		return "SyncFD"
	case HandleD3D12Fence:
		return "D3D12Fence"
	default:
		return "Unknown"
	}
}

// MemoryHandle wraps an exported Vulkan external memory handle. Ownership
// semantics vary per platform (spec §4.4 "Export (native side)" /
// GLOSSARY); Close documents and enforces exactly the rule for its Kind so
// that callers never have to special-case platform cleanup themselves. Per
// spec §9 DESIGN NOTES, every OS-handle kind gets its own newtype with a
// documented Drop instead of the teacher's/original's raw fd/HANDLE value
// passed around untyped.
type MemoryHandle struct {
	Kind HandleKind
	// Raw is the platform value: an fd (int64) on Unix kinds, a Windows
	// HANDLE value, or an AHardwareBuffer pointer, stored as a uintptr-sized
	// opaque payload. The core never interprets Raw itself — only the
	// platform-specific collaborator that produced/consumes it does.
	Raw    uintptr
	closed bool
	// release is supplied by the platform layer that created the handle; it
	// performs the fd close / CloseHandle / AHardwareBuffer_release call.
	release func(uintptr)
}

// NewMemoryHandle wraps a raw OS memory handle together with the release
// callback appropriate for its Kind. The swapchain/import code supplies
// release; this type only enforces "close exactly once".
func NewMemoryHandle(kind HandleKind, raw uintptr, release func(uintptr)) *MemoryHandle {
	return &MemoryHandle{Kind: kind, Raw: raw, release: release}
}

// Close releases the handle exactly once. Per spec §6 "Swapchain handle
// interchange": Unix fds and Win32 handles close on each side, Android
// AHardwareBuffer references are acquired/released explicitly. Calling Close
// twice is a programmer bug, not a runtime condition, so it panics via the
// invariant channel rather than returning an error.
func (h *MemoryHandle) Close() {
	Invariant(!h.closed, "MemoryHandle.Close", "handle closed twice")
	h.closed = true
	if h.release != nil {
		h.release(h.Raw)
	}
}

// FenceHandle and SemaphoreHandle follow the same single-close discipline as
// MemoryHandle but are kept as distinct types (rather than a shared base)
// because spec §4.1 tracks their support matrices independently
// (fence_handle_supported vs semaphore_handle_supported).
type FenceHandle struct {
	Kind    HandleKind
	Raw     uintptr
	closed  bool
	release func(uintptr)
}

func NewFenceHandle(kind HandleKind, raw uintptr, release func(uintptr)) *FenceHandle {
	return &FenceHandle{Kind: kind, Raw: raw, release: release}
}

func (h *FenceHandle) Close() {
	Invariant(!h.closed, "FenceHandle.Close", "handle closed twice")
	h.closed = true
	if h.release != nil {
		h.release(h.Raw)
	}
}

// SemaphoreKind distinguishes binary from timeline semaphores for the
// per-sync-object-type support flags in spec §3's "external" record.
type SemaphoreKind int

const (
	SemaphoreBinary SemaphoreKind = iota
	SemaphoreTimeline
)

type SemaphoreHandle struct {
	Kind    HandleKind
	Sync    SemaphoreKind
	Raw     uintptr
	closed  bool
	release func(uintptr)
}

func NewSemaphoreHandle(kind HandleKind, sync SemaphoreKind, raw uintptr, release func(uintptr)) *SemaphoreHandle {
	return &SemaphoreHandle{Kind: kind, Sync: sync, Raw: raw, release: release}
}

// Commit takes ownership of the sync handle passed to layer_commit (spec
// §4.8: "Commit takes ownership of a sync handle; on discard paths the
// handle is still consumed and closed"). Close may be called from either
// the normal commit path or a discard path, but only once overall: a second
// call panics via the invariant channel, so the compositor base package is
// responsible for calling it exactly once regardless of which path is taken.
func (h *SemaphoreHandle) Close() {
	Invariant(!h.closed, "SemaphoreHandle.Close", "handle closed twice")
	h.closed = true
	if h.release != nil {
		h.release(h.Raw)
	}
}
