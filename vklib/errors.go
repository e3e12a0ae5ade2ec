// Package vklib owns the Vulkan instance/device/queue handles shared by the
// rest of the compositor core, along with the cached capability tables every
// other subsystem borrows a reference to instead of copying.
package vklib

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// Kind identifies one of the recoverable error categories from spec §7.
// Unlike the teacher's orPanic/Fatal pair, a Kind is always carried in a
// returned error — Invariant (see invariant.go) is the only panic
// path left, and it is reserved for programmer bugs, never for these.
type Kind int

const (
	KindVulkan Kind = iota
	KindExtensionMissing
	KindNoDevice
	KindDeviceCreate
	KindInstanceCreate
	KindHandleUnsupported
	KindFormatUnsupported
	KindTargetLost
	KindMissedDeadline
	KindShortRead
	KindSchemaMismatch
	KindInsufficientPermissions
	KindImportExportUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindVulkan:
		return "Vulkan"
	case KindExtensionMissing:
		return "ExtensionMissing"
	case KindNoDevice:
		return "NoDevice"
	case KindDeviceCreate:
		return "DeviceCreate"
	case KindInstanceCreate:
		return "InstanceCreate"
	case KindHandleUnsupported:
		return "HandleUnsupported"
	case KindFormatUnsupported:
		return "FormatUnsupported"
	case KindTargetLost:
		return "TargetLost"
	case KindMissedDeadline:
		return "MissedDeadline"
	case KindShortRead:
		return "ShortRead"
	case KindSchemaMismatch:
		return "SchemaMismatch"
	case KindInsufficientPermissions:
		return "InsufficientPermissions"
	case KindImportExportUnsupported:
		return "ImportExportUnsupported"
	default:
		return "Unknown"
	}
}

// Error is the typed error every core operation returns for a recoverable
// condition in spec §7's table. Code is the underlying vk.Result when Kind
// is KindVulkan and a Vulkan call produced the failure, else vk.Success.
type Error struct {
	Kind    Kind
	Code    vk.Result
	Detail  string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("vklib: %s (vk=%d)", e.Kind, e.Code)
	}
	return fmt.Sprintf("vklib: %s: %s (vk=%d)", e.Kind, e.Detail, e.Code)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Recoverable reports whether spec §7's policy treats this error as a
// transient condition the renderer should recover from locally (rebuild the
// swapchain, retry acquire once) rather than propagate to the creator.
func (e *Error) Recoverable() bool {
	if e.Kind == KindVulkan {
		return e.Code == vk.ErrorOutOfDate || e.Code == vk.Suboptimal
	}
	return false
}

// FromResult wraps a non-success vk.Result into a *Error of KindVulkan, or
// returns nil when ret is vk.Success. Mirrors the teacher's newError in
// errors.go but returns instead of being fed to panic/orPanic.
func FromResult(ret vk.Result, detail string) error {
	if ret == vk.Success {
		return nil
	}
	if ret == vk.ErrorExtensionNotPresent || ret == vk.ErrorFeatureNotPresent {
		return &Error{Kind: KindExtensionMissing, Code: ret, Detail: detail}
	}
	return &Error{Kind: KindVulkan, Code: ret, Detail: detail}
}

// NewError constructs a *Error of the given Kind without an underlying
// vk.Result (e.g. NoDevice, HandleUnsupported).
func NewError(kind Kind, detail string) error {
	return &Error{Kind: kind, Code: vk.Success, Detail: detail}
}
