// Command xrcompd is a thin demo wiring binary: it bootstraps a VkBundle,
// RenderResources, a headless Target, and a MultiCompositor fronting one
// registered client compositor, then drives the render thread for a few
// ticks. Merged frames are logged by loggingDriver, not rendered by a
// vkrender.Renderer. Grounded on the teacher's application.go
// (Application interface) and core.go's CreateGraphicsInstance end-to-end
// bootstrap sequence, retargeted from a single triangle demo at the
// compositor stack this module implements.
package main

import (
	"log"
	"os"
	"time"

	vk "github.com/vulkan-go/vulkan"

	"github.com/dieselvk/xrcompositor/config"
	"github.com/dieselvk/xrcompositor/vklib"
	"github.com/dieselvk/xrcompositor/vkres"
	"github.com/dieselvk/xrcompositor/vkswap"
	"github.com/dieselvk/xrcompositor/vktarget"
	"github.com/dieselvk/xrcompositor/xrcompositor"
	"github.com/dieselvk/xrcompositor/xrmulti"
	"github.com/dieselvk/xrcompositor/xrpacer"
	"github.com/dieselvk/xrcompositor/xrpose"
)

// identityDistortion is a no-op compute_distortion callback: it returns
// the sampled grid coordinate unchanged for all three channels, standing
// in for a calibrated HMD's real lens distortion function (an external
// device-driver collaborator per spec §1 Non-goals).
func identityDistortion(eye vkres.Eye, u, v float32) (r, g, b vkres.UV) {
	uv := vkres.UV{U: u, V: v}
	return uv, uv, uv
}

// loggingDriver adapts xrmulti.FrameDriver onto a vktarget.Target, logging the
// frame it would have rendered. Wiring the committed LayerSlot into an
// actual vkrender.Renderer.RenderFrame call requires translating
// xrcompositor.CommittedLayer into vkrender.Layer (per-eye source views,
// fov) which is the OpenXR/IPC API surface's job (spec §1 Non-goals);
// this demo logs instead of rendering pixels.
type loggingDriver struct {
	target vktarget.Target
	logger *log.Logger
}

func (d *loggingDriver) RenderFrame(frame xrcompositor.LayerSlot, frameID int64, desiredPresentNs int64) error {
	d.logger.Printf("frame %d: %d layers, fast_path=%v, desired_present_ns=%d",
		frameID, len(frame.Layers), frame.OneProjectionFastPath, desiredPresentNs)
	return nil
}

func main() {
	logger := log.New(os.Stdout, "xrcompd: ", log.LstdFlags)

	cfg := config.New("xrcompd", 8)
	cfg.Bools["only_compute_queue"] = false
	cfg.Ints["selected_gpu_index"] = -1
	cfg.Strings["Display"] = "Headless"
	if display, ok := cfg.String("Display"); ok {
		logger.Printf("target backend hint: Display=%s", display)
	}

	opts := vklib.Options{
		SelectedGPUIndex: -1,
		ClientGPUIndex:   -1,
		LogWriter:        os.Stdout,
	}

	loader := func() (vk.Instance, error) {
		var instance vk.Instance
		ret := vk.CreateInstance(&vk.InstanceCreateInfo{
			SType: vk.StructureTypeInstanceCreateInfo,
			PApplicationInfo: &vk.ApplicationInfo{
				SType:            vk.StructureTypeApplicationInfo,
				ApiVersion:       uint32(vk.MakeVersion(1, 1, 0)),
				PApplicationName: "xrcompd\x00",
			},
		}, nil, &instance)
		if err := vklib.FromResult(ret, "CreateInstance"); err != nil {
			return nil, err
		}
		return instance, nil
	}

	bundle, ident, err := vklib.CreateFrom(loader, nil, nil, nil, nil, opts)
	if err != nil {
		logger.Fatalf("CreateFrom: %v", err)
	}
	logger.Printf("selected gpu=%d client_gpu=%d", ident.SelectedGPUIndex, ident.ClientGPUIndex)

	pool, err := vklib.NewCmdPool(bundle)
	if err != nil {
		logger.Fatalf("NewCmdPool: %v", err)
	}
	defer pool.Destroy()

	res, err := vkres.New(bundle, pool, vkres.Shaders{}, identityDistortion, false, 0, vk.FormatB8g8r8a8Srgb, 1832, 1920)
	if err != nil {
		logger.Fatalf("vkres.New: %v", err)
	}
	_ = res

	target := vktarget.NewMock()
	if err := target.InitPreVulkan(); err != nil {
		logger.Fatalf("InitPreVulkan: %v", err)
	}
	if err := target.InitPostVulkan(1832, 1920); err != nil {
		logger.Fatalf("InitPostVulkan: %v", err)
	}
	if err := target.CreateImages(1832, 1920, vk.FormatB8g8r8a8Srgb, vk.ColorSpaceSrgbNonlinear, 0, vk.PresentModeFifo); err != nil {
		logger.Fatalf("CreateImages: %v", err)
	}

	native := xrcompositor.New(bundle, pool, xrpacer.NewFakePacer(int64(1e9/90), int64(1e6)))
	mc := xrmulti.New(bundle, pool, native, func() xrpacer.Pacer {
		return xrpacer.NewFakePacer(int64(1e9/90), int64(1e6))
	}, &loggingDriver{target: target, logger: logger})

	if err := mc.WarmStart(time.Now().UnixNano()); err != nil {
		logger.Fatalf("WarmStart: %v", err)
	}

	a := mc.RegisterClient()
	if err := a.Comp.BeginSession(0); err != nil {
		logger.Fatalf("BeginSession: %v", err)
	}
	a.Comp.SetVisible(true, true)

	swapInfo := vkswap.CreateInfo{
		Format:      vk.FormatB8g8r8a8Srgb,
		Bits:        vkswap.UsageColor | vkswap.UsageSampled,
		SampleCount: 1,
		Width:       800,
		Height:      600,
		FaceCount:   1,
		ArraySize:   1,
		MipCount:    1,
	}
	native1, handles, err := a.Comp.CreateSwapchain(swapInfo, 3, vklib.HandleOpaqueFD)
	if err != nil {
		logger.Fatalf("CreateSwapchain: %v", err)
	}
	logger.Printf("client swapchain: %d images, %d exported handles", native1.ImageCount(), len(handles))

	headPose := func() ([2]xrpose.Pose, [2]xrmulti.Fov) {
		return [2]xrpose.Pose{xrpose.Identity(), xrpose.Identity()}, [2]xrmulti.Fov{}
	}

	mc.StartRenderThread(func() int64 { return time.Now().UnixNano() }, headPose, 11*time.Millisecond, func(err error) {
		logger.Printf("render thread error: %v", err)
	})

	time.Sleep(200 * time.Millisecond)
	mc.StopRenderThread()

	a.Comp.DestroySwapchain(native1)
	a.Comp.GC().Collect()

	if err := a.Comp.EndSession(); err != nil {
		logger.Fatalf("EndSession: %v", err)
	}
}
