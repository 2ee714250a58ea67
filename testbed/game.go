package testbed

import (
	"fmt"
	"math"

	"github.com/spaghettifunk/anima-gpu/engine"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/jobs"
	"github.com/spaghettifunk/anima-gpu/engine/renderer"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

const (
	targetSize = 256
	pageSize   = 64 * 1024
	chunkSize  = 4 * 1024
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	device *renderer.Device
	jobs   *jobs.JobSystem
	family uint32

	// nil when the backend cannot create resources
	target   *renderer.Image
	readback *renderer.Buffer
	copied   *renderer.Event

	// each recorder pool is used by one goroutine at a time
	recorders   []*renderer.CommandPool
	secondaries [][]*renderer.SecondaryCommandBuffer
	scratch     *renderer.Buffer

	sparse       *renderer.Buffer
	sparseMemory *renderer.DeviceMemory

	elapsed float64
}

func NewTestGame() *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			Name:  "Anima GPU testbed",
			State: &gameState{},
		},
	}
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnShutdown = tg.Shutdown
	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize(device *renderer.Device, queue *renderer.Queue, js *jobs.JobSystem) error {
	state := g.state()
	state.device = device
	state.jobs = js
	state.family = queue.Family()

	if !device.SupportsResourceCreation() {
		core.LogInfo("backend %s cannot create resources, frames only record dynamic state", device.Backend().Name())
		return nil
	}

	target, err := device.CreateImage(metadata.ImageDescription{
		Format:      metadata.FORMAT_R8G8B8A8_UNORM,
		Extent:      metadata.Extent3D{Width: targetSize, Height: targetSize, Depth: 1},
		MipLevels:   1,
		ArrayLayers: 1,
		Usage:       metadata.IMAGE_USAGE_TRANSFER_DST | metadata.IMAGE_USAGE_TRANSFER_SRC,
	})
	if err != nil {
		return err
	}
	state.target = target

	readback, err := device.CreateBuffer(metadata.BufferDescription{
		Size:  targetSize * targetSize * 4,
		Usage: metadata.BUFFER_USAGE_TRANSFER_DST,
	})
	if err != nil {
		return err
	}
	state.readback = readback

	if state.copied, err = device.CreateEvent(); err != nil {
		return err
	}

	if state.scratch, err = device.CreateBuffer(metadata.BufferDescription{
		Size:  uint64(js.Workers()) * chunkSize,
		Usage: metadata.BUFFER_USAGE_TRANSFER_DST | metadata.BUFFER_USAGE_STORAGE_BUFFER,
	}); err != nil {
		return err
	}
	for i := 0; i < js.Workers(); i++ {
		pool, err := device.CreateCommandPool(state.family, metadata.COMMAND_POOL_CREATE_RESET_COMMAND_BUFFER)
		if err != nil {
			return err
		}
		state.recorders = append(state.recorders, pool)
	}

	if err := g.bindSparse(device); err != nil {
		// sparse residency is optional for the demo
		core.LogWarn("sparse binding skipped: %s", err)
	}
	return nil
}

// bindSparse backs the first two pages of a sparse buffer and waits for the bind.
func (g *TestGame) bindSparse(device *renderer.Device) error {
	family, ok := device.FindQueueFamily(metadata.QUEUE_SPARSE_BINDING)
	if !ok {
		return fmt.Errorf("no sparse binding queue: %w", core.ErrUnsupported)
	}
	queue, err := device.Queue(family, 0)
	if err != nil {
		return err
	}

	state := g.state()
	if state.sparse, err = device.CreateBuffer(metadata.BufferDescription{
		Size:   4 * pageSize,
		Usage:  metadata.BUFFER_USAGE_STORAGE_BUFFER,
		Sparse: true,
	}); err != nil {
		return err
	}
	if state.sparseMemory, err = device.AllocateMemory(2*pageSize, 0); err != nil {
		return err
	}

	fence, err := device.CreateFence(false)
	if err != nil {
		return err
	}
	defer fence.Destroy()

	err = queue.BindSparse([]renderer.BindSparseInfo{{
		BufferBinds: []renderer.SparseBufferBindInfo{{
			Buffer: state.sparse,
			Binds: []renderer.SparseMemoryBind{
				{ResourceOffset: 0, Size: pageSize, Memory: state.sparseMemory},
				{ResourceOffset: 2 * pageSize, Size: pageSize, Memory: state.sparseMemory, MemoryOffset: pageSize},
			},
		}},
	}}, fence)
	if err != nil {
		return err
	}
	signaled, err := fence.Wait(renderer.TimeoutInfinite)
	if err != nil {
		return err
	}
	if !signaled {
		return fmt.Errorf("sparse bind fence: %w", core.ErrFrameTimeout)
	}
	core.LogDebug("bound 2 sparse pages on %s", queue.DebugName())
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	g.state().elapsed += deltaTime
	return nil
}

func (g *TestGame) Render(frame *renderer.Frame, deltaTime float64) error {
	state := g.state()
	cb := frame.CommandBuffer

	if err := cb.SetViewport(0, metadata.Viewport{Width: targetSize, Height: targetSize, MaxDepth: 1}); err != nil {
		return err
	}
	if err := cb.SetScissor(0, metadata.Rect2D{Extent: metadata.Extent2D{Width: targetSize, Height: targetSize}}); err != nil {
		return err
	}
	if state.target == nil {
		return nil
	}

	colorRange := metadata.ImageSubresourceRange{
		AspectMask: metadata.IMAGE_ASPECT_COLOR,
		LevelCount: 1,
		LayerCount: 1,
	}
	// previous contents are discarded every frame
	var toGeneral renderer.MemoryBarrierSet
	toGeneral.AddImageBarrier(renderer.ImageMemoryBarrier{
		DstAccessMask:       metadata.ACCESS_TRANSFER_WRITE,
		OldLayout:           metadata.IMAGE_LAYOUT_UNDEFINED,
		NewLayout:           metadata.IMAGE_LAYOUT_GENERAL,
		SrcQueueFamilyIndex: metadata.QUEUE_FAMILY_IGNORED,
		DstQueueFamilyIndex: metadata.QUEUE_FAMILY_IGNORED,
		Image:               state.target,
		SubresourceRange:    colorRange,
	})
	if err := cb.PipelineBarrier(metadata.PIPELINE_STAGE_TOP_OF_PIPE, metadata.PIPELINE_STAGE_TRANSFER, 0, toGeneral); err != nil {
		return err
	}

	pulse := float32(0.5 + 0.5*math.Sin(state.elapsed))
	if err := cb.ClearColorImage(state.target, metadata.IMAGE_LAYOUT_GENERAL, [4]float32{pulse, 0.2, 1 - pulse, 1}, colorRange); err != nil {
		return err
	}

	var clearDone renderer.MemoryBarrierSet
	clearDone.AddMemoryBarrier(metadata.MemoryBarrier{
		SrcAccessMask: metadata.ACCESS_TRANSFER_WRITE,
		DstAccessMask: metadata.ACCESS_TRANSFER_READ,
	})
	if err := cb.PipelineBarrier(metadata.PIPELINE_STAGE_TRANSFER, metadata.PIPELINE_STAGE_TRANSFER, 0, clearDone); err != nil {
		return err
	}
	err := cb.CopyImageToBuffer(state.target, metadata.IMAGE_LAYOUT_GENERAL, state.readback, metadata.BufferImageCopy{
		ImageSubresource: metadata.ImageSubresourceLayers{AspectMask: metadata.IMAGE_ASPECT_COLOR, LayerCount: 1},
		ImageExtent:      metadata.Extent3D{Width: targetSize, Height: targetSize, Depth: 1},
	})
	if err != nil {
		return err
	}

	// the event splits the copy from the host read barrier
	if err := cb.ResetEvent(state.copied, metadata.PIPELINE_STAGE_TOP_OF_PIPE); err != nil {
		return err
	}
	if err := cb.SetEvent(state.copied, metadata.PIPELINE_STAGE_TRANSFER); err != nil {
		return err
	}
	var hostRead renderer.MemoryBarrierSet
	hostRead.AddBufferBarrier(renderer.BufferMemoryBarrier{
		SrcAccessMask:       metadata.ACCESS_TRANSFER_WRITE,
		DstAccessMask:       metadata.ACCESS_HOST_READ,
		SrcQueueFamilyIndex: metadata.QUEUE_FAMILY_IGNORED,
		DstQueueFamilyIndex: metadata.QUEUE_FAMILY_IGNORED,
		Buffer:              state.readback,
		Size:                state.readback.Size(),
	})
	if err := cb.WaitForEvent(state.copied, metadata.PIPELINE_STAGE_TRANSFER, metadata.PIPELINE_STAGE_HOST, hostRead); err != nil {
		return err
	}

	secondaries, err := g.recordSecondaries(frame)
	if err != nil {
		return err
	}
	return cb.ExecuteCommands(secondaries...)
}

// recordSecondaries fills one scratch chunk per recorder, each recorded on a
// worker. The slot's fence has retired its previous secondaries.
func (g *TestGame) recordSecondaries(frame *renderer.Frame) ([]*renderer.SecondaryCommandBuffer, error) {
	state := g.state()
	for len(state.secondaries) <= frame.Slot {
		slot := make([]*renderer.SecondaryCommandBuffer, len(state.recorders))
		for i, pool := range state.recorders {
			scb, err := pool.AllocateSecondaryCommandBuffer()
			if err != nil {
				return nil, err
			}
			slot[i] = scb
		}
		state.secondaries = append(state.secondaries, slot)
	}

	secondaries := state.secondaries[frame.Slot]
	fns := make([]func() error, len(secondaries))
	for i, scb := range secondaries {
		offset := uint64(i) * chunkSize
		fns[i] = func() error {
			if err := scb.Begin(0); err != nil {
				return err
			}
			if err := scb.FillBuffer(state.scratch, offset, chunkSize, uint32(frame.Number)); err != nil {
				return err
			}
			return scb.End()
		}
	}
	if err := state.jobs.RunAll(fmt.Sprintf("frame-%d", frame.Number), fns...); err != nil {
		return nil, err
	}
	return secondaries, nil
}

// Shutdown runs before the frame loop drains.
func (g *TestGame) Shutdown() error {
	state := g.state()
	if state.device == nil {
		return nil
	}
	if err := state.device.WaitIdle(); err != nil {
		core.LogWarn("testbed shutdown: %s", err)
	}
	for _, pool := range state.recorders {
		pool.Destroy()
	}
	if state.scratch != nil {
		state.scratch.Destroy()
	}
	if state.copied != nil {
		state.copied.Destroy()
	}
	if state.readback != nil {
		state.readback.Destroy()
	}
	if state.target != nil {
		state.target.Destroy()
	}
	if state.sparse != nil {
		state.sparse.Destroy()
	}
	if state.sparseMemory != nil {
		state.sparseMemory.Destroy()
	}
	core.LogInfo("testbed shut down after %.2fs", state.elapsed)
	return nil
}
