package renderer

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

func TestRecordingRequiresRecordingState(t *testing.T) {
	d, sw := newTestDevice(t, Options{})
	cb := mustPrimary(t, d, 0)

	if got := cb.State(); got != COMMAND_BUFFER_STATE_INITIAL {
		t.Fatalf("state after allocate = %s", got)
	}
	if err := cb.Draw(3, 1, 0, 0); !errors.Is(err, core.ErrNotRecording) {
		t.Errorf("draw in initial state: %v", err)
	}
	if err := cb.End(); !errors.Is(err, core.ErrNotRecording) {
		t.Errorf("end in initial state: %v", err)
	}

	if err := cb.Begin(0); err != nil {
		t.Fatal(err)
	}
	if err := cb.Begin(0); !errors.Is(err, core.ErrAlreadyRecording) {
		t.Errorf("second begin: %v", err)
	}
	if err := cb.Draw(3, 1, 0, 0); err != nil {
		t.Fatal(err)
	}
	if err := cb.End(); err != nil {
		t.Fatal(err)
	}
	if got := cb.State(); got != COMMAND_BUFFER_STATE_EXECUTABLE {
		t.Errorf("state after end = %s", got)
	}
	if err := cb.Dispatch(1, 1, 1); !errors.Is(err, core.ErrNotRecording) {
		t.Errorf("dispatch in executable state: %v", err)
	}
	if n := countOps(sw, cb, metadata.OP_DRAW); n != 1 {
		t.Errorf("encoded %d draws, want 1", n)
	}
}

func TestEveryRecordingCallRequiresRecordingState(t *testing.T) {
	d, sw := newTestDevice(t, Options{Validation: true})
	p := mustComputePipeline(t, d)
	_, fb, img := colorPass(t, d, metadata.IMAGE_LAYOUT_COLOR_ATTACHMENT_OPTIMAL)
	usage := metadata.BUFFER_USAGE_TRANSFER_SRC | metadata.BUFFER_USAGE_TRANSFER_DST |
		metadata.BUFFER_USAGE_VERTEX_BUFFER | metadata.BUFFER_USAGE_INDEX_BUFFER | metadata.BUFFER_USAGE_INDIRECT
	buf, err := d.CreateBuffer(metadata.BufferDescription{Size: 256, Usage: usage})
	if err != nil {
		t.Fatal(err)
	}
	layout, err := d.CreatePipelineLayout(nil, []metadata.PushConstantRange{
		{StageFlags: metadata.SHADER_STAGE_COMPUTE, Size: 16},
	})
	if err != nil {
		t.Fatal(err)
	}
	ev, err := d.CreateEvent()
	if err != nil {
		t.Fatal(err)
	}
	sec := mustSecondary(t, d)
	_ = sec.Begin(0)
	_ = sec.End()

	colorRange := metadata.ImageSubresourceRange{AspectMask: metadata.IMAGE_ASPECT_COLOR, LevelCount: 1, LayerCount: 1}
	calls := []struct {
		name string
		call func(cb *CommandBuffer) error
	}{
		{"BindPipeline", func(cb *CommandBuffer) error { return cb.BindPipeline(p) }},
		{"BindDescriptorSets", func(cb *CommandBuffer) error {
			return cb.BindDescriptorSets(metadata.PIPELINE_BIND_POINT_COMPUTE, layout, 0, nil)
		}},
		{"BindVertexBuffer", func(cb *CommandBuffer) error { return cb.BindVertexBuffer(0, buf, 0) }},
		{"BindIndexBuffer", func(cb *CommandBuffer) error { return cb.BindIndexBuffer(buf, 0, metadata.INDEX_TYPE_UINT16) }},
		{"PushConstants", func(cb *CommandBuffer) error {
			return cb.PushConstants(layout, metadata.SHADER_STAGE_COMPUTE, 0, make([]byte, 16))
		}},
		{"Draw", func(cb *CommandBuffer) error { return cb.Draw(3, 1, 0, 0) }},
		{"DrawIndexed", func(cb *CommandBuffer) error { return cb.DrawIndexed(3, 1, 0, 0, 0) }},
		{"DrawIndirect", func(cb *CommandBuffer) error { return cb.DrawIndirect(buf, 0, 1, 16) }},
		{"DrawIndexedIndirect", func(cb *CommandBuffer) error { return cb.DrawIndexedIndirect(buf, 0, 1, 20) }},
		{"Dispatch", func(cb *CommandBuffer) error { return cb.Dispatch(1, 1, 1) }},
		{"DispatchIndirect", func(cb *CommandBuffer) error { return cb.DispatchIndirect(buf, 0) }},
		{"CopyBuffer", func(cb *CommandBuffer) error {
			return cb.CopyBuffer(buf, buf, metadata.BufferCopy{DstOffset: 128, Size: 64})
		}},
		{"CopyImage", func(cb *CommandBuffer) error {
			return cb.CopyImage(img, metadata.IMAGE_LAYOUT_GENERAL, img, metadata.IMAGE_LAYOUT_GENERAL)
		}},
		{"CopyBufferToImage", func(cb *CommandBuffer) error {
			return cb.CopyBufferToImage(buf, img, metadata.IMAGE_LAYOUT_GENERAL)
		}},
		{"CopyImageToBuffer", func(cb *CommandBuffer) error {
			return cb.CopyImageToBuffer(img, metadata.IMAGE_LAYOUT_GENERAL, buf)
		}},
		{"BlitImage", func(cb *CommandBuffer) error {
			return cb.BlitImage(img, metadata.IMAGE_LAYOUT_GENERAL, img, metadata.IMAGE_LAYOUT_GENERAL, metadata.FILTER_LINEAR)
		}},
		{"FillBuffer", func(cb *CommandBuffer) error { return cb.FillBuffer(buf, 0, 64, 7) }},
		{"UpdateBuffer", func(cb *CommandBuffer) error { return cb.UpdateBuffer(buf, 0, make([]byte, 16)) }},
		{"ClearColorImage", func(cb *CommandBuffer) error {
			return cb.ClearColorImage(img, metadata.IMAGE_LAYOUT_GENERAL, [4]float32{}, colorRange)
		}},
		{"ClearDepthStencilImage", func(cb *CommandBuffer) error {
			return cb.ClearDepthStencilImage(img, metadata.IMAGE_LAYOUT_GENERAL, metadata.ClearDepthStencilValue{Depth: 1})
		}},
		{"ClearAttachments", func(cb *CommandBuffer) error { return cb.ClearAttachments(nil, nil) }},
		{"SetViewport", func(cb *CommandBuffer) error { return cb.SetViewport(0, metadata.Viewport{Width: 64, Height: 64}) }},
		{"SetScissor", func(cb *CommandBuffer) error { return cb.SetScissor(0, fullArea()) }},
		{"SetLineWidth", func(cb *CommandBuffer) error { return cb.SetLineWidth(1) }},
		{"SetDepthBias", func(cb *CommandBuffer) error { return cb.SetDepthBias(0, 0, 0) }},
		{"SetBlendConstants", func(cb *CommandBuffer) error { return cb.SetBlendConstants([4]float32{}) }},
		{"SetDepthBounds", func(cb *CommandBuffer) error { return cb.SetDepthBounds(0, 1) }},
		{"SetStencilCompareMask", func(cb *CommandBuffer) error {
			return cb.SetStencilCompareMask(metadata.STENCIL_FACE_FRONT_AND_BACK, 0xff)
		}},
		{"SetStencilWriteMask", func(cb *CommandBuffer) error {
			return cb.SetStencilWriteMask(metadata.STENCIL_FACE_FRONT_AND_BACK, 0xff)
		}},
		{"SetStencilReference", func(cb *CommandBuffer) error {
			return cb.SetStencilReference(metadata.STENCIL_FACE_FRONT_AND_BACK, 1)
		}},
		{"PipelineBarrier", func(cb *CommandBuffer) error {
			return cb.PipelineBarrier(metadata.PIPELINE_STAGE_TOP_OF_PIPE, metadata.PIPELINE_STAGE_TRANSFER, 0, MemoryBarrierSet{})
		}},
		{"SetEvent", func(cb *CommandBuffer) error { return cb.SetEvent(ev, metadata.PIPELINE_STAGE_TRANSFER) }},
		{"ResetEvent", func(cb *CommandBuffer) error { return cb.ResetEvent(ev, metadata.PIPELINE_STAGE_TRANSFER) }},
		{"WaitForEvent", func(cb *CommandBuffer) error {
			return cb.WaitForEvent(ev, metadata.PIPELINE_STAGE_HOST, metadata.PIPELINE_STAGE_TRANSFER, MemoryBarrierSet{})
		}},
		{"BeginRenderPass", func(cb *CommandBuffer) error {
			return cb.BeginRenderPass(fb, nil, fullArea(), metadata.SUBPASS_CONTENTS_INLINE)
		}},
		{"NextSubpass", func(cb *CommandBuffer) error { return cb.NextSubpass(metadata.SUBPASS_CONTENTS_INLINE) }},
		{"EndRenderPass", func(cb *CommandBuffer) error { return cb.EndRenderPass() }},
		{"ExecuteCommands", func(cb *CommandBuffer) error { return cb.ExecuteCommands(sec) }},
		{"End", func(cb *CommandBuffer) error { return cb.End() }},
	}

	states := []struct {
		name    string
		prepare func(cb *CommandBuffer) error
	}{
		{"initial", func(cb *CommandBuffer) error { return nil }},
		{"executable", func(cb *CommandBuffer) error {
			if err := cb.Begin(0); err != nil {
				return err
			}
			return cb.End()
		}},
	}
	for _, st := range states {
		for _, c := range calls {
			t.Run(st.name+"/"+c.name, func(t *testing.T) {
				cb := mustPrimary(t, d, 0)
				if err := st.prepare(cb); err != nil {
					t.Fatal(err)
				}
				if err := c.call(cb); !errors.Is(err, core.ErrNotRecording) {
					t.Errorf("got %v, want ErrNotRecording", err)
				}
				if n := len(sw.Commands(cb.Handle())); n != 0 {
					t.Errorf("%d commands encoded outside recording", n)
				}
			})
		}
	}
}

func TestBindPipelineElidesRepeatedBinds(t *testing.T) {
	d, sw := newTestDevice(t, Options{})
	cb := mustPrimary(t, d, 0)
	p := mustComputePipeline(t, d)
	other := mustComputePipeline(t, d)

	if err := cb.Begin(0); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := cb.BindPipeline(p); err != nil {
			t.Fatal(err)
		}
	}
	if n := countOps(sw, cb, metadata.OP_BIND_PIPELINE); n != 1 {
		t.Fatalf("two binds of the same pipeline encoded %d commands", n)
	}
	if err := cb.BindPipeline(other); err != nil {
		t.Fatal(err)
	}
	if err := cb.BindPipeline(p); err != nil {
		t.Fatal(err)
	}
	if n := countOps(sw, cb, metadata.OP_BIND_PIPELINE); n != 3 {
		t.Errorf("alternating pipelines encoded %d binds, want 3", n)
	}
	if cb.BoundPipeline(metadata.PIPELINE_BIND_POINT_COMPUTE) != p {
		t.Error("compute slot does not hold the last pipeline")
	}
	if cb.BoundPipeline(metadata.PIPELINE_BIND_POINT_GRAPHICS) != nil {
		t.Error("graphics slot was touched by a compute bind")
	}

	m := d.Metrics()
	if m.PipelineBindsEncoded != 3 || m.PipelineBindsElided != 1 {
		t.Errorf("metrics encoded=%d elided=%d", m.PipelineBindsEncoded, m.PipelineBindsElided)
	}
}

func TestResetClearsReferencesAndCache(t *testing.T) {
	d, sw := newTestDevice(t, Options{})
	cb := mustPrimary(t, d, 0)
	p := mustComputePipeline(t, d)

	_ = cb.Begin(0)
	_ = cb.BindPipeline(p)
	_ = cb.Dispatch(1, 1, 1)
	_ = cb.End()
	if cb.References() == 0 || !cb.Holds(p) {
		t.Fatal("pipeline was not tracked")
	}

	if err := cb.Reset(0); err != nil {
		t.Fatal(err)
	}
	if got := cb.State(); got != COMMAND_BUFFER_STATE_INITIAL {
		t.Errorf("state after reset = %s", got)
	}
	if cb.References() != 0 {
		t.Errorf("%d references survived reset", cb.References())
	}
	if cb.BoundPipeline(metadata.PIPELINE_BIND_POINT_COMPUTE) != nil {
		t.Error("binding cache survived reset")
	}

	_ = cb.Begin(0)
	_ = cb.BindPipeline(p)
	if n := countOps(sw, cb, metadata.OP_BIND_PIPELINE); n != 1 {
		t.Errorf("bind after reset encoded %d commands, want 1", n)
	}
}

func TestReferencesKeepResourcesAlive(t *testing.T) {
	d, sw := newTestDevice(t, Options{})
	cb := mustPrimary(t, d, 0)
	buf, err := d.CreateBuffer(metadata.BufferDescription{Size: 256, Usage: metadata.BUFFER_USAGE_TRANSFER_DST})
	if err != nil {
		t.Fatal(err)
	}
	h := buf.Handle()

	_ = cb.Begin(0)
	if err := cb.FillBuffer(buf, 0, 256, 0); err != nil {
		t.Fatal(err)
	}
	_ = cb.End()

	buf.Destroy()
	if !sw.IsLive(h) {
		t.Fatal("buffer destroyed while a command buffer references it")
	}
	if err := cb.Reset(0); err != nil {
		t.Fatal(err)
	}
	if sw.IsLive(h) {
		t.Error("buffer still live after the last reference was dropped")
	}
}

func TestRecordRejectsNilResources(t *testing.T) {
	d, _ := newTestDevice(t, Options{})
	cb := mustPrimary(t, d, 0)
	_ = cb.Begin(0)

	var buf *Buffer
	if err := cb.BindIndexBuffer(buf, 0, metadata.INDEX_TYPE_UINT16); !errors.Is(err, core.ErrNilResource) {
		t.Errorf("nil index buffer: %v", err)
	}
	if err := cb.BindPipeline(nil); !errors.Is(err, core.ErrNilResource) {
		t.Errorf("nil pipeline: %v", err)
	}
	if cb.References() != 0 {
		t.Errorf("rejected commands left %d references", cb.References())
	}
}

func TestEndInsideRenderPassFails(t *testing.T) {
	d, _ := newTestDevice(t, Options{})
	cb := mustPrimary(t, d, 0)
	_, fb, _ := colorPass(t, d, metadata.IMAGE_LAYOUT_COLOR_ATTACHMENT_OPTIMAL)

	_ = cb.Begin(0)
	if err := cb.BeginRenderPass(fb, nil, fullArea(), metadata.SUBPASS_CONTENTS_INLINE); err != nil {
		t.Fatal(err)
	}
	if err := cb.End(); !errors.Is(err, core.ErrRenderPassActive) {
		t.Errorf("end inside render pass: %v", err)
	}
	if err := cb.BeginRenderPass(fb, nil, fullArea(), metadata.SUBPASS_CONTENTS_INLINE); !errors.Is(err, core.ErrRenderPassActive) {
		t.Errorf("nested render pass: %v", err)
	}
	if err := cb.EndRenderPass(); err != nil {
		t.Fatal(err)
	}
	if err := cb.EndRenderPass(); !errors.Is(err, core.ErrNoActiveRenderPass) {
		t.Errorf("end without render pass: %v", err)
	}
	if err := cb.End(); err != nil {
		t.Fatal(err)
	}
}

func TestOneTimeSubmitBecomesInvalid(t *testing.T) {
	d, _ := newTestDevice(t, Options{})
	q := mustQueue(t, d, 0, 0)
	cb := mustPrimary(t, d, 0)

	_ = cb.Begin(metadata.COMMAND_BUFFER_USAGE_ONE_TIME_SUBMIT)
	_ = cb.Dispatch(1, 1, 1)
	_ = cb.End()

	fence, _ := d.CreateFence(false)
	if err := q.Submit([]SubmitInfo{{CommandBuffers: []*CommandBuffer{cb}}}, fence); err != nil {
		t.Fatal(err)
	}
	err := q.Submit([]SubmitInfo{{CommandBuffers: []*CommandBuffer{cb}}}, nil)
	if !errors.Is(err, core.ErrOneTimeSubmitConsumed) {
		t.Errorf("resubmit while pending: %v", err)
	}
	if ok, err := fence.Wait(TimeoutInfinite); !ok || err != nil {
		t.Fatalf("fence wait: ok=%v err=%v", ok, err)
	}
	if got := cb.State(); got != COMMAND_BUFFER_STATE_INVALID {
		t.Errorf("state after completion = %s", got)
	}
	err = q.Submit([]SubmitInfo{{CommandBuffers: []*CommandBuffer{cb}}}, nil)
	if !errors.Is(err, core.ErrOneTimeSubmitConsumed) {
		t.Errorf("resubmit after completion: %v", err)
	}

	// begin is allowed again and starts a fresh recording
	if err := cb.Begin(0); err != nil {
		t.Fatal(err)
	}
}

func TestPendingBufferRejectsBeginWithoutSimultaneousUse(t *testing.T) {
	d, _ := newTestDevice(t, Options{})
	q := mustQueue(t, d, 0, 0)
	cb := mustPrimary(t, d, 0)
	ev, _ := d.CreateEvent()

	// the event keeps the submission pending until the host sets it
	_ = cb.Begin(0)
	_ = cb.WaitForEvent(ev, metadata.PIPELINE_STAGE_HOST, metadata.PIPELINE_STAGE_ALL_COMMANDS, MemoryBarrierSet{})
	_ = cb.End()
	fence, _ := d.CreateFence(false)
	if err := q.Submit([]SubmitInfo{{CommandBuffers: []*CommandBuffer{cb}}}, fence); err != nil {
		t.Fatal(err)
	}

	if got := cb.State(); got != COMMAND_BUFFER_STATE_PENDING {
		t.Fatalf("state after submit = %s", got)
	}
	if err := cb.Begin(0); !errors.Is(err, core.ErrCommandBufferPending) {
		t.Errorf("begin while pending: %v", err)
	}
	if err := q.Submit([]SubmitInfo{{CommandBuffers: []*CommandBuffer{cb}}}, nil); !errors.Is(err, core.ErrCommandBufferPending) {
		t.Errorf("submit while pending: %v", err)
	}

	_ = ev.Set()
	if ok, err := fence.Wait(TimeoutInfinite); !ok || err != nil {
		t.Fatalf("fence wait: ok=%v err=%v", ok, err)
	}
	if got := cb.State(); got != COMMAND_BUFFER_STATE_EXECUTABLE {
		t.Errorf("state after completion = %s", got)
	}
}

func TestSimultaneousUseKeepsRetiredReferences(t *testing.T) {
	d, sw := newTestDevice(t, Options{})
	q := mustQueue(t, d, 0, 0)
	cb := mustPrimary(t, d, 0)
	ev, _ := d.CreateEvent()
	buf, _ := d.CreateBuffer(metadata.BufferDescription{Size: 64})
	h := buf.Handle()

	_ = cb.Begin(metadata.COMMAND_BUFFER_USAGE_SIMULTANEOUS_USE)
	_ = cb.WaitForEvent(ev, metadata.PIPELINE_STAGE_HOST, metadata.PIPELINE_STAGE_TRANSFER, MemoryBarrierSet{})
	_ = cb.FillBuffer(buf, 0, 64, 1)
	_ = cb.End()
	fence, _ := d.CreateFence(false)
	if err := q.Submit([]SubmitInfo{{CommandBuffers: []*CommandBuffer{cb}}}, fence); err != nil {
		t.Fatal(err)
	}

	// re-recording a pending simultaneous buffer must not free what the
	// outstanding submission reads
	if err := cb.Begin(metadata.COMMAND_BUFFER_USAGE_SIMULTANEOUS_USE); err != nil {
		t.Fatal(err)
	}
	buf.Destroy()
	if !sw.IsLive(h) {
		t.Fatal("buffer released while still pending")
	}

	_ = ev.Set()
	_, _ = fence.Wait(TimeoutInfinite)
	_ = cb.End()
	if cb.State() != COMMAND_BUFFER_STATE_EXECUTABLE {
		t.Fatalf("state = %s", cb.State())
	}
	if sw.IsLive(h) {
		t.Error("retired reference not released after completion")
	}
}

func TestFreeDefersUntilReleased(t *testing.T) {
	d, _ := newTestDevice(t, Options{})
	pool, _ := d.CreateCommandPool(0, 0)
	defer pool.Destroy()
	cb, _ := pool.AllocateCommandBuffer()
	if pool.Len() != 1 {
		t.Fatalf("pool has %d buffers", pool.Len())
	}

	cb.Retain()
	pool.Free(cb)
	if pool.Len() != 1 {
		t.Error("buffer freed while still referenced")
	}
	cb.Release()
	if pool.Len() != 0 {
		t.Error("buffer not returned to the pool")
	}
	if err := cb.Begin(0); !errors.Is(err, core.ErrObjectDestroyed) {
		t.Errorf("begin after free: %v", err)
	}
}

func TestPoolResetReturnsBuffersToInitial(t *testing.T) {
	d, _ := newTestDevice(t, Options{})
	pool, _ := d.CreateCommandPool(0, 0)
	defer pool.Destroy()
	cbs, err := pool.AllocateCommandBuffers(3)
	if err != nil {
		t.Fatal(err)
	}
	for _, cb := range cbs {
		_ = cb.Begin(0)
		_ = cb.SetLineWidth(1)
		_ = cb.End()
	}
	if err := pool.Reset(0); err != nil {
		t.Fatal(err)
	}
	for i, cb := range cbs {
		if cb.State() != COMMAND_BUFFER_STATE_INITIAL {
			t.Errorf("buffer %d state = %s", i, cb.State())
		}
	}
}

func TestRecordingAfterDeviceDestroyed(t *testing.T) {
	d, _ := newTestDevice(t, Options{})
	cb := mustPrimary(t, d, 0)
	_ = cb.Begin(0)
	d.Destroy()
	if err := cb.Draw(1, 1, 0, 0); !errors.Is(err, core.ErrDeviceDestroyed) {
		t.Errorf("draw after device destroy: %v", err)
	}
}

func TestInlineUpdatesAreValidated(t *testing.T) {
	d, sw := newTestDevice(t, Options{})
	cb := mustPrimary(t, d, 0)
	buf, err := d.CreateBuffer(metadata.BufferDescription{Size: 64, Usage: metadata.BUFFER_USAGE_TRANSFER_DST})
	if err != nil {
		t.Fatal(err)
	}
	layout, err := d.CreatePipelineLayout(nil, []metadata.PushConstantRange{
		{StageFlags: metadata.SHADER_STAGE_COMPUTE, Offset: 0, Size: 32},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := cb.Begin(0); err != nil {
		t.Fatal(err)
	}

	rejected := []struct {
		name string
		call func() error
	}{
		{"update with unaligned offset", func() error { return cb.UpdateBuffer(buf, 2, make([]byte, 8)) }},
		{"update with unaligned size", func() error { return cb.UpdateBuffer(buf, 0, make([]byte, 6)) }},
		{"update past the buffer", func() error { return cb.UpdateBuffer(buf, 32, make([]byte, 64)) }},
		{"empty update", func() error { return cb.UpdateBuffer(buf, 0, nil) }},
		{"push outside the range", func() error {
			return cb.PushConstants(layout, metadata.SHADER_STAGE_COMPUTE, 16, make([]byte, 32))
		}},
		{"push for a stage without a range", func() error {
			return cb.PushConstants(layout, metadata.SHADER_STAGE_VERTEX, 0, make([]byte, 16))
		}},
		{"push with unaligned size", func() error {
			return cb.PushConstants(layout, metadata.SHADER_STAGE_COMPUTE, 0, make([]byte, 3))
		}},
	}
	for _, tt := range rejected {
		if err := tt.call(); !errors.Is(err, core.ErrInvalidArgument) {
			t.Errorf("%s: got %v, want ErrInvalidArgument", tt.name, err)
		}
	}
	if n := len(sw.Commands(cb.Handle())); n != 0 {
		t.Fatalf("%d rejected commands were encoded", n)
	}

	if err := cb.UpdateBuffer(buf, 16, make([]byte, 48)); err != nil {
		t.Errorf("aligned update: %v", err)
	}
	if err := cb.PushConstants(layout, metadata.SHADER_STAGE_COMPUTE, 8, make([]byte, 24)); err != nil {
		t.Errorf("push inside the range: %v", err)
	}
	if cb.State() != COMMAND_BUFFER_STATE_RECORDING {
		t.Errorf("state = %s after rejected calls", cb.State())
	}
	if n := countOps(sw, cb, metadata.OP_UPDATE_BUFFER) + countOps(sw, cb, metadata.OP_PUSH_CONSTANTS); n != 2 {
		t.Errorf("encoded %d updates, want 2", n)
	}
}
