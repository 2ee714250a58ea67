package renderer

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

func mustSecondary(t *testing.T, d *Device) *SecondaryCommandBuffer {
	t.Helper()
	pool, err := d.CreateCommandPool(0, metadata.COMMAND_POOL_CREATE_RESET_COMMAND_BUFFER)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Destroy)
	cb, err := pool.AllocateSecondaryCommandBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return cb
}

func TestSecondaryRequiresInheritance(t *testing.T) {
	d, _ := newTestDevice(t, Options{})
	sec := mustSecondary(t, d)

	if err := sec.Begin(metadata.COMMAND_BUFFER_USAGE_RENDER_PASS_CONTINUE); !errors.Is(err, core.ErrInheritanceRequired) {
		t.Errorf("continue without a render pass: %v", err)
	}
	if err := sec.BeginWithRenderPass(nil, 0, 0); !errors.Is(err, core.ErrInheritanceRequired) {
		t.Errorf("nil render pass: %v", err)
	}
	if err := sec.BeginWithFramebuffer(nil, 0, 0); !errors.Is(err, core.ErrInheritanceRequired) {
		t.Errorf("nil framebuffer: %v", err)
	}
	rp, _, _ := colorPass(t, d, metadata.IMAGE_LAYOUT_COLOR_ATTACHMENT_OPTIMAL)
	if err := sec.BeginWithRenderPass(rp, 1, 0); !errors.Is(err, core.ErrSubpassOutOfRange) {
		t.Errorf("subpass past the end: %v", err)
	}
	if got := sec.State(); got != COMMAND_BUFFER_STATE_INITIAL {
		t.Errorf("state after failed begins = %s", got)
	}

	if err := sec.BeginWithRenderPass(rp, 0, 0); err != nil {
		t.Fatal(err)
	}
	if !metadata.HasFlags(sec.UsageFlags(), metadata.COMMAND_BUFFER_USAGE_RENDER_PASS_CONTINUE) {
		t.Error("render pass continue not implied")
	}
	if gotRP, gotFB, subpass := sec.Inheritance(); gotRP != rp || gotFB != nil || subpass != 0 {
		t.Errorf("inheritance = %p %p %d", gotRP, gotFB, subpass)
	}
	if !sec.Holds(rp) {
		t.Error("secondary does not hold its inherited render pass")
	}
}

func TestExecuteCommandsCompatibility(t *testing.T) {
	d, _ := newTestDevice(t, Options{})
	rp, fb, _ := colorPass(t, d,
		metadata.IMAGE_LAYOUT_COLOR_ATTACHMENT_OPTIMAL,
		metadata.IMAGE_LAYOUT_GENERAL,
	)
	_, singleFB, _ := colorPass(t, d, metadata.IMAGE_LAYOUT_COLOR_ATTACHMENT_OPTIMAL)
	_, otherFB, _ := colorPass(t, d,
		metadata.IMAGE_LAYOUT_COLOR_ATTACHMENT_OPTIMAL,
		metadata.IMAGE_LAYOUT_GENERAL,
	)

	tests := []struct {
		name    string
		begin   func(*SecondaryCommandBuffer) error
		inside  bool
		subpass uint32
		want    error
	}{
		{"outside without continue", func(s *SecondaryCommandBuffer) error { return s.Begin(0) }, false, 0, nil},
		{"outside with continue", func(s *SecondaryCommandBuffer) error { return s.BeginWithRenderPass(rp, 0, 0) }, false, 0, core.ErrIncompatibleRenderPass},
		{"inside without continue", func(s *SecondaryCommandBuffer) error { return s.Begin(0) }, true, 0, core.ErrIncompatibleRenderPass},
		{"inside matching", func(s *SecondaryCommandBuffer) error { return s.BeginWithRenderPass(rp, 0, 0) }, true, 0, nil},
		{"inside matching framebuffer", func(s *SecondaryCommandBuffer) error { return s.BeginWithFramebuffer(fb, 1, 0) }, true, 1, nil},
		{"other framebuffer", func(s *SecondaryCommandBuffer) error { return s.BeginWithFramebuffer(otherFB, 0, 0) }, true, 0, core.ErrIncompatibleRenderPass},
		{"wrong subpass", func(s *SecondaryCommandBuffer) error { return s.BeginWithRenderPass(rp, 1, 0) }, true, 0, core.ErrIncompatibleRenderPass},
		{"incompatible pass", func(s *SecondaryCommandBuffer) error { return s.BeginWithFramebuffer(singleFB, 0, 0) }, true, 0, core.ErrIncompatibleRenderPass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sec := mustSecondary(t, d)
			if err := tt.begin(sec); err != nil {
				t.Fatal(err)
			}
			_ = sec.Draw(3, 1, 0, 0)
			if err := sec.End(); err != nil {
				t.Fatal(err)
			}

			cb := mustPrimary(t, d, 0)
			_ = cb.Begin(0)
			if tt.inside {
				_ = cb.BeginRenderPass(fb, nil, fullArea(), metadata.SUBPASS_CONTENTS_SECONDARY_COMMAND_BUFFERS)
				for i := uint32(0); i < tt.subpass; i++ {
					_ = cb.NextSubpass(metadata.SUBPASS_CONTENTS_SECONDARY_COMMAND_BUFFERS)
				}
			}
			err := cb.ExecuteCommands(sec)
			if tt.want == nil && err != nil {
				t.Errorf("execute: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("execute = %v, want %v", err, tt.want)
			}
			if got := cb.Holds(sec); got != (err == nil) {
				t.Errorf("primary holds secondary = %v", got)
			}
		})
	}
}

func TestExecuteCommandsRequiresExecutableSecondary(t *testing.T) {
	d, _ := newTestDevice(t, Options{})
	sec := mustSecondary(t, d)
	cb := mustPrimary(t, d, 0)
	_ = cb.Begin(0)

	if err := cb.ExecuteCommands(sec); !errors.Is(err, core.ErrNotExecutable) {
		t.Errorf("initial secondary: %v", err)
	}
	_ = sec.Begin(0)
	if err := cb.ExecuteCommands(sec); !errors.Is(err, core.ErrNotExecutable) {
		t.Errorf("recording secondary: %v", err)
	}
	if err := cb.ExecuteCommands(nil); !errors.Is(err, core.ErrNilResource) {
		t.Errorf("nil secondary: %v", err)
	}
}

func TestExecuteCommandsInvalidatesPipelineBindings(t *testing.T) {
	d, _ := newTestDevice(t, Options{})
	p := mustComputePipeline(t, d)
	sec := mustSecondary(t, d)
	_ = sec.Begin(0)
	_ = sec.End()

	cb := mustPrimary(t, d, 0)
	_ = cb.Begin(0)
	_ = cb.BindPipeline(p)
	if err := cb.ExecuteCommands(sec); err != nil {
		t.Fatal(err)
	}
	if cb.BoundPipeline(metadata.PIPELINE_BIND_POINT_COMPUTE) != nil {
		t.Error("binding survived execute commands")
	}
	_ = cb.BindPipeline(p)
	m := d.Metrics()
	if m.PipelineBindsEncoded != 2 || m.PipelineBindsElided != 0 {
		t.Errorf("binds encoded=%d elided=%d", m.PipelineBindsEncoded, m.PipelineBindsElided)
	}
}

func TestSecondaryPendingWithPrimary(t *testing.T) {
	d, sw := newTestDevice(t, Options{})
	q := mustQueue(t, d, 0, 0)
	ev, _ := d.CreateEvent()

	sec := mustSecondary(t, d)
	_ = sec.Begin(0)
	_ = sec.WaitForEvent(ev, metadata.PIPELINE_STAGE_HOST, metadata.PIPELINE_STAGE_ALL_COMMANDS, MemoryBarrierSet{})
	_ = sec.Dispatch(1, 1, 1)
	_ = sec.End()

	cb := mustPrimary(t, d, 0)
	_ = cb.Begin(0)
	_ = cb.ExecuteCommands(sec)
	_ = cb.End()

	fence, _ := d.CreateFence(false)
	if err := q.Submit([]SubmitInfo{{CommandBuffers: []*CommandBuffer{cb}}}, fence); err != nil {
		t.Fatal(err)
	}
	if got := sec.State(); got != COMMAND_BUFFER_STATE_PENDING {
		t.Errorf("secondary state = %s", got)
	}
	if err := sec.Begin(0); !errors.Is(err, core.ErrCommandBufferPending) {
		t.Errorf("begin of pending secondary: %v", err)
	}

	if err := ev.Set(); err != nil {
		t.Fatal(err)
	}
	if ok, err := fence.Wait(TimeoutInfinite); !ok || err != nil {
		t.Fatalf("wait: ok=%v err=%v", ok, err)
	}
	if got := sec.State(); got != COMMAND_BUFFER_STATE_EXECUTABLE {
		t.Errorf("secondary state after completion = %s", got)
	}

	execs := sw.Executions()
	if len(execs) != 1 {
		t.Fatalf("executions %+v", execs)
	}
	want := []metadata.Opcode{metadata.OP_EXECUTE_COMMANDS, metadata.OP_WAIT_EVENTS, metadata.OP_DISPATCH}
	if len(execs[0].Ops) != len(want) {
		t.Fatalf("ops %v", execs[0].Ops)
	}
	for i, op := range want {
		if execs[0].Ops[i] != op {
			t.Errorf("op %d = %s, want %s", i, execs[0].Ops[i], op)
		}
	}
}

func TestRerecordingSecondaryInvalidatesPrimary(t *testing.T) {
	tests := []struct {
		name    string
		discard func(sec *SecondaryCommandBuffer) error
	}{
		{"reset", func(sec *SecondaryCommandBuffer) error { return sec.Reset(0) }},
		{"begin", func(sec *SecondaryCommandBuffer) error { return sec.Begin(0) }},
		{"begin and end", func(sec *SecondaryCommandBuffer) error {
			if err := sec.Begin(0); err != nil {
				return err
			}
			return sec.End()
		}},
		{"pool reset", func(sec *SecondaryCommandBuffer) error { return sec.Pool().Reset(0) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, sw := newTestDevice(t, Options{})
			q := mustQueue(t, d, 0, 0)

			sec := mustSecondary(t, d)
			_ = sec.Begin(0)
			_ = sec.Dispatch(1, 1, 1)
			_ = sec.End()

			cb := mustPrimary(t, d, 0)
			_ = cb.Begin(0)
			if err := cb.ExecuteCommands(sec); err != nil {
				t.Fatal(err)
			}
			if err := cb.End(); err != nil {
				t.Fatal(err)
			}
			if got := cb.State(); got != COMMAND_BUFFER_STATE_EXECUTABLE {
				t.Fatalf("primary state before discard = %s", got)
			}

			if err := tt.discard(sec); err != nil {
				t.Fatal(err)
			}
			if got := cb.State(); got != COMMAND_BUFFER_STATE_INVALID {
				t.Errorf("primary state after discard = %s", got)
			}
			err := q.Submit([]SubmitInfo{{CommandBuffers: []*CommandBuffer{cb}}}, nil)
			if !errors.Is(err, core.ErrNotExecutable) {
				t.Errorf("submit of stale primary: %v", err)
			}
			if err := q.WaitIdle(); err != nil {
				t.Fatal(err)
			}
			if n := len(sw.Executions()); n != 0 {
				t.Errorf("%d executions after rejected submit", n)
			}

			// recording again makes the primary usable
			_ = cb.Begin(0)
			_ = cb.Dispatch(1, 1, 1)
			_ = cb.End()
			if err := q.Submit([]SubmitInfo{{CommandBuffers: []*CommandBuffer{cb}}}, nil); err != nil {
				t.Fatalf("submit after re-recording: %v", err)
			}
		})
	}
}
