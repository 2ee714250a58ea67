package renderer

import (
	"errors"
	"testing"
	"time"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

func TestFrameLoopPresentsInOrder(t *testing.T) {
	d, sw := newTestDevice(t, Options{Validation: true})
	q := mustQueue(t, d, 0, 0)
	sc, err := d.CreateSwapchain(metadata.SwapchainDescription{
		ImageCount: 3,
		Format:     metadata.FORMAT_B8G8R8A8_SRGB,
		Extent:     metadata.Extent2D{Width: 64, Height: 64},
	})
	if err != nil {
		t.Fatal(err)
	}
	loop, err := NewFrameLoop(d, q, sc, 2, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer loop.Shutdown()

	for i := 0; i < 5; i++ {
		err := loop.DrawFrame(func(f *Frame) error {
			if f.Slot != i%2 || f.Number != uint64(i) {
				t.Errorf("frame %d got slot %d number %d", i, f.Slot, f.Number)
			}
			return f.CommandBuffer.Draw(3, 1, 0, 0)
		})
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
	if err := d.WaitIdle(); err != nil {
		t.Fatal(err)
	}

	want := []uint32{0, 1, 2, 0, 1}
	got := sw.PresentedImages(sc.Handle())
	if len(got) != len(want) {
		t.Fatalf("presented %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("present %d = %d, want %d", i, got[i], want[i])
		}
	}
	if loop.FrameNumber() != 5 {
		t.Errorf("frame number %d", loop.FrameNumber())
	}
	if m := d.Metrics(); m.Presents != 5 || m.Submissions != 5 {
		t.Errorf("metrics presents=%d submissions=%d", m.Presents, m.Submissions)
	}
}

func TestFrameLoopRecoversFromRecordError(t *testing.T) {
	d, _ := newTestDevice(t, Options{})
	q := mustQueue(t, d, 1, 0)
	loop, err := NewFrameLoop(d, q, nil, 1, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer loop.Shutdown()

	boom := errors.New("boom")
	if err := loop.DrawFrame(func(*Frame) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("record error not returned: %v", err)
	}
	// the only slot must be usable again
	err = loop.DrawFrame(func(f *Frame) error { return f.CommandBuffer.Dispatch(1, 1, 1) })
	if err != nil {
		t.Fatalf("frame after failure: %v", err)
	}
	if loop.FrameNumber() != 1 {
		t.Errorf("frame number %d", loop.FrameNumber())
	}
}

func TestFrameLoopRecoversFromEndFailure(t *testing.T) {
	tests := []struct {
		name   string
		record func(t *testing.T, d *Device) func(f *Frame) error
		want   error
	}{
		{
			name: "render pass left open",
			record: func(t *testing.T, d *Device) func(f *Frame) error {
				_, fb, _ := colorPass(t, d, metadata.IMAGE_LAYOUT_COLOR_ATTACHMENT_OPTIMAL)
				return func(f *Frame) error {
					return f.CommandBuffer.BeginRenderPass(fb, nil, fullArea(), metadata.SUBPASS_CONTENTS_INLINE)
				}
			},
			want: core.ErrRenderPassActive,
		},
		{
			name: "ended while recording",
			record: func(t *testing.T, d *Device) func(f *Frame) error {
				return func(f *Frame) error { return f.CommandBuffer.End() }
			},
			want: core.ErrNotRecording,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := newTestDevice(t, Options{Validation: true})
			q := mustQueue(t, d, 0, 0)
			loop, err := NewFrameLoop(d, q, nil, 1, time.Second)
			if err != nil {
				t.Fatal(err)
			}
			defer loop.Shutdown()

			if err := loop.DrawFrame(tt.record(t, d)); !errors.Is(err, tt.want) {
				t.Fatalf("first frame: %v, want %v", err, tt.want)
			}
			if loop.FrameNumber() != 0 {
				t.Errorf("failed frame was counted, frame number %d", loop.FrameNumber())
			}
			// the only slot must not be left waiting on an unsignaled fence
			err = loop.DrawFrame(func(f *Frame) error { return f.CommandBuffer.Dispatch(1, 1, 1) })
			if err != nil {
				t.Fatalf("frame after failure: %v", err)
			}
			if loop.FrameNumber() != 1 {
				t.Errorf("frame number %d", loop.FrameNumber())
			}
		})
	}
}

func TestFrameLoopTimesOutOnStuckSlot(t *testing.T) {
	d, _ := newTestDevice(t, Options{})
	q := mustQueue(t, d, 0, 0)
	ev, _ := d.CreateEvent()
	loop, err := NewFrameLoop(d, q, nil, 1, 20*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	err = loop.DrawFrame(func(f *Frame) error {
		return f.CommandBuffer.WaitForEvent(ev, metadata.PIPELINE_STAGE_HOST, metadata.PIPELINE_STAGE_ALL_COMMANDS, MemoryBarrierSet{})
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := loop.BeginFrame(); !errors.Is(err, core.ErrFrameTimeout) {
		t.Errorf("begin on stuck slot: %v", err)
	}
	_ = ev.Set()
	loop.Shutdown()
}

func TestNewFrameLoopRejectsZeroFrames(t *testing.T) {
	d, _ := newTestDevice(t, Options{})
	q := mustQueue(t, d, 0, 0)
	if _, err := NewFrameLoop(d, q, nil, 0, time.Second); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("zero frames: %v", err)
	}
}
