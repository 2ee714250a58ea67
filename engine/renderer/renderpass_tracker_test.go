package renderer

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

func TestSubpassLayoutsFollowRenderPass(t *testing.T) {
	d, _ := newTestDevice(t, Options{Validation: true})
	cb := mustPrimary(t, d, 0)
	rp, fb, img := colorPass(t, d,
		metadata.IMAGE_LAYOUT_COLOR_ATTACHMENT_OPTIMAL,
		metadata.IMAGE_LAYOUT_SHADER_READ_ONLY_OPTIMAL,
		metadata.IMAGE_LAYOUT_GENERAL,
	)

	_ = cb.Begin(0)
	if err := cb.BeginRenderPass(fb, nil, fullArea(), metadata.SUBPASS_CONTENTS_INLINE); err != nil {
		t.Fatal(err)
	}
	want := []metadata.ImageLayout{
		metadata.IMAGE_LAYOUT_COLOR_ATTACHMENT_OPTIMAL,
		metadata.IMAGE_LAYOUT_SHADER_READ_ONLY_OPTIMAL,
		metadata.IMAGE_LAYOUT_GENERAL,
	}
	for i, layout := range want {
		if i > 0 {
			if err := cb.NextSubpass(metadata.SUBPASS_CONTENTS_INLINE); err != nil {
				t.Fatalf("subpass %d: %v", i, err)
			}
		}
		if got := img.CurrentLayout(); got != layout {
			t.Errorf("subpass %d layout = %v, want %v", i, got, layout)
		}
		gotRP, gotFB, subpass := cb.RenderPassState()
		if gotRP != rp || gotFB != fb || subpass != uint32(i) {
			t.Errorf("subpass %d tracker = %p %p %d", i, gotRP, gotFB, subpass)
		}
	}

	if err := cb.NextSubpass(metadata.SUBPASS_CONTENTS_INLINE); !errors.Is(err, core.ErrSubpassOutOfRange) {
		t.Errorf("next past last subpass: %v", err)
	}
	if err := cb.EndRenderPass(); err != nil {
		t.Fatal(err)
	}
	if got := img.CurrentLayout(); got != metadata.IMAGE_LAYOUT_PRESENT_SRC {
		t.Errorf("final layout = %v", got)
	}
	if gotRP, _, _ := cb.RenderPassState(); gotRP != nil {
		t.Error("tracker still active after end")
	}
	if err := cb.End(); err != nil {
		t.Fatal(err)
	}
}

func TestLayoutsUntrackedWithoutValidation(t *testing.T) {
	d, _ := newTestDevice(t, Options{})
	cb := mustPrimary(t, d, 0)
	_, fb, img := colorPass(t, d, metadata.IMAGE_LAYOUT_COLOR_ATTACHMENT_OPTIMAL)

	_ = cb.Begin(0)
	_ = cb.BeginRenderPass(fb, nil, fullArea(), metadata.SUBPASS_CONTENTS_INLINE)
	_ = cb.EndRenderPass()
	if got := img.CurrentLayout(); got != metadata.IMAGE_LAYOUT_UNDEFINED {
		t.Errorf("layout changed to %v without validation", got)
	}
}

func TestRenderPassProtocolErrors(t *testing.T) {
	d, _ := newTestDevice(t, Options{})
	cb := mustPrimary(t, d, 0)
	_, fb, _ := colorPass(t, d,
		metadata.IMAGE_LAYOUT_COLOR_ATTACHMENT_OPTIMAL,
		metadata.IMAGE_LAYOUT_GENERAL,
	)
	_ = cb.Begin(0)

	if err := cb.NextSubpass(metadata.SUBPASS_CONTENTS_INLINE); !errors.Is(err, core.ErrNoActiveRenderPass) {
		t.Errorf("next subpass outside a render pass: %v", err)
	}
	if err := cb.EndRenderPass(); !errors.Is(err, core.ErrNoActiveRenderPass) {
		t.Errorf("end outside a render pass: %v", err)
	}
	if err := cb.BeginRenderPass(nil, nil, fullArea(), metadata.SUBPASS_CONTENTS_INLINE); !errors.Is(err, core.ErrNilResource) {
		t.Errorf("nil framebuffer: %v", err)
	}

	_ = cb.BeginRenderPass(fb, nil, fullArea(), metadata.SUBPASS_CONTENTS_INLINE)
	if err := cb.EndRenderPass(); !errors.Is(err, core.ErrSubpassOutOfRange) {
		t.Errorf("end before the last subpass: %v", err)
	}
	_ = cb.NextSubpass(metadata.SUBPASS_CONTENTS_INLINE)
	if err := cb.EndRenderPass(); err != nil {
		t.Errorf("end in last subpass: %v", err)
	}
}

func TestBeginRenderPassRejectsIncompatiblePass(t *testing.T) {
	d, _ := newTestDevice(t, Options{})
	cb := mustPrimary(t, d, 0)
	_, fb, _ := colorPass(t, d, metadata.IMAGE_LAYOUT_COLOR_ATTACHMENT_OPTIMAL)
	other, _, _ := colorPass(t, d,
		metadata.IMAGE_LAYOUT_COLOR_ATTACHMENT_OPTIMAL,
		metadata.IMAGE_LAYOUT_GENERAL,
	)
	compatible, _, _ := colorPass(t, d, metadata.IMAGE_LAYOUT_GENERAL)

	_ = cb.Begin(0)
	if err := cb.BeginRenderPass(fb, other, fullArea(), metadata.SUBPASS_CONTENTS_INLINE); !errors.Is(err, core.ErrIncompatibleRenderPass) {
		t.Errorf("incompatible pass: %v", err)
	}
	if err := cb.BeginRenderPass(fb, compatible, fullArea(), metadata.SUBPASS_CONTENTS_INLINE); err != nil {
		t.Errorf("compatible pass: %v", err)
	}
}

func TestDescriptorSetsCheckedAgainstLayout(t *testing.T) {
	desc := metadata.DescriptorSetLayoutDescription{Bindings: []metadata.DescriptorSetLayoutBinding{{
		Binding:         0,
		DescriptorCount: 1,
		StageFlags:      metadata.SHADER_STAGE_COMPUTE,
	}}}

	tests := []struct {
		name       string
		validation bool
		firstSet   uint32
		useOther   bool
		want       error
	}{
		{"matching", true, 0, false, nil},
		{"other layout", true, 0, true, core.ErrIncompatibleDescriptor},
		{"past the end", true, 1, false, core.ErrIncompatibleDescriptor},
		{"unchecked", false, 1, true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := newTestDevice(t, Options{Validation: tt.validation})
			cb := mustPrimary(t, d, 0)
			setLayout, err := d.CreateDescriptorSetLayout(desc)
			if err != nil {
				t.Fatal(err)
			}
			otherLayout, _ := d.CreateDescriptorSetLayout(desc)
			layout, err := d.CreatePipelineLayout([]*DescriptorSetLayout{setLayout}, nil)
			if err != nil {
				t.Fatal(err)
			}
			from := setLayout
			if tt.useOther {
				from = otherLayout
			}
			set, err := d.AllocateDescriptorSet(from)
			if err != nil {
				t.Fatal(err)
			}

			_ = cb.Begin(0)
			err = cb.BindDescriptorSets(metadata.PIPELINE_BIND_POINT_COMPUTE, layout, tt.firstSet, []*DescriptorSet{set})
			if tt.want == nil && err != nil {
				t.Errorf("bind: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("bind = %v, want %v", err, tt.want)
			}
		})
	}
}
