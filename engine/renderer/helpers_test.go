package renderer

import (
	"testing"

	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/software"
)

func newTestDevice(t *testing.T, opts Options) (*Device, *software.Backend) {
	t.Helper()
	sw := software.New(software.Options{})
	d, err := NewDevice(sw, opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(d.Destroy)
	return d, sw
}

func mustQueue(t *testing.T, d *Device, family, index uint32) *Queue {
	t.Helper()
	q, err := d.Queue(family, index)
	if err != nil {
		t.Fatal(err)
	}
	return q
}

func mustPrimary(t *testing.T, d *Device, family uint32) *CommandBuffer {
	t.Helper()
	pool, err := d.CreateCommandPool(family, metadata.COMMAND_POOL_CREATE_RESET_COMMAND_BUFFER)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Destroy)
	cb, err := pool.AllocateCommandBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return cb
}

func mustComputePipeline(t *testing.T, d *Device) *Pipeline {
	t.Helper()
	layout, err := d.CreatePipelineLayout(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	p, err := d.CreateComputePipeline(layout)
	if err != nil {
		t.Fatal(err)
	}
	layout.Destroy()
	return p
}

// colorPass builds a render pass with one presentable color attachment and
// the given subpass layouts, plus a framebuffer over a fresh image.
func colorPass(t *testing.T, d *Device, layouts ...metadata.ImageLayout) (*RenderPass, *Framebuffer, *Image) {
	t.Helper()
	desc := metadata.RenderPassDescription{
		Attachments: []metadata.AttachmentDescription{{
			Format:        metadata.FORMAT_B8G8R8A8_UNORM,
			LoadOp:        metadata.ATTACHMENT_LOAD_OP_CLEAR,
			StoreOp:       metadata.ATTACHMENT_STORE_OP_STORE,
			InitialLayout: metadata.IMAGE_LAYOUT_UNDEFINED,
			FinalLayout:   metadata.IMAGE_LAYOUT_PRESENT_SRC,
		}},
	}
	for _, l := range layouts {
		sp := metadata.SubpassDescription{BindPoint: metadata.PIPELINE_BIND_POINT_GRAPHICS}
		if l == metadata.IMAGE_LAYOUT_SHADER_READ_ONLY_OPTIMAL {
			sp.InputAttachments = []metadata.AttachmentReference{{Attachment: 0, Layout: l}}
		} else {
			sp.ColorAttachments = []metadata.AttachmentReference{{Attachment: 0, Layout: l}}
		}
		desc.Subpasses = append(desc.Subpasses, sp)
	}
	rp, err := d.CreateRenderPass(desc)
	if err != nil {
		t.Fatal(err)
	}
	img, err := d.CreateImage(metadata.ImageDescription{
		Format:        metadata.FORMAT_B8G8R8A8_UNORM,
		Extent:        metadata.Extent3D{Width: 64, Height: 64, Depth: 1},
		MipLevels:     1,
		ArrayLayers:   1,
		Usage:         metadata.IMAGE_USAGE_COLOR_ATTACHMENT,
		InitialLayout: metadata.IMAGE_LAYOUT_UNDEFINED,
	})
	if err != nil {
		t.Fatal(err)
	}
	view, err := d.CreateImageView(img, metadata.ImageSubresourceRange{
		AspectMask: metadata.IMAGE_ASPECT_COLOR,
		LevelCount: 1,
		LayerCount: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	fb, err := d.CreateFramebuffer(rp, []*ImageView{view}, 64, 64)
	if err != nil {
		t.Fatal(err)
	}
	return rp, fb, img
}

func fullArea() metadata.Rect2D {
	return metadata.Rect2D{Extent: metadata.Extent2D{Width: 64, Height: 64}}
}

func countOps(sw *software.Backend, cb PooledCommandBuffer, op metadata.Opcode) int {
	return sw.CountOps(cb.Handle(), op)
}
