package renderer

import (
	"fmt"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

type PipelineKind uint8

const (
	PipelineKindGraphics PipelineKind = iota
	PipelineKindCompute
)

func (k PipelineKind) String() string {
	if k == PipelineKindCompute {
		return "compute"
	}
	return "graphics"
}

// Pipeline is an opaque bind target built elsewhere. Its identity (the
// pointer) is what the binding cache compares.
type Pipeline struct {
	resource
	kind       PipelineKind
	layout     *PipelineLayout
	renderPass *RenderPass
	subpass    uint32
}

func (p *Pipeline) Kind() PipelineKind {
	return p.kind
}

func (p *Pipeline) BindPoint() metadata.PipelineBindPoint {
	if p.kind == PipelineKindCompute {
		return metadata.PIPELINE_BIND_POINT_COMPUTE
	}
	return metadata.PIPELINE_BIND_POINT_GRAPHICS
}

func (p *Pipeline) Layout() *PipelineLayout {
	return p.layout
}

// RenderPass is nil for compute pipelines.
func (p *Pipeline) RenderPass() *RenderPass {
	return p.renderPass
}

func (p *Pipeline) Subpass() uint32 {
	return p.subpass
}

func (p *Pipeline) NativeHandle() metadata.Handle {
	return p.handle
}

func (d *Device) CreateGraphicsPipeline(layout *PipelineLayout, rp *RenderPass, subpass uint32) (*Pipeline, error) {
	if err := d.requireFactory(); err != nil {
		return nil, err
	}
	if layout == nil || rp == nil {
		return nil, fmt.Errorf("create graphics pipeline: %w", core.ErrNilResource)
	}
	if subpass >= rp.SubpassCount() {
		return nil, fmt.Errorf("create graphics pipeline for subpass %d: %w", subpass, core.ErrSubpassOutOfRange)
	}
	h, err := d.resources.CreatePipeline(&metadata.PipelineDescription{
		BindPoint:  metadata.PIPELINE_BIND_POINT_GRAPHICS,
		Layout:     layout.handle,
		RenderPass: rp.handle,
		Subpass:    subpass,
	})
	if err != nil {
		return nil, d.fail("create graphics pipeline", err)
	}
	return d.AdoptGraphicsPipeline(h, layout, rp, subpass), nil
}

func (d *Device) CreateComputePipeline(layout *PipelineLayout) (*Pipeline, error) {
	if err := d.requireFactory(); err != nil {
		return nil, err
	}
	if layout == nil {
		return nil, fmt.Errorf("create compute pipeline: %w", core.ErrNilResource)
	}
	h, err := d.resources.CreatePipeline(&metadata.PipelineDescription{
		BindPoint: metadata.PIPELINE_BIND_POINT_COMPUTE,
		Layout:    layout.handle,
	})
	if err != nil {
		return nil, d.fail("create compute pipeline", err)
	}
	return d.AdoptComputePipeline(h, layout), nil
}

// AdoptGraphicsPipeline wraps a pipeline built by an external factory.
func (d *Device) AdoptGraphicsPipeline(h metadata.Handle, layout *PipelineLayout, rp *RenderPass, subpass uint32) *Pipeline {
	return d.adoptPipeline(h, PipelineKindGraphics, layout, rp, subpass)
}

func (d *Device) AdoptComputePipeline(h metadata.Handle, layout *PipelineLayout) *Pipeline {
	return d.adoptPipeline(h, PipelineKindCompute, layout, nil, 0)
}

func (d *Device) adoptPipeline(h metadata.Handle, kind PipelineKind, layout *PipelineLayout, rp *RenderPass, subpass uint32) *Pipeline {
	p := &Pipeline{kind: kind, layout: layout, renderPass: rp, subpass: subpass}
	if layout != nil {
		layout.Retain()
	}
	if rp != nil {
		rp.Retain()
	}
	p.init(d, metadata.OBJECT_TYPE_PIPELINE, h, func() {
		if rp != nil {
			rp.Release()
		}
		if layout != nil {
			layout.Release()
		}
	})
	return p
}
