package renderer

import "github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"

// PipelineBindingCache remembers the last pipeline bound at each bind point
// so that rebinding the same pipeline can be skipped.
type PipelineBindingCache struct {
	graphics *Pipeline
	compute  *Pipeline
}

// Bind records p as bound and reports whether a bind command must be encoded.
// Identity is the *Pipeline pointer.
func (c *PipelineBindingCache) Bind(p *Pipeline) bool {
	slot := c.slot(p.BindPoint())
	if *slot == p {
		return false
	}
	*slot = p
	return true
}

func (c *PipelineBindingCache) Bound(bindPoint metadata.PipelineBindPoint) *Pipeline {
	return *c.slot(bindPoint)
}

func (c *PipelineBindingCache) Reset() {
	c.graphics = nil
	c.compute = nil
}

func (c *PipelineBindingCache) slot(bindPoint metadata.PipelineBindPoint) **Pipeline {
	if bindPoint == metadata.PIPELINE_BIND_POINT_COMPUTE {
		return &c.compute
	}
	return &c.graphics
}
