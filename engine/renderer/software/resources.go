package software

import (
	"fmt"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

type swapchain struct {
	images    []metadata.Handle
	result    metadata.Result
	presented []uint32
}

type regionKey struct {
	subresource metadata.ImageSubresource
	offset      metadata.Offset3D
}

func (b *Backend) createObject(kind metadata.ObjectType, deps ...metadata.Handle) (metadata.Handle, error) {
	if b.IsLost() {
		return metadata.NullHandle, errDeviceLost()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range deps {
		if _, ok := b.objects[d]; !ok {
			return metadata.NullHandle, fmt.Errorf("%s depends on %s: %w", kind, d, core.ErrInvalidHandle)
		}
	}
	h := b.newHandle()
	b.objects[h] = kind
	return h, nil
}

func (b *Backend) CreateBuffer(desc *metadata.BufferDescription) (metadata.Handle, error) {
	if desc.Size == 0 {
		return metadata.NullHandle, fmt.Errorf("buffer size 0: %w", core.ErrInvalidArgument)
	}
	return b.createObject(metadata.OBJECT_TYPE_BUFFER)
}

func (b *Backend) CreateImage(desc *metadata.ImageDescription) (metadata.Handle, error) {
	if desc.Extent.Width == 0 || desc.Extent.Height == 0 {
		return metadata.NullHandle, fmt.Errorf("image extent %dx%d: %w", desc.Extent.Width, desc.Extent.Height, core.ErrInvalidArgument)
	}
	return b.createObject(metadata.OBJECT_TYPE_IMAGE)
}

func (b *Backend) CreateImageView(desc *metadata.ImageViewDescription) (metadata.Handle, error) {
	return b.createObject(metadata.OBJECT_TYPE_IMAGE_VIEW, desc.Image)
}

func (b *Backend) AllocateMemory(desc *metadata.MemoryDescription) (metadata.Handle, error) {
	if desc.Size == 0 {
		return metadata.NullHandle, fmt.Errorf("allocation size 0: %w", core.ErrInvalidArgument)
	}
	return b.createObject(metadata.OBJECT_TYPE_DEVICE_MEMORY)
}

func (b *Backend) CreateDescriptorSetLayout(desc *metadata.DescriptorSetLayoutDescription) (metadata.Handle, error) {
	return b.createObject(metadata.OBJECT_TYPE_DESCRIPTOR_SET_LAYOUT)
}

func (b *Backend) AllocateDescriptorSet(layout metadata.Handle) (metadata.Handle, error) {
	return b.createObject(metadata.OBJECT_TYPE_DESCRIPTOR_SET, layout)
}

func (b *Backend) CreatePipelineLayout(desc *metadata.PipelineLayoutDescription) (metadata.Handle, error) {
	return b.createObject(metadata.OBJECT_TYPE_PIPELINE_LAYOUT, desc.SetLayouts...)
}

func (b *Backend) CreatePipeline(desc *metadata.PipelineDescription) (metadata.Handle, error) {
	deps := []metadata.Handle{desc.Layout}
	if !desc.RenderPass.IsNull() {
		deps = append(deps, desc.RenderPass)
	}
	return b.createObject(metadata.OBJECT_TYPE_PIPELINE, deps...)
}

func (b *Backend) CreateRenderPass(desc *metadata.RenderPassDescription) (metadata.Handle, error) {
	if len(desc.Subpasses) == 0 {
		return metadata.NullHandle, fmt.Errorf("render pass without subpasses: %w", core.ErrInvalidArgument)
	}
	return b.createObject(metadata.OBJECT_TYPE_RENDER_PASS)
}

func (b *Backend) CreateFramebuffer(desc *metadata.FramebufferDescription) (metadata.Handle, error) {
	return b.createObject(metadata.OBJECT_TYPE_FRAMEBUFFER, append([]metadata.Handle{desc.RenderPass}, desc.Attachments...)...)
}

// CreateSwapchain returns the swapchain and its presentable images.
func (b *Backend) CreateSwapchain(desc *metadata.SwapchainDescription) (metadata.Handle, []metadata.Handle, error) {
	if desc.ImageCount == 0 {
		return metadata.NullHandle, nil, fmt.Errorf("swapchain without images: %w", core.ErrInvalidArgument)
	}
	h, err := b.createObject(metadata.OBJECT_TYPE_SWAPCHAIN)
	if err != nil {
		return metadata.NullHandle, nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	sc := &swapchain{images: make([]metadata.Handle, desc.ImageCount), result: metadata.RESULT_SUCCESS}
	for i := range sc.images {
		sc.images[i] = b.newHandle()
		b.objects[sc.images[i]] = metadata.OBJECT_TYPE_IMAGE
	}
	b.swapchains[h] = sc
	return h, append([]metadata.Handle(nil), sc.images...), nil
}

func (b *Backend) DestroyObject(kind metadata.ObjectType, h metadata.Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if got, ok := b.objects[h]; ok && got != kind {
		core.LogWarn("software device: destroying %s %s as %s", got, h, kind)
	}
	delete(b.objects, h)
	delete(b.swapchains, h)
	delete(b.sparse, h)
	delete(b.regions, h)
}

// applySparse installs the binds of one group. A bind with a null memory
// handle removes whatever was bound at its offset or region.
func (b *Backend) applySparse(batch *metadata.SparseBatch, group int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	opaque := append(append([]metadata.SparseResourceBinds(nil), batch.GroupBufferBinds(group)...), batch.GroupImageOpaqueBinds(group)...)
	for _, r := range opaque {
		binds := b.sparse[r.Resource]
		if binds == nil {
			binds = make(map[uint64]metadata.SparseMemoryBind)
			b.sparse[r.Resource] = binds
		}
		for _, bind := range batch.Binds(r) {
			if bind.Memory.IsNull() {
				delete(binds, bind.ResourceOffset)
				continue
			}
			binds[bind.ResourceOffset] = bind
		}
	}
	for _, r := range batch.GroupImageBinds(group) {
		regions := b.regions[r.Resource]
		if regions == nil {
			regions = make(map[regionKey]metadata.SparseImageMemoryBind)
			b.regions[r.Resource] = regions
		}
		for _, bind := range batch.ImageRegionBinds(r) {
			key := regionKey{subresource: bind.Subresource, offset: bind.Offset}
			if bind.Memory.IsNull() {
				delete(regions, key)
				continue
			}
			regions[key] = bind
		}
	}
	b.broadcast()
}

// IsLive reports whether h names a resource the device has not destroyed.
func (b *Backend) IsLive(h metadata.Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[h]
	return ok
}

// SparseBindings counts the memory binds currently installed for a resource.
func (b *Backend) SparseBindings(resource metadata.Handle) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sparse[resource]) + len(b.regions[resource])
}

// BoundMemory returns the memory bound at a resource offset.
func (b *Backend) BoundMemory(resource metadata.Handle, offset uint64) (metadata.Handle, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bind, ok := b.sparse[resource][offset]
	return bind.Memory, ok
}

// PresentedImages lists the image indices presented on a swapchain, in order.
func (b *Backend) PresentedImages(h metadata.Handle) []uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sc, ok := b.swapchains[h]; ok {
		return append([]uint32(nil), sc.presented...)
	}
	return nil
}

// SetSwapchainResult makes every later present on h report res.
func (b *Backend) SetSwapchainResult(h metadata.Handle, res metadata.Result) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sc, ok := b.swapchains[h]; ok {
		sc.result = res
	}
}
