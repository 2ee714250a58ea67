package renderer

import (
	"fmt"
	"sync/atomic"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

type Buffer struct {
	resource
	desc metadata.BufferDescription
}

func (b *Buffer) Size() uint64 {
	return b.desc.Size
}

func (b *Buffer) IsSparse() bool {
	return b.desc.Sparse
}

type Image struct {
	resource
	desc   metadata.ImageDescription
	layout atomic.Int32
}

func (i *Image) Description() metadata.ImageDescription {
	return i.desc
}

func (i *Image) IsSparse() bool {
	return i.desc.Sparse
}

// CurrentLayout is the layout last recorded by render pass tracking on a
// validating device, or the initial layout.
func (i *Image) CurrentLayout() metadata.ImageLayout {
	return metadata.ImageLayout(i.layout.Load())
}

func (i *Image) setLayout(l metadata.ImageLayout) {
	i.layout.Store(int32(l))
}

type ImageView struct {
	resource
	image *Image
}

func (v *ImageView) Image() *Image {
	return v.image
}

type DeviceMemory struct {
	resource
	size uint64
}

func (m *DeviceMemory) Size() uint64 {
	return m.size
}

type DescriptorSetLayout struct {
	resource
	desc metadata.DescriptorSetLayoutDescription
}

type DescriptorSet struct {
	resource
	layout *DescriptorSetLayout
}

func (s *DescriptorSet) Layout() *DescriptorSetLayout {
	return s.layout
}

type PipelineLayout struct {
	resource
	setLayouts []*DescriptorSetLayout
	pushRanges []metadata.PushConstantRange
}

func (l *PipelineLayout) SetLayouts() []*DescriptorSetLayout {
	return l.setLayouts
}

// compatible reports whether sets can be bound starting at firstSet.
func (l *PipelineLayout) compatible(firstSet uint32, sets []*DescriptorSet) error {
	if int(firstSet)+len(sets) > len(l.setLayouts) {
		return fmt.Errorf("sets %d..%d exceed %d set layouts: %w",
			firstSet, int(firstSet)+len(sets)-1, len(l.setLayouts), core.ErrIncompatibleDescriptor)
	}
	for i, s := range sets {
		if s.layout != l.setLayouts[int(firstSet)+i] {
			return fmt.Errorf("set %d: %w", int(firstSet)+i, core.ErrIncompatibleDescriptor)
		}
	}
	return nil
}

type RenderPass struct {
	resource
	desc metadata.RenderPassDescription
}

func (rp *RenderPass) Description() *metadata.RenderPassDescription {
	return &rp.desc
}

func (rp *RenderPass) SubpassCount() uint32 {
	return uint32(len(rp.desc.Subpasses))
}

// CompatibleWith is true for the same render pass or one with identical
// attachment formats and subpass count.
func (rp *RenderPass) CompatibleWith(other *RenderPass) bool {
	if rp == other {
		return true
	}
	if other == nil || len(rp.desc.Attachments) != len(other.desc.Attachments) ||
		len(rp.desc.Subpasses) != len(other.desc.Subpasses) {
		return false
	}
	for i := range rp.desc.Attachments {
		if rp.desc.Attachments[i].Format != other.desc.Attachments[i].Format {
			return false
		}
	}
	return true
}

type Framebuffer struct {
	resource
	renderPass  *RenderPass
	attachments []*ImageView
	extent      metadata.Extent2D
}

func (fb *Framebuffer) RenderPass() *RenderPass {
	return fb.renderPass
}

func (fb *Framebuffer) Attachment(i int) *ImageView {
	return fb.attachments[i]
}

func (fb *Framebuffer) AttachmentCount() int {
	return len(fb.attachments)
}

func (fb *Framebuffer) Extent() metadata.Extent2D {
	return fb.extent
}

type Swapchain struct {
	resource
	images []*Image
}

func (s *Swapchain) Images() []*Image {
	return s.images
}

func (s *Swapchain) ImageCount() uint32 {
	return uint32(len(s.images))
}

func (d *Device) requireFactory() error {
	if d.destroyed.Load() {
		return core.ErrDeviceDestroyed
	}
	if d.resources == nil {
		return fmt.Errorf("%s backend: %w", d.backend.Name(), core.ErrUnsupported)
	}
	return nil
}

func (d *Device) CreateBuffer(desc metadata.BufferDescription) (*Buffer, error) {
	if err := d.requireFactory(); err != nil {
		return nil, err
	}
	h, err := d.resources.CreateBuffer(&desc)
	if err != nil {
		return nil, d.fail("create buffer", err)
	}
	return d.AdoptBuffer(h, desc), nil
}

// AdoptBuffer wraps a buffer created outside the device.
func (d *Device) AdoptBuffer(h metadata.Handle, desc metadata.BufferDescription) *Buffer {
	b := &Buffer{desc: desc}
	b.init(d, metadata.OBJECT_TYPE_BUFFER, h, nil)
	return b
}

func (d *Device) CreateImage(desc metadata.ImageDescription) (*Image, error) {
	if err := d.requireFactory(); err != nil {
		return nil, err
	}
	h, err := d.resources.CreateImage(&desc)
	if err != nil {
		return nil, d.fail("create image", err)
	}
	return d.AdoptImage(h, desc), nil
}

func (d *Device) AdoptImage(h metadata.Handle, desc metadata.ImageDescription) *Image {
	img := &Image{desc: desc}
	img.setLayout(desc.InitialLayout)
	img.init(d, metadata.OBJECT_TYPE_IMAGE, h, nil)
	return img
}

func (d *Device) CreateImageView(image *Image, rng metadata.ImageSubresourceRange) (*ImageView, error) {
	if err := d.requireFactory(); err != nil {
		return nil, err
	}
	if image == nil {
		return nil, fmt.Errorf("create image view: %w", core.ErrNilResource)
	}
	h, err := d.resources.CreateImageView(&metadata.ImageViewDescription{
		Image:            image.handle,
		Format:           image.desc.Format,
		SubresourceRange: rng,
	})
	if err != nil {
		return nil, d.fail("create image view", err)
	}
	return d.AdoptImageView(h, image), nil
}

// AdoptImageView wraps a view of image. The view keeps the image alive.
func (d *Device) AdoptImageView(h metadata.Handle, image *Image) *ImageView {
	image.Retain()
	v := &ImageView{image: image}
	v.init(d, metadata.OBJECT_TYPE_IMAGE_VIEW, h, image.Release)
	return v
}

func (d *Device) AllocateMemory(size uint64, memoryTypeIndex uint32) (*DeviceMemory, error) {
	if err := d.requireFactory(); err != nil {
		return nil, err
	}
	h, err := d.resources.AllocateMemory(&metadata.MemoryDescription{Size: size, MemoryTypeIndex: memoryTypeIndex})
	if err != nil {
		return nil, d.fail("allocate memory", err)
	}
	return d.AdoptMemory(h, size), nil
}

func (d *Device) AdoptMemory(h metadata.Handle, size uint64) *DeviceMemory {
	m := &DeviceMemory{size: size}
	m.init(d, metadata.OBJECT_TYPE_DEVICE_MEMORY, h, nil)
	return m
}

func (d *Device) CreateDescriptorSetLayout(desc metadata.DescriptorSetLayoutDescription) (*DescriptorSetLayout, error) {
	if err := d.requireFactory(); err != nil {
		return nil, err
	}
	h, err := d.resources.CreateDescriptorSetLayout(&desc)
	if err != nil {
		return nil, d.fail("create descriptor set layout", err)
	}
	return d.AdoptDescriptorSetLayout(h, desc), nil
}

func (d *Device) AdoptDescriptorSetLayout(h metadata.Handle, desc metadata.DescriptorSetLayoutDescription) *DescriptorSetLayout {
	l := &DescriptorSetLayout{desc: desc}
	l.init(d, metadata.OBJECT_TYPE_DESCRIPTOR_SET_LAYOUT, h, nil)
	return l
}

func (d *Device) AllocateDescriptorSet(layout *DescriptorSetLayout) (*DescriptorSet, error) {
	if err := d.requireFactory(); err != nil {
		return nil, err
	}
	if layout == nil {
		return nil, fmt.Errorf("allocate descriptor set: %w", core.ErrNilResource)
	}
	h, err := d.resources.AllocateDescriptorSet(layout.handle)
	if err != nil {
		return nil, d.fail("allocate descriptor set", err)
	}
	return d.AdoptDescriptorSet(h, layout), nil
}

func (d *Device) AdoptDescriptorSet(h metadata.Handle, layout *DescriptorSetLayout) *DescriptorSet {
	layout.Retain()
	s := &DescriptorSet{layout: layout}
	s.init(d, metadata.OBJECT_TYPE_DESCRIPTOR_SET, h, layout.Release)
	return s
}

func (d *Device) CreatePipelineLayout(setLayouts []*DescriptorSetLayout, pushRanges []metadata.PushConstantRange) (*PipelineLayout, error) {
	if err := d.requireFactory(); err != nil {
		return nil, err
	}
	desc := &metadata.PipelineLayoutDescription{PushConstantRanges: pushRanges}
	for _, l := range setLayouts {
		if l == nil {
			return nil, fmt.Errorf("create pipeline layout: %w", core.ErrNilResource)
		}
		desc.SetLayouts = append(desc.SetLayouts, l.handle)
	}
	h, err := d.resources.CreatePipelineLayout(desc)
	if err != nil {
		return nil, d.fail("create pipeline layout", err)
	}
	return d.AdoptPipelineLayout(h, setLayouts, pushRanges), nil
}

// AdoptPipelineLayout wraps a layout built from setLayouts, which it keeps alive.
func (d *Device) AdoptPipelineLayout(h metadata.Handle, setLayouts []*DescriptorSetLayout, pushRanges []metadata.PushConstantRange) *PipelineLayout {
	l := &PipelineLayout{
		setLayouts: append([]*DescriptorSetLayout(nil), setLayouts...),
		pushRanges: append([]metadata.PushConstantRange(nil), pushRanges...),
	}
	for _, s := range l.setLayouts {
		s.Retain()
	}
	l.init(d, metadata.OBJECT_TYPE_PIPELINE_LAYOUT, h, func() {
		for _, s := range l.setLayouts {
			s.Release()
		}
	})
	return l
}

func (d *Device) CreateRenderPass(desc metadata.RenderPassDescription) (*RenderPass, error) {
	if d.destroyed.Load() {
		return nil, core.ErrDeviceDestroyed
	}
	if d.passes == nil {
		return nil, fmt.Errorf("%s backend: %w", d.backend.Name(), core.ErrUnsupported)
	}
	if len(desc.Subpasses) == 0 {
		return nil, fmt.Errorf("render pass without subpasses: %w", core.ErrInvalidArgument)
	}
	for si, sp := range desc.Subpasses {
		for _, ref := range sp.References() {
			if int(ref.Attachment) >= len(desc.Attachments) {
				return nil, fmt.Errorf("subpass %d references attachment %d of %d: %w",
					si, ref.Attachment, len(desc.Attachments), core.ErrInvalidArgument)
			}
		}
	}
	h, err := d.passes.CreateRenderPass(&desc)
	if err != nil {
		return nil, d.fail("create render pass", err)
	}
	return d.AdoptRenderPass(h, desc), nil
}

func (d *Device) AdoptRenderPass(h metadata.Handle, desc metadata.RenderPassDescription) *RenderPass {
	rp := &RenderPass{desc: desc}
	rp.init(d, metadata.OBJECT_TYPE_RENDER_PASS, h, nil)
	return rp
}

func (d *Device) CreateFramebuffer(rp *RenderPass, attachments []*ImageView, width, height uint32) (*Framebuffer, error) {
	if d.destroyed.Load() {
		return nil, core.ErrDeviceDestroyed
	}
	if d.passes == nil {
		return nil, fmt.Errorf("%s backend: %w", d.backend.Name(), core.ErrUnsupported)
	}
	if rp == nil {
		return nil, fmt.Errorf("create framebuffer: %w", core.ErrNilResource)
	}
	if len(attachments) != len(rp.desc.Attachments) {
		return nil, fmt.Errorf("framebuffer has %d attachments, render pass declares %d: %w",
			len(attachments), len(rp.desc.Attachments), core.ErrInvalidArgument)
	}
	desc := &metadata.FramebufferDescription{
		RenderPass: rp.handle,
		Width:      width,
		Height:     height,
		Layers:     1,
	}
	for _, a := range attachments {
		if a == nil {
			return nil, fmt.Errorf("create framebuffer: %w", core.ErrNilResource)
		}
		desc.Attachments = append(desc.Attachments, a.handle)
	}
	h, err := d.passes.CreateFramebuffer(desc)
	if err != nil {
		return nil, d.fail("create framebuffer", err)
	}
	return d.AdoptFramebuffer(h, rp, attachments, width, height), nil
}

// AdoptFramebuffer wraps a framebuffer. It keeps its render pass and views alive.
func (d *Device) AdoptFramebuffer(h metadata.Handle, rp *RenderPass, attachments []*ImageView, width, height uint32) *Framebuffer {
	fb := &Framebuffer{
		renderPass:  rp,
		attachments: append([]*ImageView(nil), attachments...),
		extent:      metadata.Extent2D{Width: width, Height: height},
	}
	rp.Retain()
	for _, a := range fb.attachments {
		a.Retain()
	}
	fb.init(d, metadata.OBJECT_TYPE_FRAMEBUFFER, h, func() {
		for _, a := range fb.attachments {
			a.Release()
		}
		rp.Release()
	})
	return fb
}

func (d *Device) CreateSwapchain(desc metadata.SwapchainDescription) (*Swapchain, error) {
	if err := d.requireFactory(); err != nil {
		return nil, err
	}
	h, images, err := d.resources.CreateSwapchain(&desc)
	if err != nil {
		return nil, d.fail("create swapchain", err)
	}
	imgDesc := metadata.ImageDescription{
		Format:        desc.Format,
		Extent:        metadata.Extent3D{Width: desc.Extent.Width, Height: desc.Extent.Height, Depth: 1},
		MipLevels:     1,
		ArrayLayers:   1,
		Usage:         metadata.IMAGE_USAGE_COLOR_ATTACHMENT,
		InitialLayout: metadata.IMAGE_LAYOUT_UNDEFINED,
	}
	wrapped := make([]*Image, len(images))
	for i, ih := range images {
		wrapped[i] = d.AdoptImage(ih, imgDesc)
	}
	return d.AdoptSwapchain(h, wrapped), nil
}

// AdoptSwapchain wraps a swapchain and its presentable images.
func (d *Device) AdoptSwapchain(h metadata.Handle, images []*Image) *Swapchain {
	s := &Swapchain{images: images}
	s.init(d, metadata.OBJECT_TYPE_SWAPCHAIN, h, func() {
		for _, img := range images {
			// presentable images belong to the swapchain, not the caller
			img.Destroy()
		}
	})
	return s
}
