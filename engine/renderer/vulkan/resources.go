package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

const (
	descriptorPoolMaxSets  = 1024
	descriptorPoolMaxCount = 4096
)

type bufferEntry struct {
	handle vk.Buffer
	// memory is owned by the buffer; nil for sparse buffers.
	memory vk.DeviceMemory
}

func (e bufferEntry) destroy(dev vk.Device, alloc *vk.AllocationCallbacks) {
	vk.DestroyBuffer(dev, e.handle, alloc)
	if e.memory != nil {
		vk.FreeMemory(dev, e.memory, alloc)
	}
}

type imageEntry struct {
	handle vk.Image
	memory vk.DeviceMemory
	format metadata.Format
}

func (e imageEntry) destroy(dev vk.Device, alloc *vk.AllocationCallbacks) {
	vk.DestroyImage(dev, e.handle, alloc)
	if e.memory != nil {
		vk.FreeMemory(dev, e.memory, alloc)
	}
}

// allocateDeviceLocal allocates device local memory matching requirements.
func (b *Backend) allocateDeviceLocal(requirements vk.MemoryRequirements) (vk.DeviceMemory, error) {
	requirements.Deref()
	memoryType, ok := b.context.FindMemoryIndex(requirements.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if !ok {
		return nil, fmt.Errorf("no device local memory type in %#x: %w", requirements.MemoryTypeBits, core.ErrOutOfDeviceMemory)
	}
	memoryAllocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: memoryType,
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(b.device(), &memoryAllocateInfo, b.context.Allocator, &memory); res != vk.Success {
		return nil, fmt.Errorf("failed to allocate %d bytes: %w", requirements.Size, metadata.Result(res).Err())
	}
	return memory, nil
}

// CreateBuffer creates a buffer backed by device local memory. Sparse
// buffers are left unbound; memory is attached with QueueBindSparse.
func (b *Backend) CreateBuffer(desc *metadata.BufferDescription) (metadata.Handle, error) {
	bufferCreateInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       vk.BufferUsageFlags(desc.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	if desc.Sparse {
		bufferCreateInfo.Flags = vk.BufferCreateFlags(vk.BufferCreateSparseBindingBit)
	}

	dev := b.device()
	var entry bufferEntry
	if res := vk.CreateBuffer(dev, &bufferCreateInfo, b.context.Allocator, &entry.handle); res != vk.Success {
		err := fmt.Errorf("failed to create buffer: %w", metadata.Result(res).Err())
		core.LogError("%s", err)
		return metadata.NullHandle, err
	}

	if !desc.Sparse {
		var requirements vk.MemoryRequirements
		vk.GetBufferMemoryRequirements(dev, entry.handle, &requirements)
		memory, err := b.allocateDeviceLocal(requirements)
		if err != nil {
			vk.DestroyBuffer(dev, entry.handle, b.context.Allocator)
			core.LogError("buffer: %s", err)
			return metadata.NullHandle, err
		}
		entry.memory = memory
		if res := vk.BindBufferMemory(dev, entry.handle, memory, 0); res != vk.Success {
			entry.destroy(dev, b.context.Allocator)
			err := fmt.Errorf("failed to bind buffer memory: %w", metadata.Result(res).Err())
			core.LogError("%s", err)
			return metadata.NullHandle, err
		}
	}

	h := b.newHandle()
	b.buffers.put(h, entry)
	return h, nil
}

// CreateImage creates an optimally tiled image. Depth greater than one makes it 3D.
func (b *Backend) CreateImage(desc *metadata.ImageDescription) (metadata.Handle, error) {
	imageType := vk.ImageType2d
	if desc.Extent.Depth > 1 {
		imageType = vk.ImageType3d
	}
	mipLevels, arrayLayers := desc.MipLevels, desc.ArrayLayers
	if mipLevels == 0 {
		mipLevels = 1
	}
	if arrayLayers == 0 {
		arrayLayers = 1
	}
	imageCreateInfo := vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		ImageType:     imageType,
		Format:        vk.Format(desc.Format),
		Extent:        extent3D(desc.Extent),
		MipLevels:     mipLevels,
		ArrayLayers:   arrayLayers,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(desc.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayout(desc.InitialLayout),
	}
	if imageCreateInfo.Extent.Depth == 0 {
		imageCreateInfo.Extent.Depth = 1
	}
	if desc.Sparse {
		imageCreateInfo.Flags = vk.ImageCreateFlags(vk.ImageCreateSparseBindingBit)
	}

	dev := b.device()
	entry := imageEntry{format: desc.Format}
	if res := vk.CreateImage(dev, &imageCreateInfo, b.context.Allocator, &entry.handle); res != vk.Success {
		err := fmt.Errorf("failed to create image: %s: %w", VulkanResultString(res, true), metadata.Result(res).Err())
		core.LogError("%s", err)
		return metadata.NullHandle, err
	}

	if !desc.Sparse {
		var requirements vk.MemoryRequirements
		vk.GetImageMemoryRequirements(dev, entry.handle, &requirements)
		memory, err := b.allocateDeviceLocal(requirements)
		if err != nil {
			vk.DestroyImage(dev, entry.handle, b.context.Allocator)
			core.LogError("image: %s", err)
			return metadata.NullHandle, err
		}
		entry.memory = memory
		if res := vk.BindImageMemory(dev, entry.handle, memory, 0); res != vk.Success {
			entry.destroy(dev, b.context.Allocator)
			err := fmt.Errorf("failed to bind image memory: %w", metadata.Result(res).Err())
			core.LogError("%s", err)
			return metadata.NullHandle, err
		}
	}

	h := b.newHandle()
	b.images.put(h, entry)
	return h, nil
}

func (b *Backend) CreateImageView(desc *metadata.ImageViewDescription) (metadata.Handle, error) {
	img, err := b.images.get(desc.Image)
	if err != nil {
		return metadata.NullHandle, err
	}
	format := desc.Format
	if format == metadata.FORMAT_UNDEFINED {
		format = img.format
	}
	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:            vk.StructureTypeImageViewCreateInfo,
		Image:            img.handle,
		ViewType:         vk.ImageViewType2d,
		Format:           vk.Format(format),
		SubresourceRange: subresourceRange(desc.SubresourceRange),
	}
	if desc.SubresourceRange.LayerCount > 1 {
		viewCreateInfo.ViewType = vk.ImageViewType2dArray
	}

	var view vk.ImageView
	if res := vk.CreateImageView(b.device(), &viewCreateInfo, b.context.Allocator, &view); res != vk.Success {
		err := fmt.Errorf("failed to create image view: %w", metadata.Result(res).Err())
		core.LogError("%s", err)
		return metadata.NullHandle, err
	}
	h := b.newHandle()
	b.imageViews.put(h, view)
	return h, nil
}

// AllocateMemory allocates a free standing memory object, typically the
// backing store of sparse binds.
func (b *Backend) AllocateMemory(desc *metadata.MemoryDescription) (metadata.Handle, error) {
	memoryAllocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(desc.Size),
		MemoryTypeIndex: desc.MemoryTypeIndex,
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(b.device(), &memoryAllocateInfo, b.context.Allocator, &memory); res != vk.Success {
		err := fmt.Errorf("failed to allocate %d bytes of memory type %d: %w", desc.Size, desc.MemoryTypeIndex, metadata.Result(res).Err())
		core.LogError("%s", err)
		return metadata.NullHandle, err
	}
	h := b.newHandle()
	b.memories.put(h, memory)
	return h, nil
}

// CreateDescriptorSetLayout declares every binding as a uniform buffer.
func (b *Backend) CreateDescriptorSetLayout(desc *metadata.DescriptorSetLayoutDescription) (metadata.Handle, error) {
	bindings := make([]vk.DescriptorSetLayoutBinding, len(desc.Bindings))
	for i, binding := range desc.Bindings {
		bindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         binding.Binding,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			DescriptorCount: binding.DescriptorCount,
			StageFlags:      vk.ShaderStageFlags(binding.StageFlags),
		}
	}
	layoutCreateInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	var layout vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(b.device(), &layoutCreateInfo, b.context.Allocator, &layout); res != vk.Success {
		err := fmt.Errorf("failed to create descriptor set layout: %w", metadata.Result(res).Err())
		core.LogError("%s", err)
		return metadata.NullHandle, err
	}
	h := b.newHandle()
	b.setLayouts.put(h, layout)
	return h, nil
}

// AllocateDescriptorSet allocates from a pool shared by the whole backend,
// created on first use.
func (b *Backend) AllocateDescriptorSet(layout metadata.Handle) (metadata.Handle, error) {
	l, err := b.setLayouts.get(layout)
	if err != nil {
		return metadata.NullHandle, err
	}

	b.descriptorPoolMu.Lock()
	defer b.descriptorPoolMu.Unlock()
	if b.descriptorPool == nil {
		poolCreateInfo := vk.DescriptorPoolCreateInfo{
			SType:         vk.StructureTypeDescriptorPoolCreateInfo,
			Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
			MaxSets:       descriptorPoolMaxSets,
			PoolSizeCount: 1,
			PPoolSizes: []vk.DescriptorPoolSize{{
				Type:            vk.DescriptorTypeUniformBuffer,
				DescriptorCount: descriptorPoolMaxCount,
			}},
		}
		var pool vk.DescriptorPool
		if res := vk.CreateDescriptorPool(b.device(), &poolCreateInfo, b.context.Allocator, &pool); res != vk.Success {
			err := fmt.Errorf("failed to create descriptor pool: %w", metadata.Result(res).Err())
			core.LogError("%s", err)
			return metadata.NullHandle, err
		}
		b.descriptorPool = pool
	}

	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     b.descriptorPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{l},
	}
	var set vk.DescriptorSet
	if res := vk.AllocateDescriptorSets(b.device(), &allocInfo, &set); res != vk.Success {
		err := fmt.Errorf("failed to allocate descriptor set: %w", metadata.Result(res).Err())
		core.LogError("%s", err)
		return metadata.NullHandle, err
	}
	h := b.newHandle()
	b.descriptorSets.put(h, set)
	return h, nil
}

func (b *Backend) CreatePipelineLayout(desc *metadata.PipelineLayoutDescription) (metadata.Handle, error) {
	setLayouts, err := b.setLayouts.resolve(desc.SetLayouts)
	if err != nil {
		return metadata.NullHandle, err
	}
	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(setLayouts)),
		PSetLayouts:    setLayouts,
	}
	if len(desc.PushConstantRanges) > 0 {
		ranges := make([]vk.PushConstantRange, len(desc.PushConstantRanges))
		for i, r := range desc.PushConstantRanges {
			ranges[i] = vk.PushConstantRange{
				StageFlags: vk.ShaderStageFlags(r.StageFlags),
				Offset:     r.Offset,
				Size:       r.Size,
			}
		}
		pipelineLayoutCreateInfo.PushConstantRangeCount = uint32(len(ranges))
		pipelineLayoutCreateInfo.PPushConstantRanges = ranges
	}

	var layout vk.PipelineLayout
	if res := vk.CreatePipelineLayout(b.device(), &pipelineLayoutCreateInfo, b.context.Allocator, &layout); res != vk.Success {
		err := fmt.Errorf("vkCreatePipelineLayout failed with %s: %w", VulkanResultString(res, true), metadata.Result(res).Err())
		core.LogError("%s", err)
		return metadata.NullHandle, err
	}
	h := b.newHandle()
	b.pipelineLayouts.put(h, layout)
	return h, nil
}

// CreatePipeline is not available: building a pipeline needs shader modules
// and fixed function state the renderer does not describe. Pipelines built
// elsewhere are handed over with ImportPipeline.
func (b *Backend) CreatePipeline(desc *metadata.PipelineDescription) (metadata.Handle, error) {
	return metadata.NullHandle, fmt.Errorf("vulkan %s pipeline: %w", desc.BindPoint, core.ErrUnsupported)
}

// CreateSwapchain is not available on a device created without a surface.
func (b *Backend) CreateSwapchain(desc *metadata.SwapchainDescription) (metadata.Handle, []metadata.Handle, error) {
	return metadata.NullHandle, nil, fmt.Errorf("vulkan swapchain %dx%d: %w", desc.Extent.Width, desc.Extent.Height, core.ErrUnsupported)
}
