package metadata

type QueueFamilyProperties struct {
	Flags      QueueFlags
	QueueCount uint32
	// Presentation support, when the backend can determine it without a surface.
	Present bool
}

type BufferDescription struct {
	Size   uint64
	Usage  BufferUsageFlags
	Sparse bool
}

type ImageDescription struct {
	Format        Format
	Extent        Extent3D
	MipLevels     uint32
	ArrayLayers   uint32
	Usage         ImageUsageFlags
	InitialLayout ImageLayout
	Sparse        bool
}

type ImageViewDescription struct {
	Image            Handle
	Format           Format
	SubresourceRange ImageSubresourceRange
}

type MemoryDescription struct {
	Size            uint64
	MemoryTypeIndex uint32
}

type DescriptorSetLayoutBinding struct {
	Binding         uint32
	DescriptorCount uint32
	StageFlags      ShaderStageFlags
}

type DescriptorSetLayoutDescription struct {
	Bindings []DescriptorSetLayoutBinding
}

type PushConstantRange struct {
	StageFlags ShaderStageFlags
	Offset     uint32
	Size       uint32
}

type PipelineLayoutDescription struct {
	SetLayouts         []Handle
	PushConstantRanges []PushConstantRange
}

type PipelineDescription struct {
	BindPoint  PipelineBindPoint
	Layout     Handle
	RenderPass Handle
	Subpass    uint32
}

type SwapchainDescription struct {
	ImageCount uint32
	Format     Format
	Extent     Extent2D
}
