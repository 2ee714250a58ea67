package renderer

import (
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// Backend is the per-device table of driver entry points. A Device calls
// nothing outside this interface, so every backend (software, Vulkan) is
// interchangeable. Methods that can fail on the device return an error
// derived from metadata.Result.Err.
type Backend interface {
	Name() string
	QueueFamilies() []metadata.QueueFamilyProperties
	GetQueue(family, index uint32) (metadata.Handle, error)

	CreateCommandPool(family uint32, flags metadata.CommandPoolCreateFlags) (metadata.Handle, error)
	ResetCommandPool(pool metadata.Handle, flags metadata.CommandPoolResetFlags) error
	DestroyCommandPool(pool metadata.Handle)
	AllocateCommandBuffers(pool metadata.Handle, level metadata.CommandBufferLevel, count uint32) ([]metadata.Handle, error)
	FreeCommandBuffers(pool metadata.Handle, buffers []metadata.Handle)

	BeginCommandBuffer(cb metadata.Handle, info metadata.CommandBufferBeginInfo) error
	EndCommandBuffer(cb metadata.Handle) error
	ResetCommandBuffer(cb metadata.Handle, flags metadata.CommandBufferResetFlags) error
	Record(cb metadata.Handle, cmd metadata.Command)

	CreateFence(signaled bool) (metadata.Handle, error)
	DestroyFence(fence metadata.Handle)
	GetFenceStatus(fence metadata.Handle) (metadata.Result, error)
	// WaitForFences returns false when the timeout elapsed first.
	WaitForFences(fences []metadata.Handle, waitAll bool, timeoutNs uint64) (bool, error)
	ResetFences(fences []metadata.Handle) error

	CreateSemaphore() (metadata.Handle, error)
	DestroySemaphore(semaphore metadata.Handle)

	CreateEvent() (metadata.Handle, error)
	DestroyEvent(event metadata.Handle)
	SetEvent(event metadata.Handle) error
	ResetEvent(event metadata.Handle) error
	GetEventStatus(event metadata.Handle) (metadata.Result, error)

	QueueSubmit(queue metadata.Handle, batch *metadata.SubmitBatch, fence metadata.Handle) error
	QueueBindSparse(queue metadata.Handle, batch *metadata.SparseBatch, fence metadata.Handle) error
	// QueuePresent fills one result per swapchain and returns the overall error, if any.
	QueuePresent(queue metadata.Handle, batch *metadata.PresentBatch, results []metadata.Result) error
	QueueWaitIdle(queue metadata.Handle) error
	DeviceWaitIdle() error

	// DestroyObject releases a resource handle once its last reference is gone.
	// Handles the backend does not own are forgotten without being destroyed.
	DestroyObject(kind metadata.ObjectType, h metadata.Handle)

	Destroy()
}

// RenderPassFactory is implemented by backends that can build render passes and framebuffers.
type RenderPassFactory interface {
	CreateRenderPass(desc *metadata.RenderPassDescription) (metadata.Handle, error)
	CreateFramebuffer(desc *metadata.FramebufferDescription) (metadata.Handle, error)
}

// ResourceFactory is implemented by backends that own resource creation.
// Devices on other backends adopt externally created handles instead.
type ResourceFactory interface {
	CreateBuffer(desc *metadata.BufferDescription) (metadata.Handle, error)
	CreateImage(desc *metadata.ImageDescription) (metadata.Handle, error)
	CreateImageView(desc *metadata.ImageViewDescription) (metadata.Handle, error)
	AllocateMemory(desc *metadata.MemoryDescription) (metadata.Handle, error)
	CreateDescriptorSetLayout(desc *metadata.DescriptorSetLayoutDescription) (metadata.Handle, error)
	AllocateDescriptorSet(layout metadata.Handle) (metadata.Handle, error)
	CreatePipelineLayout(desc *metadata.PipelineLayoutDescription) (metadata.Handle, error)
	CreatePipeline(desc *metadata.PipelineDescription) (metadata.Handle, error)
	CreateSwapchain(desc *metadata.SwapchainDescription) (metadata.Handle, []metadata.Handle, error)
}
