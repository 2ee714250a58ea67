package core

import (
	"errors"
)

// Recording and submission protocol errors.
var (
	ErrNotRecording           = errors.New("command buffer is not in the recording state")
	ErrAlreadyRecording       = errors.New("command buffer is already recording")
	ErrCommandBufferPending   = errors.New("command buffer is pending execution and was not begun with simultaneous use")
	ErrNotExecutable          = errors.New("command buffer is not executable")
	ErrOneTimeSubmitConsumed  = errors.New("one time submit command buffer was already submitted")
	ErrInheritanceRequired    = errors.New("render pass continue requires a render pass to inherit")
	ErrIncompatibleRenderPass = errors.New("secondary command buffer is not compatible with the current render pass")
	ErrNoActiveRenderPass     = errors.New("no render pass is active")
	ErrSubpassOutOfRange      = errors.New("subpass index out of range")
	ErrIncompatibleDescriptor = errors.New("descriptor set is not compatible with the pipeline layout")
	ErrWrongCommandLevel      = errors.New("command buffer level is not valid for this operation")
	ErrWrongQueueFamily       = errors.New("command buffer was allocated for a different queue family")
	ErrStageMaskMismatch      = errors.New("wait stage mask count does not match wait semaphore count")
	ErrNilResource            = errors.New("resource is nil")
	ErrDeviceDestroyed        = errors.New("device has been destroyed")
	ErrObjectDestroyed        = errors.New("object has been destroyed")
	ErrUnsupported            = errors.New("operation is not supported by the backend")
	ErrInvalidHandle          = errors.New("invalid handle")
	ErrQueueNotFound          = errors.New("queue not found")
	ErrRenderPassActive       = errors.New("a render pass is still active")
	ErrFenceSignaled          = errors.New("fence is already signaled")
	ErrNotSparseResource      = errors.New("resource was not created for sparse binding")
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrFrameTimeout           = errors.New("timed out waiting for a frame in flight")
)

// Device failures reported by a backend.
var (
	ErrDeviceLost        = errors.New("device lost")
	ErrOutOfHostMemory   = errors.New("out of host memory")
	ErrOutOfDeviceMemory = errors.New("out of device memory")
	ErrOutOfDate         = errors.New("swapchain out of date")
	ErrSurfaceLost       = errors.New("surface lost")
	ErrInitialization    = errors.New("initialization failed")
	ErrUnknown           = errors.New("unknown")
)
