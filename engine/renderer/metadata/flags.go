package metadata

import "golang.org/x/exp/constraints"

// Flag and enum values below match their Vulkan counterparts so that a
// Vulkan backend can convert them with a plain type conversion.

// HasFlags reports whether every bit of want is set in flags.
func HasFlags[T constraints.Integer](flags, want T) bool {
	return flags&want == want
}

// HasAnyFlag reports whether at least one bit of want is set in flags.
func HasAnyFlag[T constraints.Integer](flags, want T) bool {
	return flags&want != 0
}

type CommandBufferUsageFlags uint32

const (
	/** @brief Each recording is submitted once and then reset before re-recording. */
	COMMAND_BUFFER_USAGE_ONE_TIME_SUBMIT CommandBufferUsageFlags = 0x1
	/** @brief Secondary buffer is entirely inside a render pass. */
	COMMAND_BUFFER_USAGE_RENDER_PASS_CONTINUE CommandBufferUsageFlags = 0x2
	/** @brief Buffer can be resubmitted while pending. */
	COMMAND_BUFFER_USAGE_SIMULTANEOUS_USE CommandBufferUsageFlags = 0x4
)

type CommandBufferLevel uint32

const (
	COMMAND_BUFFER_LEVEL_PRIMARY   CommandBufferLevel = 0
	COMMAND_BUFFER_LEVEL_SECONDARY CommandBufferLevel = 1
)

func (l CommandBufferLevel) String() string {
	if l == COMMAND_BUFFER_LEVEL_SECONDARY {
		return "secondary"
	}
	return "primary"
}

type CommandBufferResetFlags uint32

const COMMAND_BUFFER_RESET_RELEASE_RESOURCES CommandBufferResetFlags = 0x1

type CommandPoolCreateFlags uint32

const (
	COMMAND_POOL_CREATE_TRANSIENT            CommandPoolCreateFlags = 0x1
	COMMAND_POOL_CREATE_RESET_COMMAND_BUFFER CommandPoolCreateFlags = 0x2
)

type CommandPoolResetFlags uint32

const COMMAND_POOL_RESET_RELEASE_RESOURCES CommandPoolResetFlags = 0x1

type QueueFlags uint32

const (
	QUEUE_GRAPHICS       QueueFlags = 0x1
	QUEUE_COMPUTE        QueueFlags = 0x2
	QUEUE_TRANSFER       QueueFlags = 0x4
	QUEUE_SPARSE_BINDING QueueFlags = 0x8
)

type PipelineBindPoint uint32

const (
	PIPELINE_BIND_POINT_GRAPHICS PipelineBindPoint = 0
	PIPELINE_BIND_POINT_COMPUTE  PipelineBindPoint = 1
)

func (p PipelineBindPoint) String() string {
	if p == PIPELINE_BIND_POINT_COMPUTE {
		return "compute"
	}
	return "graphics"
}

type PipelineStageFlags uint32

const (
	PIPELINE_STAGE_TOP_OF_PIPE                    PipelineStageFlags = 0x00000001
	PIPELINE_STAGE_DRAW_INDIRECT                  PipelineStageFlags = 0x00000002
	PIPELINE_STAGE_VERTEX_INPUT                   PipelineStageFlags = 0x00000004
	PIPELINE_STAGE_VERTEX_SHADER                  PipelineStageFlags = 0x00000008
	PIPELINE_STAGE_TESSELLATION_CONTROL_SHADER    PipelineStageFlags = 0x00000010
	PIPELINE_STAGE_TESSELLATION_EVALUATION_SHADER PipelineStageFlags = 0x00000020
	PIPELINE_STAGE_GEOMETRY_SHADER                PipelineStageFlags = 0x00000040
	PIPELINE_STAGE_FRAGMENT_SHADER                PipelineStageFlags = 0x00000080
	PIPELINE_STAGE_EARLY_FRAGMENT_TESTS           PipelineStageFlags = 0x00000100
	PIPELINE_STAGE_LATE_FRAGMENT_TESTS            PipelineStageFlags = 0x00000200
	PIPELINE_STAGE_COLOR_ATTACHMENT_OUTPUT        PipelineStageFlags = 0x00000400
	PIPELINE_STAGE_COMPUTE_SHADER                 PipelineStageFlags = 0x00000800
	PIPELINE_STAGE_TRANSFER                       PipelineStageFlags = 0x00001000
	PIPELINE_STAGE_BOTTOM_OF_PIPE                 PipelineStageFlags = 0x00002000
	PIPELINE_STAGE_HOST                           PipelineStageFlags = 0x00004000
	PIPELINE_STAGE_ALL_GRAPHICS                   PipelineStageFlags = 0x00008000
	PIPELINE_STAGE_ALL_COMMANDS                   PipelineStageFlags = 0x00010000
)

type AccessFlags uint32

const (
	ACCESS_INDIRECT_COMMAND_READ          AccessFlags = 0x00000001
	ACCESS_INDEX_READ                     AccessFlags = 0x00000002
	ACCESS_VERTEX_ATTRIBUTE_READ          AccessFlags = 0x00000004
	ACCESS_UNIFORM_READ                   AccessFlags = 0x00000008
	ACCESS_INPUT_ATTACHMENT_READ          AccessFlags = 0x00000010
	ACCESS_SHADER_READ                    AccessFlags = 0x00000020
	ACCESS_SHADER_WRITE                   AccessFlags = 0x00000040
	ACCESS_COLOR_ATTACHMENT_READ          AccessFlags = 0x00000080
	ACCESS_COLOR_ATTACHMENT_WRITE         AccessFlags = 0x00000100
	ACCESS_DEPTH_STENCIL_ATTACHMENT_READ  AccessFlags = 0x00000200
	ACCESS_DEPTH_STENCIL_ATTACHMENT_WRITE AccessFlags = 0x00000400
	ACCESS_TRANSFER_READ                  AccessFlags = 0x00000800
	ACCESS_TRANSFER_WRITE                 AccessFlags = 0x00001000
	ACCESS_HOST_READ                      AccessFlags = 0x00002000
	ACCESS_HOST_WRITE                     AccessFlags = 0x00004000
	ACCESS_MEMORY_READ                    AccessFlags = 0x00008000
	ACCESS_MEMORY_WRITE                   AccessFlags = 0x00010000
)

type DependencyFlags uint32

const DEPENDENCY_BY_REGION DependencyFlags = 0x1

type ImageLayout int32

const (
	IMAGE_LAYOUT_UNDEFINED                        ImageLayout = 0
	IMAGE_LAYOUT_GENERAL                          ImageLayout = 1
	IMAGE_LAYOUT_COLOR_ATTACHMENT_OPTIMAL         ImageLayout = 2
	IMAGE_LAYOUT_DEPTH_STENCIL_ATTACHMENT_OPTIMAL ImageLayout = 3
	IMAGE_LAYOUT_DEPTH_STENCIL_READ_ONLY_OPTIMAL  ImageLayout = 4
	IMAGE_LAYOUT_SHADER_READ_ONLY_OPTIMAL         ImageLayout = 5
	IMAGE_LAYOUT_TRANSFER_SRC_OPTIMAL             ImageLayout = 6
	IMAGE_LAYOUT_TRANSFER_DST_OPTIMAL             ImageLayout = 7
	IMAGE_LAYOUT_PREINITIALIZED                   ImageLayout = 8
	IMAGE_LAYOUT_PRESENT_SRC                      ImageLayout = 1000001002
)

var imageLayoutNames = map[ImageLayout]string{
	IMAGE_LAYOUT_UNDEFINED:                        "undefined",
	IMAGE_LAYOUT_GENERAL:                          "general",
	IMAGE_LAYOUT_COLOR_ATTACHMENT_OPTIMAL:         "color_attachment_optimal",
	IMAGE_LAYOUT_DEPTH_STENCIL_ATTACHMENT_OPTIMAL: "depth_stencil_attachment_optimal",
	IMAGE_LAYOUT_DEPTH_STENCIL_READ_ONLY_OPTIMAL:  "depth_stencil_read_only_optimal",
	IMAGE_LAYOUT_SHADER_READ_ONLY_OPTIMAL:         "shader_read_only_optimal",
	IMAGE_LAYOUT_TRANSFER_SRC_OPTIMAL:             "transfer_src_optimal",
	IMAGE_LAYOUT_TRANSFER_DST_OPTIMAL:             "transfer_dst_optimal",
	IMAGE_LAYOUT_PREINITIALIZED:                   "preinitialized",
	IMAGE_LAYOUT_PRESENT_SRC:                      "present_src",
}

func (l ImageLayout) String() string {
	if n, ok := imageLayoutNames[l]; ok {
		return n
	}
	return "unknown"
}

type ImageAspectFlags uint32

const (
	IMAGE_ASPECT_COLOR   ImageAspectFlags = 0x1
	IMAGE_ASPECT_DEPTH   ImageAspectFlags = 0x2
	IMAGE_ASPECT_STENCIL ImageAspectFlags = 0x4
)

type SubpassContents uint32

const (
	SUBPASS_CONTENTS_INLINE                    SubpassContents = 0
	SUBPASS_CONTENTS_SECONDARY_COMMAND_BUFFERS SubpassContents = 1
)

type IndexType uint32

const (
	INDEX_TYPE_UINT16 IndexType = 0
	INDEX_TYPE_UINT32 IndexType = 1
)

type Filter uint32

const (
	FILTER_NEAREST Filter = 0
	FILTER_LINEAR  Filter = 1
)

type StencilFaceFlags uint32

const (
	STENCIL_FACE_FRONT          StencilFaceFlags = 0x1
	STENCIL_FACE_BACK           StencilFaceFlags = 0x2
	STENCIL_FACE_FRONT_AND_BACK StencilFaceFlags = 0x3
)

type ShaderStageFlags uint32

const (
	SHADER_STAGE_VERTEX       ShaderStageFlags = 0x01
	SHADER_STAGE_GEOMETRY     ShaderStageFlags = 0x08
	SHADER_STAGE_FRAGMENT     ShaderStageFlags = 0x10
	SHADER_STAGE_COMPUTE      ShaderStageFlags = 0x20
	SHADER_STAGE_ALL_GRAPHICS ShaderStageFlags = 0x1F
	SHADER_STAGE_ALL          ShaderStageFlags = 0x7FFFFFFF
)

type SparseMemoryBindFlags uint32

const SPARSE_MEMORY_BIND_METADATA SparseMemoryBindFlags = 0x1

type BufferUsageFlags uint32

const (
	BUFFER_USAGE_TRANSFER_SRC   BufferUsageFlags = 0x001
	BUFFER_USAGE_TRANSFER_DST   BufferUsageFlags = 0x002
	BUFFER_USAGE_UNIFORM_BUFFER BufferUsageFlags = 0x010
	BUFFER_USAGE_STORAGE_BUFFER BufferUsageFlags = 0x020
	BUFFER_USAGE_INDEX_BUFFER   BufferUsageFlags = 0x040
	BUFFER_USAGE_VERTEX_BUFFER  BufferUsageFlags = 0x080
	BUFFER_USAGE_INDIRECT       BufferUsageFlags = 0x100
)

type ImageUsageFlags uint32

const (
	IMAGE_USAGE_TRANSFER_SRC             ImageUsageFlags = 0x01
	IMAGE_USAGE_TRANSFER_DST             ImageUsageFlags = 0x02
	IMAGE_USAGE_SAMPLED                  ImageUsageFlags = 0x04
	IMAGE_USAGE_STORAGE                  ImageUsageFlags = 0x08
	IMAGE_USAGE_COLOR_ATTACHMENT         ImageUsageFlags = 0x10
	IMAGE_USAGE_DEPTH_STENCIL_ATTACHMENT ImageUsageFlags = 0x20
	IMAGE_USAGE_INPUT_ATTACHMENT         ImageUsageFlags = 0x80
)

type Format uint32

const (
	FORMAT_UNDEFINED          Format = 0
	FORMAT_R8G8B8A8_UNORM     Format = 37
	FORMAT_B8G8R8A8_UNORM     Format = 44
	FORMAT_B8G8R8A8_SRGB      Format = 50
	FORMAT_D32_SFLOAT         Format = 126
	FORMAT_D24_UNORM_S8_UINT  Format = 129
	FORMAT_D32_SFLOAT_S8_UINT Format = 130
)

type AttachmentLoadOp uint32

const (
	ATTACHMENT_LOAD_OP_LOAD      AttachmentLoadOp = 0
	ATTACHMENT_LOAD_OP_CLEAR     AttachmentLoadOp = 1
	ATTACHMENT_LOAD_OP_DONT_CARE AttachmentLoadOp = 2
)

type AttachmentStoreOp uint32

const (
	ATTACHMENT_STORE_OP_STORE     AttachmentStoreOp = 0
	ATTACHMENT_STORE_OP_DONT_CARE AttachmentStoreOp = 1
)

// Queue family index meaning "no ownership transfer".
const QUEUE_FAMILY_IGNORED uint32 = ^uint32(0)

// Size meaning "to the end of the resource".
const WHOLE_SIZE uint64 = ^uint64(0)

const SUBPASS_EXTERNAL uint32 = ^uint32(0)
