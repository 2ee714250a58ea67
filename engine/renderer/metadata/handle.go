package metadata

import "fmt"

/** @brief Opaque backend object handle. Zero is never a valid object. */
type Handle uint64

const NullHandle Handle = 0

func (h Handle) IsNull() bool {
	return h == NullHandle
}

func (h Handle) String() string {
	return fmt.Sprintf("0x%x", uint64(h))
}

type ObjectType uint32

const (
	OBJECT_TYPE_UNKNOWN ObjectType = iota
	OBJECT_TYPE_QUEUE
	OBJECT_TYPE_COMMAND_POOL
	OBJECT_TYPE_COMMAND_BUFFER
	OBJECT_TYPE_FENCE
	OBJECT_TYPE_SEMAPHORE
	OBJECT_TYPE_EVENT
	OBJECT_TYPE_BUFFER
	OBJECT_TYPE_IMAGE
	OBJECT_TYPE_IMAGE_VIEW
	OBJECT_TYPE_DEVICE_MEMORY
	OBJECT_TYPE_RENDER_PASS
	OBJECT_TYPE_FRAMEBUFFER
	OBJECT_TYPE_DESCRIPTOR_SET_LAYOUT
	OBJECT_TYPE_DESCRIPTOR_SET
	OBJECT_TYPE_PIPELINE_LAYOUT
	OBJECT_TYPE_PIPELINE
	OBJECT_TYPE_SWAPCHAIN
)

var objectTypeNames = map[ObjectType]string{
	OBJECT_TYPE_UNKNOWN:               "unknown",
	OBJECT_TYPE_QUEUE:                 "queue",
	OBJECT_TYPE_COMMAND_POOL:          "command_pool",
	OBJECT_TYPE_COMMAND_BUFFER:        "command_buffer",
	OBJECT_TYPE_FENCE:                 "fence",
	OBJECT_TYPE_SEMAPHORE:             "semaphore",
	OBJECT_TYPE_EVENT:                 "event",
	OBJECT_TYPE_BUFFER:                "buffer",
	OBJECT_TYPE_IMAGE:                 "image",
	OBJECT_TYPE_IMAGE_VIEW:            "image_view",
	OBJECT_TYPE_DEVICE_MEMORY:         "device_memory",
	OBJECT_TYPE_RENDER_PASS:           "render_pass",
	OBJECT_TYPE_FRAMEBUFFER:           "framebuffer",
	OBJECT_TYPE_DESCRIPTOR_SET_LAYOUT: "descriptor_set_layout",
	OBJECT_TYPE_DESCRIPTOR_SET:        "descriptor_set",
	OBJECT_TYPE_PIPELINE_LAYOUT:       "pipeline_layout",
	OBJECT_TYPE_PIPELINE:              "pipeline",
	OBJECT_TYPE_SWAPCHAIN:             "swapchain",
}

func (t ObjectType) String() string {
	if n, ok := objectTypeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("object_type(%d)", uint32(t))
}
