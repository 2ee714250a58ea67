package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// Metadata flag and enum values are the Vulkan values, so most conversions
// below are field copies.

// isDepthFormat covers the depth and stencil formats, D16_UNORM through D32_SFLOAT_S8_UINT.
func isDepthFormat(f metadata.Format) bool {
	return f >= 124 && f <= metadata.FORMAT_D32_SFLOAT_S8_UINT
}

func clearValue(v metadata.ClearValue, depth bool) vk.ClearValue {
	if depth {
		return vk.NewClearDepthStencil(v.Depth, v.Stencil)
	}
	return vk.NewClearValue(v.Color[:])
}

func clearColor(color [4]float32) vk.ClearColorValue {
	var cv vk.ClearColorValue
	*(*[4]float32)(unsafe.Pointer(&cv)) = color
	return cv
}

func offset2D(o metadata.Offset2D) vk.Offset2D {
	return vk.Offset2D{X: o.X, Y: o.Y}
}

func offset3D(o metadata.Offset3D) vk.Offset3D {
	return vk.Offset3D{X: o.X, Y: o.Y, Z: o.Z}
}

func extent3D(e metadata.Extent3D) vk.Extent3D {
	return vk.Extent3D{Width: e.Width, Height: e.Height, Depth: e.Depth}
}

func rect2D(r metadata.Rect2D) vk.Rect2D {
	return vk.Rect2D{
		Offset: offset2D(r.Offset),
		Extent: vk.Extent2D{Width: r.Extent.Width, Height: r.Extent.Height},
	}
}

func rects2D(rs []metadata.Rect2D) []vk.Rect2D {
	out := make([]vk.Rect2D, len(rs))
	for i, r := range rs {
		out[i] = rect2D(r)
	}
	return out
}

func viewports(vs []metadata.Viewport) []vk.Viewport {
	out := make([]vk.Viewport, len(vs))
	for i, v := range vs {
		out[i] = vk.Viewport{
			X:        v.X,
			Y:        v.Y,
			Width:    v.Width,
			Height:   v.Height,
			MinDepth: v.MinDepth,
			MaxDepth: v.MaxDepth,
		}
	}
	return out
}

func subresourceLayers(s metadata.ImageSubresourceLayers) vk.ImageSubresourceLayers {
	return vk.ImageSubresourceLayers{
		AspectMask:     vk.ImageAspectFlags(s.AspectMask),
		MipLevel:       s.MipLevel,
		BaseArrayLayer: s.BaseArrayLayer,
		LayerCount:     s.LayerCount,
	}
}

func subresourceRange(r metadata.ImageSubresourceRange) vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{
		AspectMask:     vk.ImageAspectFlags(r.AspectMask),
		BaseMipLevel:   r.BaseMipLevel,
		LevelCount:     r.LevelCount,
		BaseArrayLayer: r.BaseArrayLayer,
		LayerCount:     r.LayerCount,
	}
}

func subresourceRanges(rs []metadata.ImageSubresourceRange) []vk.ImageSubresourceRange {
	out := make([]vk.ImageSubresourceRange, len(rs))
	for i, r := range rs {
		out[i] = subresourceRange(r)
	}
	return out
}

func bufferCopies(rs []metadata.BufferCopy) []vk.BufferCopy {
	out := make([]vk.BufferCopy, len(rs))
	for i, r := range rs {
		out[i] = vk.BufferCopy{
			SrcOffset: vk.DeviceSize(r.SrcOffset),
			DstOffset: vk.DeviceSize(r.DstOffset),
			Size:      vk.DeviceSize(r.Size),
		}
	}
	return out
}

func imageCopies(rs []metadata.ImageCopy) []vk.ImageCopy {
	out := make([]vk.ImageCopy, len(rs))
	for i, r := range rs {
		out[i] = vk.ImageCopy{
			SrcSubresource: subresourceLayers(r.SrcSubresource),
			SrcOffset:      offset3D(r.SrcOffset),
			DstSubresource: subresourceLayers(r.DstSubresource),
			DstOffset:      offset3D(r.DstOffset),
			Extent:         extent3D(r.Extent),
		}
	}
	return out
}

func bufferImageCopies(rs []metadata.BufferImageCopy) []vk.BufferImageCopy {
	out := make([]vk.BufferImageCopy, len(rs))
	for i, r := range rs {
		out[i] = vk.BufferImageCopy{
			BufferOffset:      vk.DeviceSize(r.BufferOffset),
			BufferRowLength:   r.BufferRowLength,
			BufferImageHeight: r.BufferImageHeight,
			ImageSubresource:  subresourceLayers(r.ImageSubresource),
			ImageOffset:       offset3D(r.ImageOffset),
			ImageExtent:       extent3D(r.ImageExtent),
		}
	}
	return out
}

func imageBlits(rs []metadata.ImageBlit) []vk.ImageBlit {
	out := make([]vk.ImageBlit, len(rs))
	for i, r := range rs {
		out[i] = vk.ImageBlit{
			SrcSubresource: subresourceLayers(r.SrcSubresource),
			SrcOffsets:     [2]vk.Offset3D{offset3D(r.SrcOffsets[0]), offset3D(r.SrcOffsets[1])},
			DstSubresource: subresourceLayers(r.DstSubresource),
			DstOffsets:     [2]vk.Offset3D{offset3D(r.DstOffsets[0]), offset3D(r.DstOffsets[1])},
		}
	}
	return out
}

func clearAttachments(as []metadata.ClearAttachment) []vk.ClearAttachment {
	out := make([]vk.ClearAttachment, len(as))
	for i, a := range as {
		depth := metadata.HasAnyFlag(a.AspectMask, metadata.IMAGE_ASPECT_DEPTH|metadata.IMAGE_ASPECT_STENCIL)
		out[i] = vk.ClearAttachment{
			AspectMask:      vk.ImageAspectFlags(a.AspectMask),
			ColorAttachment: a.ColorAttachment,
			ClearValue:      clearValue(a.ClearValue, depth),
		}
	}
	return out
}

func clearRects(rs []metadata.ClearRect) []vk.ClearRect {
	out := make([]vk.ClearRect, len(rs))
	for i, r := range rs {
		out[i] = vk.ClearRect{
			Rect:           rect2D(r.Rect),
			BaseArrayLayer: r.BaseArrayLayer,
			LayerCount:     r.LayerCount,
		}
	}
	return out
}

func memoryBarriers(bs []metadata.MemoryBarrier) []vk.MemoryBarrier {
	out := make([]vk.MemoryBarrier, len(bs))
	for i, mb := range bs {
		out[i] = vk.MemoryBarrier{
			SType:         vk.StructureTypeMemoryBarrier,
			SrcAccessMask: vk.AccessFlags(mb.SrcAccessMask),
			DstAccessMask: vk.AccessFlags(mb.DstAccessMask),
		}
	}
	return out
}

// nativeBarriers is the Vulkan form of a metadata.Barriers set.
type nativeBarriers struct {
	memory []vk.MemoryBarrier
	buffer []vk.BufferMemoryBarrier
	image  []vk.ImageMemoryBarrier
}

func (b *Backend) barriers(in metadata.Barriers) (nativeBarriers, error) {
	out := nativeBarriers{memory: memoryBarriers(in.Memory)}
	for _, bb := range in.Buffer {
		buf, err := b.buffers.get(bb.Buffer)
		if err != nil {
			return out, err
		}
		out.buffer = append(out.buffer, vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(bb.SrcAccessMask),
			DstAccessMask:       vk.AccessFlags(bb.DstAccessMask),
			SrcQueueFamilyIndex: bb.SrcQueueFamilyIndex,
			DstQueueFamilyIndex: bb.DstQueueFamilyIndex,
			Buffer:              buf.handle,
			Offset:              vk.DeviceSize(bb.Offset),
			Size:                vk.DeviceSize(bb.Size),
		})
	}
	for _, ib := range in.Image {
		img, err := b.images.get(ib.Image)
		if err != nil {
			return out, err
		}
		out.image = append(out.image, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(ib.SrcAccessMask),
			DstAccessMask:       vk.AccessFlags(ib.DstAccessMask),
			OldLayout:           vk.ImageLayout(ib.OldLayout),
			NewLayout:           vk.ImageLayout(ib.NewLayout),
			SrcQueueFamilyIndex: ib.SrcQueueFamilyIndex,
			DstQueueFamilyIndex: ib.DstQueueFamilyIndex,
			Image:               img.handle,
			SubresourceRange:    subresourceRange(ib.SubresourceRange),
		})
	}
	return out, nil
}
