package renderer

import (
	"fmt"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// SparseMemoryBind binds Size bytes of Memory at MemoryOffset to a resource
// at ResourceOffset. A nil Memory unbinds the range.
type SparseMemoryBind struct {
	ResourceOffset uint64
	Size           uint64
	Memory         *DeviceMemory
	MemoryOffset   uint64
	Flags          metadata.SparseMemoryBindFlags
}

type SparseImageMemoryBind struct {
	Subresource  metadata.ImageSubresource
	Offset       metadata.Offset3D
	Extent       metadata.Extent3D
	Memory       *DeviceMemory
	MemoryOffset uint64
	Flags        metadata.SparseMemoryBindFlags
}

type SparseBufferBindInfo struct {
	Buffer *Buffer
	Binds  []SparseMemoryBind
}

type SparseImageOpaqueBindInfo struct {
	Image *Image
	Binds []SparseMemoryBind
}

type SparseImageBindInfo struct {
	Image *Image
	Binds []SparseImageMemoryBind
}

// BindSparseInfo is one sparse binding group with its own semaphores.
type BindSparseInfo struct {
	WaitSemaphores   []*Semaphore
	BufferBinds      []SparseBufferBindInfo
	ImageOpaqueBinds []SparseImageOpaqueBindInfo
	ImageBinds       []SparseImageBindInfo
	SignalSemaphores []*Semaphore
}

// BindSparse flattens infos into one backend call. fence, if not nil, is
// signaled once every bind has been applied.
func (q *Queue) BindSparse(infos []BindSparseInfo, fence *Fence) error {
	dev, err := q.Device()
	if err != nil {
		return err
	}
	if !metadata.HasFlags(q.flags, metadata.QUEUE_SPARSE_BINDING) {
		return fmt.Errorf("%s bind sparse: %w", q.DebugName(), core.ErrUnsupported)
	}
	if err := validateSparse(dev.validation, infos); err != nil {
		err = fmt.Errorf("%s bind sparse: %w", q.DebugName(), err)
		core.LogError("%s", err)
		return err
	}

	batch := flattenSparse(infos)
	fh := metadata.NullHandle
	if fence != nil {
		fh = fence.handle
	}
	err = dev.serializeQueue(q.family, func() error {
		return dev.backend.QueueBindSparse(q.handle, batch, fh)
	})
	if err != nil {
		return dev.fail("bind sparse", err)
	}

	dev.metrics.SparseBindBatches.Add(1)
	dev.metrics.SparseBinds.Add(uint64(len(batch.MemoryBinds) + len(batch.ImageMemoryBinds)))
	return nil
}

func validateSparse(validation bool, infos []BindSparseInfo) error {
	for i, info := range infos {
		for _, b := range info.BufferBinds {
			if b.Buffer == nil {
				return fmt.Errorf("group %d buffer: %w", i, core.ErrNilResource)
			}
			if validation && !b.Buffer.IsSparse() {
				return fmt.Errorf("group %d %s: %w", i, b.Buffer.DebugName(), core.ErrNotSparseResource)
			}
		}
		for _, b := range info.ImageOpaqueBinds {
			if b.Image == nil {
				return fmt.Errorf("group %d opaque image: %w", i, core.ErrNilResource)
			}
			if validation && !b.Image.IsSparse() {
				return fmt.Errorf("group %d %s: %w", i, b.Image.DebugName(), core.ErrNotSparseResource)
			}
		}
		for _, b := range info.ImageBinds {
			if b.Image == nil {
				return fmt.Errorf("group %d image: %w", i, core.ErrNilResource)
			}
			if validation && !b.Image.IsSparse() {
				return fmt.Errorf("group %d %s: %w", i, b.Image.DebugName(), core.ErrNotSparseResource)
			}
		}
		for _, s := range info.WaitSemaphores {
			if s == nil {
				return fmt.Errorf("group %d wait semaphore: %w", i, core.ErrNilResource)
			}
		}
		for _, s := range info.SignalSemaphores {
			if s == nil {
				return fmt.Errorf("group %d signal semaphore: %w", i, core.ErrNilResource)
			}
		}
	}
	return nil
}

// flattenSparse lays the individual binds of every request out in shared
// arrays. Each request records the {count@offset} of its binds; buffer and
// opaque image requests share MemoryBinds, image requests use
// ImageMemoryBinds. Each group's semaphores are its waits then its signals.
func flattenSparse(infos []BindSparseInfo) *metadata.SparseBatch {
	var numMem, numImg, numBuf, numOpaque, numImgRes, numSems int
	for _, info := range infos {
		numBuf += len(info.BufferBinds)
		numOpaque += len(info.ImageOpaqueBinds)
		numImgRes += len(info.ImageBinds)
		numSems += len(info.WaitSemaphores) + len(info.SignalSemaphores)
		for _, b := range info.BufferBinds {
			numMem += len(b.Binds)
		}
		for _, b := range info.ImageOpaqueBinds {
			numMem += len(b.Binds)
		}
		for _, b := range info.ImageBinds {
			numImg += len(b.Binds)
		}
	}

	batch := &metadata.SparseBatch{
		MemoryBinds:      make([]metadata.SparseMemoryBind, 0, numMem),
		ImageMemoryBinds: make([]metadata.SparseImageMemoryBind, 0, numImg),
		BufferBinds:      make([]metadata.SparseResourceBinds, 0, numBuf),
		ImageOpaqueBinds: make([]metadata.SparseResourceBinds, 0, numOpaque),
		ImageBinds:       make([]metadata.SparseResourceBinds, 0, numImgRes),
		Semaphores:       make([]metadata.Handle, 0, numSems),
		Groups:           make([]metadata.SparseBindGroup, len(infos)),
	}
	for i, info := range infos {
		g := &batch.Groups[i]

		g.BufferBindOffset = uint32(len(batch.BufferBinds))
		g.BufferBindCount = uint32(len(info.BufferBinds))
		for _, b := range info.BufferBinds {
			batch.BufferBinds = append(batch.BufferBinds, appendMemoryBinds(batch, b.Buffer.handle, b.Binds))
		}

		g.ImageOpaqueBindOffset = uint32(len(batch.ImageOpaqueBinds))
		g.ImageOpaqueBindCount = uint32(len(info.ImageOpaqueBinds))
		for _, b := range info.ImageOpaqueBinds {
			batch.ImageOpaqueBinds = append(batch.ImageOpaqueBinds, appendMemoryBinds(batch, b.Image.handle, b.Binds))
		}

		g.ImageBindOffset = uint32(len(batch.ImageBinds))
		g.ImageBindCount = uint32(len(info.ImageBinds))
		for _, b := range info.ImageBinds {
			rb := metadata.SparseResourceBinds{
				Resource:   b.Image.handle,
				BindOffset: uint32(len(batch.ImageMemoryBinds)),
				BindCount:  uint32(len(b.Binds)),
			}
			for _, bind := range b.Binds {
				batch.ImageMemoryBinds = append(batch.ImageMemoryBinds, metadata.SparseImageMemoryBind{
					Subresource:  bind.Subresource,
					Offset:       bind.Offset,
					Extent:       bind.Extent,
					Memory:       memoryHandle(bind.Memory),
					MemoryOffset: bind.MemoryOffset,
					Flags:        bind.Flags,
				})
			}
			batch.ImageBinds = append(batch.ImageBinds, rb)
		}

		g.WaitSemaphoreOffset = uint32(len(batch.Semaphores))
		g.WaitSemaphoreCount = uint32(len(info.WaitSemaphores))
		for _, s := range info.WaitSemaphores {
			batch.Semaphores = append(batch.Semaphores, s.handle)
		}
		g.SignalSemaphoreOffset = uint32(len(batch.Semaphores))
		g.SignalSemaphoreCount = uint32(len(info.SignalSemaphores))
		for _, s := range info.SignalSemaphores {
			batch.Semaphores = append(batch.Semaphores, s.handle)
		}
	}
	return batch
}

func appendMemoryBinds(batch *metadata.SparseBatch, target metadata.Handle, binds []SparseMemoryBind) metadata.SparseResourceBinds {
	rb := metadata.SparseResourceBinds{
		Resource:   target,
		BindOffset: uint32(len(batch.MemoryBinds)),
		BindCount:  uint32(len(binds)),
	}
	for _, bind := range binds {
		batch.MemoryBinds = append(batch.MemoryBinds, metadata.SparseMemoryBind{
			ResourceOffset: bind.ResourceOffset,
			Size:           bind.Size,
			Memory:         memoryHandle(bind.Memory),
			MemoryOffset:   bind.MemoryOffset,
			Flags:          bind.Flags,
		})
	}
	return rb
}

func memoryHandle(m *DeviceMemory) metadata.Handle {
	if m == nil {
		return metadata.NullHandle
	}
	return m.handle
}
