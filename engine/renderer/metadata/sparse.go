package metadata

type SparseMemoryBind struct {
	ResourceOffset uint64
	Size           uint64
	Memory         Handle
	MemoryOffset   uint64
	Flags          SparseMemoryBindFlags
}

type SparseImageMemoryBind struct {
	Subresource  ImageSubresource
	Offset       Offset3D
	Extent       Extent3D
	Memory       Handle
	MemoryOffset uint64
	Flags        SparseMemoryBindFlags
}

/** @brief A resource and the {count@offset} range of its binds in a flattened bind array. */
type SparseResourceBinds struct {
	Resource   Handle
	BindOffset uint32
	BindCount  uint32
}

type SparseBindGroup struct {
	BufferBindOffset      uint32
	BufferBindCount       uint32
	ImageOpaqueBindOffset uint32
	ImageOpaqueBindCount  uint32
	ImageBindOffset       uint32
	ImageBindCount        uint32
	WaitSemaphoreOffset   uint32
	WaitSemaphoreCount    uint32
	SignalSemaphoreOffset uint32
	SignalSemaphoreCount  uint32
}

// SparseBatch is a sparse binding operation flattened into contiguous arrays.
// Buffer and opaque image binds index MemoryBinds, image binds index
// ImageMemoryBinds. Semaphores holds, for each group in order, its wait
// semaphores followed by its signal semaphores.
type SparseBatch struct {
	MemoryBinds      []SparseMemoryBind
	ImageMemoryBinds []SparseImageMemoryBind
	BufferBinds      []SparseResourceBinds
	ImageOpaqueBinds []SparseResourceBinds
	ImageBinds       []SparseResourceBinds
	Semaphores       []Handle
	Groups           []SparseBindGroup
}

func (b *SparseBatch) GroupBufferBinds(i int) []SparseResourceBinds {
	g := b.Groups[i]
	return b.BufferBinds[g.BufferBindOffset : g.BufferBindOffset+g.BufferBindCount]
}

func (b *SparseBatch) GroupImageOpaqueBinds(i int) []SparseResourceBinds {
	g := b.Groups[i]
	return b.ImageOpaqueBinds[g.ImageOpaqueBindOffset : g.ImageOpaqueBindOffset+g.ImageOpaqueBindCount]
}

func (b *SparseBatch) GroupImageBinds(i int) []SparseResourceBinds {
	g := b.Groups[i]
	return b.ImageBinds[g.ImageBindOffset : g.ImageBindOffset+g.ImageBindCount]
}

func (b *SparseBatch) GroupWaitSemaphores(i int) []Handle {
	g := b.Groups[i]
	return b.Semaphores[g.WaitSemaphoreOffset : g.WaitSemaphoreOffset+g.WaitSemaphoreCount]
}

func (b *SparseBatch) GroupSignalSemaphores(i int) []Handle {
	g := b.Groups[i]
	return b.Semaphores[g.SignalSemaphoreOffset : g.SignalSemaphoreOffset+g.SignalSemaphoreCount]
}

// Binds returns the memory binds referenced by a buffer or opaque image entry.
func (b *SparseBatch) Binds(r SparseResourceBinds) []SparseMemoryBind {
	return b.MemoryBinds[r.BindOffset : r.BindOffset+r.BindCount]
}

// ImageRegionBinds returns the image binds referenced by an image entry.
func (b *SparseBatch) ImageRegionBinds(r SparseResourceBinds) []SparseImageMemoryBind {
	return b.ImageMemoryBinds[r.BindOffset : r.BindOffset+r.BindCount]
}
