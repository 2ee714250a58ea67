package metadata

/** @brief Slices of a SubmitBatch's flattened arrays that belong to one submit group. */
type SubmitGroup struct {
	CommandBufferOffset   uint32
	CommandBufferCount    uint32
	SignalSemaphoreOffset uint32
	SignalSemaphoreCount  uint32
	WaitSemaphoreOffset   uint32
	WaitSemaphoreCount    uint32
	// Index into WaitStages; one stage mask per wait semaphore.
	WaitStageOffset uint32
}

// SubmitBatch is a queue submission flattened into contiguous arrays.
// Semaphores holds, for each group in order, its signal semaphores followed
// by its wait semaphores.
type SubmitBatch struct {
	CommandBuffers []Handle
	Semaphores     []Handle
	WaitStages     []PipelineStageFlags
	Groups         []SubmitGroup
}

func (b *SubmitBatch) GroupCommandBuffers(i int) []Handle {
	g := b.Groups[i]
	return b.CommandBuffers[g.CommandBufferOffset : g.CommandBufferOffset+g.CommandBufferCount]
}

func (b *SubmitBatch) GroupSignalSemaphores(i int) []Handle {
	g := b.Groups[i]
	return b.Semaphores[g.SignalSemaphoreOffset : g.SignalSemaphoreOffset+g.SignalSemaphoreCount]
}

func (b *SubmitBatch) GroupWaitSemaphores(i int) []Handle {
	g := b.Groups[i]
	return b.Semaphores[g.WaitSemaphoreOffset : g.WaitSemaphoreOffset+g.WaitSemaphoreCount]
}

func (b *SubmitBatch) GroupWaitStages(i int) []PipelineStageFlags {
	g := b.Groups[i]
	return b.WaitStages[g.WaitStageOffset : g.WaitStageOffset+g.WaitSemaphoreCount]
}

type PresentBatch struct {
	WaitSemaphores []Handle
	Swapchains     []Handle
	ImageIndices   []uint32
}
