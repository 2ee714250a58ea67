package renderer

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

func memoryBinds(n int) []SparseMemoryBind {
	binds := make([]SparseMemoryBind, n)
	for i := range binds {
		binds[i] = SparseMemoryBind{ResourceOffset: uint64(i) * 4096, Size: 4096}
	}
	return binds
}

func TestFlattenSparseSharesMemoryBinds(t *testing.T) {
	buf := func(h metadata.Handle) *Buffer {
		b := &Buffer{}
		b.handle = h
		return b
	}
	img := func(h metadata.Handle) *Image {
		i := &Image{}
		i.handle = h
		return i
	}
	sem := func(h metadata.Handle) *Semaphore { return &Semaphore{handle: h} }

	batch := flattenSparse([]BindSparseInfo{
		{
			WaitSemaphores: []*Semaphore{sem(10)},
			BufferBinds: []SparseBufferBindInfo{
				{Buffer: buf(1), Binds: memoryBinds(2)},
				{Buffer: buf(2), Binds: memoryBinds(0)},
				{Buffer: buf(3), Binds: memoryBinds(4)},
			},
			ImageOpaqueBinds: []SparseImageOpaqueBindInfo{
				{Image: img(4), Binds: memoryBinds(1)},
			},
			SignalSemaphores: []*Semaphore{sem(11)},
		},
		{
			ImageBinds: []SparseImageBindInfo{
				{Image: img(5), Binds: []SparseImageMemoryBind{{}, {Offset: metadata.Offset3D{X: 64}}}},
			},
			SignalSemaphores: []*Semaphore{sem(12)},
		},
	})

	wantBuffers := []metadata.SparseResourceBinds{
		{Resource: 1, BindOffset: 0, BindCount: 2},
		{Resource: 2, BindOffset: 2, BindCount: 0},
		{Resource: 3, BindOffset: 2, BindCount: 4},
	}
	if len(batch.BufferBinds) != len(wantBuffers) {
		t.Fatalf("buffer binds %v", batch.BufferBinds)
	}
	for i, want := range wantBuffers {
		if batch.BufferBinds[i] != want {
			t.Errorf("buffer bind %d = %+v, want %+v", i, batch.BufferBinds[i], want)
		}
	}
	if got := batch.ImageOpaqueBinds[0]; got != (metadata.SparseResourceBinds{Resource: 4, BindOffset: 6, BindCount: 1}) {
		t.Errorf("opaque image bind = %+v", got)
	}
	if len(batch.MemoryBinds) != 7 {
		t.Errorf("memory binds = %d, want 7", len(batch.MemoryBinds))
	}
	if got := batch.Binds(batch.BufferBinds[2]); got[3].ResourceOffset != 3*4096 {
		t.Errorf("last bind of buffer 3 at %d", got[3].ResourceOffset)
	}
	if got := batch.ImageBinds[0]; got != (metadata.SparseResourceBinds{Resource: 5, BindOffset: 0, BindCount: 2}) {
		t.Errorf("image bind = %+v", got)
	}

	wantGroups := []metadata.SparseBindGroup{
		{
			BufferBindCount:       3,
			ImageOpaqueBindCount:  1,
			WaitSemaphoreCount:    1,
			SignalSemaphoreOffset: 1,
			SignalSemaphoreCount:  1,
		},
		{
			BufferBindOffset:      3,
			ImageOpaqueBindOffset: 1,
			ImageBindCount:        1,
			WaitSemaphoreOffset:   2,
			SignalSemaphoreOffset: 2,
			SignalSemaphoreCount:  1,
		},
	}
	for i, want := range wantGroups {
		if batch.Groups[i] != want {
			t.Errorf("group %d = %+v, want %+v", i, batch.Groups[i], want)
		}
	}
	wantSems := []metadata.Handle{10, 11, 12}
	for i, h := range wantSems {
		if batch.Semaphores[i] != h {
			t.Errorf("semaphore %d = %v, want %v", i, batch.Semaphores[i], h)
		}
	}
}

func TestBindSparseAppliesBinds(t *testing.T) {
	d, sw := newTestDevice(t, Options{Validation: true})
	q := mustQueue(t, d, 0, 0)
	buf, err := d.CreateBuffer(metadata.BufferDescription{Size: 1 << 20, Usage: metadata.BUFFER_USAGE_TRANSFER_DST, Sparse: true})
	if err != nil {
		t.Fatal(err)
	}
	mem, err := d.AllocateMemory(1<<16, 0)
	if err != nil {
		t.Fatal(err)
	}
	sem, _ := d.CreateSemaphore()
	fence, _ := d.CreateFence(false)

	binds := []SparseMemoryBind{
		{ResourceOffset: 0, Size: 1 << 15, Memory: mem},
		{ResourceOffset: 1 << 15, Size: 1 << 15, Memory: mem, MemoryOffset: 1 << 15},
	}
	err = q.BindSparse([]BindSparseInfo{{
		BufferBinds:      []SparseBufferBindInfo{{Buffer: buf, Binds: binds}},
		SignalSemaphores: []*Semaphore{sem},
	}}, fence)
	if err != nil {
		t.Fatal(err)
	}
	if ok, err := fence.Wait(TimeoutInfinite); !ok || err != nil {
		t.Fatalf("wait: ok=%v err=%v", ok, err)
	}
	if got := sw.SparseBindings(buf.Handle()); got != 2 {
		t.Errorf("installed binds = %d", got)
	}
	if got, ok := sw.BoundMemory(buf.Handle(), 1<<15); !ok || got != mem.Handle() {
		t.Errorf("memory at 32K = %v, %v", got, ok)
	}

	// a graphics submission ordered after the bind by the semaphore
	cb := mustPrimary(t, d, 0)
	_ = cb.Begin(0)
	_ = cb.FillBuffer(buf, 0, 1<<15, 0)
	_ = cb.End()
	err = q.Submit([]SubmitInfo{{
		CommandBuffers:   []*CommandBuffer{cb},
		WaitSemaphores:   []*Semaphore{sem},
		WaitDstStageMask: []metadata.PipelineStageFlags{metadata.PIPELINE_STAGE_TRANSFER},
	}}, nil)
	if err != nil {
		t.Fatal(err)
	}

	_ = fence.Reset()
	err = q.BindSparse([]BindSparseInfo{{
		BufferBinds: []SparseBufferBindInfo{{Buffer: buf, Binds: []SparseMemoryBind{{ResourceOffset: 0, Size: 1 << 15}}}},
	}}, fence)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fence.Wait(TimeoutInfinite)
	if got := sw.SparseBindings(buf.Handle()); got != 1 {
		t.Errorf("binds after unbinding = %d", got)
	}

	m := d.Metrics()
	if m.SparseBindBatches != 2 || m.SparseBinds != 3 {
		t.Errorf("metrics batches=%d binds=%d", m.SparseBindBatches, m.SparseBinds)
	}
}

func TestBindSparseValidation(t *testing.T) {
	d, _ := newTestDevice(t, Options{Validation: true})
	q := mustQueue(t, d, 0, 0)
	compute := mustQueue(t, d, 1, 0)
	dense, _ := d.CreateBuffer(metadata.BufferDescription{Size: 4096})
	img, _ := d.CreateImage(metadata.ImageDescription{
		Format:      metadata.FORMAT_B8G8R8A8_UNORM,
		Extent:      metadata.Extent3D{Width: 16, Height: 16, Depth: 1},
		MipLevels:   1,
		ArrayLayers: 1,
	})

	tests := []struct {
		name  string
		queue *Queue
		info  BindSparseInfo
		want  error
	}{
		{"dense buffer", q, BindSparseInfo{BufferBinds: []SparseBufferBindInfo{{Buffer: dense}}}, core.ErrNotSparseResource},
		{"dense opaque image", q, BindSparseInfo{ImageOpaqueBinds: []SparseImageOpaqueBindInfo{{Image: img}}}, core.ErrNotSparseResource},
		{"dense image", q, BindSparseInfo{ImageBinds: []SparseImageBindInfo{{Image: img}}}, core.ErrNotSparseResource},
		{"nil buffer", q, BindSparseInfo{BufferBinds: []SparseBufferBindInfo{{}}}, core.ErrNilResource},
		{"nil semaphore", q, BindSparseInfo{WaitSemaphores: []*Semaphore{nil}}, core.ErrNilResource},
		{"no sparse support", compute, BindSparseInfo{}, core.ErrUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.queue.BindSparse([]BindSparseInfo{tt.info}, nil); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}
