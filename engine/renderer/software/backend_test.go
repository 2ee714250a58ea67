package software

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b := New(Options{})
	t.Cleanup(b.Destroy)
	return b
}

func recordBuffer(t *testing.T, b *Backend, pool metadata.Handle, cmds ...metadata.Command) metadata.Handle {
	t.Helper()
	cbs, err := b.AllocateCommandBuffers(pool, metadata.COMMAND_BUFFER_LEVEL_PRIMARY, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.BeginCommandBuffer(cbs[0], metadata.CommandBufferBeginInfo{}); err != nil {
		t.Fatal(err)
	}
	for _, cmd := range cmds {
		b.Record(cbs[0], cmd)
	}
	if err := b.EndCommandBuffer(cbs[0]); err != nil {
		t.Fatal(err)
	}
	return cbs[0]
}

func singleGroup(buffers []metadata.Handle, waits, signals []metadata.Handle) *metadata.SubmitBatch {
	batch := &metadata.SubmitBatch{CommandBuffers: buffers}
	batch.Semaphores = append(append(batch.Semaphores, signals...), waits...)
	for range waits {
		batch.WaitStages = append(batch.WaitStages, metadata.PIPELINE_STAGE_ALL_COMMANDS)
	}
	batch.Groups = []metadata.SubmitGroup{{
		CommandBufferCount:   uint32(len(buffers)),
		SignalSemaphoreCount: uint32(len(signals)),
		WaitSemaphoreOffset:  uint32(len(signals)),
		WaitSemaphoreCount:   uint32(len(waits)),
	}}
	return batch
}

func TestSubmitExecutesInOrderAndSignalsFence(t *testing.T) {
	b := newTestBackend(t)
	q, err := b.GetQueue(0, 0)
	if err != nil {
		t.Fatal(err)
	}
	pool, _ := b.CreateCommandPool(0, 0)
	first := recordBuffer(t, b, pool, metadata.CmdDraw{VertexCount: 3, InstanceCount: 1})
	second := recordBuffer(t, b, pool, metadata.CmdDispatch{GroupCountX: 1, GroupCountY: 1, GroupCountZ: 1})
	fence, _ := b.CreateFence(false)

	if err := b.QueueSubmit(q, singleGroup([]metadata.Handle{first, second}, nil, nil), fence); err != nil {
		t.Fatal(err)
	}
	ok, err := b.WaitForFences([]metadata.Handle{fence}, true, uint64(time.Second))
	if err != nil || !ok {
		t.Fatalf("fence wait: ok=%v err=%v", ok, err)
	}

	execs := b.Executions()
	if len(execs) != 2 {
		t.Fatalf("got %d executions, want 2", len(execs))
	}
	if execs[0].CommandBuffer != first || execs[1].CommandBuffer != second {
		t.Errorf("execution order %v, %v", execs[0].CommandBuffer, execs[1].CommandBuffer)
	}
	if execs[0].Ops[0] != metadata.OP_DRAW || execs[1].Ops[0] != metadata.OP_DISPATCH {
		t.Errorf("ops %v %v", execs[0].Ops, execs[1].Ops)
	}
	if len(b.Submissions()) != 1 {
		t.Errorf("got %d submissions, want 1", len(b.Submissions()))
	}
}

func TestSemaphoreOrdersQueues(t *testing.T) {
	b := newTestBackend(t)
	graphics, _ := b.GetQueue(0, 0)
	compute, _ := b.GetQueue(1, 0)
	gpool, _ := b.CreateCommandPool(0, 0)
	cpool, _ := b.CreateCommandPool(1, 0)
	sem, _ := b.CreateSemaphore()
	fence, _ := b.CreateFence(false)

	consumer := recordBuffer(t, b, gpool, metadata.CmdDraw{VertexCount: 3, InstanceCount: 1})
	producer := recordBuffer(t, b, cpool, metadata.CmdDispatch{GroupCountX: 8, GroupCountY: 8, GroupCountZ: 1})

	// the consumer is submitted first and must wait for the producer
	if err := b.QueueSubmit(graphics, singleGroup([]metadata.Handle{consumer}, []metadata.Handle{sem}, nil), fence); err != nil {
		t.Fatal(err)
	}
	if ok, _ := b.WaitForFences([]metadata.Handle{fence}, true, uint64(20*time.Millisecond)); ok {
		t.Fatal("consumer ran before its semaphore was signaled")
	}
	if err := b.QueueSubmit(compute, singleGroup([]metadata.Handle{producer}, nil, []metadata.Handle{sem}), metadata.NullHandle); err != nil {
		t.Fatal(err)
	}
	if ok, err := b.WaitForFences([]metadata.Handle{fence}, true, uint64(time.Second)); !ok || err != nil {
		t.Fatalf("fence wait: ok=%v err=%v", ok, err)
	}

	execs := b.Executions()
	if len(execs) != 2 || execs[0].CommandBuffer != producer || execs[1].CommandBuffer != consumer {
		t.Fatalf("unexpected execution order %+v", execs)
	}
	signals, waits := b.SemaphoreStats(sem)
	if signals != 1 || waits != 1 {
		t.Errorf("semaphore stats = %d/%d, want 1/1", signals, waits)
	}
}

func TestSubmitRejectsWrongFamilyAndRecordingBuffers(t *testing.T) {
	b := newTestBackend(t)
	compute, _ := b.GetQueue(1, 0)
	gpool, _ := b.CreateCommandPool(0, 0)
	cb := recordBuffer(t, b, gpool)

	err := b.QueueSubmit(compute, singleGroup([]metadata.Handle{cb}, nil, nil), metadata.NullHandle)
	if !errors.Is(err, core.ErrWrongQueueFamily) {
		t.Errorf("got %v, want ErrWrongQueueFamily", err)
	}

	graphics, _ := b.GetQueue(0, 0)
	_ = b.BeginCommandBuffer(cb, metadata.CommandBufferBeginInfo{})
	err = b.QueueSubmit(graphics, singleGroup([]metadata.Handle{cb}, nil, nil), metadata.NullHandle)
	if !errors.Is(err, core.ErrNotExecutable) {
		t.Errorf("got %v, want ErrNotExecutable", err)
	}
}

func TestExecuteCommandsInlinesSecondaries(t *testing.T) {
	b := newTestBackend(t)
	q, _ := b.GetQueue(0, 0)
	pool, _ := b.CreateCommandPool(0, 0)
	secs, _ := b.AllocateCommandBuffers(pool, metadata.COMMAND_BUFFER_LEVEL_SECONDARY, 1)
	_ = b.BeginCommandBuffer(secs[0], metadata.CommandBufferBeginInfo{})
	b.Record(secs[0], metadata.CmdDraw{VertexCount: 6, InstanceCount: 1})
	_ = b.EndCommandBuffer(secs[0])

	primary := recordBuffer(t, b, pool,
		metadata.CmdExecuteCommands{CommandBuffers: []metadata.Handle{secs[0]}},
		metadata.CmdDispatch{GroupCountX: 1, GroupCountY: 1, GroupCountZ: 1},
	)
	if err := b.QueueSubmit(q, singleGroup([]metadata.Handle{primary}, nil, nil), metadata.NullHandle); err != nil {
		t.Fatal(err)
	}
	if err := b.QueueWaitIdle(q); err != nil {
		t.Fatal(err)
	}
	execs := b.Executions()
	want := []metadata.Opcode{metadata.OP_EXECUTE_COMMANDS, metadata.OP_DRAW, metadata.OP_DISPATCH}
	if len(execs) != 1 || len(execs[0].Ops) != len(want) {
		t.Fatalf("executions %+v", execs)
	}
	for i, op := range want {
		if execs[0].Ops[i] != op {
			t.Errorf("op %d = %s, want %s", i, execs[0].Ops[i], op)
		}
	}
}

func TestWaitEventsBlocksUntilHostSet(t *testing.T) {
	b := newTestBackend(t)
	q, _ := b.GetQueue(0, 0)
	pool, _ := b.CreateCommandPool(0, 0)
	ev, _ := b.CreateEvent()
	fence, _ := b.CreateFence(false)
	cb := recordBuffer(t, b, pool, metadata.CmdWaitEvents{Events: []metadata.Handle{ev}})

	if err := b.QueueSubmit(q, singleGroup([]metadata.Handle{cb}, nil, nil), fence); err != nil {
		t.Fatal(err)
	}
	if ok, _ := b.WaitForFences([]metadata.Handle{fence}, true, uint64(20*time.Millisecond)); ok {
		t.Fatal("wait events completed before the event was set")
	}
	if err := b.SetEvent(ev); err != nil {
		t.Fatal(err)
	}
	if ok, err := b.WaitForFences([]metadata.Handle{fence}, true, uint64(time.Second)); !ok || err != nil {
		t.Fatalf("fence wait: ok=%v err=%v", ok, err)
	}
}

func TestDeviceSetEventIsVisibleToHost(t *testing.T) {
	b := newTestBackend(t)
	q, _ := b.GetQueue(0, 0)
	pool, _ := b.CreateCommandPool(0, 0)
	ev, _ := b.CreateEvent()
	cb := recordBuffer(t, b, pool, metadata.CmdSetEvent{Event: ev, Stage: metadata.PIPELINE_STAGE_ALL_COMMANDS})

	if res, _ := b.GetEventStatus(ev); res != metadata.RESULT_EVENT_RESET {
		t.Fatalf("initial status %s", res)
	}
	_ = b.QueueSubmit(q, singleGroup([]metadata.Handle{cb}, nil, nil), metadata.NullHandle)
	_ = b.QueueWaitIdle(q)
	if res, _ := b.GetEventStatus(ev); res != metadata.RESULT_EVENT_SET {
		t.Errorf("status after execution %s, want EVENT_SET", res)
	}
}

func TestFenceWaitTimeoutAndPoll(t *testing.T) {
	b := newTestBackend(t)
	fence, _ := b.CreateFence(false)

	ok, err := b.WaitForFences([]metadata.Handle{fence}, true, 0)
	if ok || err != nil {
		t.Errorf("poll: ok=%v err=%v", ok, err)
	}
	ok, err = b.WaitForFences([]metadata.Handle{fence}, true, uint64(10*time.Millisecond))
	if ok || err != nil {
		t.Errorf("timeout: ok=%v err=%v", ok, err)
	}

	signaled, _ := b.CreateFence(true)
	ok, err = b.WaitForFences([]metadata.Handle{fence, signaled}, false, math.MaxUint64)
	if !ok || err != nil {
		t.Errorf("wait any: ok=%v err=%v", ok, err)
	}
	if err := b.ResetFences([]metadata.Handle{signaled}); err != nil {
		t.Fatal(err)
	}
	if res, _ := b.GetFenceStatus(signaled); res != metadata.RESULT_NOT_READY {
		t.Errorf("status after reset %s", res)
	}
}

func TestLoseDeviceReleasesWaiters(t *testing.T) {
	b := newTestBackend(t)
	fence, _ := b.CreateFence(false)

	done := make(chan error, 1)
	go func() {
		_, err := b.WaitForFences([]metadata.Handle{fence}, true, math.MaxUint64)
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	b.LoseDevice()

	select {
	case err := <-done:
		if !errors.Is(err, core.ErrDeviceLost) {
			t.Errorf("got %v, want ErrDeviceLost", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter was not released")
	}

	q, _ := b.GetQueue(0, 0)
	if err := b.QueueSubmit(q, &metadata.SubmitBatch{}, metadata.NullHandle); !errors.Is(err, core.ErrDeviceLost) {
		t.Errorf("submit after loss: %v", err)
	}
}

func TestBindSparseInstallsAndRemovesBinds(t *testing.T) {
	b := newTestBackend(t)
	q, _ := b.GetQueue(0, 0)
	buf, _ := b.CreateBuffer(&metadata.BufferDescription{Size: 1 << 20, Sparse: true})
	mem, _ := b.AllocateMemory(&metadata.MemoryDescription{Size: 1 << 16})
	fence, _ := b.CreateFence(false)

	batch := &metadata.SparseBatch{
		MemoryBinds: []metadata.SparseMemoryBind{
			{ResourceOffset: 0, Size: 4096, Memory: mem},
			{ResourceOffset: 4096, Size: 4096, Memory: mem, MemoryOffset: 4096},
		},
		BufferBinds: []metadata.SparseResourceBinds{{Resource: buf, BindCount: 2}},
		Groups:      []metadata.SparseBindGroup{{BufferBindCount: 1}},
	}
	if err := b.QueueBindSparse(q, batch, fence); err != nil {
		t.Fatal(err)
	}
	if ok, err := b.WaitForFences([]metadata.Handle{fence}, true, uint64(time.Second)); !ok || err != nil {
		t.Fatalf("fence wait: ok=%v err=%v", ok, err)
	}
	if n := b.SparseBindings(buf); n != 2 {
		t.Fatalf("got %d binds, want 2", n)
	}
	if got, ok := b.BoundMemory(buf, 4096); !ok || got != mem {
		t.Errorf("bound memory %v %v", got, ok)
	}

	unbind := &metadata.SparseBatch{
		MemoryBinds: []metadata.SparseMemoryBind{{ResourceOffset: 0, Size: 4096}},
		BufferBinds: []metadata.SparseResourceBinds{{Resource: buf, BindCount: 1}},
		Groups:      []metadata.SparseBindGroup{{BufferBindCount: 1}},
	}
	_ = b.QueueBindSparse(q, unbind, metadata.NullHandle)
	_ = b.QueueWaitIdle(q)
	if n := b.SparseBindings(buf); n != 1 {
		t.Errorf("got %d binds after unbind, want 1", n)
	}
}

func TestBindSparseRequiresSparseQueue(t *testing.T) {
	b := newTestBackend(t)
	compute, _ := b.GetQueue(1, 0)
	err := b.QueueBindSparse(compute, &metadata.SparseBatch{}, metadata.NullHandle)
	if !errors.Is(err, core.ErrUnsupported) {
		t.Errorf("got %v, want ErrUnsupported", err)
	}
}

func TestPresentReportsPerSwapchainResults(t *testing.T) {
	b := newTestBackend(t)
	q, _ := b.GetQueue(0, 0)
	good, _, _ := b.CreateSwapchain(&metadata.SwapchainDescription{ImageCount: 3})
	stale, _, _ := b.CreateSwapchain(&metadata.SwapchainDescription{ImageCount: 2})
	b.SetSwapchainResult(stale, metadata.RESULT_ERROR_OUT_OF_DATE)

	results := make([]metadata.Result, 2)
	err := b.QueuePresent(q, &metadata.PresentBatch{
		Swapchains:   []metadata.Handle{good, stale},
		ImageIndices: []uint32{1, 0},
	}, results)
	if !errors.Is(err, core.ErrOutOfDate) {
		t.Errorf("got %v, want ErrOutOfDate", err)
	}
	if results[0] != metadata.RESULT_SUCCESS || results[1] != metadata.RESULT_ERROR_OUT_OF_DATE {
		t.Errorf("results %v", results)
	}
	if got := b.PresentedImages(good); len(got) != 1 || got[0] != 1 {
		t.Errorf("presented %v", got)
	}
	if got := b.PresentedImages(stale); len(got) != 0 {
		t.Errorf("stale swapchain presented %v", got)
	}
}

func TestBacklogBlocksWhenFull(t *testing.T) {
	b := New(Options{MaxPendingSubmissions: 1})
	t.Cleanup(b.Destroy)
	q, _ := b.GetQueue(0, 0)
	pool, _ := b.CreateCommandPool(0, 0)
	ev, _ := b.CreateEvent()
	blocker := recordBuffer(t, b, pool, metadata.CmdWaitEvents{Events: []metadata.Handle{ev}})
	empty := &metadata.SubmitBatch{}

	_ = b.QueueSubmit(q, singleGroup([]metadata.Handle{blocker}, nil, nil), metadata.NullHandle)
	// the executor is now parked on the event with an empty backlog
	time.Sleep(10 * time.Millisecond)
	_ = b.QueueSubmit(q, empty, metadata.NullHandle)

	done := make(chan error, 1)
	go func() { done <- b.QueueSubmit(q, empty, metadata.NullHandle) }()
	select {
	case <-done:
		t.Fatal("submit to a full backlog did not block")
	case <-time.After(20 * time.Millisecond):
	}

	_ = b.SetEvent(ev)
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("submit stayed blocked after the backlog drained")
	}
	if err := b.QueueWaitIdle(q); err != nil {
		t.Fatal(err)
	}
}

func TestDestroyObjectForgetsResources(t *testing.T) {
	b := newTestBackend(t)
	img, _ := b.CreateImage(&metadata.ImageDescription{Extent: metadata.Extent3D{Width: 4, Height: 4, Depth: 1}})
	view, err := b.CreateImageView(&metadata.ImageViewDescription{Image: img})
	if err != nil {
		t.Fatal(err)
	}
	b.DestroyObject(metadata.OBJECT_TYPE_IMAGE_VIEW, view)
	b.DestroyObject(metadata.OBJECT_TYPE_IMAGE, img)
	if b.IsLive(view) || b.IsLive(img) {
		t.Error("destroyed objects are still live")
	}
	if _, err := b.CreateImageView(&metadata.ImageViewDescription{Image: img}); !errors.Is(err, core.ErrInvalidHandle) {
		t.Errorf("view of destroyed image: %v", err)
	}
}
