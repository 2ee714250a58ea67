package engine

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/jobs"
	"github.com/spaghettifunk/anima-gpu/engine/renderer"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "anima.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestEngine(t *testing.T, g *Game, configPath string) *Engine {
	t.Helper()
	e, err := New(g, configPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = e.Shutdown() })
	if err := e.Initialize(); err != nil {
		t.Fatal(err)
	}
	return e
}

func TestRunStopsAtMaxFrames(t *testing.T) {
	path := writeConfig(t, `
[device]
backend = "software"

[engine]
max_frames = 4
frames_in_flight = 2
record_workers = 3
`)
	var rendered []uint64
	var initialized bool
	g := &Game{
		Name: "max-frames",
		FnInitialize: func(device *renderer.Device, queue *renderer.Queue, js *jobs.JobSystem) error {
			initialized = device != nil && queue.Flags()&metadata.QUEUE_GRAPHICS != 0 && js.Workers() == 3
			return nil
		},
		FnRender: func(f *renderer.Frame, deltaTime float64) error {
			rendered = append(rendered, f.Number)
			return f.CommandBuffer.SetViewport(0, metadata.Viewport{Width: 64, Height: 64, MaxDepth: 1})
		},
	}
	e := newTestEngine(t, g, path)
	if !initialized {
		t.Fatal("game was not initialized with a graphics queue")
	}
	if e.Stage() != EngineStageInitialized {
		t.Fatalf("stage %d", e.Stage())
	}

	if err := e.Run(); err != nil {
		t.Fatal(err)
	}
	if len(rendered) != 4 {
		t.Fatalf("rendered %v", rendered)
	}
	for i, n := range rendered {
		if n != uint64(i) {
			t.Errorf("frame %d numbered %d", i, n)
		}
	}
	if got := e.Device().Metrics(); got.Submissions < 4 || got.Presents != 4 {
		t.Errorf("metrics %+v", got)
	}
	if e.swapchain == nil || e.swapchain.ImageCount() != 3 {
		t.Error("software device should present to a 3 image swapchain")
	}

	if err := e.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if e.Stage() != EngineStageShutdown {
		t.Errorf("stage %d after shutdown", e.Stage())
	}
	if err := e.Shutdown(); err != nil {
		t.Errorf("second shutdown: %s", err)
	}
}

func TestQuitStopsRun(t *testing.T) {
	var e *Engine
	frames := 0
	g := &Game{
		FnRender: func(f *renderer.Frame, deltaTime float64) error {
			frames++
			if f.Number == 2 {
				e.Quit()
			}
			return nil
		},
	}
	e = newTestEngine(t, g, "")
	if err := e.Run(); err != nil {
		t.Fatal(err)
	}
	if frames != 3 {
		t.Errorf("rendered %d frames after quitting on the third", frames)
	}
}

func TestRenderErrorStopsRun(t *testing.T) {
	boom := errors.New("boom")
	g := &Game{
		FnRender: func(f *renderer.Frame, deltaTime float64) error {
			if f.Number == 1 {
				return boom
			}
			return nil
		},
	}
	e := newTestEngine(t, g, "")
	if err := e.Run(); !errors.Is(err, boom) {
		t.Fatalf("run returned %v", err)
	}
	if e.Stage() != EngineStageInitialized {
		t.Errorf("stage %d", e.Stage())
	}
}

func TestRunWithoutSwapchain(t *testing.T) {
	path := writeConfig(t, `
[engine]
max_frames = 3
swapchain_images = 0
`)
	e := newTestEngine(t, &Game{}, path)
	if e.swapchain != nil {
		t.Fatal("swapchain created with swapchain_images = 0")
	}
	if err := e.Run(); err != nil {
		t.Fatal(err)
	}
	if got := e.Device().Metrics(); got.Submissions != 3 || got.Presents != 0 {
		t.Errorf("metrics %+v", got)
	}
}

func TestInitializeNeedsGraphicsQueue(t *testing.T) {
	path := writeConfig(t, `
[[software.queue_families]]
compute = true
queues = 1
`)
	e, err := New(&Game{}, path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = e.Shutdown() })
	if err := e.Initialize(); !errors.Is(err, core.ErrQueueNotFound) {
		t.Fatalf("initialize returned %v", err)
	}
}

func TestRunRequiresInitialize(t *testing.T) {
	e, err := New(&Game{}, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Run(); !errors.Is(err, core.ErrInitialization) {
		t.Fatalf("run returned %v", err)
	}
	if _, err := New(nil, ""); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("new without game returned %v", err)
	}
}
