package engine

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/spaghettifunk/anima-gpu/engine/config"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/jobs"
	"github.com/spaghettifunk/anima-gpu/engine/renderer"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/software"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/vulkan"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released every device object
	EngineStageShutdown
)

type Engine struct {
	currentStage atomic.Uint32
	gameInstance *Game
	configPath   string

	watcher *config.Watcher
	config  *config.Config
	events  *core.EventBus

	device    *renderer.Device
	queue     *renderer.Queue
	frames    *renderer.FrameLoop
	swapchain *renderer.Swapchain
	jobs      *jobs.JobSystem

	clock     *core.Clock
	lastTime  float64
	quit      atomic.Bool
	maxFrames atomic.Uint64
	lostErr   atomic.Pointer[error]
}

// New prepares an engine for g. An empty configPath runs on config.Default
// and disables hot reloading.
func New(g *Game, configPath string) (*Engine, error) {
	if g == nil {
		return nil, fmt.Errorf("engine needs a game: %w", core.ErrInvalidArgument)
	}
	return &Engine{
		gameInstance: g,
		configPath:   configPath,
		events:       core.NewEventBus(),
		clock:        core.NewClock(),
	}, nil
}

func (e *Engine) Stage() Stage {
	return Stage(e.currentStage.Load())
}

func (e *Engine) setStage(s Stage) {
	e.currentStage.Store(uint32(s))
}

// Events is the application bus. EVENT_CODE_APPLICATION_QUIT and
// EVENT_CODE_CONFIG_RELOADED are fired on it.
func (e *Engine) Events() *core.EventBus {
	return e.events
}

func (e *Engine) Device() *renderer.Device {
	return e.device
}

func (e *Engine) Config() *config.Config {
	if e.watcher != nil {
		return e.watcher.Config()
	}
	return e.config
}

func (e *Engine) Initialize() error {
	if e.Stage() != EngineStageUninitialized {
		return fmt.Errorf("engine already initialized: %w", core.ErrInitialization)
	}
	e.setStage(EngineStageInitializing)

	if e.configPath != "" {
		w, err := config.NewWatcher(e.configPath, e.events)
		if err != nil {
			return fmt.Errorf("failed to load configuration %s: %w", e.configPath, err)
		}
		e.watcher = w
		e.config = w.Config()
	} else {
		e.config = config.Default()
		e.config.Apply()
	}
	e.maxFrames.Store(e.config.Engine.MaxFrames)

	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	e.events.Register(core.EVENT_CODE_CONFIG_RELOADED, e, e.onEvent)

	backend, err := newBackend(e.config)
	if err != nil {
		return err
	}
	device, err := renderer.NewDevice(backend, e.config.DeviceOptions())
	if err != nil {
		backend.Destroy()
		return err
	}
	e.device = device
	device.Events().Register(core.EVENT_CODE_DEVICE_LOST, e, e.onEvent)

	family, ok := device.FindQueueFamily(metadata.QUEUE_GRAPHICS)
	if !ok {
		return fmt.Errorf("device %s has no graphics queue: %w", device.Name(), core.ErrQueueNotFound)
	}
	if e.queue, err = device.Queue(family, 0); err != nil {
		return err
	}
	if e.swapchain, err = e.createSwapchain(); err != nil {
		return err
	}
	e.frames, err = renderer.NewFrameLoop(device, e.queue, e.swapchain, e.config.Engine.FramesInFlight, e.config.FenceTimeout())
	if err != nil {
		return err
	}

	if e.jobs, err = jobs.NewJobSystem(e.config.Engine.RecordWorkers, e.config.Engine.RecordWorkers); err != nil {
		return err
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(device, e.queue, e.jobs); err != nil {
			return err
		}
	}
	e.setStage(EngineStageInitialized)
	core.LogWith("game", e.gameInstance.Name, "device", device.Name()).Info("engine initialized",
		"frames_in_flight", e.frames.FramesInFlight(),
		"max_frames", e.config.Engine.MaxFrames,
		"record_workers", e.jobs.Workers(),
		"presenting", e.swapchain != nil)
	return nil
}

// createSwapchain returns nil when presenting is disabled or the backend is headless.
func (e *Engine) createSwapchain() (*renderer.Swapchain, error) {
	cfg := e.config.Engine
	if cfg.SwapchainImages == 0 || !e.queue.SupportsPresent() || !e.device.SupportsResourceCreation() {
		return nil, nil
	}
	swapchain, err := e.device.CreateSwapchain(metadata.SwapchainDescription{
		ImageCount: cfg.SwapchainImages,
		Format:     metadata.FORMAT_B8G8R8A8_UNORM,
		Extent:     metadata.Extent2D{Width: cfg.Width, Height: cfg.Height},
	})
	if errors.Is(err, core.ErrUnsupported) {
		core.LogInfo("device %s cannot present, frames are submitted only", e.device.Name())
		return nil, nil
	}
	return swapchain, err
}

func newBackend(cfg *config.Config) (renderer.Backend, error) {
	switch cfg.Device.Backend {
	case config.BackendVulkan:
		return vulkan.New(vulkan.Options{
			ApplicationName: cfg.Device.ApplicationName,
			Validation:      cfg.Device.Validation,
		})
	case config.BackendSoftware:
		return software.New(cfg.SoftwareOptions()), nil
	default:
		return nil, fmt.Errorf("unknown backend `%s`: %w", cfg.Device.Backend, config.ErrInvalidConfig)
	}
}

// Run draws frames until the application quits, max_frames is reached or
// the device is lost.
func (e *Engine) Run() error {
	if e.Stage() != EngineStageInitialized {
		return fmt.Errorf("engine is not initialized: %w", core.ErrInitialization)
	}
	e.setStage(EngineStageRunning)

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed().Seconds()

	var runErr error
	for !e.quit.Load() {
		if limit := e.maxFrames.Load(); limit > 0 && e.frames.FrameNumber() >= limit {
			core.LogInfo("rendered %d frames, stopping", limit)
			break
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed().Seconds()
		delta := currentTime - e.lastTime

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				core.LogError("Game update failed, shutting down: %s", err)
				runErr = err
				break
			}
		}

		err := e.frames.DrawFrame(func(f *renderer.Frame) error {
			if e.gameInstance.FnRender == nil {
				return nil
			}
			return e.gameInstance.FnRender(f, delta)
		})
		if err != nil {
			core.LogError("Game render failed, shutting down: %s", err)
			runErr = err
			break
		}

		e.lastTime = currentTime
	}
	e.clock.Stop()

	if lost := e.lostErr.Load(); lost != nil && runErr == nil {
		runErr = *lost
	}
	e.setStage(EngineStageInitialized)
	return runErr
}

// Quit asks the engine to stop after the current frame. A Quit before Run
// makes Run return at once.
func (e *Engine) Quit() {
	e.events.Fire(core.EVENT_CODE_APPLICATION_QUIT, e, core.EventContext{})
}

func (e *Engine) Shutdown() error {
	switch e.Stage() {
	case EngineStageShuttingDown, EngineStageShutdown:
		return nil
	}
	e.setStage(EngineStageShuttingDown)

	var errs []error
	if e.gameInstance.FnShutdown != nil {
		errs = append(errs, e.gameInstance.FnShutdown())
	}
	if e.frames != nil {
		e.frames.Shutdown()
	}
	if e.swapchain != nil {
		e.swapchain.Destroy()
	}
	if e.jobs != nil {
		errs = append(errs, e.jobs.Shutdown())
	}
	if e.device != nil {
		e.device.Events().Unregister(core.EVENT_CODE_DEVICE_LOST, e)
		e.device.Destroy()
	}
	if e.watcher != nil {
		errs = append(errs, e.watcher.Close())
	}
	e.events.Shutdown()

	e.setStage(EngineStageShutdown)
	core.LogInfo("engine shut down")
	return errors.Join(errs...)
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listenerInst interface{}, context core.EventContext) bool {
	switch code {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT recieved, shutting down.")
		e.quit.Store(true)
		return true
	case core.EVENT_CODE_DEVICE_LOST:
		err := context.Err
		if err == nil {
			err = core.ErrDeviceLost
		}
		core.LogError("EVENT_CODE_DEVICE_LOST recieved: %s", err)
		e.lostErr.Store(&err)
		e.quit.Store(true)
		return true
	case core.EVENT_CODE_CONFIG_RELOADED:
		if e.watcher != nil {
			cfg := e.watcher.Config()
			e.maxFrames.Store(cfg.Engine.MaxFrames)
			core.LogDebug("max_frames is now %d", cfg.Engine.MaxFrames)
		}
		// other listeners may care about the reload too
		return false
	}
	return false
}
