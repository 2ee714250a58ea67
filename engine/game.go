package engine

import (
	"github.com/spaghettifunk/anima-gpu/engine/jobs"
	"github.com/spaghettifunk/anima-gpu/engine/renderer"
)

type Game struct {
	Name         string
	State        interface{}
	FnInitialize Initialize
	FnUpdate     Update
	FnRender     Render
	FnShutdown   Shutdown
}

// Initialize runs once the device, the frame loop and the job system exist.
type Initialize func(device *renderer.Device, queue *renderer.Queue, js *jobs.JobSystem) error
type Update func(deltaTime float64) error

// Render records the frame's commands. The command buffer is already recording.
type Render func(frame *renderer.Frame, deltaTime float64) error
type Shutdown func() error
