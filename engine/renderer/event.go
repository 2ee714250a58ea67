package renderer

import (
	"fmt"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// Event is a binary signal the host and the device can both set and reset.
// A set recorded in a command buffer is visible to IsSet once the device has
// executed that command.
type Event struct {
	resource
}

func (e *Event) Set() error {
	dev, err := e.live()
	if err != nil {
		return err
	}
	if err := dev.backend.SetEvent(e.handle); err != nil {
		return dev.fail("set event", err)
	}
	return nil
}

func (e *Event) Reset() error {
	dev, err := e.live()
	if err != nil {
		return err
	}
	if err := dev.backend.ResetEvent(e.handle); err != nil {
		return dev.fail("reset event", err)
	}
	return nil
}

// IsSet queries the device every call; nothing is cached on the host.
func (e *Event) IsSet() (bool, error) {
	dev, err := e.live()
	if err != nil {
		return false, err
	}
	res, err := dev.backend.GetEventStatus(e.handle)
	if err != nil {
		return false, dev.fail("get event status", err)
	}
	switch res {
	case metadata.RESULT_EVENT_SET:
		return true, nil
	case metadata.RESULT_EVENT_RESET:
		return false, nil
	}
	return false, dev.fail("get event status", resultError(res))
}

func (e *Event) live() (*Device, error) {
	if e.IsDestroyed() {
		return nil, fmt.Errorf("%s: %w", e.DebugName(), core.ErrObjectDestroyed)
	}
	return e.Device()
}
