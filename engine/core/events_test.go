package core

import (
	"errors"
	"testing"
)

func TestEventBusFireStopsAtFirstHandler(t *testing.T) {
	bus := NewEventBus()

	var calls []string
	first := func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		calls = append(calls, "first")
		return true
	}
	second := func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		calls = append(calls, "second")
		return false
	}

	if !bus.Register(EVENT_CODE_DEVICE_LOST, "a", first) {
		t.Fatal("register first failed")
	}
	if !bus.Register(EVENT_CODE_DEVICE_LOST, "b", second) {
		t.Fatal("register second failed")
	}

	if !bus.Fire(EVENT_CODE_DEVICE_LOST, nil, EventContext{Err: ErrDeviceLost}) {
		t.Fatal("event was not reported as handled")
	}
	if len(calls) != 1 || calls[0] != "first" {
		t.Fatalf("calls = %v, want [first]", calls)
	}
}

func TestEventBusRejectsDuplicateListener(t *testing.T) {
	bus := NewEventBus()
	cb := func(SystemEventCode, interface{}, interface{}, EventContext) bool { return false }

	if !bus.Register(EVENT_CODE_CONFIG_RELOADED, "l", cb) {
		t.Fatal("first registration failed")
	}
	if bus.Register(EVENT_CODE_CONFIG_RELOADED, "l", cb) {
		t.Fatal("duplicate registration succeeded")
	}
	if !bus.Unregister(EVENT_CODE_CONFIG_RELOADED, "l") {
		t.Fatal("unregister failed")
	}
	if bus.Unregister(EVENT_CODE_CONFIG_RELOADED, "l") {
		t.Fatal("second unregister succeeded")
	}
}

func TestEventBusPassesContext(t *testing.T) {
	bus := NewEventBus()
	var got error
	bus.Register(EVENT_CODE_DEVICE_LOST, nil, func(_ SystemEventCode, _, _ interface{}, data EventContext) bool {
		got = data.Err
		return true
	})
	bus.Fire(EVENT_CODE_DEVICE_LOST, nil, EventContext{Err: ErrDeviceLost})
	if !errors.Is(got, ErrDeviceLost) {
		t.Fatalf("got %v, want %v", got, ErrDeviceLost)
	}
}
