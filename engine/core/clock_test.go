package core

import (
	"testing"
	"time"
)

func TestClock(t *testing.T) {
	c := NewClock()
	c.Update()
	if c.Elapsed() != 0 {
		t.Fatal("non-started clock advanced")
	}

	c.Start()
	time.Sleep(time.Millisecond)
	c.Update()
	if c.Elapsed() <= 0 {
		t.Fatal("started clock did not advance")
	}

	c.Stop()
	stopped := c.Elapsed()
	time.Sleep(time.Millisecond)
	c.Update()
	if c.Elapsed() != stopped {
		t.Fatal("stopped clock advanced")
	}
}
