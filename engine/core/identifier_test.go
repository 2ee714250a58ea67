package core

import (
	"strings"
	"testing"
)

func TestObjectIDUnique(t *testing.T) {
	a, b := NewObjectID(), NewObjectID()
	if a == b {
		t.Fatal("two ids are equal")
	}
	if a == NilObjectID {
		t.Fatal("new id is nil")
	}
}

func TestDebugName(t *testing.T) {
	id := NewObjectID()
	name := DebugName("fence", id)
	if !strings.HasPrefix(name, "fence-") || len(name) != len("fence-")+8 {
		t.Fatalf("unexpected debug name %q", name)
	}
	if !strings.HasPrefix(id.String(), id.Short()) {
		t.Fatalf("short %q is not a prefix of %q", id.Short(), id.String())
	}
}
