//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs the unit tests with the race detector. The vulkan package only needs
// a loader at runtime, its tests never touch a device.
func (Test) Unit() error {
	_, err := executeCmd("go", withArgs("test", "-race", "-count=1", "./..."), withEnv("CGO_ENABLED=1"), withStream())
	return err
}

// Runs the renderer tests alone, verbose.
func (Test) Renderer() error {
	mg.Deps(Build.Vet)
	_, err := executeCmd("go", withArgs("test", "-v", "-count=1", "./..."), withDir("engine/renderer"), withStream())
	return err
}
