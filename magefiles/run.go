//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and runs the testbed.
func (Run) Engine() error {
	mg.Deps(Build.Shaders)
	fmt.Println("Run engine...")
	if _, err := executeCmd("go", withArgs("run", "."), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the engine and testbed tests; the Vulkan backend tests need no device.
func (Run) Tests() error {
	for _, dir := range []string{"engine", "testbed"} {
		if _, err := executeCmd("go", withArgs("test", "./..."), withDir(dir), withStream()); err != nil {
			return err
		}
	}
	return nil
}
