//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/target"
)

const (
	shaderSrcDir = "shaders"
	shaderOutDir = "target/shaders"
)

// pipeline shader name -> vertex and fragment sources in shaders/
var shaderSources = map[string][2]string{
	"standard_pbr":      {"world.vert", "pbr.frag"},
	"transparent_pbr":   {"world.vert", "pbr.frag"},
	"unlit":             {"world.vert", "unlit.frag"},
	"transparent_unlit": {"world.vert", "unlit.frag"},
	"billboard":         {"world.vert", "billboard.frag"},
	"skybox":            {"skybox.vert", "skybox.frag"},
	"ui_simple":         {"ui.vert", "ui_panel.frag"},
	"ui_text":           {"ui.vert", "ui_text.frag"},
}

type Build mg.Namespace

// Compiles the GLSL sources into one SPIR-V pair per pipeline.
func (Build) Shaders() error {
	if err := os.MkdirAll(shaderOutDir, 0o755); err != nil {
		return err
	}
	for name, src := range shaderSources {
		for i, stage := range []string{"vert", "frag"} {
			in := filepath.Join(shaderSrcDir, src[i])
			out := filepath.Join(shaderOutDir, fmt.Sprintf("%s_%s.spv", name, stage))
			stale, err := target.Path(out, in)
			if err != nil {
				return err
			}
			if !stale {
				continue
			}
			if _, err := executeCmd("glslc", withArgs("--target-env=vulkan1.1", in, "-o", out), withStream()); err != nil {
				return err
			}
		}
	}
	return nil
}

// Builds the engine binary into target/.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("build", "-o", "target/armada", "."), withStream())
	return err
}
