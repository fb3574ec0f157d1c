//go:build mage

package main

import (
	"fmt"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/target"
)

const shaderDir = "resources/shaders"

// Sources compiled to <name>.spv next to themselves. The renderer loads them
// by these names.
var shaderSources = []string{
	"gbuffer.vert", "gbuffer.frag",
	"shading.vert", "shading.frag",
	"quad3_vert.vert",
	"postfx.frag",
}

type Build mg.Namespace

// Compiles the GLSL shaders to SPIR-V with glslc. Up to date outputs are skipped.
func (Build) Shaders() error {
	for _, name := range shaderSources {
		src := filepath.Join(shaderDir, name)
		dst := src + ".spv"
		stale, err := target.Path(dst, src, filepath.Join(shaderDir, "common.glsl"))
		if err != nil {
			return fmt.Errorf("failed to check %s: %w", src, err)
		}
		if !stale {
			continue
		}
		if _, err := executeCmd("glslc", withArgs("--target-env=vulkan1.1", "-I", shaderDir, src, "-o", dst), withStream()); err != nil {
			return err
		}
	}
	return nil
}

// Builds the engine binary into bin/.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("build", "-o", "bin/deferred", "."), withStream())
	return err
}
