//go:build mage

package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Compiles every GLSL stage under shaders/ to SPIR-V next to its source.
func (Build) Shaders() error {
	var sources []string
	for _, ext := range []string{"*.vert", "*.frag"} {
		matches, err := filepath.Glob(filepath.Join("shaders", ext))
		if err != nil {
			return err
		}
		sources = append(sources, matches...)
	}
	if len(sources) == 0 {
		return fmt.Errorf("no shader sources found in shaders/")
	}
	for _, src := range sources {
		// builtin.vert -> builtin.vert.spv
		out := src + ".spv"
		if _, err := executeCmd("glslc", withArgs(src, "-o", out), withStream()); err != nil {
			return err
		}
	}
	return nil
}

// Builds the testbed binary into bin/.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("build", "-o", filepath.Join("bin", "lumen"), "."), withStream())
	return err
}

// Builds the testbed with assertions that panic and the validation layers enabled.
func (Build) Debug() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("build", "-tags", "debug", "-o", filepath.Join("bin", "lumen-debug"), "."), withStream())
	return err
}

// Runs go mod tidy and go vet.
func (Build) Tidy() error {
	if _, err := executeCmd("go", withArgs("mod", "tidy")); err != nil {
		return fmt.Errorf("failed to run go mod tidy: %w", err)
	}
	out, err := executeCmd("go", withArgs("vet", "./..."))
	if err != nil {
		return fmt.Errorf("go vet: %s", strings.TrimSpace(out))
	}
	return nil
}
