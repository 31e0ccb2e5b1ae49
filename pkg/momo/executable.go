package momo

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
)

// ExecutableEnv names the environment variable that overrides discovery.
const ExecutableEnv = "MOMO_EXECUTABLE"

// FindExecutable locates the client binary. MOMO_EXECUTABLE wins when set.
// Otherwise it looks for _build/<target>/release/momo/momo under root, or
// under the nearest ancestor of the working directory holding _build when
// root is empty. With several built targets the host platform's preferred
// target is chosen, falling back to the first in name order.
func FindExecutable(root string) (string, error) {
	if p := os.Getenv(ExecutableEnv); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("%w: %s=%s: %v", ErrExecutableNotFound, ExecutableEnv, p, err)
		}
		return p, nil
	}
	if root == "" {
		var err error
		if root, err = findBuildRoot(); err != nil {
			return "", err
		}
	}
	buildDir := filepath.Join(root, "_build")
	entries, err := os.ReadDir(buildDir)
	if err != nil {
		return "", fmt.Errorf("%w: build directory %s: %v", ErrExecutableNotFound, buildDir, err)
	}

	var targets []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(executableIn(buildDir, e.Name())); err == nil {
			targets = append(targets, e.Name())
		}
	}
	if len(targets) == 0 {
		return "", fmt.Errorf("%w: no built targets in %s", ErrExecutableNotFound, buildDir)
	}
	sort.Strings(targets)
	return executableIn(buildDir, pickTarget(targets, runtime.GOOS, runtime.GOARCH)), nil
}

func executableIn(buildDir, target string) string {
	return filepath.Join(buildDir, target, "release", "momo", "momo")
}

func pickTarget(targets []string, goos, goarch string) string {
	for _, pref := range preferredTargets(goos, goarch) {
		if slices.Contains(targets, pref) {
			return pref
		}
	}
	return targets[0]
}

func preferredTargets(goos, goarch string) []string {
	switch goos {
	case "darwin":
		if goarch == "arm64" {
			return []string{"macos_arm64", "macos_x86_64"}
		}
		return []string{"macos_x86_64", "macos_arm64"}
	case "linux":
		if goarch == "arm64" {
			return []string{"ubuntu-24.04_armv8", "ubuntu-22.04_armv8", "ubuntu-20.04_armv8"}
		}
		return []string{"ubuntu-24.04_x86_64", "ubuntu-22.04_x86_64", "ubuntu-20.04_x86_64"}
	default:
		return nil
	}
}

func findBuildRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if fi, err := os.Stat(filepath.Join(dir, "_build")); err == nil && fi.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w: no _build directory above the working directory", ErrExecutableNotFound)
		}
		dir = parent
	}
}
