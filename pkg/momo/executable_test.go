package momo

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeBuild(t *testing.T, root string, targets ...string) {
	t.Helper()
	for _, target := range targets {
		exe := executableIn(filepath.Join(root, "_build"), target)
		require.NoError(t, os.MkdirAll(filepath.Dir(exe), 0o755))
		require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o755))
	}
}

func TestFindExecutable_EnvOverride(t *testing.T) {
	exe := filepath.Join(t.TempDir(), "momo")
	require.NoError(t, os.WriteFile(exe, nil, 0o755))
	t.Setenv(ExecutableEnv, exe)

	got, err := FindExecutable(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, exe, got)

	t.Setenv(ExecutableEnv, filepath.Join(t.TempDir(), "missing"))
	_, err = FindExecutable("")
	assert.True(t, errors.Is(err, ErrExecutableNotFound))
}

func TestFindExecutable_ScansBuildDir(t *testing.T) {
	t.Setenv(ExecutableEnv, "")
	root := t.TempDir()
	makeBuild(t, root, "raspberry-pi-os_armv8")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "_build", "empty-target"), 0o755))

	got, err := FindExecutable(root)
	require.NoError(t, err)
	assert.Equal(t, executableIn(filepath.Join(root, "_build"), "raspberry-pi-os_armv8"), got)
}

func TestFindExecutable_NoBuild(t *testing.T) {
	t.Setenv(ExecutableEnv, "")
	_, err := FindExecutable(t.TempDir())
	assert.True(t, errors.Is(err, ErrExecutableNotFound))

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "_build", "ubuntu-24.04_x86_64"), 0o755))
	_, err = FindExecutable(root)
	assert.True(t, errors.Is(err, ErrExecutableNotFound))
}

func TestPickTarget(t *testing.T) {
	targets := []string{"macos_arm64", "macos_x86_64", "ubuntu-22.04_x86_64", "ubuntu-24.04_armv8", "ubuntu-24.04_x86_64"}

	assert.Equal(t, "macos_arm64", pickTarget(targets, "darwin", "arm64"))
	assert.Equal(t, "macos_x86_64", pickTarget(targets, "darwin", "amd64"))
	assert.Equal(t, "ubuntu-24.04_x86_64", pickTarget(targets, "linux", "amd64"))
	assert.Equal(t, "ubuntu-24.04_armv8", pickTarget(targets, "linux", "arm64"))
	assert.Equal(t, "ubuntu-22.04_x86_64", pickTarget([]string{"ubuntu-22.04_x86_64", "ubuntu-24.04_armv8"}, "linux", "amd64"))
	assert.Equal(t, "macos_arm64", pickTarget(targets, "windows", "amd64"))
}
