// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package perf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKernelVersion(t *testing.T) {
	major, minor, err := parseKernelVersion("5.15.0-122-generic")
	require.NoError(t, err)
	assert.Equal(t, 5, major)
	assert.Equal(t, 15, minor)

	major, minor, err = parseKernelVersion("4.3")
	require.NoError(t, err)
	assert.Equal(t, 4, major)
	assert.Equal(t, 3, minor)

	_, _, err = parseKernelVersion("unknown")
	assert.Error(t, err)
}

func TestKernelAtLeast(t *testing.T) {
	assert.True(t, kernelAtLeast(4, 3, 4, 3))
	assert.True(t, kernelAtLeast(5, 0, 4, 3))
	assert.False(t, kernelAtLeast(4, 2, 4, 3))
	assert.False(t, kernelAtLeast(3, 16, 4, 3))
}

// writeTracing builds a synthetic tracefs with a sched_switch id.
func writeTracing(t *testing.T, id string) string {
	t.Helper()
	dir := t.TempDir()
	eventDir := filepath.Join(dir, "events", "sched", "sched_switch")
	require.NoError(t, os.MkdirAll(eventDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(eventDir, "id"), []byte(id), 0644))
	return dir
}

func TestProbe(t *testing.T) {
	paranoidPath := filepath.Join(t.TempDir(), "perf_event_paranoid")
	require.NoError(t, os.WriteFile(paranoidPath, []byte("-1\n"), 0644))
	prober := &Prober{
		ParanoidPath:  paranoidPath,
		TracingDir:    writeTracing(t, "42\n"),
		KernelRelease: "5.15.0-122-generic",
	}

	config := prober.Probe(true)
	assert.True(t, config.IsSystemWide)
	assert.True(t, config.HasSampleIdentifier)
	assert.True(t, config.HasCountSwDummy)
	assert.True(t, config.HasAttrCommExec)
	assert.True(t, config.HasAttrClockIDSupport)
	assert.True(t, config.HasAttrContextSwitch)
	assert.True(t, config.HasExcludeCallchainKernel)
	assert.True(t, config.CanAccessTracepoints)
	assert.False(t, config.ExcludeKernel)
}

func TestProbe_OldKernel(t *testing.T) {
	prober := &Prober{
		ParanoidPath:  filepath.Join(t.TempDir(), "missing"),
		TracingDir:    filepath.Join(t.TempDir(), "missing"),
		KernelRelease: "3.10.0-1160.el7",
	}

	config := prober.Probe(false)
	assert.False(t, config.IsSystemWide)
	assert.False(t, config.HasSampleIdentifier)
	assert.False(t, config.HasCountSwDummy)
	assert.False(t, config.HasAttrCommExec)
	assert.False(t, config.HasAttrClockIDSupport)
	assert.False(t, config.HasAttrContextSwitch)
	assert.True(t, config.HasExcludeCallchainKernel)
	assert.False(t, config.CanAccessTracepoints)
}

func TestTracepointID(t *testing.T) {
	dir := writeTracing(t, "314\n")
	id, err := TracepointID(dir, "sched", "sched_switch")
	require.NoError(t, err)
	assert.Equal(t, int64(314), id)

	_, err = TracepointID(dir, "sched", "sched_wakeup")
	assert.Error(t, err)
}

func TestSchedSwitchID(t *testing.T) {
	prober := &Prober{TracingDir: writeTracing(t, "42\n")}
	assert.Equal(t, int64(42), prober.SchedSwitchID())

	prober = &Prober{TracingDir: filepath.Join(t.TempDir(), "missing")}
	assert.Equal(t, UnknownTracepointID, prober.SchedSwitchID())
}

func TestNextDummyKey(t *testing.T) {
	config := &ConfigurerConfig{DummyKeyCounter: -100}
	assert.Equal(t, -100, config.nextDummyKey())
	assert.Equal(t, -101, config.nextDummyKey())
	assert.Equal(t, -102, config.nextDummyKey())
}
