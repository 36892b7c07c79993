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

func writePMU(t *testing.T, deviceDir string, name string, pmuType string, cpumask string) {
	t.Helper()
	dir := filepath.Join(deviceDir, name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	if pmuType != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "type"), []byte(pmuType), 0644))
	}
	if cpumask != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "cpumask"), []byte(cpumask), 0644))
	}
}

func TestDiscoverPMUs(t *testing.T) {
	deviceDir := t.TempDir()
	writePMU(t, deviceDir, "software", "1", "")
	writePMU(t, deviceDir, "armv8_pmuv3_0", "8", "0-3\n")
	writePMU(t, deviceDir, "arm_cmn_0", "9", "0\n")
	writePMU(t, deviceDir, "broken", "", "") // no type file

	pmus, err := DiscoverPMUs(deviceDir)
	require.NoError(t, err)
	require.Len(t, pmus, 3)

	byName := make(map[string]PMU)
	for _, pmu := range pmus {
		byName[pmu.RawName] = pmu
	}

	software := byName["software"]
	assert.Equal(t, uint32(1), software.Type)
	assert.False(t, software.IsUncore())

	core := byName["armv8_pmuv3_0"]
	assert.Equal(t, uint32(8), core.Type)
	assert.Equal(t, "armv8_pmuv3", core.Name)
	assert.Equal(t, 0, core.Instance)
	assert.Equal(t, []int{0, 1, 2, 3}, core.CPUMask)
	assert.False(t, core.IsUncore())

	cmn := byName["arm_cmn_0"]
	assert.Equal(t, uint32(9), cmn.Type)
	assert.Equal(t, "arm_cmn", cmn.Name)
	assert.Equal(t, 0, cmn.Instance)
	assert.Equal(t, []int{0}, cmn.CPUMask)
	assert.True(t, cmn.IsUncore())
}

func TestDiscoverPMUs_Instance(t *testing.T) {
	deviceDir := t.TempDir()
	writePMU(t, deviceDir, "arm_cmn_2", "10", "")

	pmus, err := DiscoverPMUs(deviceDir)
	require.NoError(t, err)
	require.Len(t, pmus, 1)
	assert.Equal(t, "arm_cmn", pmus[0].Name)
	assert.Equal(t, 2, pmus[0].Instance)
}

func TestDiscoverPMUs_MissingDir(t *testing.T) {
	_, err := DiscoverPMUs(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
