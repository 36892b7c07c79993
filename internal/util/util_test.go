// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInt(t *testing.T) {
	val, err := ParseInt(" 0x41 ")
	require.NoError(t, err)
	assert.Equal(t, int64(0x41), val)

	val, err = ParseInt("42\n")
	require.NoError(t, err)
	assert.Equal(t, int64(42), val)

	_, err = ParseInt("not a number")
	assert.Error(t, err)
}

func TestParseUint(t *testing.T) {
	val, err := ParseUint("0x410fd034\n")
	require.NoError(t, err)
	assert.Equal(t, uint64(0x410fd034), val)
}

func TestIntFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "physical_package_id")
	require.NoError(t, os.WriteFile(path, []byte("1\n"), 0644))
	val, err := IntFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(1), val)

	_, err = IntFromFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestParseCPUList(t *testing.T) {
	cpus, err := ParseCPUList("0-3,5,7-8")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 5, 7, 8}, cpus)

	cpus, err = ParseCPUList("4")
	require.NoError(t, err)
	assert.Equal(t, []int{4}, cpus)

	cpus, err = ParseCPUList("\n")
	require.NoError(t, err)
	assert.Empty(t, cpus)

	_, err = ParseCPUList("3-1")
	assert.Error(t, err)

	_, err = ParseCPUList("a-b")
	assert.Error(t, err)
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	exists, err := FileExists(path)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = FileExists(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = FileExists(dir)
	assert.Error(t, err)
}
