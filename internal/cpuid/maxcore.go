// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package cpuid

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DefaultSysCpuDir is the sysfs directory holding one cpu<N> entry per
// possible logical CPU.
const DefaultSysCpuDir = "/sys/devices/system/cpu"

// DefaultProcCpuInfo is the kernel's textual CPU description.
const DefaultProcCpuInfo = "/proc/cpuinfo"

// GetMaxCoreCount determines the number of logical CPUs on the target by
// scanning sysCpuDir for cpu<N> entries and returning max(N)+1. The count is
// established once at startup and is invariant for the process lifetime.
func GetMaxCoreCount(sysCpuDir string) (count int, err error) {
	entries, err := os.ReadDir(sysCpuDir)
	if err != nil {
		err = fmt.Errorf("unable to determine the number of cores on the target: %v", err)
		return
	}
	maxCoreNum := -1
	for _, entry := range entries {
		name, found := strings.CutPrefix(entry.Name(), "cpu")
		if !found {
			continue
		}
		coreNum, parseErr := strconv.Atoi(name)
		if parseErr != nil || coreNum < 0 {
			continue // cpufreq, cpuidle, etc.
		}
		if coreNum+1 > maxCoreNum {
			maxCoreNum = coreNum + 1
		}
	}
	if maxCoreNum < 1 {
		err = fmt.Errorf("unable to determine the number of cores on the target: no cpu# entries found in %s", sysCpuDir)
		return
	}
	count = maxCoreNum
	return
}
