// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package perf

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"

	"github.com/pkg/errors"

	"github.com/RufUsul/gator/internal/util"
)

// DefaultPMUDeviceDir lists the kernel's registered perf event sources.
const DefaultPMUDeviceDir = "/sys/bus/event_source/devices"

// PMU describes one registered perf event source.
type PMU struct {
	// Name is the device name with any trailing instance number removed,
	// e.g., "arm_cmn" for "arm_cmn_0".
	Name string
	// RawName is the sysfs entry name.
	RawName string
	// Instance is the trailing instance number, or 0 when the name carries
	// none.
	Instance int
	// Type is the value to program into perf_event_attr.type.
	Type uint32
	// CPUMask is the set of CPUs the device's events must be opened on;
	// empty for per-task event sources.
	CPUMask []int
}

// builtin event sources that never describe an uncore device
var corePMUNames = map[string]bool{
	"software":   true,
	"tracepoint": true,
	"breakpoint": true,
	"kprobe":     true,
	"uprobe":     true,
	"cpu":        true,
}

var rxCorePMU = regexp.MustCompile(`^(armv\d|cpu_)`)
var rxPMUInstance = regexp.MustCompile(`^(.*?)(?:_(\d+))?$`)

// IsUncore reports whether the device is a non-CPU PMU (memory controller,
// interconnect, cache, ...).
func (pmu PMU) IsUncore() bool {
	return !corePMUNames[pmu.RawName] && !rxCorePMU.MatchString(pmu.RawName)
}

// DiscoverPMUs enumerates the registered perf event sources under deviceDir.
// Entries without a readable type file are skipped with a debug log.
func DiscoverPMUs(deviceDir string) (pmus []PMU, err error) {
	entries, err := os.ReadDir(deviceDir)
	if err != nil {
		err = errors.Wrap(err, fmt.Sprintf("PMU devices aren't listed at %s", deviceDir))
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		pmuType, readErr := util.IntFromFile(fmt.Sprintf("%s/%s/type", deviceDir, name))
		if readErr != nil {
			slog.Debug("skipping event source without a type", slog.String("pmu", name), slog.String("error", readErr.Error()))
			continue
		}
		pmu := PMU{Name: name, RawName: name, Type: uint32(pmuType)}
		if match := rxPMUInstance.FindStringSubmatch(name); match != nil && match[2] != "" {
			pmu.Name = match[1]
			pmu.Instance, _ = strconv.Atoi(match[2])
		}
		if cpumask, maskErr := util.ReadFileString(fmt.Sprintf("%s/%s/cpumask", deviceDir, name)); maskErr == nil {
			if cpus, parseErr := util.ParseCPUList(cpumask); parseErr == nil {
				pmu.CPUMask = cpus
			}
		}
		pmus = append(pmus, pmu)
	}
	return
}
