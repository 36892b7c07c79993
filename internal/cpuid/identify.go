// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package cpuid

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sys/unix"

	"github.com/RufUsul/gator/internal/util"
)

// InvalidPackageID marks a core whose physical_package_id could not be read.
const InvalidPackageID = -1

// identifyTimeout bounds the wait for all per-core workers to report.
// Expiry is not fatal; identification proceeds with whatever was collected.
const identifyTimeout = 10 * time.Second

// CoreProperties is the per-core state read by an identification worker.
type CoreProperties struct {
	CPU      int
	MIDR     uint64
	HasMIDR  bool
	Cluster  int // InvalidPackageID when unknown
	Siblings []int
}

// Identifier reads per-core identification state from the kernel. The zero
// value reads the real sysfs/procfs locations; tests point the paths at
// synthetic trees.
type Identifier struct {
	SysCpuDir   string
	ProcCpuInfo string
}

func (ident *Identifier) sysCpuDir() string {
	if ident.SysCpuDir != "" {
		return ident.SysCpuDir
	}
	return DefaultSysCpuDir
}

func (ident *Identifier) procCpuInfo() string {
	if ident.ProcCpuInfo != "" {
		return ident.ProcCpuInfo
	}
	return DefaultProcCpuInfo
}

// DetectFor reads the identification state of the given cpu from sysfs.
// Missing attributes (offline core, pre-4.7 kernel without the identification
// registers, non-Arm machine) are logged at debug level and left at their
// unknown values.
func (ident *Identifier) DetectFor(cpu int) CoreProperties {
	props := CoreProperties{CPU: cpu, Cluster: InvalidPackageID}
	cpuDir := fmt.Sprintf("%s/cpu%d", ident.sysCpuDir(), cpu)

	midr, err := util.UintFromFile(cpuDir + "/regs/identification/midr_el1")
	if err != nil {
		slog.Debug("failed to read midr_el1", slog.Int("cpu", cpu), slog.String("error", err.Error()))
	} else {
		props.MIDR = midr
		props.HasMIDR = true
	}

	cluster, err := util.IntFromFile(cpuDir + "/topology/physical_package_id")
	if err != nil {
		slog.Debug("failed to read physical_package_id", slog.Int("cpu", cpu), slog.String("error", err.Error()))
	} else {
		props.Cluster = int(cluster)
	}

	siblings, err := util.ReadFileString(cpuDir + "/topology/core_siblings_list")
	if err != nil {
		slog.Debug("failed to read core_siblings_list", slog.Int("cpu", cpu), slog.String("error", err.Error()))
	} else {
		props.Siblings, err = util.ParseCPUList(siblings)
		if err != nil {
			slog.Debug("failed to parse core_siblings_list", slog.Int("cpu", cpu), slog.String("error", err.Error()))
		}
	}
	return props
}

// identifyAllCores wakes every core and reads its identification state. One
// worker is spawned per logical CPU, hard-affined to that CPU so that it is
// brought online. Each worker reports its properties and then blocks; the
// workers are released by the returned function, which the caller must defer
// until after any subsequent /proc/cpuinfo read so the cores stay online for
// the duration.
//
// The collection waits at most identifyTimeout. Cores that never report
// (e.g., they could not be brought online) are absent from the result; any
// later per-CPU perf open targeting them is expected to fail and is the
// caller's soft error.
func (ident *Identifier) identifyAllCores(numCPUs int) (collected map[int]CoreProperties, release func()) {
	results := make(chan CoreProperties)
	shutdown := make(chan struct{})

	for cpu := range numCPUs {
		go func(cpu int) {
			// Pin the OS thread to the core; the scheduler brings the core
			// online to run it.
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			var set unix.CPUSet
			set.Set(cpu)
			if err := unix.SchedSetaffinity(0, &set); err != nil {
				slog.Debug("failed to set affinity", slog.Int("cpu", cpu), slog.String("error", err.Error()))
			}
			props := ident.DetectFor(cpu)
			select {
			case results <- props:
			case <-shutdown:
				return
			}
			// Stay parked on the core until released so it remains online.
			<-shutdown
		}(cpu)
	}

	collected = make(map[int]CoreProperties, numCPUs)
	timer := time.NewTimer(identifyTimeout)
	defer timer.Stop()
	for len(collected) < numCPUs {
		select {
		case props := <-results:
			collected[props.CPU] = props
		case <-timer.C:
			slog.Debug("could not identify all CPU cores within the timeout period",
				slog.Int("activated", len(collected)), slog.Int("cores", numCPUs))
			return collected, func() { close(shutdown) }
		}
	}
	return collected, func() { close(shutdown) }
}
