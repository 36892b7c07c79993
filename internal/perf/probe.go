// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package perf

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/RufUsul/gator/internal/util"
)

const (
	// DefaultParanoidPath holds the kernel's perf access policy.
	DefaultParanoidPath = "/proc/sys/kernel/perf_event_paranoid"
	// DefaultTracingDir is the tracefs mount point.
	DefaultTracingDir = "/sys/kernel/debug/tracing"
)

// Prober reads the kernel's perf capabilities. The zero value probes the
// real proc/tracefs locations; tests point the paths at synthetic trees.
type Prober struct {
	ParanoidPath string
	TracingDir   string
	// KernelRelease overrides the uname release string, for tests.
	KernelRelease string
}

func (p *Prober) paranoidPath() string {
	if p.ParanoidPath != "" {
		return p.ParanoidPath
	}
	return DefaultParanoidPath
}

func (p *Prober) tracingDir() string {
	if p.TracingDir != "" {
		return p.TracingDir
	}
	return DefaultTracingDir
}

func (p *Prober) kernelRelease() string {
	if p.KernelRelease != "" {
		return p.KernelRelease
	}
	var uname unix.Utsname
	if err := unix.Uname(&uname); err != nil {
		slog.Warn("failed to read uname", slog.String("error", err.Error()))
		return ""
	}
	release := uname.Release[:]
	if end := bytes.IndexByte(release, 0); end >= 0 {
		release = release[:end]
	}
	return string(release)
}

// parseKernelVersion extracts major and minor from a release string such as
// "5.15.0-122-generic".
func parseKernelVersion(release string) (major int, minor int, err error) {
	parts := strings.SplitN(release, ".", 3)
	if len(parts) < 2 {
		err = fmt.Errorf("failed to parse kernel release %q", release)
		return
	}
	if major, err = strconv.Atoi(parts[0]); err != nil {
		err = fmt.Errorf("failed to parse kernel release %q: %v", release, err)
		return
	}
	minorDigits := strings.TrimFunc(parts[1], func(r rune) bool { return r < '0' || r > '9' })
	if minor, err = strconv.Atoi(minorDigits); err != nil {
		err = fmt.Errorf("failed to parse kernel release %q: %v", release, err)
		return
	}
	return
}

func kernelAtLeast(major int, minor int, wantMajor int, wantMinor int) bool {
	return major > wantMajor || (major == wantMajor && minor >= wantMinor)
}

// Probe populates the capability record once at startup. Each capability
// that cannot be determined is assumed absent and logged.
func (p *Prober) Probe(isSystemWide bool) (config PerfConfig) {
	config.IsSystemWide = isSystemWide
	config.Use64BitRegisterSet = runtime.GOARCH == "arm64"

	release := p.kernelRelease()
	major, minor, err := parseKernelVersion(release)
	if err != nil {
		slog.Warn("failed to parse kernel version, assuming no optional perf attributes",
			slog.String("release", release), slog.String("error", err.Error()))
	} else {
		config.HasSampleIdentifier = kernelAtLeast(major, minor, 3, 12)
		config.HasCountSwDummy = kernelAtLeast(major, minor, 3, 12)
		config.HasAttrCommExec = kernelAtLeast(major, minor, 3, 16)
		config.HasAttrClockIDSupport = kernelAtLeast(major, minor, 4, 1)
		config.HasAttrContextSwitch = kernelAtLeast(major, minor, 4, 3)
		config.HasExcludeCallchainKernel = kernelAtLeast(major, minor, 3, 7)
	}

	paranoid, err := util.IntFromFile(p.paranoidPath())
	if err != nil {
		slog.Debug("failed to read perf_event_paranoid", slog.String("error", err.Error()))
		paranoid = 2
	}
	isRoot := os.Geteuid() == 0
	config.ExcludeKernel = !isRoot && paranoid > 1

	if _, err := os.Stat(p.tracingDir() + "/events"); err != nil {
		slog.Debug("tracepoints are not accessible", slog.String("error", err.Error()))
	} else {
		config.CanAccessTracepoints = true
	}

	slog.Debug("probed perf configuration",
		slog.String("kernel", release),
		slog.Bool("system_wide", config.IsSystemWide),
		slog.Bool("sample_identifier", config.HasSampleIdentifier),
		slog.Bool("attr_clockid", config.HasAttrClockIDSupport),
		slog.Bool("attr_comm_exec", config.HasAttrCommExec),
		slog.Bool("attr_context_switch", config.HasAttrContextSwitch),
		slog.Bool("count_sw_dummy", config.HasCountSwDummy),
		slog.Bool("exclude_callchain_kernel", config.HasExcludeCallchainKernel),
		slog.Bool("can_access_tracepoints", config.CanAccessTracepoints),
		slog.Bool("exclude_kernel", config.ExcludeKernel))
	return
}
