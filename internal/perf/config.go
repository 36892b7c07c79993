// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// Package perf translates declarative counter descriptions into fully
// populated kernel perf_event_attr records arranged into leader/follower
// groups. It never calls perf_event_open itself; the populated attributes are
// handed to the caller and mirrored into the attributes buffer.
package perf

// PerfConfig captures the perf-related capabilities of the running kernel.
// It is populated once at startup by Prober.Probe and passed by value
// afterwards.
type PerfConfig struct {
	IsSystemWide              bool
	HasSampleIdentifier       bool
	HasAttrClockIDSupport     bool
	HasAttrCommExec           bool
	HasAttrContextSwitch      bool
	HasCountSwDummy           bool
	HasExcludeCallchainKernel bool
	CanAccessTracepoints      bool
	Use64BitRegisterSet       bool
	ExcludeKernel             bool
}

// RingbufferConfig holds the per-event mmap sizes, in bytes.
type RingbufferConfig struct {
	DataBufferSize uint64
	AuxBufferSize  uint64
}

// UnknownTracepointID marks a tracepoint whose id could not be read.
const UnknownTracepointID int64 = -1

// ConfigurerConfig is the shared state of all event group configurers for
// one capture session.
type ConfigurerConfig struct {
	PerfConfig PerfConfig
	Ringbuffer RingbufferConfig

	// ExcludeKernelEvents filters kernel-mode samples from the capture.
	ExcludeKernelEvents bool
	// BacktraceDepth > 0 enables call-chain sampling.
	BacktraceDepth int
	// SampleRate is the sampling frequency in Hz; 0 disables periodic
	// sampling.
	SampleRate int
	// EnablePeriodicSampling drives program-counter sampling from a
	// cpu-clock follower.
	EnablePeriodicSampling bool

	// SchedSwitchID is the sched:sched_switch tracepoint id, or
	// UnknownTracepointID.
	SchedSwitchID int64
	// SchedSwitchKey is the caller's key for the context-switch leader.
	SchedSwitchKey int

	// DummyKeyCounter supplies keys for synthetic follower events. It starts
	// at a negative sentinel and decreases so synthetic keys can never
	// collide with caller keys, which are non-negative.
	DummyKeyCounter int
}

// nextDummyKey returns the next synthetic event key.
func (config *ConfigurerConfig) nextDummyKey() int {
	key := config.DummyKeyCounter
	config.DummyKeyCounter--
	return key
}
