// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package perf

import (
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/sys/unix"
)

// GroupType selects the leader requirement and the per-CPU fan-out of a
// group.
type GroupType int

const (
	// GroupTypePerClusterCpu events are opened once per CPU of one cluster,
	// led by a context-switch source.
	GroupTypePerClusterCpu GroupType = iota
	// GroupTypeUncorePmu events target a non-CPU PMU, led by a timer.
	GroupTypeUncorePmu
	// GroupTypeSpecificCpu events are standalone events on a single CPU.
	GroupTypeSpecificCpu
	// GroupTypeGlobal events are standalone events on every CPU.
	GroupTypeGlobal
	// GroupTypeSpe events carry the statistical profiling aux stream of one
	// CPU.
	GroupTypeSpe
)

// GroupIdentifier names one event group.
type GroupIdentifier struct {
	Type GroupType
	// Cluster is the cluster id for GroupTypePerClusterCpu.
	Cluster int
	// PMUName and PMUInstance identify the device for GroupTypeUncorePmu.
	PMUName     string
	PMUInstance int
	// CPU is the target cpu for GroupTypeSpecificCpu and GroupTypeSpe.
	CPU int
}

func PerClusterCpuGroup(cluster int) GroupIdentifier {
	return GroupIdentifier{Type: GroupTypePerClusterCpu, Cluster: cluster}
}

func UncorePmuGroup(name string, instance int) GroupIdentifier {
	return GroupIdentifier{Type: GroupTypeUncorePmu, PMUName: name, PMUInstance: instance}
}

func SpecificCpuGroup(cpu int) GroupIdentifier {
	return GroupIdentifier{Type: GroupTypeSpecificCpu, CPU: cpu}
}

func GlobalGroup() GroupIdentifier {
	return GroupIdentifier{Type: GroupTypeGlobal}
}

func SpeGroup(cpu int) GroupIdentifier {
	return GroupIdentifier{Type: GroupTypeSpe, CPU: cpu}
}

// RequiresLeader reports whether events of this group are opened under a
// shared group leader rather than each standing alone.
func (identifier GroupIdentifier) RequiresLeader() bool {
	switch identifier.Type {
	case GroupTypePerClusterCpu, GroupTypeUncorePmu:
		return true
	default:
		return false
	}
}

func (identifier GroupIdentifier) String() string {
	switch identifier.Type {
	case GroupTypePerClusterCpu:
		return fmt.Sprintf("cluster %d", identifier.Cluster)
	case GroupTypeUncorePmu:
		return fmt.Sprintf("uncore %s_%d", identifier.PMUName, identifier.PMUInstance)
	case GroupTypeSpecificCpu:
		return fmt.Sprintf("cpu %d", identifier.CPU)
	case GroupTypeGlobal:
		return "global"
	case GroupTypeSpe:
		return fmt.Sprintf("spe cpu %d", identifier.CPU)
	default:
		return "unknown"
	}
}

// EventGroupConfigurer builds the ordered event sequence of one group. The
// caller's AddEvent order defines the group order; when the group requires a
// leader the first event is the leader.
type EventGroupConfigurer struct {
	config     *ConfigurerConfig
	identifier GroupIdentifier
	events     []Event
}

// NewEventGroupConfigurer returns a configurer for the group named by
// identifier, sharing the session-wide config.
func NewEventGroupConfigurer(config *ConfigurerConfig, identifier GroupIdentifier) *EventGroupConfigurer {
	return &EventGroupConfigurer{config: config, identifier: identifier}
}

// Identifier returns the group's identifier.
func (g *EventGroupConfigurer) Identifier() GroupIdentifier {
	return g.identifier
}

// Events returns the configured event sequence, leader first.
func (g *EventGroupConfigurer) Events() []Event {
	return g.events
}

// AddEvent appends a fresh event configured from attr. A leader may only be
// added to an empty group; both violations of that rule and group-size
// overflow are programmer errors.
func (g *EventGroupConfigurer) AddEvent(leader bool, sink AttrKeySink, key int, attr Attr, hasAuxData bool) error {
	if leader && len(g.events) > 0 {
		return fmt.Errorf("cannot set leader for non-empty group %s", g.identifier)
	}
	if len(g.events) >= math.MaxInt32 {
		return fmt.Errorf("group %s is full", g.identifier)
	}

	g.events = append(g.events, Event{})
	event := &g.events[len(g.events)-1]

	if err := initEvent(g.config, event, false, g.identifier.RequiresLeader(), g.identifier.Type,
		leader, sink, key, attr, hasAuxData); err != nil {
		g.events = g.events[:len(g.events)-1]
		return err
	}
	return nil
}

// CreateGroupLeader builds the leader (and any synthetic followers) for group
// kinds that require one. Calling it on any other kind is a programmer error.
func (g *EventGroupConfigurer) CreateGroupLeader(sink AttrKeySink) error {
	switch g.identifier.Type {
	case GroupTypePerClusterCpu:
		return g.createCpuGroupLeader(sink)
	case GroupTypeUncorePmu:
		return g.createUncoreGroupLeader(sink)
	default:
		return fmt.Errorf("group %s does not take a leader", g.identifier)
	}
}

// createCpuGroupLeader picks the best available context-switch source as the
// group leader, in capability order: the sched_switch tracepoint, the
// software dummy counter with direct context-switch records, a sampling
// cpu-clock with context-switch records, the software context-switches
// counter, and finally a bare sampling cpu-clock.
func (g *EventGroupConfigurer) createCpuGroupLeader(sink AttrKeySink) error {
	config := g.config
	enableCallChain := config.BacktraceDepth > 0

	attr := Attr{
		SampleType: unix.PERF_SAMPLE_TID | unix.PERF_SAMPLE_READ,
		Mmap:       true,
		Comm:       true,
		Task:       true,
	}
	enableTaskClock := false

	// Do not use sched_switch in app tracing mode as it only triggers on
	// switch-out (even when tracing as root)
	if config.PerfConfig.CanAccessTracepoints && config.PerfConfig.IsSystemWide {
		// Use sched switch to drive the sampling so that event counts are
		// exactly attributed to each thread in system-wide mode
		if config.SchedSwitchID == UnknownTracepointID {
			slog.Debug("unable to read sched_switch id")
			return fmt.Errorf("unable to read sched_switch id")
		}
		attr.Type = unix.PERF_TYPE_TRACEPOINT
		attr.Config = uint64(config.SchedSwitchID)
		attr.PeriodOrFreq = 1
		// collect sched switch info from the tracepoint
		attr.SampleType |= unix.PERF_SAMPLE_RAW
	} else {
		attr.Type = unix.PERF_TYPE_SOFTWARE
		switch {
		case config.PerfConfig.HasAttrContextSwitch:
			// collect sched switch info directly from perf
			attr.ContextSwitch = true

			if config.PerfConfig.HasCountSwDummy {
				// use dummy as leader
				attr.Config = unix.PERF_COUNT_SW_DUMMY
				attr.PeriodOrFreq = 0
			} else {
				// otherwise use sampling as leader
				attr.Config = unix.PERF_COUNT_SW_CPU_CLOCK
				attr.PeriodOrFreq = 0
				if config.SampleRate > 0 && config.EnablePeriodicSampling {
					attr.PeriodOrFreq = nanoSecondsInOneSecond / uint64(config.SampleRate)
				}
				attr.SampleType |= unix.PERF_SAMPLE_TID | unix.PERF_SAMPLE_IP | unix.PERF_SAMPLE_READ
				if enableCallChain {
					attr.SampleType |= unix.PERF_SAMPLE_CALLCHAIN
				}
			}
		case !config.PerfConfig.ExcludeKernel:
			// use context switches as leader; this gives 'switch-out' events
			attr.Config = unix.PERF_COUNT_SW_CONTEXT_SWITCHES
			attr.PeriodOrFreq = 1
			attr.SampleType |= unix.PERF_SAMPLE_TID
			enableTaskClock = true
		default:
			// no context switches at all :-(
			attr.Config = unix.PERF_COUNT_SW_CPU_CLOCK
			attr.PeriodOrFreq = 0
			if config.SampleRate > 0 && config.EnablePeriodicSampling {
				attr.PeriodOrFreq = nanoSecondsInOneSecond / uint64(config.SampleRate)
			}
			attr.SampleType |= unix.PERF_SAMPLE_TID | unix.PERF_SAMPLE_IP | unix.PERF_SAMPLE_READ
			if enableCallChain {
				attr.SampleType |= unix.PERF_SAMPLE_CALLCHAIN
			}
		}
	}

	// Group leader
	if err := g.AddEvent(true, sink, config.SchedSwitchKey, attr, false); err != nil {
		return err
	}

	// Periodic PC sampling
	if attr.Config != unix.PERF_COUNT_SW_CPU_CLOCK && config.SampleRate > 0 && config.EnablePeriodicSampling {
		pcAttr := Attr{
			Type:         unix.PERF_TYPE_SOFTWARE,
			Config:       unix.PERF_COUNT_SW_CPU_CLOCK,
			PeriodOrFreq: nanoSecondsInOneSecond / uint64(config.SampleRate),
			SampleType:   unix.PERF_SAMPLE_TID | unix.PERF_SAMPLE_IP | unix.PERF_SAMPLE_READ,
		}
		if enableCallChain {
			pcAttr.SampleType |= unix.PERF_SAMPLE_CALLCHAIN
		}
		if err := g.AddEvent(false, sink, config.nextDummyKey(), pcAttr, false); err != nil {
			return err
		}
	}

	// use a high frequency task clock to attempt to catch the first switch
	// back to a process after a switch out; this gives approximate
	// 'switch-in' events
	if enableTaskClock {
		taskClockAttr := Attr{
			Type:         unix.PERF_TYPE_SOFTWARE,
			Config:       unix.PERF_COUNT_SW_TASK_CLOCK,
			PeriodOrFreq: 100000, // equivalent to 100us
			SampleType:   unix.PERF_SAMPLE_TID,
		}
		if err := g.AddEvent(false, sink, config.nextDummyKey(), taskClockAttr, false); err != nil {
			return err
		}
	}

	return nil
}

// createUncoreGroupLeader installs a timer leader so that the uncore
// counters are read periodically.
func (g *EventGroupConfigurer) createUncoreGroupLeader(sink AttrKeySink) error {
	attr := Attr{
		Type:       unix.PERF_TYPE_SOFTWARE,
		Config:     unix.PERF_COUNT_SW_CPU_CLOCK,
		SampleType: unix.PERF_SAMPLE_READ,
	}
	// Non-CPU PMUs are sampled every 100ms when no sample rate is configured,
	// otherwise they would never be sampled
	if g.config.SampleRate > 0 {
		attr.PeriodOrFreq = nanoSecondsInOneSecond / uint64(g.config.SampleRate)
	} else {
		attr.PeriodOrFreq = nanoSecondsIn100Ms
	}

	return g.AddEvent(true, sink, g.config.nextDummyKey(), attr, false)
}
