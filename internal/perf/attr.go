// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package perf

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	nanoSecondsInOneSecond = 1000000000
	nanoSecondsIn100Ms     = 100000000
	maxSpeWatermark        = 2048 * 1024
	minSpeWatermark        = 4096
)

// The arm and arm64 builds both carry the register-unwinding support the
// sample_regs_user masks below describe.
const supportsRegisterUnwinding = true

// Attr is the logical description of a counter, before kernel policy flags
// are applied.
type Attr struct {
	Type          uint32
	Config        uint64
	Config1       uint64
	Config2       uint64
	PeriodOrFreq  uint64
	SampleType    uint64
	Mmap          bool
	Comm          bool
	Freq          bool
	Task          bool
	ContextSwitch bool
}

// Event is one fully configured counter within a group. The first event of a
// group requiring a leader is the leader.
type Event struct {
	Attr unix.PerfEventAttr
	Key  int
}

// AttrBytes returns the raw kernel-layout bytes of the attribute record, as
// written to the attributes buffer and passed to perf_event_open. The record
// length is the attribute's Size field.
func AttrBytes(attr *unix.PerfEventAttr) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(attr)), int(attr.Size))
}

// calculateAuxWatermark adjusts the aux ring wake watermark to the sample
// period so that data is collected roughly every 1/10th of a second, within
// sensible limits with respect to processing cost on the analyser side.
func calculateAuxWatermark(mmapSize uint64, period uint64) uint32 {
	const fractionOfSecond = 10

	if period == 0 {
		period = 1
	}
	frequency := max(nanoSecondsInOneSecond/period, 1)
	bps := 24 * frequency // assume an average of 24 bytes per sample

	// wake up after ~(1/fraction) seconds worth of data, or 50% of the buffer
	prefWatermark := min(mmapSize/2, bps/fractionOfSecond)

	return uint32(max(min(prefWatermark, maxSpeWatermark), minSpeWatermark))
}

// shouldExcludeKernel decodes whether to set exclude_kernel (et al). The
// software context-switches counter is exempt as it would otherwise never
// count.
func shouldExcludeKernel(eventType uint32, config uint64, excludeRequested bool) bool {
	if !excludeRequested {
		return false
	}
	if eventType == unix.PERF_TYPE_SOFTWARE {
		return config != unix.PERF_COUNT_SW_CONTEXT_SWITCHES
	}
	return true
}

// initEvent populates event's kernel attribute record from the logical
// description attr and the group/leader policy, and reports the key→attribute
// mapping to sink.
func initEvent(config *ConfigurerConfig, event *Event, isHeader bool, requiresLeader bool,
	groupType GroupType, leader bool, sink AttrKeySink, key int, attr Attr, hasAuxData bool) error {

	event.Attr = unix.PerfEventAttr{}
	event.Attr.Size = uint32(unsafe.Sizeof(event.Attr))

	// PERF_SAMPLE_READ is not allowed with inherit, which is set whenever we
	// are not system wide
	var sampleReadMask uint64
	if !config.PerfConfig.IsSystemWide {
		sampleReadMask = unix.PERF_SAMPLE_READ
	}
	sampleType := uint64(unix.PERF_SAMPLE_TIME) | (attr.SampleType &^ sampleReadMask)
	// required fields for reading 'id'
	if config.PerfConfig.HasSampleIdentifier {
		sampleType |= unix.PERF_SAMPLE_IDENTIFIER
	} else {
		sampleType |= unix.PERF_SAMPLE_TID | unix.PERF_SAMPLE_IP | unix.PERF_SAMPLE_ID
	}
	// see https://lkml.org/lkml/2012/7/18/355
	if attr.Type == unix.PERF_TYPE_TRACEPOINT {
		sampleType |= unix.PERF_SAMPLE_PERIOD
	}
	// always sample TID in application mode; it attributes counter values to
	// their processes
	if !config.PerfConfig.IsSystemWide || attr.ContextSwitch {
		sampleType |= unix.PERF_SAMPLE_TID
	}
	// PERIOD must be sampled with 'freq' to read the actual period value
	if attr.Freq {
		sampleType |= unix.PERF_SAMPLE_PERIOD
	}
	// collect the user mode registers if sampling the callchain
	if supportsRegisterUnwinding && sampleType&unix.PERF_SAMPLE_CALLCHAIN != 0 {
		sampleType |= unix.PERF_SAMPLE_REGS_USER
		if config.PerfConfig.Use64BitRegisterSet {
			// arm64 perf_regs: bits 0-32 are set (PC = 2^32)
			event.Attr.Sample_regs_user = 0x1ffffffff
		} else {
			// arm perf_regs: bits 0-15 are set
			event.Attr.Sample_regs_user = 0xffff
		}
	}
	event.Attr.Sample_type = sampleType

	// make sure all new children are counted too; in system wide mode inherit
	// must always be clear
	useInherit := !(config.PerfConfig.IsSystemWide || isHeader)
	// group doesn't require a leader (so all events are stand alone)
	everyAttributeInOwnGroup := useInherit || !requiresLeader || isHeader
	// PERF_FORMAT_GROUP is not allowed with inherit; only the leader of a
	// real group reads its members
	useReadFormatGroup := leader && !useInherit && !everyAttributeInOwnGroup && !isHeader

	excludeKernel := shouldExcludeKernel(attr.Type, attr.Config, config.ExcludeKernelEvents)

	event.Attr.Read_format = unix.PERF_FORMAT_ID
	if useReadFormatGroup {
		event.Attr.Read_format |= unix.PERF_FORMAT_GROUP
	}

	var bits uint64
	if useInherit {
		bits |= unix.PerfBitInherit | unix.PerfBitInheritStat
	}
	// Only a perf_event_open group leader can be pinned; if the group has no
	// leader then all members are their own leader. The group leader starts
	// disabled and gates its followers, which start enabled.
	if leader || everyAttributeInOwnGroup || isHeader {
		bits |= unix.PerfBitPinned | unix.PerfBitDisabled
	}
	// have a sampling interrupt happen when crossing the wakeup_watermark
	bits |= unix.PerfBitWatermark
	// sample_id_all is required for any non-grouped event; for grouped events
	// it is ignored for anything but the leader
	bits |= unix.PerfBitSampleIDAll
	if attr.Mmap {
		bits |= unix.PerfBitMmap
	}
	if attr.Comm {
		bits |= unix.PerfBitComm
		if config.PerfConfig.HasAttrCommExec {
			bits |= unix.PerfBitCommExec
		}
	}
	if attr.Freq {
		bits |= unix.PerfBitFreq
	}
	if attr.Task {
		bits |= unix.PerfBitTask
	}
	// use the monotonic raw clock if possible
	if config.PerfConfig.HasAttrClockIDSupport {
		bits |= unix.PerfBitUseClockID
		event.Attr.Clockid = unix.CLOCK_MONOTONIC_RAW
	}

	contextSwitch := attr.ContextSwitch
	// Context switch information is required for SPE attributes (particularly
	// in system-wide mode) to delimit the aux data of adjacent processes, as
	// PERF_RECORD_ITRACE_START is not guaranteed between two processes
	// sampled by the same SPE attribute.
	if groupType == GroupTypeSpe {
		if !config.PerfConfig.HasAttrContextSwitch {
			return fmt.Errorf("SPE requires context switch information")
		}
		contextSwitch = true
	}
	if contextSwitch {
		bits |= unix.PerfBitContextSwitch
	}

	if excludeKernel {
		bits |= unix.PerfBitExcludeKernel | unix.PerfBitExcludeHv | unix.PerfBitExcludeIdle
	}
	if config.ExcludeKernelEvents && config.PerfConfig.HasExcludeCallchainKernel {
		bits |= unix.PerfBitExcludeCallchainKernel
	}
	event.Attr.Bits = bits

	event.Attr.Type = attr.Type
	event.Attr.Config = attr.Config
	event.Attr.Ext1 = attr.Config1
	event.Attr.Ext2 = attr.Config2
	event.Attr.Sample = attr.PeriodOrFreq
	// be conservative in flush size as only one buffer set is monitored
	event.Attr.Wakeup = uint32(config.Ringbuffer.DataBufferSize / 2)
	if hasAuxData {
		event.Attr.Aux_watermark = calculateAuxWatermark(config.Ringbuffer.AuxBufferSize, event.Attr.Sample)
	}
	event.Key = key

	// track the mapping from key->attr
	sink.MapKeyToAttr(key, &event.Attr)

	return nil
}
