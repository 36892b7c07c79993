// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package perf

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func systemWideConfig() *ConfigurerConfig {
	return &ConfigurerConfig{
		PerfConfig: PerfConfig{
			IsSystemWide:          true,
			HasSampleIdentifier:   true,
			HasAttrClockIDSupport: true,
			HasAttrCommExec:       true,
			HasAttrContextSwitch:  true,
			HasCountSwDummy:       true,
			CanAccessTracepoints:  true,
		},
		Ringbuffer:      RingbufferConfig{DataBufferSize: 4 * 1024 * 1024, AuxBufferSize: 16 * 1024 * 1024},
		SampleRate:      1000,
		SchedSwitchID:   UnknownTracepointID,
		SchedSwitchKey:  1,
		DummyKeyCounter: -10,
	}
}

func appModeConfig() *ConfigurerConfig {
	config := systemWideConfig()
	config.PerfConfig.IsSystemWide = false
	return config
}

func TestCalculateAuxWatermark_Clamps(t *testing.T) {
	// 1 Hz sampling produces almost no data; clamp to the minimum
	assert.Equal(t, uint32(4096), calculateAuxWatermark(8*1024*1024, nanoSecondsInOneSecond))
	// 1 MHz sampling with a large buffer; clamp to the maximum
	assert.Equal(t, uint32(2*1024*1024), calculateAuxWatermark(64*1024*1024, 1000))
	// in between: 100 kHz -> 2.4 MB/s -> 240 KB per 1/10th second
	assert.Equal(t, uint32(2400000/10), calculateAuxWatermark(4*1024*1024, 10000))
	// a zero period must not divide by zero
	assert.Equal(t, uint32(2*1024*1024), calculateAuxWatermark(64*1024*1024, 0))
}

func TestCalculateAuxWatermark_Bounds(t *testing.T) {
	for _, mmapSize := range []uint64{8192, 64 * 1024, 1024 * 1024, 256 * 1024 * 1024} {
		for _, period := range []uint64{1, 100, 10000, 1000000, nanoSecondsInOneSecond} {
			watermark := uint64(calculateAuxWatermark(mmapSize, period))
			assert.GreaterOrEqual(t, watermark, uint64(minSpeWatermark))
			assert.LessOrEqual(t, watermark, uint64(maxSpeWatermark))
			assert.LessOrEqual(t, watermark, max(mmapSize/2, minSpeWatermark))
		}
	}
}

func TestShouldExcludeKernel(t *testing.T) {
	assert.False(t, shouldExcludeKernel(unix.PERF_TYPE_TRACEPOINT, 0, false))
	assert.True(t, shouldExcludeKernel(unix.PERF_TYPE_TRACEPOINT, 0, true))
	// the software context-switches counter is exempt
	assert.False(t, shouldExcludeKernel(unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_CONTEXT_SWITCHES, true))
	assert.True(t, shouldExcludeKernel(unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_CPU_CLOCK, true))
}

func TestInitEvent_InheritForbidsReadAndGroupFormat(t *testing.T) {
	config := appModeConfig()
	tracker := NewAttrsKeyTracker()
	group := NewEventGroupConfigurer(config, PerClusterCpuGroup(0))

	err := group.AddEvent(true, tracker, 7, Attr{
		Type:       unix.PERF_TYPE_SOFTWARE,
		Config:     unix.PERF_COUNT_SW_CPU_CLOCK,
		SampleType: unix.PERF_SAMPLE_TID | unix.PERF_SAMPLE_READ,
	}, false)
	require.NoError(t, err)

	attr := group.Events()[0].Attr
	assert.NotZero(t, attr.Bits&unix.PerfBitInherit)
	assert.NotZero(t, attr.Bits&unix.PerfBitInheritStat)
	assert.Zero(t, attr.Sample_type&unix.PERF_SAMPLE_READ)
	assert.Zero(t, attr.Read_format&unix.PERF_FORMAT_GROUP)
	assert.NotZero(t, attr.Read_format&unix.PERF_FORMAT_ID)
}

func TestInitEvent_SystemWideClearsInherit(t *testing.T) {
	config := systemWideConfig()
	tracker := NewAttrsKeyTracker()
	group := NewEventGroupConfigurer(config, PerClusterCpuGroup(0))

	err := group.AddEvent(true, tracker, 7, Attr{
		Type:       unix.PERF_TYPE_SOFTWARE,
		Config:     unix.PERF_COUNT_SW_CPU_CLOCK,
		SampleType: unix.PERF_SAMPLE_READ,
	}, false)
	require.NoError(t, err)

	attr := group.Events()[0].Attr
	assert.Zero(t, attr.Bits&unix.PerfBitInherit)
	assert.NotZero(t, attr.Sample_type&unix.PERF_SAMPLE_READ)
	// leader of a real group reads its members
	assert.NotZero(t, attr.Read_format&unix.PERF_FORMAT_GROUP)
}

func TestInitEvent_CommonPolicy(t *testing.T) {
	config := systemWideConfig()
	tracker := NewAttrsKeyTracker()
	group := NewEventGroupConfigurer(config, PerClusterCpuGroup(0))

	err := group.AddEvent(true, tracker, 7, Attr{
		Type:   unix.PERF_TYPE_SOFTWARE,
		Config: unix.PERF_COUNT_SW_CPU_CLOCK,
		Mmap:   true,
		Comm:   true,
		Task:   true,
	}, false)
	require.NoError(t, err)

	attr := group.Events()[0].Attr
	assert.Equal(t, uint32(attrRecordSize()), attr.Size)
	assert.NotZero(t, attr.Sample_type&unix.PERF_SAMPLE_TIME)
	assert.NotZero(t, attr.Sample_type&unix.PERF_SAMPLE_IDENTIFIER)
	assert.NotZero(t, attr.Bits&unix.PerfBitWatermark)
	assert.NotZero(t, attr.Bits&unix.PerfBitSampleIDAll)
	assert.NotZero(t, attr.Bits&unix.PerfBitMmap)
	assert.NotZero(t, attr.Bits&unix.PerfBitComm)
	assert.NotZero(t, attr.Bits&unix.PerfBitCommExec)
	assert.NotZero(t, attr.Bits&unix.PerfBitTask)
	assert.NotZero(t, attr.Bits&unix.PerfBitUseClockID)
	assert.Equal(t, int32(unix.CLOCK_MONOTONIC_RAW), attr.Clockid)
	assert.Equal(t, uint32(config.Ringbuffer.DataBufferSize/2), attr.Wakeup)
	assert.Zero(t, attr.Aux_watermark)
}

func TestInitEvent_NoSampleIdentifierFallback(t *testing.T) {
	config := systemWideConfig()
	config.PerfConfig.HasSampleIdentifier = false
	tracker := NewAttrsKeyTracker()
	group := NewEventGroupConfigurer(config, PerClusterCpuGroup(0))

	err := group.AddEvent(true, tracker, 7, Attr{
		Type:   unix.PERF_TYPE_SOFTWARE,
		Config: unix.PERF_COUNT_SW_CPU_CLOCK,
	}, false)
	require.NoError(t, err)

	attr := group.Events()[0].Attr
	assert.Zero(t, attr.Sample_type&unix.PERF_SAMPLE_IDENTIFIER)
	assert.NotZero(t, attr.Sample_type&unix.PERF_SAMPLE_TID)
	assert.NotZero(t, attr.Sample_type&unix.PERF_SAMPLE_IP)
	assert.NotZero(t, attr.Sample_type&unix.PERF_SAMPLE_ID)
}

func TestInitEvent_CallChainRegisters(t *testing.T) {
	config := systemWideConfig()
	config.PerfConfig.Use64BitRegisterSet = true
	tracker := NewAttrsKeyTracker()
	group := NewEventGroupConfigurer(config, PerClusterCpuGroup(0))

	err := group.AddEvent(true, tracker, 7, Attr{
		Type:       unix.PERF_TYPE_SOFTWARE,
		Config:     unix.PERF_COUNT_SW_CPU_CLOCK,
		SampleType: unix.PERF_SAMPLE_CALLCHAIN,
	}, false)
	require.NoError(t, err)

	attr := group.Events()[0].Attr
	assert.NotZero(t, attr.Sample_type&unix.PERF_SAMPLE_REGS_USER)
	assert.Equal(t, uint64(0x1ffffffff), attr.Sample_regs_user)

	config.PerfConfig.Use64BitRegisterSet = false
	group = NewEventGroupConfigurer(config, PerClusterCpuGroup(0))
	require.NoError(t, group.AddEvent(true, tracker, 8, Attr{
		Type:       unix.PERF_TYPE_SOFTWARE,
		Config:     unix.PERF_COUNT_SW_CPU_CLOCK,
		SampleType: unix.PERF_SAMPLE_CALLCHAIN,
	}, false))
	assert.Equal(t, uint64(0xffff), group.Events()[0].Attr.Sample_regs_user)
}

func TestInitEvent_ExcludeKernel(t *testing.T) {
	config := systemWideConfig()
	config.ExcludeKernelEvents = true
	config.PerfConfig.HasExcludeCallchainKernel = true
	tracker := NewAttrsKeyTracker()
	group := NewEventGroupConfigurer(config, PerClusterCpuGroup(0))

	require.NoError(t, group.AddEvent(true, tracker, 7, Attr{
		Type:   unix.PERF_TYPE_SOFTWARE,
		Config: unix.PERF_COUNT_SW_CPU_CLOCK,
	}, false))
	attr := group.Events()[0].Attr
	assert.NotZero(t, attr.Bits&unix.PerfBitExcludeKernel)
	assert.NotZero(t, attr.Bits&unix.PerfBitExcludeHv)
	assert.NotZero(t, attr.Bits&unix.PerfBitExcludeIdle)
	assert.NotZero(t, attr.Bits&unix.PerfBitExcludeCallchainKernel)

	// the context-switches counter stays unfiltered
	group = NewEventGroupConfigurer(config, PerClusterCpuGroup(0))
	require.NoError(t, group.AddEvent(true, tracker, 8, Attr{
		Type:   unix.PERF_TYPE_SOFTWARE,
		Config: unix.PERF_COUNT_SW_CONTEXT_SWITCHES,
	}, false))
	attr = group.Events()[0].Attr
	assert.Zero(t, attr.Bits&unix.PerfBitExcludeKernel)
	assert.NotZero(t, attr.Bits&unix.PerfBitExcludeCallchainKernel)
}

func TestInitEvent_SpeForcesContextSwitch(t *testing.T) {
	config := systemWideConfig()
	tracker := NewAttrsKeyTracker()
	group := NewEventGroupConfigurer(config, SpeGroup(2))

	err := group.AddEvent(true, tracker, 9, Attr{Type: 12, Config: 0x1}, true)
	require.NoError(t, err)

	attr := group.Events()[0].Attr
	assert.NotZero(t, attr.Bits&unix.PerfBitContextSwitch)
	assert.NotZero(t, attr.Aux_watermark)
}

func TestInitEvent_SpeWithoutContextSwitchFails(t *testing.T) {
	config := systemWideConfig()
	config.PerfConfig.HasAttrContextSwitch = false
	tracker := NewAttrsKeyTracker()
	group := NewEventGroupConfigurer(config, SpeGroup(2))

	err := group.AddEvent(true, tracker, 9, Attr{Type: 12, Config: 0x1}, true)
	assert.Error(t, err)
	assert.Empty(t, group.Events())
	assert.Zero(t, tracker.Len())
}

func attrRecordSize() int {
	return int(unsafe.Sizeof(unix.PerfEventAttr{}))
}
