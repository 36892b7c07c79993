// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package perf

import (
	"bytes"
	"log/slog"

	"golang.org/x/sys/unix"
)

// Record codes of the attributes frame, as expected by the host-side
// analyser.
type attrsCode int32

const (
	codePea attrsCode = iota + 1
	codeKeys
	codeFormat
	codeMaps
	codeComm
	codeKeysOld
	codeOnlineCPU
	codeOfflineCPU
	codeKallsyms
	codeCounters
	codeHeaderPage
	codeHeaderEvent
)

// Packed-integer worst-case sizes, for record-size accounting.
const (
	maxSizePack32 = 5
	maxSizePack64 = 10
)

const defaultMaxFrameSize = 1024 * 1024

// AttrsFrameBuilder marshals attribute records, key mappings and process
// bookkeeping into the attributes frame consumed by the host-side analyser.
// Integers are packed as sign-extended LEB128; strings are null terminated;
// attribute records are written as their raw kernel-layout bytes.
//
// The builder implements AttrKeySink so a configurer can mirror every
// programmed attribute straight into the frame.
type AttrsFrameBuilder struct {
	buf          bytes.Buffer
	maxFrameSize int
}

var _ AttrKeySink = (*AttrsFrameBuilder)(nil)

// NewAttrsFrameBuilder returns an empty builder. maxFrameSize bounds single
// oversized blob records (maps, kallsyms); 0 selects the default.
func NewAttrsFrameBuilder(maxFrameSize int) *AttrsFrameBuilder {
	if maxFrameSize <= 0 {
		maxFrameSize = defaultMaxFrameSize
	}
	return &AttrsFrameBuilder{maxFrameSize: maxFrameSize}
}

// Bytes returns the frame contents marshalled so far.
func (b *AttrsFrameBuilder) Bytes() []byte {
	return b.buf.Bytes()
}

// Len returns the marshalled length in bytes.
func (b *AttrsFrameBuilder) Len() int {
	return b.buf.Len()
}

// Reset discards the frame contents.
func (b *AttrsFrameBuilder) Reset() {
	b.buf.Reset()
}

// packInt64 appends v as sign-extended LEB128.
func (b *AttrsFrameBuilder) packInt64(v int64) {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			b.buf.WriteByte(c)
			return
		}
		b.buf.WriteByte(c | 0x80)
	}
}

func (b *AttrsFrameBuilder) packInt(v int32) {
	b.packInt64(int64(v))
}

func (b *AttrsFrameBuilder) writeString(s string) {
	b.buf.WriteString(s)
	b.buf.WriteByte(0)
}

// MapKeyToAttr mirrors a programmed attribute into the frame.
func (b *AttrsFrameBuilder) MapKeyToAttr(key int, attr *unix.PerfEventAttr) {
	b.MarshalPea(attr, key)
}

// MarshalPea writes one attribute record and its key.
func (b *AttrsFrameBuilder) MarshalPea(attr *unix.PerfEventAttr, key int) {
	b.packInt(int32(codePea))
	b.buf.Write(AttrBytes(attr))
	b.packInt(int32(key))
}

// MarshalKeys writes the perf id → key mapping pairs.
func (b *AttrsFrameBuilder) MarshalKeys(ids []uint64, keys []int) {
	b.packInt(int32(codeKeys))
	b.packInt(int32(len(ids)))
	for i, id := range ids {
		b.packInt64(int64(id))
		b.packInt(int32(keys[i]))
	}
}

// MarshalComm writes one process command-name record.
func (b *AttrsFrameBuilder) MarshalComm(pid int, tid int, image string, comm string) {
	b.packInt(int32(codeComm))
	b.packInt(int32(pid))
	b.packInt(int32(tid))
	b.writeString(image)
	b.writeString(comm)
}

// MarshalMaps writes one process memory-map blob. Maps files too large for a
// frame are dropped.
func (b *AttrsFrameBuilder) MarshalMaps(pid int, tid int, maps string) {
	requiredLen := 3*maxSizePack32 + len(maps) + 1
	if requiredLen > b.maxFrameSize {
		slog.Warn("proc maps file too large for buffer, ignoring",
			slog.Int("required", requiredLen), slog.Int("max", b.maxFrameSize))
		return
	}
	b.packInt(int32(codeMaps))
	b.packInt(int32(pid))
	b.packInt(int32(tid))
	b.writeString(maps)
}

// MarshalKallsyms writes the kernel symbol table blob. Tables too large for
// a frame are dropped.
func (b *AttrsFrameBuilder) MarshalKallsyms(kallsyms string) {
	requiredLen := 3*maxSizePack32 + len(kallsyms) + 1
	if requiredLen > b.maxFrameSize {
		slog.Warn("kallsyms file too large for buffer, ignoring",
			slog.Int("required", requiredLen), slog.Int("max", b.maxFrameSize))
		return
	}
	b.packInt(int32(codeKallsyms))
	b.writeString(kallsyms)
}

// OnlineCPU records that cpu came online at time.
func (b *AttrsFrameBuilder) OnlineCPU(time uint64, cpu int) {
	b.packInt(int32(codeOnlineCPU))
	b.packInt64(int64(time))
	b.packInt(int32(cpu))
}

// OfflineCPU records that cpu went offline at time.
func (b *AttrsFrameBuilder) OfflineCPU(time uint64, cpu int) {
	b.packInt(int32(codeOfflineCPU))
	b.packInt64(int64(time))
	b.packInt(int32(cpu))
}

// PerfCounterHeader starts a counter-values record at time. It is followed
// by PerfCounter triples and closed by PerfCounterFooter.
func (b *AttrsFrameBuilder) PerfCounterHeader(time uint64) {
	b.packInt(int32(codeCounters))
	b.packInt64(int64(time))
}

// PerfCounter writes one (core, key, value) triple.
func (b *AttrsFrameBuilder) PerfCounter(core int, key int, value int64) {
	b.packInt(int32(core))
	b.packInt(int32(key))
	b.packInt64(value)
}

// PerfCounterFooter terminates the counter-values record with the core
// sentinel.
func (b *AttrsFrameBuilder) PerfCounterFooter() {
	b.packInt(-1)
}
