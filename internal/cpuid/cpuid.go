// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// Package cpuid discovers the CPU topology of the target and produces a
// per-core identity vector. Identities are read from each core's MIDR_EL1
// register via sysfs where possible, with gaps filled from cluster
// membership and, as a last resort, from /proc/cpuinfo.
package cpuid

// ID is the 20-bit identity of a core, composed as (implementer << 12) | part.
type ID int

// UnknownID marks a core whose identity could not be determined.
const UnknownID ID = -1

// MakeID builds the 20-bit cpu id from the raw MIDR_EL1 value: the
// implementer field occupies bits [31:24] and the part number bits [15:4].
func MakeID(midr uint64) ID {
	return ID(((midr & 0xff000000) >> 12) | ((midr & 0xfff0) >> 4))
}

// Implementer returns the implementer code encoded in the id.
func (id ID) Implementer() int {
	return int(id) >> 12
}

// Part returns the part number encoded in the id.
func (id ID) Part() int {
	return int(id) & 0xfff
}

// NewIDVector allocates an identity vector of the given length with every
// entry set to UnknownID.
func NewIDVector(length int) []ID {
	ids := make([]ID, length)
	for i := range ids {
		ids[i] = UnknownID
	}
	return ids
}
