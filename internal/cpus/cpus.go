// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// Package cpus provides CPU definitions and lookup utilities for Arm core
// identification, mapping the implementer/part pair read from MIDR (or
// /proc/cpuinfo) to the marketing name of the core.
package cpus

import (
	"fmt"
)

// Implementer codes from the upper byte of MIDR.
const (
	ImplementerArm      = 0x41
	ImplementerBroadcom = 0x42
	ImplementerCavium   = 0x43
	ImplementerAmpere   = 0xc0
	ImplementerQualcomm = 0x51
)

type CPUCharacteristics struct {
	CoreName    string
	Implementer int
	Part        int
}

// cpuIdentifiers maps the 20-bit cpu id ((implementer << 12) | part) to core
// characteristics. The part values are the lower 12 bits of the MIDR part
// number field.
var cpuIdentifiers = map[int]CPUCharacteristics{
	// Arm Cortex-A
	0x41d03: {CoreName: "Cortex-A53", Implementer: ImplementerArm, Part: 0xd03},
	0x41d04: {CoreName: "Cortex-A35", Implementer: ImplementerArm, Part: 0xd04},
	0x41d05: {CoreName: "Cortex-A55", Implementer: ImplementerArm, Part: 0xd05},
	0x41d07: {CoreName: "Cortex-A57", Implementer: ImplementerArm, Part: 0xd07},
	0x41d08: {CoreName: "Cortex-A72", Implementer: ImplementerArm, Part: 0xd08},
	0x41d09: {CoreName: "Cortex-A73", Implementer: ImplementerArm, Part: 0xd09},
	0x41d0a: {CoreName: "Cortex-A75", Implementer: ImplementerArm, Part: 0xd0a},
	0x41d0b: {CoreName: "Cortex-A76", Implementer: ImplementerArm, Part: 0xd0b},
	0x41d0d: {CoreName: "Cortex-A77", Implementer: ImplementerArm, Part: 0xd0d},
	0x41d41: {CoreName: "Cortex-A78", Implementer: ImplementerArm, Part: 0xd41},
	0x41d44: {CoreName: "Cortex-X1", Implementer: ImplementerArm, Part: 0xd44},
	0x41d46: {CoreName: "Cortex-A510", Implementer: ImplementerArm, Part: 0xd46},
	0x41d47: {CoreName: "Cortex-A710", Implementer: ImplementerArm, Part: 0xd47},
	0x41d48: {CoreName: "Cortex-X2", Implementer: ImplementerArm, Part: 0xd48},
	0x41d4d: {CoreName: "Cortex-A715", Implementer: ImplementerArm, Part: 0xd4d},
	0x41d4e: {CoreName: "Cortex-X3", Implementer: ImplementerArm, Part: 0xd4e},
	// Arm Neoverse
	0x41d0c: {CoreName: "Neoverse-N1", Implementer: ImplementerArm, Part: 0xd0c},
	0x41d40: {CoreName: "Neoverse-V1", Implementer: ImplementerArm, Part: 0xd40},
	0x41d49: {CoreName: "Neoverse-N2", Implementer: ImplementerArm, Part: 0xd49},
	0x41d4f: {CoreName: "Neoverse-V2", Implementer: ImplementerArm, Part: 0xd4f},
	// Ampere
	0xc0ac3: {CoreName: "AmpereOne AC03", Implementer: ImplementerAmpere, Part: 0xac3},
	0xc0ac4: {CoreName: "AmpereOne AC04", Implementer: ImplementerAmpere, Part: 0xac4},
	// Cavium/Marvell
	0x430a1: {CoreName: "ThunderX 88XX", Implementer: ImplementerCavium, Part: 0x0a1},
	0x430af: {CoreName: "ThunderX2 99XX", Implementer: ImplementerCavium, Part: 0x0af},
}

// GetCPU retrieves the characteristics of the core with the given 20-bit
// cpu id. An error is returned for ids with no table entry.
func GetCPU(cpuID int) (cpu CPUCharacteristics, err error) {
	cpu, ok := cpuIdentifiers[cpuID]
	if !ok {
		err = fmt.Errorf("CPU match not found for cpu id 0x%05x", cpuID)
		return
	}
	return
}

// CoreName returns the core name for the given cpu id, or "Unknown" when the
// id has no table entry or is the unknown sentinel.
func CoreName(cpuID int) string {
	cpu, err := GetCPU(cpuID)
	if err != nil {
		return "Unknown"
	}
	return cpu.CoreName
}
