// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package cpuid

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/RufUsul/gator/internal/util"
)

// /proc/cpuinfo keys of interest. Matching is by prefix, the way the kernel
// emits them.
const (
	keyHardware       = "Hardware"
	keyCPUImplementer = "CPU implementer"
	keyCPUPart        = "CPU part"
	keyProcessor      = "processor"
)

const unknownProcessor = -1

func setImplementer(id *ID, implementer int64) {
	if *id == UnknownID {
		*id = 0
	}
	*id |= ID(implementer << 12)
}

func setPart(id *ID, part int64) {
	if *id == UnknownID {
		*id = 0
	}
	*id |= ID(part)
}

// parseProcCpuInfo fills gaps in ids from the textual CPU description at
// path, and returns the hardware name if one is present. Sections are
// separated by blank lines; a section's "processor:" line binds the
// subsequent "CPU implementer:" and "CPU part:" lines to that logical CPU.
//
// Pre-Linux-3.8 kernels emit the implementer/part pair once, with no
// per-section processor binding. Values seen without a preceding processor
// line are held aside and, at end of file, applied to the observed processor
// range for any CPU still unknown.
//
// When justGetHardwareName is set, parsing stops as soon as the hardware
// name is found.
//
// I/O and format problems yield an empty hardware name and a debug log; the
// only error is a processor index at or beyond len(ids), which indicates the
// startup core count is wrong and is fatal.
func parseProcCpuInfo(path string, justGetHardwareName bool, ids []ID) (hardwareName string, err error) {
	f, err := os.Open(path)
	if err != nil {
		slog.Debug("error opening cpuinfo, the core name will be 'unknown'",
			slog.String("path", path), slog.String("error", err.Error()))
		err = nil
		return
	}
	defer f.Close()

	foundCoreName := false
	processor := unknownProcessor
	minProcessor := len(ids)
	maxProcessor := 0
	foundProcessorInSection := false
	outOfPlaceID := UnknownID
	invalidFormat := false

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		slog.Debug("cpuinfo", slog.String("line", line))

		if strings.TrimSpace(line) == "" {
			// New section, clear the processor binding.
			processor = unknownProcessor
			foundProcessorInSection = false
			continue
		}

		foundHardware := !foundCoreName && strings.HasPrefix(line, keyHardware)
		foundImplementer := strings.HasPrefix(line, keyCPUImplementer)
		foundPart := strings.HasPrefix(line, keyCPUPart)
		foundProcessor := strings.HasPrefix(line, keyProcessor)
		if !foundHardware && !foundImplementer && !foundPart && !foundProcessor {
			continue
		}

		colon := strings.Index(line, ":")
		if colon < 0 || colon+2 >= len(line) {
			slog.Debug("unknown format of cpuinfo, the core name will be 'unknown'")
			hardwareName = ""
			return
		}
		value := line[colon+2:]

		if foundHardware {
			hardwareName = value
			if justGetHardwareName {
				return
			}
			foundCoreName = true
		}

		if foundImplementer {
			if implementer, parseErr := util.ParseInt(value); parseErr == nil {
				if processor != unknownProcessor {
					setImplementer(&ids[processor], implementer)
				} else {
					setImplementer(&outOfPlaceID, implementer)
					invalidFormat = true
				}
			}
		}

		if foundPart {
			if part, parseErr := util.ParseInt(value); parseErr == nil {
				if processor != unknownProcessor {
					setPart(&ids[processor], part)
				} else {
					setPart(&outOfPlaceID, part)
					invalidFormat = true
				}
			}
		}

		if foundProcessor {
			processorID, parseErr := util.ParseInt(value)
			converted := parseErr == nil

			if converted {
				minProcessor = min(minProcessor, int(processorID))
				maxProcessor = max(maxProcessor, int(processorID))
			}

			if foundProcessorInSection {
				// A second processor line in one section invalidates the
				// whole section.
				processor = unknownProcessor
				invalidFormat = true
			} else if converted {
				processor = int(processorID)
				if processor >= len(ids) {
					err = fmt.Errorf("found processor %d but max is %d", processor, len(ids))
					return
				}
				foundProcessorInSection = true
			}
		}
	}
	if scanErr := scanner.Err(); scanErr != nil {
		slog.Debug("error reading cpuinfo", slog.String("error", scanErr.Error()))
		hardwareName = ""
		return
	}

	if invalidFormat && outOfPlaceID != UnknownID && minProcessor <= maxProcessor {
		minProcessor = max(minProcessor, 0)
		limit := min(maxProcessor+1, len(ids))
		for p := minProcessor; p < limit; p++ {
			if ids[p] == UnknownID {
				slog.Debug("setting global CPUID from out-of-place cpuinfo values",
					slog.Int("cpu", p), slog.String("cpuid", fmt.Sprintf("0x%05x", int(outOfPlaceID))))
				ids[p] = outOfPlaceID
			}
		}
	}

	if !foundCoreName {
		slog.Debug("could not determine core name from cpuinfo, the core name will be 'unknown'")
	}
	return
}
