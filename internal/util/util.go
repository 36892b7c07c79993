/*
Package util includes utility/helper functions that may be useful to other modules.
*/
package util

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

// FileExists checks if a file exists at the given path.
// It returns a boolean indicating whether the file exists, and an error if the
// path refers to a non-regular file, e.g., a directory.
func FileExists(path string) (exists bool, err error) {
	var fileInfo fs.FileInfo
	fileInfo, err = os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			exists = false
			err = nil
			return
		}
		return
	}
	if !fileInfo.Mode().IsRegular() {
		err = fmt.Errorf("%s not a file", path)
		return
	}
	exists = true
	return
}

// ParseInt parses a decimal, hexadecimal (0x prefix), or octal (0 prefix)
// integer from s, ignoring surrounding white space. Kernel pseudofiles mix
// radixes, e.g., "CPU implementer\t: 0x41" vs. "processor\t: 2".
func ParseInt(s string) (value int64, err error) {
	return strconv.ParseInt(strings.TrimSpace(s), 0, 64)
}

// ParseUint is the unsigned counterpart of ParseInt, used for register values
// such as the contents of midr_el1.
func ParseUint(s string) (value uint64, err error) {
	return strconv.ParseUint(strings.TrimSpace(s), 0, 64)
}

// IntFromFile reads a single integer from the file at path, e.g., a sysfs
// attribute like topology/physical_package_id.
func IntFromFile(path string) (value int64, err error) {
	var raw []byte
	if raw, err = os.ReadFile(path); err != nil {
		return
	}
	return ParseInt(string(raw))
}

// UintFromFile reads a single unsigned integer from the file at path, e.g.,
// the hexadecimal contents of regs/identification/midr_el1.
func UintFromFile(path string) (value uint64, err error) {
	var raw []byte
	if raw, err = os.ReadFile(path); err != nil {
		return
	}
	return ParseUint(string(raw))
}

// ReadFileString reads the file at path and returns its contents as a string.
func ReadFileString(path string) (contents string, err error) {
	var raw []byte
	if raw, err = os.ReadFile(path); err != nil {
		return
	}
	contents = string(raw)
	return
}

// ParseCPUList expands a kernel cpu list, e.g., "0-3,5,7-8", into the
// individual cpu numbers. This is the format of sysfs files like
// topology/core_siblings_list. An empty (or all white space) list yields an
// empty slice.
func ParseCPUList(list string) (cpus []int, err error) {
	trimmed := strings.TrimSpace(list)
	if trimmed == "" {
		return
	}
	for item := range strings.SplitSeq(trimmed, ",") {
		first, last, found := strings.Cut(item, "-")
		var start, end int64
		if start, err = ParseInt(first); err != nil {
			err = fmt.Errorf("failed to parse cpu list %q: %v", list, err)
			return
		}
		end = start
		if found {
			if end, err = ParseInt(last); err != nil {
				err = fmt.Errorf("failed to parse cpu list %q: %v", list, err)
				return
			}
		}
		if end < start {
			err = fmt.Errorf("failed to parse cpu list %q: range %s is reversed", list, item)
			return
		}
		for cpu := start; cpu <= end; cpu++ {
			cpus = append(cpus, int(cpu))
		}
	}
	return
}
