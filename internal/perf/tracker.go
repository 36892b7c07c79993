// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package perf

import (
	"golang.org/x/sys/unix"
)

// AttrKeySink receives the mapping from caller-supplied key to the attribute
// record actually programmed, as each event is configured.
type AttrKeySink interface {
	MapKeyToAttr(key int, attr *unix.PerfEventAttr)
}

// KeyMapping is one recorded key→attribute pair.
type KeyMapping struct {
	Key  int
	Attr unix.PerfEventAttr
}

// AttrsKeyTracker records every key→attribute mapping in configuration
// order. Caller keys are preserved verbatim; synthetic follower keys are
// negative and so never collide with them.
type AttrsKeyTracker struct {
	mappings []KeyMapping
	byKey    map[int]int
}

// NewAttrsKeyTracker returns an empty tracker.
func NewAttrsKeyTracker() *AttrsKeyTracker {
	return &AttrsKeyTracker{byKey: make(map[int]int)}
}

// MapKeyToAttr records the pair; the attribute is copied so later mutation
// by the configurer cannot alter the record.
func (t *AttrsKeyTracker) MapKeyToAttr(key int, attr *unix.PerfEventAttr) {
	t.byKey[key] = len(t.mappings)
	t.mappings = append(t.mappings, KeyMapping{Key: key, Attr: *attr})
}

// Attr returns the attribute recorded for key.
func (t *AttrsKeyTracker) Attr(key int) (attr unix.PerfEventAttr, ok bool) {
	index, ok := t.byKey[key]
	if !ok {
		return
	}
	attr = t.mappings[index].Attr
	return
}

// Mappings returns all recorded pairs in configuration order.
func (t *AttrsKeyTracker) Mappings() []KeyMapping {
	return t.mappings
}

// Len returns the number of recorded pairs.
func (t *AttrsKeyTracker) Len() int {
	return len(t.mappings)
}
