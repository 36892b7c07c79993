// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package perf

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/pkg/errors"

	"github.com/RufUsul/gator/internal/util"
)

// TracepointID reads the id of the named tracepoint from tracefs, e.g.,
// TracepointID(dir, "sched", "sched_switch").
func TracepointID(tracingDir string, subsystem string, name string) (id int64, err error) {
	path := fmt.Sprintf("%s/events/%s/%s/id", tracingDir, subsystem, name)
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.Wrap(err, fmt.Sprintf("tracepoint %s:%s isn't readable at %s, is tracefs mounted and accessible?", subsystem, name, path))
	}
	id, err = util.ParseInt(string(raw))
	if err != nil {
		return 0, errors.Wrap(err, fmt.Sprintf("tracepoint id at %s could not be parsed", path))
	}
	return
}

// SchedSwitchID returns the sched:sched_switch tracepoint id, or
// UnknownTracepointID when it cannot be read. The missing id is not an error
// of this call; a CPU group leader built in system-wide mode with accessible
// tracepoints then fails on the unknown id.
func (p *Prober) SchedSwitchID() int64 {
	id, err := TracepointID(p.tracingDir(), "sched", "sched_switch")
	if err != nil {
		slog.Debug("unable to read sched_switch id", slog.String("error", err.Error()))
		return UnknownTracepointID
	}
	return id
}
