// Package common defines data structures and functions that are used by multiple
// application commands.
package common

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"os"
	"path/filepath"
)

var AppName = filepath.Base(os.Args[0])

// AppContext represents the application context that can be accessed from all commands.
type AppContext struct {
	OutputDir string // OutputDir is the directory where the application will write output files.
	Version   string // Version is the version of the application.
}
