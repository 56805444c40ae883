// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"strings"
	"testing"
)

func TestRunCLIRejectsUnknownCommand(t *testing.T) {
	err := runCLI([]string{"mystery"})
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("runCLI = %v, want unknown command error", err)
	}
}

func TestRunCLIRequiresSubcommand(t *testing.T) {
	if err := runCLI(nil); err == nil {
		t.Fatal("runCLI with no arguments succeeded, want error")
	}
}
