// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest parses the per-repository .relock.jsonc file. The
// manifest lives in the target repository and declares the runtime
// variant matrix, the lockfile path template, and the generation
// command. JSONC (JSON with comments and trailing commas) keeps the
// file annotatable by the repository's maintainers.
package manifest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/jsonc"
)

// DefaultPath is where relockd looks for the manifest in the target
// repository.
const DefaultPath = ".relock.jsonc"

// Manifest declares how to regenerate a repository's lockfiles.
type Manifest struct {
	// Variants lists the runtime versions to generate lockfiles for,
	// e.g. ["3.9", "3.10", "3.11"]. Must be non-empty with no
	// duplicates.
	Variants []string `json:"variants"`

	// LockfilePath is the path template for a variant's lockfile
	// relative to the repository root, referencing the variant as
	// ${VARIANT}, e.g. "locks/${VARIANT}.lock".
	LockfilePath string `json:"lockfile_path"`

	// Command is the generation command template, run through
	// "sh -c" with ${VARIANT} interpolated. Must write the lockfile
	// to stdout.
	Command string `json:"command"`

	// BaseBranch is the branch pull requests target and direct pushes
	// default to. Defaults to "main".
	BaseBranch string `json:"base_branch,omitempty"`

	// WorkBranch is the fixed branch the change-request strategy
	// force-updates. Defaults to "relock".
	WorkBranch string `json:"work_branch,omitempty"`

	// Labels are applied to the pull request the change-request
	// strategy maintains.
	Labels []string `json:"labels,omitempty"`

	// CommitMessage overrides the default commit message.
	CommitMessage string `json:"commit_message,omitempty"`
}

// Parse decodes and validates manifest bytes. Comments and trailing
// commas are stripped before JSON decoding; unknown fields are
// rejected so typos fail loudly instead of being silently ignored.
func Parse(data []byte) (*Manifest, error) {
	var parsed Manifest
	decoder := json.NewDecoder(strings.NewReader(string(jsonc.ToJSON(data))))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("manifest: parsing: %w", err)
	}
	if err := parsed.validate(); err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	parsed.applyDefaults()
	return &parsed, nil
}

func (manifest *Manifest) validate() error {
	if len(manifest.Variants) == 0 {
		return fmt.Errorf("variants list is empty")
	}
	seen := make(map[string]bool, len(manifest.Variants))
	for _, variant := range manifest.Variants {
		if variant == "" {
			return fmt.Errorf("empty variant name")
		}
		if seen[variant] {
			return fmt.Errorf("duplicate variant %q", variant)
		}
		seen[variant] = true
	}
	if manifest.LockfilePath == "" {
		return fmt.Errorf("lockfile_path is required")
	}
	if !strings.Contains(manifest.LockfilePath, "${VARIANT}") && len(manifest.Variants) > 1 {
		return fmt.Errorf("lockfile_path must reference ${VARIANT} when multiple variants are declared")
	}
	if manifest.Command == "" {
		return fmt.Errorf("command is required")
	}
	return nil
}

func (manifest *Manifest) applyDefaults() {
	if manifest.BaseBranch == "" {
		manifest.BaseBranch = "main"
	}
	if manifest.WorkBranch == "" {
		manifest.WorkBranch = "relock"
	}
	if manifest.CommitMessage == "" {
		manifest.CommitMessage = "chore: regenerate lockfiles"
	}
}
