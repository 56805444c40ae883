// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

// Package generate runs lockfile generation commands for runtime
// variants. A Generator produces the lockfile bytes for one variant;
// CommandGenerator is the standard implementation, shelling out to
// the resolver tool configured in the repository manifest with the
// variant interpolated into the command line.
package generate

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
)

// Generator produces the lockfile content for a single runtime
// variant.
type Generator interface {
	Generate(ctx context.Context, variant string) ([]byte, error)
}

// variablePattern matches ${NAME} references in command templates.
// Only the braced form is recognized — bare $NAME is left for shell
// interpretation. Variable names must start with a letter or
// underscore and contain only letters, digits, and underscores.
var variablePattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Expand replaces ${NAME} references in input with values from the
// variables map.
//
// Returns an error listing all referenced variables that have no
// value in the map, so manifests fail fast on unresolvable references
// rather than producing broken commands.
func Expand(input string, variables map[string]string) (string, error) {
	var unresolved []string

	result := variablePattern.ReplaceAllStringFunc(input, func(match string) string {
		name := match[2 : len(match)-1]
		if value, exists := variables[name]; exists {
			return value
		}
		unresolved = append(unresolved, name)
		return match
	})

	if len(unresolved) > 0 {
		return "", fmt.Errorf("unresolved variables: %s", strings.Join(unresolved, ", "))
	}
	return result, nil
}

// CommandGenerator generates lockfiles by running a configured
// command template. The template references the variant as
// ${VARIANT}; the resulting command runs through "sh -c" in Dir and
// must write the lockfile to stdout.
type CommandGenerator struct {
	// Template is the command line template, e.g.
	// "pip-compile --python-version ${VARIANT} --output-file -".
	Template string

	// Dir is the working directory for the command. Empty means the
	// process working directory.
	Dir string

	// Env is extra environment entries in KEY=VALUE form, appended to
	// the inherited environment.
	Env []string

	// Logger receives per-invocation events. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// Generate runs the command template for the given variant and
// returns its stdout. A non-zero exit is an error carrying the
// command's stderr.
func (generator *CommandGenerator) Generate(ctx context.Context, variant string) ([]byte, error) {
	commandLine, err := Expand(generator.Template, map[string]string{"VARIANT": variant})
	if err != nil {
		return nil, fmt.Errorf("generate: expanding command for %s: %w", variant, err)
	}

	logger := generator.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("running generation command", "variant", variant, "command", commandLine)

	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "sh", "-c", commandLine)
	command.Dir = generator.Dir
	command.Stdout = &stdout
	command.Stderr = &stderr
	if len(generator.Env) > 0 {
		command.Env = append(command.Environ(), generator.Env...)
	}

	if err := command.Run(); err != nil {
		return nil, fmt.Errorf("generate: %s for %s: %w (stderr: %s)",
			firstWord(commandLine), variant, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func firstWord(commandLine string) string {
	word, _, _ := strings.Cut(strings.TrimSpace(commandLine), " ")
	return word
}
