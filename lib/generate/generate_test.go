// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

package generate

import (
	"context"
	"strings"
	"testing"
)

func TestExpand(t *testing.T) {
	variables := map[string]string{"VARIANT": "3.11", "OUT": "-"}
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr string
	}{
		{
			name:  "single",
			input: "pip-compile --python-version ${VARIANT}",
			want:  "pip-compile --python-version 3.11",
		},
		{
			name:  "repeated_and_mixed",
			input: "relock ${VARIANT} --out ${OUT} # ${VARIANT}",
			want:  "relock 3.11 --out - # 3.11",
		},
		{
			name:  "bare_dollar_untouched",
			input: "echo $HOME ${VARIANT}",
			want:  "echo $HOME 3.11",
		},
		{
			name:    "unresolved",
			input:   "relock ${VARIANT} ${MISSING} ${ALSO_MISSING}",
			wantErr: "MISSING, ALSO_MISSING",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := Expand(test.input, variables)
			if test.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), test.wantErr) {
					t.Fatalf("Expand = %v, want error containing %q", err, test.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expand: %v", err)
			}
			if got != test.want {
				t.Errorf("Expand = %q, want %q", got, test.want)
			}
		})
	}
}

func TestCommandGenerator(t *testing.T) {
	generator := &CommandGenerator{
		Template: "printf 'pinned==%s\\n' ${VARIANT}",
	}
	output, err := generator.Generate(context.Background(), "3.11")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if string(output) != "pinned==3.11\n" {
		t.Errorf("output = %q", output)
	}
}

func TestCommandGeneratorFailure(t *testing.T) {
	generator := &CommandGenerator{
		Template: "echo 'resolver exploded for ${VARIANT}' >&2; exit 3",
	}
	_, err := generator.Generate(context.Background(), "3.12")
	if err == nil {
		t.Fatal("Generate succeeded for failing command")
	}
	if !strings.Contains(err.Error(), "resolver exploded for 3.12") {
		t.Errorf("error = %v, want stderr included", err)
	}
}

func TestCommandGeneratorEnv(t *testing.T) {
	generator := &CommandGenerator{
		Template: "printf '%s' \"$RELOCK_EXTRA\"",
		Env:      []string{"RELOCK_EXTRA=from-env"},
	}
	output, err := generator.Generate(context.Background(), "3.11")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if string(output) != "from-env" {
		t.Errorf("output = %q, want from-env", output)
	}
}

func TestCommandGeneratorUnresolvedTemplate(t *testing.T) {
	generator := &CommandGenerator{
		Template: "relock ${NOT_A_THING}",
	}
	if _, err := generator.Generate(context.Background(), "3.11"); err == nil {
		t.Fatal("Generate accepted template with unresolved variable")
	}
}
