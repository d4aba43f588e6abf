package cliutil

import (
	"strings"
	"testing"
)

func TestParseEnvVariables(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		want    map[string]string
		wantErr string
	}{
		{
			name:  "empty list",
			input: nil,
			want:  map[string]string{},
		},
		{
			name:  "simple variables",
			input: []string{"foo=bar", "BLA=bloz"},
			want:  map[string]string{"foo": "bar", "BLA": "bloz"},
		},
		{
			name:  "empty value is allowed",
			input: []string{"foo="},
			want:  map[string]string{"foo": ""},
		},
		{
			name:    "missing separator",
			input:   []string{"foobar"},
			wantErr: "invalid format",
		},
		{
			name:    "empty name",
			input:   []string{"=bar"},
			wantErr: "invalid format",
		},
		{
			name:    "value containing separator",
			input:   []string{"foo=bar=baz"},
			wantErr: "invalid format",
		},
		{
			name:    "duplicated name",
			input:   []string{"foo=bar", "foo=baz"},
			wantErr: "duplicated",
		},
		{
			name:    "invalid name characters",
			input:   []string{"foo-bar=baz"},
			wantErr: "not a valid name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEnvVariables(tt.input)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d variables, want %d", len(got), len(tt.want))
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("variable %q = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}
