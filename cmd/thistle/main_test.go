package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/thistle/pkg/models"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCommand()

	names := map[string]bool{}
	for _, cmd := range root.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"serve", "run", "scan", "migrate"} {
		assert.True(t, names[want], "missing %s command", want)
	}

	migrate, _, err := root.Find([]string{"migrate", "down"})
	require.NoError(t, err)
	assert.Equal(t, "down", migrate.Name())
	assert.NotNil(t, migrate.Flags().Lookup("steps"))
}

func TestScanOptions_Filter(t *testing.T) {
	tests := []struct {
		name    string
		opts    scanOptions
		want    models.TeamFilter
		wantErr bool
	}{
		{
			name: "full cohort",
			opts: scanOptions{birthYear: 2012, gender: " Boys ", region: " TX "},
			want: models.TeamFilter{BirthYear: 2012, Gender: models.GenderBoys, Region: "tx"},
		},
		{
			name: "empty filter scans everything",
			opts: scanOptions{},
			want: models.TeamFilter{},
		},
		{
			name:    "unknown gender",
			opts:    scanOptions{gender: "coed"},
			wantErr: true,
		},
		{
			name:    "negative birth year",
			opts:    scanOptions{birthYear: -1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.opts.filter()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteJSON(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, writeJSON(cmd, map[string]int{"version": 3}))
	assert.JSONEq(t, `{"version": 3}`, out.String())
}
