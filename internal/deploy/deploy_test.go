// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

package deploy

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestBundle(t *testing.T) {
	t.Parallel()

	files := Bundle()
	if len(files) != 2 || files[0].Name != EntrypointFile || files[1].Name != ManifestFile {
		t.Fatalf("Bundle() = %+v", files)
	}
	script := string(files[0].Data)
	if !strings.HasPrefix(script, "#!/bin/sh") || !strings.Contains(script, "--model_dir") {
		t.Errorf("entrypoint = %q", script)
	}
	if files[0].Mode&0o100 == 0 {
		t.Errorf("entrypoint mode = %v, want executable", files[0].Mode)
	}
	if !strings.HasPrefix(string(files[1].Data), "module ") {
		t.Errorf("manifest = %q", files[1].Data)
	}
}

func TestRenderManifest(t *testing.T) {
	t.Parallel()

	info := &debug.BuildInfo{
		GoVersion: "go1.25.5",
		Main:      debug.Module{Path: "github.com/tomtom215/reelrank"},
		Deps: []*debug.Module{
			{Path: "github.com/rs/zerolog", Version: "v1.34.0"},
			{
				Path:    "example.com/old",
				Version: "v1.0.0",
				Replace: &debug.Module{Path: "example.com/new", Version: "v1.1.0"},
			},
		},
	}

	tests := []struct {
		name string
		info *debug.BuildInfo
		ok   bool
		want string
	}{
		{
			name: "full",
			info: info,
			ok:   true,
			want: "module github.com/tomtom215/reelrank\n\ngo 1.25.5\n\nrequire (\n" +
				"\tgithub.com/rs/zerolog v1.34.0\n\texample.com/new v1.1.0\n)\n",
		},
		{
			name: "no deps",
			info: &debug.BuildInfo{GoVersion: "go1.24.0"},
			ok:   true,
			want: "module github.com/tomtom215/reelrank\n\ngo 1.24.0\n",
		},
		{
			name: "no build info",
			ok:   false,
			want: "module github.com/tomtom215/reelrank\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := renderManifest(tt.info, tt.ok); got != tt.want {
				t.Errorf("renderManifest() =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}
