// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

// Package deploy holds the serving bundle exported into <model_dir>/code:
// the entrypoint script and a dependency manifest of the binary that
// trained the model.
package deploy

import (
	_ "embed"
	"fmt"
	"io/fs"
	"runtime/debug"
	"strings"
)

const (
	// EntrypointFile starts the inference endpoint.
	EntrypointFile = "serve.sh"

	// ManifestFile lists the modules the trainer was built with, in go.mod
	// form.
	ManifestFile = "go.mod"

	modulePath = "github.com/tomtom215/reelrank"
)

//go:embed serve.sh
var entrypoint []byte

// File is one file of the bundle.
type File struct {
	Name string
	Data []byte
	Mode fs.FileMode
}

// Bundle returns the entrypoint and the dependency manifest, in that order.
func Bundle() []File {
	return []File{
		{Name: EntrypointFile, Data: entrypoint, Mode: 0o750},
		{Name: ManifestFile, Data: Manifest(), Mode: 0o640},
	}
}

// Manifest renders the running binary's build info as a go.mod. Without
// build info only the module line is written.
func Manifest() []byte {
	info, ok := debug.ReadBuildInfo()
	return []byte(renderManifest(info, ok))
}

func renderManifest(info *debug.BuildInfo, ok bool) string {
	var b strings.Builder
	if !ok || info == nil {
		fmt.Fprintf(&b, "module %s\n", modulePath)
		return b.String()
	}

	path := info.Main.Path
	if path == "" {
		path = modulePath
	}
	fmt.Fprintf(&b, "module %s\n\ngo %s\n", path, strings.TrimPrefix(info.GoVersion, "go"))
	if len(info.Deps) == 0 {
		return b.String()
	}

	b.WriteString("\nrequire (\n")
	for _, dep := range info.Deps {
		m := dep
		if dep.Replace != nil {
			m = dep.Replace
		}
		fmt.Fprintf(&b, "\t%s %s\n", m.Path, m.Version)
	}
	b.WriteString(")\n")
	return b.String()
}
