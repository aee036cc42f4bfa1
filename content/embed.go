// Package content embeds the shipped lesson curriculum.
package content

import "embed"

// FS holds the curriculum YAML files, one module per file.
//
//go:embed *.yaml
var FS embed.FS
