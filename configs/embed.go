// Package configs embeds the shipped default configuration template.
package configs

import "embed"

// DefaultConfig is the commented YAML template written out by `ptyfand
// generate-config` for a new install to edit.
//
//go:embed default.yaml
var DefaultConfig embed.FS
