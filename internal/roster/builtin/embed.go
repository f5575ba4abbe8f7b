// Package builtin provides the embedded default worker roster.
package builtin

import _ "embed"

// RosterYAML contains the default roster used when the backend cannot
// provide one.
//
//go:embed roster.yaml
var RosterYAML string
