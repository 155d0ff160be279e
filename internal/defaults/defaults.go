// Package defaults provides the embedded example configuration for
// the reeve init subcommand.
package defaults

import _ "embed"

// ConfigYAML is the example configuration file written by init.
//
//go:embed config.example.yaml
var ConfigYAML []byte
