// Package templates embeds the starter files written by the init command.
package templates

import (
	_ "embed"
)

//go:embed config.template

// ConfigYAML is the default configuration file template.
var ConfigYAML []byte

//go:embed env.template

// EnvFile is the environment override file template.
var EnvFile []byte
