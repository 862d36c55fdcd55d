// Package config builds the torcheck configuration from defaults, the
// .torcheck YAML file, an optional .env file, TORCHECK_* environment
// variables and command-line flags, in increasing order of precedence.
package config
