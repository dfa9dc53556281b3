// Package config loads service configuration from defaults, an optional YAML
// file, a .env file and CHUNKEMBED_* environment variables, in that order of
// increasing precedence.
package config
