// Package config handles loading and parsing of configuration from YAML files
// and environment variables. It defines the application configuration structure
// including server settings, backend URLs, forwarding timeouts and retry budget,
// selection strategy, and health check tuning.
package config
