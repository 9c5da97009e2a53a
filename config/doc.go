// Package config handles loading and parsing of configuration from YAML files
// and environment variables. It defines the custom scheme, the fixed
// destination it is rewritten onto, listener addresses, upstream timeouts and
// logging settings. Configuration is read once at startup.
package config
