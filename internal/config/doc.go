// Package config loads and validates the daemon's YAML configuration.
//
// Load applies defaults, parses with yaml.v3 and validates structural
// constraints; Watch reloads the file on change via fsnotify, keeping the
// previous config when a reload fails. Secrets (SNMP community strings,
// BMC passwords, API keys, webhook URLs) are never stored in the file
// itself — the config holds environment variable names and resolver
// methods read them at use time.
package config
