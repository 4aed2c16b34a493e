// Package config defines the configuration schema for the gatehouse
// reverse proxy and implements loading, defaulting, validation, and
// change watching.
//
// Configuration is declared in TOML (canonical) or YAML, selected by
// file extension. Decoding is strict: unknown keys anywhere in the
// document are rejected at load time so that typos surface immediately
// instead of silently disabling features.
//
// The loading sequence is:
//
//  1. Read and strictly decode the file
//  2. Apply default values (ApplyDefaults)
//  3. Validate the final document (Validate)
//
// A loaded Config is treated as immutable. Reload builds a fresh Config
// and the server swaps derived snapshots (certificate store, router
// index) atomically; see pkg/server.
//
// Example minimal configuration:
//
//	listen_port = 8080
//
//	[apps.app1]
//	server_name = "app1.example.com"
//
//	[[apps.app1.reverse_proxy]]
//	[[apps.app1.reverse_proxy.upstream]]
//	location = "app1.local:8080"
package config
