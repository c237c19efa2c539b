// Package config loads configuration for the node-locking client, the
// loopback bridge and the issuer tool.
//
// # Configuration Sources
//
// Configuration is assembled in the following order, later sources winning:
//
//  1. Default values
//  2. YAML file (NODELOCK_CONFIG, ./nodelock.yaml or ./configs/nodelock.yaml)
//  3. Environment variables, optionally seeded from a .env file
//
// # Environment Variables
//
// All environment variables are prefixed with NODELOCK_:
//
//	NODELOCK_LICENSE_SECRET=hex:5445535453454352
//	NODELOCK_LICENSE_STORE_PATH=.auth
//	NODELOCK_FINGERPRINT_QUERY_TIMEOUT=3s
//	NODELOCK_SERVER_PORT=8731
//	NODELOCK_TELEMETRY_TRACE_EXPORTER=stdout
//
// An unset license secret produces a format-only client. Release builds of
// the end-user client are expected to run without it.
package config
