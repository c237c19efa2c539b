package config

import "time"

// Application constants
const (
	AppName    = "nodelock"
	AppVersion = "1.0.0"

	// EnvPrefix namespaces environment variables (NODELOCK_LICENSE_SECRET, ...)
	EnvPrefix = "NODELOCK"

	DefaultConfigFile = "nodelock.yaml"
	DotEnvFile        = ".env"
	DefaultLogFile    = "logs/nodelock.log"

	// DefaultStoreFile is the well-known license blob, relative to the
	// working directory.
	DefaultStoreFile = ".auth"

	// DefaultStoreKey is the key material compiled into every build. It
	// obfuscates the stored record; it does not make it confidential.
	DefaultStoreKey = "nodelock/store/v1/aK3xY9zB5mN8qW2eR6tY1uI4oP7sD0fG"

	DefaultScryptN = 32768
	// MinScryptN is the lowest accepted store key derivation cost
	MinScryptN = 32768

	DefaultHost = "127.0.0.1"
	DefaultPort = 8731

	DefaultQueryTimeout = 3 * time.Second
)
