// Package shared holds code used across the nodelock packages that belongs
// to no single domain.
//
// The testutil subpackage provides test doubles for the license engine and
// fingerprint resolver (static resolvers, scripted probes, in-memory blobs),
// a capturing slog handler, and fixed license fixtures. It imports no other
// internal package, so any package's internal tests may use it.
package shared
