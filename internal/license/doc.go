// Package license implements node-locked authorization: the keyed codec that
// maps machine codes to license codes, the sealed on-disk license record, and
// the engine that decides whether this installation is authorized.
//
// # Verification capability
//
// An Engine built with the issuing secret recomputes the license code and
// compares it in constant time (CanVerifyCryptographically). An Engine
// built without it only checks the XXXX-XXXX-XXXX-XXXX shape (FormatOnly),
// so any well-formed code is accepted on a matching machine. Client builds
// that must not carry the secret run in FormatOnly mode.
//
// # Check order
//
//  1. Resolve the current machine code
//  2. Load the record; none (or corrupted) gives NoRecord
//  3. Stored machine code differs: MachineMismatch
//  4. License code fails verification: InvalidCode
//  5. Otherwise Valid
//
// # Storage
//
// The record is JSON sealed with AES-256-GCM under a scrypt-derived key. The
// key material is compiled into every build, so sealing prevents casual
// editing and inspection but is not confidentiality against anyone holding
// the binary.
package license
