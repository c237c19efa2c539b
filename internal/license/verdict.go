package license

import (
	"fmt"
	"time"
)

// Reason explains an authorization verdict
type Reason string

const (
	ReasonNoRecord        Reason = "no_record"
	ReasonMachineMismatch Reason = "machine_mismatch"
	ReasonInvalidCode     Reason = "invalid_code"
	ReasonValid           Reason = "valid"
)

// Message returns the text the GUI shows for the reason
func (r Reason) Message() string {
	switch r {
	case ReasonNoRecord:
		return "This installation has not been authorized yet."
	case ReasonMachineMismatch:
		return "The stored authorization belongs to a different machine."
	case ReasonInvalidCode:
		return "The stored license code is not valid for this machine."
	case ReasonValid:
		return "This installation is authorized."
	default:
		return fmt.Sprintf("Unknown authorization state %q.", string(r))
	}
}

// Capability states how strongly the engine can check a license code
type Capability string

const (
	// CanVerifyCryptographically recomputes the code with the issuing secret
	CanVerifyCryptographically Capability = "cryptographic"
	// FormatOnly only checks the XXXX-XXXX-XXXX-XXXX shape and accepts any
	// well-formed code.
	FormatOnly Capability = "format_only"
)

// CapabilityFor returns the capability implied by holding secret
func CapabilityFor(secret []byte) Capability {
	if len(secret) > 0 {
		return CanVerifyCryptographically
	}
	return FormatOnly
}

// Verdict is the result of one authorization check. It is never persisted.
type Verdict struct {
	Authorized         bool        `json:"authorized"`
	Reason             Reason      `json:"reason"`
	CurrentMachineCode MachineCode `json:"current_machine_code"`
	StoredMachineCode  MachineCode `json:"stored_machine_code,omitempty"`
	IssuedAt           *time.Time  `json:"issued_at,omitempty"`

	Capability      Capability `json:"capability"`
	RecordCorrupted bool       `json:"record_corrupted,omitempty"`
	CheckedAt       time.Time  `json:"checked_at"`
}
