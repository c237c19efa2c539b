// Package domain contains the JSON shapes exchanged with the GUI shell.
// These types are the single source of truth for the bridge responses.
package domain

import (
	"time"
)

// LicenseStatus is the verdict as presented to the GUI
type LicenseStatus struct {
	Authorized         bool       `json:"authorized"`
	Reason             string     `json:"reason"`
	Message            string     `json:"message"`
	CurrentMachineCode string     `json:"current_machine_code"`
	StoredMachineCode  string     `json:"stored_machine_code,omitempty"`
	IssuedAt           *time.Time `json:"issued_at,omitempty"`
	Capability         string     `json:"capability"`
	RecordCorrupted    bool       `json:"record_corrupted,omitempty"`
	CheckedAt          time.Time  `json:"checked_at"`
}

// MachineCodeInfo is shown to the user so they can request a license code
type MachineCodeInfo struct {
	MachineCode string `json:"machine_code"`
	Degraded    bool   `json:"degraded"`
}

// CommitResult acknowledges a saved license code. Saved does not mean
// authorized; Status carries the follow-up check.
type CommitResult struct {
	Saved       bool          `json:"saved"`
	LicenseCode string        `json:"license_code"`
	MachineCode string        `json:"machine_code"`
	SavedAt     time.Time     `json:"saved_at"`
	Status      LicenseStatus `json:"status"`
}

// FingerprintComponent is one tagged hardware identifier
type FingerprintComponent struct {
	Tag    string `json:"tag"`
	Value  string `json:"value"`
	Source string `json:"source"`
}

// DebugInfo describes how the machine code and verdict were derived
type DebugInfo struct {
	MachineCode   string                 `json:"machine_code"`
	Degraded      bool                   `json:"degraded"`
	Components    []FingerprintComponent `json:"components"`
	StoreLocation string                 `json:"store_location"`
	Capability    string                 `json:"capability"`
	Version       string                 `json:"version"`
}

// HealthStatus is returned by the liveness endpoint
type HealthStatus struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Clients   int       `json:"event_clients"`
	Timestamp time.Time `json:"timestamp"`
}
