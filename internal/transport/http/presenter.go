package http

import (
	"nodelock/internal/license"
	"nodelock/pkg/contracts/domain"
)

// StatusFromVerdict maps an engine verdict onto the GUI contract
func StatusFromVerdict(v license.Verdict) domain.LicenseStatus {
	return domain.LicenseStatus{
		Authorized:         v.Authorized,
		Reason:             string(v.Reason),
		Message:            v.Reason.Message(),
		CurrentMachineCode: string(v.CurrentMachineCode),
		StoredMachineCode:  string(v.StoredMachineCode),
		IssuedAt:           v.IssuedAt,
		Capability:         string(v.Capability),
		RecordCorrupted:    v.RecordCorrupted,
		CheckedAt:          v.CheckedAt,
	}
}
