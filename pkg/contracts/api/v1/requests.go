// Package api contains API contract definitions for the node-locking bridge.
// Version v1 represents the current stable API version.
package api

// License API Requests

// CommitLicenseRequest carries a license code typed by the user. Surrounding
// whitespace is trimmed by the engine, not here.
type CommitLicenseRequest struct {
	LicenseCode string `json:"license_code" validate:"required,max=64"`
}
