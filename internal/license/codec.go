package license

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base32"
	"regexp"
	"strings"

	apperrors "nodelock/internal/errors"
	"nodelock/internal/security"
)

// MachineCode identifies a physical host: 16 uppercase alphanumerics in four
// hyphen-separated groups.
type MachineCode string

// LicenseCode is the keyed token issued for a MachineCode
type LicenseCode string

// DegradedMachineCode is reported when no hardware identifier was readable
const DegradedMachineCode = MachineCode(security.DegradedMachineCode)

var codeFormat = regexp.MustCompile(`^[A-Z0-9]{4}(-[A-Z0-9]{4}){3}$`)

func (m MachineCode) String() string { return string(m) }
func (c LicenseCode) String() string { return string(c) }

// canonicalize strips hyphens and surrounding space, uppercases, and
// regroups. ok is false unless exactly 16 alphanumerics remain.
func canonicalize(s string) (string, bool) {
	raw := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", ""))
	if len(raw) != 16 {
		return "", false
	}
	for _, r := range raw {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", false
		}
	}
	return security.GroupCode(raw), true
}

// ParseMachineCode accepts 16 alphanumerics, optionally hyphen-grouped and in
// any case, and returns the canonical form.
func ParseMachineCode(s string) (MachineCode, error) {
	canon, ok := canonicalize(s)
	if !ok {
		return "", apperrors.NewValidationError("machine code must be 16 alphanumeric characters").
			With("input_length", len(s))
	}
	return MachineCode(canon), nil
}

// Equal compares two machine codes case-insensitively
func (m MachineCode) Equal(other MachineCode) bool {
	a, okA := canonicalize(string(m))
	b, okB := canonicalize(string(other))
	if !okA || !okB {
		return strings.EqualFold(string(m), string(other))
	}
	return a == b
}

// Generate derives the license code for mc under secret:
// HMAC-SHA256 over the hyphen-free machine code, base32, first 16 characters.
func Generate(secret []byte, mc MachineCode) (LicenseCode, error) {
	if len(secret) == 0 {
		return "", apperrors.NewAppError(apperrors.ErrTypeValidation, "issuing secret is empty", apperrors.ErrSecretRequired)
	}
	canon, err := ParseMachineCode(string(mc))
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strings.ReplaceAll(string(canon), "-", "")))
	encoded := base32.StdEncoding.EncodeToString(mac.Sum(nil))

	return LicenseCode(security.GroupCode(encoded[:16])), nil
}

// Verify reports whether candidate is the license code for mc under secret.
// The candidate is compared case-insensitively in constant time.
func Verify(secret []byte, mc MachineCode, candidate LicenseCode) bool {
	expected, err := Generate(secret, mc)
	if err != nil {
		return false
	}

	got := strings.ToUpper(strings.TrimSpace(string(candidate)))
	if canon, ok := canonicalize(got); ok {
		got = canon
	}
	return security.SecureCompare([]byte(expected), []byte(got))
}

// ValidFormat reports whether code has the XXXX-XXXX-XXXX-XXXX shape with
// uppercase alphanumerics after case folding.
func ValidFormat(code string) bool {
	return codeFormat.MatchString(strings.ToUpper(code))
}

// CanonicalLicenseCode normalizes user input when it has the license code
// shape and otherwise returns the trimmed input unchanged.
func CanonicalLicenseCode(s string) LicenseCode {
	s = strings.TrimSpace(s)
	if canon, ok := canonicalize(s); ok {
		return LicenseCode(canon)
	}
	return LicenseCode(s)
}
