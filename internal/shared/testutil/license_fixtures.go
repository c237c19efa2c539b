package testutil

import (
	"fmt"
	"time"
)

// Known-answer values. TestLicenseCode is the code issued for
// TestMachineCode under TestSecret.
const (
	TestSecret      = "TESTKEY"
	TestMachineCode = "AAAA-BBBB-CCCC-DDDD"
	TestLicenseCode = "QJCD-CEVK-IVQG-XJAK"

	// OtherSecretLicenseCode is issued for TestMachineCode under "OTHERKEY"
	OtherSecretLicenseCode = "RXSK-PHKT-6I3J-AFTR"

	// OtherMachineCode belongs to a different host
	OtherMachineCode = "1234-5678-9ABC-DEF0"

	// WellFormedWrongCode has the license code shape but was never issued
	WellFormedWrongCode = "ABCD-EFGH-IJKL-MNOP"

	// MalformedCode does not have the license code shape
	MalformedCode = "WRONG-CODE"
)

// FixedTime is the clock used by deterministic tests
var FixedTime = time.Date(2024, time.May, 1, 12, 30, 45, 0, time.UTC)

// FixedClock returns a clock that always reports FixedTime
func FixedClock() func() time.Time {
	return func() time.Time { return FixedTime }
}

// LegacyRecordJSON returns a record in the pre-schema layout
func LegacyRecordJSON(licenseCode, machineCode, authDate string) []byte {
	return []byte(fmt.Sprintf(`{"auth_code": %q, "machine_code": %q, "auth_date": %q, "version": "1.0"}`,
		licenseCode, machineCode, authDate))
}

// MachineCodes returns n distinct well-formed machine codes
func MachineCodes(n int) []string {
	codes := make([]string, n)
	for i := range codes {
		raw := fmt.Sprintf("%016X", uint64(0xA1B2C3D400000000)+uint64(i))
		codes[i] = raw[0:4] + "-" + raw[4:8] + "-" + raw[8:12] + "-" + raw[12:16]
	}
	return codes
}
