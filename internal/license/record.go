package license

import (
	"encoding/json"
	"fmt"
	"time"
)

// SchemaVersion is the record layout written by Save
const SchemaVersion = 2

// LicenseRecord is the persisted authorization state. It is only ever
// replaced as a whole.
type LicenseRecord struct {
	LicenseCode   LicenseCode `json:"license_code"`
	MachineCode   MachineCode `json:"machine_code"`
	IssuedAt      time.Time   `json:"issued_at"`
	SchemaVersion int         `json:"schema_version"`
}

// recordV1 is the legacy layout with a string version field
type recordV1 struct {
	AuthCode    string `json:"auth_code"`
	MachineCode string `json:"machine_code"`
	AuthDate    string `json:"auth_date"`
	Version     string `json:"version"`
}

// versionProbe reads whichever version marker a blob carries
type versionProbe struct {
	SchemaVersion *int    `json:"schema_version"`
	Version       *string `json:"version"`
}

func encodeRecord(r LicenseRecord) ([]byte, error) {
	r.SchemaVersion = SchemaVersion
	r.IssuedAt = r.IssuedAt.UTC()
	return json.Marshal(r)
}

// decodeRecord parses any known schema and migrates it to the current one
func decodeRecord(data []byte) (*LicenseRecord, error) {
	var probe versionProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("record is not valid JSON: %w", err)
	}

	switch {
	case probe.SchemaVersion != nil && *probe.SchemaVersion == SchemaVersion:
		var r LicenseRecord
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("invalid v%d record: %w", SchemaVersion, err)
		}
		return validateRecord(&r)
	case probe.SchemaVersion != nil:
		return nil, fmt.Errorf("unsupported schema version %d", *probe.SchemaVersion)
	case probe.Version != nil && *probe.Version == "1.0":
		var v1 recordV1
		if err := json.Unmarshal(data, &v1); err != nil {
			return nil, fmt.Errorf("invalid v1 record: %w", err)
		}
		return validateRecord(migrateV1(v1))
	default:
		return nil, fmt.Errorf("record has no schema version")
	}
}

// migrateV1 maps the legacy layout. Its timestamps carry no zone and are
// read as local time; an unreadable date becomes the zero time.
func migrateV1(v1 recordV1) *LicenseRecord {
	r := &LicenseRecord{
		LicenseCode:   LicenseCode(v1.AuthCode),
		MachineCode:   MachineCode(v1.MachineCode),
		SchemaVersion: SchemaVersion,
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, v1.AuthDate, time.Local); err == nil {
			r.IssuedAt = t.UTC()
			break
		}
	}
	return r
}

func validateRecord(r *LicenseRecord) (*LicenseRecord, error) {
	if r.LicenseCode == "" {
		return nil, fmt.Errorf("record has no license code")
	}
	if r.MachineCode == "" {
		return nil, fmt.Errorf("record has no machine code")
	}
	r.SchemaVersion = SchemaVersion
	return r, nil
}
