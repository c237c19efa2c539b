package license

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nodelock/internal/shared/testutil"
)

func TestEncodeRecordNormalizesToUTC(t *testing.T) {
	zone := time.FixedZone("UTC+3", 3*60*60)
	r := LicenseRecord{
		LicenseCode: testutil.TestLicenseCode,
		MachineCode: testutil.TestMachineCode,
		IssuedAt:    time.Date(2024, time.May, 1, 15, 30, 45, 123456789, zone),
	}

	data, err := encodeRecord(r)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "2024-05-01T12:30:45.123456789Z", raw["issued_at"])
	assert.Equal(t, float64(SchemaVersion), raw["schema_version"])
	assert.Equal(t, testutil.TestLicenseCode, raw["license_code"])
	assert.Equal(t, testutil.TestMachineCode, raw["machine_code"])
}

func TestDecodeRecord(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    *LicenseRecord
		wantErr string
	}{
		{
			name: "current schema",
			data: `{"license_code":"QJCD-CEVK-IVQG-XJAK","machine_code":"AAAA-BBBB-CCCC-DDDD","issued_at":"2024-05-01T12:30:45Z","schema_version":2}`,
			want: &LicenseRecord{
				LicenseCode:   testutil.TestLicenseCode,
				MachineCode:   testutil.TestMachineCode,
				IssuedAt:      testutil.FixedTime,
				SchemaVersion: SchemaVersion,
			},
		},
		{
			name:    "unknown schema version",
			data:    `{"license_code":"QJCD-CEVK-IVQG-XJAK","machine_code":"AAAA-BBBB-CCCC-DDDD","issued_at":"2024-05-01T12:30:45Z","schema_version":3}`,
			wantErr: "unsupported schema version 3",
		},
		{
			name:    "unknown legacy version",
			data:    `{"auth_code":"X","machine_code":"Y","auth_date":"","version":"0.9"}`,
			wantErr: "no schema version",
		},
		{
			name:    "no version",
			data:    `{"license_code":"QJCD-CEVK-IVQG-XJAK","machine_code":"AAAA-BBBB-CCCC-DDDD"}`,
			wantErr: "no schema version",
		},
		{
			name:    "missing license code",
			data:    `{"machine_code":"AAAA-BBBB-CCCC-DDDD","issued_at":"2024-05-01T12:30:45Z","schema_version":2}`,
			wantErr: "no license code",
		},
		{
			name:    "missing machine code",
			data:    `{"license_code":"QJCD-CEVK-IVQG-XJAK","issued_at":"2024-05-01T12:30:45Z","schema_version":2}`,
			wantErr: "no machine code",
		},
		{
			name:    "bad timestamp",
			data:    `{"license_code":"QJCD-CEVK-IVQG-XJAK","machine_code":"AAAA-BBBB-CCCC-DDDD","issued_at":"yesterday","schema_version":2}`,
			wantErr: "invalid v2 record",
		},
		{
			name:    "not json",
			data:    `license=QJCD-CEVK-IVQG-XJAK`,
			wantErr: "not valid JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeRecord([]byte(tt.data))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.LicenseCode, got.LicenseCode)
			assert.Equal(t, tt.want.MachineCode, got.MachineCode)
			assert.True(t, tt.want.IssuedAt.Equal(got.IssuedAt))
			assert.Equal(t, tt.want.SchemaVersion, got.SchemaVersion)
		})
	}
}

func TestDecodeRecordMigratesLegacyLayout(t *testing.T) {
	tests := []struct {
		name     string
		authDate string
		want     time.Time
	}{
		{
			name:     "iso without zone",
			authDate: "2024-05-01T12:30:45.250000",
			want:     time.Date(2024, time.May, 1, 12, 30, 45, 250000000, time.Local),
		},
		{
			name:     "space separated",
			authDate: "2024-05-01 12:30:45",
			want:     time.Date(2024, time.May, 1, 12, 30, 45, 0, time.Local),
		},
		{
			name:     "with offset",
			authDate: "2024-05-01T12:30:45+02:00",
			want:     time.Date(2024, time.May, 1, 10, 30, 45, 0, time.UTC),
		},
		{
			name:     "unreadable date",
			authDate: "first of May",
			want:     time.Time{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeRecord(testutil.LegacyRecordJSON(testutil.TestLicenseCode, testutil.TestMachineCode, tt.authDate))
			require.NoError(t, err)

			assert.Equal(t, LicenseCode(testutil.TestLicenseCode), got.LicenseCode)
			assert.Equal(t, MachineCode(testutil.TestMachineCode), got.MachineCode)
			assert.Equal(t, SchemaVersion, got.SchemaVersion)
			assert.True(t, tt.want.Equal(got.IssuedAt), "want %s, got %s", tt.want, got.IssuedAt)
		})
	}
}
