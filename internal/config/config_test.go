package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nodelock.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

// TestLoad tests the Load function with various scenarios
func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		file        string
		wantErr     bool
		validateCfg func(*testing.T, *Config)
	}{
		{
			name: "defaults with no env vars",
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, DefaultPort, cfg.Server.Port)
				assert.Equal(t, DefaultHost, cfg.Server.Host)
				assert.Equal(t, ".auth", cfg.License.StorePath)
				assert.Equal(t, DefaultScryptN, cfg.License.ScryptN)
				assert.Equal(t, 3*time.Second, cfg.Fingerprint.QueryTimeout)
				assert.False(t, cfg.Fingerprint.UseMachineID)
				assert.Empty(t, cfg.License.Secret)
				assert.Equal(t, "json", cfg.Logging.Format)
			},
		},
		{
			name: "yaml file overrides defaults",
			file: `
server:
  port: 9100
license:
  store_path: /var/lib/nodelock/.auth
fingerprint:
  query_timeout: 5s
  use_machine_id: true
issuer:
  formats: [txt, csv]
`,
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9100, cfg.Server.Port)
				assert.Equal(t, "/var/lib/nodelock/.auth", cfg.License.StorePath)
				assert.Equal(t, 5*time.Second, cfg.Fingerprint.QueryTimeout)
				assert.True(t, cfg.Fingerprint.UseMachineID)
				assert.Equal(t, []string{"txt", "csv"}, cfg.Issuer.Formats)
				// untouched sections keep defaults
				assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
			},
		},
		{
			name: "environment wins over file",
			file: "server:\n  port: 9100\n",
			env: map[string]string{
				"NODELOCK_SERVER_PORT":    "9200",
				"NODELOCK_LICENSE_SECRET": "hex:5445535453454352",
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9200, cfg.Server.Port)
				secret, err := cfg.License.SecretBytes()
				require.NoError(t, err)
				assert.Equal(t, []byte("TESTSECR"), secret)
			},
		},
		{
			name:    "invalid port",
			env:     map[string]string{"NODELOCK_SERVER_PORT": "70000"},
			wantErr: true,
		},
		{
			name:    "scrypt cost must be a power of two",
			env:     map[string]string{"NODELOCK_LICENSE_SCRYPT_N": "40000"},
			wantErr: true,
		},
		{
			name:    "scrypt cost below minimum",
			env:     map[string]string{"NODELOCK_LICENSE_SCRYPT_N": "2"},
			wantErr: true,
		},
		{
			name:    "scrypt cost power of two below minimum",
			env:     map[string]string{"NODELOCK_LICENSE_SCRYPT_N": "16384"},
			wantErr: true,
		},
		{
			name: "scrypt cost above minimum",
			env:  map[string]string{"NODELOCK_LICENSE_SCRYPT_N": "65536"},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 65536, cfg.License.ScryptN)
			},
		},
		{
			name:    "bad hex secret",
			env:     map[string]string{"NODELOCK_LICENSE_SECRET": "hex:zz"},
			wantErr: true,
		},
		{
			name:    "unknown export format",
			env:     map[string]string{"NODELOCK_ISSUER_FORMATS": "txt,pdf"},
			wantErr: true,
		},
		{
			name:    "unknown trace exporter",
			env:     map[string]string{"NODELOCK_TELEMETRY_TRACE_EXPORTER": "jaeger"},
			wantErr: true,
		},
		{
			name:    "malformed yaml",
			file:    "server: [",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.file != "" {
				t.Setenv("NODELOCK_CONFIG", writeConfigFile(t, tt.file))
			} else {
				t.Setenv("NODELOCK_CONFIG", "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, cfg)
			if tt.validateCfg != nil {
				tt.validateCfg(t, cfg)
			}
		})
	}
}

func TestDecodeSecret(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []byte
		wantErr bool
	}{
		{name: "empty", raw: "", want: nil},
		{name: "whitespace only", raw: "   ", want: nil},
		{name: "verbatim", raw: "TESTKEY", want: []byte("TESTKEY")},
		{name: "hex", raw: "hex:00ff10", want: []byte{0x00, 0xff, 0x10}},
		{name: "bad hex", raw: "hex:0g", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeSecret(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolvePaths(t *testing.T) {
	cfg := Default()
	cfg.Issuer.LedgerPath = "ledger.db"

	p := resolvePathsFrom("/work", cfg)
	assert.Equal(t, filepath.Join("/work", ".auth"), p.StoreFile)
	assert.Equal(t, filepath.Join("/work", "logs"), p.LogsDir)
	assert.Equal(t, "/work", p.ExportDir)
	assert.Equal(t, filepath.Join("/work", "ledger.db"), p.LedgerFile)

	cfg.License.StorePath = "/abs/.auth"
	cfg.Issuer.LedgerPath = ""
	p = resolvePathsFrom("/work", cfg)
	assert.Equal(t, "/abs/.auth", p.StoreFile)
	assert.Empty(t, p.LedgerFile)
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	p := &Paths{
		LogsDir:   filepath.Join(base, "logs"),
		ExportDir: filepath.Join(base, "out", "batches"),
	}
	require.NoError(t, p.EnsureDirectories())
	assert.DirExists(t, p.LogsDir)
	assert.DirExists(t, p.ExportDir)
}

func TestServerAddress(t *testing.T) {
	assert.Equal(t, "127.0.0.1:8731", Default().Server.Address())
}
