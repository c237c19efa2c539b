package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nodelock/internal/config"
	"nodelock/internal/security"
	"nodelock/internal/shared/testutil"
)

type result struct {
	code   int
	stdout string
	stderr string
}

func runKeygen(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func withSecret(t *testing.T, secret string) {
	t.Helper()
	t.Setenv("NODELOCK_LICENSE_SECRET", secret)
	t.Setenv("NODELOCK_LOGGING_LEVEL", "error")
}

func TestUsage(t *testing.T) {
	res := runKeygen(t, "")
	assert.Equal(t, exitUsage, res.code)
	assert.Contains(t, res.stderr, "Usage: keygen <command>")

	res = runKeygen(t, "", "help")
	assert.Equal(t, exitOK, res.code)

	withSecret(t, testutil.TestSecret)
	res = runKeygen(t, "", "activate")
	assert.Equal(t, exitUsage, res.code)
	assert.Contains(t, res.stderr, `unknown command "activate"`)
}

func TestGenerate(t *testing.T) {
	withSecret(t, testutil.TestSecret)

	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantOut  string
		wantErr  string
	}{
		{
			name:    "flag",
			args:    []string{"generate", "-code", testutil.TestMachineCode},
			wantOut: "Machine Code: AAAA-BBBB-CCCC-DDDD\nLicense Code: QJCD-CEVK-IVQG-XJAK\n",
		},
		{
			name:    "positional and lowercase",
			args:    []string{"generate", "aaaa-bbbb-cccc-dddd"},
			wantOut: "License Code: QJCD-CEVK-IVQG-XJAK\n",
		},
		{
			name:     "missing code",
			args:     []string{"generate"},
			wantCode: exitUsage,
			wantErr:  "-code is required",
		},
		{
			name:     "malformed code",
			args:     []string{"generate", "-code", "ABCD"},
			wantCode: exitFailure,
			wantErr:  "machine code must be 16 alphanumeric characters",
		},
		{
			name:     "unknown flag",
			args:     []string{"generate", "-machine", "x"},
			wantCode: exitUsage,
		},
		{
			name:     "help",
			args:     []string{"generate", "-h"},
			wantCode: exitOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runKeygen(t, "", tt.args...)
			assert.Equal(t, tt.wantCode, res.code, res.stderr)
			assert.Contains(t, res.stdout, tt.wantOut)
			assert.Contains(t, res.stderr, tt.wantErr)
		})
	}
}

func TestGenerateRequiresSecret(t *testing.T) {
	withSecret(t, "")

	res := runKeygen(t, "", "generate", "-code", testutil.TestMachineCode)
	assert.Equal(t, exitFailure, res.code)
	assert.Contains(t, res.stderr, "issuing secret is not configured")
	assert.Empty(t, res.stdout)
}

func TestGenerateSecretFile(t *testing.T) {
	withSecret(t, "")
	secretFile := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(secretFile, []byte("hex:544553544b4559\n"), 0600))

	res := runKeygen(t, "", "generate", "-code", testutil.TestMachineCode, "-secret-file", secretFile)
	assert.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "License Code: "+testutil.TestLicenseCode)

	res = runKeygen(t, "", "generate", "-code", testutil.TestMachineCode, "-secret-file", filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, exitFailure, res.code)
}

func TestVerify(t *testing.T) {
	withSecret(t, testutil.TestSecret)

	res := runKeygen(t, "", "verify", "-code", testutil.TestMachineCode, "-license", testutil.TestLicenseCode)
	assert.Equal(t, exitOK, res.code)
	assert.Contains(t, res.stdout, "VALID")

	res = runKeygen(t, "", "verify", "-code", testutil.TestMachineCode, "-license", testutil.WellFormedWrongCode)
	assert.Equal(t, exitFailure, res.code)
	assert.Contains(t, res.stdout, "INVALID")

	res = runKeygen(t, "", "verify", "-code", testutil.TestMachineCode)
	assert.Equal(t, exitUsage, res.code)
}

func TestBatch(t *testing.T) {
	withSecret(t, testutil.TestSecret)
	out := t.TempDir()
	ledger := filepath.Join(t.TempDir(), "ledger.db")

	input := "AAAA-BBBB-CCCC-DDDD\nnot a code\n24be-d217-dc82-aac3\n\nFFFF-FFFF-FFFF-FFFF\n"
	res := runKeygen(t, input, "batch", "-out", out, "-format", "txt,csv,xlsx", "-ledger", ledger)
	require.Equal(t, exitOK, res.code, res.stderr)

	assert.Contains(t, res.stdout, "2 license codes")
	assert.Contains(t, res.stdout, "AAAA-BBBB-CCCC-DDDD  QJCD-CEVK-IVQG-XJAK\n")
	assert.Contains(t, res.stdout, "24BE-D217-DC82-AAC3  6VA3-YGMA-LEJW-QKSB\n")
	assert.NotContains(t, res.stdout, "FFFF-FFFF-FFFF-FFFF", "input stops at the blank line")
	assert.Contains(t, res.stderr, `line 2: skipping "not a code"`)

	for _, ext := range []string{"txt", "csv", "xlsx"} {
		matches, err := filepath.Glob(filepath.Join(out, "license_codes_*."+ext))
		require.NoError(t, err)
		assert.Len(t, matches, 1, ext)
	}
	assert.Equal(t, 3, strings.Count(res.stdout, "Saved: "))

	_, err := os.Stat(ledger)
	assert.NoError(t, err)
}

func TestBatchFromFileWithoutExport(t *testing.T) {
	withSecret(t, testutil.TestSecret)
	in := filepath.Join(t.TempDir(), "codes.txt")
	require.NoError(t, os.WriteFile(in, []byte(testutil.TestMachineCode+"\n"), 0644))
	out := t.TempDir()

	res := runKeygen(t, "", "batch", "-in", in, "-out", out, "-format", "none", "-ledger", "")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "1 license codes")
	assert.NotContains(t, res.stdout, "Saved: ")
	assert.NotContains(t, res.stderr, "Enter machine codes")

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBatchNoInput(t *testing.T) {
	withSecret(t, testutil.TestSecret)

	res := runKeygen(t, "\n", "batch", "-out", t.TempDir(), "-ledger", "")
	assert.Equal(t, exitFailure, res.code)
	assert.Contains(t, res.stderr, "no machine codes entered")
}

func TestBatchUnknownFormat(t *testing.T) {
	withSecret(t, testutil.TestSecret)

	res := runKeygen(t, testutil.TestMachineCode+"\n", "batch", "-out", t.TempDir(), "-format", "pdf", "-ledger", "")
	assert.Equal(t, exitFailure, res.code)
	assert.Contains(t, res.stderr, "unsupported export format")
}

type stubSource struct {
	code       string
	components []security.Component
}

func (s stubSource) Resolve(context.Context) string { return s.code }

func (s stubSource) Components(context.Context) ([]security.Component, bool) {
	return s.components, len(s.components) > 0
}

func stubResolver(t *testing.T, src stubSource) {
	t.Helper()
	orig := newResolver
	newResolver = func(*config.Config, *slog.Logger) machineCodeSource { return src }
	t.Cleanup(func() { newResolver = orig })
}

func TestMachineCode(t *testing.T) {
	withSecret(t, "")
	stubResolver(t, stubSource{
		code: "24BE-D217-DC82-AAC3",
		components: []security.Component{
			{Tag: security.TagMAC, Value: "aa:bb:cc:dd:ee:ff", Source: "network-adapter"},
			{Tag: security.TagHost, Value: "node1", Source: "hostname"},
		},
	})

	res := runKeygen(t, "", "machine-code")
	assert.Equal(t, exitOK, res.code)
	assert.Equal(t, "Machine Code: 24BE-D217-DC82-AAC3\n", res.stdout)

	res = runKeygen(t, "", "machine-code", "-v")
	assert.Equal(t, exitOK, res.code)
	assert.Contains(t, res.stdout, "aa:bb:cc:dd:ee:ff (network-adapter)")
	assert.Contains(t, res.stdout, "node1 (hostname)")
}

func TestMachineCodeDegraded(t *testing.T) {
	withSecret(t, "")
	stubResolver(t, stubSource{code: security.DegradedMachineCode})

	res := runKeygen(t, "", "machine-code", "-v")
	assert.Equal(t, exitOK, res.code)
	assert.Contains(t, res.stdout, "Machine Code: 0000-0000-0000-0000")
	assert.Contains(t, res.stdout, "degraded placeholder")
}

func TestSplitFormats(t *testing.T) {
	assert.Nil(t, splitFormats(""))
	assert.Nil(t, splitFormats("none"))
	assert.Equal(t, []string{"txt", "csv"}, splitFormats(" txt, ,csv "))
}
