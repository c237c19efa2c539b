package issuer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nodelock/internal/license"
	"nodelock/internal/shared/testutil"
)

func openTestLedger(t *testing.T) *SQLiteLedger {
	t.Helper()
	ledger, err := NewSQLiteLedger(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })
	return ledger
}

func TestSQLiteLedgerRecordAndLookup(t *testing.T) {
	ctx := context.Background()
	ledger := openTestLedger(t)
	iss := newTestIssuer(t, WithLedger(ledger))

	first, err := iss.Batch(ctx, []license.MachineCode{testutil.TestMachineCode, testutil.OtherMachineCode})
	require.NoError(t, err)
	second, err := iss.Batch(ctx, []license.MachineCode{testutil.TestMachineCode})
	require.NoError(t, err)

	entries, err := ledger.Lookup(ctx, testutil.TestMachineCode)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, first.ID, entries[0].BatchID)
	assert.Equal(t, second.ID, entries[1].BatchID)
	for _, e := range entries {
		assert.Equal(t, license.MachineCode(testutil.TestMachineCode), e.MachineCode)
		assert.Equal(t, license.LicenseCode(testutil.TestLicenseCode), e.LicenseCode)
		assert.True(t, testutil.FixedTime.Equal(e.IssuedAt))
	}

	entries, err = ledger.Lookup(ctx, "FFFF-FFFF-FFFF-FFFF")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSQLiteLedgerReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	ledger, err := NewSQLiteLedger(ctx, path)
	require.NoError(t, err)
	require.NoError(t, ledger.RecordBatch(ctx, &Batch{
		ID:      "batch-1",
		Entries: []Entry{{MachineCode: testutil.TestMachineCode, LicenseCode: testutil.TestLicenseCode, IssuedAt: testutil.FixedTime}},
	}))
	require.NoError(t, ledger.Close())

	reopened, err := NewSQLiteLedger(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, path, reopened.Path())

	entries, err := reopened.Lookup(ctx, testutil.TestMachineCode)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "batch-1", entries[0].BatchID)
}

func TestSQLiteLedgerCancelledContext(t *testing.T) {
	ledger := openTestLedger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ledger.RecordBatch(ctx, &Batch{
		ID:      "batch-1",
		Entries: []Entry{{MachineCode: testutil.TestMachineCode, LicenseCode: testutil.TestLicenseCode, IssuedAt: testutil.FixedTime}},
	})
	assert.Error(t, err)

	entries, err := ledger.Lookup(context.Background(), testutil.TestMachineCode)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
