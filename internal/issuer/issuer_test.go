package issuer

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "nodelock/internal/errors"
	"nodelock/internal/license"
	"nodelock/internal/shared/testutil"
)

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) RecordBatch(ctx context.Context, b *Batch) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

func newTestIssuer(t *testing.T, opts ...Option) *Issuer {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	opts = append([]Option{WithClock(testutil.FixedClock()), WithLogger(logger)}, opts...)
	iss, err := New([]byte(testutil.TestSecret), opts...)
	require.NoError(t, err)
	return iss
}

func TestNewRequiresSecret(t *testing.T) {
	for _, secret := range [][]byte{nil, {}} {
		_, err := New(secret)
		assert.ErrorIs(t, err, apperrors.ErrSecretRequired)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	}
}

func TestIssue(t *testing.T) {
	iss := newTestIssuer(t)

	tests := []struct {
		name    string
		input   string
		wantMC  license.MachineCode
		wantLC  license.LicenseCode
		wantErr bool
	}{
		{name: "canonical", input: testutil.TestMachineCode, wantMC: testutil.TestMachineCode, wantLC: testutil.TestLicenseCode},
		{name: "lowercase without hyphens", input: "aaaabbbbccccdddd", wantMC: testutil.TestMachineCode, wantLC: testutil.TestLicenseCode},
		{name: "derived from hardware", input: "24BE-D217-DC82-AAC3", wantMC: "24BE-D217-DC82-AAC3", wantLC: "6VA3-YGMA-LEJW-QKSB"},
		{name: "malformed", input: "ABC", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := iss.Issue(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMC, e.MachineCode)
			assert.Equal(t, tt.wantLC, e.LicenseCode)
			assert.Equal(t, testutil.FixedTime, e.IssuedAt)
		})
	}
}

func TestVerify(t *testing.T) {
	iss := newTestIssuer(t)

	ok, err := iss.Verify(testutil.TestMachineCode, testutil.TestLicenseCode)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = iss.Verify(testutil.TestMachineCode, "qjcd-cevk-ivqg-xjak")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = iss.Verify(testutil.TestMachineCode, testutil.OtherSecretLicenseCode)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = iss.Verify(testutil.OtherMachineCode, testutil.TestLicenseCode)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = iss.Verify("nope", testutil.TestLicenseCode)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestBatch(t *testing.T) {
	iss := newTestIssuer(t)
	codes := make([]license.MachineCode, 0, 5)
	for _, c := range testutil.MachineCodes(5) {
		codes = append(codes, license.MachineCode(c))
	}

	b, err := iss.Batch(context.Background(), codes)
	require.NoError(t, err)

	_, err = uuid.Parse(b.ID)
	assert.NoError(t, err, "batch id is a uuid")
	assert.Equal(t, testutil.FixedTime, b.CreatedAt)
	require.Len(t, b.Entries, 5)

	for i, e := range b.Entries {
		assert.Equal(t, codes[i], e.MachineCode)
		assert.True(t, license.Verify([]byte(testutil.TestSecret), e.MachineCode, e.LicenseCode))
		assert.Equal(t, b.CreatedAt, e.IssuedAt)
	}

	other, err := iss.Batch(context.Background(), codes)
	require.NoError(t, err)
	assert.NotEqual(t, b.ID, other.ID)
	assert.Equal(t, b.Entries, other.Entries, "issuance is deterministic")
}

func TestBatchRecordsInLedger(t *testing.T) {
	ledger := new(mockLedger)
	ledger.On("RecordBatch", mock.Anything, mock.MatchedBy(func(b *Batch) bool {
		return len(b.Entries) == 1 && b.Entries[0].LicenseCode == testutil.TestLicenseCode
	})).Return(nil).Once()

	iss := newTestIssuer(t, WithLedger(ledger))
	_, err := iss.Batch(context.Background(), []license.MachineCode{testutil.TestMachineCode})
	require.NoError(t, err)

	_, err = iss.Batch(context.Background(), nil)
	require.NoError(t, err, "empty batches are not recorded")

	ledger.AssertExpectations(t)
}

func TestBatchLedgerFailure(t *testing.T) {
	ledgerErr := apperrors.NewStorageError("disk full", errors.New("ENOSPC"))
	ledger := new(mockLedger)
	ledger.On("RecordBatch", mock.Anything, mock.Anything).Return(ledgerErr)

	iss := newTestIssuer(t, WithLedger(ledger))
	b, err := iss.Batch(context.Background(), []license.MachineCode{testutil.TestMachineCode})
	assert.Nil(t, b)
	assert.ErrorIs(t, err, apperrors.ErrPersistence)
}

func TestBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestIssuer(t).Batch(ctx, []license.MachineCode{testutil.TestMachineCode})
	assert.ErrorIs(t, err, context.Canceled)
}
