package issuer

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "nodelock/internal/errors"
	"nodelock/internal/license"
)

// Entry is one issued license code
type Entry struct {
	MachineCode license.MachineCode `json:"machine_code"`
	LicenseCode license.LicenseCode `json:"license_code"`
	IssuedAt    time.Time           `json:"issued_at"`
}

// Rejected is an input line that was not a machine code
type Rejected struct {
	Line   int    `json:"line"`
	Input  string `json:"input"`
	Reason string `json:"reason"`
}

// Batch is the result of one batch run
type Batch struct {
	ID        string     `json:"batch_id"`
	CreatedAt time.Time  `json:"created_at"`
	Entries   []Entry    `json:"entries"`
	Rejected  []Rejected `json:"rejected,omitempty"`
}

// Ledger records issued batches
type Ledger interface {
	RecordBatch(ctx context.Context, b *Batch) error
}

// Option configures an Issuer
type Option func(*Issuer)

// WithClock overrides the issuance timestamp source
func WithClock(clock func() time.Time) Option {
	return func(i *Issuer) { i.clock = clock }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(i *Issuer) { i.logger = logger }
}

// WithLedger records every batch in l
func WithLedger(l Ledger) Option {
	return func(i *Issuer) { i.ledger = l }
}

// Issuer generates license codes with the issuing secret
type Issuer struct {
	secret []byte
	clock  func() time.Time
	logger *slog.Logger
	ledger Ledger
}

// New creates an issuer. The secret is required.
func New(secret []byte, opts ...Option) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, apperrors.NewAppError(apperrors.ErrTypeValidation,
			"issuing secret is not configured", apperrors.ErrSecretRequired)
	}

	i := &Issuer{
		secret: append([]byte(nil), secret...),
		clock:  time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.logger = i.logger.With("component", "issuer")
	return i, nil
}

// Issue derives the license code for one machine code
func (i *Issuer) Issue(machineCode string) (Entry, error) {
	mc, err := license.ParseMachineCode(machineCode)
	if err != nil {
		return Entry{}, err
	}
	code, err := license.Generate(i.secret, mc)
	if err != nil {
		return Entry{}, err
	}

	i.logger.Debug("license code issued",
		slog.String("action", "issue"),
		slog.String("machine_code", string(mc)))
	return Entry{MachineCode: mc, LicenseCode: code, IssuedAt: i.clock().UTC()}, nil
}

// Verify reports whether code is the license code for machineCode
func (i *Issuer) Verify(machineCode, code string) (bool, error) {
	mc, err := license.ParseMachineCode(machineCode)
	if err != nil {
		return false, err
	}
	return license.Verify(i.secret, mc, license.LicenseCode(code)), nil
}

// Batch issues a code for every machine code under one new batch id and
// records the batch in the ledger when one is configured.
func (i *Issuer) Batch(ctx context.Context, codes []license.MachineCode) (*Batch, error) {
	b := &Batch{
		ID:        uuid.New().String(),
		CreatedAt: i.clock().UTC(),
		Entries:   make([]Entry, 0, len(codes)),
	}

	for _, mc := range codes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		code, err := license.Generate(i.secret, mc)
		if err != nil {
			return nil, err
		}
		b.Entries = append(b.Entries, Entry{
			MachineCode: mc,
			LicenseCode: code,
			IssuedAt:    b.CreatedAt,
		})
	}

	if i.ledger != nil && len(b.Entries) > 0 {
		if err := i.ledger.RecordBatch(ctx, b); err != nil {
			return nil, err
		}
	}

	i.logger.Info("batch issued",
		slog.String("action", "batch"),
		slog.String("batch_id", b.ID),
		slog.Int("count", len(b.Entries)))
	return b, nil
}
