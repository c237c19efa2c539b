package license

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	apperrors "nodelock/internal/errors"
)

// MachineCodeResolver yields the machine code of the current host. It never
// fails; a degraded host reports DegradedMachineCode.
type MachineCodeResolver interface {
	Resolve(ctx context.Context) string
}

// RecordStore persists the license record
type RecordStore interface {
	Save(ctx context.Context, r LicenseRecord) error
	Load(ctx context.Context) (*LicenseRecord, error)
	Clear(ctx context.Context) error
	Location() string
}

// Options configures an Engine. Secret is optional; without it the engine
// runs in FormatOnly mode.
type Options struct {
	Resolver MachineCodeResolver
	Store    RecordStore
	Secret   []byte
	Clock    func() time.Time
	Logger   *slog.Logger
	Metrics  *Metrics
}

// Engine decides whether this installation is authorized. Check is a pure
// read and safe for concurrent use; Commit and Reauthorize are serialized.
type Engine struct {
	resolver   MachineCodeResolver
	store      RecordStore
	secret     []byte
	capability Capability
	clock      func() time.Time
	logger     *slog.Logger
	metrics    *Metrics

	mu sync.Mutex

	obsMu     sync.RWMutex
	observers map[int]func(Verdict)
	nextObsID int
}

// NewEngine validates opts and builds an engine
func NewEngine(opts Options) (*Engine, error) {
	if opts.Resolver == nil {
		return nil, apperrors.NewConfigError("license engine requires a machine code resolver", nil)
	}
	if opts.Store == nil {
		return nil, apperrors.NewConfigError("license engine requires a record store", nil)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	secret := append([]byte(nil), opts.Secret...)
	return &Engine{
		resolver:   opts.Resolver,
		store:      opts.Store,
		secret:     secret,
		capability: CapabilityFor(secret),
		clock:      opts.Clock,
		logger:     opts.Logger.With("component", "license_engine"),
		metrics:    opts.Metrics,
		observers:  make(map[int]func(Verdict)),
	}, nil
}

// Capability reports how license codes are verified
func (e *Engine) Capability() Capability {
	return e.capability
}

// StoreLocation identifies where the record is kept
func (e *Engine) StoreLocation() string {
	return e.store.Location()
}

// CurrentMachineCode returns the freshly resolved machine code
func (e *Engine) CurrentMachineCode(ctx context.Context) MachineCode {
	return MachineCode(e.resolver.Resolve(ctx))
}

// Check computes the authorization verdict from live hardware and the stored
// record. A corrupted record is reported as NoRecord with RecordCorrupted
// set; other storage failures are returned as errors.
func (e *Engine) Check(ctx context.Context) (Verdict, error) {
	ctx, span := startSpan(ctx, "license.check")
	start := time.Now()

	v, err := e.check(ctx)

	if err != nil {
		e.logError(ctx, "check", "Authorization check failed", slog.String("error", err.Error()))
		endSpan(ctx, span, err, "", nil)
		return Verdict{}, err
	}

	e.metrics.recordCheck(ctx, v, time.Since(start))
	span.SetAttributes(
		attribute.Bool("license.authorized", v.Authorized),
		attribute.String("license.reason", string(v.Reason)),
	)
	endSpan(ctx, span, nil, "license.verdict", map[string]interface{}{
		"reason":           string(v.Reason),
		"record_corrupted": v.RecordCorrupted,
	})

	e.logDebug(ctx, "check", "Authorization checked",
		slog.Bool("authorized", v.Authorized),
		slog.String("reason", string(v.Reason)),
		slog.String("machine_code", string(v.CurrentMachineCode)),
		slog.Duration("duration", time.Since(start)))
	return v, nil
}

func (e *Engine) check(ctx context.Context) (Verdict, error) {
	current := MachineCode(e.resolver.Resolve(ctx))
	v := Verdict{
		Reason:             ReasonNoRecord,
		CurrentMachineCode: current,
		Capability:         e.capability,
		CheckedAt:          e.clock().UTC(),
	}

	record, err := e.store.Load(ctx)
	switch {
	case errors.Is(err, ErrRecordCorrupted):
		v.RecordCorrupted = true
		e.logWarn(ctx, "check", "Stored license record is corrupted, treating as absent",
			slog.String("location", e.store.Location()))
		return v, nil
	case err != nil:
		return Verdict{}, err
	case record == nil:
		return v, nil
	}

	if !record.MachineCode.Equal(current) {
		v.Reason = ReasonMachineMismatch
		v.StoredMachineCode = record.MachineCode
		return v, nil
	}

	if !e.codeValid(current, record.LicenseCode) {
		v.Reason = ReasonInvalidCode
		return v, nil
	}

	issuedAt := record.IssuedAt
	v.Authorized = true
	v.Reason = ReasonValid
	v.IssuedAt = &issuedAt
	return v, nil
}

// codeValid applies the engine's verification capability
func (e *Engine) codeValid(mc MachineCode, code LicenseCode) bool {
	if e.capability == CanVerifyCryptographically {
		return Verify(e.secret, mc, code)
	}
	return ValidFormat(string(code))
}

// Commit stores code bound to the current machine. The code is not verified
// here; the next Check reports whether it is valid.
func (e *Engine) Commit(ctx context.Context, code string) (LicenseRecord, error) {
	ctx, span := startSpan(ctx, "license.commit")

	record, err := e.commit(ctx, code)

	e.metrics.recordCommit(ctx, err)
	endSpan(ctx, span, err, "license.committed", map[string]interface{}{
		"license_code": maskLicenseKey(string(record.LicenseCode)),
	})

	if err != nil {
		e.logError(ctx, "commit", "License code commit failed", slog.String("error", err.Error()))
		return LicenseRecord{}, err
	}

	e.logInfo(ctx, "commit", "License code saved, pending verification",
		slog.String("license_code", maskLicenseKey(string(record.LicenseCode))),
		slog.String("machine_code", string(record.MachineCode)))

	e.notify(ctx)
	return record, nil
}

func (e *Engine) commit(ctx context.Context, code string) (LicenseRecord, error) {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return LicenseRecord{}, apperrors.NewValidationError("license code is empty")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	record := LicenseRecord{
		LicenseCode:   CanonicalLicenseCode(trimmed),
		MachineCode:   MachineCode(e.resolver.Resolve(ctx)),
		IssuedAt:      e.clock().UTC(),
		SchemaVersion: SchemaVersion,
	}

	if err := e.store.Save(ctx, record); err != nil {
		return LicenseRecord{}, err
	}
	return record, nil
}

// Reauthorize deletes the stored record; the next Check reports NoRecord
func (e *Engine) Reauthorize(ctx context.Context) error {
	ctx, span := startSpan(ctx, "license.reauthorize")

	e.mu.Lock()
	err := e.store.Clear(ctx)
	e.mu.Unlock()

	e.metrics.recordReauthorize(ctx, err)
	endSpan(ctx, span, err, "license.cleared", nil)

	if err != nil {
		e.logError(ctx, "reauthorize", "Failed to clear license record", slog.String("error", err.Error()))
		return err
	}

	e.logInfo(ctx, "reauthorize", "License record cleared",
		slog.String("location", e.store.Location()))

	e.notify(ctx)
	return nil
}

// Subscribe registers fn to receive the verdict after each successful
// Commit or Reauthorize. The returned function removes the subscription.
func (e *Engine) Subscribe(fn func(Verdict)) (unsubscribe func()) {
	e.obsMu.Lock()
	id := e.nextObsID
	e.nextObsID++
	e.observers[id] = fn
	e.obsMu.Unlock()

	return func() {
		e.obsMu.Lock()
		delete(e.observers, id)
		e.obsMu.Unlock()
	}
}

func (e *Engine) notify(ctx context.Context) {
	e.obsMu.RLock()
	observers := make([]func(Verdict), 0, len(e.observers))
	for _, fn := range e.observers {
		observers = append(observers, fn)
	}
	e.obsMu.RUnlock()

	if len(observers) == 0 {
		return
	}

	v, err := e.Check(ctx)
	if err != nil {
		return
	}
	for _, fn := range observers {
		fn(v)
	}
}
