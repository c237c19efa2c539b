package testutil

import (
	"context"
	"fmt"
	"io/fs"
	"sync"
	"sync/atomic"
)

// StaticResolver reports a fixed machine code. Set Code to simulate moving
// the installation to different hardware.
type StaticResolver struct {
	mu    sync.Mutex
	code  string
	calls atomic.Int64
}

// NewStaticResolver returns a resolver reporting code
func NewStaticResolver(code string) *StaticResolver {
	return &StaticResolver{code: code}
}

func (r *StaticResolver) Resolve(_ context.Context) string {
	r.calls.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.code
}

// SetCode changes the reported machine code
func (r *StaticResolver) SetCode(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.code = code
}

// Calls returns how often Resolve ran
func (r *StaticResolver) Calls() int64 {
	return r.calls.Load()
}

// FakeProber is a scripted hardware probe
type FakeProber struct {
	ProbeName string
	ProbeTag  string
	Value     string
	Err       error
	calls     atomic.Int64
}

func (p *FakeProber) Name() string { return p.ProbeName }
func (p *FakeProber) Tag() string  { return p.ProbeTag }

func (p *FakeProber) Probe(ctx context.Context) (string, error) {
	p.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.Value, p.Err
}

// Calls returns how often Probe ran
func (p *FakeProber) Calls() int64 {
	return p.calls.Load()
}

// MemoryBlob keeps the sealed record in memory. The Err fields inject
// failures into the matching operation.
type MemoryBlob struct {
	mu   sync.Mutex
	data []byte
	set  bool

	ReadErr   error
	WriteErr  error
	RemoveErr error
	writes    int
}

// NewMemoryBlob returns an empty blob
func NewMemoryBlob() *MemoryBlob {
	return &MemoryBlob{}
}

func (b *MemoryBlob) Read() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ReadErr != nil {
		return nil, b.ReadErr
	}
	if !b.set {
		return nil, fmt.Errorf("memory blob: %w", fs.ErrNotExist)
	}
	return append([]byte(nil), b.data...), nil
}

func (b *MemoryBlob) Write(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.WriteErr != nil {
		return b.WriteErr
	}
	b.data = append([]byte(nil), data...)
	b.set = true
	b.writes++
	return nil
}

func (b *MemoryBlob) Remove() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.RemoveErr != nil {
		return b.RemoveErr
	}
	b.data = nil
	b.set = false
	return nil
}

func (b *MemoryBlob) Location() string {
	return "memory://license"
}

// Bytes returns a copy of the stored data, or nil when empty
func (b *MemoryBlob) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.set {
		return nil
	}
	return append([]byte(nil), b.data...)
}

// SetBytes replaces the stored data, e.g. with a tampered copy
func (b *MemoryBlob) SetBytes(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append([]byte(nil), data...)
	b.set = true
}

// Exists reports whether the blob holds data
func (b *MemoryBlob) Exists() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.set
}

// Writes returns the number of successful writes
func (b *MemoryBlob) Writes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writes
}
