package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// Source tags. Each component is prefixed with the tag of the probe that
// produced it so values from different sources never collide.
const (
	TagWindowsSerial = "SN_WIN"
	TagMacSerial     = "SN_MAC"
	TagMacUUID       = "UUID_MAC"
	TagLinuxID       = "MID_LNX"
	TagMAC           = "MAC"
	TagHost          = "HOST"
)

// DegradedMachineCode is returned when every hardware probe failed
const DegradedMachineCode = "0000-0000-0000-0000"

// DefaultQueryTimeout bounds a single hardware query
const DefaultQueryTimeout = 3 * time.Second

var (
	errPlaceholder = errors.New("placeholder value reported by firmware")
	errEmptyValue  = errors.New("probe returned no value")
)

// Prober queries one hardware identifier source
type Prober interface {
	Name() string
	Tag() string
	Probe(ctx context.Context) (string, error)
}

// Component is one tagged input to the machine code digest
type Component struct {
	Tag    string `json:"tag"`
	Value  string `json:"value"`
	Source string `json:"source"`
}

func (c Component) String() string {
	return c.Tag + ":" + c.Value
}

// ResolverConfig tunes the default probe chain
type ResolverConfig struct {
	QueryTimeout time.Duration
	UseMachineID bool
	// AppID keys the protected Linux machine id
	AppID string
}

// ResolverOption customizes a Resolver
type ResolverOption func(*Resolver)

// WithProbers replaces the platform probe chain
func WithProbers(probers ...Prober) ResolverOption {
	return func(r *Resolver) {
		r.probers = probers
	}
}

// WithHostname replaces the hostname lookup
func WithHostname(fn func() (string, error)) ResolverOption {
	return func(r *Resolver) {
		r.hostname = fn
	}
}

// WithDegradedHook registers a callback run each time resolution falls back
// to the degraded sentinel
func WithDegradedHook(fn func(ctx context.Context)) ResolverOption {
	return func(r *Resolver) {
		r.onDegraded = fn
	}
}

// Resolver derives the machine code for the current host. Results are never
// cached; concurrent callers share a single in-flight resolution.
type Resolver struct {
	probers    []Prober
	hostname   func() (string, error)
	timeout    time.Duration
	logger     *slog.Logger
	onDegraded func(ctx context.Context)
	group      singleflight.Group
}

// NewResolver builds a resolver with the probe chain for runtime.GOOS
func NewResolver(cfg ResolverConfig, logger *slog.Logger, opts ...ResolverOption) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}

	r := &Resolver{
		probers:  DefaultProbers(runtime.GOOS, cfg),
		hostname: hostname,
		timeout:  cfg.QueryTimeout,
		logger:   logger.With("component", "fingerprint"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DefaultProbers returns the fallback chain for goos, primary sources first
// and the network adapter address last.
func DefaultProbers(goos string, cfg ResolverConfig) []Prober {
	run := runCommand
	var chain []Prober

	switch goos {
	case "windows":
		chain = append(chain, &baseboardProber{run: run})
	case "darwin":
		chain = append(chain, &platformSerialProber{run: run}, &hardwareUUIDProber{run: run})
	case "linux":
		if cfg.UseMachineID {
			chain = append(chain, newMachineIDProber(cfg.AppID))
		}
	}

	return append(chain, &macProber{interfaces: net.Interfaces})
}

// Resolve returns the machine code, or DegradedMachineCode when every probe
// failed. It never returns an error.
func (r *Resolver) Resolve(ctx context.Context) string {
	v, _, _ := r.group.Do("resolve", func() (interface{}, error) {
		components, ok := r.collect(ctx)
		if !ok {
			r.logger.WarnContext(ctx, "all hardware probes failed, using degraded machine code",
				slog.String("machine_code", DegradedMachineCode),
				slog.Int("probes", len(r.probers)))
			if r.onDegraded != nil {
				r.onDegraded(ctx)
			}
			return DegradedMachineCode, nil
		}
		return DeriveMachineCode(components), nil
	})
	return v.(string)
}

// Components returns the tagged inputs of the digest. ok is false when the
// resolver is in degraded mode.
func (r *Resolver) Components(ctx context.Context) ([]Component, bool) {
	return r.collect(ctx)
}

// collect walks the source chain and stops at the first success. Sources run
// detached from ctx cancellation so a caller that gives up cannot push the
// chain onto a lower-priority source (MAC) and change the code. Each source
// is still bounded by the resolver's query timeout.
func (r *Resolver) collect(ctx context.Context) ([]Component, bool) {
	var primary *Component
	probeCtx := context.WithoutCancel(ctx)

	for _, p := range r.probers {
		value, err := r.probe(probeCtx, p)
		if err != nil {
			r.logger.DebugContext(ctx, "hardware probe failed",
				slog.String("probe", p.Name()),
				slog.String("error", err.Error()))
			continue
		}
		primary = &Component{Tag: p.Tag(), Value: value, Source: p.Name()}
		break
	}

	if primary == nil {
		return nil, false
	}

	components := []Component{*primary}
	if host, err := r.hostname(); err == nil {
		components = append(components, Component{Tag: TagHost, Value: host, Source: "hostname"})
	} else {
		r.logger.DebugContext(ctx, "hostname unavailable", slog.String("error", err.Error()))
	}

	return components, true
}

func (r *Resolver) probe(ctx context.Context, p Prober) (string, error) {
	pctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	value, err := p.Probe(pctx)
	if err != nil {
		return "", err
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", errEmptyValue
	}
	return value, nil
}

// DeriveMachineCode hashes the joined components into XXXX-XXXX-XXXX-XXXX
func DeriveMachineCode(components []Component) string {
	parts := make([]string, len(components))
	for i, c := range components {
		parts[i] = c.String()
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	digest := strings.ToUpper(hex.EncodeToString(sum[:]))
	return GroupCode(digest[:16])
}

// GroupCode renders 16 characters as four hyphen-separated groups of four
func GroupCode(s string) string {
	if len(s) != 16 {
		return s
	}
	return s[0:4] + "-" + s[4:8] + "-" + s[8:12] + "-" + s[12:16]
}

func hostname() (string, error) {
	h, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}
	h = strings.TrimSpace(h)
	if h == "" {
		return "", fmt.Errorf("hostname is empty")
	}
	return h, nil
}

// macProber reads the first usable 48-bit hardware address
type macProber struct {
	interfaces func() ([]net.Interface, error)
}

func (p *macProber) Name() string { return "network-adapter" }
func (p *macProber) Tag() string  { return TagMAC }

func (p *macProber) Probe(ctx context.Context) (string, error) {
	ifaces, err := p.interfaces()
	if err != nil {
		return "", fmt.Errorf("failed to get network interfaces: %w", err)
	}

	// Prefer up, non-loopback interfaces
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if mac, ok := formatMAC(iface.HardwareAddr); ok {
			return mac, nil
		}
	}

	for _, iface := range ifaces {
		if mac, ok := formatMAC(iface.HardwareAddr); ok {
			return mac, nil
		}
	}

	return "", fmt.Errorf("no valid MAC address found")
}

func formatMAC(addr net.HardwareAddr) (string, bool) {
	if len(addr) != 6 {
		return "", false
	}
	zero := true
	for _, b := range addr {
		if b != 0 {
			zero = false
			break
		}
	}
	if zero {
		return "", false
	}
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		addr[0], addr[1], addr[2], addr[3], addr[4], addr[5]), true
}

var placeholderSerials = map[string]struct{}{
	"to be filled by o.e.m.": {},
	"default string":         {},
	"none":                   {},
	"0":                      {},
	"system serial number":   {},
	"not applicable":         {},
	"n/a":                    {},
}

// checkSerial rejects firmware placeholders
func checkSerial(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", errEmptyValue
	}
	if _, ok := placeholderSerials[strings.ToLower(v)]; ok {
		return "", errPlaceholder
	}
	if strings.Trim(v, "0-") == "" {
		return "", errPlaceholder
	}
	return v, nil
}
