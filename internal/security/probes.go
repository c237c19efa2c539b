package security

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/denisbrodbeck/machineid"
)

// commandRunner executes a read-only platform utility and returns stdout
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// baseboardProber reads the motherboard serial on Windows, first through
// wmic and then through the CIM cmdlets for systems without wmic.
type baseboardProber struct {
	run commandRunner
}

func (p *baseboardProber) Name() string { return "baseboard-serial" }
func (p *baseboardProber) Tag() string  { return TagWindowsSerial }

func (p *baseboardProber) Probe(ctx context.Context) (string, error) {
	out, err := p.run(ctx, "wmic", "baseboard", "get", "serialnumber")
	if err == nil {
		if serial, err := checkSerial(parseWMICValue(out, "SerialNumber")); err == nil {
			return serial, nil
		}
	}

	out, err = p.run(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command",
		"(Get-CimInstance -ClassName Win32_BaseBoard).SerialNumber")
	if err != nil {
		return "", err
	}
	return checkSerial(firstLine(out))
}

// parseWMICValue returns the first value line after the header
func parseWMICValue(out []byte, header string) string {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.EqualFold(line, header) {
			continue
		}
		return line
	}
	return ""
}

func firstLine(out []byte) string {
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

var (
	ioregSerialRe    = regexp.MustCompile(`"IOPlatformSerialNumber"\s*=\s*"([^"]*)"`)
	ioregUUIDRe      = regexp.MustCompile(`"IOPlatformUUID"\s*=\s*"([^"]*)"`)
	profilerSerialRe = regexp.MustCompile(`(?m)^\s*Serial Number(?: \(system\))?:\s*(\S+)\s*$`)
	profilerUUIDRe   = regexp.MustCompile(`(?m)^\s*Hardware UUID:\s*(\S+)\s*$`)
)

// platformSerialProber reads the macOS platform serial number
type platformSerialProber struct {
	run commandRunner
}

func (p *platformSerialProber) Name() string { return "platform-serial" }
func (p *platformSerialProber) Tag() string  { return TagMacSerial }

func (p *platformSerialProber) Probe(ctx context.Context) (string, error) {
	return probeMacRegistry(ctx, p.run, ioregSerialRe, profilerSerialRe)
}

// hardwareUUIDProber reads the macOS hardware UUID. It is used when no
// serial number is available.
type hardwareUUIDProber struct {
	run commandRunner
}

func (p *hardwareUUIDProber) Name() string { return "hardware-uuid" }
func (p *hardwareUUIDProber) Tag() string  { return TagMacUUID }

func (p *hardwareUUIDProber) Probe(ctx context.Context) (string, error) {
	return probeMacRegistry(ctx, p.run, ioregUUIDRe, profilerUUIDRe)
}

// probeMacRegistry tries the IO registry first and the hardware profiler second
func probeMacRegistry(ctx context.Context, run commandRunner, ioreg, profiler *regexp.Regexp) (string, error) {
	out, err := run(ctx, "ioreg", "-rd1", "-c", "IOPlatformExpertDevice")
	if err == nil {
		if m := ioreg.FindSubmatch(out); m != nil {
			if v, err := checkSerial(string(m[1])); err == nil {
				return v, nil
			}
		}
	}

	out, err = run(ctx, "system_profiler", "SPHardwareDataType")
	if err != nil {
		return "", err
	}
	m := profiler.FindSubmatch(out)
	if m == nil {
		return "", errEmptyValue
	}
	return checkSerial(string(m[1]))
}

// machineIDProber reads the OS installation id. The value is keyed with the
// application id so the raw machine id never leaves the host.
type machineIDProber struct {
	appID string
	id    func(appID string) (string, error)
}

func newMachineIDProber(appID string) *machineIDProber {
	if appID == "" {
		appID = "nodelock"
	}
	return &machineIDProber{appID: appID, id: machineid.ProtectedID}
}

func (p *machineIDProber) Name() string { return "machine-id" }
func (p *machineIDProber) Tag() string  { return TagLinuxID }

func (p *machineIDProber) Probe(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id, err := p.id(p.appID)
	if err != nil {
		return "", fmt.Errorf("failed to read machine id: %w", err)
	}
	return id, nil
}
