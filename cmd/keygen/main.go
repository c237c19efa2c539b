// Command keygen is the administrator tool that issues license codes for
// machine codes reported by client installations.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"nodelock/internal/config"
	"nodelock/internal/infrastructure"
	"nodelock/internal/security"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// machineCodeSource is the part of the resolver the tool needs
type machineCodeSource interface {
	Resolve(ctx context.Context) string
	Components(ctx context.Context) ([]security.Component, bool)
}

// newResolver is replaced in tests
var newResolver = func(cfg *config.Config, logger *slog.Logger) machineCodeSource {
	return security.NewResolver(security.ResolverConfig{
		QueryTimeout: cfg.Fingerprint.QueryTimeout,
		UseMachineID: cfg.Fingerprint.UseMachineID,
		AppID:        config.AppName,
	}, logger)
}

type cli struct {
	cfg    *config.Config
	paths  *config.Paths
	logger *slog.Logger
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		usage(stderr)
		if len(args) == 0 {
			return exitUsage
		}
		return exitOK
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "keygen: %v\n", err)
		return exitUsage
	}
	paths, err := cfg.ResolvePaths()
	if err != nil {
		fmt.Fprintf(stderr, "keygen: %v\n", err)
		return exitFailure
	}

	c := &cli{
		cfg:    cfg,
		paths:  paths,
		logger: infrastructure.NewLogger(stderr, cfg.Logging.Level).With("component", "keygen"),
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}

	ctx = infrastructure.EnsureTraceID(ctx)
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "generate":
		return c.generate(ctx, rest)
	case "verify":
		return c.verify(ctx, rest)
	case "batch":
		return c.batch(ctx, rest)
	case "machine-code":
		return c.machineCode(ctx, rest)
	default:
		fmt.Fprintf(stderr, "keygen: unknown command %q\n\n", cmd)
		usage(stderr)
		return exitUsage
	}
}

func usage(w io.Writer) {
	fmt.Fprint(w, `Usage: keygen <command> [flags]

Commands:
  generate      issue the license code for one machine code
  verify        check a license code against a machine code
  batch         issue codes for a list of machine codes and export them
  machine-code  print the machine code of this computer

The issuing secret is read from NODELOCK_LICENSE_SECRET, license.secret in
nodelock.yaml, or -secret-file. Prefix hex encoded secrets with "hex:".

Run "keygen <command> -h" for command flags.
`)
}

// newFlagSet builds a subcommand flag set that reports to stderr
func (c *cli) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("keygen "+name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

// parse returns the exit code to use when parsing stops the command
func parse(fs *flag.FlagSet, args []string) (int, bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK, false
		}
		return exitUsage, false
	}
	return exitOK, true
}

// secret resolves the issuing secret, preferring secretFile when given
func (c *cli) secret(secretFile string) ([]byte, error) {
	if secretFile != "" {
		data, err := os.ReadFile(secretFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read secret file: %w", err)
		}
		return config.DecodeSecret(string(data))
	}
	return c.cfg.License.SecretBytes()
}

func (c *cli) fail(err error) int {
	fmt.Fprintf(c.stderr, "keygen: %v\n", err)
	return exitFailure
}

func splitFormats(s string) []string {
	if strings.TrimSpace(s) == "" || strings.EqualFold(strings.TrimSpace(s), "none") {
		return nil
	}
	var formats []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			formats = append(formats, f)
		}
	}
	return formats
}
