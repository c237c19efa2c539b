package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"nodelock/internal/issuer"
)

func (c *cli) newIssuer(secretFile string, opts ...issuer.Option) (*issuer.Issuer, error) {
	secret, err := c.secret(secretFile)
	if err != nil {
		return nil, err
	}
	opts = append([]issuer.Option{issuer.WithLogger(c.logger)}, opts...)
	return issuer.New(secret, opts...)
}

func (c *cli) generate(ctx context.Context, args []string) int {
	fs := c.newFlagSet("generate")
	code := fs.String("code", "", "machine code (XXXX-XXXX-XXXX-XXXX)")
	secretFile := fs.String("secret-file", "", "file holding the issuing secret")
	if rc, ok := parse(fs, args); !ok {
		return rc
	}
	if *code == "" && fs.NArg() > 0 {
		*code = fs.Arg(0)
	}
	if *code == "" {
		fmt.Fprintln(c.stderr, "keygen generate: -code is required")
		return exitUsage
	}

	iss, err := c.newIssuer(*secretFile)
	if err != nil {
		return c.fail(err)
	}
	entry, err := iss.Issue(*code)
	if err != nil {
		return c.fail(err)
	}

	fmt.Fprintf(c.stdout, "Machine Code: %s\n", entry.MachineCode)
	fmt.Fprintf(c.stdout, "License Code: %s\n", entry.LicenseCode)
	return exitOK
}

func (c *cli) verify(ctx context.Context, args []string) int {
	fs := c.newFlagSet("verify")
	code := fs.String("code", "", "machine code (XXXX-XXXX-XXXX-XXXX)")
	lic := fs.String("license", "", "license code to check")
	secretFile := fs.String("secret-file", "", "file holding the issuing secret")
	if rc, ok := parse(fs, args); !ok {
		return rc
	}
	if *code == "" || *lic == "" {
		fmt.Fprintln(c.stderr, "keygen verify: -code and -license are required")
		return exitUsage
	}

	iss, err := c.newIssuer(*secretFile)
	if err != nil {
		return c.fail(err)
	}
	ok, err := iss.Verify(*code, *lic)
	if err != nil {
		return c.fail(err)
	}

	if !ok {
		fmt.Fprintln(c.stdout, "INVALID: the license code does not match this machine code")
		return exitFailure
	}
	fmt.Fprintln(c.stdout, "VALID: the license code matches this machine code")
	return exitOK
}

func (c *cli) batch(ctx context.Context, args []string) int {
	fs := c.newFlagSet("batch")
	in := fs.String("in", "-", `file with one machine code per line ("-" reads stdin)`)
	out := fs.String("out", c.paths.ExportDir, "directory for export files")
	formats := fs.String("format", strings.Join(c.cfg.Issuer.Formats, ","), `comma separated export formats (txt, csv, xlsx) or "none"`)
	ledgerPath := fs.String("ledger", c.paths.LedgerFile, "SQLite ledger to record issued codes (empty disables)")
	secretFile := fs.String("secret-file", "", "file holding the issuing secret")
	if rc, ok := parse(fs, args); !ok {
		return rc
	}

	var opts []issuer.Option
	if *ledgerPath != "" {
		ledger, err := issuer.NewSQLiteLedger(ctx, *ledgerPath)
		if err != nil {
			return c.fail(err)
		}
		defer ledger.Close()
		opts = append(opts, issuer.WithLedger(ledger))
	}

	iss, err := c.newIssuer(*secretFile, opts...)
	if err != nil {
		return c.fail(err)
	}

	var src io.Reader = c.stdin
	if *in != "-" {
		f, err := os.Open(*in)
		if err != nil {
			return c.fail(err)
		}
		defer f.Close()
		src = f
	} else {
		fmt.Fprintln(c.stderr, "Enter machine codes, one per line. Finish with an empty line.")
	}

	codes, rejected, err := issuer.ParseMachineCodes(src)
	if err != nil {
		return c.fail(err)
	}
	for _, r := range rejected {
		fmt.Fprintf(c.stderr, "line %d: skipping %q: %s\n", r.Line, r.Input, r.Reason)
	}
	if len(codes) == 0 {
		fmt.Fprintln(c.stderr, "keygen batch: no machine codes entered")
		return exitFailure
	}

	b, err := iss.Batch(ctx, codes)
	if err != nil {
		return c.fail(err)
	}
	b.Rejected = rejected

	fmt.Fprintf(c.stdout, "Batch %s: %d license codes\n", b.ID, len(b.Entries))
	for _, e := range b.Entries {
		fmt.Fprintf(c.stdout, "%s  %s\n", e.MachineCode, e.LicenseCode)
	}

	files, err := issuer.Export(ctx, b, *out, splitFormats(*formats))
	if err != nil {
		return c.fail(err)
	}
	for _, f := range files {
		fmt.Fprintf(c.stdout, "Saved: %s\n", f)
	}
	return exitOK
}

func (c *cli) machineCode(ctx context.Context, args []string) int {
	fs := c.newFlagSet("machine-code")
	verbose := fs.Bool("v", false, "also print the hardware components")
	if rc, ok := parse(fs, args); !ok {
		return rc
	}

	resolver := newResolver(c.cfg, c.logger)
	fmt.Fprintf(c.stdout, "Machine Code: %s\n", resolver.Resolve(ctx))

	if *verbose {
		components, ok := resolver.Components(ctx)
		if !ok {
			fmt.Fprintln(c.stdout, "No hardware identifier could be read; the machine code is the degraded placeholder.")
			return exitOK
		}
		for _, comp := range components {
			fmt.Fprintf(c.stdout, "  %-8s %s (%s)\n", comp.Tag, comp.Value, comp.Source)
		}
	}
	return exitOK
}
