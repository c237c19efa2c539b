package issuer

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"nodelock/internal/license"
)

// ParseMachineCodes reads one machine code per line until EOF or the first
// blank line. Lines that are not machine codes are returned as rejected and
// do not stop the scan.
func ParseMachineCodes(r io.Reader) ([]license.MachineCode, []Rejected, error) {
	var (
		codes    []license.MachineCode
		rejected []Rejected
	)

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			break
		}

		mc, err := license.ParseMachineCode(input)
		if err != nil {
			rejected = append(rejected, Rejected{
				Line:   line,
				Input:  input,
				Reason: "not a machine code (expected XXXX-XXXX-XXXX-XXXX)",
			})
			continue
		}
		codes = append(codes, mc)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read machine codes: %w", err)
	}

	return codes, rejected, nil
}
