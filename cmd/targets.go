package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/khanhnv2901/safe-audit/internal/application/analysis"
	"github.com/khanhnv2901/safe-audit/internal/domain/chain"
)

// resolveChainFlag accepts a registry slug or a numeric chain id.
func resolveChainFlag(reg *chain.Registry, value string) (chain.Descriptor, error) {
	value = strings.TrimSpace(value)
	if desc, ok := reg.Resolve(value); ok {
		return desc, nil
	}
	return chain.Descriptor{}, &UnsupportedChainError{Chain: value, Known: reg.Slugs()}
}

// parseTargets reads one Safe per line. A line is either "<chain> <address>"
// or a bare address, which then requires defaultChain. Blank lines and lines
// starting with # are skipped. Fields may be separated by spaces, tabs or a
// comma.
func parseTargets(r io.Reader, reg *chain.Registry, defaultChain *chain.Descriptor) ([]analysis.Target, error) {
	var targets []analysis.Target
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})

		switch len(fields) {
		case 1:
			if defaultChain == nil {
				return nil, fmt.Errorf("line %d: no chain given and --chain not set", lineNo)
			}
			targets = append(targets, analysis.Target{ChainID: defaultChain.ID, Address: fields[0]})
		case 2:
			desc, err := resolveChainFlag(reg, fields[0])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			targets = append(targets, analysis.Target{ChainID: desc.ID, Address: fields[1]})
		default:
			return nil, fmt.Errorf("line %d: expected \"<chain> <address>\" or \"<address>\"", lineNo)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read targets: %w", err)
	}
	return targets, nil
}
