package blocklist

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadFile reads a blocklist file in either hosts format
// ("0.0.0.0 ads.example.com") or plain format (one domain per line).
// Comments (#) and blank lines are skipped; the format is detected per
// line so mixed files work.
func LoadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open blocklist: %w", err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if name, ok := parseLine(scanner.Text()); ok {
			names = append(names, name)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read blocklist: %w", err)
	}
	return names, nil
}

// parseLine extracts a domain from one blocklist line, or reports that
// the line carries none.
func parseLine(line string) (string, bool) {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	fields := strings.Fields(line)
	switch len(fields) {
	case 0:
		return "", false
	case 1:
		return fields[0], true
	default:
		// hosts format: address first, domain second; sinkhole addresses
		// like 0.0.0.0 and 127.0.0.1 are the only ones seen in practice.
		return fields[1], true
	}
}
