package report

import (
	"bufio"
	"regexp"
	"strings"
)

// Sentinel comment headers the built-in templates instruct the model to
// emit.
const (
	TuningSentinel = "===== PGMENTOR TUNING RECOMMENDATIONS ====="
	ReviewSentinel = "===== PGMENTOR CODE REVIEW ====="
)

var itemRe = regexp.MustCompile(`^--\s*\d+[.)]\s*(?:Problem|Finding)\s*:\s*(.+)$`)

// Summary counts what the model reported. Parsing is tolerant: output that
// matches nothing yields an empty summary, never an error.
type Summary struct {
	Blocks   int
	Findings int
	Problems []string
}

// Parse scans an annotated script for recommendation blocks. A block opens
// at a sentinel comment line and closes at the first non-comment line.
func Parse(annotated string) Summary {
	var s Summary
	inBlock := false

	scanner := bufio.NewScanner(strings.NewReader(annotated))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if !strings.HasPrefix(line, "--") {
			inBlock = false
			continue
		}

		if strings.Contains(line, TuningSentinel) || strings.Contains(line, ReviewSentinel) {
			s.Blocks++
			inBlock = true
			continue
		}
		if !inBlock {
			continue
		}

		if m := itemRe.FindStringSubmatch(line); m != nil {
			s.Findings++
			s.Problems = append(s.Problems, m[1])
		}
	}

	return s
}
