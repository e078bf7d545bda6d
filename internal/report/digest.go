package report

import (
	"fmt"
	"io"
)

type textWriter struct {
	w   io.Writer
	err error
}

func (tw *textWriter) printf(format string, args ...any) {
	if tw.err != nil {
		return
	}
	_, tw.err = fmt.Fprintf(tw.w, format, args...)
}

// WriteDigest renders the short human summary stored next to each
// annotated script.
func WriteDigest(w io.Writer, s Summary) error {
	tw := &textWriter{w: w}

	tw.printf("Analysis Summary\n")
	tw.printf("================\n\n")

	if s.Blocks == 0 {
		tw.printf("No recommendation blocks found in the response.\n")
		return tw.err
	}

	tw.printf("Recommendation blocks: %d\n", s.Blocks)
	tw.printf("Findings:              %d\n", s.Findings)

	if len(s.Problems) > 0 {
		tw.printf("\n")
		for i, p := range s.Problems {
			tw.printf("%2d. %s\n", i+1, p)
		}
	}

	return tw.err
}
