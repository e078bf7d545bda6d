package output

import (
	"fmt"
	"io"

	"github.com/pgmentor/pgmentor/internal/batch"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
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

// RenderBatchText prints the per-item outcomes and the artifact location
// for a completed batch.
func RenderBatchText(w io.Writer, result *batch.Result) error {
	tw := &textWriter{w: w}

	tw.printf("%s%sBatch Results%s\n\n", colorBold, colorCyan, colorReset)

	for _, item := range result.Items {
		label, color := statusFormat(item.Status)
		tw.printf("  %s%-8s%s %s", color, label, colorReset, item.BaseName)
		if item.Status == batch.StatusFailed {
			tw.printf("\n  %s→ %s%s\n", colorDim, item.Err, colorReset)
			continue
		}
		tw.printf(" (%d findings)\n", item.Findings)
		if item.Status == batch.StatusDegraded {
			tw.printf("  %s→ plans wrapped verbatim; recommendations may be less precise%s\n", colorDim, colorReset)
		}
	}

	tw.printf("\n")
	failed := result.Failed()
	if failed == 0 {
		tw.printf("%s%sAll %d scripts analyzed.%s\n", colorBold, colorGreen, len(result.Items), colorReset)
	} else {
		tw.printf("%s%s%d of %d scripts failed.%s\n", colorBold, colorRed, failed, len(result.Items), colorReset)
	}
	tw.printf("%sArtifacts: %s%s\n", colorDim, result.Dir, colorReset)

	return tw.err
}

func statusFormat(s string) (string, string) {
	switch s {
	case batch.StatusFailed:
		return "FAILED", colorRed
	case batch.StatusDegraded:
		return "DEGRADED", colorYellow
	default:
		return "OK", colorGreen
	}
}
