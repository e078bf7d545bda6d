package ai

import "regexp"

var (
	leadingFence  = regexp.MustCompile("^\\s*```[a-zA-Z0-9_+-]*[ \t]*\r?\n")
	trailingFence = regexp.MustCompile("\r?\n[ \t]*```\\s*$")
)

// StripFences removes one leading and one trailing markdown code fence
// when the model wraps its output despite instructions. Fences inside the
// body stay, and unfenced text passes through unchanged, so re-applying it
// to clean output is a no-op.
func StripFences(s string) string {
	s = leadingFence.ReplaceAllString(s, "")
	return trailingFence.ReplaceAllString(s, "")
}
