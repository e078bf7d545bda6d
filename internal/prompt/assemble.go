package prompt

import (
	"strings"

	"github.com/pgmentor/pgmentor/internal/plan"
	"github.com/pgmentor/pgmentor/internal/schema"
	"github.com/pgmentor/pgmentor/internal/script"
)

// Context carries everything assembly may include in a prompt.
type Context struct {
	Script        script.Input
	Plan          *plan.Document
	Schema        *schema.Document
	EngineVersion string
	Template      Template
}

const (
	sectionEngine = "==== ENGINE VERSION ===="
	sectionScript = "==== SQL SCRIPT ===="
	sectionSchema = "==== SCHEMA ===="
	sectionPlan   = "==== EXECUTION PLAN (XML) ===="
)

// Assemble builds the outbound prompt. The template body is copied
// verbatim and context arrives only as appended delimited sections.
// Review prompts carry the script alone.
func Assemble(c Context) string {
	var b strings.Builder
	b.WriteString(c.Template.Body)
	b.WriteString("\n\n")

	if c.Template.Type == Tuning {
		writeSection(&b, sectionEngine, c.EngineVersion)
	}
	writeSection(&b, sectionScript, c.Script.SQLText)
	if c.Template.Type == Tuning {
		if c.Schema != nil {
			writeSection(&b, sectionSchema, c.Schema.Render())
		}
		if c.Plan != nil {
			writeSection(&b, sectionPlan, c.Plan.MergedXML)
		}
	}
	return b.String()
}

func writeSection(b *strings.Builder, header, body string) {
	b.WriteString(header)
	b.WriteString("\n")
	b.WriteString(strings.TrimRight(body, "\n"))
	b.WriteString("\n\n")
}
