package plan

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/pgmentor/pgmentor/internal/pipeline"
)

const planRootMarker = "<explain"

type fragmentDoc struct {
	XMLName xml.Name    `xml:"explain"`
	Queries []queryBody `xml:"Query"`
}

type queryBody struct {
	Raw string `xml:",innerxml"`
}

// Merge combines per-statement fragments into a single well-formed XML
// document. The structural strategy imports every Query node under one
// canonical root; if any fragment resists structural handling, the whole
// set is wrapped verbatim and the document is marked degraded. A document
// that still fails the well-formedness check aborts the item.
func Merge(fragments []Fragment, database string, mode Mode) (*Document, error) {
	var planFrags []Fragment
	for _, f := range fragments {
		if strings.Contains(f.XML, planRootMarker) {
			planFrags = append(planFrags, f)
		}
	}
	if len(planFrags) == 0 {
		return nil, &pipeline.Error{
			Kind:  pipeline.KindNoPlanFound,
			Stage: pipeline.StageMerge,
			Err:   fmt.Errorf("no plan fragments produced for this script"),
		}
	}

	doc := &Document{
		Database:  database,
		Actual:    mode == Actual,
		Fragments: planFrags,
	}

	merged, err := structuralMerge(planFrags, database)
	if err != nil {
		doc.Degraded = true
		doc.DegradedReason = err.Error()
		merged = wrapFragments(planFrags, database)
	}

	if err := checkWellFormed(merged); err != nil {
		return nil, &pipeline.Error{
			Kind:  pipeline.KindPlanMerge,
			Stage: pipeline.StageMerge,
			Err:   fmt.Errorf("merged plan is not well-formed XML: %w", err),
		}
	}

	doc.MergedXML = merged
	return doc, nil
}

func structuralMerge(fragments []Fragment, database string) (string, error) {
	var b strings.Builder
	b.WriteString(`<explain xmlns="` + Namespace + `" database="` + escapeAttr(database) + `">` + "\n")

	for i, f := range fragments {
		var doc fragmentDoc
		if err := xml.Unmarshal([]byte(f.XML), &doc); err != nil {
			return "", fmt.Errorf("decoding fragment %d: %w", i+1, err)
		}
		if doc.XMLName.Space != Namespace {
			return "", fmt.Errorf("fragment %d root is not an explain document", i+1)
		}
		if len(doc.Queries) == 0 {
			return "", fmt.Errorf("fragment %d has no Query nodes", i+1)
		}
		for _, q := range doc.Queries {
			b.WriteString("  <Query>")
			b.WriteString(q.Raw)
			b.WriteString("</Query>\n")
		}
	}

	b.WriteString("</explain>")
	return b.String(), nil
}

var prologRe = regexp.MustCompile(`^\s*<\?xml[^>]*\?>`)

func wrapFragments(fragments []Fragment, database string) string {
	var b strings.Builder
	b.WriteString(`<explain-batch database="` + escapeAttr(database) +
		`" statements="` + strconv.Itoa(len(fragments)) + `">` + "\n")
	b.WriteString("<!-- structural merge unavailable; fragments wrapped verbatim -->\n")
	for _, f := range fragments {
		b.WriteString(strings.TrimSpace(prologRe.ReplaceAllString(f.XML, "")))
		b.WriteString("\n")
	}
	b.WriteString("</explain-batch>")
	return b.String()
}

func checkWellFormed(doc string) error {
	dec := xml.NewDecoder(strings.NewReader(doc))
	for {
		if _, err := dec.Token(); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

func escapeAttr(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

// StatementCount reports how many per-statement plans the merged document
// contains.
func (d *Document) StatementCount() int {
	md, err := parseMerged(d.MergedXML)
	if err != nil {
		return len(d.Fragments)
	}
	n := len(md.Queries)
	for _, child := range md.Explains {
		n += len(child.Queries)
	}
	if n == 0 {
		return len(d.Fragments)
	}
	return n
}
