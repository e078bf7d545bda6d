package plan

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strings"

	"github.com/pgmentor/pgmentor/internal/pipeline"
)

// mergedDoc decodes only the shapes object extraction needs: the database
// binding, statement boundaries, and per-node relation info. Both merged
// layouts are covered; wrapped documents surface their fragments as nested
// explain children.
type mergedDoc struct {
	XMLName  xml.Name
	Database string        `xml:"database,attr"`
	Queries  []mergedQuery `xml:"Query"`
	Explains []mergedChild `xml:"explain"`
}

type mergedChild struct {
	Queries []mergedQuery `xml:"Query"`
}

type mergedQuery struct {
	Plan planNode `xml:"Plan"`
}

type planNode struct {
	RelationName string     `xml:"Relation-Name"`
	Schema       string     `xml:"Schema"`
	Children     []planNode `xml:"Plans>Plan"`
}

func parseMerged(mergedXML string) (*mergedDoc, error) {
	var md mergedDoc
	if err := xml.Unmarshal([]byte(mergedXML), &md); err != nil {
		return nil, err
	}
	return &md, nil
}

// ExtractObjects walks every plan node in the merged document and returns
// the distinct relations it references, ordered case-insensitively.
// References without a schema or database binding and session-temp
// relations are excluded. Extraction is read-only: running it twice on the
// same document yields the same result.
func ExtractObjects(doc *Document) ([]ObjectReference, error) {
	md, err := parseMerged(doc.MergedXML)
	if err != nil {
		return nil, &pipeline.Error{
			Kind:  pipeline.KindPlanMerge,
			Stage: pipeline.StageExtract,
			Err:   fmt.Errorf("parsing merged plan: %w", err),
		}
	}

	database := md.Database
	if database == "" {
		database = doc.Database
	}

	seen := make(map[string]bool)
	var refs []ObjectReference

	var visit func(n planNode)
	visit = func(n planNode) {
		if ref, ok := makeRef(database, n.Schema, n.RelationName); ok {
			key := refKey(ref)
			if !seen[key] {
				seen[key] = true
				refs = append(refs, ref)
			}
		}
		for _, child := range n.Children {
			visit(child)
		}
	}

	for _, q := range md.Queries {
		visit(q.Plan)
	}
	for _, child := range md.Explains {
		for _, q := range child.Queries {
			visit(q.Plan)
		}
	}

	sort.Slice(refs, func(i, j int) bool { return refKey(refs[i]) < refKey(refs[j]) })
	return refs, nil
}

func makeRef(database, schema, name string) (ObjectReference, bool) {
	if database == "" || schema == "" || name == "" {
		return ObjectReference{}, false
	}
	if strings.HasPrefix(strings.ToLower(schema), "pg_temp") {
		return ObjectReference{}, false
	}
	if strings.HasPrefix(name, "#") {
		return ObjectReference{}, false
	}
	return ObjectReference{Database: database, Schema: schema, Name: name}, true
}

func refKey(r ObjectReference) string {
	return strings.ToLower(r.Database + "|" + r.Schema + "|" + r.Name)
}
