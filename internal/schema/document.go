package schema

import (
	"fmt"
	"strings"

	"github.com/pgmentor/pgmentor/internal/plan"
)

// Column describes one column of a collected object.
type Column struct {
	Name      string
	DataType  string
	Length    int
	Precision int
	Scale     int
	Nullable  bool
}

// Index describes one index, split into key and included columns.
type Index struct {
	Name            string
	Method          string
	Unique          bool
	Primary         bool
	KeyColumns      []string
	IncludedColumns []string
}

// ObjectSchema holds the collected metadata for one referenced object.
// Failed collections leave Columns and Indexes empty.
type ObjectSchema struct {
	Ref     plan.ObjectReference
	Columns []Column
	Indexes []Index
}

// Document is the ordered schema context for one script.
type Document struct {
	Objects []ObjectSchema
}

// Empty reports whether no object contributed any columns.
func (d *Document) Empty() bool {
	for _, obj := range d.Objects {
		if len(obj.Columns) > 0 {
			return false
		}
	}
	return true
}

// Render produces the schema text included in prompts. Output depends only
// on the document contents, so identical documents render identically.
func (d *Document) Render() string {
	var b strings.Builder
	for i, obj := range d.Objects {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "--- Schema For Table: %s ---\n", obj.Ref)
		b.WriteString("Columns:\n")
		for _, col := range obj.Columns {
			b.WriteString("  " + col.render() + "\n")
		}
		b.WriteString("Indexes:\n")
		for _, idx := range obj.Indexes {
			b.WriteString("  " + idx.render() + "\n")
		}
	}
	return b.String()
}

func (c Column) render() string {
	typ := c.DataType
	switch {
	case c.Length > 0:
		typ = fmt.Sprintf("%s(%d)", c.DataType, c.Length)
	case c.Precision > 0:
		typ = fmt.Sprintf("%s(%d,%d)", c.DataType, c.Precision, c.Scale)
	}
	null := "NOT NULL"
	if c.Nullable {
		null = "NULL"
	}
	return fmt.Sprintf("%s %s %s", c.Name, typ, null)
}

func (i Index) render() string {
	qualities := []string{i.Method}
	if i.Unique {
		qualities = append(qualities, "unique")
	}
	if i.Primary {
		qualities = append(qualities, "primary")
	}

	s := fmt.Sprintf("INDEX %s [%s] KEY (%s)",
		i.Name, strings.Join(qualities, ", "), strings.Join(i.KeyColumns, ", "))
	if len(i.IncludedColumns) > 0 {
		s += fmt.Sprintf(" INCLUDE (%s)", strings.Join(i.IncludedColumns, ", "))
	}
	return s
}
