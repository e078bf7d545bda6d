package schema

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/pgmentor/pgmentor/internal/pipeline"
	"github.com/pgmentor/pgmentor/internal/plan"
)

// Collector reads column and index metadata for plan-referenced objects.
// Each object uses its own short-lived connection so one wedged lookup
// cannot poison the rest.
type Collector struct {
	connStr string
	logger  *zap.Logger
}

func NewCollector(connStr string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{connStr: connStr, logger: logger}
}

// Collect gathers schema context for every reference, preserving order.
// Per-object failures degrade to empty sections rather than aborting.
// System catalog objects and references bound to a database other than
// the connected one are skipped without querying.
func (c *Collector) Collect(ctx context.Context, database string, refs []plan.ObjectReference) *Document {
	doc := &Document{}
	for _, ref := range refs {
		if IsSystemObject(ref) {
			c.logger.Debug("skipping system object", zap.String("object", ref.String()))
			continue
		}
		if database != "" && !strings.EqualFold(ref.Database, database) {
			c.logger.Debug("skipping cross-database reference",
				zap.String("object", ref.String()),
				zap.String("database", ref.Database))
			continue
		}

		obj := ObjectSchema{Ref: ref}
		if err := c.collectObject(ctx, &obj); err != nil {
			c.logger.Warn("schema collection failed",
				zap.Error(&pipeline.Error{
					Kind:   pipeline.KindSchemaCollection,
					Stage:  pipeline.StageSchema,
					Object: ref.String(),
					Err:    err,
				}))
		}
		doc.Objects = append(doc.Objects, obj)
	}
	return doc
}

// IsSystemObject reports whether the reference lives in a reserved system
// namespace.
func IsSystemObject(ref plan.ObjectReference) bool {
	schema := strings.ToLower(ref.Schema)
	return schema == "pg_catalog" ||
		schema == "information_schema" ||
		strings.HasPrefix(schema, "pg_toast")
}

func (c *Collector) collectObject(ctx context.Context, obj *ObjectSchema) error {
	conn, err := pgx.Connect(ctx, c.connStr)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, "SET statement_timeout = '30s'"); err != nil {
		return fmt.Errorf("setting metadata timeout: %w", err)
	}

	cols, err := c.describeColumns(ctx, conn, obj.Ref)
	if err != nil {
		c.logger.Debug("describe failed, using catalog fallback",
			zap.String("object", obj.Ref.String()),
			zap.Error(err))
		cols, err = catalogColumns(ctx, conn, obj.Ref)
		if err != nil {
			return fmt.Errorf("collecting columns: %w", err)
		}
	}
	obj.Columns = cols

	idxs, err := collectIndexes(ctx, conn, obj.Ref)
	if err != nil {
		// Index metadata is advisory; keep the columns.
		c.logger.Warn("index collection failed",
			zap.String("object", obj.Ref.String()),
			zap.Error(err))
		return nil
	}
	obj.Indexes = idxs
	return nil
}

// describeColumns reads the object's column list from a zero-row
// projection, which works for any selectable relation including views.
func (c *Collector) describeColumns(ctx context.Context, conn *pgx.Conn, ref plan.ObjectReference) ([]Column, error) {
	ident := pgx.Identifier{ref.Schema, ref.Name}.Sanitize()

	rows, err := conn.Query(ctx, "SELECT * FROM "+ident+" LIMIT 0")
	if err != nil {
		return nil, fmt.Errorf("describing %s: %w", ident, err)
	}
	fields := append([]pgconn.FieldDescription(nil), rows.FieldDescriptions()...)
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("describing %s: %w", ident, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("object %s has no columns", ident)
	}

	cols := make([]Column, len(fields))
	for i, fd := range fields {
		col := Column{Name: fd.Name, Nullable: true}
		if typ, ok := conn.TypeMap().TypeForOID(fd.DataTypeOID); ok {
			col.DataType = typ.Name
		} else {
			col.DataType = typeNameByOID(ctx, conn, fd.DataTypeOID)
		}
		applyTypmod(col.DataType, fd.TypeModifier, &col)
		cols[i] = col
	}

	fillNullability(ctx, conn, fields, cols)
	return cols, nil
}

func typeNameByOID(ctx context.Context, conn *pgx.Conn, oid uint32) string {
	var name string
	err := conn.QueryRow(ctx, "SELECT format_type($1::oid, NULL)",
		strconv.FormatUint(uint64(oid), 10)).Scan(&name)
	if err != nil {
		return fmt.Sprintf("oid(%d)", oid)
	}
	return name
}

type attrKey struct {
	rel uint32
	num int16
}

// fillNullability resolves NOT NULL constraints for described columns by
// their origin (table, attribute) pair. Columns without an origin, such as
// computed view columns, stay nullable.
func fillNullability(ctx context.Context, conn *pgx.Conn, fields []pgconn.FieldDescription, cols []Column) {
	byTable := make(map[uint32][]int16)
	for _, fd := range fields {
		if fd.TableOID == 0 {
			continue
		}
		byTable[fd.TableOID] = append(byTable[fd.TableOID], int16(fd.TableAttributeNumber))
	}

	notNull := make(map[attrKey]bool)
	for rel, nums := range byTable {
		rows, err := conn.Query(ctx,
			"SELECT attnum, attnotnull FROM pg_catalog.pg_attribute WHERE attrelid = $1::oid AND attnum = ANY($2)",
			strconv.FormatUint(uint64(rel), 10), nums)
		if err != nil {
			continue
		}
		for rows.Next() {
			var num int16
			var nn bool
			if rows.Scan(&num, &nn) == nil {
				notNull[attrKey{rel, num}] = nn
			}
		}
		rows.Close()
	}

	for i, fd := range fields {
		if nn, ok := notNull[attrKey{fd.TableOID, int16(fd.TableAttributeNumber)}]; ok {
			cols[i].Nullable = !nn
		}
	}
}

const catalogColumnsSQL = `
SELECT a.attname,
       t.typname,
       a.atttypmod,
       NOT a.attnotnull AS nullable
FROM pg_catalog.pg_attribute a
JOIN pg_catalog.pg_type t ON t.oid = a.atttypid
WHERE a.attrelid = $1::regclass
  AND a.attnum > 0
  AND NOT a.attisdropped
ORDER BY a.attnum`

// catalogColumns is the fallback path for objects the zero-row projection
// cannot describe.
func catalogColumns(ctx context.Context, conn *pgx.Conn, ref plan.ObjectReference) ([]Column, error) {
	ident := pgx.Identifier{ref.Schema, ref.Name}.Sanitize()

	rows, err := conn.Query(ctx, catalogColumnsSQL, ident)
	if err != nil {
		return nil, fmt.Errorf("querying pg_attribute for %s: %w", ident, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var col Column
		var typmod int32
		if err := rows.Scan(&col.Name, &col.DataType, &typmod, &col.Nullable); err != nil {
			return nil, fmt.Errorf("scanning column row: %w", err)
		}
		applyTypmod(col.DataType, typmod, &col)
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading column rows: %w", err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("object %s has no columns", ident)
	}
	return cols, nil
}

const indexesSQL = `
SELECT ic.relname AS index_name,
       am.amname AS index_type,
       ix.indisunique,
       ix.indisprimary,
       a.attname,
       k.ord <= ix.indnkeyatts AS is_key
FROM pg_catalog.pg_index ix
JOIN pg_catalog.pg_class ic ON ic.oid = ix.indexrelid
JOIN pg_catalog.pg_am am ON am.oid = ic.relam
JOIN LATERAL unnest(ix.indkey) WITH ORDINALITY AS k(attnum, ord) ON true
LEFT JOIN pg_catalog.pg_attribute a
       ON a.attrelid = ix.indrelid AND a.attnum = k.attnum
WHERE ix.indrelid = $1::regclass
ORDER BY ic.relname, k.ord`

func collectIndexes(ctx context.Context, conn *pgx.Conn, ref plan.ObjectReference) ([]Index, error) {
	ident := pgx.Identifier{ref.Schema, ref.Name}.Sanitize()

	rows, err := conn.Query(ctx, indexesSQL, ident)
	if err != nil {
		return nil, fmt.Errorf("querying indexes for %s: %w", ident, err)
	}
	defer rows.Close()

	var idxs []Index
	byName := make(map[string]int)
	for rows.Next() {
		var (
			name, method           string
			unique, primary, isKey bool
			attname                *string
		)
		if err := rows.Scan(&name, &method, &unique, &primary, &attname, &isKey); err != nil {
			return nil, fmt.Errorf("scanning index row: %w", err)
		}

		pos, ok := byName[name]
		if !ok {
			idxs = append(idxs, Index{Name: name, Method: method, Unique: unique, Primary: primary})
			pos = len(idxs) - 1
			byName[name] = pos
		}

		column := "(expression)"
		if attname != nil {
			column = *attname
		}
		if isKey {
			idxs[pos].KeyColumns = append(idxs[pos].KeyColumns, column)
		} else {
			idxs[pos].IncludedColumns = append(idxs[pos].IncludedColumns, column)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading index rows: %w", err)
	}
	return idxs, nil
}

// applyTypmod unpacks a pg_attribute type modifier. varchar stores
// length+4; numeric packs precision and scale into the high and low halves
// after the same offset.
func applyTypmod(typeName string, typmod int32, col *Column) {
	if typmod < 4 {
		return
	}
	switch typeName {
	case "varchar", "bpchar", "character varying", "character":
		col.Length = int(typmod - 4)
	case "numeric", "decimal":
		mod := typmod - 4
		col.Precision = int(mod >> 16)
		col.Scale = int(mod & 0xFFFF)
	}
}
