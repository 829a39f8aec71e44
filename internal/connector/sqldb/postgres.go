// Package sqldb implements the SQL-relational connector for PostgreSQL and
// PostGIS.
//
// Architecture:
//
//	Postgres  - database/sql connector over lib/pq or pgx
//	Config    - driver choice and DSN derived from the connection descriptor
//	types.yaml - native type table registered under "sql/postgres"
//
// Metadata comes from information_schema (tables, columns) and pg_catalog
// (constraints, comments). Rows are never read except by Sample.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/lib/pq"

	"github.com/04d4/spinta/internal/core"
	"github.com/04d4/spinta/internal/endpoint"
)

// Kind is the type-table key for PostgreSQL.
const Kind = "sql/postgres"

// PostGIS bookkeeping relations that never become models.
var postgisTables = map[string]bool{
	"spatial_ref_sys":   true,
	"geometry_columns":  true,
	"geography_columns": true,
	"raster_columns":    true,
	"raster_overviews":  true,
}

var (
	_ endpoint.Connector = (*Postgres)(nil)
	_ endpoint.Sampler   = (*Postgres)(nil)
)

// Postgres is the PostgreSQL connector.
type Postgres struct {
	Config *Config
	DB     *sql.DB

	id            string
	defaultSchema string
}

// NewPostgres creates an unconnected PostgreSQL connector.
func NewPostgres(id string, cfg *Config) *Postgres {
	return &Postgres{Config: cfg, id: id}
}

// ID returns the connector template ID.
func (p *Postgres) ID() string { return p.id }

// Kind returns the type-table key.
func (p *Postgres) Kind() string { return Kind }

// Connect opens the pool, pings the server and reads current_schema().
func (p *Postgres) Connect(ctx context.Context) error {
	db, err := sql.Open(p.Config.Driver, p.Config.DSN)
	if err != nil {
		return core.ConnectionError(false, "open database: %v", err)
	}
	db.SetMaxOpenConns(p.Config.MaxOpenConns)
	db.SetMaxIdleConns(p.Config.MaxIdleConns)
	db.SetConnMaxLifetime(p.Config.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return classifyConnect(err)
	}
	var schema sql.NullString
	if err := db.QueryRowContext(ctx, "SELECT current_schema()").Scan(&schema); err != nil {
		db.Close()
		return classifyConnect(err)
	}
	p.DB = db
	p.defaultSchema = schema.String
	return nil
}

// Close releases database resources.
func (p *Postgres) Close() error {
	if p.DB != nil {
		err := p.DB.Close()
		p.DB = nil
		return err
	}
	return nil
}

// ListEntities streams tables and views, system schemas excluded.
func (p *Postgres) ListEntities(ctx context.Context) (endpoint.Iterator[*endpoint.Entity], error) {
	if p.DB == nil {
		return nil, core.ConnectionError(false, "not connected")
	}
	query := `
		SELECT table_schema, table_name, table_type
		FROM information_schema.tables
		WHERE table_schema NOT IN ('pg_catalog', 'information_schema')
		  AND table_schema NOT LIKE 'pg\_toast%'
		  AND table_schema NOT LIKE 'pg\_temp%'
		  AND ($1::text = '' OR table_schema = $1::text)
		ORDER BY table_schema, table_name
	`
	rows, err := p.DB.QueryContext(ctx, query, p.Config.Schema)
	if err != nil {
		return nil, classifyQuery(fmt.Errorf("list entities: %w", err))
	}
	return &entityIterator{rows: rows, defaultSchema: p.defaultSchema}, nil
}

// ListFields returns the columns of entity with keys and comments attached.
func (p *Postgres) ListFields(ctx context.Context, entity *endpoint.Entity) ([]*endpoint.Field, error) {
	if p.DB == nil {
		return nil, core.ConnectionError(false, "not connected")
	}
	columnsQuery := `
		SELECT
			c.column_name,
			c.data_type,
			c.udt_name,
			c.is_nullable,
			c.ordinal_position,
			COALESCE(col_description(pc.oid, c.ordinal_position::int), '')
		FROM information_schema.columns c
		JOIN pg_namespace pn ON pn.nspname = c.table_schema
		JOIN pg_class pc ON pc.relnamespace = pn.oid AND pc.relname = c.table_name
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position
	`
	rows, err := p.DB.QueryContext(ctx, columnsQuery, entity.Schema, entity.Name)
	if err != nil {
		return nil, classifyQuery(fmt.Errorf("list columns of %s: %w", entity.QualifiedName(), err))
	}
	defer rows.Close()

	var fields []*endpoint.Field
	byName := make(map[string]*endpoint.Field)
	for rows.Next() {
		var name, dataType, udtName, isNullable, comment string
		var position int
		if err := rows.Scan(&name, &dataType, &udtName, &isNullable, &position, &comment); err != nil {
			return nil, classifyQuery(fmt.Errorf("scan column of %s: %w", entity.QualifiedName(), err))
		}
		f := &endpoint.Field{
			Name:       name,
			NativeType: nativeType(dataType, udtName),
			Nullable:   isNullable == "YES",
			Position:   position,
			Comment:    comment,
		}
		fields = append(fields, f)
		byName[name] = f
	}
	if err := rows.Err(); err != nil {
		return nil, classifyQuery(fmt.Errorf("list columns of %s: %w", entity.QualifiedName(), err))
	}
	if len(fields) == 0 {
		return nil, core.Wrap(core.KindEntityInspection, false,
			fmt.Errorf("%s: no columns visible (missing privileges or dropped)", entity.QualifiedName()))
	}

	if err := p.attachConstraints(ctx, entity, byName); err != nil {
		return nil, err
	}
	return fields, nil
}

// attachConstraints marks primary key columns and foreign key targets.
// Composite keys are unnested pairwise so each local column points at its
// matching target column.
func (p *Postgres) attachConstraints(ctx context.Context, entity *endpoint.Entity, byName map[string]*endpoint.Field) error {
	constraintsQuery := `
		SELECT
			con.contype::text,
			a.attname,
			COALESCE(fn.nspname, ''),
			COALESCE(fc.relname, ''),
			COALESCE(fa.attname, '')
		FROM pg_constraint con
		JOIN pg_class c ON c.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		CROSS JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS k(attnum, fattnum, ord)
		JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum
		LEFT JOIN pg_class fc ON fc.oid = con.confrelid
		LEFT JOIN pg_namespace fn ON fn.oid = fc.relnamespace
		LEFT JOIN pg_attribute fa ON fa.attrelid = con.confrelid AND fa.attnum = k.fattnum
		WHERE con.contype IN ('p', 'f') AND n.nspname = $1 AND c.relname = $2
		ORDER BY con.contype DESC, con.conname, k.ord
	`
	rows, err := p.DB.QueryContext(ctx, constraintsQuery, entity.Schema, entity.Name)
	if err != nil {
		return classifyQuery(fmt.Errorf("list constraints of %s: %w", entity.QualifiedName(), err))
	}
	defer rows.Close()

	for rows.Next() {
		var contype, column, refSchema, refTable, refColumn string
		if err := rows.Scan(&contype, &column, &refSchema, &refTable, &refColumn); err != nil {
			return classifyQuery(fmt.Errorf("scan constraint of %s: %w", entity.QualifiedName(), err))
		}
		f, ok := byName[column]
		if !ok {
			continue
		}
		switch contype {
		case "p":
			f.PrimaryKey = true
		case "f":
			// first declared foreign key wins for a column
			if f.ForeignKey == nil && refTable != "" {
				f.ForeignKey = &endpoint.ForeignKey{
					Entity: (&endpoint.Entity{Schema: refSchema, Name: refTable}).QualifiedName(),
					Field:  refColumn,
				}
			}
		}
	}
	return classifyQuery(rows.Err())
}

// Sample returns up to limit rows from entity.
func (p *Postgres) Sample(ctx context.Context, entity *endpoint.Entity, limit int) (endpoint.Iterator[endpoint.Record], error) {
	if p.DB == nil {
		return nil, core.ConnectionError(false, "not connected")
	}
	query := fmt.Sprintf("SELECT * FROM %s.%s",
		pq.QuoteIdentifier(entity.Schema), pq.QuoteIdentifier(entity.Name))
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := p.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, classifyQuery(fmt.Errorf("sample %s: %w", entity.QualifiedName(), err))
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, classifyQuery(fmt.Errorf("sample %s: %w", entity.QualifiedName(), err))
	}
	return &rowIterator{rows: rows, cols: cols}, nil
}

// nativeType reports user-defined types (PostGIS geometry, enums, domains)
// and arrays by their udt_name, everything else by data_type.
func nativeType(dataType, udtName string) string {
	switch strings.ToUpper(dataType) {
	case "USER-DEFINED", "ARRAY":
		if udtName != "" {
			return udtName
		}
	}
	return dataType
}

// entityIterator wraps sql.Rows as endpoint.Iterator.
type entityIterator struct {
	rows          *sql.Rows
	defaultSchema string
	current       *endpoint.Entity
	err           error
}

func (it *entityIterator) Next() bool {
	for it.rows.Next() {
		var schema, name, tableType string
		if err := it.rows.Scan(&schema, &name, &tableType); err != nil {
			it.err = classifyQuery(err)
			return false
		}
		if postgisTables[name] {
			continue
		}
		kind := endpoint.KindTable
		if strings.Contains(strings.ToLower(tableType), "view") {
			kind = endpoint.KindView
		}
		it.current = &endpoint.Entity{
			Schema:  schema,
			Name:    name,
			Kind:    kind,
			Default: schema == it.defaultSchema,
		}
		return true
	}
	it.err = classifyQuery(it.rows.Err())
	return false
}

func (it *entityIterator) Value() *endpoint.Entity { return it.current }
func (it *entityIterator) Err() error              { return it.err }
func (it *entityIterator) Close() error            { return it.rows.Close() }

// rowIterator wraps sql.Rows as endpoint.Iterator.
type rowIterator struct {
	rows    *sql.Rows
	cols    []string
	current endpoint.Record
	err     error
}

func (it *rowIterator) Next() bool {
	if !it.rows.Next() {
		it.err = it.rows.Err()
		return false
	}

	values := make([]any, len(it.cols))
	valuePtrs := make([]any, len(it.cols))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := it.rows.Scan(valuePtrs...); err != nil {
		it.err = err
		return false
	}

	record := make(endpoint.Record, len(it.cols))
	for i, col := range it.cols {
		record[col] = values[i]
	}
	it.current = record
	return true
}

func (it *rowIterator) Value() endpoint.Record { return it.current }
func (it *rowIterator) Err() error             { return it.err }
func (it *rowIterator) Close() error           { return it.rows.Close() }
