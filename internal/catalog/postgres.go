package catalog

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"
)

// identPattern restricts the configurable table name to a plain (optionally
// schema-qualified) identifier, since table names cannot be bound as query
// parameters.
var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)

// LoadPostgres reads the catalog snapshot from a Postgres table with a
// pgvector embedding column. The table must have item_id, description,
// manufacturer_name, and embedding columns; rows are ordered by item_id so
// the snapshot's row indices are deterministic across restarts. The
// connection is closed before returning — the loaded Index has no runtime
// database dependency.
func LoadPostgres(ctx context.Context, dsn, table string) (*Index, error) {
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("catalog: invalid table name %q", table)
	}

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: connect postgres: %w", err)
	}
	defer conn.Close(ctx)

	q := fmt.Sprintf(`
		SELECT item_id, description, manufacturer_name, embedding
		FROM   %s
		ORDER  BY item_id`, table)

	pgRows, err := conn.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("catalog: query %s: %w", table, err)
	}

	type loaded struct {
		row Row
		vec []float32
	}
	records, err := pgx.CollectRows(pgRows, func(r pgx.CollectableRow) (loaded, error) {
		var (
			l   loaded
			vec pgvector.Vector
		)
		if err := r.Scan(&l.row.ItemID, &l.row.Description, &l.row.Manufacturer, &vec); err != nil {
			return loaded{}, err
		}
		l.vec = vec.Slice()
		return l, nil
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: scan %s: %w", table, err)
	}

	rows := make([]Row, len(records))
	vectors := make([][]float32, len(records))
	for i, rec := range records {
		rows[i] = rec.row
		vectors[i] = rec.vec
	}

	ix, err := New(rows, vectors)
	if err != nil {
		return nil, fmt.Errorf("catalog: load from %s: %w", table, err)
	}
	return ix, nil
}
