// Package catalog holds the immutable part-catalog snapshot: one row of
// descriptive attributes per part plus a dense embedding matrix aligned by
// row index. The snapshot is loaded once at process start — from a pair of
// files or from a Postgres table — and shared read-only by every session,
// so no locking is needed after construction.
package catalog

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Sentinel errors returned by the load path. All load failures are fatal to
// process startup; the catalog is never reloaded at runtime.
var (
	// ErrLengthMismatch indicates the attribute rows and the embedding
	// vectors do not have the same count or order length.
	ErrLengthMismatch = errors.New("catalog: row and vector counts differ")

	// ErrEmpty indicates the snapshot contains no rows.
	ErrEmpty = errors.New("catalog: snapshot is empty")

	// ErrRaggedVectors indicates the embedding vectors do not all share one
	// dimension.
	ErrRaggedVectors = errors.New("catalog: embedding vectors have inconsistent dimensions")
)

// Row is one immutable catalog entry. Identity is Index, which is stable
// for the lifetime of the loaded snapshot.
type Row struct {
	// Index is the position of this row in the snapshot and in the
	// embedding matrix.
	Index int

	// ItemID is the catalog's own part identifier. Delivery dedup is keyed
	// on this value.
	ItemID string

	// Description is the catalog's part description (e.g. "2 1/2 FIRELOCK TEE").
	Description string

	// Manufacturer is the manufacturer display name.
	Manufacturer string

	// Extra holds the remaining source columns keyed by header name.
	// Values are kept as raw strings; [Row.Wire] converts them to
	// wire-safe scalars.
	Extra map[string]string
}

// Index is the loaded catalog snapshot. It is read-only after construction
// and safe for concurrent use by any number of sessions.
type Index struct {
	rows    []Row
	vectors [][]float32
	dims    int
}

// New builds an Index from parallel row and vector slices. The two inputs
// must have equal length and every vector must share one dimension.
func New(rows []Row, vectors [][]float32) (*Index, error) {
	if len(rows) != len(vectors) {
		return nil, fmt.Errorf("%w: %d rows, %d vectors", ErrLengthMismatch, len(rows), len(vectors))
	}
	if len(rows) == 0 {
		return nil, ErrEmpty
	}

	dims := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dims {
			return nil, fmt.Errorf("%w: vector %d has %d dims, want %d", ErrRaggedVectors, i, len(v), dims)
		}
	}
	for i := range rows {
		rows[i].Index = i
	}

	return &Index{rows: rows, vectors: vectors, dims: dims}, nil
}

// Len returns the number of catalog rows.
func (ix *Index) Len() int { return len(ix.rows) }

// Dimensions returns the embedding dimension shared by all vectors.
func (ix *Index) Dimensions() int { return ix.dims }

// Row returns the row at position i. i must be a valid row index, as
// returned by the ranker.
func (ix *Index) Row(i int) Row { return ix.rows[i] }

// Rows returns the full row slice. Callers must not mutate it.
func (ix *Index) Rows() []Row { return ix.rows }

// Vectors returns the embedding matrix, one row per catalog row. Callers
// must not mutate it.
func (ix *Index) Vectors() [][]float32 { return ix.vectors }

// LoadFiles reads the catalog snapshot from a CSV attribute file and a JSON
// vector file. The CSV must carry a header row; the item_id, description,
// and manufacturer_name columns are lifted into the corresponding Row
// fields, all other columns land in Row.Extra. The JSON file must be an
// array of equal-length float arrays in the same row order as the CSV.
func LoadFiles(rowsPath, vectorsPath string) (*Index, error) {
	rows, err := readRowsCSV(rowsPath)
	if err != nil {
		return nil, err
	}
	vectors, err := readVectorsJSON(vectorsPath)
	if err != nil {
		return nil, err
	}
	ix, err := New(rows, vectors)
	if err != nil {
		return nil, fmt.Errorf("catalog: load %q + %q: %w", rowsPath, vectorsPath, err)
	}
	return ix, nil
}

// Lifted CSV column names. Matching is case-insensitive.
const (
	colItemID       = "item_id"
	colDescription  = "description"
	colManufacturer = "manufacturer_name"
)

func readRowsCSV(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open rows %q: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // validated against the header below

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("catalog: read csv header %q: %w", path, err)
	}

	var rows []Row
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("catalog: read csv record %q: %w", path, err)
		}
		if len(record) != len(header) {
			return nil, fmt.Errorf("catalog: csv record %d has %d fields, header has %d", len(rows)+1, len(record), len(header))
		}

		row := Row{Extra: make(map[string]string)}
		for i, col := range header {
			switch strings.ToLower(strings.TrimSpace(col)) {
			case colItemID:
				row.ItemID = record[i]
			case colDescription:
				row.Description = record[i]
			case colManufacturer:
				row.Manufacturer = record[i]
			default:
				row.Extra[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func readVectorsJSON(path string) ([][]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open vectors %q: %w", path, err)
	}
	var vectors [][]float32
	if err := json.Unmarshal(data, &vectors); err != nil {
		return nil, fmt.Errorf("catalog: parse vectors %q: %w", path, err)
	}
	return vectors, nil
}
