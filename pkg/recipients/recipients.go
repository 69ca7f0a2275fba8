package recipients

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Column names the templates read. Other columns are kept but unused.
const (
	ColumnName     = "name"
	ColumnEmail    = "email"
	ColumnRole     = "role"
	ColumnDivision = "division"
)

// ErrTableNotFound is matched by errors.Is when the table file does not exist.
var ErrTableNotFound = errors.New("recipient table not found")

// TableNotFoundError reports the path of a missing recipient table.
type TableNotFoundError struct {
	Path string
	Err  error
}

func (e *TableNotFoundError) Error() string {
	return fmt.Sprintf("recipient table %s not found", e.Path)
}

func (e *TableNotFoundError) Is(target error) bool {
	return target == ErrTableNotFound
}

func (e *TableNotFoundError) Unwrap() error {
	return e.Err
}

// Recipient is one row of the table. Columns the row did not supply are
// absent rather than empty.
type Recipient struct {
	fields map[string]string
}

// New builds a Recipient from a column map, mostly for tests and previews.
func New(fields map[string]string) Recipient {
	cp := make(map[string]string, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return Recipient{fields: cp}
}

// Get returns the value of column and whether the row supplied it.
func (r Recipient) Get(column string) (string, bool) {
	v, ok := r.fields[column]
	return v, ok
}

// Name is the name column, empty when absent.
func (r Recipient) Name() string {
	return r.fields[ColumnName]
}

// Email is the email column, empty when absent.
func (r Recipient) Email() string {
	return r.fields[ColumnEmail]
}

// Fields returns a copy of the row.
func (r Recipient) Fields() map[string]string {
	cp := make(map[string]string, len(r.fields))
	for k, v := range r.fields {
		cp[k] = v
	}
	return cp
}

// Reader parses recipient tables. The zero value reads comma separated files.
type Reader struct {
	// Comma is the field delimiter; 0 means ','.
	Comma rune
}

// Read loads the table at path, preserving row order.
func (r Reader) Read(path string) ([]Recipient, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &TableNotFoundError{Path: path, Err: err}
		}
		return nil, fmt.Errorf("failed to open recipient table: %w", err)
	}
	defer f.Close()

	recipients, err := r.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse recipient table %s: %w", path, err)
	}
	return recipients, nil
}

// Parse reads a table from src. Short rows leave their trailing columns
// unset and cells past the header are dropped.
func (r Reader) Parse(src io.Reader) ([]Recipient, error) {
	cr := csv.NewReader(src)
	if r.Comma != 0 {
		cr.Comma = r.Comma
	}
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var out []Recipient
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		fields := make(map[string]string, len(header))
		for i, col := range header {
			if i >= len(row) {
				break
			}
			fields[col] = row[i]
		}
		out = append(out, Recipient{fields: fields})
	}
	return out, nil
}
