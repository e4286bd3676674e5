package binding

import (
	"database/sql/driver"
	"time"
)

// Kind identifies the storage class of a cell value. It mirrors the
// storage classes of the embedded engine rather than Go types: every
// mapped Go type collapses into one of these before execution.
type Kind uint8

const (
	KindNull Kind = iota
	KindInteger
	KindReal
	KindText
	KindBlob
)

// Cell holds one column value of a row image. Text and Blob values share
// a single reusable byte buffer that grows in place and is never handed
// out to callers, so a cell can be overwritten row after row without
// allocating.
type Cell struct {
	Kind    Kind
	Integer int64
	Real    float64

	// buf backs both text and blob values. Grown on demand, reused
	// across rows.
	buf []byte
}

// SetNull clears the cell to SQL NULL. The byte buffer is retained.
func (c *Cell) SetNull() {
	c.Kind = KindNull
	c.buf = c.buf[:0]
}

// SetInteger stores an integer value.
func (c *Cell) SetInteger(v int64) {
	c.Kind = KindInteger
	c.Integer = v
}

// SetBool stores a boolean as 0/1, matching the engine's integer storage.
func (c *Cell) SetBool(v bool) {
	c.Kind = KindInteger
	if v {
		c.Integer = 1
	} else {
		c.Integer = 0
	}
}

// SetReal stores a floating-point value.
func (c *Cell) SetReal(v float64) {
	c.Kind = KindReal
	c.Real = v
}

// SetText copies s into the cell's reusable buffer.
func (c *Cell) SetText(s string) {
	c.Kind = KindText
	c.buf = append(c.buf[:0], s...)
}

// SetBlob copies p into the cell's reusable buffer.
func (c *Cell) SetBlob(p []byte) {
	c.Kind = KindBlob
	c.buf = append(c.buf[:0], p...)
}

// IsNull reports whether the cell holds SQL NULL.
func (c *Cell) IsNull() bool { return c.Kind == KindNull }

// Text returns the cell's text value. Valid only for KindText.
func (c *Cell) Text() string { return string(c.buf) }

// Blob returns a copy of the cell's blob value. Valid only for KindBlob.
func (c *Cell) Blob() []byte {
	out := make([]byte, len(c.buf))
	copy(out, c.buf)
	return out
}

// Bool interprets an integer cell as a boolean.
func (c *Cell) Bool() bool { return c.Integer != 0 }

// Value implements driver.Valuer so a bound cell can be passed directly
// as a statement argument.
func (c *Cell) Value() (driver.Value, error) {
	switch c.Kind {
	case KindNull:
		return nil, nil
	case KindInteger:
		return c.Integer, nil
	case KindReal:
		return c.Real, nil
	case KindText:
		return string(c.buf), nil
	case KindBlob:
		// The driver may retain the argument past the call, so hand it
		// a copy rather than the reusable buffer.
		return c.Blob(), nil
	}
	return nil, nil
}

// Scan implements sql.Scanner so a bound cell can receive a result
// column directly from the driver.
func (c *Cell) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		c.SetNull()
	case int64:
		c.SetInteger(v)
	case float64:
		c.SetReal(v)
	case bool:
		c.SetBool(v)
	case []byte:
		c.SetBlob(v)
	case string:
		c.SetText(v)
	case time.Time:
		c.SetText(v.UTC().Format(time.RFC3339Nano))
	default:
		c.SetNull()
	}
	return nil
}

// Image is the in-memory representation of one row's column values for a
// mapped type: a fixed layout of cells plus a monotonically increasing
// version. The cells are reused across calls; any caller-side mutation
// that can invalidate previously derived cell addresses must be followed
// by Touch so stale bindings are detected and refreshed.
type Image struct {
	cells   []Cell
	version uint64
}

// NewImage allocates an image with a fixed number of cells. The version
// starts at 1 so a zero binding version is always stale.
func NewImage(columns int) *Image {
	return &Image{cells: make([]Cell, columns), version: 1}
}

// Cell returns the cell at column index i.
func (im *Image) Cell(i int) *Cell { return &im.cells[i] }

// Len returns the number of columns in the image.
func (im *Image) Len() int { return len(im.cells) }

// Version returns the image's current revision.
func (im *Image) Version() uint64 { return im.version }

// Touch records a caller-side mutation by bumping the revision.
func (im *Image) Touch() { im.version++ }

// Reset nulls every cell, keeping buffers and version.
func (im *Image) Reset() {
	for i := range im.cells {
		im.cells[i].SetNull()
	}
}
