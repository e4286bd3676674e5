package binding

// Bind is a single parameter or result slot pointing at a cell inside an
// image.
type Bind struct {
	Cell *Cell
}

// Binding is an ordered, fixed-length sequence of slots plus a version
// recording which image revision the slot addresses were derived from.
// A binding is trusted for execution only while its stored source-image
// versions (tracked by the owning statement cache) match the images'
// current versions; on mismatch Rebind re-derives the slot addresses
// against the same buffers.
type Binding struct {
	binds   []Bind
	version uint64
}

// NewBinding allocates a binding with a fixed number of slots. The
// version starts at 0, which never matches a live image, forcing an
// initial Rebind.
func NewBinding(slots int) *Binding {
	return &Binding{binds: make([]Bind, slots)}
}

// Len returns the number of slots.
func (b *Binding) Len() int { return len(b.binds) }

// Slot returns slot i.
func (b *Binding) Slot(i int) *Bind { return &b.binds[i] }

// Version returns the binding's revision. Zero means never bound.
func (b *Binding) Version() uint64 { return b.version }

// Rebind points the slots at the given cells, in order, and bumps the
// binding version. The cell count must equal the slot count; a mismatch
// is a wiring bug in the generated metadata, not a runtime condition.
func (b *Binding) Rebind(cells ...*Cell) {
	if len(cells) != len(b.binds) {
		panic("binding: rebind cell count does not match slot count")
	}
	for i, c := range cells {
		b.binds[i].Cell = c
	}
	b.version++
}

// Args collects the bound cells as statement arguments. Each cell
// implements driver.Valuer, so the slice can be passed straight to
// database/sql.
func (b *Binding) Args() []any {
	out := make([]any, len(b.binds))
	for i := range b.binds {
		out[i] = b.binds[i].Cell
	}
	return out
}

// Dests collects the bound cells as scan destinations. Each cell
// implements sql.Scanner.
func (b *Binding) Dests() []any {
	return b.Args()
}
