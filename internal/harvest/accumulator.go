package harvest

// Accumulator buffers the rows extracted since the last flush, in input order.
// It is owned by a single run loop and is not safe for concurrent use.
type Accumulator struct {
	rows []Row
}

// NewAccumulator preallocates room for one batch.
func NewAccumulator(batchSize int) *Accumulator {
	if batchSize < 0 {
		batchSize = 0
	}
	return &Accumulator{rows: make([]Row, 0, batchSize)}
}

// Add appends a row.
func (a *Accumulator) Add(r Row) {
	a.rows = append(a.rows, r)
}

// Len returns the number of buffered rows.
func (a *Accumulator) Len() int { return len(a.rows) }

// Drain hands the buffered rows to the caller and leaves the accumulator
// empty. The returned slice is not reused.
func (a *Accumulator) Drain() []Row {
	out := a.rows
	a.rows = make([]Row, 0, cap(out))
	return out
}
