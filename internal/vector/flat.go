package vector

// structure is the in-memory layout behind a FileIndex. Vectors handed to
// it are already normalized.
type structure interface {
	flavor() string
	len() int
	has(id uint64) bool
	add(id uint64, v []float32)
	remove(id uint64) bool
	search(q []float32, k int) []Hit
	each(fn func(id uint64, v []float32))
}

// flat scores the query against every stored vector.
type flat struct {
	ids  []uint64
	vecs [][]float32
	pos  map[uint64]int
}

func newFlat() *flat {
	return &flat{pos: make(map[uint64]int)}
}

func (f *flat) flavor() string { return FlavorFlat }
func (f *flat) len() int       { return len(f.ids) }

func (f *flat) has(id uint64) bool {
	_, ok := f.pos[id]
	return ok
}

func (f *flat) add(id uint64, v []float32) {
	f.pos[id] = len(f.ids)
	f.ids = append(f.ids, id)
	f.vecs = append(f.vecs, v)
}

func (f *flat) remove(id uint64) bool {
	i, ok := f.pos[id]
	if !ok {
		return false
	}
	last := len(f.ids) - 1
	if i != last {
		f.ids[i] = f.ids[last]
		f.vecs[i] = f.vecs[last]
		f.pos[f.ids[i]] = i
	}
	f.ids = f.ids[:last]
	f.vecs = f.vecs[:last]
	delete(f.pos, id)
	return true
}

func (f *flat) search(q []float32, k int) []Hit {
	top := newTopK(k)
	for i, v := range f.vecs {
		top.push(Hit{ID: f.ids[i], Score: dot(q, v)})
	}
	return top.sorted()
}

func (f *flat) each(fn func(id uint64, v []float32)) {
	for i, v := range f.vecs {
		fn(f.ids[i], v)
	}
}
