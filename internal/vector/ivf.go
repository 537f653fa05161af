package vector

// ivf partitions vectors into inverted lists around trained centroids and
// scans only the nprobe lists closest to the query.
type ivf struct {
	nprobe    int
	centroids [][]float32
	lists     []postingList
	loc       map[uint64]slot
}

type postingList struct {
	ids  []uint64
	vecs [][]float32
}

type slot struct {
	list int
	pos  int
}

func newIVF(centroids [][]float32, nprobe int) *ivf {
	return &ivf{
		nprobe:    max(1, min(nprobe, len(centroids))),
		centroids: centroids,
		lists:     make([]postingList, len(centroids)),
		loc:       make(map[uint64]slot),
	}
}

func (x *ivf) flavor() string { return FlavorIVF }
func (x *ivf) len() int       { return len(x.loc) }

func (x *ivf) has(id uint64) bool {
	_, ok := x.loc[id]
	return ok
}

func (x *ivf) add(id uint64, v []float32) {
	x.addToList(nearestCentroid(x.centroids, v), id, v)
}

func (x *ivf) addToList(list int, id uint64, v []float32) {
	pl := &x.lists[list]
	x.loc[id] = slot{list: list, pos: len(pl.ids)}
	pl.ids = append(pl.ids, id)
	pl.vecs = append(pl.vecs, v)
}

func (x *ivf) remove(id uint64) bool {
	s, ok := x.loc[id]
	if !ok {
		return false
	}
	pl := &x.lists[s.list]
	last := len(pl.ids) - 1
	if s.pos != last {
		pl.ids[s.pos] = pl.ids[last]
		pl.vecs[s.pos] = pl.vecs[last]
		x.loc[pl.ids[s.pos]] = s
	}
	pl.ids = pl.ids[:last]
	pl.vecs = pl.vecs[:last]
	delete(x.loc, id)
	return true
}

func (x *ivf) search(q []float32, k int) []Hit {
	probe := newTopK(x.nprobe)
	for i, c := range x.centroids {
		probe.push(Hit{ID: uint64(i), Score: dot(q, c)})
	}

	top := newTopK(k)
	for _, p := range probe.sorted() {
		pl := x.lists[p.ID]
		for i, v := range pl.vecs {
			top.push(Hit{ID: pl.ids[i], Score: dot(q, v)})
		}
	}
	return top.sorted()
}

func (x *ivf) each(fn func(id uint64, v []float32)) {
	for _, pl := range x.lists {
		for i, v := range pl.vecs {
			fn(pl.ids[i], v)
		}
	}
}

func nearestCentroid(centroids [][]float32, v []float32) int {
	best, bestScore := 0, float32(-2)
	for i, c := range centroids {
		if s := dot(v, c); s > bestScore {
			best, bestScore = i, s
		}
	}
	return best
}
