package scattershot

// Bin is a discretized state fingerprint. Equal bins are the same state.
type Bin interface {
	comparable
	Hash() uint64
}

// Block is the fittest known path to a state bin.
type Block[B Bin] struct {
	Fitness  float32
	Bin      B
	Tail     SegmentRef
	Solution bool
}

// blockTable is a block array indexed by an open-addressed hash table with
// linear probing. Empty slots hold -1.
type blockTable[B Bin] struct {
	blocks []Block[B]
	slots  []int32
	max    int
}

func newBlockTable[B Bin](maxBlocks, maxHashes int) blockTable[B] {
	t := blockTable[B]{
		blocks: make([]Block[B], 0, min(maxBlocks, 1024)),
		slots:  make([]int32, maxHashes),
		max:    maxBlocks,
	}
	t.clearSlots()
	return t
}

func (t *blockTable[B]) clearSlots() {
	for i := range t.slots {
		t.slots[i] = -1
	}
}

func (t *blockTable[B]) len() int   { return len(t.blocks) }
func (t *blockTable[B]) full() bool { return len(t.blocks) >= t.max }

func (t *blockTable[B]) find(bin B) (int32, bool) {
	n := uint64(len(t.slots))
	if n == 0 {
		return -1, false
	}
	i := bin.Hash() % n
	for probe := uint64(0); probe < n; probe++ {
		idx := t.slots[i]
		if idx < 0 {
			return -1, false
		}
		if t.blocks[idx].Bin == bin {
			return idx, true
		}
		i++
		if i == n {
			i = 0
		}
	}
	return -1, false
}

// add appends b, which must not already be present. It reports false when
// the table is full.
func (t *blockTable[B]) add(b Block[B]) (int32, bool) {
	if t.full() {
		return -1, false
	}
	n := uint64(len(t.slots))
	i := b.Bin.Hash() % n
	for probe := uint64(0); probe < n; probe++ {
		if t.slots[i] < 0 {
			idx := int32(len(t.blocks))
			t.slots[i] = idx
			t.blocks = append(t.blocks, b)
			return idx, true
		}
		i++
		if i == n {
			i = 0
		}
	}
	return -1, false
}

func (t *blockTable[B]) reset() {
	t.blocks = t.blocks[:0]
	t.clearSlots()
}

// rebuild reindexes blocks, keeping the first of any duplicate bins.
func (t *blockTable[B]) rebuild(blocks []Block[B]) {
	t.reset()
	for _, b := range blocks {
		if _, ok := t.find(b.Bin); !ok {
			t.add(b)
		}
	}
}
