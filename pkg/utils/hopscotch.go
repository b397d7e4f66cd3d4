package utils

import "math/bits"

// ----------------------------------------------------------------------------
// Hopscotch hash table

// An open-addressed hash table with a fixed neighborhood of 'Neighborhood'
// slots per home bucket. Each home bucket keeps a bitmap recording which of
// the next Neighborhood positions hold entries that hash to it, so lookups
// touch a bounded window regardless of table size.
//
// The table is parameterized by hash and equality functions rather than by
// the key type alone: the compiler instantiates it three ways (pointer
// identity, symbol bytewise, structural type equality) without changing the
// probing logic. Insertion keeps the invariant by displacing entries toward
// their home bucket; when no displacement can reach into the neighborhood the
// table doubles and rehashes.

// Neighborhood is the size of the hop window per home bucket, one bit of the
// hop bitmap per slot.
const Neighborhood = 64

// Load factor threshold over the home bucket count before growing.
const maxLoad = 0.6

const initialBuckets = 64

type hopSlot[K, V any] struct {
	key      K
	value    V
	occupied bool
}

type Table[K, V any] struct {
	hash  func(K) uint64
	equal func(K, K) bool

	slots []hopSlot[K, V] // buckets + Neighborhood-1 overflow positions
	hops  []uint64        // One bitmap per home bucket
	mask  uint64          // buckets - 1, buckets is a power of two
	count int
}

// Initializes and returns to the caller a brand new 'Table' struct using the
// given hash and equality strategy. Both functions must be consistent with
// each other (equal keys hash identically).
func NewTable[K, V any](hash func(K) uint64, equal func(K, K) bool) *Table[K, V] {
	t := &Table[K, V]{hash: hash, equal: equal}
	t.reset(initialBuckets)
	return t
}

func (t *Table[K, V]) reset(buckets int) {
	t.slots = make([]hopSlot[K, V], buckets+Neighborhood-1)
	t.hops = make([]uint64, buckets)
	t.mask = uint64(buckets - 1)
	t.count = 0
}

// Returns the number of entries currently stored.
func (t *Table[K, V]) Len() int { return t.count }

// Looks up 'key' scanning only the home bucket's neighborhood.
func (t *Table[K, V]) Find(key K) (V, bool) {
	home := t.hash(key) & t.mask
	hop := t.hops[home]

	for hop != 0 {
		i := trailingZeros(hop)
		slot := &t.slots[home+uint64(i)]
		if slot.occupied && t.equal(slot.key, key) {
			return slot.value, true
		}
		hop &= hop - 1
	}

	var zero V
	return zero, false
}

// Inserts the pair if 'key' is absent and returns the value stored under the
// key afterwards. An existing entry wins: the table is an interner, the first
// value registered for a key is the canonical one.
func (t *Table[K, V]) Insert(key K, value V) V {
	if v, ok := t.Find(key); ok {
		return v
	}

	for attempts := 0; !t.tryInsert(key, value); attempts++ {
		if attempts > 8 {
			// More identically-hashed keys than the neighborhood holds; no
			// amount of growing fixes a degenerate hash function.
			panic("utils: hopscotch neighborhood exhausted")
		}
		t.grow()
	}
	t.count++

	if float64(t.count) > maxLoad*float64(t.mask+1) {
		t.grow()
	}
	return value
}

// Removes the entry for 'key'. Reports whether an entry was present.
func (t *Table[K, V]) Remove(key K) bool {
	home := t.hash(key) & t.mask
	hop := t.hops[home]

	for hop != 0 {
		i := trailingZeros(hop)
		slot := &t.slots[home+uint64(i)]
		if slot.occupied && t.equal(slot.key, key) {
			*slot = hopSlot[K, V]{}
			t.hops[home] &^= 1 << i
			t.count--
			return true
		}
		hop &= hop - 1
	}

	return false
}

// Walks every entry in unspecified order. Mutation during the walk is not
// supported.
func (t *Table[K, V]) Each(visit func(K, V) bool) {
	for i := range t.slots {
		if t.slots[i].occupied && !visit(t.slots[i].key, t.slots[i].value) {
			return
		}
	}
}

// tryInsert places the pair in the home neighborhood, displacing other
// entries toward their homes if needed. Reports false when the table must
// grow first.
func (t *Table[K, V]) tryInsert(key K, value V) bool {
	home := t.hash(key) & t.mask

	// Nearest empty slot at or after the home bucket.
	free := -1
	for i := home; i < uint64(len(t.slots)); i++ {
		if !t.slots[i].occupied {
			free = int(i)
			break
		}
	}
	if free < 0 {
		return false
	}

	// Hopscotch displacement: while the empty slot is out of the neighborhood,
	// move an entry that lives between some earlier home and the empty slot
	// into it, freeing a position closer to ours.
	for uint64(free)-home >= Neighborhood {
		moved := false
		for cand := free - (Neighborhood - 1); cand < free; cand++ {
			if cand < 0 || uint64(cand) > t.mask {
				continue
			}
			hop := t.hops[cand]
			for hop != 0 {
				i := trailingZeros(hop)
				pos := cand + int(i)
				if pos >= free {
					break
				}
				// Entry at 'pos' has home 'cand'; the empty slot is still in
				// cand's neighborhood, so the move preserves the invariant.
				t.slots[free] = t.slots[pos]
				t.slots[pos] = hopSlot[K, V]{}
				t.hops[cand] &^= 1 << i
				t.hops[cand] |= 1 << uint(free-cand)
				free = pos
				moved = true
				break
			}
			if moved {
				break
			}
		}
		if !moved {
			return false
		}
	}

	t.slots[free] = hopSlot[K, V]{key: key, value: value, occupied: true}
	t.hops[home] |= 1 << uint(uint64(free)-home)
	return true
}

func (t *Table[K, V]) grow() {
	old := t.slots
	t.reset(int(t.mask+1) * 2)

	for i := range old {
		if !old[i].occupied {
			continue
		}
		for !t.tryInsert(old[i].key, old[i].value) {
			// Rehashing can itself run out of room on adversarial hashes.
			t.grow()
		}
		t.count++
	}
}

func trailingZeros(x uint64) uint {
	return uint(bits.TrailingZeros64(x))
}

// ----------------------------------------------------------------------------
// FNV-1a

// The hash used by the symbol interner and as the leaf step of the structural
// type hasher.

const (
	fnvOffset = 14695981039346656037
	fnvPrime  = 1099511628211
)

func HashString(s string) uint64 {
	h := uint64(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= fnvPrime
	}
	return h
}

func HashUint64(seed, v uint64) uint64 {
	h := seed
	for i := 0; i < 8; i++ {
		h ^= v & 0xff
		h *= fnvPrime
		v >>= 8
	}
	return h
}
