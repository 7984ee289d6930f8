package vm

// String is an immutable, interned byte sequence. All Strings the VM ever
// hands out come from the same interpreter's Interner, so equality reduces
// to pointer identity (see Value.Equal).
type String struct {
	Bytes    string
	Hash     uint32
	refcount int
}

func (s *String) retain() { s.refcount++ }

func (s *String) release() {
	s.refcount--
	// Interned strings are only actually freed when the Interner itself
	// tears down; a string's own refcount going to zero just means no
	// live Value currently references it beyond the intern table's hold.
}

const (
	fnvOffsetBasis32 uint32 = 2166136261
	fnvPrime32       uint32 = 16777619
)

// fnv1a32 hashes a byte string with 32-bit FNV-1a, matching the constants
// mica's original C implementation uses for its intern table.
func fnv1a32(s string) uint32 {
	h := fnvOffsetBasis32
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime32
	}
	return h
}

// Interner is the VM's string intern table: one canonical *String per
// distinct byte sequence, keyed by (hash, length, bytes) to tolerate hash
// collisions. It holds one retained reference per distinct string and is
// only drained when the owning VM is freed.
type Interner struct {
	buckets map[uint32][]*String
}

func NewInterner() *Interner {
	return &Interner{buckets: make(map[uint32][]*String)}
}

// Intern returns the canonical *String for s, creating and retaining it on
// first sight.
func (in *Interner) Intern(s string) *String {
	h := fnv1a32(s)
	for _, cand := range in.buckets[h] {
		if cand.Bytes == s {
			return cand
		}
	}
	str := &String{Bytes: s, Hash: h, refcount: 1}
	in.buckets[h] = append(in.buckets[h], str)
	return str
}

// Release drops the intern table's own reference to every string it holds.
// Called once, when the owning VM tears down.
func (in *Interner) Release() {
	for h, bucket := range in.buckets {
		for _, s := range bucket {
			s.refcount--
		}
		delete(in.buckets, h)
	}
}
