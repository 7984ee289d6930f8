package vm

// Iterator wraps a source Value and a cursor. Only arrays are iterable;
// iterating anything else produces an iterator that is exhausted from the
// start. Iterators are not reference counted: they live only in the
// register a compiled for-in loop reserves for them, between ITER_NEW and
// loop exit, and never escape into a binding or container.
type Iterator struct {
	source Value
	cursor int
}

func NewIterator(source Value) *Iterator {
	return &Iterator{source: source}
}

// HasNext reports whether Next would return an element rather than None.
func (it *Iterator) HasNext() bool {
	if it.source.Kind != KindArray {
		return false
	}
	return it.cursor < it.source.AsArray().Len()
}

// Next advances the cursor and returns the element, or None once exhausted
// or when the source was never iterable.
func (it *Iterator) Next() Value {
	if it.source.Kind != KindArray {
		return None
	}
	v, ok := it.source.AsArray().Get(it.cursor)
	if !ok {
		return None
	}
	it.cursor++
	return v
}
