package vm

// Upvalue is the indirection cell a closure uses to reach a variable
// declared in an enclosing function. While open it aliases a live slot in
// the VM's register file; once closed it owns its Value directly. The
// transition is one-way and idempotent to close twice.
type Upvalue struct {
	open     bool
	slot     int // absolute register-file index, valid only while open
	value    Value
	next     *Upvalue // VM's open list, sorted by descending slot
	refcount int
}

func (u *Upvalue) retain() { u.refcount++ }

func (u *Upvalue) release() {
	u.refcount--
	if u.refcount > 0 {
		return
	}
	u.value.Release()
	u.value = None
}

// Get reads through the cell: the live register while open, the owned
// value once closed.
func (u *Upvalue) Get(regs []Value) Value {
	if u.open {
		return regs[u.slot]
	}
	return u.value
}

// Set writes through the cell, applying the usual retain/release discipline
// at the destination.
func (u *Upvalue) Set(regs []Value, v Value) {
	if u.open {
		v.Retain()
		regs[u.slot].Release()
		regs[u.slot] = v
		return
	}
	v.Retain()
	u.value.Release()
	u.value = v
}

// captureUpvalue returns the existing open upvalue for slot if the VM's
// open list already has one (so sibling closures share a cell), or splices
// a new one in at its descending-slot position.
func (vm *VM) captureUpvalue(slot int) *Upvalue {
	var prev *Upvalue
	cur := vm.openUpvalues
	for cur != nil && cur.slot > slot {
		prev = cur
		cur = cur.next
	}
	if cur != nil && cur.slot == slot {
		return cur
	}
	fresh := &Upvalue{open: true, slot: slot, refcount: 1}
	fresh.next = cur
	if prev == nil {
		vm.openUpvalues = fresh
	} else {
		prev.next = fresh
	}
	return fresh
}

// closeUpvaluesFrom closes every open upvalue at or above floor, copying
// its live register value into its own storage and unlinking it from the
// VM's open list. Idempotent: an already-closed cell is simply absent from
// the list.
func (vm *VM) closeUpvaluesFrom(floor int, regs []Value) {
	var prev *Upvalue
	cur := vm.openUpvalues
	for cur != nil && cur.slot >= floor {
		next := cur.next
		regs[cur.slot].Retain()
		cur.value = regs[cur.slot]
		cur.open = false
		cur.next = nil
		if prev == nil {
			vm.openUpvalues = next
		} else {
			prev.next = next
		}
		cur = next
	}
}
