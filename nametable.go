package main

import "fmt"

const (
	tableInitialCapacity = 64
	tableGrowNumerator   = 162 // capacity *= 1.62 on load == capacity
	tableGrowDenominator = 100
)

type tableSlot struct {
	used  bool
	key   Value
	value Value
}

// Table is an open-addressed hash table with linear probing, used both as
// the compiler/VM's name→binding dictionary and as the backing store for the
// `hashmap` value tag: an owning handle to a growable name table. Keys and
// values are arbitrary Values; equality and hashing follow
// Value.Equal/Value.Hash. nil is reserved as the "missing" lookup sentinel,
// so a name may never be bound to nil.
type Table struct {
	slots []tableSlot
	count int
}

// NewTable creates an empty table at the spec-mandated initial capacity.
func NewTable() *Table {
	return &Table{slots: make([]tableSlot, tableInitialCapacity)}
}

// HashMap is the runtime container for the `hashmap` value tag; it is
// nothing more than a named wrapper around Table so that hashmap values and
// the dictionary share one open-addressing implementation.
type HashMap struct {
	Table
}

// NewHashMap creates an empty runtime hashmap.
func NewHashMap() *HashMap { return &HashMap{Table: *NewTable()} }

// Len returns the number of bound entries.
func (t *Table) Len() int { return t.count }

// Get looks up key, returning its bound value and true, or the nil
// singleton and false if key is unbound.
func (t *Table) Get(key Value) (Value, bool) {
	if !key.hashable() {
		return Nil(), false
	}
	i, found := t.find(key)
	if !found {
		return Nil(), false
	}
	return t.slots[i].value, true
}

// Put binds key to value, growing the table first if it's at capacity. value
// must not be the nil singleton, since nil is the table's own "missing"
// sentinel.
func (t *Table) Put(key, value Value) error {
	if value.tag == TagNil {
		return errNilBinding
	}
	if !key.hashable() {
		return fmt.Errorf("kokoki: key of tag %v is not hashable", key.tag)
	}
	if t.count >= len(t.slots) {
		t.grow()
	}
	i, found := t.find(key)
	if i < 0 {
		// a full linear probe without an empty slot or a match: grow and
		// retry once, since Put above should have kept load under 100%.
		t.grow()
		i, found = t.find(key)
		if i < 0 {
			return errTableFull
		}
	}
	if !found {
		t.count++
	}
	t.slots[i] = tableSlot{used: true, key: key, value: value}
	return nil
}

// Delete removes key's binding, if any, reporting whether it was present.
func (t *Table) Delete(key Value) bool {
	if !key.hashable() {
		return false
	}
	i, found := t.find(key)
	if !found {
		return false
	}
	t.slots[i] = tableSlot{}
	t.count--
	// Re-insert every slot in this probe run after the deleted one, so that
	// later lookups along the same run don't stop early at the hole.
	j := (i + 1) % len(t.slots)
	for t.slots[j].used {
		s := t.slots[j]
		t.slots[j] = tableSlot{}
		t.count--
		k, _ := t.find(s.key)
		t.slots[k] = s
		t.count++
		j = (j + 1) % len(t.slots)
	}
	return true
}

// find performs linear probing for key, returning the slot holding a
// matching key (found==true) or the first empty slot on the probe path
// (found==false). It returns i<0 only if every slot was probed without
// success, which Put treats as "grow and retry".
func (t *Table) find(key Value) (i int, found bool) {
	n := len(t.slots)
	if n == 0 {
		return -1, false
	}
	start := int(key.Hash() % uint64(n))
	for probe := 0; probe < n; probe++ {
		i := (start + probe) % n
		slot := &t.slots[i]
		if !slot.used {
			return i, false
		}
		if slot.key.Equal(key) {
			return i, true
		}
	}
	return -1, false
}

// grow reinserts every used entry into a table with a larger modulus,
// using a ≈1.62 growth factor to keep load factor bounded without the
// slot-count churn a doubling strategy would cause.
func (t *Table) grow() {
	newCap := len(t.slots) * tableGrowNumerator / tableGrowDenominator
	if newCap <= len(t.slots) {
		newCap = len(t.slots) + 1
	}
	old := t.slots
	t.slots = make([]tableSlot, newCap)
	t.count = 0
	for _, s := range old {
		if s.used {
			i, _ := t.find(s.key)
			t.slots[i] = tableSlot{used: true, key: s.key, value: s.value}
			t.count++
		}
	}
}

var (
	errNilBinding = fmt.Errorf("kokoki: nil is reserved as the table's missing-key sentinel and cannot be bound")
	errTableFull  = fmt.Errorf("kokoki: name table insertion failed: table full")
)
