// Package inode implements the reference-counting/delayed-unlink layer
// spec.md 3 "Inode refcount" describes, independent of any on-disk
// filesystem layout (spec.md 1 places that out of scope; see
// tools/ramfsimg for the fixture image this table is seeded from).
// Grounded on the open-count/unlink bookkeeping pattern the retrieval
// pack's on-disk filesystem drivers use, reduced to exactly the two
// fields spec.md 3 names: an open-count and a delete-pending flag.
package inode

import "sync"

// FreeData is invoked once an inode's open-count returns to zero while
// delete-pending is set -- the point at which spec.md 3 says "the
// inode's data blocks are freed". Supplied by whatever owns the backing
// store (the RAM filesystem image).
type FreeData func(index int)

// Inode_t is spec.md 3's "Inode refcount": {open-count, delete-pending}.
type Inode_t struct {
	sync.Mutex
	opencount     int
	deletePending bool
}

// Opencount reports the current open-count, for tests and diagnostics.
func (i *Inode_t) Opencount() int {
	i.Lock()
	defer i.Unlock()
	return i.opencount
}

// DeletePending reports whether Unlink has been called on this inode.
func (i *Inode_t) DeletePending() bool {
	i.Lock()
	defer i.Unlock()
	return i.deletePending
}

// Table_t is the system-wide inode table, indexed by inode number.
// Entries are created lazily on first reference.
type Table_t struct {
	sync.Mutex
	slots []*Inode_t
}

// MkTable constructs an inode table with room for n inode numbers.
func MkTable(n int) *Table_t {
	return &Table_t{slots: make([]*Inode_t, n)}
}

func (t *Table_t) getLocked(index int) *Inode_t {
	if t.slots[index] == nil {
		t.slots[index] = &Inode_t{}
	}
	return t.slots[index]
}

// Ref increments index's open-count, per spec.md 4.7 "file_obj_alloc"
// attaching an inode to a newly-opened file object.
func (t *Table_t) Ref(index int) {
	t.Lock()
	ino := t.getLocked(index)
	t.Unlock()
	ino.Lock()
	ino.opencount++
	ino.Unlock()
}

// Decref decrements index's open-count, per spec.md 3/4.7 "release on
// zero decrements the attached inode's count". If the count reaches zero
// while delete-pending is set, free is invoked and the slot is cleared,
// per spec.md 3's "data blocks are freed only when the open-count
// returns to zero".
func (t *Table_t) Decref(index int, free FreeData) {
	t.Lock()
	ino := t.getLocked(index)
	t.Unlock()

	ino.Lock()
	if ino.opencount == 0 {
		ino.Unlock()
		panic("inode: Decref on a zero open-count inode")
	}
	ino.opencount--
	reap := ino.opencount == 0 && ino.deletePending
	ino.Unlock()

	if reap {
		if free != nil {
			free(index)
		}
		t.Lock()
		t.slots[index] = nil
		t.Unlock()
	}
}

// Unlink clears the directory entry (the caller's responsibility -- this
// table only tracks the refcount) and marks index delete-pending, per
// spec.md 3 "unlink clears the directory entry and sets delete-pending".
// If the open-count is already zero, free runs immediately.
func (t *Table_t) Unlink(index int, free FreeData) {
	t.Lock()
	ino := t.getLocked(index)
	t.Unlock()

	ino.Lock()
	ino.deletePending = true
	reap := ino.opencount == 0
	ino.Unlock()

	if reap {
		if free != nil {
			free(index)
		}
		t.Lock()
		t.slots[index] = nil
		t.Unlock()
	}
}

// Get returns the inode at index for inspection (tests, stat()).
func (t *Table_t) Get(index int) *Inode_t {
	t.Lock()
	defer t.Unlock()
	return t.getLocked(index)
}

// defaultCapacity sizes the shared inode table; the RAM filesystem image
// built by tools/ramfsimg never names more inodes than this.
const defaultCapacity = 4096

// Inodes is the system-wide inode table, a singleton alongside
// mem.Physmem and kalloc.Kheap, matching spec.md 313's list of
// process-wide shared structures.
var Inodes = MkTable(defaultCapacity)
