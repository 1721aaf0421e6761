package ecs

// Table indexes components of type T by a domain key K (a coordinate, an
// edge, an agent id). Each row owns one handle from the World pool.
//
// Destroying a handle from outside (World.Destroy) removes the row at once but leaves the key pointing at a dead handle until
// Sweep runs. Lookups check liveness, so a dead handle is never returned.
type Table[K comparable, T any] struct {
	world *World
	keys  map[K]EntityID
	rows  map[EntityID]*row[K, T]
}

type row[K comparable, T any] struct {
	key K
	val *T
}

// NewTable creates a table and registers it with w for destroy bookkeeping.
func NewTable[K comparable, T any](w *World) *Table[K, T] {
	t := &Table[K, T]{
		world: w,
		keys:  make(map[K]EntityID, 64),
		rows:  make(map[EntityID]*row[K, T], 64),
	}
	w.Register(t)
	return t
}

// Insert stores v under key unless a live row already exists there. It
// returns the row's handle and whether v was inserted.
func (t *Table[K, T]) Insert(key K, v *T) (EntityID, bool) {
	if id, ok := t.keys[key]; ok && t.world.Alive(id) {
		return id, false
	}
	id := t.world.CreateEntity()
	t.keys[key] = id
	t.rows[id] = &row[K, T]{key: key, val: v}
	return id, true
}

// Get returns the component stored under key if its handle is alive.
func (t *Table[K, T]) Get(key K) (*T, bool) {
	id, ok := t.keys[key]
	if !ok || !t.world.Alive(id) {
		return nil, false
	}
	r, ok := t.rows[id]
	if !ok {
		return nil, false
	}
	return r.val, true
}

// ID returns the live handle stored under key.
func (t *Table[K, T]) ID(key K) (EntityID, bool) {
	id, ok := t.keys[key]
	if !ok || !t.world.Alive(id) {
		return 0, false
	}
	return id, true
}

// Lookup resolves a handle back to its key and component.
func (t *Table[K, T]) Lookup(id EntityID) (K, *T, bool) {
	var zero K
	if !t.world.Alive(id) {
		return zero, nil, false
	}
	r, ok := t.rows[id]
	if !ok {
		return zero, nil, false
	}
	return r.key, r.val, true
}

// Delete destroys the row under key. Returns false if nothing live was there.
func (t *Table[K, T]) Delete(key K) bool {
	id, ok := t.keys[key]
	if !ok {
		return false
	}
	delete(t.keys, key)
	if !t.world.Alive(id) {
		delete(t.rows, id)
		return false
	}
	t.world.Destroy(id)
	return true
}

// Remove implements Removable.
func (t *Table[K, T]) Remove(id EntityID) {
	delete(t.rows, id)
}

// Sweep drops keys whose handle is no longer alive and returns how many
// were removed. Safe to call any number of times.
func (t *Table[K, T]) Sweep() int {
	n := 0
	for k, id := range t.keys {
		if !t.world.Alive(id) {
			delete(t.keys, k)
			delete(t.rows, id)
			n++
		}
	}
	return n
}

// Clear destroys every row.
func (t *Table[K, T]) Clear() {
	for k, id := range t.keys {
		delete(t.keys, k)
		t.world.Destroy(id)
		delete(t.rows, id)
	}
}

// Len returns the number of live rows.
func (t *Table[K, T]) Len() int {
	n := 0
	for _, id := range t.keys {
		if t.world.Alive(id) {
			n++
		}
	}
	return n
}

// Each visits every live row. fn must not insert or delete rows.
func (t *Table[K, T]) Each(fn func(K, *T)) {
	for k, id := range t.keys {
		if !t.world.Alive(id) {
			continue
		}
		if r, ok := t.rows[id]; ok {
			fn(k, r.val)
		}
	}
}

// Keys returns the keys of every live row in unspecified order.
func (t *Table[K, T]) Keys() []K {
	out := make([]K, 0, len(t.keys))
	for k, id := range t.keys {
		if t.world.Alive(id) {
			out = append(out, k)
		}
	}
	return out
}
