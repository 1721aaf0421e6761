package ecs

// Removable is implemented by every table so the World can drop an
// entity's data everywhere when the entity is destroyed.
type Removable interface {
	Remove(id EntityID)
}

// World owns the handle pool and the set of tables. Destruction is
// immediate; tables drop their keys lazily through Sweep.
// Single-goroutine access only (game loop).
type World struct {
	pool   *EntityPool
	stores []Removable
}

func NewWorld() *World {
	return &World{
		pool:   NewEntityPool(),
		stores: make([]Removable, 0, 8),
	}
}

func (w *World) Pool() *EntityPool { return w.pool }

// Register adds a table whose rows must be dropped on destroy.
func (w *World) Register(store Removable) {
	w.stores = append(w.stores, store)
}

func (w *World) CreateEntity() EntityID {
	return w.pool.Create()
}

func (w *World) Alive(id EntityID) bool {
	return w.pool.Alive(id)
}

// Destroy invalidates id immediately and drops its rows from every table.
func (w *World) Destroy(id EntityID) {
	if !w.pool.Destroy(id) {
		return
	}
	for _, s := range w.stores {
		s.Remove(id)
	}
}
