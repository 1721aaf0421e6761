package world

import (
	"fmt"

	"github.com/firerescue/viewer/internal/core/ecs"
	"github.com/firerescue/viewer/internal/core/event"
	"github.com/firerescue/viewer/internal/data"
	"github.com/firerescue/viewer/internal/grid"
	"go.uber.org/zap"
)

// Removal reasons carried by POIRemoved.
const (
	ReasonCleared  = "cleared"
	ReasonReplaced = "replaced"
	ReasonFire     = "fire"
	ReasonPickup   = "pickup"
	ReasonRevealed = "revealed"
	ReasonReset    = "reset"
)

// TemplateSource resolves a POI type name to its asset template.
// *data.WorldDescription satisfies it.
type TemplateSource interface {
	Template(typ string) *data.POITemplate
}

// Artifact is a POI-tagged object held by the rendering side.
type Artifact struct {
	Handle ecs.EntityID
	Pos    grid.Coord
}

// ArtifactScene lists the POI artifacts a renderer holds and releases the
// ones the registry no longer knows.
type ArtifactScene interface {
	POIArtifacts() []Artifact
	ReleaseArtifact(a Artifact)
}

// POIManager creates and removes POIs keyed by cell coordinate. At most one
// POI exists per coordinate; the cell's POI field mirrors the table.
type POIManager struct {
	reg       *Registry
	templates TemplateSource
	log       *zap.Logger
}

func NewPOIManager(reg *Registry, templates TemplateSource, log *zap.Logger) *POIManager {
	return &POIManager{reg: reg, templates: templates, log: log.Named("poi")}
}

// Upsert makes the POI at c match typ. POINone removes, an equal type is a
// no-op, a different type replaces. A new POI needs a template for its
// type (ErrNoTemplate) and a cell that is not burning (ErrCellOnFire).
func (m *POIManager) Upsert(c grid.Coord, typ POIType) (bool, error) {
	if typ == POINone {
		return m.Remove(c, ReasonCleared), nil
	}
	if cur, ok := m.reg.pois.Get(c); ok && cur.Type == typ {
		m.sync(c)
		return false, nil
	}
	if cell, ok := m.reg.cells.Get(c); ok && cell.OnFire {
		return false, fmt.Errorf("poi %s at %s: %w", typ, c, ErrCellOnFire)
	}
	var tmpl *data.POITemplate
	if m.templates != nil {
		tmpl = m.templates.Template(typ.String())
	}
	if tmpl == nil {
		return false, fmt.Errorf("poi %s at %s: %w", typ, c, ErrNoTemplate)
	}

	m.remove(c, ReasonReplaced)
	p := &POI{Pos: c, Type: typ, Model: tmpl.Model}
	id, _ := m.reg.pois.Insert(c, p)
	event.Emit(m.reg.bus, event.POISpawned{ID: id, Pos: c, Type: typ.String(), Model: tmpl.Model})
	m.sync(c)
	return true, nil
}

// Remove deletes the POI at c, if any.
func (m *POIManager) Remove(c grid.Coord, reason string) bool {
	if !m.remove(c, reason) {
		return false
	}
	m.sync(c)
	return true
}

func (m *POIManager) remove(c grid.Coord, reason string) bool {
	p, ok := m.reg.pois.Get(c)
	if !ok {
		return false
	}
	id, _ := m.reg.pois.ID(c)
	typ := p.Type
	m.reg.pois.Delete(c)
	event.Emit(m.reg.bus, event.POIRemoved{ID: id, Pos: c, Type: typ.String(), Reason: reason})
	return true
}

func (m *POIManager) sync(c grid.Coord) {
	if m.reg.syncCellPOI(c) {
		m.reg.emitCell(c)
	}
}

// OnBoard returns the number of POIs on the board.
func (m *POIManager) OnBoard() int { return m.reg.pois.Len() }

// TotalActive returns on-board POIs plus POIs carried by agents. Computed
// on demand since carrying changes outside the POI table.
func (m *POIManager) TotalActive() int {
	return m.reg.pois.Len() + m.reg.CarryingCount()
}

// Validate releases every scene artifact whose handle is not the live POI
// at its coordinate and returns how many were released.
func (m *POIManager) Validate(scene ArtifactScene) int {
	n := 0
	for _, a := range scene.POIArtifacts() {
		if id, ok := m.reg.pois.ID(a.Pos); ok && id == a.Handle {
			continue
		}
		m.log.Warn("releasing orphaned poi artifact",
			zap.Stringer("pos", a.Pos), zap.Stringer("handle", a.Handle))
		scene.ReleaseArtifact(a)
		n++
	}
	return n
}
