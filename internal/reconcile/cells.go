package reconcile

import (
	"fmt"

	"github.com/firerescue/viewer/internal/grid"
	"github.com/firerescue/viewer/internal/protocol"
	"github.com/firerescue/viewer/internal/world"
)

// rebuild replaces the cell table from a snapshot and brings the POI table
// in line with the snapshot's poi fields.
func (r *Reconciler) rebuild(a *frameApply, g *protocol.Grid) {
	cells := make([]world.Cell, 0, len(g.Cells))
	want := make(map[grid.Coord]world.POIType, len(g.Cells))
	for _, s := range g.Cells {
		c := world.Cell{Pos: s.Coord(), OnFire: s.Fire, Smoke: s.Smoke, Door: int(s.Door)}
		for i := 0; i < len(s.Walls) && i < len(c.Walls); i++ {
			c.Walls[i] = s.Walls[i].Bool()
		}
		cells = append(cells, c)

		typ, err := protocol.ParsePOIType(s.POI.Value)
		if err != nil {
			a.warn("grid", err)
			continue
		}
		if _, dup := want[c.Pos]; dup {
			continue
		}
		if c.OnFire {
			// Fire wins over a poi in the same snapshot.
			typ = world.POINone
		}
		want[c.Pos] = typ
	}
	r.reg.BuildFromSnapshot(cells)

	for _, p := range r.reg.POIs() {
		if want[p.Pos] != world.POINone {
			continue
		}
		reason := world.ReasonCleared
		if c, ok := r.reg.Cell(p.Pos); ok && c.OnFire {
			reason = world.ReasonFire
		}
		r.pois.Remove(p.Pos, reason)
	}
	for _, c := range cells {
		typ := want[c.Pos]
		if typ == world.POINone {
			continue
		}
		if _, err := r.pois.Upsert(c.Pos, typ); err != nil {
			a.warn("grid", err)
		}
	}
}

func (r *Reconciler) applyCellDeltas(a *frameApply, deltas []protocol.CellDelta) {
	for _, d := range deltas {
		if err := r.applyCellDelta(d); err != nil {
			a.warn("grid_changes", err)
		}
	}
}

// applyCellDelta enforces the conflict policy:
//
//  1. fire=true sets fire, clears smoke and the POI, whatever else the
//     delta says.
//  2. smoke=true without a poi field sets smoke and leaves the POI alone.
//  3. anything else applies the present fields as given; only this path
//     clears fire or smoke or sets a POI.
func (r *Reconciler) applyCellDelta(d protocol.CellDelta) error {
	c := d.Coord()
	if _, ok := r.reg.Cell(c); !ok {
		return fmt.Errorf("cell %s: %w", c, world.ErrCellNotFound)
	}
	switch {
	case d.Fire != nil && *d.Fire:
		r.pois.Remove(c, world.ReasonFire)
		return r.reg.UpdateCell(c, func(cell *world.Cell) {
			cell.OnFire = true
			cell.Smoke = false
		})

	case d.Smoke != nil && *d.Smoke && !d.POI.Set:
		return r.reg.UpdateCell(c, func(cell *world.Cell) {
			cell.Smoke = true
			if d.Fire != nil {
				cell.OnFire = *d.Fire
			}
		})

	default:
		if err := r.reg.UpdateCell(c, func(cell *world.Cell) {
			if d.Fire != nil {
				cell.OnFire = *d.Fire
			}
			if d.Smoke != nil {
				cell.Smoke = *d.Smoke
			}
		}); err != nil {
			return err
		}
		if !d.POI.Set {
			return nil
		}
		typ, err := protocol.ParsePOIType(d.POI.Value)
		if err != nil {
			return err
		}
		_, err = r.pois.Upsert(c, typ)
		return err
	}
}

// applyPOIs upserts each listed POI.
func (r *Reconciler) applyPOIs(a *frameApply, updates []protocol.POIUpdate) {
	for _, p := range updates {
		typ, err := protocol.ParsePOIType(p.Type)
		if err != nil {
			a.warn("pois", err)
			continue
		}
		if _, err := r.pois.Upsert(p.Coord(), typ); err != nil {
			a.warn("pois", err)
		}
	}
}

// syncPOIs treats the list as the complete on-board set: listed POIs are
// upserted, unlisted ones removed.
func (r *Reconciler) syncPOIs(a *frameApply, updates []protocol.POIUpdate) {
	listed := make(map[grid.Coord]bool, len(updates))
	for _, p := range updates {
		listed[p.Coord()] = true
	}
	for _, p := range r.reg.POIs() {
		if !listed[p.Pos] {
			r.pois.Remove(p.Pos, world.ReasonCleared)
		}
	}
	r.applyPOIs(a, updates)
}
