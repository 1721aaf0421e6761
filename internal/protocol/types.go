package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/firerescue/viewer/internal/grid"
)

// Point is a board coordinate on the wire: [x, y].
type Point [2]int32

func (p Point) Coord() grid.Coord { return grid.Coord{X: p[0], Y: p[1]} }

func PointOf(c grid.Coord) Point { return Point{c.X, c.Y} }

// Batch is one /step response. A terminal response carries only Message
// and Step.
type Batch struct {
	Turn        int      `json:"turn"`
	TotalFrames int      `json:"total_frames"`
	Frames      []Frame  `json:"frames"`
	Summary     *Summary `json:"summary,omitempty"`

	Message string `json:"message,omitempty"`
	Step    *int   `json:"step,omitempty"`
}

// Finished reports whether the server says the simulation is over.
func (b *Batch) Finished() bool { return b.Step != nil && len(b.Frames) == 0 }

// Summary carries running game totals.
type Summary struct {
	Rescued    int  `json:"rescued"`
	Lost       int  `json:"lost"`
	Damage     int  `json:"damage"`
	POIsActive *int `json:"pois_active,omitempty"`
	POIsInDeck *int `json:"pois_in_deck,omitempty"`
}

// Frame is one unit of the stream. Every payload is optional.
type Frame struct {
	Frame        int          `json:"frame"`
	Turn         int          `json:"turn"`
	Action       *Action      `json:"action,omitempty"`
	Firefighters []AgentState `json:"firefighters,omitempty"`
	Grid         *Grid        `json:"grid,omitempty"`
	GridChanges  []CellDelta  `json:"grid_changes,omitempty"`
	WallDamage   []WallDamage `json:"wall_damage,omitempty"`
	Doors        []DoorUpdate `json:"doors,omitempty"`
	POIs         []POIUpdate  `json:"pois,omitempty"`
	Entries      []Point      `json:"entries,omitempty"`
	Summary      *Summary     `json:"summary,omitempty"`
}

// Action describes what produced a frame. FirefighterID is -1 for
// environment events (smoke placement, fire spread, POI replenish).
type Action struct {
	Type            string `json:"type"`
	FirefighterID   *int   `json:"firefighter_id,omitempty"`
	From            *Point `json:"from,omitempty"`
	To              *Point `json:"to,omitempty"`
	Target          *Point `json:"target,omitempty"`
	POIType         string `json:"poi_type,omitempty"`
	Message         string `json:"message,omitempty"`
	Result          string `json:"result,omitempty"`
	APBefore        int    `json:"ap_before,omitempty"`
	APAfter         int    `json:"ap_after,omitempty"`
	KnockdownCoords *Point `json:"knockdown_coords,omitempty"`
	AmbulancePos    *Point `json:"ambulance_pos,omitempty"`
}

// Actor returns the acting agent id, if the action has one.
func (a *Action) Actor() (int, bool) {
	if a == nil || a.FirefighterID == nil || *a.FirefighterID < 0 {
		return 0, false
	}
	return *a.FirefighterID, true
}

type AgentState struct {
	ID       int   `json:"id"`
	X        int32 `json:"x"`
	Y        int32 `json:"y"`
	AP       int   `json:"ap"`
	Carrying bool  `json:"carrying"`
}

func (a AgentState) Coord() grid.Coord { return grid.Coord{X: a.X, Y: a.Y} }

type Grid struct {
	Width  int32          `json:"width"`
	Height int32          `json:"height"`
	Cells  []CellSnapshot `json:"cells"`
}

type CellSnapshot struct {
	X     int32          `json:"x"`
	Y     int32          `json:"y"`
	Walls []Flag         `json:"walls,omitempty"`
	Door  Flag           `json:"door"`
	Fire  bool           `json:"fire"`
	Smoke bool           `json:"smoke"`
	POI   OptionalString `json:"poi"`
}

func (c CellSnapshot) Coord() grid.Coord { return grid.Coord{X: c.X, Y: c.Y} }

// CellDelta changes only the fields present. POI distinguishes an absent
// field from an explicit null, which clears the POI.
type CellDelta struct {
	X     int32          `json:"x"`
	Y     int32          `json:"y"`
	Fire  *bool          `json:"fire,omitempty"`
	Smoke *bool          `json:"smoke,omitempty"`
	POI   OptionalString `json:"poi"`
}

func (d CellDelta) Coord() grid.Coord { return grid.Coord{X: d.X, Y: d.Y} }

// MarshalJSON leaves poi out unless it was set, so a re-encoded delta
// decodes to the same thing.
func (d CellDelta) MarshalJSON() ([]byte, error) {
	w := struct {
		X     int32           `json:"x"`
		Y     int32           `json:"y"`
		Fire  *bool           `json:"fire,omitempty"`
		Smoke *bool           `json:"smoke,omitempty"`
		POI   *OptionalString `json:"poi,omitempty"`
	}{X: d.X, Y: d.Y, Fire: d.Fire, Smoke: d.Smoke}
	if d.POI.Set {
		w.POI = &d.POI
	}
	return json.Marshal(w)
}

type WallDamage struct {
	From   Point `json:"from"`
	To     Point `json:"to"`
	Damage int   `json:"damage"`
}

type DoorUpdate struct {
	From  Point  `json:"from"`
	To    Point  `json:"to"`
	State string `json:"state"`
}

type POIUpdate struct {
	X    int32  `json:"x"`
	Y    int32  `json:"y"`
	Type string `json:"type"`
}

func (p POIUpdate) Coord() grid.Coord { return grid.Coord{X: p.X, Y: p.Y} }

// OptionalString records whether a JSON field was present at all. Set with
// an empty Value means an explicit null or "".
type OptionalString struct {
	Set   bool
	Value string
}

func Some(v string) OptionalString { return OptionalString{Set: true, Value: v} }

func (o *OptionalString) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(b, []byte("null")) {
		o.Value = ""
		return nil
	}
	return json.Unmarshal(b, &o.Value)
}

func (o OptionalString) MarshalJSON() ([]byte, error) {
	if !o.Set || o.Value == "" {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// Flag accepts a JSON bool or number; the server sends both forms.
type Flag int

func (f *Flag) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case "true":
		*f = 1
		return nil
	case "false", "null":
		*f = 0
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("flag: %w", err)
	}
	*f = Flag(n)
	return nil
}

func (f Flag) Bool() bool { return f != 0 }
