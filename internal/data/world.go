package data

import (
	"fmt"
	"os"

	"github.com/firerescue/viewer/internal/grid"
	"gopkg.in/yaml.v3"
)

// Point is a board coordinate written as a two-element YAML sequence.
type Point [2]int32

func (p Point) Coord() grid.Coord { return grid.Coord{X: p[0], Y: p[1]} }

// BoardInfo describes board geometry and the grid-to-space mapping.
type BoardInfo struct {
	Width    int32   `yaml:"width"`
	Height   int32   `yaml:"height"`
	CellSize float64 `yaml:"cell_size"`
	OriginX  float64 `yaml:"origin_x"`
	OriginY  float64 `yaml:"origin_y"`
	OriginZ  float64 `yaml:"origin_z"`
}

// WallEntry is one wall segment between two cells. Model names the
// renderer asset that draws it.
type WallEntry struct {
	From  Point  `yaml:"from"`
	To    Point  `yaml:"to"`
	Model string `yaml:"model"`
}

// DoorEntry is one door between two cells. Pivot names the hinge node the
// renderer rotates during a transition.
type DoorEntry struct {
	From  Point  `yaml:"from"`
	To    Point  `yaml:"to"`
	Pivot string `yaml:"pivot"`
	Model string `yaml:"model"`
	Entry bool   `yaml:"entry"`
}

// POITemplate maps a POI type ("victim", "false_alarm") to its asset.
type POITemplate struct {
	Type  string `yaml:"type"`
	Model string `yaml:"model"`
}

// WorldDescription is the static layout of a board, loaded once at start
// and fed to the entity registry.
type WorldDescription struct {
	Board        BoardInfo     `yaml:"board"`
	Walls        []WallEntry   `yaml:"walls"`
	Doors        []DoorEntry   `yaml:"doors"`
	POITemplates []POITemplate `yaml:"poi_templates"`

	templates map[string]*POITemplate
}

// LoadWorld loads a world description YAML file.
func LoadWorld(path string) (*WorldDescription, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read world description: %w", err)
	}
	w, err := ParseWorld(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

// ParseWorld decodes and validates a world description.
func ParseWorld(raw []byte) (*WorldDescription, error) {
	w := &WorldDescription{}
	if err := yaml.Unmarshal(raw, w); err != nil {
		return nil, fmt.Errorf("parse world description: %w", err)
	}
	if w.Board.CellSize <= 0 {
		w.Board.CellSize = 1
	}
	for i, e := range w.Walls {
		if !grid.Edge(e.From.Coord(), e.To.Coord()).Orthogonal() {
			return nil, fmt.Errorf("wall %d: %v-%v are not neighbouring cells", i, e.From, e.To)
		}
	}
	for i, e := range w.Doors {
		if !grid.Edge(e.From.Coord(), e.To.Coord()).Orthogonal() {
			return nil, fmt.Errorf("door %d: %v-%v are not neighbouring cells", i, e.From, e.To)
		}
	}
	w.templates = make(map[string]*POITemplate, len(w.POITemplates))
	for i := range w.POITemplates {
		t := &w.POITemplates[i]
		if _, dup := w.templates[t.Type]; dup {
			return nil, fmt.Errorf("duplicate poi template %q", t.Type)
		}
		w.templates[t.Type] = t
	}
	return w, nil
}

// Template returns the POI template for a type name, or nil.
func (w *WorldDescription) Template(typ string) *POITemplate {
	return w.templates[typ]
}

// Count returns the number of walls and doors described.
func (w *WorldDescription) Count() int {
	return len(w.Walls) + len(w.Doors)
}
