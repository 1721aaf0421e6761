package session

import (
	"fmt"

	"github.com/firerescue/viewer/internal/agent"
	"github.com/firerescue/viewer/internal/anim"
	"github.com/firerescue/viewer/internal/config"
	"github.com/firerescue/viewer/internal/data"
	"github.com/firerescue/viewer/internal/reconcile"
	"github.com/firerescue/viewer/internal/world"
)

// FromConfig builds a session Config from the client configuration. Speeds
// in the configuration are in cells per second; the controller works in
// spatial units.
func FromConfig(cfg *config.Config, desc *data.WorldDescription, timing Timing) (Config, error) {
	ease, ok := anim.EasingByName(cfg.Animation.Easing)
	if !ok {
		return Config{}, fmt.Errorf("animation.easing: unknown easing %q", cfg.Animation.Easing)
	}
	speed := cfg.Animation.MoveSpeed * desc.Board.CellSize
	return Config{
		World:  desc,
		Timing: timing,
		Doors: world.Options{
			DoorDuration: cfg.Animation.DoorDuration,
			DoorEasing:   ease,
		},
		Agents: agent.Options{
			Speed:            speed,
			AdjacentDistance: cfg.Animation.AdjacentDistance,
			ActionDelay:      cfg.Animation.ActionDelay,
			Easing:           ease,
		},
		Reconcile: reconcile.Options{
			MinActivePOIs:    cfg.POI.MinActive,
			AdjacentDistance: cfg.Animation.AdjacentDistance,
			MoveSpeed:        speed,
		},
	}, nil
}
