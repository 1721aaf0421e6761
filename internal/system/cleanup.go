package system

import (
	"time"

	coresys "github.com/firerescue/viewer/internal/core/system"
	"github.com/firerescue/viewer/internal/world"
	"go.uber.org/zap"
)

// CleanupSystem periodically checks rendered POI artifacts against the
// registry. Phase 4 (Cleanup).
type CleanupSystem struct {
	pois     *world.POIManager
	scene    world.ArtifactScene // nil disables validation
	interval int
	ticks    int
	log      *zap.Logger
}

func NewCleanupSystem(pois *world.POIManager, scene world.ArtifactScene, intervalTicks int, log *zap.Logger) *CleanupSystem {
	return &CleanupSystem{
		pois:     pois,
		scene:    scene,
		interval: intervalTicks,
		log:      log.Named("cleanup"),
	}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) {
	if s.scene == nil || s.interval <= 0 {
		return
	}
	s.ticks++
	if s.ticks < s.interval {
		return
	}
	s.ticks = 0
	if n := s.pois.Validate(s.scene); n > 0 {
		s.log.Info("released orphaned poi artifacts", zap.Int("count", n))
	}
}
