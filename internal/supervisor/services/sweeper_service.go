// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package services

import (
	"context"
	"time"

	"github.com/tomtom215/riqo-ingest/internal/logging"
)

// Sweeper is satisfied by *ingest.Artifacts.
type Sweeper interface {
	Sweep(cutoff time.Time) (int, error)
}

// ArtifactSweeperService removes staging directories older than maxAge,
// once at start and then every interval.
type ArtifactSweeperService struct {
	sweeper  Sweeper
	maxAge   time.Duration
	interval time.Duration
	now      func() time.Time
	name     string
}

// NewArtifactSweeperService creates the sweeper. interval defaults to a
// quarter of maxAge, at least one minute.
func NewArtifactSweeperService(sweeper Sweeper, maxAge, interval time.Duration) *ArtifactSweeperService {
	if interval <= 0 {
		interval = maxAge / 4
	}
	if interval < time.Minute {
		interval = time.Minute
	}
	return &ArtifactSweeperService{
		sweeper:  sweeper,
		maxAge:   maxAge,
		interval: interval,
		now:      time.Now,
		name:     "artifact-sweeper",
	}
}

// Serve implements suture.Service. Sweep failures are logged, not returned.
func (s *ArtifactSweeperService) Serve(ctx context.Context) error {
	s.sweep()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *ArtifactSweeperService) sweep() {
	removed, err := s.sweeper.Sweep(s.now().Add(-s.maxAge))
	if err != nil {
		logging.Warn().Err(err).Int("removed", removed).Msg("Artifact sweep incomplete")
		return
	}
	if removed > 0 {
		logging.Info().Int("removed", removed).Msg("Removed stale upload artifacts")
	}
}

// String implements fmt.Stringer.
func (s *ArtifactSweeperService) String() string {
	return s.name
}
