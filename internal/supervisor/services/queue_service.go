// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package services

import (
	"context"
	"errors"
	"fmt"
)

// QueueRunner is satisfied by *ingest.Queue.
type QueueRunner interface {
	Run(ctx context.Context) error
	Close() error
}

// QueueService runs the ingest task router under supervision.
//
// Run blocks until ctx is cancelled. Close is then called so the router
// waits for the running task before the topic is torn down. A router that
// stops on its own is reported as an error and restarted by suture.
type QueueService struct {
	queue QueueRunner
	name  string
}

// NewQueueService wraps queue.
func NewQueueService(queue QueueRunner) *QueueService {
	return &QueueService{queue: queue, name: "ingest-queue"}
}

// Serve implements suture.Service.
func (s *QueueService) Serve(ctx context.Context) error {
	runErr := s.queue.Run(ctx)

	if ctx.Err() != nil {
		if err := s.queue.Close(); err != nil {
			return fmt.Errorf("ingest queue close failed: %w", err)
		}
		return ctx.Err()
	}
	if runErr != nil {
		return fmt.Errorf("ingest queue stopped: %w", runErr)
	}
	return errors.New("ingest queue stopped unexpectedly")
}

// String implements fmt.Stringer.
func (s *QueueService) String() string {
	return s.name
}
