// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/tomtom215/riqo-ingest/internal/logging"
)

// TopicUploads carries one Task per accepted upload.
const TopicUploads = "ingest.uploads"

const (
	handlerName         = "ingest_uploads"
	metadataRequestID   = "request_id"
	metadataCorrelation = "correlation_id"
)

// ErrQueueClosed is returned when publishing after Close.
var ErrQueueClosed = errors.New("ingest queue is closed")

// Task asks the executor to process one pending upload.
type Task struct {
	UploadID string `json:"upload_id"`
	TenantID string `json:"tenant_id"`
}

// TaskHandler runs a task. Its error is logged, never retried.
type TaskHandler func(ctx context.Context, task Task) error

// QueueConfig configures the in-process task queue.
type QueueConfig struct {
	// OutputBuffer is the gochannel per-subscriber buffer.
	OutputBuffer int64

	// CloseTimeout bounds how long Close waits for a running task.
	CloseTimeout time.Duration
}

// Queue is a single-process task queue: a Watermill gochannel topic drained
// by a Watermill router. The router carries the Recoverer middleware only;
// a failed upload is final and must be resubmitted.
type Queue struct {
	pubsub *gochannel.GoChannel
	router *message.Router
	logger watermill.LoggerAdapter

	mu      sync.RWMutex
	baseCtx context.Context
	closed  bool
}

// NewQueue creates the queue. Register a handler before calling Run.
func NewQueue(cfg QueueConfig, logger watermill.LoggerAdapter) (*Queue, error) {
	if logger == nil {
		logger = logging.NewWatermillAdapter()
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = 30 * time.Second
	}

	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: cfg.OutputBuffer,
	}, logger)

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}
	router.AddMiddleware(middleware.Recoverer)

	return &Queue{
		pubsub:  pubsub,
		router:  router,
		logger:  logger,
		baseCtx: context.Background(),
	}, nil
}

// Register installs the task handler.
func (q *Queue) Register(handler TaskHandler) {
	q.router.AddConsumerHandler(handlerName, TopicUploads, q.pubsub, func(msg *message.Message) error {
		var task Task
		if err := json.Unmarshal(msg.Payload, &task); err != nil {
			// A malformed payload would fail identically on redelivery.
			q.logger.Error("Dropping malformed ingest task", err, watermill.LogFields{"message_uuid": msg.UUID})
			return nil
		}

		ctx := q.context()
		if id := msg.Metadata.Get(metadataRequestID); id != "" {
			ctx = logging.ContextWithRequestID(ctx, id)
		}
		if id := msg.Metadata.Get(metadataCorrelation); id != "" {
			ctx = logging.ContextWithCorrelationID(ctx, id)
		}

		if err := handler(ctx, task); err != nil {
			logging.CtxErr(ctx, err).
				Str("upload_id", task.UploadID).
				Str("tenant_id", task.TenantID).
				Msg("Ingest task finished with error")
		}
		return nil
	})
}

// Publish enqueues a task. It waits for the router to be running, since a
// gochannel topic without subscribers drops messages.
func (q *Queue) Publish(ctx context.Context, task Task) error {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return ErrQueueClosed
	}

	select {
	case <-q.router.Running():
	case <-ctx.Done():
		return fmt.Errorf("ingest queue not running: %w", ctx.Err())
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode ingest task: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if id := logging.RequestIDFromContext(ctx); id != "" {
		msg.Metadata.Set(metadataRequestID, id)
	}
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		msg.Metadata.Set(metadataCorrelation, id)
	}

	if err := q.pubsub.Publish(TopicUploads, msg); err != nil {
		return fmt.Errorf("failed to publish ingest task: %w", err)
	}
	return nil
}

// Run starts the router and blocks until ctx is cancelled or Close is called.
// Tasks run under ctx, so cancelling it is the only way to abort them.
func (q *Queue) Run(ctx context.Context) error {
	q.mu.Lock()
	q.baseCtx = ctx
	q.mu.Unlock()

	if err := q.router.Run(ctx); err != nil {
		return fmt.Errorf("ingest router: %w", err)
	}
	return nil
}

// Running is closed once the router is consuming.
func (q *Queue) Running() <-chan struct{} {
	return q.router.Running()
}

// IsRunning reports whether the router is consuming.
func (q *Queue) IsRunning() bool {
	return q.router.IsRunning()
}

// Close stops the router, waiting up to CloseTimeout for a running task, and
// then closes the topic.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	routerErr := q.router.Close()
	pubsubErr := q.pubsub.Close()
	return errors.Join(routerErr, pubsubErr)
}

func (q *Queue) context() context.Context {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.baseCtx
}
