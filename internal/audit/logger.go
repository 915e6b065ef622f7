// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package audit

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/riqo-ingest/internal/config"
	"github.com/tomtom215/riqo-ingest/internal/logging"
)

// Config holds configuration for the audit logger.
type Config struct {
	Enabled bool

	// LogLevel drops events below this severity.
	LogLevel Severity

	// RetentionDays is how long events are kept. Zero keeps them forever.
	RetentionDays   int
	CleanupInterval time.Duration

	// BufferSize bounds the async write queue.
	BufferSize int

	// LogToStdout mirrors events into the application log.
	LogToStdout bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		LogLevel:        SeverityInfo,
		RetentionDays:   90,
		CleanupInterval: 24 * time.Hour,
		BufferSize:      1000,
	}
}

// ConfigFrom maps the loaded audit settings onto Config.
func ConfigFrom(c config.AuditConfig) *Config {
	cfg := DefaultConfig()
	cfg.Enabled = c.Enabled
	cfg.RetentionDays = c.RetentionDays
	cfg.LogToStdout = c.LogToStdout
	if c.BufferSize > 0 {
		cfg.BufferSize = c.BufferSize
	}
	return cfg
}

// Logger writes audit events asynchronously. A nil *Logger discards events,
// so callers may hold an optional logger without nil checks.
type Logger struct {
	config    *Config
	store     Store
	eventChan chan *Event
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	now       func() time.Time
}

// NewLogger creates a logger and starts its writer goroutine.
func NewLogger(store Store, cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultConfig().CleanupInterval
	}

	l := &Logger{
		config:    cfg,
		store:     store,
		eventChan: make(chan *Event, cfg.BufferSize),
		stopChan:  make(chan struct{}),
		now:       time.Now,
	}
	l.wg.Add(1)
	go l.asyncWriter()
	return l
}

func (l *Logger) asyncWriter() {
	defer l.wg.Done()

	for {
		select {
		case <-l.stopChan:
			for {
				select {
				case event := <-l.eventChan:
					l.writeEvent(event)
				default:
					return
				}
			}
		case event := <-l.eventChan:
			l.writeEvent(event)
		}
	}
}

func (l *Logger) writeEvent(event *Event) {
	if l.config.LogToStdout {
		if data, err := json.Marshal(event); err == nil {
			logging.Info().RawJSON("event", data).Msg("Audit event")
		}
	}
	if l.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.store.Save(ctx, event); err != nil {
		logging.Error().Err(err).Str("event_type", string(event.Type)).Msg("Failed to save audit event")
	}
}

// Log queues an event. ID and Timestamp are filled in when empty. Events
// arriving while the buffer is full are dropped.
func (l *Logger) Log(event *Event) {
	if l == nil || event == nil || !l.config.Enabled {
		return
	}
	if severityOrder[event.Severity] < severityOrder[l.config.LogLevel] {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now().UTC()
	}

	select {
	case <-l.stopChan:
		return
	default:
	}

	select {
	case l.eventChan <- event:
	default:
		logging.Warn().Str("event_type", string(event.Type)).Msg("Audit event buffer full, dropping event")
	}
}

// Close flushes queued events and stops the writer. Safe to call twice.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.stopOnce.Do(func() { close(l.stopChan) })
	l.wg.Wait()
	return nil
}

// Serve runs retention cleanup until ctx is cancelled. It implements
// suture.Service.
func (l *Logger) Serve(ctx context.Context) error {
	if l.config.RetentionDays <= 0 || l.store == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	l.cleanup(ctx)
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.cleanup(ctx)
		}
	}
}

func (l *Logger) String() string { return "audit-retention" }

func (l *Logger) cleanup(ctx context.Context) {
	cutoff := l.now().AddDate(0, 0, -l.config.RetentionDays)
	count, err := l.store.Delete(ctx, cutoff)
	if err != nil {
		logging.Error().Err(err).Msg("Audit cleanup error")
		return
	}
	if count > 0 {
		logging.Info().Int64("count", count).Time("older_than", cutoff).Msg("Cleaned up old audit events")
	}
}

// Query returns matching events from the store.
func (l *Logger) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	return l.store.Query(ctx, filter)
}

// Count returns the number of matching events in the store.
func (l *Logger) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	return l.store.Count(ctx, filter)
}

// LogAuthzDenied records a request the policy rejected.
func (l *Logger) LogAuthzDenied(ctx context.Context, actor Actor, source Source, method, path string) {
	l.Log(&Event{
		Type:        EventTypeAuthzDenied,
		Severity:    SeverityWarning,
		Outcome:     OutcomeFailure,
		Actor:       actor,
		Source:      source,
		Action:      method + " " + path,
		Description: "Access denied for role " + actor.Role,
		RequestID:   logging.RequestIDFromContext(ctx),
	})
}

// DestinationChange describes new destination settings without credentials.
type DestinationChange struct {
	TenantID   string `json:"tenant_id"`
	TableName  string `json:"data_table_name"`
	ClientType string `json:"client_type"`
}

// LogDestinationConfigured records a tenant's destination being replaced.
// byAdmin distinguishes administrator changes from self-service ones.
func (l *Logger) LogDestinationConfigured(ctx context.Context, actor Actor, source Source, change DestinationChange, byAdmin bool) {
	event := &Event{
		Type:        EventTypeDestinationConfigured,
		Severity:    SeverityInfo,
		Outcome:     OutcomeSuccess,
		Actor:       actor,
		Target:      &Target{ID: change.TenantID, Type: "tenant"},
		Source:      source,
		Action:      "configure_destination",
		Description: "Destination settings updated",
		Metadata:    mustJSON(change),
		RequestID:   logging.RequestIDFromContext(ctx),
	}
	if byAdmin {
		event.Type = EventTypeAdminConfigureUser
		event.Severity = SeverityWarning
		event.Description = "Administrator updated tenant destination settings"
	}
	l.Log(event)
}

// LogUserLookup records an administrator resolving a tenant by email.
// targetID is empty when no tenant matched.
func (l *Logger) LogUserLookup(ctx context.Context, actor Actor, source Source, email, targetID string) {
	event := &Event{
		Type:        EventTypeAdminUserLookup,
		Severity:    SeverityInfo,
		Outcome:     OutcomeSuccess,
		Actor:       actor,
		Source:      source,
		Action:      "get_user_by_email",
		Description: "Administrator looked up a tenant by email",
		Metadata:    mustJSON(map[string]string{"email": email}),
		RequestID:   logging.RequestIDFromContext(ctx),
	}
	if targetID != "" {
		event.Target = &Target{ID: targetID, Type: "tenant"}
	} else {
		event.Outcome = OutcomeFailure
	}
	l.Log(event)
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}

// SourceFromRequest extracts the caller address. It expects chi's RealIP
// middleware to have already resolved forwarding headers into RemoteAddr.
func SourceFromRequest(r *http.Request) Source {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return Source{IPAddress: ip, UserAgent: r.UserAgent()}
}
