// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearthgate Contributors

// Package audit provides structured audit logging for authorization
// decisions.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
)

// Mode controls which decisions are logged.
type Mode string

// Audit logging modes.
const (
	ModeDenialsOnly Mode = "denials_only"
	ModeAll         Mode = "all"
)

// Entry is a single authorization decision.
type Entry struct {
	ID          string        `json:"id"`
	Subject     string        `json:"subject"`
	MessageType string        `json:"message_type"`
	PlaceID     string        `json:"place_id"`
	Authorized  bool          `json:"authorized"`
	Reason      string        `json:"reason"`
	Duration    time.Duration `json:"duration_us"`
	Timestamp   time.Time     `json:"timestamp"`
}

// Logger writes decision entries through slog. Recording never fails the
// decision; a nil *Logger is a no-op so strategies can run without audit.
type Logger struct {
	mode   Mode
	logger *slog.Logger
}

// NewLogger creates an audit logger. mode defaults to denials-only; logger
// defaults to slog.Default.
func NewLogger(mode Mode, logger *slog.Logger) *Logger {
	if mode == "" {
		mode = ModeDenialsOnly
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{mode: mode, logger: logger}
}

// Record logs a decision entry according to the mode. Entry ids are
// assigned here; callers pass Entry with ID unset.
func (l *Logger) Record(ctx context.Context, entry Entry) {
	if l == nil {
		return
	}
	if l.mode == ModeDenialsOnly && entry.Authorized {
		return
	}
	entry.ID = ulid.Make().String()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	level := slog.LevelInfo
	if !entry.Authorized {
		level = slog.LevelWarn
	}
	l.logger.LogAttrs(ctx, level, "authorization decision",
		slog.String("audit_id", entry.ID),
		slog.String("subject", entry.Subject),
		slog.String("message_type", entry.MessageType),
		slog.String("place_id", entry.PlaceID),
		slog.Bool("authorized", entry.Authorized),
		slog.String("reason", entry.Reason),
		slog.Int64("duration_us", entry.Duration.Microseconds()),
		slog.Time("timestamp", entry.Timestamp),
	)
}
