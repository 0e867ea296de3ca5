package eventlog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"memberd/internal/platform/requestmeta"
)

// Recorder appends entries enriched with the caller's request metadata.
// Recording is best-effort: a failed append is logged and never fails the
// operation being recorded.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

func WithLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends an entry for action by accountID (nil for anonymous
// actions). IP and user agent come from the request metadata in ctx; the raw
// user agent is stored verbatim and a human-readable summary is added to
// details.
func (r *Recorder) Record(ctx context.Context, action string, accountID *uuid.UUID, details map[string]any) {
	meta := requestmeta.FromContext(ctx)

	if summary := summarizeUserAgent(meta.UserAgent); summary != "" {
		if details == nil {
			details = make(map[string]any, 1)
		}
		if _, exists := details["client"]; !exists {
			details["client"] = summary
		}
	}

	entry := &Entry{
		AccountID: accountID,
		Action:    action,
		Details:   details,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
	}
	if err := r.store.Append(ctx, entry); err != nil {
		r.logger.Error("event_log_append_failed",
			"action", action,
			"error", err,
		)
	}
}

// summarizeUserAgent reduces a raw user agent to "Browser on OS".
func summarizeUserAgent(raw string) string {
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	name, _ := ua.Browser()
	os := ua.OSInfo().Name
	switch {
	case name != "" && os != "":
		return fmt.Sprintf("%s on %s", name, os)
	case name != "":
		return name
	case os != "":
		return os
	default:
		return ""
	}
}
