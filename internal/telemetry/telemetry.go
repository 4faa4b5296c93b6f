package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

// Reporter sends session transactions and errors to Sentry. The zero
// value and a Reporter built with an empty DSN are disabled no-ops.
type Reporter struct {
	enabled bool
}

// New initialises Sentry when dsn is non-empty.
func New(dsn, release string) (*Reporter, error) {
	if dsn == "" {
		return &Reporter{}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Release:          release,
		EnableTracing:    true,
		TracesSampleRate: 1.0,
	})
	if err != nil {
		return &Reporter{}, fmt.Errorf("sentry init: %w", err)
	}
	return &Reporter{enabled: true}, nil
}

// Enabled reports whether events are sent anywhere.
func (r *Reporter) Enabled() bool {
	return r != nil && r.enabled
}

// CaptureError records err. Nil errors are ignored.
func (r *Reporter) CaptureError(err error) {
	if !r.Enabled() || err == nil {
		return
	}
	sentry.CaptureException(err)
}

// Flush waits up to timeout for buffered events to be delivered.
func (r *Reporter) Flush(timeout time.Duration) {
	if !r.Enabled() {
		return
	}
	sentry.Flush(timeout)
}

// SessionTags describe a playback session before it starts.
type SessionTags struct {
	Backend    string // requested backend; the sinks used are known at Finish
	SampleRate int
	Duration   float64
	Chunks     int
}

// Session tracks one playback session as a Sentry transaction.
type Session struct {
	tx *sentry.Span
}

// StartSession opens a transaction for one playback session. The returned
// context carries the transaction.
func (r *Reporter) StartSession(ctx context.Context, tags SessionTags) (context.Context, *Session) {
	if !r.Enabled() {
		return ctx, &Session{}
	}
	tx := sentry.StartTransaction(ctx, "bytebeat.play")
	tx.SetTag("backend", tags.Backend)
	tx.SetTag("sample_rate", fmt.Sprintf("%d", tags.SampleRate))
	tx.SetData("duration", tags.Duration)
	tx.SetData("chunks", tags.Chunks)
	return tx.Context(), &Session{tx: tx}
}

// Outcome is how a playback session ended.
type Outcome struct {
	Sinks       []string // sinks that played, in order
	Chunks      int
	Faults      int
	Interrupted bool
	Err         error
}

func (o Outcome) tags() map[string]string {
	sink := strings.Join(o.Sinks, ",")
	if sink == "" {
		sink = "none"
	}
	return map[string]string{
		"sink":        sink,
		"interrupted": strconv.FormatBool(o.Interrupted),
	}
}

func (o Outcome) status() sentry.SpanStatus {
	switch {
	case o.Err != nil:
		return sentry.SpanStatusInternalError
	case o.Interrupted:
		return sentry.SpanStatusCanceled
	}
	return sentry.SpanStatusOK
}

// Finish tags the transaction with the session outcome and closes it.
func (s *Session) Finish(o Outcome) {
	if s == nil || s.tx == nil {
		return
	}
	for k, v := range o.tags() {
		s.tx.SetTag(k, v)
	}
	s.tx.SetData("chunks_played", o.Chunks)
	s.tx.SetData("sample_faults", o.Faults)
	s.tx.Status = o.status()
	s.tx.Finish()
}
