package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestClassifyDBErr(t *testing.T) {
	assert.Equal(t, "unique_violation", classifyDBErr(&pgconn.PgError{Code: "23505"}))
	assert.Equal(t, "check_violation", classifyDBErr(&pgconn.PgError{Code: "23514"}))
	assert.Equal(t, "pg_42P01", classifyDBErr(&pgconn.PgError{Code: "42P01"}))
	assert.Equal(t, "timeout", classifyDBErr(context.DeadlineExceeded))
	assert.Equal(t, "unknown", classifyDBErr(errors.New("boom")))
}

func TestProm_ObserveDBCountsErrors(t *testing.T) {
	p := NewProm(prometheus.NewRegistry())

	err := p.ObserveDB("users.create", func() error {
		return &pgconn.PgError{Code: "23505"}
	})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.DbErrorsTotal.WithLabelValues("users.create", "unique_violation")))
}

func TestProm_DomainCounters(t *testing.T) {
	p := NewProm(prometheus.NewRegistry())

	p.ObserveLogin("success")
	p.ObserveLogin("success")
	p.ObservePublish("user.registered", nil)
	p.ObservePublish("user.registered", errors.New("down"))
	p.ObserveNotification("user.updated", "sent")

	assert.Equal(t, 2.0, testutil.ToFloat64(p.LoginsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.EventsPublished.WithLabelValues("user.registered", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.NotificationResults.WithLabelValues("user.updated", "sent")))
}

func TestTraceHandler_AddsIDsInsideSpan(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "prod")

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	log.InfoContext(ctx, "hello")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, traceID.String(), rec["trace_id"])
	assert.Equal(t, spanID.String(), rec["span_id"])
}

func TestWorkerMetrics_Snapshot(t *testing.T) {
	m := NewWorkerMetrics()

	m.IncReceived()
	m.IncHandled()
	m.IncPoll(nil)
	m.IncPoll(errors.New("x"))
	m.ObserveDuration(10 * time.Millisecond)
	m.ObserveDuration(30 * time.Millisecond)

	s := m.Snapshot()
	assert.Equal(t, uint64(1), s.Handled)
	assert.Equal(t, uint64(2), s.Polls)
	assert.Equal(t, uint64(1), s.PollErrors)
	assert.Equal(t, 20*time.Millisecond, s.AverageDuration)
	assert.Equal(t, 30*time.Millisecond, s.MaxDuration)
}
