package main

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/devicelink/signaling-relay/internal/config"
)

type recordedLog struct {
	level slog.Level
	msg   string
	attrs map[string]any
}

type recordingHandler struct {
	mu      *sync.Mutex
	records *[]recordedLog
}

func newRecordingLogger() (*slog.Logger, func() []recordedLog) {
	mu := &sync.Mutex{}
	records := &[]recordedLog{}
	h := &recordingHandler{mu: mu, records: records}
	logger := slog.New(h)
	return logger, func() []recordedLog {
		mu.Lock()
		defer mu.Unlock()
		out := make([]recordedLog, len(*records))
		copy(out, *records)
		return out
	}
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	rec := recordedLog{
		level: r.Level,
		msg:   r.Message,
		attrs: map[string]any{},
	}
	r.Attrs(func(a slog.Attr) bool {
		rec.attrs[a.Key] = a.Value.Any()
		return true
	})

	h.mu.Lock()
	*h.records = append(*h.records, rec)
	h.mu.Unlock()
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func warningCodes(records []recordedLog) []string {
	var out []string
	for _, r := range records {
		if code, ok := r.attrs["warning_code"].(string); ok {
			out = append(out, code)
		}
	}
	return out
}

func TestStartupWarnings_WildcardOrigins(t *testing.T) {
	logger, records := newRecordingLogger()

	logStartupWarnings(logger, config.Config{
		AllowedOrigins: []string{"*"},
		PresenceTTL:    time.Minute,
		PairingTTL:     time.Minute,
	})

	codes := warningCodes(records())
	if len(codes) != 1 || codes[0] != "allowed_origins_wildcard" {
		t.Fatalf("codes=%v, want [allowed_origins_wildcard]", codes)
	}
}

func TestStartupWarnings_SweepSlowerThanTTL(t *testing.T) {
	logger, records := newRecordingLogger()

	logStartupWarnings(logger, config.Config{
		PresenceTTL:           10 * time.Second,
		PresenceSweepInterval: time.Minute,
		PairingTTL:            10 * time.Second,
		PairingSweepInterval:  time.Minute,
	})

	codes := warningCodes(records())
	want := map[string]bool{
		"presence_sweep_slower_than_ttl": true,
		"pairing_sweep_slower_than_ttl":  true,
	}
	if len(codes) != len(want) {
		t.Fatalf("codes=%v, want %v", codes, want)
	}
	for _, c := range codes {
		if !want[c] {
			t.Fatalf("unexpected warning %q", c)
		}
	}
}

func TestStartupWarnings_NoneForSaneConfig(t *testing.T) {
	logger, records := newRecordingLogger()

	logStartupWarnings(logger, config.Config{
		AllowedOrigins:        []string{"https://app.example.com"},
		PresenceTTL:           time.Minute,
		PresenceSweepInterval: 15 * time.Second,
		PairingTTL:            5 * time.Minute,
		PairingSweepInterval:  30 * time.Second,
	})

	if got := records(); len(got) != 0 {
		t.Fatalf("records=%v, want none", got)
	}
}
