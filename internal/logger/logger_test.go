package logger

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, detailed bool) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	prevLogger, prevDetailed := globalLogger, detailedLogging
	globalLogger = zap.New(core).Sugar()
	detailedLogging = detailed
	t.Cleanup(func() {
		globalLogger, detailedLogging = prevLogger, prevDetailed
	})
	return logs
}

func TestOperationTimerLogsFailure(t *testing.T) {
	logs := observe(t, true)

	op := StartOperation(context.Background(), "upstream.Poll", "instruments", 3)
	if op.GetContext() == nil {
		t.Fatal("operation context is nil")
	}
	op.EndWithError(errors.New("boom"), "class", "transient")

	if n := logs.FilterMessage("Operation started").Len(); n != 1 {
		t.Errorf("expected one start entry, got %d", n)
	}
	failed := logs.FilterMessage("Operation failed").All()
	if len(failed) != 1 {
		t.Fatalf("expected one failure entry, got %d", len(failed))
	}
	fields := failed[0].ContextMap()
	if fields["operation"] != "upstream.Poll" || fields["class"] != "transient" || fields["error"] != "boom" {
		t.Errorf("unexpected fields %v", fields)
	}
	if failed[0].Level != zapcore.ErrorLevel {
		t.Errorf("failure logged at %s", failed[0].Level)
	}
}

func TestOperationTimerQuietWithoutDetail(t *testing.T) {
	logs := observe(t, false)

	op := StartOperation(context.Background(), "engine.ResetSession")
	op.End()

	if logs.Len() != 0 {
		t.Errorf("successful operations should not log without detail, got %d entries", logs.Len())
	}
	if IsDebugEnabled() {
		t.Error("debug should be disabled")
	}
}

func TestSkipVariantsKeepLevels(t *testing.T) {
	logs := observe(t, true)
	ctx := context.Background()

	WarnSkip(ctx, 0, "throttled", "class", "rate_limited")
	InfoSkip(ctx, 0, "passed")
	DebugSkip(ctx, 0, "detail")
	ErrorWithErrSkip(ctx, 0, "failed", errors.New("x"))

	want := map[string]zapcore.Level{
		"throttled": zapcore.WarnLevel,
		"passed":    zapcore.InfoLevel,
		"detail":    zapcore.DebugLevel,
		"failed":    zapcore.ErrorLevel,
	}
	for msg, lvl := range want {
		entries := logs.FilterMessage(msg).All()
		if len(entries) != 1 || entries[0].Level != lvl {
			t.Errorf("%s: got %v", msg, entries)
		}
	}
}
