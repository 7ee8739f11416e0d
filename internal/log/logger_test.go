package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func testLogger(buf *bytes.Buffer, component string) *Logger {
	return New(Config{
		Component: component,
		Handler:   slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	})
}

func TestLoggerIncludesComponent(t *testing.T) {
	var buf bytes.Buffer
	l := testLogger(&buf, ComponentSync)

	l.Info("sync pass complete", FieldOwnerID, "u1")

	out := buf.String()
	if !strings.Contains(out, "component=sync") {
		t.Errorf("output missing component field: %s", out)
	}
	if !strings.Contains(out, "owner_id=u1") {
		t.Errorf("output missing caller field: %s", out)
	}
}

func TestWithComponentSwitches(t *testing.T) {
	var buf bytes.Buffer
	l := testLogger(&buf, ComponentApp)

	worker := l.WithComponent(ComponentWorker)
	if worker.Component() != ComponentWorker {
		t.Errorf("Component() = %q, want %q", worker.Component(), ComponentWorker)
	}
	if l.Component() != ComponentApp {
		t.Error("WithComponent must not mutate the parent logger")
	}
}

func TestLogFieldsBuilder(t *testing.T) {
	f := NewFields().
		WithComponent(ComponentWorker).
		WithOperation(OpSync).
		WithRecord("rec-1", "u1").
		WithSyncPass(3, 7)

	if f[FieldRecordID] != "rec-1" || f[FieldOwnerID] != "u1" {
		t.Errorf("record fields not set: %#v", f)
	}
	if f[FieldPushed] != 3 || f[FieldPulled] != 7 {
		t.Errorf("sync pass fields not set: %#v", f)
	}

	args := f.Args()
	if len(args) != len(f)*2 {
		t.Errorf("Args() length = %d, want %d", len(args), len(f)*2)
	}
}

func TestWithErrorSkipsNil(t *testing.T) {
	f := NewFields().WithError(nil)
	if _, ok := f[FieldError]; ok {
		t.Error("nil error must not add a field")
	}
}
