package log

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sbernard31/lualwm2m/pkg/wire"
)

func messageEvent(session string, op wire.Operation, uri string) Event {
	return Event{
		Timestamp: time.Now(),
		SessionID: session,
		Direction: DirectionIn,
		Layer:     LayerWire,
		Category:  CategoryMessage,
		Endpoint:  "dev-1",
		Message: &MessageEvent{
			Type:      MessageTypeRequest,
			MessageID: 7,
			Operation: &op,
			URI:       uri,
		},
	}
}

func writeLog(t *testing.T, events ...Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test"+FileExtension)

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return path
}

func readAll(t *testing.T, r *Reader) []Event {
	t.Helper()
	var out []Event
	for {
		e, err := r.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		out = append(out, e)
	}
}

func TestEventRoundTrip(t *testing.T) {
	status := wire.StatusContent
	elapsed := 3 * time.Millisecond
	event := Event{
		Timestamp:  time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC),
		SessionID:  "sess",
		Direction:  DirectionOut,
		Layer:      LayerWire,
		Category:   CategoryMessage,
		RemoteAddr: "127.0.0.1:5683",
		Message: &MessageEvent{
			Type:           MessageTypeResponse,
			MessageID:      42,
			Status:         &status,
			Records:        3,
			ProcessingTime: &elapsed,
		},
	}

	data, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	got, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if !got.Timestamp.Equal(event.Timestamp) {
		t.Errorf("Timestamp: got %v, want %v", got.Timestamp, event.Timestamp)
	}
	if got.Message == nil || got.Message.Status == nil || *got.Message.Status != status {
		t.Fatalf("Message status lost: %+v", got.Message)
	}
	if got.Message.Records != 3 || *got.Message.ProcessingTime != elapsed {
		t.Errorf("Message: got %+v", got.Message)
	}
	if got.RemoteAddr != event.RemoteAddr {
		t.Errorf("RemoteAddr: got %q", got.RemoteAddr)
	}
}

func TestFileLoggerAppendsAndIgnoresAfterClose(t *testing.T) {
	path := writeLog(t, messageEvent("a", wire.OpRead, "/3/0"))

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatal(err)
	}
	logger.Log(messageEvent("b", wire.OpWrite, "/3/0/1"))
	logger.Close()
	logger.Log(messageEvent("c", wire.OpDelete, "/3/0"))
	if err := logger.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	events := readAll(t, r)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].SessionID != "a" || events[1].SessionID != "b" {
		t.Errorf("unexpected order: %q, %q", events[0].SessionID, events[1].SessionID)
	}
}

func TestReaderFilter(t *testing.T) {
	state := Event{
		Timestamp: time.Now(),
		SessionID: "a",
		Layer:     LayerService,
		Category:  CategoryState,
		StateChange: &StateChangeEvent{
			Entity:   StateEntityServer,
			NewState: "REGISTERED",
		},
	}
	path := writeLog(t,
		messageEvent("a", wire.OpRead, "/3/0"),
		messageEvent("a", wire.OpRead, "/3303/0/5700"),
		messageEvent("b", wire.OpRead, "/3/0/1"),
		state,
	)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"session", Filter{SessionID: "a"}, 3},
		{"uri prefix", Filter{URIPrefix: "/3/"}, 2},
		{"category", Filter{Category: ptr(CategoryState)}, 1},
		{"message type", Filter{MessageType: ptr(MessageTypeRequest)}, 3},
		{"endpoint", Filter{Endpoint: "dev-1"}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewFilteredReader(path, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			defer r.Close()
			if got := len(readAll(t, r)); got != tt.want {
				t.Errorf("got %d events, want %d", got, tt.want)
			}
		})
	}
}

func ptr[T any](v T) *T { return &v }

func TestStreamLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewStreamLogger(&buf)
	l.Log(messageEvent("s", wire.OpExecute, "/3/0/4"))
	l.Close()

	events := readAll(t, NewStreamReader(&buf, Filter{}))
	if len(events) != 1 || events[0].Message.URI != "/3/0/4" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

type countingLogger struct{ n int }

func (c *countingLogger) Log(Event) { c.n++ }

func TestMultiLogger(t *testing.T) {
	a, b := &countingLogger{}, &countingLogger{}
	m := NewMultiLogger(a, nil, b)

	m.Log(Event{})
	m.Log(Event{})

	if a.n != 2 || b.n != 2 {
		t.Errorf("got %d and %d events, want 2 each", a.n, b.n)
	}
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	NewSlogAdapter(logger).Log(messageEvent("s", wire.OpRead, "/3/0"))

	out := buf.String()
	for _, want := range []string{"session_id=s", "operation=Read", "uri=/3/0", "msg_type=REQUEST"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestNewDatagramEventTruncates(t *testing.T) {
	ev := NewDatagramEvent(make([]byte, MaxDatagramDataSize+10))
	if !ev.Truncated || len(ev.Data) != MaxDatagramDataSize || ev.Size != MaxDatagramDataSize+10 {
		t.Errorf("unexpected event: size=%d len=%d truncated=%v", ev.Size, len(ev.Data), ev.Truncated)
	}
}

func TestOrNoop(t *testing.T) {
	if _, ok := OrNoop(nil).(NoopLogger); !ok {
		t.Error("OrNoop(nil) should return NoopLogger")
	}
	c := &countingLogger{}
	if OrNoop(c) != Logger(c) {
		t.Error("OrNoop should return the given logger")
	}
}

func TestReaderMissingFile(t *testing.T) {
	_, err := NewReader(filepath.Join(t.TempDir(), "missing.llog"))
	if !os.IsNotExist(err) {
		t.Errorf("err = %v, want not-exist", err)
	}
}
