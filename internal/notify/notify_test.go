package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/pai-course/internal/notify"
)

func TestEvent_Message(t *testing.T) {
	tests := []struct {
		kind, title  string
		wantMessage  string
		wantHeadline string
	}{
		{"chapter", "Loops", `New chapter unlocked: "Loops"`, "Chapter Unlocked"},
		{"subchapter", "For loops", `New subchapter unlocked: "For loops"`, "Subchapter Unlocked"},
		{"section", `Say "hi"`, `New section unlocked: "Say \"hi\""`, "Section Unlocked"},
	}
	for _, tt := range tests {
		e := notify.NewEvent("u1", "c1", tt.kind, tt.title, "0-0-0")
		if got := e.Message(); got != tt.wantMessage {
			t.Errorf("Message() = %q, want %q", got, tt.wantMessage)
		}
		if got := e.Headline(); got != tt.wantHeadline {
			t.Errorf("Headline() = %q, want %q", got, tt.wantHeadline)
		}
		if e.ID == "" || e.CreatedAt.IsZero() {
			t.Errorf("NewEvent() left id or timestamp empty: %+v", e)
		}
	}
}

func TestMemorySink(t *testing.T) {
	s := notify.NewMemorySink()
	if err := s.Notify(t.Context(), notify.Event{}); err == nil {
		t.Error("Notify() without kind should fail")
	}
	if err := s.Notify(t.Context(), notify.NewEvent("u1", "c1", "section", "x", "0-0-1")); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if got := len(s.Events()); got != 1 {
		t.Errorf("len(Events()) = %d, want 1", got)
	}
}

type failingSink struct{ err error }

func (f failingSink) Notify(context.Context, notify.Event) error { return f.err }

func TestMultiSink_DeliversToAllAndJoinsErrors(t *testing.T) {
	errA := errors.New("a down")
	mem := notify.NewMemorySink()
	multi := notify.MultiSink{failingSink{errA}, nil, mem}

	err := multi.Notify(t.Context(), notify.NewEvent("u1", "c1", "chapter", "x", "1-0-0"))
	if !errors.Is(err, errA) {
		t.Errorf("Notify() error = %v, want %v", err, errA)
	}
	if len(mem.Events()) != 1 {
		t.Error("MultiSink stopped at the first failing sink")
	}

	if err := (notify.MultiSink{notify.NopSink{}, mem}).Notify(t.Context(), notify.NewEvent("u1", "c1", "chapter", "y", "")); err != nil {
		t.Errorf("Notify() error = %v, want nil", err)
	}
}

type recordingPublisher struct {
	channel string
	payload []byte
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, payload []byte) error {
	p.channel = channel
	p.payload = payload
	return nil
}

func TestRedisSink(t *testing.T) {
	pub := &recordingPublisher{}
	s := notify.NewRedisSink(pub, "")

	if err := s.Notify(t.Context(), notify.NewEvent("u7", "c1", "subchapter", "Maps", "0-1-0")); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if pub.channel != "unlocks:u7" {
		t.Errorf("channel = %q, want unlocks:u7", pub.channel)
	}

	var got map[string]any
	if err := json.Unmarshal(pub.payload, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got["message"] != `New subchapter unlocked: "Maps"` {
		t.Errorf("message = %v", got["message"])
	}
	if got["kind"] != "subchapter" || got["learner_id"] != "u7" {
		t.Errorf("payload = %v, want kind and learner_id", got)
	}
}

func TestHub_DeliversToConnectedLearner(t *testing.T) {
	hub := notify.NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?learner_id=u1"
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.CloseNow()

	for hub.Connections("u1") == 0 {
		select {
		case <-ctx.Done():
			t.Fatal("connection was never registered")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Another learner's event is not delivered.
	if err := hub.Notify(ctx, notify.NewEvent("u2", "c1", "section", "other", "0-0-1")); err != nil {
		t.Fatalf("Notify(u2) error = %v", err)
	}
	if err := hub.Notify(ctx, notify.NewEvent("u1", "c1", "section", "Intro", "0-0-1")); err != nil {
		t.Fatalf("Notify(u1) error = %v", err)
	}

	var got map[string]any
	if err := wsjson.Read(ctx, c, &got); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got["title"] != "Intro" {
		t.Errorf("title = %v, want Intro", got["title"])
	}
}

func TestHub_IdentifiesLearnerByHeader(t *testing.T) {
	hub := notify.NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/", &websocket.DialOptions{
		HTTPHeader: http.Header{notify.LearnerHeader: []string{"u7"}},
	})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.CloseNow()

	for hub.Connections("u7") == 0 {
		select {
		case <-ctx.Done():
			t.Fatal("connection was never registered under the header id")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestLearnerID(t *testing.T) {
	tests := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{"header", "u1", "", "u1"},
		{"query", "", "u2", "u2"},
		{"header wins", "u1", "u2", "u1"},
		{"none", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws?learner_id="+tt.query, nil)
			if tt.header != "" {
				r.Header.Set(notify.LearnerHeader, tt.header)
			}
			if got := notify.LearnerID(r); got != tt.want {
				t.Errorf("LearnerID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHub_RequiresLearner(t *testing.T) {
	hub := notify.NewHub()
	rec := httptest.NewRecorder()
	hub.ServeHTTP(rec, httptest.NewRequest("GET", "/ws", nil))
	if rec.Code != 400 {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
