package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const writeTimeout = 5 * time.Second

// LearnerHeader identifies the caller. Authentication happens upstream.
const LearnerHeader = "X-Learner-ID"

// LearnerID returns the caller's id from the X-Learner-ID header or the
// learner_id query parameter.
func LearnerID(r *http.Request) string {
	if id := r.Header.Get(LearnerHeader); id != "" {
		return id
	}
	return r.URL.Query().Get("learner_id")
}

// Hub pushes events to learners connected over websocket. A learner may hold
// several connections.
type Hub struct {
	mu    sync.Mutex
	conns map[string]map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string]map[*websocket.Conn]struct{})}
}

// ServeHTTP upgrades the request and keeps the connection registered until the
// client goes away. The learner is identified by LearnerID.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	learnerID := LearnerID(r)
	if learnerID == "" {
		http.Error(w, "learner_id is required", http.StatusBadRequest)
		return
	}

	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "learner_id", learnerID, "error", err)
		return
	}
	h.add(learnerID, c)
	defer h.remove(learnerID, c)

	// The client never sends; CloseRead handles control frames until it disconnects.
	ctx := c.CloseRead(r.Context())
	<-ctx.Done()
	c.Close(websocket.StatusNormalClosure, "")
}

// Connections returns the number of open connections for a learner.
func (h *Hub) Connections(learnerID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns[learnerID])
}

func (h *Hub) add(learnerID string, c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[learnerID] == nil {
		h.conns[learnerID] = make(map[*websocket.Conn]struct{})
	}
	h.conns[learnerID][c] = struct{}{}
}

func (h *Hub) remove(learnerID string, c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns[learnerID], c)
	if len(h.conns[learnerID]) == 0 {
		delete(h.conns, learnerID)
	}
}

// Notify writes the event to every connection of the learner. A learner with
// no open connection is not an error.
func (h *Hub) Notify(ctx context.Context, event Event) error {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns[event.LearnerID]))
	for c := range h.conns[event.LearnerID] {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	var errs []error
	for _, c := range conns {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := wsjson.Write(wctx, c, wireEvent(event))
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("write to learner %s: %w", event.LearnerID, err))
		}
	}
	return errors.Join(errs...)
}
