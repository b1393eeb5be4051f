package web

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Event is a single console message for the SSE stream.
type Event struct {
	Time  string `json:"t"`
	Level string `json:"level,omitempty"`
	Msg   string `json:"msg"`
}

// Broadcaster fans events out to every connected console client.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel that receives broadcast events and a
// cleanup function. The caller must call the cleanup when done (on
// client disconnect).
func (b *Broadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		delete(b.clients, ch)
		b.mu.Unlock()
		close(ch)
	}
	return ch, unsub
}

// Broadcast sends one event to all subscribed clients as JSON:
// {"t":"...","level":"info","msg":"..."}. Slow clients miss events
// rather than stalling the sender.
func (b *Broadcaster) Broadcast(level, msg string) {
	evt := Event{
		Time:  time.Now().Format(time.RFC3339),
		Level: level,
		Msg:   msg,
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
			// channel full, client loses this one
		}
	}
}

// Broadcastf formats and broadcasts in one call.
func (b *Broadcaster) Broadcastf(level, format string, args ...any) {
	b.Broadcast(level, fmt.Sprintf(format, args...))
}

// BroadcastWriter wraps the broadcaster as an io.Writer so the debug
// log stream can be mirrored to connected consoles via SetOutput.
// Each write becomes one "log" event.
func BroadcastWriter(b *Broadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

type broadcastWriter struct {
	b *Broadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		w.b.Broadcast("log", msg)
	}
	return len(p), nil
}
