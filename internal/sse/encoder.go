// Package sse encodes mission stream events into the Server-Sent Events wire format.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// EventType identifies the kind of a stream event.
type EventType string

const (
	EventToken     EventType = "token"
	EventToolStart EventType = "tool_start"
	EventToolEnd   EventType = "tool_end"
	EventDone      EventType = "done"
	EventError     EventType = "error"
)

// Event is a single frame on the mission stream. Content carries token text,
// a tool name, or an error message; it is empty for done events.
type Event struct {
	Type    EventType `json:"type"`
	Content string    `json:"content"`
}

// Terminal reports whether this event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// Encode renders the event as a single SSE data frame.
func Encode(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("sse: marshal event: %w", err)
	}
	return []byte("data: " + string(data) + "\n\n"), nil
}

// Writer streams events over an http.ResponseWriter, flushing each frame.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter prepares w for SSE streaming and sets the stream headers.
// It fails if the underlying writer does not support flushing.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("sse: streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	return &Writer{w: w, flusher: flusher}, nil
}

// WriteEvent sends one event frame and flushes it to the client.
func (s *Writer) WriteEvent(e Event) error {
	frame, err := Encode(e)
	if err != nil {
		return err
	}
	if _, err := s.w.Write(frame); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
