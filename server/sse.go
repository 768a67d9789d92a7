package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"content_draft_generator/generator"
)

// eventStream writes server-sent events for one request.
type eventStream struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

func newEventStream(w http.ResponseWriter) (*eventStream, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &eventStream{w: w, flusher: flusher}, true
}

type stageEventView struct {
	Stage      string `json:"stage"`
	Index      int    `json:"index"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	Error      string `json:"error,omitempty"`
}

type chunkView struct {
	Stage string `json:"stage"`
	Text  string `json:"text"`
}

// runOptions forwards stage boundaries and streamed chunks to the client.
// Chunks only arrive when the session has streaming enabled.
func (e *eventStream) runOptions() []generator.RunOption {
	return []generator.RunOption{
		generator.WithCallHooks(generator.Hooks{
			OnStageStart: func(_ context.Context, ev generator.StageEvent) {
				e.send("stage_start", stageEventView{Stage: ev.Stage, Index: ev.Index})
			},
			OnStageEnd: func(_ context.Context, ev generator.StageEvent) {
				v := stageEventView{Stage: ev.Stage, Index: ev.Index, DurationMS: ev.Duration.Milliseconds()}
				if ev.Err != nil {
					v.Error = ev.Err.Error()
				}
				e.send("stage_end", v)
			},
		}),
		generator.WithProgress(func(stage, chunk string) {
			e.send("chunk", chunkView{Stage: stage, Text: chunk})
		}),
	}
}

func (e *eventStream) send(event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event, data)
	e.flusher.Flush()
}

func (e *eventStream) sendError(err error) {
	e.send("error", map[string]any{"error": err.Error(), "status": statusFor(err)})
}
