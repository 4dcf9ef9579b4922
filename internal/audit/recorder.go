package audit

import (
	"context"
	"sync"
)

// Recorder накапливает события в памяти. Используется в тестах.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder создает пустой Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit сохраняет событие.
func (r *Recorder) Emit(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events возвращает копию накопленных событий.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// ByKind возвращает события заданного вида.
func (r *Recorder) ByKind(kind Kind) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
