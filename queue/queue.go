// Package queue runs deferred work such as chat notifications outside the request that triggered it.
// Tasks are JSON envelopes pushed onto a Redis list and consumed by a worker, or run in process when no
// Redis is configured.
package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/newsapps/foiatracker/metrics"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrUnknownTask is returned when no handler is registered for a task name
var ErrUnknownTask = errors.New("queue: no handler registered for task")

// Task is the envelope pushed onto the queue
type Task struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Args       json.RawMessage `json:"args"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// NewTask marshals args into a new task envelope
func NewTask(name string, args interface{}) (Task, error) {
	b, err := json.Marshal(args)
	if err != nil {
		return Task{}, errors.Wrapf(err, "queue: failed to marshal args for %v", name)
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return Task{}, errors.Wrap(err, "queue: failed to generate task id")
	}

	return Task{
		ID:         id.String(),
		Name:       name,
		Args:       b,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// Enqueuer schedules a named task to run later
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, args interface{}) error
}

// HandlerFunc runs a task given its raw arguments
type HandlerFunc func(ctx context.Context, args json.RawMessage) error

// Mux dispatches tasks to the handler registered under their name
type Mux struct {
	handlers map[string]HandlerFunc
	m        sync.RWMutex
}

// NewMux returns an empty Mux
func NewMux() *Mux {
	return &Mux{handlers: make(map[string]HandlerFunc)}
}

// Handle registers h for tasks called name
func (mx *Mux) Handle(name string, h HandlerFunc) {
	mx.m.Lock()
	defer mx.m.Unlock()

	mx.handlers[name] = h
}

// Run calls the handler for t and records the outcome
func (mx *Mux) Run(ctx context.Context, t Task) error {
	mx.m.RLock()
	h, ok := mx.handlers[t.Name]
	mx.m.RUnlock()

	if !ok {
		metrics.Tasks.WithLabelValues(t.Name, "unknown").Inc()
		return errors.Wrap(ErrUnknownTask, t.Name)
	}

	if err := h(ctx, t.Args); err != nil {
		metrics.Tasks.WithLabelValues(t.Name, "error").Inc()
		return errors.Wrapf(err, "queue: task %v (%v) failed", t.Name, t.ID)
	}

	metrics.Tasks.WithLabelValues(t.Name, "ok").Inc()
	return nil
}

// Inline runs tasks immediately in the calling goroutine. Handler failures are logged, not returned.
type Inline struct {
	mux *Mux
}

var _ Enqueuer = &Inline{}

// NewInline returns an Inline enqueuer dispatching to mux
func NewInline(mux *Mux) *Inline {
	return &Inline{mux: mux}
}

// Enqueue runs the task straight away
func (i *Inline) Enqueue(ctx context.Context, name string, args interface{}) error {
	t, err := NewTask(name, args)
	if err != nil {
		return err
	}

	if err := i.mux.Run(ctx, t); err != nil {
		log.WithField("task", name).WithError(err).Error("Inline: task failed")
	}

	return nil
}
