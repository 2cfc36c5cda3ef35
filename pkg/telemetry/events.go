package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a lifecycle event of a run or the model library.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// RunID is the associated run ID, if applicable.
	RunID string `json:"run_id,omitempty"`

	// RequestID is the associated simulation request, if applicable.
	RequestID string `json:"request_id,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]any `json:"data,omitempty"`
}

// Event types.
const (
	EventTypeRunStarted          = "run.started"
	EventTypeRunCompleted        = "run.completed"
	EventTypeSimulationFinished  = "simulation.finished"
	EventTypeSimulationFailed    = "simulation.failed"
	EventTypeSimulationCancelled = "simulation.cancelled"
	EventTypeModelsReloaded      = "models.reloaded"
)

// Event levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// ErrPublisherClosed is returned by Publish after Shutdown.
var ErrPublisherClosed = errors.New("event publisher stopped")

// ErrBufferFull is returned when an async publisher cannot queue an event.
var ErrBufferFull = errors.New("event buffer full, event dropped")

// EventSubscriber handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be delivered.
type EventFilter func(event Event) bool

// EventPublisher fans events out to subscribers. In async mode events are
// queued and delivered in order from one goroutine.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) *EventPublisher {
	ctx, cancel := context.WithCancel(context.Background())
	ep := &EventPublisher{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.Enabled && cfg.EnableAsync {
		ep.buffer = make(chan Event, cfg.BufferSize)
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}
	if ep.ctx.Err() != nil {
		return ErrPublisherClosed
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Level == "" {
		event.Level = EventLevelInfo
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil
		}
	}
	ep.mu.RUnlock()

	if ep.buffer != nil {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return ErrPublisherClosed
		default:
			return ErrBufferFull
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishRunStarted publishes a run started event.
func (ep *EventPublisher) PublishRunStarted(runID string, requests, workers int) error {
	return ep.Publish(Event{
		Type:    EventTypeRunStarted,
		RunID:   runID,
		Message: "Simulation run started",
		Data: map[string]any{
			"requests": requests,
			"workers":  workers,
		},
	})
}

// PublishRunCompleted publishes a run completed event.
func (ep *EventPublisher) PublishRunCompleted(runID string, duration time.Duration, cancelled bool) error {
	level := EventLevelInfo
	if cancelled {
		level = EventLevelWarning
	}
	return ep.Publish(Event{
		Type:    EventTypeRunCompleted,
		RunID:   runID,
		Message: "Simulation run completed",
		Level:   level,
		Data: map[string]any{
			"duration_ms": duration.Milliseconds(),
			"cancelled":   cancelled,
		},
	})
}

// PublishSimulationFinished publishes the outcome of one request. kind is
// the terminal status kind ("Ready", "Failed" or "Cancelled").
func (ep *EventPublisher) PublishSimulationFinished(runID, requestID, kind, reason string) error {
	event := Event{
		Type:      EventTypeSimulationFinished,
		RunID:     runID,
		RequestID: requestID,
		Message:   "Simulation finished",
		Data:      map[string]any{"status": kind},
	}
	switch kind {
	case "Failed":
		event.Type = EventTypeSimulationFailed
		event.Level = EventLevelError
		event.Message = reason
	case "Cancelled":
		event.Type = EventTypeSimulationCancelled
		event.Level = EventLevelWarning
		event.Message = reason
	}
	return ep.Publish(event)
}

// PublishModelsReloaded publishes a model library reload.
func (ep *EventPublisher) PublishModelsReloaded(count int) error {
	return ep.Publish(Event{
		Type:    EventTypeModelsReloaded,
		Message: "Model library reloaded",
		Data:    map[string]any{"models": count},
	})
}

// Subscribe adds a new event subscriber. filter may be nil.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	for {
		select {
		case event := <-ep.buffer:
			ep.deliverEvent(event)

		case <-ep.ctx.Done():
			// Drain what was queued before shutdown.
			for {
				select {
				case event := <-ep.buffer:
					ep.deliverEvent(event)
				default:
					return
				}
			}
		}
	}
}

func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown stops the publisher after delivering queued events.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.New("event publisher shutdown timeout")
	}
}

// FilterByLevel allows events of minLevel or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}
	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType allows events of the given types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByRunID allows events of one run.
func FilterByRunID(runID string) EventFilter {
	return func(event Event) bool {
		return event.RunID == runID
	}
}
