package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// EventType names a domain event.
type EventType string

const (
	EventReportAnalyzed        EventType = "report.analyzed"
	EventReportUnlocked        EventType = "report.unlocked"
	EventDrapingGenerated      EventType = "draping.generated"
	EventCreditsPurchased      EventType = "credits.purchased"
	EventPaymentUnresolved     EventType = "payment.unresolved"
	EventRecoveryReminderDue   EventType = "recovery.reminder_due"
	EventOutfitValidated       EventType = "outfit.validated"
	EventStaleAnalysisReverted EventType = "report.processing_reverted"
)

// Event is published after the state change it describes has committed.
// Subscribers (mailers, analytics) are outside the engine.
type Event struct {
	Type      EventType
	SessionID string
	UserID    string
	Amount    int64
	Detail    string
	At        time.Time
}

// Publisher accepts domain events. Publish must not block on subscribers.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Handler consumes one event.
type Handler func(ctx context.Context, e Event)

// Bus is an in-process Publisher that fans each event out to every
// subscriber on its own goroutine.
type Bus struct {
	mu   sync.RWMutex
	subs []Handler
	wg   sync.WaitGroup
}

// NewBus returns an empty bus.
func NewBus() *Bus { return &Bus{} }

// Subscribe registers h for all future events.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	b.subs = append(b.subs, h)
	b.mu.Unlock()
}

// Publish delivers e asynchronously. The subscriber context is detached
// from the caller so a finished HTTP request does not cancel delivery.
func (b *Bus) Publish(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	b.mu.RLock()
	subs := append([]Handler(nil), b.subs...)
	b.mu.RUnlock()

	detached := context.WithoutCancel(ctx)
	for _, h := range subs {
		b.wg.Add(1)
		go func(h Handler) {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Str("event", string(e.Type)).Msg("event subscriber panicked")
				}
			}()
			h(detached, e)
		}(h)
	}
}

// Wait blocks until every delivery started so far has returned.
func (b *Bus) Wait() { b.wg.Wait() }

// LogEvents is a subscriber that writes each event to the structured log.
func LogEvents(_ context.Context, e Event) {
	log.Info().
		Str("event", string(e.Type)).
		Str("session_id", e.SessionID).
		Str("user_id", e.UserID).
		Int64("amount", e.Amount).
		Str("detail", e.Detail).
		Time("at", e.At).
		Msg("domain event")
}

// publish tolerates a nil publisher.
func publish(ctx context.Context, p Publisher, e Event) {
	if p != nil {
		p.Publish(ctx, e)
	}
}
