package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/stockalert/stockalert/internal/alerts"
	"github.com/stockalert/stockalert/internal/database"
)

// DefaultEscalationTimeout bounds a single asynchronous escalation
const DefaultEscalationTimeout = 30 * time.Second

// Publisher pushes a stored notification to connected clients without blocking
type Publisher interface {
	Publish(n *database.Notification)
}

// DispatchResult summarizes one dispatch pass
type DispatchResult struct {
	RecipientID uint `json:"recipient_id"`
	Created     int  `json:"created"`
	Suppressed  int  `json:"suppressed"`
	Failed      int  `json:"failed"`
}

// Dispatcher turns candidates into stored notifications for a single recipient
type Dispatcher struct {
	store             *database.Store
	recipients        RecipientDirectory
	publisher         Publisher
	escalators        []Escalator
	escalationTimeout time.Duration

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher. publisher may be nil.
func NewDispatcher(store *database.Store, recipients RecipientDirectory, publisher Publisher, escalators ...Escalator) *Dispatcher {
	return &Dispatcher{
		store:             store,
		recipients:        recipients,
		publisher:         publisher,
		escalators:        escalators,
		escalationTimeout: DefaultEscalationTimeout,
	}
}

// SetEscalationTimeout overrides the per-escalation timeout
func (d *Dispatcher) SetEscalationTimeout(timeout time.Duration) {
	if timeout > 0 {
		d.escalationTimeout = timeout
	}
}

// Dispatch stores a notification per candidate unless an equivalent one is within the cooldown.
// The recipient is chosen once per pass. Store errors are counted per candidate and reported
// together; notifications already stored stay stored.
func (d *Dispatcher) Dispatch(ctx context.Context, candidates []alerts.Candidate) (DispatchResult, error) {
	var result DispatchResult

	settings, err := database.GetOrCreateAlertSettings(d.store.DB().WithContext(ctx))
	if err != nil {
		return result, fmt.Errorf("failed to load alert settings: %w", err)
	}
	if len(candidates) == 0 {
		return result, nil
	}

	eligible, err := d.recipients.ListEligibleRecipients(ctx, settings.RecipientRole)
	if err != nil {
		return result, err
	}
	recipient, err := SelectRecipient(eligible, settings.RecipientPolicy, settings.DesignatedRecipientID)
	if err != nil {
		return result, err
	}
	result.RecipientID = recipient.ID

	cooldown := settings.DedupCooldown()
	var firstErr error
	for _, c := range candidates {
		if ctx.Err() != nil {
			result.Failed += len(candidates) - (result.Created + result.Suppressed + result.Failed)
			if firstErr == nil {
				firstErr = ctx.Err()
			}
			break
		}

		n := newNotification(c, recipient.ID)
		inserted, err := d.store.InsertNotificationIfAbsent(ctx, n, cooldown)
		if err != nil {
			result.Failed++
			log.Printf("Dispatcher: failed to store %s for product %s: %v", c.RuleKind, c.SubjectID, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if !inserted {
			result.Suppressed++
			continue
		}

		result.Created++
		if d.publisher != nil {
			d.publisher.Publish(n)
		}
		if c.Severity.AtLeast(alerts.SeverityCritical) {
			d.escalate(n, recipient, settings)
		}
	}

	if firstErr != nil {
		return result, fmt.Errorf("failed to dispatch %d of %d candidates: %w", result.Failed, len(candidates), firstErr)
	}
	return result, nil
}

func newNotification(c alerts.Candidate, recipientID uint) *database.Notification {
	return &database.Notification{
		RecipientID: recipientID,
		DedupKey:    c.DedupKey(),
		RuleKind:    string(c.RuleKind),
		SubjectID:   c.SubjectID,
		Severity:    string(c.Severity),
		Summary:     c.Summary(),
		Facts:       database.JSONB(c.Facts.Map()),
	}
}

// escalate runs the enabled escalators in the background; failures are only logged
func (d *Dispatcher) escalate(n *database.Notification, recipient Recipient, settings *database.AlertSettings) {
	for _, e := range d.escalators {
		if !escalationEnabled(settings, e.Name()) {
			continue
		}
		d.wg.Add(1)
		go func(e Escalator) {
			defer d.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("Warning: Dispatcher: %s escalation panicked for notification %s: %v", e.Name(), n.ID, r)
				}
			}()

			ctx, cancel := context.WithTimeout(context.Background(), d.escalationTimeout)
			defer cancel()
			if err := e.Escalate(ctx, n, recipient); err != nil {
				log.Printf("Warning: Dispatcher: %s escalation failed for notification %s: %v", e.Name(), n.ID, err)
			}
		}(e)
	}
}

// Wait blocks until in-flight escalations finish
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
