// Package session publishes the structured events a session driver emits
// over its lifetime: binding, waiting on producers, mailbox merges, and
// shutdown. Grounded on the teacher's logging/lifecycle helpers package —
// same shape (typed payload, thin Publish wrapper per event), retargeted
// from player join/leave to session bind/wait/merge/close.
package session

import (
	"context"

	"github.com/ulikoehler/Multiverse/logging"
)

const (
	EventBound        logging.EventType = "session.bound"
	EventRebound      logging.EventType = "session.rebound"
	EventWaitingForProducer logging.EventType = "session.waiting_for_producer"
	EventWaitingForData    logging.EventType = "session.waiting_for_data"
	EventMailboxMerged logging.EventType = "session.mailbox_merged"
	EventClosed        logging.EventType = "session.closed"
)

// BoundPayload describes a completed meta-data bind.
type BoundPayload struct {
	World      string `json:"world"`
	SendCount  int    `json:"sendCount"`
	RecvCount  int    `json:"recvCount"`
}

// Bound publishes a successful BindObjects completion.
func Bound(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload BoundPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventBound,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryBind,
		Payload:  payload,
	})
}

// WaitingPayload describes a throttled "still waiting" log line.
type WaitingPayload struct {
	Object    string `json:"object"`
	Attribute string `json:"attribute"`
}

// WaitingForProducer publishes a wait_for_objects throttled log.
func WaitingForProducer(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload WaitingPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventWaitingForProducer,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryBind,
		Payload:  payload,
	})
}

// WaitingForData publishes a wait_for_receive_data throttled log.
func WaitingForData(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload WaitingPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventWaitingForData,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryBind,
		Payload:  payload,
	})
}

// MailboxMergedPayload names the simulation whose mailbox slot received a
// merged request.
type MailboxMergedPayload struct {
	SimulationName string `json:"simulationName"`
}

// MailboxMerged publishes that a request was merged into an existing
// mailbox slot, which starts the cross-simulation handshake.
func MailboxMerged(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload MailboxMergedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventMailboxMerged,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryMailbox,
		Payload:  payload,
	})
}

// ClosedPayload describes why a session's loop exited.
type ClosedPayload struct {
	Reason string `json:"reason"`
}

// Closed publishes a session's terminal log line.
func Closed(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload ClosedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventClosed,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
	})
}
