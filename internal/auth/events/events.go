// Package events publishes security audit events. Publishing is best effort:
// a failing sink is logged and never fails the request that raised the event.
package events

import (
	"context"
	"time"

	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

type Kind string

const (
	LoginSucceeded  Kind = "login.succeeded"
	LoginFailed     Kind = "login.failed"
	LoginPending2FA Kind = "login.pending_2fa"
	TwoFAVerified   Kind = "2fa.verified"
	TwoFAFailed     Kind = "2fa.failed"
	TwoFAEnrolled   Kind = "2fa.enrolled"
	TwoFARemoved    Kind = "2fa.removed"
	TokenRefreshed  Kind = "token.refreshed"
	TokenReused     Kind = "token.reused"
	TokenRevoked    Kind = "token.revoked"
	PasswordChanged Kind = "password.changed"
	UserRegistered  Kind = "user.registered"
	UserDeactivated Kind = "user.deactivated"
)

type Event struct {
	Kind      Kind              `json:"kind"`
	UserID    string            `json:"user_id,omitempty"`
	Time      time.Time         `json:"time"`
	RequestID string            `json:"request_id,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// New stamps an event with the current time and the request id from ctx.
func New(ctx context.Context, kind Kind, userID string, detail map[string]string) Event {
	return Event{
		Kind:      kind,
		UserID:    userID,
		Time:      time.Now().UTC(),
		RequestID: slogx.RequestID(ctx),
		Detail:    detail,
	}
}

// Emit builds and publishes an event. A nil publisher drops it.
func Emit(ctx context.Context, p Publisher, kind Kind, userID string, detail map[string]string) {
	if p == nil {
		return
	}
	p.Publish(ctx, New(ctx, kind, userID, detail))
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

// FanOut publishes every event to each publisher in turn.
type FanOut []Publisher

func (f FanOut) Publish(ctx context.Context, e Event) {
	for _, p := range f {
		if p != nil {
			p.Publish(ctx, e)
		}
	}
}
