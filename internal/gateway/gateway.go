// Package gateway dispatches support actions against the order store.
//
// Every dispatch follows the same fixed path: normalize the order key,
// resolve the order, verify the caller's email when the action is
// sensitive, run the action handler, then record exactly one audit entry.
// The verification step runs in Dispatch itself, ahead of the handler
// lookup, so a handler added to the table cannot skip it.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mohitjoer/customer-support-voice-agent/internal/audit"
	"github.com/mohitjoer/customer-support-voice-agent/internal/models"
	"github.com/mohitjoer/customer-support-voice-agent/internal/store"
	"github.com/mohitjoer/customer-support-voice-agent/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var (
	errMalformed   = errors.New("malformed input")
	errOrderBusy   = errors.New("order is locked by another call")
	defaultLockTTL = 10 * time.Second
)

// malformedError carries the reason a payload was rejected
type malformedError struct {
	reason string
}

func (e *malformedError) Error() string        { return e.reason }
func (e *malformedError) Is(target error) bool { return target == errMalformed }

func malformed(format string, args ...interface{}) error {
	return &malformedError{reason: fmt.Sprintf(format, args...)}
}

// Invocation is a single action request from the speech pipeline
type Invocation struct {
	Action              Action
	OrderID             string
	Email               string
	Payload             string
	RoomName            string
	ParticipantIdentity string
}

// Auditor records dispatched actions
type Auditor interface {
	Record(ctx context.Context, entry audit.Entry)
}

// Locker serializes mutations per order key
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

// Gateway applies support actions to orders
type Gateway struct {
	store   store.OrderStore
	auditor Auditor
	locker  Locker
	lockTTL time.Duration
	logger  *zap.Logger
}

// NewGateway creates a new order action gateway
func NewGateway(orders store.OrderStore, auditor Auditor) *Gateway {
	return &Gateway{
		store:   orders,
		auditor: auditor,
		logger:  util.GetLogger(),
	}
}

// WithOrderLocks makes mutating actions hold a per-order lock.
// Without it concurrent mutations of one order are last-write-wins.
func (g *Gateway) WithOrderLocks(locker Locker, ttl time.Duration) *Gateway {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	g.locker = locker
	g.lockTTL = ttl
	return g
}

// Dispatch runs one action and returns its outcome. It never returns an error:
// every failure is an Outcome, and every outcome is audited before returning.
// Cancelling ctx does not abort the store calls.
func (g *Gateway) Dispatch(ctx context.Context, inv Invocation) (out Outcome) {
	ctx = context.WithoutCancel(ctx)

	ctx, span := util.StartSpan(ctx, "Gateway.Dispatch",
		attribute.String("action", string(inv.Action)),
		attribute.String("room", inv.RoomName))
	defer span.End()

	start := time.Now()
	key := Normalize(inv.OrderID)

	defer func() {
		util.ActionsTotal.WithLabelValues(string(inv.Action), string(out.Kind)).Inc()
		util.ActionDuration.WithLabelValues(string(inv.Action)).Observe(time.Since(start).Seconds())
		span.SetAttributes(
			attribute.String("order_id", key),
			attribute.String("outcome", string(out.Kind)))

		g.record(ctx, inv, key, out)
	}()

	return g.dispatch(ctx, inv, key)
}

func (g *Gateway) dispatch(ctx context.Context, inv Invocation, key string) Outcome {
	handle, ok := handlers[inv.Action]
	if !ok {
		return failure(OutcomeMalformedInput, fmt.Sprintf("Unsupported action %q.", inv.Action))
	}

	if key == "" {
		return failure(OutcomeNotFound, "No order found without an order ID.")
	}

	order, err := g.store.Get(ctx, key)
	if errors.Is(err, store.ErrOrderNotFound) {
		return notFound(key)
	}
	if err != nil {
		g.logger.Error("Failed to resolve order",
			zap.String("order_id", key),
			zap.String("action", string(inv.Action)),
			zap.Error(err))
		return storageUnavailable(key)
	}

	if inv.Action.Class() == ClassSensitive && !verified(order, inv.Email) {
		util.VerificationFailuresTotal.WithLabelValues(string(inv.Action)).Inc()
		g.logger.Warn("Email verification failed",
			zap.String("order_id", key),
			zap.String("action", string(inv.Action)),
			zap.String("room", inv.RoomName))
		return failure(OutcomeVerificationFailed, fmt.Sprintf(
			"Email verification failed, so I can't %s. Would you like me to connect you with a human agent?",
			denialVerbs[inv.Action]))
	}

	return handle(ctx, g, order, inv)
}

// verified compares emails exactly. A missing email never matches.
func verified(order *models.Order, email string) bool {
	return email != "" && email == order.Email
}

// update applies mutate through the store. On failure it returns the outcome
// to report and false.
func (g *Gateway) update(ctx context.Context, key string, mutate store.Mutator) (Outcome, bool) {
	err := g.lockedUpdate(ctx, key, mutate)
	switch {
	case err == nil:
		return Outcome{}, true
	case errors.Is(err, store.ErrOrderNotFound):
		return notFound(key), false
	case errors.Is(err, errMalformed):
		return failure(OutcomeMalformedInput, fmt.Sprintf("I couldn't apply those changes to order %s: %s.", key, err.Error())), false
	case errors.Is(err, errOrderBusy):
		return failure(OutcomeStorageUnavailable, fmt.Sprintf("Order %s is being updated on another call. Please try again in a moment.", key)), false
	default:
		g.logger.Error("Failed to update order", zap.String("order_id", key), zap.Error(err))
		return storageUnavailable(key), false
	}
}

func (g *Gateway) lockedUpdate(ctx context.Context, key string, mutate store.Mutator) error {
	if g.locker == nil {
		return g.store.Update(ctx, key, mutate)
	}

	lockKey := "order:" + key
	acquired, err := g.locker.AcquireLock(ctx, lockKey, g.lockTTL)
	if err != nil {
		return fmt.Errorf("failed to lock order %s: %w", key, err)
	}
	if !acquired {
		return errOrderBusy
	}
	defer func() {
		if err := g.locker.ReleaseLock(ctx, lockKey); err != nil {
			g.logger.Warn("Failed to release order lock", zap.String("order_id", key), zap.Error(err))
		}
	}()

	return g.store.Update(ctx, key, mutate)
}

func (g *Gateway) record(ctx context.Context, inv Invocation, key string, out Outcome) {
	if g.auditor == nil {
		return
	}

	entry := audit.Entry{
		Action:              string(inv.Action),
		OrderID:             key,
		Outcome:             string(out.Kind),
		RoomName:            inv.RoomName,
		ParticipantIdentity: inv.ParticipantIdentity,
	}
	if out.OK() {
		entry.Result = out.Fields
	} else {
		entry.Error = out.Message
	}

	g.auditor.Record(ctx, entry)
}

func notFound(key string) Outcome {
	return failure(OutcomeNotFound, fmt.Sprintf("No order found with ID %s.", key))
}

func storageUnavailable(key string) Outcome {
	return failure(OutcomeStorageUnavailable,
		fmt.Sprintf("I'm unable to reach the order system for order %s right now. Please try again shortly.", key))
}
