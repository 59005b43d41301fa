// Package payment tracks payment intents and applies their settlement.
package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-fulfillment/internal/domain/fault"
)

// Status is the state of an intent.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Terminal reports whether no further transition is defined.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Outcome is the result carried by a settlement.
type Outcome int

const (
	OutcomeSuccess Outcome = iota + 1
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Status returns the intent status an outcome leads to.
func (o Outcome) Status() Status {
	if o == OutcomeSuccess {
		return StatusSuccess
	}
	return StatusFailed
}

// Intent is a request to collect payment for one order.
//
// ExternalID is what notifications reference. CorrelationID is the payment
// reference handed to the payment side; SettlementLabel is whatever the
// success notification reported.
type Intent struct {
	ID              string
	OrderID         string
	ExternalID      string
	CorrelationID   string
	Amount          decimal.Decimal
	Status          Status
	SettlementLabel string
	FailureReason   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ErrIntentNotFound is returned when no intent matches.
var ErrIntentNotFound = fault.New(fault.NotFound, fault.CodeIntentNotFound, "payment intent not found")

// ErrInvalidAmount is returned when the requested amount does not match the order.
var ErrInvalidAmount = fault.New(fault.InvalidInput, fault.CodeInvalidAmount, "amount must equal the order total")

// IntentExistsError reports that the order already has a live intent.
type IntentExistsError struct {
	OrderID  string
	IntentID string
}

func (e *IntentExistsError) Error() string {
	return fmt.Sprintf("payment intent %s already exists for order %s", e.IntentID, e.OrderID)
}

// Kind implements fault.Classified.
func (e *IntentExistsError) Kind() fault.Kind { return fault.Conflict }

// Code implements fault.Classified.
func (e *IntentExistsError) Code() string { return fault.CodeIntentAlreadyExists }

// SettlementConflictError reports a settlement whose outcome contradicts the
// intent's terminal status.
type SettlementConflictError struct {
	IntentID string
	Status   Status
}

func (e *SettlementConflictError) Error() string {
	return fmt.Sprintf("payment intent %s is already %s", e.IntentID, e.Status)
}

// Kind implements fault.Classified.
func (e *SettlementConflictError) Kind() fault.Kind { return fault.Conflict }

// Code implements fault.Classified.
func (e *SettlementConflictError) Code() string { return fault.CodeSettlementConflict }

// Repository persists intents.
//
// Create must fail with *IntentExistsError when the order already has an
// intent that is not FAILED. GetByOrder returns the order's live intent, or
// its most recent one when all have failed.
type Repository interface {
	Create(ctx context.Context, in *Intent) error
	GetByID(ctx context.Context, id string) (*Intent, error)
	GetByExternalID(ctx context.Context, externalID string) (*Intent, error)
	GetByOrder(ctx context.Context, orderID string) (*Intent, error)
}

// Orders is the part of the order lifecycle the tracker drives.
//
// WhileCreated runs fn while holding the order exclusively, after checking
// that the order is CREATED. Settle holds the order, calls resolve to obtain
// the updated intent, transitions the order for outcome and stores both in
// one atomic step.
type Orders interface {
	WhileCreated(ctx context.Context, orderID string, fn func(ctx context.Context, total decimal.Decimal) error) error
	Settle(ctx context.Context, orderID string, outcome Outcome, resolve func(ctx context.Context) (*Intent, error)) error
}

// Scheduler arranges for an intent to be settled later.
type Scheduler interface {
	Schedule(in Intent)
	Cancel(externalID string) bool
}
