package domain

import (
	"slices"
	"time"
)

// PaymentStatus is derived from entries versus the amount due. It is never
// set directly; call Recompute after touching entries.
type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "unpaid"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
)

// PaymentEntry is a single payment made against a player payment
type PaymentEntry struct {
	ID              string    `json:"id"`
	PlayerPaymentID string    `json:"player_payment_id"`
	Amount          int64     `json:"amount"`
	Method          string    `json:"method,omitempty"`
	Note            string    `json:"note,omitempty"`
	PaidAt          time.Time `json:"paid_at"`
}

// PlayerPayment tracks what one player owes for one period
type PlayerPayment struct {
	ID       string         `json:"id"`
	PeriodID string         `json:"period_id"`
	PlayerID string         `json:"player_id"`
	Amount   int64          `json:"amount"`
	Status   PaymentStatus  `json:"status"`
	Entries  []PaymentEntry `json:"entries"`
}

// Paid returns the sum of all entries
func (p PlayerPayment) Paid() int64 {
	var total int64
	for _, e := range p.Entries {
		total += e.Amount
	}
	return total
}

// Recompute derives Status from the entries
func (p *PlayerPayment) Recompute() {
	p.Status = DerivePaymentStatus(p.Amount, p.Entries)
}

// DerivePaymentStatus computes a payment status from the amount due and entries
func DerivePaymentStatus(due int64, entries []PaymentEntry) PaymentStatus {
	var paid int64
	for _, e := range entries {
		paid += e.Amount
	}
	switch {
	case paid >= due:
		return PaymentPaid
	case paid > 0:
		return PaymentPartial
	default:
		return PaymentUnpaid
	}
}

// PaymentPeriod is a dues period (season fee, ice time, tournament entry)
type PaymentPeriod struct {
	ID             string          `json:"id"`
	TeamID         string          `json:"team_id"`
	Title          string          `json:"title"`
	Amount         int64           `json:"amount"`
	DueDate        string          `json:"due_date,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	PlayerPayments []PlayerPayment `json:"player_payments"`
}

// RecomputeAll refreshes every player payment status in the period
func (p *PaymentPeriod) RecomputeAll() {
	for i := range p.PlayerPayments {
		p.PlayerPayments[i].Recompute()
	}
}

// Clone returns a deep copy
func (p PaymentPeriod) Clone() PaymentPeriod {
	c := p
	c.PlayerPayments = make([]PlayerPayment, len(p.PlayerPayments))
	for i, pp := range p.PlayerPayments {
		pp.Entries = slices.Clone(pp.Entries)
		c.PlayerPayments[i] = pp
	}
	return c
}
