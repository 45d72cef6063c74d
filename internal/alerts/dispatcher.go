// Package alerts owns the alert record lifecycle: lead-time computation,
// idempotent persistence, and at-least-once delivery.
package alerts

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mediaheat/heatwatch/internal/gate"
	"github.com/mediaheat/heatwatch/internal/metrics"
	"github.com/mediaheat/heatwatch/internal/persistence"
)

// Button is one actionable element attached to an alert message.
type Button struct {
	Label    string `json:"label"`
	ActionID string `json:"action_id"`
	Value    string `json:"value"`
}

// Message is the delivery-channel payload. The core only needs "send this,
// tell me whether it worked" from the transport.
type Message struct {
	Header  string   `json:"header"`
	Reasons []string `json:"reasons"`
	Buttons []Button `json:"buttons"`
}

// Sender is the delivery channel contract.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Report summarizes one dispatch batch.
type Report struct {
	Dispatched int `json:"dispatched"`
	Delivered  int `json:"delivered"`
	Failed     int `json:"failed"`
}

// Dispatcher persists and delivers alerts for admitted gate candidates.
//
// Ordering is strict: the alert row and trend-state memory are persisted
// before any delivery attempt. A delivery failure leaves a valid, auditable
// alert; a persistence failure aborts delivery so no push can exist without
// its record.
type Dispatcher struct {
	store  *persistence.Store
	sender Sender
	hub    *Hub
	now    func() time.Time
}

// NewDispatcher creates a dispatcher. hub may be nil when no live feed is
// attached.
func NewDispatcher(store *persistence.Store, sender Sender, hub *Hub) *Dispatcher {
	return &Dispatcher{
		store:  store,
		sender: sender,
		hub:    hub,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch processes admitted candidates in order. Per-candidate failures
// are isolated; the batch continues.
func (d *Dispatcher) Dispatch(ctx context.Context, candidates []gate.Candidate) Report {
	var report Report
	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return report
		}
		delivered, err := d.dispatchOne(ctx, cand)
		if err != nil {
			report.Failed++
			log.Error().Err(err).Int64("entity_id", cand.EntityID).Str("entity", cand.Name).Msg("alert dispatch failed")
			continue
		}
		report.Dispatched++
		if delivered {
			report.Delivered++
		}
	}
	return report
}

func (d *Dispatcher) dispatchOne(ctx context.Context, cand gate.Candidate) (bool, error) {
	alertTS := d.now()

	firstMention, err := d.store.Mentions.FirstMention(ctx, cand.EntityID)
	if err != nil {
		return false, fmt.Errorf("failed to load trade mentions: %w", err)
	}

	alert := persistence.Alert{
		ID:         uuid.NewString(),
		EntityID:   cand.EntityID,
		EntityName: cand.Name,
		AlertTS:    alertTS,
		Heat:       cand.Heat,
		Reasons:    cand.Score.Reasons,
		PreTrade:   firstMention == nil,
	}
	if firstMention != nil {
		// Positive when the alert trails trade coverage, negative when the
		// mention landed after dispatch.
		minutes := int(math.Floor(alertTS.Sub(*firstMention).Minutes()))
		alert.LeadTimeMinutes = &minutes
	}

	if err := d.store.Alerts.Insert(ctx, alert); err != nil {
		return false, fmt.Errorf("failed to persist alert: %w", err)
	}
	if err := d.store.Trend.MarkAlerted(ctx, cand.EntityID, alertTS, cand.Heat); err != nil {
		return false, fmt.Errorf("failed to update trend state after alert: %w", err)
	}
	metrics.Alerts.WithLabelValues("dispatched").Inc()

	if d.hub != nil {
		d.hub.Publish(alert)
	}

	// At-least-once: persistence is done, delivery failure is logged and
	// the alert stands. No automatic retry — that risks duplicate pushes.
	if err := d.sender.Send(ctx, buildMessage(cand)); err != nil {
		metrics.Alerts.WithLabelValues("delivery_failed").Inc()
		log.Warn().Err(err).Str("alert_id", alert.ID).Str("entity", cand.Name).Msg("alert delivery failed, record persisted")
		return false, nil
	}

	log.Info().
		Str("alert_id", alert.ID).
		Str("entity", cand.Name).
		Float64("heat", cand.Heat).
		Bool("pre_trade", alert.PreTrade).
		Msg("alert dispatched")
	return true, nil
}

func buildMessage(cand gate.Candidate) Message {
	value := fmt.Sprintf("eid:%d|name:%s", cand.EntityID, cand.Name)
	return Message{
		Header: fmt.Sprintf("[ALERT] %s spiking now", cand.Name),
		Reasons: []string{
			fmt.Sprintf("Velocity +%.1fσ", cand.Score.VelocityZ),
			fmt.Sprintf("Spread %d/3", int(math.Round(cand.Score.Spread*3))),
			fmt.Sprintf("Heat %.2f", cand.Heat),
		},
		Buttons: []Button{
			{Label: "Assign Producer", ActionID: "assign_producer", Value: value},
			{Label: "Create Rundown Card", ActionID: "create_rundown", Value: value},
			{Label: "Promo Tease", ActionID: "promo_tease", Value: value},
			{Label: "Open Research Pack", ActionID: "open_pack", Value: value},
		},
	}
}
