// Package watch evaluates price/indicator-proximity rules on every
// strategy state update, optionally auto-submitting an entry intent
// when a rule fires.
package watch

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"strategybot/internal/events"
	"strategybot/internal/model"
)

// Repository persists a watch rule on creation and every status change.
type Repository interface {
	SaveWatch(ctx context.Context, rule model.WatchRule) error
}

// Submitter routes an AUTO_ENTER preset back through the orchestrator's
// full intent pipeline, re-applying every gate.
type Submitter interface {
	SubmitIntent(ctx context.Context, intent model.Intent) error
}

// DefaultRetention is how long a terminal (TRIGGERED/EXPIRED/CANCELLED)
// watch is kept before Cleanup drops it.
const DefaultRetention = 24 * time.Hour

// Manager holds every watch rule in memory, keyed by ID.
type Manager struct {
	mu    sync.Mutex
	rules map[string]model.WatchRule

	retention time.Duration
	repo      Repository
	submitter Submitter
	bus       *events.Bus
	log       zerolog.Logger
}

// New constructs a Manager. repo may be nil (no-op persistence).
func New(repo Repository, submitter Submitter, bus *events.Bus, log zerolog.Logger) *Manager {
	return &Manager{
		rules:     make(map[string]model.WatchRule),
		retention: DefaultRetention,
		repo:      repo,
		submitter: submitter,
		bus:       bus,
		log:       log.With().Str("component", "watch_manager").Logger(),
	}
}

// SetSubmitter attaches the orchestrator after both it and the watch
// manager have been constructed, breaking the constructor cycle between
// the two (the orchestrator's own constructor takes the watch manager
// as its WatchRegistry). Optional: without one, AUTO_ENTER watches still
// trigger the EventWatchTriggered publish but never submit an intent.
func (m *Manager) SetSubmitter(submitter Submitter) {
	m.submitter = submitter
}

// Create registers a new active watch rule.
func (m *Manager) Create(ctx context.Context, rule model.WatchRule) model.WatchRule {
	rule.ID = uuid.NewString()
	rule.Status = model.WatchActive
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = rule.CreatedAt

	m.mu.Lock()
	m.rules[rule.ID] = rule
	m.mu.Unlock()

	m.persist(ctx, rule)
	return rule
}

// Cancel transitions a watch to CANCELLED. No-op if the watch is
// already terminal or does not exist.
func (m *Manager) Cancel(ctx context.Context, id string) bool {
	m.mu.Lock()
	rule, ok := m.rules[id]
	if !ok || rule.Status != model.WatchActive {
		m.mu.Unlock()
		return false
	}
	rule.Status = model.WatchCancelled
	rule.UpdatedAt = time.Now()
	m.rules[id] = rule
	m.mu.Unlock()

	m.persist(ctx, rule)
	return true
}

// OnStateUpdate is wired to events.EventStateUpdate. It evaluates every
// active watch for the update's symbol.
func (m *Manager) OnStateUpdate(ev events.Event) {
	state, ok := ev.Data["state"].(model.StrategyState)
	if !ok {
		return
	}

	m.mu.Lock()
	var matches []model.WatchRule
	for _, rule := range m.rules {
		if rule.Status == model.WatchActive && rule.Symbol == state.Symbol {
			matches = append(matches, rule)
		}
	}
	m.mu.Unlock()

	for _, rule := range matches {
		if fires(rule, state) {
			m.fire(rule)
		}
	}
}

func fires(rule model.WatchRule, state model.StrategyState) bool {
	price := state.Snapshot.LastPrice
	switch rule.TriggerType {
	case model.TriggerCloserToSMA200:
		return math.Abs(state.Snapshot.SMA200.DistancePct) <= rule.ThresholdPct
	case model.TriggerCloserToEMA1000:
		return math.Abs(state.Snapshot.EMA1000.DistancePct) <= rule.ThresholdPct
	case model.TriggerCloserToSupertrend:
		return math.Abs(state.Snapshot.Supertrend.DistancePct) <= rule.ThresholdPct
	case model.TriggerPriceAbove:
		return rule.TargetPrice != nil && price > *rule.TargetPrice
	case model.TriggerPriceBelow:
		return rule.TargetPrice != nil && price < *rule.TargetPrice
	default:
		return false
	}
}

func (m *Manager) fire(rule model.WatchRule) {
	m.mu.Lock()
	current, ok := m.rules[rule.ID]
	if !ok || current.Status != model.WatchActive {
		m.mu.Unlock()
		return
	}
	current.Status = model.WatchTriggered
	current.UpdatedAt = time.Now()
	m.rules[rule.ID] = current
	m.mu.Unlock()

	ctx := context.Background()
	m.persist(ctx, current)
	m.bus.Publish(events.Event{Type: events.EventWatchTriggered, Data: map[string]interface{}{"watch": current}})

	if current.Mode != model.WatchAutoEnter || m.submitter == nil {
		return
	}

	intent := model.Intent{
		Action:      enterAction(current.IntendedSide),
		Symbol:      current.Symbol,
		RiskPercent: &current.Preset.RiskPercent,
		SLRule:      &current.Preset.SLRule,
		TrailMode:   &current.Preset.TrailMode,
	}
	if err := m.submitter.SubmitIntent(ctx, intent); err != nil {
		m.log.Error().Err(err).Str("watch_id", current.ID).Msg("auto-enter intent submission failed")
	}
}

func enterAction(side model.Side) model.IntentAction {
	if side == model.SideShort {
		return model.ActionEnterShort
	}
	return model.ActionEnterLong
}

// ExpireDue walks every active watch and expires those past their
// ExpiryTime. Intended to be called by a minute-granularity timer.
func (m *Manager) ExpireDue(ctx context.Context) {
	now := time.Now()

	m.mu.Lock()
	var expired []model.WatchRule
	for id, rule := range m.rules {
		if rule.Status == model.WatchActive && !rule.ExpiryTime.IsZero() && now.After(rule.ExpiryTime) {
			rule.Status = model.WatchExpired
			rule.UpdatedAt = now
			m.rules[id] = rule
			expired = append(expired, rule)
		}
	}
	m.mu.Unlock()

	for _, rule := range expired {
		m.persist(ctx, rule)
		m.bus.Publish(events.Event{Type: events.EventWatchExpired, Data: map[string]interface{}{"watch": rule}})
	}
}

// Cleanup drops terminal watches whose last update is older than the
// manager's retention window.
func (m *Manager) Cleanup() {
	cutoff := time.Now().Add(-m.retention)

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, rule := range m.rules {
		if rule.Status != model.WatchActive && rule.UpdatedAt.Before(cutoff) {
			delete(m.rules, id)
		}
	}
}

// Get returns a watch rule by id.
func (m *Manager) Get(id string) (model.WatchRule, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rule, ok := m.rules[id]
	return rule, ok
}

func (m *Manager) persist(ctx context.Context, rule model.WatchRule) {
	if m.repo == nil {
		return
	}
	if err := m.repo.SaveWatch(ctx, rule); err != nil {
		m.log.Error().Err(err).Str("watch_id", rule.ID).Msg("failed to persist watch rule")
	}
}
