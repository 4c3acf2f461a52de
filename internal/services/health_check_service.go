package services

import (
	"context"
	"fmt"

	"github.com/stockalert/stockalert/internal/alerts"
	"github.com/stockalert/stockalert/internal/database"
)

// PassResult is the outcome of one evaluation pass
type PassResult struct {
	Evaluated int
	DispatchResult
}

// HealthCheckService reads facts for a check kind, evaluates the rules and dispatches the candidates
type HealthCheckService struct {
	store      *database.Store
	facts      FactSource
	dispatcher *Dispatcher
}

// NewHealthCheckService creates a health-check pass runner
func NewHealthCheckService(store *database.Store, facts FactSource, dispatcher *Dispatcher) *HealthCheckService {
	return &HealthCheckService{
		store:      store,
		facts:      facts,
		dispatcher: dispatcher,
	}
}

// RunPass evaluates one check kind. It does not claim or record the run.
func (s *HealthCheckService) RunPass(ctx context.Context, kind database.HealthCheckKind) (PassResult, error) {
	var result PassResult

	settings, err := database.GetOrCreateAlertSettings(s.store.DB().WithContext(ctx))
	if err != nil {
		return result, fmt.Errorf("failed to load alert settings: %w", err)
	}

	var facts alerts.Facts
	switch kind {
	case database.HealthCheckStockLevels:
		facts.Stock, err = s.facts.ListLowStockCandidates(ctx)
	case database.HealthCheckExpiry:
		facts.Expiring, err = s.facts.ListExpiringCandidates(ctx, settings.ExpiryWindowDays)
	default:
		return result, fmt.Errorf("unknown health check kind: %s", kind)
	}
	if err != nil {
		return result, err
	}

	candidates := alerts.Evaluate(facts, alerts.Options{ExpiryWindowDays: settings.ExpiryWindowDays})
	result.Evaluated = len(candidates)

	dispatched, err := s.dispatcher.Dispatch(ctx, candidates)
	result.DispatchResult = dispatched
	return result, err
}
