package repository

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/placeset/pkg/model"
)

// Memory is a process local Repository. Values are kept serialized so that
// callers never share mutable state with the store.
type Memory struct {
	mu       sync.RWMutex
	datasets map[model.Fingerprint][]byte
	details  map[model.PlaceID][]byte
	plans    map[string][]byte
	progress map[string][]byte
}

var _ Repository = (*Memory)(nil)

// NewMemory creates an empty in-memory repository
func NewMemory() *Memory {
	return &Memory{
		datasets: make(map[model.Fingerprint][]byte),
		details:  make(map[model.PlaceID][]byte),
		plans:    make(map[string][]byte),
		progress: make(map[string][]byte),
	}
}

func (m *Memory) GetDataset(ctx context.Context, key model.Fingerprint) (*model.Dataset, error) {
	m.mu.RLock()
	raw, ok := m.datasets[key]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return model.UnmarshalDataset(raw)
}

func (m *Memory) PutDataset(ctx context.Context, key model.Fingerprint, ds *model.Dataset) error {
	raw, err := ds.Marshal()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.datasets[key] = raw
	m.mu.Unlock()
	return nil
}

func (m *Memory) GetPlaceDetails(ctx context.Context, id model.PlaceID) (model.PlaceDetails, error) {
	m.mu.RLock()
	raw, ok := m.details[id]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var details model.PlaceDetails
	if err := json.Unmarshal(raw, &details); err != nil {
		return nil, goerr.Wrap(err, "failed to decode place details", goerr.V("id", id))
	}
	return details, nil
}

func (m *Memory) PutPlaceDetails(ctx context.Context, id model.PlaceID, details model.PlaceDetails) error {
	raw, err := json.Marshal(details)
	if err != nil {
		return goerr.Wrap(err, "failed to encode place details", goerr.V("id", id))
	}
	m.mu.Lock()
	m.details[id] = raw
	m.mu.Unlock()
	return nil
}

func (m *Memory) GetPlan(ctx context.Context, name string) (*model.Plan, error) {
	m.mu.RLock()
	raw, ok := m.plans[name]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var plan model.Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, goerr.Wrap(err, "failed to decode plan", goerr.V("name", name))
	}
	return &plan, nil
}

func (m *Memory) PutPlan(ctx context.Context, plan *model.Plan) error {
	raw, err := json.Marshal(plan)
	if err != nil {
		return goerr.Wrap(err, "failed to encode plan", goerr.V("name", plan.Name))
	}
	m.mu.Lock()
	m.plans[plan.Name] = raw
	m.mu.Unlock()
	return nil
}

func (m *Memory) GetPlanProgress(ctx context.Context, name string) (*model.PlanProgress, error) {
	m.mu.RLock()
	raw, ok := m.progress[name]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var progress model.PlanProgress
	if err := json.Unmarshal(raw, &progress); err != nil {
		return nil, goerr.Wrap(err, "failed to decode plan progress", goerr.V("name", name))
	}
	return &progress, nil
}

func (m *Memory) PutPlanProgress(ctx context.Context, progress *model.PlanProgress) error {
	raw, err := json.Marshal(progress)
	if err != nil {
		return goerr.Wrap(err, "failed to encode plan progress", goerr.V("name", progress.Name))
	}
	m.mu.Lock()
	m.progress[progress.Name] = raw
	m.mu.Unlock()
	return nil
}
