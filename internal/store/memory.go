package store

import (
	"context"
	"sort"

	"safeScope/internal/model"
)

// Memory is the in-memory Store used for tests and postgres-less runs.
type Memory struct {
	positions       map[string]*model.Position
	balances        map[string]*model.FundingBalance
	classifications map[string]*model.AddressClassification
}

func NewMemory() *Memory {
	return &Memory{
		positions:       make(map[string]*model.Position),
		balances:        make(map[string]*model.FundingBalance),
		classifications: make(map[string]*model.AddressClassification),
	}
}

func (m *Memory) Position(_ context.Context, key string) (*model.Position, error) {
	position, ok := m.positions[key]
	if !ok {
		return nil, nil
	}
	return position.Clone(), nil
}

func (m *Memory) SavePosition(_ context.Context, position *model.Position) error {
	m.positions[position.Key()] = position.Clone()
	return nil
}

func (m *Memory) ActivePositions(_ context.Context) ([]*model.Position, error) {
	keys := make([]string, 0, len(m.positions))
	for key, position := range m.positions {
		if position.Active {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	out := make([]*model.Position, 0, len(keys))
	for _, key := range keys {
		out = append(out, m.positions[key].Clone())
	}
	return out, nil
}

func (m *Memory) FundingBalance(_ context.Context, account string) (*model.FundingBalance, error) {
	balance, ok := m.balances[model.CanonicalAddress(account)]
	if !ok {
		return nil, nil
	}
	copied := *balance
	return &copied, nil
}

func (m *Memory) SaveFundingBalance(_ context.Context, balance *model.FundingBalance) error {
	copied := *balance
	m.balances[model.CanonicalAddress(balance.Account)] = &copied
	return nil
}

func (m *Memory) Classification(_ context.Context, address string) (*model.AddressClassification, error) {
	classification, ok := m.classifications[model.CanonicalAddress(address)]
	if !ok {
		return nil, nil
	}
	copied := *classification
	return &copied, nil
}

func (m *Memory) SaveClassification(_ context.Context, classification *model.AddressClassification) error {
	copied := *classification
	m.classifications[model.CanonicalAddress(classification.Address)] = &copied
	return nil
}
