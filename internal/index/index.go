// Package index defines the search-index contract the archival engine fans
// out to after a successful finalize, plus an in-memory implementation.
package index

import (
	"context"
	"sync"
)

// Service accepts re-index requests. Implementations are expected to be
// asynchronous; submission failures are reported, execution failures are the
// indexer's concern.
type Service interface {
	// IndexDataset submits the dataset for re-indexing.
	IndexDataset(ctx context.Context, datasetID string) error
	// IndexDataverse re-indexes a dataverse whose metadata changed.
	IndexDataverse(ctx context.Context, dataverseID string) error
}

// Memory records submissions and can be primed to fail, for tests and
// embedded deployments without a search backend.
type Memory struct {
	mu            sync.Mutex
	datasets      []string
	dataverses    []string
	datasetErr    error
	dataverseErrs map[string]error
}

// NewMemory constructs an empty recording indexer.
func NewMemory() *Memory {
	return &Memory{dataverseErrs: make(map[string]error)}
}

// FailDatasets makes every IndexDataset call return err.
func (m *Memory) FailDatasets(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.datasetErr = err
}

// FailDataverse makes IndexDataverse fail for the given dataverse.
func (m *Memory) FailDataverse(dataverseID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dataverseErrs[dataverseID] = err
}

// IndexDataset implements Service.
func (m *Memory) IndexDataset(_ context.Context, datasetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.datasetErr != nil {
		return m.datasetErr
	}
	m.datasets = append(m.datasets, datasetID)
	return nil
}

// IndexDataverse implements Service.
func (m *Memory) IndexDataverse(_ context.Context, dataverseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.dataverseErrs[dataverseID]; err != nil {
		return err
	}
	m.dataverses = append(m.dataverses, dataverseID)
	return nil
}

// Datasets returns the dataset ids submitted so far.
func (m *Memory) Datasets() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.datasets))
	copy(out, m.datasets)
	return out
}

// Dataverses returns the dataverse ids re-indexed so far.
func (m *Memory) Dataverses() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.dataverses))
	copy(out, m.dataverses)
	return out
}

var _ Service = (*Memory)(nil)
