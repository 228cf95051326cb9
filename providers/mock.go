package providers

import (
	"context"
	"sync"

	"github.com/yairfalse/siivo/types"
)

// Mock is an in-memory CloudProvider for tests
type Mock struct {
	mu sync.Mutex

	Clouds    []types.Cloud
	Volumes   map[string][]types.Record
	Snapshots map[string][]types.Record

	// ListErr fails listings by "cloudID/kind" key
	ListErr map[string]error
	// DeleteErr fails deletes by resource ID
	DeleteErr map[string]error

	// Deleted records resource IDs in call order
	Deleted []string
}

// NewMock creates an empty mock provider
func NewMock() *Mock {
	return &Mock{
		Volumes:   make(map[string][]types.Record),
		Snapshots: make(map[string][]types.Record),
		ListErr:   make(map[string]error),
		DeleteErr: make(map[string]error),
	}
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) ListClouds(ctx context.Context) ([]types.Cloud, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Cloud(nil), m.Clouds...), nil
}

func (m *Mock) ListVolumes(ctx context.Context, cloudID string) ([]types.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ListErr[cloudID+"/volume"]; err != nil {
		return nil, err
	}
	return append([]types.Record(nil), m.Volumes[cloudID]...), nil
}

func (m *Mock) ListSnapshots(ctx context.Context, cloudID string) ([]types.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ListErr[cloudID+"/snapshot"]; err != nil {
		return nil, err
	}
	return append([]types.Record(nil), m.Snapshots[cloudID]...), nil
}

func (m *Mock) Delete(ctx context.Context, rec types.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.DeleteErr[rec.ID]; err != nil {
		return err
	}
	m.Deleted = append(m.Deleted, rec.ID)
	return nil
}

// DeletedIDs returns a copy of the deleted resource IDs
func (m *Mock) DeletedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Deleted...)
}
