package cache_test

import (
	"context"
	"time"

	"github.com/skillchain/registry/internal/registry/domain"
	"github.com/skillchain/registry/internal/registry/store"
)

// fakeAPIKeys is an in-memory store.APIKeys for cache tests.
type fakeAPIKeys struct {
	keys []domain.APIKey
	err  error
}

func (f *fakeAPIKeys) CreateAPIKey(_ context.Context, k domain.APIKey) error {
	f.keys = append(f.keys, k)
	return f.err
}

func (f *fakeAPIKeys) GetAPIKeyByID(_ context.Context, id string) (domain.APIKey, error) {
	if f.err != nil {
		return domain.APIKey{}, f.err
	}
	for _, k := range f.keys {
		if k.ID == id {
			return k, nil
		}
	}
	return domain.APIKey{}, store.ErrNotFound
}

func (f *fakeAPIKeys) ListAPIKeys(_ context.Context) ([]domain.APIKey, error) {
	return f.keys, f.err
}

func (f *fakeAPIKeys) ListActiveAPIKeys(_ context.Context) ([]domain.APIKey, error) {
	if f.err != nil {
		return nil, f.err
	}
	now := time.Now()
	var active []domain.APIKey
	for _, k := range f.keys {
		if k.Usable(now) {
			active = append(active, k)
		}
	}
	return active, nil
}

func (f *fakeAPIKeys) RevokeAPIKey(_ context.Context, id string) error {
	for i := range f.keys {
		if f.keys[i].ID == id {
			f.keys[i].IsActive = false
			return f.err
		}
	}
	return store.ErrNotFound
}

func (f *fakeAPIKeys) TouchAPIKeyLastUsed(_ context.Context, id string) error {
	now := time.Now()
	for i := range f.keys {
		if f.keys[i].ID == id {
			f.keys[i].LastUsedAt = &now
		}
	}
	return f.err
}
