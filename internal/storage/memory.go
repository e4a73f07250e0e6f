package storage

import (
	"context"
	"fmt"
	"sync"

	"fiscal-note-service/internal/models"
)

// MemoryStore is the standalone-mode stand-in for PostgresStore. Notes
// live only as long as the process.
type MemoryStore struct {
	mu     sync.Mutex
	cfg    *models.FiscalConfig
	notes  []*models.FiscalNote
	byKey  map[string]*models.FiscalNote
	next   int64
	series string
}

func NewMemoryStore(cfg *models.FiscalConfig) *MemoryStore {
	return &MemoryStore{
		cfg:    cfg,
		byKey:  map[string]*models.FiscalNote{},
		next:   1,
		series: DefaultSeries,
	}
}

func (s *MemoryStore) GetFiscalConfig(ctx context.Context) (*models.FiscalConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg == nil {
		return nil, models.ErrConfigurationMissing
	}
	cfg := *s.cfg
	return &cfg, nil
}

func (s *MemoryStore) LastNote(ctx context.Context) (*models.FiscalNote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.notes) == 0 {
		return nil, nil
	}
	note := *s.notes[len(s.notes)-1]
	return &note, nil
}

func (s *MemoryStore) SaveAuthorizedNote(ctx context.Context, note *models.FiscalNote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byKey[note.AccessKey]; exists {
		return fmt.Errorf("%w: duplicate access key %s", models.ErrPersistenceFailed, note.AccessKey)
	}
	stored := *note
	s.notes = append(s.notes, &stored)
	s.byKey[stored.AccessKey] = &stored
	return nil
}

func (s *MemoryStore) AllocateNext(ctx context.Context) (models.SequenceAllocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	allocated := s.next
	s.next++
	return models.SequenceAllocation{
		Number: fmt.Sprintf("%09d", allocated),
		Series: s.series,
	}, nil
}
