package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiscal-note-service/internal/models"
)

func testConfig() *models.FiscalConfig {
	return &models.FiscalConfig{
		Environment: models.EnvironmentHomologation,
		UFCode:      "35",
		CNPJ:        "12345678000199",
	}
}

func TestMemoryStoreConfig(t *testing.T) {
	store := NewMemoryStore(testConfig())

	cfg, err := store.GetFiscalConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "12345678000199", cfg.CNPJ)

	empty := NewMemoryStore(nil)
	_, err = empty.GetFiscalConfig(context.Background())
	assert.ErrorIs(t, err, models.ErrConfigurationMissing)
}

func TestMemoryStoreNotes(t *testing.T) {
	store := NewMemoryStore(testConfig())
	ctx := context.Background()

	note, err := store.LastNote(ctx)
	require.NoError(t, err)
	assert.Nil(t, note)

	saved := &models.FiscalNote{
		ID:         "7b0c2e9a-1111-2222-3333-444455556666",
		AccessKey:  "35240312345678000199650010000000421000000426",
		Number:     "000000042",
		Series:     DefaultSeries,
		IssuedAt:   time.Now(),
		TotalValue: decimal.RequireFromString("28.50"),
		Status:     models.NoteStatusAuthorized,
		Protocol:   "135240000000001",
		Items: []models.FiscalNoteItem{
			{ProductID: "SKU-1", Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")},
		},
	}
	require.NoError(t, store.SaveAuthorizedNote(ctx, saved))

	note, err = store.LastNote(ctx)
	require.NoError(t, err)
	require.NotNil(t, note)
	assert.Equal(t, "000000042", note.Number)
	assert.True(t, note.TotalValue.Equal(decimal.RequireFromString("28.50")))

	err = store.SaveAuthorizedNote(ctx, saved)
	assert.ErrorIs(t, err, models.ErrPersistenceFailed)
}

func TestMemoryStoreAllocateSequential(t *testing.T) {
	store := NewMemoryStore(testConfig())
	ctx := context.Background()

	first, err := store.AllocateNext(ctx)
	require.NoError(t, err)
	second, err := store.AllocateNext(ctx)
	require.NoError(t, err)

	assert.Equal(t, "000000001", first.Number)
	assert.Equal(t, "000000002", second.Number)
	assert.Equal(t, DefaultSeries, first.Series)
}

func TestMemoryStoreAllocateConcurrent(t *testing.T) {
	store := NewMemoryStore(testConfig())
	ctx := context.Background()

	const workers = 50
	numbers := make(chan string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			alloc, err := store.AllocateNext(ctx)
			assert.NoError(t, err)
			numbers <- alloc.Number
		}()
	}
	wg.Wait()
	close(numbers)

	seen := map[string]bool{}
	for n := range numbers {
		assert.False(t, seen[n], "number %s allocated twice", n)
		seen[n] = true
	}
	assert.Len(t, seen, workers)
}
