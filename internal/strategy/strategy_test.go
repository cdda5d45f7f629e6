package strategy

import (
	"path/filepath"
	"testing"

	"github.com/ksred/tradeguard-api/internal/database"
	"github.com/ksred/tradeguard-api/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStrategyService(t *testing.T) *Service {
	t.Helper()

	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	return NewService(db)
}

func TestCreateStrategy(t *testing.T) {
	t.Parallel()

	s := newTestStrategyService(t)

	strategy := &types.Strategy{
		Name:           "London Breakout",
		Description:    "Range breakout during the London open",
		ChecklistItems: []string{"Trend confirmed", "  Stop placed  ", ""},
	}
	require.NoError(t, s.CreateStrategy("trader-1", strategy))

	assert.NotEmpty(t, strategy.StrategyID)
	assert.Equal(t, "trader-1", strategy.UserID)
	// Blank items dropped, the rest trimmed, order preserved
	assert.Equal(t, []string{"Trend confirmed", "Stop placed"}, strategy.ChecklistItems)
}

func TestCreateStrategyValidation(t *testing.T) {
	t.Parallel()

	s := newTestStrategyService(t)

	err := s.CreateStrategy("trader-1", &types.Strategy{
		ChecklistItems: []string{"Trend confirmed"},
	})
	assert.ErrorIs(t, err, ErrMissingName)

	err = s.CreateStrategy("trader-1", &types.Strategy{
		Name:           "No rules",
		ChecklistItems: []string{"", "   "},
	})
	assert.ErrorIs(t, err, ErrEmptyChecklist)
}

func TestGetStrategyScopedToOwner(t *testing.T) {
	t.Parallel()

	s := newTestStrategyService(t)

	strategy := &types.Strategy{
		Name:           "Pullback",
		ChecklistItems: []string{"Fib level respected"},
	}
	require.NoError(t, s.CreateStrategy("trader-1", strategy))

	got, err := s.GetStrategy("trader-1", strategy.StrategyID)
	require.NoError(t, err)
	assert.Equal(t, "Pullback", got.Name)

	_, err = s.GetStrategy("trader-2", strategy.StrategyID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetChecklist(t *testing.T) {
	t.Parallel()

	s := newTestStrategyService(t)

	strategy := &types.Strategy{
		Name:           "Pullback",
		ChecklistItems: []string{"Fib level respected", "Volume declining"},
	}
	require.NoError(t, s.CreateStrategy("trader-1", strategy))

	items, err := s.GetChecklist("trader-1", strategy.StrategyID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Fib level respected", "Volume declining"}, items)

	_, err = s.GetChecklist("trader-1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListStrategies(t *testing.T) {
	t.Parallel()

	s := newTestStrategyService(t)

	for _, name := range []string{"First", "Second"} {
		require.NoError(t, s.CreateStrategy("trader-1", &types.Strategy{
			Name:           name,
			ChecklistItems: []string{"Rule"},
		}))
	}
	require.NoError(t, s.CreateStrategy("trader-2", &types.Strategy{
		Name:           "Other trader",
		ChecklistItems: []string{"Rule"},
	}))

	strategies, err := s.ListStrategies("trader-1")
	require.NoError(t, err)
	assert.Len(t, strategies, 2)
}
