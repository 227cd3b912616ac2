package persistence

import (
	"testing"

	"okx-spot-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgerRepositoryLoadEmptyReturnsDefault(t *testing.T) {
	repo, err := NewBadgerRepository(t.TempDir())
	require.NoError(t, err)
	defer repo.Close()

	state, err := repo.Load()
	require.NoError(t, err)
	assert.Equal(t, 0.0, state.BaseAmount)
	assert.Equal(t, 0.0, state.AvgCost)
	assert.Equal(t, int64(0), state.LastBuyMs)
	assert.Equal(t, 0, state.BuyCount)
}

func TestBadgerRepositorySaveLoadRoundTrip(t *testing.T) {
	repo, err := NewBadgerRepository(t.TempDir())
	require.NoError(t, err)
	defer repo.Close()

	in := &models.PositionState{
		BaseAmount: 0.75,
		AvgCost:    1999.5,
		LastBuyMs:  1700000000000,
		BuyCount:   2,
	}
	require.NoError(t, repo.Save(in))

	out, err := repo.Load()
	require.NoError(t, err)
	assert.Equal(t, in.BaseAmount, out.BaseAmount)
	assert.Equal(t, in.AvgCost, out.AvgCost)
	assert.Equal(t, in.LastBuyMs, out.LastBuyMs)
	assert.Equal(t, in.BuyCount, out.BuyCount)
}
