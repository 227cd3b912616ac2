package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"okx-spot-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileRepositoryLoadMissingReturnsDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	repo, err := NewFileRepository(path)
	require.NoError(t, err)
	defer repo.Close()

	state, err := repo.Load()
	require.NoError(t, err)
	assert.Equal(t, 0.0, state.BaseAmount)
	assert.Equal(t, 0.0, state.AvgCost)
	assert.Equal(t, 0, state.BuyCount)

	// the default snapshot must be written back so the next start can read it
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestFileRepositorySaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	repo, err := NewFileRepository(path)
	require.NoError(t, err)
	defer repo.Close()

	in := &models.PositionState{
		BaseAmount: 1.5,
		AvgCost:    2345.67,
		LastBuyMs:  1700000000000,
		BuyCount:   3,
	}
	require.NoError(t, repo.Save(in))

	out, err := repo.Load()
	require.NoError(t, err)
	assert.Equal(t, in.BaseAmount, out.BaseAmount)
	assert.Equal(t, in.AvgCost, out.AvgCost)
	assert.Equal(t, in.LastBuyMs, out.LastBuyMs)
	assert.Equal(t, in.BuyCount, out.BuyCount)

	// no temp file should be left behind after a successful save
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFileRepositoryLoadMalformedResetsToDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	repo, err := NewFileRepository(path)
	require.NoError(t, err)
	defer repo.Close()

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	state, err := repo.Load()
	require.NoError(t, err)
	assert.Equal(t, 0.0, state.BaseAmount)
	assert.Equal(t, 0.0, state.AvgCost)

	// the corrupted file should now hold a valid zero snapshot
	again, err := repo.Load()
	require.NoError(t, err)
	assert.Equal(t, 0.0, again.BaseAmount)
}
