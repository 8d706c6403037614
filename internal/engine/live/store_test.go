package live

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"walkforward/internal/core"
	apperrors "walkforward/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStates() map[string]core.SymbolState {
	return map[string]core.SymbolState{
		"SPY":     {HighestPrice: d("512.34"), EntryPrice: d("498.10"), Cooldown: 0},
		"BTC/USD": {Cooldown: 3},
	}
}

func assertStatesEqual(t *testing.T, want, got map[string]core.SymbolState) {
	t.Helper()
	require.Len(t, got, len(want))
	for sym, w := range want {
		g, ok := got[sym]
		require.True(t, ok, "missing %s", sym)
		assert.True(t, w.HighestPrice.Equal(g.HighestPrice), "%s highest", sym)
		assert.True(t, w.EntryPrice.Equal(g.EntryPrice), "%s entry", sym)
		assert.Equal(t, w.Cooldown, g.Cooldown, "%s cooldown", sym)
	}
}

func TestStores_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		backend string
		path    string
	}{
		{"memory", ""},
		{"json", filepath.Join(dir, "trade_state.json")},
		{"sqlite", filepath.Join(dir, "state.db")},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			ctx := context.Background()
			store, closer, err := OpenStore(tt.backend, tt.path)
			require.NoError(t, err)
			defer closer.Close()

			empty, err := store.Load(ctx)
			require.NoError(t, err)
			assert.Empty(t, empty)

			require.NoError(t, store.Save(ctx, sampleStates()))
			got, err := store.Load(ctx)
			require.NoError(t, err)
			assertStatesEqual(t, sampleStates(), got)

			// Save is a full overwrite
			require.NoError(t, store.Save(ctx, map[string]core.SymbolState{"QQQ": {Cooldown: 1}}))
			got, err = store.Load(ctx)
			require.NoError(t, err)
			assert.Len(t, got, 1)
			assert.Equal(t, 1, got["QQQ"].Cooldown)
		})
	}
}

func TestOpenStore_Unknown(t *testing.T) {
	_, _, err := OpenStore("redis", "")
	assert.Error(t, err)
}

func TestMemoryStore_IsolatesCallers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	in := sampleStates()
	require.NoError(t, s.Save(ctx, in))
	in["SPY"] = core.SymbolState{Cooldown: 9}

	got, _ := s.Load(ctx)
	assert.Equal(t, 0, got["SPY"].Cooldown)
}

func TestJSONStore_ReadsNumericDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trade_state.json")
	doc := `{"SPY": {"highest_price": 101.5, "entry_price": 99.0, "cooldown": 3}}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	got, err := NewJSONStore(path).Load(context.Background())
	require.NoError(t, err)
	assert.True(t, got["SPY"].HighestPrice.Equal(d("101.5")))
	assert.True(t, got["SPY"].EntryPrice.Equal(d("99")))
	assert.Equal(t, 3, got["SPY"].Cooldown)
}

func TestJSONStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trade_state.json")
	require.NoError(t, os.WriteFile(path, []byte("[1,2"), 0o600))

	_, err := NewJSONStore(path).Load(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrStateCorrupt)
}

func TestSQLiteStore_WALMode(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer store.Close()

	var journalMode string
	require.NoError(t, store.db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)
}

func TestSQLiteStore_ChecksumValidation(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(ctx, sampleStates()))
	_, err = store.db.Exec(`UPDATE live_state SET data = '{"SPY":{"cooldown":99}}' WHERE id = 1`)
	require.NoError(t, err)

	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, apperrors.ErrStateCorrupt)
}
