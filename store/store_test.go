package store

import (
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pokerp2p/pokerp2p/contract"
)

func sampleRecord() *Record {
	return &Record{
		Game: GameInfo{
			Players:         [2]string{"0x1111111111111111111111111111111111111111", "0x2222222222222222222222222222222222222222"},
			StartTime:       1756700000,
			Duration:        3600,
			DisputeDuration: 900,
			TableID:         "aabb",
			SessionID:       "ccdd",
		},
		States: []SignedState{
			{
				State: "deadbeef",
				Signatures: map[string]contract.Signature{
					"0x1111111111111111111111111111111111111111": {V: 27, R: big.NewInt(1), S: big.NewInt(2)},
					"0x2222222222222222222222222222222222222222": {V: 28, R: big.NewInt(3), S: big.NewInt(4)},
				},
			},
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	rec := sampleRecord()
	require.NoError(t, s.Save("ccdd", rec))

	got, err := s.Load("ccdd")
	require.NoError(t, err)
	require.Equal(t, rec.Game, got.Game)
	require.Len(t, got.States, 1)
	require.Equal(t, "deadbeef", got.States[0].State)
	require.Nil(t, got.Unfinished)

	sig := got.States[0].Signatures["0x1111111111111111111111111111111111111111"]
	require.Equal(t, uint8(27), sig.V)
	require.Zero(t, sig.R.Cmp(big.NewInt(1)))
}

func TestUnfinishedSlot(t *testing.T) {
	rec := sampleRecord()

	// Without a half signed state the slot is the empty string.
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	require.Contains(t, string(data), `"unfinished":""`)

	rec.Unfinished = &Unfinished{
		State:     "beefdead",
		Signature: contract.Signature{V: 27, R: big.NewInt(5), S: big.NewInt(6)},
	}
	data, err = json.Marshal(rec)
	require.NoError(t, err)

	var got Record
	require.NoError(t, json.Unmarshal(data, &got))
	require.NotNil(t, got.Unfinished)
	require.Equal(t, "beefdead", got.Unfinished.State)
	require.Equal(t, uint8(27), got.Unfinished.Signature.V)
}

func TestLoadMissing(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	_, err = s.Load("nosuch")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, s.Delete("nosuch"))
}

func TestSaveOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	rec := sampleRecord()
	require.NoError(t, s.Save("ccdd", rec))
	rec.States = append(rec.States, SignedState{State: "ffff", Signatures: map[string]contract.Signature{}})
	require.NoError(t, s.Save("ccdd", rec))

	got, err := s.Load("ccdd")
	require.NoError(t, err)
	require.Len(t, got.States, 2)

	// No stray temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "ccdd.pkr", filepath.Base(entries[0].Name()))

	require.NoError(t, s.Delete("ccdd"))
	_, err = s.Load("ccdd")
	require.ErrorIs(t, err, ErrNotFound)
}
