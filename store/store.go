// Package store persists game backups, one JSON file per session. A backup
// carries everything the settlement monitor needs to act without the peer:
// the table basics, every fully co-signed state in order and, after an
// unclean disconnect, the half signed state that was in flight.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/pokerp2p/pokerp2p/contract"
)

// GameInfo pins the table identity and timing a backup belongs to.
type GameInfo struct {
	Players         [2]string `json:"players"`
	StartTime       uint64    `json:"start_time"`
	Duration        uint64    `json:"duration"`
	DisputeDuration uint64    `json:"dispute_duration"`
	TableID         string    `json:"tableID"`
	SessionID       string    `json:"sessionID"`
}

// SignedState is one fully co-signed state, hex encoded, with both
// signatures keyed by signer address.
type SignedState struct {
	State      string                        `json:"state"`
	Signatures map[string]contract.Signature `json:"signatures"`
}

// Unfinished is a state only we signed before the connection dropped.
type Unfinished struct {
	State     string             `json:"state"`
	Signature contract.Signature `json:"signature"`
}

// Record is one backup file.
type Record struct {
	Game       GameInfo
	States     []SignedState
	Unfinished *Unfinished
}

type recordJSON struct {
	Game       GameInfo        `json:"game"`
	States     []SignedState   `json:"states"`
	Unfinished json.RawMessage `json:"unfinished"`
}

// MarshalJSON writes the unfinished slot as an empty string when there is
// no half signed state, matching what the settlement monitor checks for.
func (r Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{Game: r.Game, States: r.States}
	if r.Unfinished == nil {
		out.Unfinished = json.RawMessage(`""`)
	} else {
		raw, err := json.Marshal(r.Unfinished)
		if err != nil {
			return nil, err
		}
		out.Unfinished = raw
	}
	return json.Marshal(out)
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var in recordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	r.Game = in.Game
	r.States = in.States
	r.Unfinished = nil
	if string(in.Unfinished) != `""` && len(in.Unfinished) > 0 && string(in.Unfinished) != "null" {
		var u Unfinished
		if err := json.Unmarshal(in.Unfinished, &u); err != nil {
			return err
		}
		r.Unfinished = &u
	}
	return nil
}

// Store reads and writes backups keyed by the hex session identifier.
type Store interface {
	Save(sessionHex string, rec *Record) error
	Load(sessionHex string) (*Record, error)
	Delete(sessionHex string) error
}

// ErrNotFound is returned when no backup exists for a session.
var ErrNotFound = errors.New("store: no backup for session")

// FileStore keeps one <sessionID>.pkr file per session under a directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "store: create game dir")
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(sessionHex string) string {
	return filepath.Join(s.dir, sessionHex+".pkr")
}

func (s *FileStore) Save(sessionHex string, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "store: encode backup")
	}
	tmp := s.path(sessionHex) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "store: write backup")
	}
	if err := os.Rename(tmp, s.path(sessionHex)); err != nil {
		return errors.Wrap(err, "store: publish backup")
	}
	return nil
}

func (s *FileStore) Load(sessionHex string) (*Record, error) {
	data, err := os.ReadFile(s.path(sessionHex))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "store: read backup")
	}
	rec := &Record{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, errors.Wrap(err, "store: decode backup")
	}
	return rec, nil
}

func (s *FileStore) Delete(sessionHex string) error {
	err := os.Remove(s.path(sessionHex))
	if os.IsNotExist(err) {
		return nil
	}
	return errors.Wrap(err, "store: delete backup")
}

var _ Store = (*FileStore)(nil)
