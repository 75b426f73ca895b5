package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kingrea/trivia-terminal/internal/lock"
)

// Snapshot is the in-memory session state kept next to the lock record so a
// restarted client can adopt it instead of starting over.
type Snapshot struct {
	Token   string               `json:"token"`
	Session Session              `json:"session"`
	Answers map[int]AnswerResult `json:"answers,omitempty"`
	Pending *PendingAnswer       `json:"pending,omitempty"`
	SavedAt time.Time            `json:"savedAt"`
}

// PendingAnswer is a submission whose verdict had not arrived when the
// snapshot was written. The server may already have recorded it.
type PendingAnswer struct {
	QuestionIndex int   `json:"questionIndex"`
	OptionIndex   int   `json:"optionIndex"`
	ElapsedMs     int64 `json:"elapsedMs"`
	Timeout       bool  `json:"timeout,omitempty"`
}

// Journal persists snapshots under lock.SnapshotKey.
type Journal struct {
	store lock.Storage
}

// NewJournal stores snapshots in store, normally the lock manager's storage.
func NewJournal(store lock.Storage) *Journal {
	return &Journal{store: store}
}

func (j *Journal) Load() (Snapshot, bool, error) {
	if j == nil || j.store == nil {
		return Snapshot{}, false, nil
	}
	data, ok, err := j.store.Get(lock.SnapshotKey)
	if err != nil || !ok {
		return Snapshot{}, false, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("session: decode snapshot: %w", err)
	}
	return snap, true, nil
}

func (j *Journal) Save(snap Snapshot) error {
	if j == nil || j.store == nil {
		return nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("session: encode snapshot: %w", err)
	}
	return j.store.Set(lock.SnapshotKey, data)
}

func (j *Journal) Clear() error {
	if j == nil || j.store == nil {
		return nil
	}
	return j.store.Delete(lock.SnapshotKey)
}
