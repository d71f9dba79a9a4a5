package checkpoint

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/burntcarrot/pairboard/board"
)

// Store persists checkpoints outside the process. Append is only ever called
// with the next number in sequence.
type Store interface {
	Append(ctx context.Context, r Record) error
	Load(ctx context.Context) ([]Record, error)
}

// History is the append-only list of checkpoints. Checkpoints are never
// modified or removed once saved.
type History struct {
	mu          sync.RWMutex
	checkpoints []Checkpoint
	store       Store
	logger      logrus.FieldLogger
}

// NewHistory creates a history, replaying any checkpoints already in store.
// A nil store keeps checkpoints in memory only.
func NewHistory(ctx context.Context, store Store, logger logrus.FieldLogger) (*History, error) {
	h := &History{store: store, logger: logger}
	if store == nil {
		return h, nil
	}

	records, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load checkpoints: %w", err)
	}
	for i, r := range records {
		if r.Number != i {
			return nil, fmt.Errorf("load checkpoints: gap in history, expected %d got %d", i, r.Number)
		}
		cp, err := FromRecord(r)
		if err != nil {
			return nil, fmt.Errorf("load checkpoint %d: %w", r.Number, err)
		}
		h.checkpoints = append(h.checkpoints, cp)
	}

	logger.WithField("checkpoints", len(h.checkpoints)).Info("replayed checkpoint history")
	return h, nil
}

// Save appends a snapshot of shapes and returns it. The caller must hold
// whatever lock makes shapes a consistent view of the board.
func (h *History) Save(ctx context.Context, creator string, at time.Time, shapes []board.Shape) (Checkpoint, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cp := Checkpoint{
		Number:     len(h.checkpoints),
		Creator:    creator,
		CapturedAt: at,
		Shapes:     append([]board.Shape(nil), shapes...),
	}
	board.SortByCreation(cp.Shapes)

	if h.store != nil {
		if err := h.store.Append(ctx, ToRecord(cp)); err != nil {
			return Checkpoint{}, fmt.Errorf("persist checkpoint %d: %w", cp.Number, err)
		}
	}

	h.checkpoints = append(h.checkpoints, cp)
	return cp.clone(), nil
}

// Get returns checkpoint n or board.ErrNotFound.
func (h *History) Get(n int) (Checkpoint, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n < 0 || n >= len(h.checkpoints) {
		return Checkpoint{}, fmt.Errorf("checkpoint %d: %w", n, board.ErrNotFound)
	}
	return h.checkpoints[n].clone(), nil
}

// Len returns the number of saved checkpoints.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.checkpoints)
}

// List summarizes every checkpoint in order.
func (h *History) List() []Summary {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Summary, 0, len(h.checkpoints))
	for _, cp := range h.checkpoints {
		out = append(out, cp.summary())
	}
	return out
}
