// Package authority holds the canonical board state. Every mutation of the
// board goes through one critical section, which makes update batches atomic
// and checkpoints linearizable with respect to them.
package authority

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/wI2L/jsondiff"

	"github.com/burntcarrot/pairboard/board"
	"github.com/burntcarrot/pairboard/checkpoint"
	"github.com/burntcarrot/pairboard/commons"
)

// Authority owns the canonical board.
type Authority struct {
	mu sync.Mutex

	shapes     map[board.Uid]board.Shape
	tombstones map[board.Uid]board.Shape

	// epoch counts checkpoint restores.
	epoch int

	history   *checkpoint.History
	publisher Publisher
	logger    logrus.FieldLogger
	metrics   *Metrics
	now       func() time.Time
}

// Option configures an Authority.
type Option func(*Authority)

// WithPublisher sets where accepted deltas are published.
func WithPublisher(p Publisher) Option {
	return func(a *Authority) { a.publisher = p }
}

// WithLogger sets the authority's logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(a *Authority) { a.logger = l }
}

// WithMetrics sets the authority's Prometheus instruments.
func WithMetrics(m *Metrics) Option {
	return func(a *Authority) { a.metrics = m }
}

// WithClock overrides the clock used for synthesized removals and checkpoint times.
func WithClock(now func() time.Time) Option {
	return func(a *Authority) { a.now = now }
}

// New creates an authority with an empty board backed by history.
func New(history *checkpoint.History, opts ...Option) *Authority {
	a := &Authority{
		shapes:     make(map[board.Uid]board.Shape),
		tombstones: make(map[board.Uid]board.Shape),
		history:    history,
		publisher:  discard{},
		logger:     logrus.StandardLogger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = NewMetrics(prometheus.NewRegistry())
	}
	return a
}

// SaveUpdate applies msg as one indivisible transaction and reports whether
// it was applied. Conflicting edits are arbitrated with board.Resolve and the
// winning values, not the submitted ones, are published. Invalid or stale
// batches are rejected without touching the board. An empty batch is a
// successful no-op.
func (a *Authority) SaveUpdate(msg commons.Message) bool {
	logger := a.logger.WithFields(logrus.Fields{"requester": msg.Requester, "type": msg.Type, "ops": len(msg.Shapes)})

	if len(msg.Shapes) == 0 && msg.Type != commons.ClearMessage {
		a.metrics.Batches.WithLabelValues(resultNoop).Inc()
		return true
	}

	incoming, err := a.decode(msg)
	if err != nil {
		logger.WithError(err).Warn("rejected update batch")
		a.metrics.Batches.WithLabelValues(resultRejected).Inc()
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if msg.Epoch != a.epoch {
		logger.WithFields(logrus.Fields{"epoch": msg.Epoch, "current": a.epoch}).Warn("rejected stale update batch")
		a.metrics.Batches.WithLabelValues(resultRejected).Inc()
		return false
	}

	if msg.Type == commons.ClearMessage {
		incoming = a.clearAll(msg.Requester, incoming)
	}

	accepted, conflicts := a.arbitrate(incoming)
	for _, s := range accepted {
		a.store(s)
	}

	a.metrics.Batches.WithLabelValues(resultCommitted).Inc()
	a.metrics.Operations.Add(float64(len(accepted)))
	a.metrics.Conflicts.Add(float64(conflicts))
	a.metrics.Shapes.Set(float64(len(a.shapes)))

	if conflicts > 0 {
		logger.WithField("conflicts", conflicts).Debug("arbitrated concurrent edits")
	}

	if len(accepted) > 0 {
		a.publisher.Publish(commons.NewDelta(msg.Requester, a.epoch, msg.Type, accepted))
	}
	return true
}

// decode validates and converts every operation of msg before any state is touched.
func (a *Authority) decode(msg commons.Message) ([]board.Shape, error) {
	if !msg.Type.IsUpdate() {
		return nil, fmt.Errorf("%w: %s is not an update", board.ErrValidation, msg.Type)
	}
	if msg.Full {
		return nil, fmt.Errorf("%w: clients cannot submit full state", board.ErrValidation)
	}

	shapes, err := commons.FromOperations(msg.Shapes)
	if err != nil {
		return nil, err
	}
	for i := range shapes {
		if shapes[i].Editor == "" {
			shapes[i].Editor = msg.Requester
		}
		if shapes[i].Owner == "" {
			shapes[i].Owner = shapes[i].Editor
		}
	}
	return shapes, nil
}

// clearAll adds a removal for every live shape the batch does not mention, so
// shapes the requester never saw are cleared too.
func (a *Authority) clearAll(requester string, incoming []board.Shape) []board.Shape {
	mentioned := make(map[board.Uid]bool, len(incoming))
	for _, s := range incoming {
		mentioned[s.Uid] = true
	}

	at := a.now()
	for uid := range a.shapes {
		if mentioned[uid] {
			continue
		}
		incoming = append(incoming, board.Shape{
			Uid:        uid,
			ModifiedAt: at,
			Editor:     requester,
			Op:         board.OpClear,
			Settled:    true,
		})
	}
	return incoming
}

// arbitrate resolves every touched Uid against its canonical value. It
// returns the values to commit and publish, in first-appearance order, and
// the number of submitted operations that lost.
func (a *Authority) arbitrate(incoming []board.Shape) ([]board.Shape, int) {
	var order []board.Uid
	byUid := make(map[board.Uid][]board.Shape)
	for _, s := range incoming {
		if _, seen := byUid[s.Uid]; !seen {
			order = append(order, s.Uid)
		}
		byUid[s.Uid] = append(byUid[s.Uid], s)
	}

	var accepted []board.Shape
	conflicts := 0

	for _, uid := range order {
		current, exists := a.lookup(uid)

		candidates := make([]board.Shape, 0, len(byUid[uid])+1)
		for _, s := range byUid[uid] {
			if exists {
				s = commons.ApplyUpdate(current, s)
			}
			candidates = append(candidates, s)
		}

		all := candidates
		if exists {
			all = append([]board.Shape{current}, candidates...)
		}
		winner := board.Resolve(all...)

		duplicate := exists
		for _, c := range candidates {
			if !board.Same(c, winner) {
				conflicts++
			}
			if !exists || !board.Same(c, current) {
				duplicate = false
			}
		}

		// Resubmitting the canonical value changes nothing and corrects nobody.
		if duplicate {
			continue
		}
		// Level outranks recency, so the winner may carry an older stamp than
		// the value it replaces. The committed time never goes backwards.
		if exists && winner.ModifiedAt.Before(current.ModifiedAt) {
			winner.ModifiedAt = current.ModifiedAt
		}
		accepted = append(accepted, winner)
	}

	return accepted, conflicts
}

func (a *Authority) lookup(uid board.Uid) (board.Shape, bool) {
	if s, ok := a.shapes[uid]; ok {
		return s, true
	}
	s, ok := a.tombstones[uid]
	return s, ok
}

func (a *Authority) store(s board.Shape) {
	if s.Live() {
		a.shapes[s.Uid] = s
		delete(a.tombstones, s.Uid)
		return
	}
	a.tombstones[s.Uid] = s
	delete(a.shapes, s.Uid)
}

// FetchState returns the live shapes in creation order.
func (a *Authority) FetchState() []board.Shape {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.liveShapes()
}

// Bootstrap hands requester a full-state snapshot. deliver runs inside the
// critical section so the snapshot is ordered before any later delta.
func (a *Authority) Bootstrap(requester string, deliver func(commons.Message)) {
	a.mu.Lock()
	defer a.mu.Unlock()

	msg := commons.NewFullState(requester, a.epoch, commons.FetchStateMessage, a.liveShapes())
	msg.Checkpoints = a.history.Len()
	deliver(msg)
}

func (a *Authority) liveShapes() []board.Shape {
	out := make([]board.Shape, 0, len(a.shapes))
	for _, s := range a.shapes {
		out = append(out, s)
	}
	board.SortByCreation(out)
	return out
}

// SaveCheckpoint snapshots the board and returns the new checkpoint number.
func (a *Authority) SaveCheckpoint(ctx context.Context, user string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cp, err := a.history.Save(ctx, user, a.now(), a.liveShapes())
	if err != nil {
		return 0, err
	}

	a.metrics.Checkpoints.Inc()
	a.logger.WithFields(logrus.Fields{"user": user, "checkpoint": cp.Number, "shapes": len(cp.Shapes)}).Info("saved checkpoint")

	a.publisher.Publish(commons.Message{
		Requester:   user,
		Epoch:       a.epoch,
		Type:        commons.SaveCheckpointMessage,
		Checkpoint:  cp.Number,
		Checkpoints: cp.Number + 1,
	})
	return cp.Number, nil
}

// FetchCheckpoint returns checkpoint n and makes it the canonical board,
// broadcasting it as a full-state replacement. The restore is a barrier: no
// update batch interleaves with it, and batches based on the previous epoch
// are rejected afterwards. The overwritten state is not checkpointed.
func (a *Authority) FetchCheckpoint(n int, user string) ([]board.Shape, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cp, err := a.history.Get(n)
	if err != nil {
		return nil, err
	}

	restored := make(map[board.Uid]board.Shape, len(cp.Shapes))
	for _, s := range cp.Shapes {
		restored[s.Uid] = s
		delete(a.tombstones, s.Uid)
	}

	// Shapes missing from the checkpoint must not come back through late edits.
	at := a.now()
	for uid, s := range a.shapes {
		if _, ok := restored[uid]; ok {
			continue
		}
		s.Op = board.OpDelete
		s.Editor = user
		if s.ModifiedAt.Before(at) {
			s.ModifiedAt = at
		}
		s.Settled = true
		a.tombstones[uid] = s
	}

	a.shapes = restored
	a.epoch++

	a.metrics.Restores.Inc()
	a.metrics.Shapes.Set(float64(len(a.shapes)))
	a.logger.WithFields(logrus.Fields{"user": user, "checkpoint": n, "epoch": a.epoch}).Info("restored checkpoint")

	msg := commons.NewFullState(user, a.epoch, commons.FetchCheckpointMessage, cp.Shapes)
	msg.Checkpoint = n
	msg.Checkpoints = a.history.Len()
	a.publisher.Publish(msg)

	return cp.Shapes, nil
}

// GetCheckpointsNumber returns how many checkpoints have been saved.
func (a *Authority) GetCheckpointsNumber() int {
	return a.history.Len()
}

// Checkpoints summarizes the checkpoint history.
func (a *Authority) Checkpoints() []checkpoint.Summary {
	return a.history.List()
}

// Checkpoint returns checkpoint n without restoring it.
func (a *Authority) Checkpoint(n int) (checkpoint.Checkpoint, error) {
	return a.history.Get(n)
}

// DiffCheckpoints returns the JSON patch between checkpoints from and to.
func (a *Authority) DiffCheckpoints(from, to int) (jsondiff.Patch, error) {
	return a.history.Diff(from, to)
}

// Epoch returns the number of restores performed.
func (a *Authority) Epoch() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.epoch
}

// IsNotFound reports whether err is an unknown checkpoint.
func IsNotFound(err error) bool {
	return errors.Is(err, board.ErrNotFound)
}
