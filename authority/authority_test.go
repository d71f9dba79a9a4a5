package authority

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/burntcarrot/pairboard/board"
	"github.com/burntcarrot/pairboard/checkpoint"
	"github.com/burntcarrot/pairboard/commons"
	"github.com/burntcarrot/pairboard/geometry"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// recorder collects published messages.
type recorder struct {
	mu       sync.Mutex
	messages []commons.Message
}

func (r *recorder) Publish(msg commons.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *recorder) last() commons.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.messages[len(r.messages)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func newAuthority(t *testing.T) (*Authority, *recorder, *Metrics) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	history, err := checkpoint.NewHistory(context.Background(), nil, logger)
	if err != nil {
		t.Fatalf("error: %v\n", err)
	}
	rec := &recorder{}
	metrics := NewMetrics(prometheus.NewRegistry())
	a := New(history,
		WithPublisher(rec),
		WithLogger(logger),
		WithMetrics(metrics),
		WithClock(func() time.Time { return t0.Add(time.Hour) }),
	)
	return a, rec, metrics
}

func shape(uid, editor string, level int, at time.Duration, op board.OpKind, col float64) board.Shape {
	s := board.Shape{
		Uid:        board.Uid(uid),
		CreatedAt:  t0,
		ModifiedAt: t0.Add(at),
		Owner:      editor,
		Editor:     editor,
		Level:      level,
		Op:         op,
		Settled:    true,
	}
	if !op.Removes() {
		s.Geometry = geometry.NewRectangle(geometry.Pt(0, col), geometry.Pt(2, col+2))
	}
	return s
}

func batch(requester string, t commons.MessageType, shapes ...board.Shape) commons.Message {
	return commons.NewDelta(requester, 0, t, shapes)
}

func TestSaveUpdateCreates(t *testing.T) {
	a, rec, metrics := newAuthority(t)

	ok := a.SaveUpdate(batch("alice", commons.CreateMessage,
		shape("b", "alice", 1, time.Second, board.OpCreate, 5),
		shape("a", "alice", 1, time.Second, board.OpCreate, 1),
	))
	if !ok {
		t.Fatalf("batch not applied")
	}

	got := a.FetchState()
	if len(got) != 2 || got[0].Uid != "a" || got[1].Uid != "b" {
		t.Errorf("unexpected state: %+v", got)
	}
	if rec.count() != 1 || len(rec.last().Shapes) != 2 {
		t.Errorf("expected one published delta with two shapes, got %+v", rec.messages)
	}
	if v := testutil.ToFloat64(metrics.Shapes); v != 2 {
		t.Errorf("got live_shapes = %v, expected 2", v)
	}
}

func TestSaveUpdateEmptyBatchIsNoop(t *testing.T) {
	a, rec, _ := newAuthority(t)

	if !a.SaveUpdate(commons.Message{Requester: "alice", Type: commons.ModifyMessage}) {
		t.Errorf("empty batch must succeed")
	}
	if rec.count() != 0 || len(a.FetchState()) != 0 {
		t.Errorf("empty batch had an effect")
	}
}

func TestSaveUpdateRejectsInvalidBatchAtomically(t *testing.T) {
	a, rec, metrics := newAuthority(t)
	a.SaveUpdate(batch("alice", commons.CreateMessage, shape("r1", "alice", 1, 0, board.OpCreate, 0)))
	before := a.FetchState()
	published := rec.count()

	tests := []struct {
		description string
		msg         commons.Message
	}{
		{
			description: "missing geometry",
			msg: func() commons.Message {
				bad := shape("r2", "alice", 1, time.Second, board.OpModify, 0)
				bad.Geometry = nil
				return batch("alice", commons.ModifyMessage, shape("r1", "alice", 1, time.Second, board.OpModify, 9), bad)
			}(),
		},
		{
			description: "bad uid",
			msg:         batch("alice", commons.ModifyMessage, shape("r1", "alice", 1, time.Second, board.OpModify, 9), shape("", "alice", 1, 0, board.OpCreate, 0)),
		},
		{
			description: "request type",
			msg:         batch("alice", commons.FetchStateMessage, shape("r1", "alice", 1, time.Second, board.OpModify, 9)),
		},
		{
			description: "stale epoch",
			msg: func() commons.Message {
				m := batch("alice", commons.ModifyMessage, shape("r1", "alice", 1, time.Second, board.OpModify, 9))
				m.Epoch = 3
				return m
			}(),
		},
	}

	for _, tc := range tests {
		if a.SaveUpdate(tc.msg) {
			t.Errorf("(%s) invalid batch applied", tc.description)
		}
		if got := a.FetchState(); !cmp.Equal(got, before) {
			t.Errorf("(%s) rejected batch changed state, diff: %v\n", tc.description, cmp.Diff(got, before))
		}
	}

	if rec.count() != published {
		t.Errorf("rejected batches published deltas")
	}
	if v := testutil.ToFloat64(metrics.Batches.WithLabelValues(resultRejected)); v != float64(len(tests)) {
		t.Errorf("got rejected = %v, expected %d", v, len(tests))
	}
}

func TestSaveUpdateIdempotent(t *testing.T) {
	a, rec, _ := newAuthority(t)
	msg := batch("alice", commons.ModifyMessage,
		shape("r1", "alice", 1, time.Second, board.OpCreate, 0),
		shape("r2", "alice", 1, time.Second, board.OpCreate, 4),
	)

	a.SaveUpdate(msg)
	first := a.FetchState()
	published := rec.count()

	if !a.SaveUpdate(msg) {
		t.Fatalf("reapplied batch rejected")
	}
	if got := a.FetchState(); !cmp.Equal(got, first) {
		t.Errorf("reapplying changed state, diff: %v\n", cmp.Diff(got, first))
	}
	if rec.count() != published {
		t.Errorf("reapplying a batch published again")
	}
}

func TestConflictDeterminism(t *testing.T) {
	u1 := shape("r1", "bob", 2, 5*time.Second, board.OpModify, 1)
	u2 := shape("r1", "carol", 5, time.Second, board.OpModify, 7)

	for _, order := range [][]board.Shape{{u1, u2}, {u2, u1}} {
		a, _, _ := newAuthority(t)
		a.SaveUpdate(batch("alice", commons.CreateMessage, shape("r1", "alice", 1, 0, board.OpCreate, 0)))

		a.SaveUpdate(batch(order[0].Editor, commons.ModifyMessage, order[0]))
		a.SaveUpdate(batch(order[1].Editor, commons.ModifyMessage, order[1]))

		got := a.FetchState()
		if len(got) != 1 || !cmp.Equal(got[0].Geometry, u2.Geometry) {
			t.Errorf("order %s,%s: got %+v, expected u2 geometry", order[0].Editor, order[1].Editor, got)
		}
	}
}

func TestLosingEditPublishesCorrection(t *testing.T) {
	a, rec, metrics := newAuthority(t)
	a.SaveUpdate(batch("host", commons.CreateMessage, shape("r1", "host", 5, 0, board.OpCreate, 0)))

	if !a.SaveUpdate(batch("bob", commons.ModifyMessage, shape("r1", "bob", 1, time.Minute, board.OpModify, 3))) {
		t.Fatalf("arbitrated batch must still be applied")
	}

	correction := rec.last()
	if len(correction.Shapes) != 1 || correction.Shapes[0].Editor != "host" {
		t.Errorf("expected host's value to be republished, got %+v", correction)
	}
	if v := testutil.ToFloat64(metrics.Conflicts); v != 1 {
		t.Errorf("got conflicts = %v, expected 1", v)
	}
}

func TestDeleteBeatsConcurrentCreate(t *testing.T) {
	orders := [][]commons.Message{
		{
			batch("a", commons.CreateMessage, shape("r1", "a", 1, time.Second, board.OpCreate, 0)),
			batch("b", commons.DeleteMessage, shape("r1", "b", 5, 0, board.OpDelete, 0)),
		},
		{
			batch("b", commons.DeleteMessage, shape("r1", "b", 5, 0, board.OpDelete, 0)),
			batch("a", commons.CreateMessage, shape("r1", "a", 1, time.Second, board.OpCreate, 0)),
		},
	}

	for i, msgs := range orders {
		a, _, _ := newAuthority(t)
		for _, m := range msgs {
			a.SaveUpdate(m)
		}
		if got := a.FetchState(); len(got) != 0 {
			t.Errorf("(order %d) r1 resurrected: %+v", i, got)
		}

		// Later edits cannot bring it back either.
		a.SaveUpdate(batch("a", commons.ModifyMessage, shape("r1", "a", 9, time.Hour, board.OpModify, 1)))
		if got := a.FetchState(); len(got) != 0 {
			t.Errorf("(order %d) r1 resurrected by modify: %+v", i, got)
		}
	}
}

func TestSameBatchConflict(t *testing.T) {
	a, rec, _ := newAuthority(t)
	a.SaveUpdate(batch("alice", commons.CreateMessage, shape("r1", "alice", 1, 0, board.OpCreate, 0)))

	a.SaveUpdate(batch("alice", commons.ModifyMessage,
		shape("r1", "alice", 1, 2*time.Second, board.OpModify, 2),
		shape("r1", "alice", 1, time.Second, board.OpModify, 1),
	))

	got := a.FetchState()[0]
	if !got.ModifiedAt.Equal(t0.Add(2 * time.Second)) {
		t.Errorf("expected latest sample to win, got %v", got.ModifiedAt)
	}
	if n := len(rec.last().Shapes); n != 1 {
		t.Errorf("expected a single accepted delta per uid, got %d", n)
	}
}

func TestModifyPreservesProvenance(t *testing.T) {
	a, _, _ := newAuthority(t)
	a.SaveUpdate(batch("alice", commons.CreateMessage, shape("r1", "alice", 1, 0, board.OpCreate, 0)))

	forged := shape("r1", "bob", 1, time.Minute, board.OpModify, 6)
	forged.Owner = "bob"
	forged.CreatedAt = t0.Add(time.Hour)
	a.SaveUpdate(batch("bob", commons.ModifyMessage, forged))

	got := a.FetchState()[0]
	if got.Owner != "alice" || !got.CreatedAt.Equal(t0) || got.Uid != "r1" {
		t.Errorf("provenance not preserved: %+v", got)
	}
	if got.Editor != "bob" || !cmp.Equal(got.Geometry, forged.Geometry) {
		t.Errorf("edit not applied: %+v", got)
	}
}

func TestClear(t *testing.T) {
	a, rec, _ := newAuthority(t)
	a.SaveUpdate(batch("alice", commons.CreateMessage,
		shape("r1", "alice", 1, 0, board.OpCreate, 0),
		shape("r2", "bob", 3, 0, board.OpCreate, 4),
	))

	if !a.SaveUpdate(commons.Message{Requester: "alice", Type: commons.ClearMessage}) {
		t.Fatalf("clear rejected")
	}
	if got := a.FetchState(); len(got) != 0 {
		t.Errorf("clear left shapes: %+v", got)
	}
	if n := len(rec.last().Shapes); n != 2 {
		t.Errorf("expected two removals published, got %d", n)
	}
}

func TestCheckpointFiftyShapes(t *testing.T) {
	a, _, _ := newAuthority(t)

	var shapes []board.Shape
	for i := 49; i >= 0; i-- {
		s := shape(fmt.Sprintf("s%02d", i), "alice", 1, 0, board.OpCreate, float64(i))
		s.CreatedAt = t0.Add(time.Duration(i) * time.Millisecond)
		shapes = append(shapes, s)
	}
	if !a.SaveUpdate(batch("alice", commons.CreateMessage, shapes...)) {
		t.Fatalf("batch rejected")
	}

	n, err := a.SaveCheckpoint(context.Background(), "alice")
	if err != nil {
		t.Fatalf("error: %v\n", err)
	}
	if n != 0 || a.GetCheckpointsNumber() != 1 {
		t.Fatalf("got number = %d, count = %d", n, a.GetCheckpointsNumber())
	}

	got, err := a.FetchCheckpoint(0, "bob")
	if err != nil {
		t.Fatalf("error: %v\n", err)
	}
	if len(got) != 50 {
		t.Fatalf("got %d shapes, expected 50", len(got))
	}
	for i, s := range got {
		if expected := board.Uid(fmt.Sprintf("s%02d", i)); s.Uid != expected {
			t.Errorf("position %d: got %s, expected %s", i, s.Uid, expected)
		}
	}
}

func TestCheckpointRoundTripIgnoresLaterEdits(t *testing.T) {
	a, rec, _ := newAuthority(t)
	a.SaveUpdate(batch("alice", commons.CreateMessage, shape("r1", "alice", 1, 0, board.OpCreate, 0)))
	saved := a.FetchState()

	n, _ := a.SaveCheckpoint(context.Background(), "alice")
	if msg := rec.last(); msg.Type != commons.SaveCheckpointMessage || msg.Checkpoints != 1 {
		t.Errorf("expected checkpoint count broadcast, got %+v", msg)
	}

	a.SaveUpdate(batch("alice", commons.ModifyMessage, shape("r1", "alice", 1, time.Second, board.OpModify, 8)))
	a.SaveUpdate(batch("alice", commons.CreateMessage, shape("r2", "alice", 1, time.Second, board.OpCreate, 3)))

	got, err := a.FetchCheckpoint(n, "carol")
	if err != nil {
		t.Fatalf("error: %v\n", err)
	}
	if !cmp.Equal(got, saved) {
		t.Errorf("got != want; diff = %v\n", cmp.Diff(got, saved))
	}
	if state := a.FetchState(); !cmp.Equal(state, saved) {
		t.Errorf("restore did not overwrite state, diff = %v\n", cmp.Diff(state, saved))
	}

	full := rec.last()
	if !full.Full || full.Type != commons.FetchCheckpointMessage || full.Epoch != 1 {
		t.Errorf("expected full-state broadcast for epoch 1, got %+v", full)
	}

	// r2 was dropped by the restore and stale edits from epoch 0 are refused.
	if a.SaveUpdate(batch("alice", commons.ModifyMessage, shape("r2", "alice", 1, time.Hour, board.OpModify, 3))) {
		t.Errorf("stale batch applied after restore")
	}
	late := commons.NewDelta("alice", 1, commons.ModifyMessage, []board.Shape{shape("r2", "alice", 1, time.Hour, board.OpModify, 3)})
	a.SaveUpdate(late)
	if state := a.FetchState(); len(state) != 1 {
		t.Errorf("shape removed by restore came back: %+v", state)
	}
}

func TestFetchCheckpointNotFound(t *testing.T) {
	a, _, _ := newAuthority(t)

	if _, err := a.FetchCheckpoint(0, "alice"); !IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
	if a.Epoch() != 0 {
		t.Errorf("failed restore advanced the epoch")
	}
}

// TestCheckpointsAreLinearizable runs checkpoints concurrently with two-shape
// batches and checks no checkpoint ever holds half a batch.
func TestCheckpointsAreLinearizable(t *testing.T) {
	a, _, _ := newAuthority(t)
	a.SaveUpdate(batch("alice", commons.CreateMessage,
		shape("left", "alice", 1, 0, board.OpCreate, 0),
		shape("right", "alice", 1, 0, board.OpCreate, 0),
	))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 1; i <= 200; i++ {
			a.SaveUpdate(batch("alice", commons.ModifyMessage,
				shape("left", "alice", 1, time.Duration(i)*time.Millisecond, board.OpModify, float64(i)),
				shape("right", "alice", 1, time.Duration(i)*time.Millisecond, board.OpModify, float64(i)),
			))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if _, err := a.SaveCheckpoint(context.Background(), "bob"); err != nil {
				t.Errorf("error: %v\n", err)
			}
		}
	}()
	wg.Wait()

	for _, summary := range a.Checkpoints() {
		cp, err := a.Checkpoint(summary.Number)
		if err != nil {
			t.Fatalf("error: %v\n", err)
		}
		if !cmp.Equal(cp.Shapes[0].Geometry, cp.Shapes[1].Geometry) {
			t.Fatalf("checkpoint %d observed a torn batch: %+v", cp.Number, cp.Shapes)
		}
	}
}

func TestBootstrap(t *testing.T) {
	a, _, _ := newAuthority(t)
	a.SaveUpdate(batch("alice", commons.CreateMessage, shape("r1", "alice", 1, 0, board.OpCreate, 0)))
	_, _ = a.SaveCheckpoint(context.Background(), "alice")

	var got commons.Message
	a.Bootstrap("dave", func(msg commons.Message) { got = msg })

	if !got.Full || got.Type != commons.FetchStateMessage || got.Checkpoints != 1 || len(got.Shapes) != 1 {
		t.Errorf("unexpected bootstrap message: %+v", got)
	}
}

func TestModifiedAtNeverGoesBackwards(t *testing.T) {
	a, rec, _ := newAuthority(t)
	a.SaveUpdate(batch("alice", commons.CreateMessage, shape("r1", "alice", 1, 0, board.OpCreate, 0)))
	a.SaveUpdate(batch("alice", commons.ModifyMessage, shape("r1", "alice", 1, 10*time.Second, board.OpModify, 1)))

	// The higher level wins although its clock is behind.
	if !a.SaveUpdate(batch("host", commons.ModifyMessage, shape("r1", "host", 5, 5*time.Second, board.OpModify, 7))) {
		t.Fatalf("expected host's batch to be accepted")
	}

	got := a.FetchState()[0]
	if got.Editor != "host" || got.Level != 5 {
		t.Fatalf("expected host's edit to win, got %+v", got)
	}
	if !got.ModifiedAt.Equal(t0.Add(10 * time.Second)) {
		t.Errorf("ModifiedAt moved from 10s to %v", got.ModifiedAt.Sub(t0))
	}

	published, err := commons.FromOperations(rec.last().Shapes)
	if err != nil {
		t.Fatalf("error: %v\n", err)
	}
	if !cmp.Equal(published, []board.Shape{got}) {
		t.Errorf("got != expected, diff: %v\n", cmp.Diff(published, []board.Shape{got}))
	}

	// A removal by a lagging clock does not rewind the tombstone either.
	a.SaveUpdate(batch("bob", commons.DeleteMessage, shape("r1", "bob", 1, time.Second, board.OpDelete, 0)))
	deleted, err := commons.FromOperations(rec.last().Shapes)
	if err != nil {
		t.Fatalf("error: %v\n", err)
	}
	if len(deleted) != 1 || deleted[0].Op != board.OpDelete || deleted[0].ModifiedAt.Before(got.ModifiedAt) {
		t.Errorf("unexpected tombstone %+v", deleted)
	}
}
