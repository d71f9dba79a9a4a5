package checkpoint

import (
	"encoding/json"
	"fmt"

	"github.com/wI2L/jsondiff"

	"github.com/burntcarrot/pairboard/board"
	"github.com/burntcarrot/pairboard/commons"
)

// Diff returns the JSON patch that turns checkpoint a into checkpoint b.
// Shapes are keyed by Uid so the patch paths read /<uid>/<field>.
func (h *History) Diff(a, b int) (jsondiff.Patch, error) {
	from, err := h.Get(a)
	if err != nil {
		return nil, err
	}
	to, err := h.Get(b)
	if err != nil {
		return nil, err
	}

	source, err := keyed(from.Shapes)
	if err != nil {
		return nil, err
	}
	target, err := keyed(to.Shapes)
	if err != nil {
		return nil, err
	}

	patch, err := jsondiff.CompareJSON(source, target)
	if err != nil {
		return nil, fmt.Errorf("diff checkpoints %d and %d: %w", a, b, err)
	}
	return patch, nil
}

func keyed(shapes []board.Shape) ([]byte, error) {
	byUid := make(map[board.Uid]commons.Operation, len(shapes))
	for _, s := range shapes {
		byUid[s.Uid] = commons.ToOperation(s)
	}
	return json.Marshal(byUid)
}
