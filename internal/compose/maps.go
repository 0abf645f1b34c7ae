package compose

import (
	"encoding/json"
	"maps"

	"github.com/pkg/errors"
)

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}

// jsonMap deep-copies m through JSON. Empty maps become nil, matching what
// an omitempty field decodes to.
func jsonMap(m map[string]any) (map[string]any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "encode map")
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, errors.Wrap(err, "decode map")
	}
	return out, nil
}
