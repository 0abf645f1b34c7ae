package compose

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/user/composablestudio/internal/types"
)

func TestRecordHistoryIsAppendOnly(t *testing.T) {
	history := []types.ConversationHistory{}
	actions := []types.HistoryAction{
		types.HistoryMessageSent,
		types.HistoryComponentAdded,
		types.HistoryStateAdvanced,
	}

	for _, a := range actions {
		prev := slices.Clone(history)
		next, err := RecordHistory(history, types.ConversationHistory{
			CompositionID: "comp-1",
			Action:        a,
			Description:   string(a),
		})
		require.NoError(t, err)
		require.Len(t, next, len(prev)+1)
		require.Equal(t, prev, next[:len(prev)])
		require.Equal(t, prev, history, "input history must not change")
		history = next
	}

	for i, e := range history {
		require.Equal(t, int64(i+1), e.Seq)
		require.NotEmpty(t, e.ID)
		require.False(t, e.Timestamp.IsZero())
	}
}

func TestRecordHistoryRequiresComposition(t *testing.T) {
	_, err := RecordHistory(nil, types.ConversationHistory{Action: types.HistoryMessageSent})
	require.True(t, IsValidation(err))
}

func TestRecordHistoryRejectsUnknownAction(t *testing.T) {
	_, err := RecordHistory(nil, types.ConversationHistory{CompositionID: "c", Action: "deleted-everything"})
	require.True(t, IsValidation(err))
}

func TestRecordHistoryRejectsDuplicateID(t *testing.T) {
	entry := types.ConversationHistory{ID: "h1", CompositionID: "c", Action: types.HistoryMessageSent}
	history, err := RecordHistory(nil, entry)
	require.NoError(t, err)

	_, err = RecordHistory(history, entry)
	require.True(t, IsValidation(err))
}

func TestRecordHistoryCopiesDetails(t *testing.T) {
	details := map[string]any{"component": "hero"}
	history, err := RecordHistory(nil, types.ConversationHistory{
		CompositionID: "c",
		Action:        types.HistoryComponentAdded,
		Details:       details,
	})
	require.NoError(t, err)

	details["component"] = "cta"
	require.Equal(t, "hero", history[0].Details["component"])
}

func TestRecordHistoryNormalizesDetails(t *testing.T) {
	history, err := RecordHistory(nil, types.ConversationHistory{
		CompositionID: "c",
		Action:        types.HistoryComponentUpdated,
		Timestamp:     fixedTime,
		Details: map[string]any{
			"fields":  3,
			"changed": []string{"data", "visible"},
			"nested":  map[string]int{"x": 1},
		},
	})
	require.NoError(t, err)
	require.Equal(t, map[string]any{
		"fields":  float64(3),
		"changed": []any{"data", "visible"},
		"nested":  map[string]any{"x": float64(1)},
	}, history[0].Details)

	state := types.ComposeState{ActiveView: types.ViewChat, ConversationHistory: history}
	b, err := MarshalSnapshot(state)
	require.NoError(t, err)
	back, err := UnmarshalSnapshot(b)
	require.NoError(t, err)
	require.Equal(t, state, back)
}

func TestRecordHistoryRejectsUnencodableDetails(t *testing.T) {
	_, err := RecordHistory(nil, types.ConversationHistory{
		CompositionID: "c",
		Action:        types.HistoryComponentAdded,
		Details:       map[string]any{"fn": func() {}},
	})
	require.True(t, IsValidation(err))
}
