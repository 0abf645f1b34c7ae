package compose

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/user/composablestudio/internal/types"
)

func sampleComposeState() types.ComposeState {
	return types.ComposeState{
		ActiveView: types.ViewHistory,
		ConversationHistory: []types.ConversationHistory{
			{
				ID:            "h1",
				CompositionID: "comp-1",
				Seq:           1,
				Timestamp:     fixedTime,
				Action:        types.HistoryComponentAdded,
				Description:   "Added hero",
				Details:       map[string]any{"component_id": "c1", "x": 12.5},
			},
		},
		CurrentMessages: []types.ChatMessage{
			{
				ID:        "m1",
				Role:      types.RoleUser,
				Content:   "Build a page for my bakery",
				Timestamp: fixedTime,
				Attachments: []types.MessageAttachment{{
					ID: "f1", Kind: types.AttachmentImage, Name: "mock.png", Size: "1.2 MB",
					Analysis: &types.AttachmentAnalysis{Summary: "hand drawn wireframe", Tags: []string{"wireframe"}},
				}},
				VisualAnalysis: &types.VisualAnalysis{
					Summary:            "Hero then three features",
					DetectedComponents: []types.ComponentType{types.ComponentHero, types.ComponentFeatures},
					Palette:            []string{"#fff", "#222"},
					Confidence:         0.8,
				},
			},
			{
				ID:        "m2",
				Role:      types.RoleAgent,
				Content:   "Pick a layout",
				Timestamp: fixedTime,
				Thinking:  true,
				Thoughts:  []types.AgentThought{{ID: "t1", Content: "reading sketch", DurationMs: 1200, Completed: true}},
				Actions:   []types.MessageAction{{ID: "act1", Label: "Use A", Kind: types.ActionButton, Command: "disambiguate:a"}},
				Disambiguation: []types.DisambiguationOption{{
					ID: "a", Label: "Stats", Confidence: 0.5,
					PreviewData: types.ComponentPreview{Type: types.ComponentStats, Data: &types.StatsData{Items: []types.Stat{{Label: "Loaves", Value: "1k"}}}},
				}},
			},
		},
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	state := sampleComposeState()

	b, err := MarshalSnapshot(state)
	require.NoError(t, err)

	decoded, err := UnmarshalSnapshot(b)
	require.NoError(t, err)
	require.Equal(t, state, decoded)
}

func TestUnmarshalSnapshotRejectsUnknownView(t *testing.T) {
	_, err := UnmarshalSnapshot([]byte(`{"active_view":"canvas"}`))
	require.True(t, IsValidation(err))
}

func TestWithMessageAndHistory(t *testing.T) {
	state := NewComposeState()
	state, err := WithMessage(state, msg("m1", types.RoleUser, "hi"))
	require.NoError(t, err)
	state, err = WithHistory(state, types.ConversationHistory{CompositionID: "c", Action: types.HistoryMessageSent})
	require.NoError(t, err)

	require.Len(t, state.CurrentMessages, 1)
	require.Len(t, state.ConversationHistory, 1)

	_, err = WithView(state, "grid")
	require.True(t, IsValidation(err))
}

func TestReplaceMessage(t *testing.T) {
	state := sampleComposeState()
	m, err := FindMessage(state, "m2")
	require.NoError(t, err)

	collapsed, _, err := CollapseDisambiguation(m, "a")
	require.NoError(t, err)

	out, err := ReplaceMessage(state, collapsed)
	require.NoError(t, err)
	require.Len(t, out.CurrentMessages, 2)
	require.Equal(t, collapsed, out.CurrentMessages[1])

	_, err = ReplaceMessage(state, types.ChatMessage{ID: "missing", Role: types.RoleAgent})
	require.True(t, IsNotFound(err))
}

func TestCompleteThought(t *testing.T) {
	thoughts := []types.AgentThought{{ID: "t1"}, {ID: "t2"}}
	out, err := CompleteThought(thoughts, "t2")
	require.NoError(t, err)
	require.True(t, out[1].Completed)
	require.False(t, thoughts[1].Completed)

	_, err = CompleteThought(thoughts, "t3")
	require.True(t, IsNotFound(err))
}
