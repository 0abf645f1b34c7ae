package compose

import (
	"slices"

	"github.com/user/composablestudio/internal/types"
)

// NewMessage builds a message with a fresh id and the current timestamp.
func NewMessage(role types.Role, content string) types.ChatMessage {
	return types.ChatMessage{
		ID:        types.NewMessageID(),
		Role:      role,
		Content:   content,
		Timestamp: now(),
	}
}

// AppendMessage returns a new log with msg at the end. The input log is left
// untouched. The message id must be unique within the log.
func AppendMessage(log []types.ChatMessage, msg types.ChatMessage) ([]types.ChatMessage, error) {
	if err := validateMessage(msg); err != nil {
		return nil, err
	}
	for _, existing := range log {
		if existing.ID == msg.ID {
			return nil, &ValidationError{Field: "message id", Value: string(msg.ID), Reason: "already present in log"}
		}
	}

	stored, err := cloneMessage(msg)
	if err != nil {
		return nil, err
	}
	out := make([]types.ChatMessage, len(log), len(log)+1)
	copy(out, log)
	return append(out, stored), nil
}

// cloneMessage copies msg down to its nested slices, records and preview
// payloads.
func cloneMessage(msg types.ChatMessage) (types.ChatMessage, error) {
	out := msg
	out.Thoughts = slices.Clone(msg.Thoughts)
	out.Actions = slices.Clone(msg.Actions)
	out.Attachments = slices.Clone(msg.Attachments)
	for i, a := range out.Attachments {
		if a.Analysis == nil {
			continue
		}
		analysis := *a.Analysis
		analysis.Tags = slices.Clone(a.Analysis.Tags)
		out.Attachments[i].Analysis = &analysis
	}
	if msg.VisualAnalysis != nil {
		va := *msg.VisualAnalysis
		va.DetectedComponents = slices.Clone(va.DetectedComponents)
		va.Palette = slices.Clone(va.Palette)
		out.VisualAnalysis = &va
	}
	out.Disambiguation = slices.Clone(msg.Disambiguation)
	for i, o := range out.Disambiguation {
		if o.PreviewData.Data == nil {
			continue
		}
		preview, err := clonePreview(o.PreviewData)
		if err != nil {
			return msg, err
		}
		out.Disambiguation[i].PreviewData = preview
	}
	return out, nil
}

func validateMessage(msg types.ChatMessage) error {
	if msg.ID == "" {
		return &ValidationError{Field: "message id", Reason: "empty"}
	}
	if !msg.Role.Valid() {
		return &ValidationError{Field: "role", Value: string(msg.Role), Reason: "must be user, agent or system"}
	}

	actions := make(map[string]bool, len(msg.Actions))
	for _, a := range msg.Actions {
		if a.ID == "" {
			return &ValidationError{Field: "action id", Reason: "empty"}
		}
		if actions[a.ID] {
			return &ValidationError{Field: "action id", Value: a.ID, Reason: "duplicate within message"}
		}
		actions[a.ID] = true
		if !a.Kind.Valid() {
			return &ValidationError{Field: "action kind", Value: string(a.Kind), Reason: "must be button or input"}
		}
	}

	attachments := make(map[types.AttachmentID]bool, len(msg.Attachments))
	for _, a := range msg.Attachments {
		if a.ID == "" {
			return &ValidationError{Field: "attachment id", Reason: "empty"}
		}
		if attachments[a.ID] {
			return &ValidationError{Field: "attachment id", Value: string(a.ID), Reason: "duplicate within message"}
		}
		attachments[a.ID] = true
		if !a.Kind.Valid() {
			return &ValidationError{Field: "attachment kind", Value: string(a.Kind), Reason: "unknown kind"}
		}
	}

	thoughts := make(map[types.ThoughtID]bool, len(msg.Thoughts))
	for _, th := range msg.Thoughts {
		if th.ID == "" {
			return &ValidationError{Field: "thought id", Reason: "empty"}
		}
		if thoughts[th.ID] {
			return &ValidationError{Field: "thought id", Value: string(th.ID), Reason: "duplicate within message"}
		}
		thoughts[th.ID] = true
	}

	if err := validateOptions(msg.Disambiguation); err != nil {
		return err
	}
	if msg.SelectedOption != "" && !slices.ContainsFunc(msg.Disambiguation, func(o types.DisambiguationOption) bool {
		return o.ID == msg.SelectedOption
	}) {
		return &ValidationError{Field: "selected option", Value: msg.SelectedOption, Reason: "not one of the message's options"}
	}
	return nil
}

func validateOptions(options []types.DisambiguationOption) error {
	seen := make(map[string]bool, len(options))
	for _, o := range options {
		if o.ID == "" {
			return &ValidationError{Field: "option id", Reason: "empty"}
		}
		if seen[o.ID] {
			return &ValidationError{Field: "option id", Value: o.ID, Reason: "duplicate within message"}
		}
		seen[o.ID] = true
		if o.Confidence < 0 || o.Confidence > 1 {
			return &ValidationError{Field: "option confidence", Value: o.ID, Reason: "must be between 0 and 1"}
		}
	}
	return nil
}
