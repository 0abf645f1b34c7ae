package compose

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/user/composablestudio/internal/types"
)

// ResolveDisambiguation returns the preview of the option the user picked.
// The returned payload is a copy; editing it does not affect options.
func ResolveDisambiguation(options []types.DisambiguationOption, selectedID string) (types.ComponentPreview, error) {
	for _, o := range options {
		if o.ID != selectedID {
			continue
		}
		if err := o.PreviewData.Validate(); err != nil {
			return types.ComponentPreview{}, &ValidationError{Field: "preview data", Value: o.ID, Reason: err.Error()}
		}
		return clonePreview(o.PreviewData)
	}
	return types.ComponentPreview{}, &NotFoundError{Kind: "disambiguation option", ID: selectedID}
}

// CollapseDisambiguation resolves selectedID on msg and returns a copy of the
// message whose option set is reduced to the chosen option. A message can be
// resolved only once.
func CollapseDisambiguation(msg types.ChatMessage, selectedID string) (types.ChatMessage, types.ComponentPreview, error) {
	if msg.SelectedOption != "" {
		return msg, types.ComponentPreview{}, &ValidationError{
			Field:  "disambiguation",
			Value:  string(msg.ID),
			Reason: fmt.Sprintf("already resolved to %q", msg.SelectedOption),
		}
	}
	preview, err := ResolveDisambiguation(msg.Disambiguation, selectedID)
	if err != nil {
		return msg, types.ComponentPreview{}, err
	}
	out, err := cloneMessage(msg)
	if err != nil {
		return msg, types.ComponentPreview{}, err
	}
	for _, o := range out.Disambiguation {
		if o.ID == selectedID {
			out.Disambiguation = []types.DisambiguationOption{o}
			break
		}
	}
	out.SelectedOption = selectedID
	return out, preview, nil
}

func clonePreview(p types.ComponentPreview) (types.ComponentPreview, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return types.ComponentPreview{}, errors.Wrap(err, "copy preview")
	}
	var out types.ComponentPreview
	if err := json.Unmarshal(b, &out); err != nil {
		return types.ComponentPreview{}, errors.Wrap(err, "copy preview")
	}
	return out, nil
}
