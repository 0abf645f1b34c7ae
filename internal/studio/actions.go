package studio

import (
	"context"
	"strings"

	"github.com/user/composablestudio/internal/compose"
	"github.com/user/composablestudio/internal/dispatch"
	"github.com/user/composablestudio/internal/types"
)

// Command prefixes the service handles. The part after the prefix is the
// argument, e.g. "advance:hero-created" or "disambiguate:opt-2".
const (
	CommandAdvance      = "advance:"
	CommandDisambiguate = "disambiguate:"
	CommandView         = "view:"
	CommandReply        = "reply:"
	CommandReset        = "reset"
)

// PrepareInvocation looks up actionID on a message, records the click in
// the audit log, and returns the invocation to dispatch. Input actions need
// a non-empty input.
func (s *Service) PrepareInvocation(ctx context.Context, id types.CompositionID, messageID types.MessageID, actionID, input string) (dispatch.Invocation, error) {
	var inv dispatch.Invocation
	_, err := s.mutate(ctx, "invoke_action", id, func(_ context.Context, sess *types.Session, _ *undoLog) ([]types.ConversationHistory, error) {
		msg, err := compose.FindMessage(sess.Compose, messageID)
		if err != nil {
			return nil, err
		}
		var action *types.MessageAction
		for i := range msg.Actions {
			if msg.Actions[i].ID == actionID {
				action = &msg.Actions[i]
				break
			}
		}
		if action == nil {
			return nil, &compose.NotFoundError{Kind: "action", ID: actionID}
		}
		if action.Kind == types.ActionInput && strings.TrimSpace(input) == "" {
			return nil, &compose.ValidationError{Field: "input", Value: actionID, Reason: "input actions need a value"}
		}

		inv = dispatch.Invocation{
			CompositionID: id,
			MessageID:     messageID,
			Action:        *action,
			Input:         input,
		}
		return []types.ConversationHistory{{
			Action:      types.HistoryActionInvoked,
			Description: action.Label,
			Details: map[string]any{
				"message_id": string(messageID),
				"action_id":  action.ID,
				"command":    action.Command,
			},
		}}, nil
	})
	if err != nil {
		return dispatch.Invocation{}, err
	}
	return inv, nil
}

// RegisterHandlers binds the service operations to their command prefixes.
func (s *Service) RegisterHandlers(reg *dispatch.Registry) {
	reg.Register(CommandAdvance, func(ctx context.Context, inv dispatch.Invocation, arg string) error {
		_, err := s.Advance(ctx, inv.CompositionID, types.Step(arg))
		return err
	})
	reg.Register(CommandDisambiguate, func(ctx context.Context, inv dispatch.Invocation, arg string) error {
		_, err := s.ResolveDisambiguation(ctx, inv.CompositionID, inv.MessageID, arg)
		return err
	})
	reg.Register(CommandView, func(ctx context.Context, inv dispatch.Invocation, arg string) error {
		_, err := s.SetView(ctx, inv.CompositionID, types.View(arg))
		return err
	})
	reg.Register(CommandReset, func(ctx context.Context, inv dispatch.Invocation, _ string) error {
		_, err := s.Reset(ctx, inv.CompositionID)
		return err
	})
	reg.Register(CommandReply, func(ctx context.Context, inv dispatch.Invocation, arg string) error {
		content := inv.Input
		if content == "" {
			content = arg
		}
		msg := compose.NewMessage(types.RoleUser, content)
		_, err := s.SendMessage(ctx, inv.CompositionID, msg)
		return err
	})
}
