package server

import (
	"context"
	"log"

	"github.com/hearthvtt/hearth/internal/game/dice"
	"github.com/hearthvtt/hearth/internal/game/rollmux"
	"github.com/hearthvtt/hearth/internal/game/state"
	apperrors "github.com/hearthvtt/hearth/internal/platform/errors"
	"github.com/hearthvtt/hearth/internal/table/protocol"
)

// SendRollPrompt routes one roll prompt to whoever owns it: the
// controlling player's peers, the GM peers for uncontrolled creatures,
// or the auto-roller when enabled. It implements rollmux.Sender.
func (r *tableRoom) SendRollPrompt(ctx context.Context, prompt rollmux.Prompt) error {
	snap := r.table.Snapshot()
	controller := ""
	if actor, ok := snap.Actor(prompt.ActorID); ok {
		controller = actor.ControllerID
	}

	if controller == "" && r.settings.autorollNPC {
		go r.autoroll(prompt)
		return nil
	}

	frame := protocol.Frame{
		Type:    protocol.TypeRollPrompt,
		Payload: mustJSON(promptPayload(prompt)),
	}
	for _, peer := range r.promptPeers(controller) {
		_ = peer.writeFrame(frame)
	}
	return nil
}

// promptPeers returns the peers a prompt for the given controller goes
// to. An empty controller means a GM-run creature.
func (r *tableRoom) promptPeers(controller string) []*wsPeer {
	r.mu.Lock()
	defer r.mu.Unlock()

	peers := make([]*wsPeer, 0, len(r.subscribers))
	for peer, member := range r.subscribers {
		if controller == "" {
			if member.role == RoleGM {
				peers = append(peers, peer)
			}
			continue
		}
		if member.participantID == controller {
			peers = append(peers, peer)
		}
	}
	return peers
}

// promptsFor replays the pending prompts a joining participant should
// see, so a reconnect can answer rolls sent while it was away.
func (r *tableRoom) promptsFor(snap state.Snapshot, participantID, role string) []protocol.RollPromptPayload {
	var prompts []protocol.RollPromptPayload
	for _, prompt := range r.rolls.Pending() {
		controller := ""
		if actor, ok := snap.Actor(prompt.ActorID); ok {
			controller = actor.ControllerID
		}
		switch {
		case controller != "" && controller == participantID:
		case controller == "" && role == RoleGM:
		default:
			continue
		}
		prompts = append(prompts, promptPayload(prompt))
	}
	return prompts
}

// autoroll resolves a GM-run creature's prompt from the room's seeded
// generator, flowing through the same resolution path a submitted roll
// takes.
func (r *tableRoom) autoroll(prompt rollmux.Prompt) {
	expr, err := dice.ParseExpression(prompt.Expression)
	if err != nil {
		log.Printf("table: autoroll parse %q: %v", prompt.Expression, err)
		return
	}

	r.autorollMu.Lock()
	result, err := dice.RollWithRNG(r.autorollRNG, expr.Groups)
	r.autorollMu.Unlock()
	if err != nil {
		log.Printf("table: autoroll %q: %v", prompt.Expression, err)
		return
	}

	if err := r.resolveRoll(nil, prompt.CorrelationID, rollGroups(result.Rolls)); err != nil {
		log.Printf("table: autoroll resolve %q: %v", prompt.CorrelationID, err)
	}
}

// resolveRoll validates and applies one roll submission, then broadcasts
// the server-computed result. A nil session skips the ownership check;
// the auto-roller uses that path.
func (r *tableRoom) resolveRoll(session *wsSession, correlationID string, groups []protocol.RollGroup) error {
	prompt, ok := r.pendingPrompt(correlationID)
	if !ok {
		return apperrors.WithMetadata(apperrors.CodeRollUnknownCorrelation, "no pending roll with that correlation id",
			map[string]string{"CorrelationID": correlationID})
	}

	if session != nil {
		participantID, role := session.identity()
		if role != RoleGM && !r.controlsActor(prompt.ActorID, participantID) {
			return apperrors.New(apperrors.CodeRoleForbidden, "that roll belongs to another participant")
		}
	}

	if rerr := validateRollGroups(groups); rerr != nil {
		return rerr
	}
	rolls := diceRolls(groups)
	if err := r.rolls.Resolve(correlationID, rolls); err != nil {
		return err
	}

	r.broadcastRollResult(prompt, rolls)
	return nil
}

// validateRollGroups checks a submission's structure before it reaches
// the correlation channel, mirroring the dice package's constraints for
// rolls arriving off the wire.
func validateRollGroups(groups []protocol.RollGroup) *apperrors.Error {
	if len(groups) == 0 {
		return apperrors.New(apperrors.CodeDiceMissing, "roll submission carries no dice")
	}
	for _, group := range groups {
		if group.Sides <= 0 || len(group.Results) == 0 {
			return apperrors.New(apperrors.CodeDiceInvalidSpec, "dice must have positive sides and at least one result")
		}
	}
	return nil
}

func (r *tableRoom) pendingPrompt(correlationID string) (rollmux.Prompt, bool) {
	for _, prompt := range r.rolls.Pending() {
		if prompt.CorrelationID == correlationID {
			return prompt, true
		}
	}
	return rollmux.Prompt{}, false
}

func (r *tableRoom) controlsActor(actorID, participantID string) bool {
	snap := r.table.Snapshot()
	actor, ok := snap.Actor(actorID)
	return ok && actor.Controlled(participantID)
}

// broadcastRollResult shows the resolved roll to the whole table with
// the total recomputed from the prompt's expression.
func (r *tableRoom) broadcastRollResult(prompt rollmux.Prompt, rolls []dice.Roll) {
	total := 0
	if expr, err := dice.ParseExpression(prompt.Expression); err == nil {
		total = expr.Modifier
	}
	for _, roll := range rolls {
		total += roll.Total
	}

	r.broadcast(protocol.Frame{
		Type: protocol.TypeRollResult,
		Payload: mustJSON(protocol.RollResultPayload{
			CorrelationID: prompt.CorrelationID,
			ActorID:       prompt.ActorID,
			Kind:          string(prompt.Kind),
			Expression:    prompt.Expression,
			Rolls:         rollGroups(rolls),
			Total:         total,
			Reason:        prompt.Reason,
		}),
	})
}

func promptPayload(prompt rollmux.Prompt) protocol.RollPromptPayload {
	return protocol.RollPromptPayload{
		CorrelationID: prompt.CorrelationID,
		ActorID:       prompt.ActorID,
		ActorName:     prompt.ActorName,
		TargetID:      prompt.TargetID,
		Kind:          string(prompt.Kind),
		Expression:    prompt.Expression,
		Reason:        prompt.Reason,
		Metadata:      prompt.Metadata,
	}
}

func diceRolls(groups []protocol.RollGroup) []dice.Roll {
	rolls := make([]dice.Roll, len(groups))
	for i, group := range groups {
		total := 0
		for _, result := range group.Results {
			total += result
		}
		rolls[i] = dice.Roll{
			Sides:   group.Sides,
			Results: append([]int(nil), group.Results...),
			Total:   total,
		}
	}
	return rolls
}

func rollGroups(rolls []dice.Roll) []protocol.RollGroup {
	groups := make([]protocol.RollGroup, len(rolls))
	for i, roll := range rolls {
		groups[i] = protocol.RollGroup{
			Sides:   roll.Sides,
			Results: append([]int(nil), roll.Results...),
		}
	}
	return groups
}
