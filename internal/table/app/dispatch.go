package server

import (
	"errors"
	"time"

	"github.com/hearthvtt/hearth/internal/game/engine"
	apperrors "github.com/hearthvtt/hearth/internal/platform/errors"
	"github.com/hearthvtt/hearth/internal/platform/id"
	"github.com/hearthvtt/hearth/internal/table/protocol"
)

// submitAction validates an action request and either queues it or parks
// it behind GM approval. The returned ack is written to the requester
// first; the start function, when non-nil, hands the accepted request to
// the pipeline afterwards so the ack always precedes result frames.
func (r *tableRoom) submitAction(session *wsSession, payload protocol.ActionRequestPayload, requestID string) (protocol.ActionAckPayload, func()) {
	ack := protocol.ActionAckPayload{
		Action:  payload.Action,
		ActorID: payload.ActorID,
	}

	participantID, role := session.identity()
	req := engine.Request{
		SessionID:      r.sessionID,
		Type:           payload.Action,
		ParticipantID:  participantID,
		GM:             role == RoleGM,
		ActorID:        payload.ActorID,
		ActorTokenID:   payload.ActorTokenID,
		TargetTokenIDs: payload.TargetTokenIDs,
		Payload:        payload.Payload,
		RequestID:      requestID,
	}

	verdict := r.runner.Validate(req)
	if !verdict.Accepted() {
		ack.Status = protocol.AckRejected
		ack.Rejections = rejectionPayloads(verdict.Rejections)
		return ack, nil
	}
	ack.Costs = costPayloads(verdict.Costs)

	actionID, err := id.NewID()
	if err != nil {
		ack.Status = protocol.AckRejected
		ack.Rejections = rejectionsFromError(apperrors.Wrap(apperrors.CodeUnknown, "assign action id", err))
		return ack, nil
	}
	ack.ActionID = actionID

	if r.settings.autoApprove || req.GM {
		ack.Status = protocol.AckAccepted
		return ack, func() {
			if err := r.enqueue(actionID, req); err != nil {
				r.broadcastActionRejected(actionID, req, err)
			}
		}
	}

	message, _ := r.runner.ApprovalMessage(req)
	approval := &pendingApproval{
		actionID: actionID,
		req:      req,
		message:  message,
	}
	approval.timer = time.AfterFunc(r.settings.approvalTimeout, func() {
		r.expireApproval(actionID)
	})

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		approval.timer.Stop()
		ack.Status = protocol.AckRejected
		ack.Rejections = rejectionsFromError(apperrors.New(apperrors.CodeSessionClosed, "table session has ended"))
		return ack, nil
	}
	r.approvals[actionID] = approval
	r.mu.Unlock()

	ack.Status = protocol.AckPendingApproval
	return ack, func() {
		r.broadcastToGM(protocol.Frame{
			Type:    protocol.TypeApprovalRequest,
			Payload: mustJSON(approvalPayload(approval)),
		})
	}
}

// decideAction resolves one parked approval. Approval hands the request
// to the engine queue; denial broadcasts a rejected result immediately.
func (r *tableRoom) decideAction(actionID string, approved bool) error {
	r.mu.Lock()
	approval, ok := r.approvals[actionID]
	if ok {
		delete(r.approvals, actionID)
	}
	r.mu.Unlock()

	if !ok {
		return apperrors.WithMetadata(apperrors.CodeNotFound, "no pending approval for that action",
			map[string]string{"ActionID": actionID})
	}
	approval.timer.Stop()

	if !approved {
		r.broadcastActionRejected(actionID, approval.req,
			apperrors.New(apperrors.CodeApprovalDenied, "the GM denied the action"))
		return nil
	}

	if err := r.enqueue(actionID, approval.req); err != nil {
		r.broadcastActionRejected(actionID, approval.req, err)
	}
	return nil
}

// expireApproval fires from the approval timer: the parked request is
// dropped and the table told the GM never decided.
func (r *tableRoom) expireApproval(actionID string) {
	r.mu.Lock()
	approval, ok := r.approvals[actionID]
	if ok {
		delete(r.approvals, actionID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	r.broadcastActionRejected(actionID, approval.req,
		apperrors.New(apperrors.CodeApprovalTimeout, "the GM did not decide in time"))
}

func (r *tableRoom) enqueue(actionID string, req engine.Request) error {
	return r.runner.Enqueue(req, func(result engine.Result) {
		r.report(actionID, result)
	})
}

// report receives the final engine result for one action and broadcasts
// it, plus a state update and a persistence pass when the action
// committed changes.
func (r *tableRoom) report(actionID string, result engine.Result) {
	payload := protocol.ActionResultPayload{
		ActionID: actionID,
		Action:   result.Request.Type,
		ActorID:  result.Request.ActorID,
	}
	switch {
	case !result.Verdict.Accepted():
		payload.Status = protocol.ResultRejected
		payload.Rejections = rejectionPayloads(result.Verdict.Rejections)
	case result.Err != nil:
		payload.Status = protocol.ResultFailed
		payload.Error = result.Err.Error()
	default:
		payload.Status = protocol.ResultCompleted
	}

	r.broadcast(protocol.Frame{
		Type:      protocol.TypeActionResult,
		RequestID: result.Request.RequestID,
		Payload:   mustJSON(payload),
	})

	if len(result.Changes.Actors) == 0 {
		return
	}
	update := protocol.StateUpdatePayload{
		Revision: result.Changes.Revision,
		Actors:   make([]protocol.ActorState, 0, len(result.Changes.Actors)),
	}
	for _, actor := range result.Changes.Actors {
		update.Actors = append(update.Actors, actorState(actor))
	}
	r.broadcast(protocol.Frame{
		Type:    protocol.TypeStateUpdate,
		Payload: mustJSON(update),
	})
	r.persist <- result.Changes
}

func (r *tableRoom) broadcastActionRejected(actionID string, req engine.Request, cause error) {
	r.broadcast(protocol.Frame{
		Type:      protocol.TypeActionResult,
		RequestID: req.RequestID,
		Payload: mustJSON(protocol.ActionResultPayload{
			ActionID:   actionID,
			Action:     req.Type,
			ActorID:    req.ActorID,
			Status:     protocol.ResultRejected,
			Rejections: rejectionsFromError(cause),
		}),
	})
}

func approvalPayload(approval *pendingApproval) protocol.ApprovalRequestPayload {
	return protocol.ApprovalRequestPayload{
		ActionID:      approval.actionID,
		Action:        approval.req.Type,
		ActorID:       approval.req.ActorID,
		ParticipantID: approval.req.ParticipantID,
		Message:       approval.message,
	}
}

func costPayloads(costs []engine.ResourceCost) []protocol.ResourceCost {
	if len(costs) == 0 {
		return nil
	}
	payloads := make([]protocol.ResourceCost, len(costs))
	for i, cost := range costs {
		payloads[i] = protocol.ResourceCost{
			Path:   cost.Path,
			Amount: cost.Amount,
			Store:  string(cost.Store),
		}
	}
	return payloads
}

func rejectionsFromError(err error) []protocol.Rejection {
	code := apperrors.CodeOf(err)
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return []protocol.Rejection{{
			Code:     string(code),
			Message:  appErr.Message,
			Metadata: appErr.Metadata,
		}}
	}
	return []protocol.Rejection{{
		Code:    string(code),
		Message: err.Error(),
	}}
}
