// Package protocol defines the websocket wire contract for the table
// service: the frame envelope and every payload the server reads or
// writes. The structs here are the source of truth clients build
// against; schemagen reflects this package into a JSON schema.
package protocol

import "encoding/json"

// Frame is the envelope around every websocket message in both
// directions. RequestID echoes back on acks and errors so clients can
// pair responses with their submissions.
type Frame struct {
	Type      string          `json:"type" jsonschema:"description=Frame type selecting the payload shape"`
	RequestID string          `json:"request_id,omitempty" jsonschema:"description=Client-chosen id echoed on acks and errors"`
	Payload   json.RawMessage `json:"payload,omitempty" jsonschema:"description=Type-specific payload"`
}

// Frame types the server accepts.
const (
	TypeJoin             = "table.join"
	TypeActionRequest    = "action.request"
	TypeApprovalDecision = "action.decision"
	TypeRollReply        = "roll.reply"
	TypeChatSend         = "chat.send"
	TypeEncounterStart   = "encounter.start"
	TypeEncounterEnd     = "encounter.end"
	TypeTurnNext         = "turn.next"
	TypeSessionEnd       = "session.end"
)

// Frame types the server emits.
const (
	TypeJoined           = "table.joined"
	TypeError            = "table.error"
	TypeActionAck        = "action.ack"
	TypeActionResult     = "action.result"
	TypeApprovalRequest  = "action.approval"
	TypeRollPrompt       = "roll.prompt"
	TypeRollResult       = "roll.result"
	TypeChatMessage      = "chat.message"
	TypeChatAck          = "chat.ack"
	TypeEncounterStarted = "encounter.started"
	TypeEncounterEnded   = "encounter.ended"
	TypeTurnChanged      = "turn.changed"
	TypeSessionEnded     = "session.ended"
	TypeStateUpdate      = "state.update"
)

// JoinPayload opens a connection's table membership. The token is the
// signed join grant issued out of band; its claims must name this
// campaign.
type JoinPayload struct {
	CampaignID string `json:"campaign_id" jsonschema:"description=Campaign the connection wants to join,required"`
	Token      string `json:"token" jsonschema:"description=Signed join grant for this campaign,required"`
}

// JoinedPayload confirms a join and orients the client.
type JoinedPayload struct {
	CampaignID    string `json:"campaign_id"`
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
	Role          string `json:"role" jsonschema:"description=gm or player"`
	Revision      uint64 `json:"revision" jsonschema:"description=Table state revision at join time"`
	ServerTime    string `json:"server_time"`
}

// ErrorPayload wraps every error frame.
type ErrorPayload struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the coarse wire category plus the domain code and
// metadata that produced it.
type ErrorDetail struct {
	Category  string            `json:"category" jsonschema:"description=Coarse category clients branch on"`
	Code      string            `json:"code,omitempty" jsonschema:"description=Stable domain code"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable"`
	Details   map[string]string `json:"details,omitempty"`
}

// ActionRequestPayload submits one action for validation and execution.
// Payload carries the action-specific parameters, opaque to the
// transport.
type ActionRequestPayload struct {
	Action         string          `json:"action" jsonschema:"description=Registered action type such as spell.cast,required"`
	ActorID        string          `json:"actor_id" jsonschema:"required"`
	ActorTokenID   string          `json:"actor_token_id,omitempty" jsonschema:"description=Board token the actor acts through"`
	TargetTokenIDs []string        `json:"target_token_ids,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty" jsonschema:"description=Action-specific parameters"`
}

// Rejection is one structured validation failure.
type Rejection struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ResourceCost is one resource an accepted action will spend during
// execution. Advisory: clients show it on the confirmation prompt.
type ResourceCost struct {
	Path   string `json:"path" jsonschema:"description=resource location, e.g. slots.2 or economy.action"`
	Amount int    `json:"amount"`
	Store  string `json:"store" jsonschema:"description=sheet / ledger"`
}

// ActionAckPayload answers an action.request immediately: accepted into
// the queue (possibly pending GM approval) or rejected with every
// failure found. The action id identifies this submission on every
// later approval and result frame.
type ActionAckPayload struct {
	ActionID   string         `json:"action_id,omitempty"`
	Status     string         `json:"status" jsonschema:"description=accepted / pending_approval / rejected"`
	Action     string         `json:"action"`
	ActorID    string         `json:"actor_id"`
	Costs      []ResourceCost `json:"costs,omitempty"`
	Rejections []Rejection    `json:"rejections,omitempty"`
}

// Ack statuses.
const (
	AckAccepted        = "accepted"
	AckPendingApproval = "pending_approval"
	AckRejected        = "rejected"
)

// ActionResultPayload broadcasts how an executed action ended. A
// request rejected at dequeue reports its rejections here; an execution
// fault reports the error.
type ActionResultPayload struct {
	ActionID   string      `json:"action_id"`
	Action     string      `json:"action"`
	ActorID    string      `json:"actor_id"`
	Status     string      `json:"status" jsonschema:"description=completed / rejected / failed"`
	Rejections []Rejection `json:"rejections,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Result statuses.
const (
	ResultCompleted = "completed"
	ResultRejected  = "rejected"
	ResultFailed    = "failed"
)

// ApprovalRequestPayload asks the GM to allow or deny a queued action.
type ApprovalRequestPayload struct {
	ActionID      string `json:"action_id"`
	Action        string `json:"action"`
	ActorID       string `json:"actor_id"`
	ParticipantID string `json:"participant_id"`
	Message       string `json:"message" jsonschema:"description=Human line describing what the player wants to do"`
}

// ApprovalDecisionPayload is the GM's answer to an approval request.
type ApprovalDecisionPayload struct {
	ActionID string `json:"action_id" jsonschema:"required"`
	Approved bool   `json:"approved"`
}

// RollPromptPayload asks a client to roll dice. The correlation id must
// come back unchanged on the reply; metadata carries display-only
// context such as the bonus breakdown or the save DC.
type RollPromptPayload struct {
	CorrelationID string            `json:"correlation_id"`
	ActorID       string            `json:"actor_id"`
	ActorName     string            `json:"actor_name,omitempty"`
	TargetID      string            `json:"target_id,omitempty"`
	Kind          string            `json:"kind" jsonschema:"description=attack / save / damage"`
	Expression    string            `json:"expression" jsonschema:"description=Dice expression to roll such as 1d20+5"`
	Reason        string            `json:"reason,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// RollGroup is the submitted result of one dice group, die by die. The
// server recomputes every total; submitted sums are ignored.
type RollGroup struct {
	Sides   int   `json:"sides" jsonschema:"required"`
	Results []int `json:"results" jsonschema:"required"`
}

// RollReplyPayload answers a roll prompt.
type RollReplyPayload struct {
	CorrelationID string      `json:"correlation_id" jsonschema:"required"`
	Rolls         []RollGroup `json:"rolls" jsonschema:"required"`
}

// RollResultPayload broadcasts a resolved roll so every client can show
// the dice as they landed.
type RollResultPayload struct {
	CorrelationID string      `json:"correlation_id"`
	ActorID       string      `json:"actor_id"`
	Kind          string      `json:"kind"`
	Expression    string      `json:"expression"`
	Rolls         []RollGroup `json:"rolls"`
	Total         int         `json:"total"`
	Reason        string      `json:"reason,omitempty"`
}

// ChatSendPayload posts a table chat line. Resubmitting the same client
// message id returns the original message instead of duplicating it.
type ChatSendPayload struct {
	ClientMessageID string `json:"client_message_id" jsonschema:"required"`
	Body            string `json:"body" jsonschema:"required"`
}

// ChatMessagePayload wraps a broadcast chat message.
type ChatMessagePayload struct {
	Message ChatMessage `json:"message"`
}

// ChatMessage is one line in the table log: a participant's text or a
// system line the engine rendered from an action event.
type ChatMessage struct {
	MessageID       string    `json:"message_id"`
	SessionID       string    `json:"session_id"`
	SequenceID      int64     `json:"sequence_id"`
	SentAt          string    `json:"sent_at"`
	Kind            string    `json:"kind" jsonschema:"description=text or system"`
	Actor           ChatActor `json:"actor"`
	Body            string    `json:"body"`
	ClientMessageID string    `json:"client_message_id,omitempty"`
}

// ChatActor identifies who a chat message speaks for.
type ChatActor struct {
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
}

// ChatAckPayload confirms a chat.send.
type ChatAckPayload struct {
	Result ChatAckResult `json:"result"`
}

// ChatAckResult carries the stored message identity.
type ChatAckResult struct {
	Status     string `json:"status"`
	MessageID  string `json:"message_id,omitempty"`
	SequenceID int64  `json:"sequence_id,omitempty"`
}

// EncounterStartPayload opens an encounter with a GM-supplied turn
// order. Initiative is rolled at the table, not here; the order arrives
// already decided.
type EncounterStartPayload struct {
	Order []string `json:"order" jsonschema:"description=Actor ids in turn order,required"`
}

// EncounterStartedPayload broadcasts the opened encounter.
type EncounterStartedPayload struct {
	Round       int      `json:"round"`
	ActiveActor string   `json:"active_actor,omitempty"`
	Order       []string `json:"order"`
}

// TurnChangedPayload broadcasts a turn boundary. Every actor's action
// economy is reset when this fires.
type TurnChangedPayload struct {
	Round        int    `json:"round"`
	Turn         int    `json:"turn"`
	ActiveActor  string `json:"active_actor,omitempty"`
	EconomyReset bool   `json:"economy_reset"`
}

// SessionEndedPayload broadcasts that the GM closed the session.
type SessionEndedPayload struct {
	SessionID string `json:"session_id"`
}

// StateUpdatePayload broadcasts the actors an action changed, one entry
// per changed actor per commit.
type StateUpdatePayload struct {
	Revision uint64       `json:"revision"`
	Actors   []ActorState `json:"actors"`
}

// ActorState is the board-visible slice of one actor.
type ActorState struct {
	ActorID    string   `json:"actor_id"`
	Name       string   `json:"name"`
	HP         int      `json:"hp"`
	MaxHP      int      `json:"max_hp"`
	AC         int      `json:"ac"`
	Conditions []string `json:"conditions,omitempty"`
}
