// Package server hosts the table websocket gateway: it authenticates
// joins, keeps one live room per campaign, and bridges frames to the
// action engine. The gateway owns transport concerns only; rules live
// in the game packages and documents in the table store.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/net/websocket"

	apperrors "github.com/hearthvtt/hearth/internal/platform/errors"
	"github.com/hearthvtt/hearth/internal/platform/timeouts"
	"github.com/hearthvtt/hearth/internal/table/protocol"
	"github.com/hearthvtt/hearth/internal/table/storage"
)

const (
	maxFramePayloadBytes   = 16 * 1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3

	maxMessageBodyRunes     = 2000
	maxClientMessageIDRunes = 128

	maxRoomMessages      = 1000
	maxIdempotencyRecord = 4000
	chatReplayLimit      = 50

	persistQueueCapacity = 32
)

// Config defines the inputs for the table transport boundary.
type Config struct {
	HTTPAddr          string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration

	// Stores supplies campaign documents; rooms load from it on first
	// join and persist changed actors after every commit.
	Stores storage.Stores
	// Grant verifies the signed join tokens clients present.
	Grant JoinGrantConfig

	// RollTimeout caps how long an executing action waits for one
	// remote roll. ApprovalTimeout caps how long a submitted action
	// waits for the GM.
	RollTimeout     time.Duration
	ApprovalTimeout time.Duration
	// AutoApprove skips the GM approval step for player actions.
	AutoApprove bool
	// AutorollNPC resolves prompts for GM-run creatures from the
	// seeded auto-roller instead of prompting GM peers.
	AutorollNPC  bool
	AutorollSeed int64
}

// Server hosts the table HTTP/WebSocket process.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	hub             *roomHub
}

type wsSession struct {
	mu            sync.Mutex
	peer          *wsPeer
	room          *tableRoom
	participantID string
	role          string
}

func newWSSession(peer *wsPeer) *wsSession {
	return &wsSession{peer: peer}
}

func (s *wsSession) setRoom(next *tableRoom, participantID, role string) *tableRoom {
	s.mu.Lock()
	previous := s.room
	s.room = next
	s.participantID = participantID
	s.role = role
	s.mu.Unlock()
	return previous
}

func (s *wsSession) currentRoom() *tableRoom {
	s.mu.Lock()
	room := s.room
	s.mu.Unlock()
	return room
}

// clearRoomIf drops the session's room reference if it still points at
// the given room. Room teardown uses it so a session that already moved
// elsewhere is left alone.
func (s *wsSession) clearRoomIf(room *tableRoom) {
	s.mu.Lock()
	if s.room == room {
		s.room = nil
	}
	s.mu.Unlock()
}

func (s *wsSession) identity() (participantID string, role string) {
	s.mu.Lock()
	participantID = s.participantID
	role = s.role
	s.mu.Unlock()
	return participantID, role
}

type wsPeer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func newWSPeer(encoder *json.Encoder) *wsPeer {
	return &wsPeer{encoder: encoder}
}

func (p *wsPeer) writeFrame(frame protocol.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

// NewHandler creates table routes backed by the given configuration.
// Tests drive it directly through httptest.
func NewHandler(ctx context.Context, config Config) (http.Handler, error) {
	hub, err := newRoomHub(ctx, config)
	if err != nil {
		return nil, err
	}
	return newHandler(hub), nil
}

func newHandler(hub *roomHub) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		handleWSConn(conn, hub)
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})

	return mux
}

func handleWSConn(conn *websocket.Conn, hub *roomHub) {
	defer func() {
		_ = conn.Close()
	}()

	decoder := json.NewDecoder(conn)
	peer := newWSPeer(json.NewEncoder(conn))
	session := newWSSession(peer)
	defer func() {
		if room := session.currentRoom(); room != nil {
			room.leave(session.peer)
		}
	}()

	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame protocol.Frame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = writeWSError(session.peer, "", apperrors.WireInvalidArgument, "invalid frame payload")
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = writeWSError(session.peer, frame.RequestID, apperrors.WireInvalidArgument, "payload too large")
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = writeWSError(session.peer, frame.RequestID, apperrors.WireResourceExhausted, "rate limit exceeded")
			return
		}

		switch frame.Type {
		case protocol.TypeJoin:
			handleJoinFrame(session, hub, frame)
		case protocol.TypeActionRequest:
			handleActionRequestFrame(session, frame)
		case protocol.TypeApprovalDecision:
			handleApprovalDecisionFrame(session, frame)
		case protocol.TypeRollReply:
			handleRollReplyFrame(session, frame)
		case protocol.TypeChatSend:
			handleChatSendFrame(session, frame)
		case protocol.TypeEncounterStart:
			handleEncounterStartFrame(session, frame)
		case protocol.TypeEncounterEnd:
			handleEncounterEndFrame(session, frame)
		case protocol.TypeTurnNext:
			handleTurnNextFrame(session, frame)
		case protocol.TypeSessionEnd:
			handleSessionEndFrame(session, hub, frame)
		default:
			_ = writeWSError(session.peer, frame.RequestID, apperrors.WireInvalidArgument, "unsupported frame type")
		}
	}
}

func handleJoinFrame(session *wsSession, hub *roomHub, frame protocol.Frame) {
	var payload protocol.JoinPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(session.peer, frame.RequestID, apperrors.WireInvalidArgument, "invalid join payload")
		return
	}

	campaignID := strings.TrimSpace(payload.CampaignID)
	if campaignID == "" {
		_ = writeWSError(session.peer, frame.RequestID, apperrors.WireInvalidArgument, "campaign_id is required")
		return
	}

	claims, err := VerifyJoinGrant(payload.Token, campaignID, hub.grant)
	if err != nil {
		_ = writeAppError(session.peer, frame.RequestID, err)
		return
	}

	room, err := hub.room(campaignID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			_ = writeAppError(session.peer, frame.RequestID, err)
			return
		}
		log.Printf("table: open room for campaign %q: %v", campaignID, err)
		_ = writeWSError(session.peer, frame.RequestID, apperrors.WireUnavailable, "campaign could not be loaded")
		return
	}

	welcome, err := room.join(session, claims.ParticipantID, claims.Role)
	if err != nil {
		_ = writeAppError(session.peer, frame.RequestID, err)
		return
	}
	previous := session.setRoom(room, claims.ParticipantID, claims.Role)
	if previous != nil && previous != room {
		previous.leave(session.peer)
	}

	_ = session.peer.writeFrame(protocol.Frame{
		Type:      protocol.TypeJoined,
		RequestID: frame.RequestID,
		Payload: mustJSON(protocol.JoinedPayload{
			CampaignID:    campaignID,
			SessionID:     room.sessionID,
			ParticipantID: claims.ParticipantID,
			Role:          claims.Role,
			Revision:      welcome.revision,
			ServerTime:    time.Now().UTC().Format(time.RFC3339),
		}),
	})
	_ = session.peer.writeFrame(protocol.Frame{
		Type:    protocol.TypeStateUpdate,
		Payload: mustJSON(welcome.state),
	})
	for _, msg := range welcome.chat {
		_ = session.peer.writeFrame(protocol.Frame{
			Type:    protocol.TypeChatMessage,
			Payload: mustJSON(protocol.ChatMessagePayload{Message: msg}),
		})
	}
	for _, prompt := range welcome.prompts {
		_ = session.peer.writeFrame(protocol.Frame{
			Type:    protocol.TypeRollPrompt,
			Payload: mustJSON(prompt),
		})
	}
	for _, approval := range welcome.approvals {
		_ = session.peer.writeFrame(protocol.Frame{
			Type:    protocol.TypeApprovalRequest,
			Payload: mustJSON(approval),
		})
	}
}

func handleActionRequestFrame(session *wsSession, frame protocol.Frame) {
	room := session.currentRoom()
	if room == nil {
		_ = writeWSError(session.peer, frame.RequestID, apperrors.WireForbidden, "join a table before acting")
		return
	}

	var payload protocol.ActionRequestPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(session.peer, frame.RequestID, apperrors.WireInvalidArgument, "invalid action payload")
		return
	}
	if strings.TrimSpace(payload.Action) == "" {
		_ = writeWSError(session.peer, frame.RequestID, apperrors.WireInvalidArgument, "action is required")
		return
	}
	if strings.TrimSpace(payload.ActorID) == "" {
		_ = writeWSError(session.peer, frame.RequestID, apperrors.WireInvalidArgument, "actor_id is required")
		return
	}

	ack, start := room.submitAction(session, payload, frame.RequestID)
	_ = session.peer.writeFrame(protocol.Frame{
		Type:      protocol.TypeActionAck,
		RequestID: frame.RequestID,
		Payload:   mustJSON(ack),
	})
	if start != nil {
		start()
	}
}

func handleApprovalDecisionFrame(session *wsSession, frame protocol.Frame) {
	room, ok := requireGM(session, frame)
	if !ok {
		return
	}

	var payload protocol.ApprovalDecisionPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(session.peer, frame.RequestID, apperrors.WireInvalidArgument, "invalid decision payload")
		return
	}
	if strings.TrimSpace(payload.ActionID) == "" {
		_ = writeWSError(session.peer, frame.RequestID, apperrors.WireInvalidArgument, "action_id is required")
		return
	}

	if err := room.decideAction(payload.ActionID, payload.Approved); err != nil {
		_ = writeAppError(session.peer, frame.RequestID, err)
	}
}

func handleRollReplyFrame(session *wsSession, frame protocol.Frame) {
	room := session.currentRoom()
	if room == nil {
		_ = writeWSError(session.peer, frame.RequestID, apperrors.WireForbidden, "join a table before rolling")
		return
	}

	var payload protocol.RollReplyPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(session.peer, frame.RequestID, apperrors.WireInvalidArgument, "invalid roll payload")
		return
	}
	if strings.TrimSpace(payload.CorrelationID) == "" {
		_ = writeWSError(session.peer, frame.RequestID, apperrors.WireInvalidArgument, "correlation_id is required")
		return
	}
	if len(payload.Rolls) == 0 {
		_ = writeWSError(session.peer, frame.RequestID, apperrors.WireInvalidArgument, "rolls are required")
		return
	}

	if err := room.resolveRoll(session, payload.CorrelationID, payload.Rolls); err != nil {
		_ = writeAppError(session.peer, frame.RequestID, err)
	}
}

func handleChatSendFrame(session *wsSession, frame protocol.Frame) {
	room := session.currentRoom()
	if room == nil {
		_ = writeWSError(session.peer, frame.RequestID, apperrors.WireForbidden, "join a table before sending")
		return
	}

	var payload protocol.ChatSendPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(session.peer, frame.RequestID, apperrors.WireInvalidArgument, "invalid send payload")
		return
	}

	clientMessageID := strings.TrimSpace(payload.ClientMessageID)
	if clientMessageID == "" {
		_ = writeWSError(session.peer, frame.RequestID, apperrors.WireInvalidArgument, "client_message_id is required")
		return
	}
	if utf8.RuneCountInString(clientMessageID) > maxClientMessageIDRunes {
		_ = writeWSError(session.peer, frame.RequestID, apperrors.WireInvalidArgument, "client_message_id must be at most 128 characters")
		return
	}

	body := strings.TrimSpace(payload.Body)
	if body == "" {
		_ = writeWSError(session.peer, frame.RequestID, apperrors.WireInvalidArgument, "body is required")
		return
	}
	if utf8.RuneCountInString(body) > maxMessageBodyRunes {
		_ = writeWSError(session.peer, frame.RequestID, apperrors.WireInvalidArgument, "body must be at most 2000 characters")
		return
	}

	participantID, _ := session.identity()
	msg, duplicate, subscribers := room.appendChat(participantID, body, clientMessageID)

	_ = session.peer.writeFrame(protocol.Frame{
		Type:      protocol.TypeChatAck,
		RequestID: frame.RequestID,
		Payload: mustJSON(protocol.ChatAckPayload{
			Result: protocol.ChatAckResult{
				Status:     "ok",
				MessageID:  msg.MessageID,
				SequenceID: msg.SequenceID,
			},
		}),
	})

	if duplicate {
		return
	}

	messageFrame := protocol.Frame{
		Type:    protocol.TypeChatMessage,
		Payload: mustJSON(protocol.ChatMessagePayload{Message: msg}),
	}
	for _, subscriber := range subscribers {
		_ = subscriber.writeFrame(messageFrame)
	}
}

func handleEncounterStartFrame(session *wsSession, frame protocol.Frame) {
	room, ok := requireGM(session, frame)
	if !ok {
		return
	}

	var payload protocol.EncounterStartPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(session.peer, frame.RequestID, apperrors.WireInvalidArgument, "invalid encounter payload")
		return
	}
	if len(payload.Order) == 0 {
		_ = writeWSError(session.peer, frame.RequestID, apperrors.WireInvalidArgument, "order is required")
		return
	}

	if err := room.startEncounter(payload.Order); err != nil {
		_ = writeAppError(session.peer, frame.RequestID, err)
	}
}

func handleEncounterEndFrame(session *wsSession, frame protocol.Frame) {
	room, ok := requireGM(session, frame)
	if !ok {
		return
	}
	if err := room.endEncounter(); err != nil {
		_ = writeAppError(session.peer, frame.RequestID, err)
	}
}

func handleTurnNextFrame(session *wsSession, frame protocol.Frame) {
	room, ok := requireGM(session, frame)
	if !ok {
		return
	}
	if err := room.nextTurn(); err != nil {
		_ = writeAppError(session.peer, frame.RequestID, err)
	}
}

func handleSessionEndFrame(session *wsSession, hub *roomHub, frame protocol.Frame) {
	room, ok := requireGM(session, frame)
	if !ok {
		return
	}
	hub.drop(room.campaignID)
	room.close()
}

// requireGM resolves the session's room and checks the GM role, writing
// the error frame itself when either fails.
func requireGM(session *wsSession, frame protocol.Frame) (*tableRoom, bool) {
	room := session.currentRoom()
	if room == nil {
		_ = writeWSError(session.peer, frame.RequestID, apperrors.WireForbidden, "join a table first")
		return nil, false
	}
	if _, role := session.identity(); role != RoleGM {
		_ = writeAppError(session.peer, frame.RequestID, apperrors.New(apperrors.CodeRoleForbidden, "only the GM can do that"))
		return nil, false
	}
	return room, true
}

// writeWSError writes a transport-level error frame with the coarse
// category only.
func writeWSError(peer *wsPeer, requestID string, category apperrors.WireCategory, message string) error {
	return peer.writeFrame(protocol.Frame{
		Type:      protocol.TypeError,
		RequestID: requestID,
		Payload: mustJSON(protocol.ErrorPayload{
			Error: protocol.ErrorDetail{
				Category:  string(category),
				Message:   message,
				Retryable: false,
			},
		}),
	})
}

// writeAppError writes an error frame for a domain error, carrying the
// stable code and metadata alongside the wire category.
func writeAppError(peer *wsPeer, requestID string, err error) error {
	return peer.writeFrame(protocol.Frame{
		Type:      protocol.TypeError,
		RequestID: requestID,
		Payload:   mustJSON(protocol.ErrorPayload{Error: errorDetail(err)}),
	})
}

func errorDetail(err error) protocol.ErrorDetail {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return protocol.ErrorDetail{
			Category:  string(appErr.Code.Wire()),
			Code:      string(appErr.Code),
			Message:   appErr.Message,
			Retryable: false,
			Details:   appErr.Metadata,
		}
	}
	return protocol.ErrorDetail{
		Category:  string(apperrors.WireInternal),
		Message:   err.Error(),
		Retryable: false,
	}
}

func rejectionPayloads(rejections []*apperrors.Error) []protocol.Rejection {
	if len(rejections) == 0 {
		return nil
	}
	out := make([]protocol.Rejection, len(rejections))
	for i, rejection := range rejections {
		out[i] = protocol.Rejection{
			Code:     string(rejection.Code),
			Message:  rejection.Message,
			Metadata: rejection.Metadata,
		}
	}
	return out
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("failed to marshal websocket frame payload: %v", err)
		return nil
	}
	return b
}

// NewServer builds a configured table server.
func NewServer(config Config) (*Server, error) {
	return NewServerWithContext(context.Background(), config)
}

// NewServerWithContext builds a configured table server with an explicit
// context. Rooms and their engine sessions live under this context.
func NewServerWithContext(ctx context.Context, config Config) (*Server, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}

	hub, err := newRoomHub(ctx, config)
	if err != nil {
		return nil, err
	}

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           newHandler(hub),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	return &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		httpServer:      httpServer,
		hub:             hub,
	}, nil
}

// Run creates and serves a table server until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServerWithContext(ctx, config)
	if err != nil {
		return fmt.Errorf("init table server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve table: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("table server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("table server listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close tears down every live room and its engine session.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.hub != nil {
		s.hub.closeAll()
	}
}
