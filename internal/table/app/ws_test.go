package server

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/net/websocket"

	"github.com/hearthvtt/hearth/internal/game/dnd5e"
	"github.com/hearthvtt/hearth/internal/table/storage"
	"github.com/hearthvtt/hearth/internal/table/storage/sqlite"
)

const (
	testCampaignID = "camp-1"
	testIssuer     = "hearth-auth"
	testAudience   = "hearth-table"
)

type wsTestFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type wsTestChatAck struct {
	Result struct {
		Status     string `json:"status"`
		MessageID  string `json:"message_id"`
		SequenceID int64  `json:"sequence_id"`
	} `json:"result"`
}

type wsTestChatMessage struct {
	Message struct {
		MessageID  string `json:"message_id"`
		SequenceID int64  `json:"sequence_id"`
		Kind       string `json:"kind"`
		Body       string `json:"body"`
		Actor      struct {
			ParticipantID string `json:"participant_id"`
			Name          string `json:"name"`
		} `json:"actor"`
	} `json:"message"`
}

type wsTestActionAck struct {
	ActionID   string `json:"action_id"`
	Status     string `json:"status"`
	Action     string `json:"action"`
	ActorID    string `json:"actor_id"`
	Rejections []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"rejections"`
}

type wsTestStateUpdate struct {
	Revision uint64 `json:"revision"`
	Actors   []struct {
		ActorID    string   `json:"actor_id"`
		Name       string   `json:"name"`
		HP         int      `json:"hp"`
		MaxHP      int      `json:"max_hp"`
		AC         int      `json:"ac"`
		Conditions []string `json:"conditions"`
	} `json:"actors"`
}

type testTable struct {
	srv        *httptest.Server
	store      storage.Stores
	privateKey ed25519.PrivateKey
}

type tableOptions struct {
	autoApprove     bool
	autorollNPC     bool
	rollTimeout     time.Duration
	approvalTimeout time.Duration
}

func newTestTable(t *testing.T, opts tableOptions) *testTable {
	t.Helper()

	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate keys: %v", err)
	}

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "table.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	seedTestCampaign(t, store)

	if opts.rollTimeout == 0 {
		opts.rollTimeout = 5 * time.Second
	}
	if opts.approvalTimeout == 0 {
		opts.approvalTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	handler, err := NewHandler(ctx, Config{
		Stores:          store,
		Grant:           JoinGrantConfig{Issuer: testIssuer, Audience: testAudience, Key: publicKey},
		RollTimeout:     opts.rollTimeout,
		ApprovalTimeout: opts.approvalTimeout,
		AutoApprove:     opts.autoApprove,
		AutorollNPC:     opts.autorollNPC,
		AutorollSeed:    7,
	})
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &testTable{srv: srv, store: store, privateKey: privateKey}
}

func seedTestCampaign(t *testing.T, store storage.Stores) {
	t.Helper()
	ctx := context.Background()

	if err := store.PutCampaign(ctx, storage.Campaign{ID: testCampaignID, Name: "Emberfall", Locale: "en"}); err != nil {
		t.Fatalf("seed campaign: %v", err)
	}

	actors := []storage.Actor{
		{
			ID:           "pc-aria",
			CampaignID:   testCampaignID,
			Name:         "Aria",
			Kind:         "character",
			ControllerID: "player-1",
			Level:        5,
			AC:           16,
			HP:           30,
			MaxHP:        30,
			Scores: dnd5e.AbilityScores{
				Strength: 16, Dexterity: 14, Constitution: 14,
				Intelligence: 10, Wisdom: 12, Charisma: 10,
			},
			Proficiencies: []string{"longsword"},
			Rules:         json.RawMessage(`{"weapons":["longsword"]}`),
		},
		{
			ID:               "npc-goblin",
			CampaignID:       testCampaignID,
			Name:             "Goblin",
			Kind:             "npc",
			AC:               13,
			HP:               12,
			MaxHP:            12,
			ProficiencyBonus: 2,
			Scores: dnd5e.AbilityScores{
				Strength: 8, Dexterity: 14, Constitution: 10,
				Intelligence: 8, Wisdom: 8, Charisma: 8,
			},
			Proficiencies: []string{"scimitar"},
			Conditions:    []string{"prone"},
			Rules:         json.RawMessage(`{"weapons":["scimitar"]}`),
		},
	}
	for _, actor := range actors {
		if err := store.PutActor(ctx, actor); err != nil {
			t.Fatalf("seed actor %s: %v", actor.ID, err)
		}
	}

	weapons := []storage.Weapon{
		{
			ID:         "longsword",
			CampaignID: testCampaignID,
			Name:       "Longsword",
			Doc:        json.RawMessage(`{"id":"longsword","name":"Longsword","damage":"1d8","damage_type":"slashing"}`),
		},
		{
			ID:         "scimitar",
			CampaignID: testCampaignID,
			Name:       "Scimitar",
			Doc:        json.RawMessage(`{"id":"scimitar","name":"Scimitar","damage":"1d6","damage_type":"slashing","properties":["finesse"]}`),
		},
	}
	for _, weapon := range weapons {
		if err := store.PutWeapon(ctx, weapon); err != nil {
			t.Fatalf("seed weapon %s: %v", weapon.ID, err)
		}
	}
}

func mintGrant(t *testing.T, tbl *testTable, campaignID, participantID, role string) string {
	t.Helper()
	return mintGrantAt(t, tbl.privateKey, campaignID, participantID, role, time.Now().Add(time.Hour))
}

func mintGrantAt(t *testing.T, key ed25519.PrivateKey, campaignID, participantID, role string, expires time.Time) string {
	t.Helper()
	claims := joinClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Audience:  jwt.ClaimStrings{testAudience},
			ID:        "grant-" + participantID,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		CampaignID:    campaignID,
		ParticipantID: participantID,
		Role:          role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign grant: %v", err)
	}
	return signed
}

func dialTable(t *testing.T, tbl *testTable) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(tbl.srv.URL, "http") + "/ws"
	conn, err := websocket.Dial(wsURL, "", tbl.srv.URL)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame map[string]any) {
	t.Helper()
	if err := json.NewEncoder(conn).Encode(frame); err != nil {
		t.Fatalf("encode frame: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) wsTestFrame {
	t.Helper()
	_ = conn.SetDeadline(time.Now().Add(3 * time.Second))
	var got wsTestFrame
	if err := json.NewDecoder(conn).Decode(&got); err != nil {
		t.Fatalf("decode server frame: %v", err)
	}
	return got
}

// awaitFrame reads frames until one of the wanted type arrives, skipping
// broadcasts interleaved by concurrent engine work.
func awaitFrame(t *testing.T, conn *websocket.Conn, wantType string) wsTestFrame {
	t.Helper()
	var seen []string
	for i := 0; i < 25; i++ {
		got := readFrame(t, conn)
		if got.Type == wantType {
			return got
		}
		seen = append(seen, got.Type)
	}
	t.Fatalf("no %s frame arrived; saw %v", wantType, seen)
	return wsTestFrame{}
}

// collectUntil reads frames until every wanted type has been seen at
// least once, returning everything read along the way. Frame order
// between the handler and engine goroutines is not fixed, so callers
// scan the returned frames instead of assuming positions.
func collectUntil(t *testing.T, conn *websocket.Conn, wantTypes ...string) []wsTestFrame {
	t.Helper()
	pending := make(map[string]bool, len(wantTypes))
	for _, wantType := range wantTypes {
		pending[wantType] = true
	}
	var frames []wsTestFrame
	for i := 0; i < 25; i++ {
		got := readFrame(t, conn)
		frames = append(frames, got)
		delete(pending, got.Type)
		if len(pending) == 0 {
			return frames
		}
	}
	types := make([]string, len(frames))
	for i, frame := range frames {
		types[i] = frame.Type
	}
	missing := make([]string, 0, len(pending))
	for wantType := range pending {
		missing = append(missing, wantType)
	}
	t.Fatalf("still waiting for %v; saw %v", missing, types)
	return nil
}

func frameOfType(t *testing.T, frames []wsTestFrame, wantType string) wsTestFrame {
	t.Helper()
	for _, frame := range frames {
		if frame.Type == wantType {
			return frame
		}
	}
	t.Fatalf("no %s frame among %d collected frames", wantType, len(frames))
	return wsTestFrame{}
}

func framesOfType(frames []wsTestFrame, wantType string) []wsTestFrame {
	var matched []wsTestFrame
	for _, frame := range frames {
		if frame.Type == wantType {
			matched = append(matched, frame)
		}
	}
	return matched
}

func joinTable(t *testing.T, tbl *testTable, conn *websocket.Conn, participantID, role string) {
	t.Helper()
	writeFrame(t, conn, map[string]any{
		"type":       "table.join",
		"request_id": "req-join-" + participantID,
		"payload": map[string]any{
			"campaign_id": testCampaignID,
			"token":       mintGrant(t, tbl, testCampaignID, participantID, role),
		},
	})
	got := readFrame(t, conn)
	if got.Type != "table.joined" {
		t.Fatalf("frame type = %q, want %q (payload %s)", got.Type, "table.joined", got.Payload)
	}
	state := readFrame(t, conn)
	if state.Type != "state.update" {
		t.Fatalf("frame type = %q, want %q", state.Type, "state.update")
	}
}

func TestWebSocketJoinReturnsJoinedAndState(t *testing.T) {
	tbl := newTestTable(t, tableOptions{})
	conn := dialTable(t, tbl)

	writeFrame(t, conn, map[string]any{
		"type":       "table.join",
		"request_id": "req-join-1",
		"payload": map[string]any{
			"campaign_id": testCampaignID,
			"token":       mintGrant(t, tbl, testCampaignID, "player-1", "player"),
		},
	})

	joined := readFrame(t, conn)
	if joined.Type != "table.joined" {
		t.Fatalf("frame type = %q, want %q (payload %s)", joined.Type, "table.joined", joined.Payload)
	}
	var welcome struct {
		CampaignID    string `json:"campaign_id"`
		SessionID     string `json:"session_id"`
		ParticipantID string `json:"participant_id"`
		Role          string `json:"role"`
	}
	if err := json.Unmarshal(joined.Payload, &welcome); err != nil {
		t.Fatalf("decode joined payload: %v", err)
	}
	if welcome.CampaignID != testCampaignID {
		t.Fatalf("campaign_id = %q, want %q", welcome.CampaignID, testCampaignID)
	}
	if welcome.ParticipantID != "player-1" || welcome.Role != "player" {
		t.Fatalf("identity = %q/%q, want player-1/player", welcome.ParticipantID, welcome.Role)
	}
	if welcome.SessionID == "" {
		t.Fatal("expected a session id")
	}

	state := readFrame(t, conn)
	if state.Type != "state.update" {
		t.Fatalf("frame type = %q, want %q", state.Type, "state.update")
	}
	var update wsTestStateUpdate
	if err := json.Unmarshal(state.Payload, &update); err != nil {
		t.Fatalf("decode state payload: %v", err)
	}
	if len(update.Actors) != 2 {
		t.Fatalf("state actors = %d, want 2", len(update.Actors))
	}
}

func TestWebSocketJoinRejectsBadSignature(t *testing.T) {
	tbl := newTestTable(t, tableOptions{})
	conn := dialTable(t, tbl)

	_, otherKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate keys: %v", err)
	}
	writeFrame(t, conn, map[string]any{
		"type":       "table.join",
		"request_id": "req-join-1",
		"payload": map[string]any{
			"campaign_id": testCampaignID,
			"token":       mintGrantAt(t, otherKey, testCampaignID, "player-1", "player", time.Now().Add(time.Hour)),
		},
	})

	got := readFrame(t, conn)
	if got.Type != "table.error" {
		t.Fatalf("frame type = %q, want %q", got.Type, "table.error")
	}
	if !strings.Contains(string(got.Payload), "JOIN_TOKEN_INVALID") {
		t.Fatalf("error payload = %s, expected JOIN_TOKEN_INVALID", got.Payload)
	}
}

func TestWebSocketJoinRejectsCampaignMismatch(t *testing.T) {
	tbl := newTestTable(t, tableOptions{})
	conn := dialTable(t, tbl)

	writeFrame(t, conn, map[string]any{
		"type":       "table.join",
		"request_id": "req-join-1",
		"payload": map[string]any{
			"campaign_id": testCampaignID,
			"token":       mintGrant(t, tbl, "camp-other", "player-1", "player"),
		},
	})

	got := readFrame(t, conn)
	if got.Type != "table.error" {
		t.Fatalf("frame type = %q, want %q", got.Type, "table.error")
	}
	if !strings.Contains(string(got.Payload), "JOIN_TOKEN_MISMATCH") {
		t.Fatalf("error payload = %s, expected JOIN_TOKEN_MISMATCH", got.Payload)
	}
}

func TestWebSocketJoinRejectsExpiredGrant(t *testing.T) {
	tbl := newTestTable(t, tableOptions{})
	conn := dialTable(t, tbl)

	writeFrame(t, conn, map[string]any{
		"type":       "table.join",
		"request_id": "req-join-1",
		"payload": map[string]any{
			"campaign_id": testCampaignID,
			"token":       mintGrantAt(t, tbl.privateKey, testCampaignID, "player-1", "player", time.Now().Add(-time.Minute)),
		},
	})

	got := readFrame(t, conn)
	if got.Type != "table.error" {
		t.Fatalf("frame type = %q, want %q", got.Type, "table.error")
	}
	if !strings.Contains(string(got.Payload), "JOIN_TOKEN_EXPIRED") {
		t.Fatalf("error payload = %s, expected JOIN_TOKEN_EXPIRED", got.Payload)
	}
}

func TestWebSocketJoinUnknownCampaignReturnsNotFound(t *testing.T) {
	tbl := newTestTable(t, tableOptions{})
	conn := dialTable(t, tbl)

	writeFrame(t, conn, map[string]any{
		"type":       "table.join",
		"request_id": "req-join-1",
		"payload": map[string]any{
			"campaign_id": "camp-missing",
			"token":       mintGrant(t, tbl, "camp-missing", "player-1", "player"),
		},
	})

	got := readFrame(t, conn)
	if got.Type != "table.error" {
		t.Fatalf("frame type = %q, want %q", got.Type, "table.error")
	}
	if !strings.Contains(string(got.Payload), "NOT_FOUND") {
		t.Fatalf("error payload = %s, expected NOT_FOUND", got.Payload)
	}
}

func TestWebSocketActionBeforeJoinReturnsForbidden(t *testing.T) {
	tbl := newTestTable(t, tableOptions{})
	conn := dialTable(t, tbl)

	writeFrame(t, conn, map[string]any{
		"type":       "action.request",
		"request_id": "req-act-1",
		"payload": map[string]any{
			"action":   "weapon.attack",
			"actor_id": "pc-aria",
		},
	})

	got := readFrame(t, conn)
	if got.Type != "table.error" {
		t.Fatalf("frame type = %q, want %q", got.Type, "table.error")
	}
	if !strings.Contains(string(got.Payload), "FORBIDDEN") {
		t.Fatalf("error payload = %s, expected FORBIDDEN", got.Payload)
	}
}

func TestWebSocketUnknownFrameTypeReturnsError(t *testing.T) {
	tbl := newTestTable(t, tableOptions{})
	conn := dialTable(t, tbl)

	writeFrame(t, conn, map[string]any{
		"type":       "table.unknown",
		"request_id": "req-bad-1",
		"payload":    map[string]any{},
	})

	got := readFrame(t, conn)
	if got.Type != "table.error" {
		t.Fatalf("frame type = %q, want %q", got.Type, "table.error")
	}
	if !strings.Contains(string(got.Payload), "INVALID_ARGUMENT") {
		t.Fatalf("error payload = %s, expected INVALID_ARGUMENT", got.Payload)
	}
}

func TestWebSocketChatSendBroadcastsToRoom(t *testing.T) {
	tbl := newTestTable(t, tableOptions{})
	player := dialTable(t, tbl)
	gm := dialTable(t, tbl)

	joinTable(t, tbl, player, "player-1", "player")
	joinTable(t, tbl, gm, "gm-1", "gm")

	writeFrame(t, player, map[string]any{
		"type":       "chat.send",
		"request_id": "req-send-1",
		"payload": map[string]any{
			"client_message_id": "cli-1",
			"body":              "hello table",
		},
	})

	ack := readFrame(t, player)
	if ack.Type != "chat.ack" {
		t.Fatalf("sender frame type = %q, want %q", ack.Type, "chat.ack")
	}
	senderMessage := readFrame(t, player)
	if senderMessage.Type != "chat.message" {
		t.Fatalf("sender frame type = %q, want %q", senderMessage.Type, "chat.message")
	}

	received := readFrame(t, gm)
	if received.Type != "chat.message" {
		t.Fatalf("receiver frame type = %q, want %q", received.Type, "chat.message")
	}
	var msg wsTestChatMessage
	if err := json.Unmarshal(received.Payload, &msg); err != nil {
		t.Fatalf("decode message payload: %v", err)
	}
	if msg.Message.Body != "hello table" {
		t.Fatalf("message body = %q, want %q", msg.Message.Body, "hello table")
	}
	if msg.Message.Actor.Name != "Aria" {
		t.Fatalf("speaker name = %q, want the controlled actor's name", msg.Message.Actor.Name)
	}
	if msg.Message.Actor.ParticipantID != "player-1" {
		t.Fatalf("speaker participant = %q, want player-1", msg.Message.Actor.ParticipantID)
	}
}

func TestWebSocketChatSendIsIdempotentByClientMessageID(t *testing.T) {
	tbl := newTestTable(t, tableOptions{})
	conn := dialTable(t, tbl)
	joinTable(t, tbl, conn, "player-1", "player")

	writeFrame(t, conn, map[string]any{
		"type":       "chat.send",
		"request_id": "req-send-1",
		"payload": map[string]any{
			"client_message_id": "cli-dup-1",
			"body":              "hello once",
		},
	})
	firstAck := readFrame(t, conn)
	if firstAck.Type != "chat.ack" {
		t.Fatalf("first frame type = %q, want %q", firstAck.Type, "chat.ack")
	}
	_ = readFrame(t, conn)

	writeFrame(t, conn, map[string]any{
		"type":       "chat.send",
		"request_id": "req-send-2",
		"payload": map[string]any{
			"client_message_id": "cli-dup-1",
			"body":              "hello twice",
		},
	})
	secondAck := readFrame(t, conn)
	if secondAck.Type != "chat.ack" {
		t.Fatalf("second frame type = %q, want %q", secondAck.Type, "chat.ack")
	}

	var first, second wsTestChatAck
	if err := json.Unmarshal(firstAck.Payload, &first); err != nil {
		t.Fatalf("decode first ack: %v", err)
	}
	if err := json.Unmarshal(secondAck.Payload, &second); err != nil {
		t.Fatalf("decode second ack: %v", err)
	}
	if first.Result.MessageID == "" {
		t.Fatal("expected first ack message_id")
	}
	if first.Result.MessageID != second.Result.MessageID {
		t.Fatalf("message_id mismatch: %q != %q", first.Result.MessageID, second.Result.MessageID)
	}
	if first.Result.SequenceID != second.Result.SequenceID {
		t.Fatalf("sequence_id mismatch: %d != %d", first.Result.SequenceID, second.Result.SequenceID)
	}
}

func TestWebSocketChatSequenceIncrementsPerMessage(t *testing.T) {
	tbl := newTestTable(t, tableOptions{})
	conn := dialTable(t, tbl)
	joinTable(t, tbl, conn, "player-1", "player")

	var sequences []int64
	for i, body := range []string{"first line", "second line"} {
		writeFrame(t, conn, map[string]any{
			"type":       "chat.send",
			"request_id": fmt.Sprintf("req-seq-%d", i),
			"payload": map[string]any{
				"client_message_id": fmt.Sprintf("cli-seq-%d", i),
				"body":              body,
			},
		})
		ackFrame := readFrame(t, conn)
		if ackFrame.Type != "chat.ack" {
			t.Fatalf("frame type = %q, want %q", ackFrame.Type, "chat.ack")
		}
		var ack wsTestChatAck
		if err := json.Unmarshal(ackFrame.Payload, &ack); err != nil {
			t.Fatalf("decode ack: %v", err)
		}
		sequences = append(sequences, ack.Result.SequenceID)
		_ = readFrame(t, conn)
	}

	if sequences[0] < 1 {
		t.Fatalf("first sequence_id = %d, want >= 1", sequences[0])
	}
	if sequences[1] != sequences[0]+1 {
		t.Fatalf("second sequence_id = %d, want %d", sequences[1], sequences[0]+1)
	}
}

func TestWebSocketChatReplayOnJoin(t *testing.T) {
	tbl := newTestTable(t, tableOptions{})
	player := dialTable(t, tbl)
	joinTable(t, tbl, player, "player-1", "player")

	writeFrame(t, player, map[string]any{
		"type":       "chat.send",
		"request_id": "req-send-1",
		"payload": map[string]any{
			"client_message_id": "cli-1",
			"body":              "for the record",
		},
	})
	_ = readFrame(t, player)
	_ = readFrame(t, player)

	late := dialTable(t, tbl)
	joinTable(t, tbl, late, "player-2", "player")

	replay := readFrame(t, late)
	if replay.Type != "chat.message" {
		t.Fatalf("frame type = %q, want replayed chat.message", replay.Type)
	}
	var msg wsTestChatMessage
	if err := json.Unmarshal(replay.Payload, &msg); err != nil {
		t.Fatalf("decode replay payload: %v", err)
	}
	if msg.Message.Body != "for the record" {
		t.Fatalf("replayed body = %q, want %q", msg.Message.Body, "for the record")
	}
}

func TestWebSocketEncounterLifecycle(t *testing.T) {
	tbl := newTestTable(t, tableOptions{})
	gm := dialTable(t, tbl)
	player := dialTable(t, tbl)

	joinTable(t, tbl, gm, "gm-1", "gm")
	joinTable(t, tbl, player, "player-1", "player")

	writeFrame(t, gm, map[string]any{
		"type":       "encounter.start",
		"request_id": "req-enc-1",
		"payload": map[string]any{
			"order": []string{"pc-aria", "npc-goblin"},
		},
	})

	started := readFrame(t, gm)
	if started.Type != "encounter.started" {
		t.Fatalf("frame type = %q, want %q (payload %s)", started.Type, "encounter.started", started.Payload)
	}
	var opened struct {
		Round       int      `json:"round"`
		ActiveActor string   `json:"active_actor"`
		Order       []string `json:"order"`
	}
	if err := json.Unmarshal(started.Payload, &opened); err != nil {
		t.Fatalf("decode started payload: %v", err)
	}
	if opened.Round != 1 || opened.ActiveActor != "pc-aria" {
		t.Fatalf("opened = round %d active %q, want round 1 active pc-aria", opened.Round, opened.ActiveActor)
	}
	if playerView := readFrame(t, player); playerView.Type != "encounter.started" {
		t.Fatalf("player frame type = %q, want %q", playerView.Type, "encounter.started")
	}

	writeFrame(t, gm, map[string]any{
		"type":       "turn.next",
		"request_id": "req-turn-1",
	})
	changed := readFrame(t, gm)
	if changed.Type != "turn.changed" {
		t.Fatalf("frame type = %q, want %q", changed.Type, "turn.changed")
	}
	var turn struct {
		Round        int    `json:"round"`
		Turn         int    `json:"turn"`
		ActiveActor  string `json:"active_actor"`
		EconomyReset bool   `json:"economy_reset"`
	}
	if err := json.Unmarshal(changed.Payload, &turn); err != nil {
		t.Fatalf("decode turn payload: %v", err)
	}
	if turn.Round != 1 || turn.Turn != 1 || turn.ActiveActor != "npc-goblin" {
		t.Fatalf("turn = %+v, want round 1 turn 1 active npc-goblin", turn)
	}
	if !turn.EconomyReset {
		t.Fatal("expected economy_reset on the turn boundary")
	}

	writeFrame(t, gm, map[string]any{
		"type":       "encounter.end",
		"request_id": "req-enc-end",
	})
	ended := readFrame(t, gm)
	if ended.Type != "encounter.ended" {
		t.Fatalf("frame type = %q, want %q", ended.Type, "encounter.ended")
	}
}

func TestWebSocketEncounterStartRequiresGM(t *testing.T) {
	tbl := newTestTable(t, tableOptions{})
	conn := dialTable(t, tbl)
	joinTable(t, tbl, conn, "player-1", "player")

	writeFrame(t, conn, map[string]any{
		"type":       "encounter.start",
		"request_id": "req-enc-1",
		"payload": map[string]any{
			"order": []string{"pc-aria"},
		},
	})

	got := readFrame(t, conn)
	if got.Type != "table.error" {
		t.Fatalf("frame type = %q, want %q", got.Type, "table.error")
	}
	if !strings.Contains(string(got.Payload), "ROLE_FORBIDDEN") {
		t.Fatalf("error payload = %s, expected ROLE_FORBIDDEN", got.Payload)
	}
}

func TestWebSocketTurnNextWithoutEncounterReturnsError(t *testing.T) {
	tbl := newTestTable(t, tableOptions{})
	conn := dialTable(t, tbl)
	joinTable(t, tbl, conn, "gm-1", "gm")

	writeFrame(t, conn, map[string]any{
		"type":       "turn.next",
		"request_id": "req-turn-1",
	})

	got := readFrame(t, conn)
	if got.Type != "table.error" {
		t.Fatalf("frame type = %q, want %q", got.Type, "table.error")
	}
	if !strings.Contains(string(got.Payload), "ENCOUNTER_INACTIVE") {
		t.Fatalf("error payload = %s, expected ENCOUNTER_INACTIVE", got.Payload)
	}
}

func TestWebSocketSessionEndClosesRoomAndAllowsRejoin(t *testing.T) {
	tbl := newTestTable(t, tableOptions{})
	gm := dialTable(t, tbl)
	player := dialTable(t, tbl)

	joinTable(t, tbl, gm, "gm-1", "gm")
	joinTable(t, tbl, player, "player-1", "player")

	writeFrame(t, gm, map[string]any{
		"type":       "session.end",
		"request_id": "req-end-1",
	})

	if got := readFrame(t, gm); got.Type != "session.ended" {
		t.Fatalf("gm frame type = %q, want %q", got.Type, "session.ended")
	}
	if got := readFrame(t, player); got.Type != "session.ended" {
		t.Fatalf("player frame type = %q, want %q", got.Type, "session.ended")
	}

	writeFrame(t, player, map[string]any{
		"type":       "action.request",
		"request_id": "req-act-1",
		"payload": map[string]any{
			"action":   "weapon.attack",
			"actor_id": "pc-aria",
		},
	})
	if got := readFrame(t, player); got.Type != "table.error" {
		t.Fatalf("frame type = %q, want table.error after session end", got.Type)
	}

	joinTable(t, tbl, player, "player-1", "player")
}
