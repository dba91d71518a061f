package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/hearthvtt/hearth/internal/game/actions"
	"github.com/hearthvtt/hearth/internal/game/dnd5e"
	"github.com/hearthvtt/hearth/internal/game/engine"
	"github.com/hearthvtt/hearth/internal/game/render"
	"github.com/hearthvtt/hearth/internal/game/rollmux"
	"github.com/hearthvtt/hearth/internal/game/state"
	apperrors "github.com/hearthvtt/hearth/internal/platform/errors"
	"github.com/hearthvtt/hearth/internal/platform/id"
	"github.com/hearthvtt/hearth/internal/platform/timeouts"
	"github.com/hearthvtt/hearth/internal/table/protocol"
	"github.com/hearthvtt/hearth/internal/table/storage"
)

type roomSettings struct {
	rollTimeout     time.Duration
	approvalTimeout time.Duration
	autoApprove     bool
	autorollNPC     bool
	autorollSeed    int64
}

// roomHub tracks live table rooms by campaign id. The first join for a
// campaign loads its documents and starts the engine session; later
// joins attach to the same room.
type roomHub struct {
	baseCtx  context.Context
	stores   storage.Stores
	grant    JoinGrantConfig
	settings roomSettings

	mu    sync.Mutex
	rooms map[string]*tableRoom
}

func newRoomHub(ctx context.Context, config Config) (*roomHub, error) {
	if config.Stores == nil {
		return nil, errors.New("stores are required")
	}
	settings := roomSettings{
		rollTimeout:     config.RollTimeout,
		approvalTimeout: config.ApprovalTimeout,
		autoApprove:     config.AutoApprove,
		autorollNPC:     config.AutorollNPC,
		autorollSeed:    config.AutorollSeed,
	}
	if settings.rollTimeout <= 0 {
		settings.rollTimeout = timeouts.RollWait
	}
	if settings.approvalTimeout <= 0 {
		settings.approvalTimeout = timeouts.Approval
	}
	if settings.autorollSeed == 0 {
		settings.autorollSeed = time.Now().UnixNano()
	}
	return &roomHub{
		baseCtx:  ctx,
		stores:   config.Stores,
		grant:    config.Grant,
		settings: settings,
		rooms:    make(map[string]*tableRoom),
	}, nil
}

func (h *roomHub) room(campaignID string) (*tableRoom, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.rooms[campaignID]; ok {
		return room, nil
	}
	room, err := openTableRoom(h.baseCtx, campaignID, h.stores, h.settings)
	if err != nil {
		return nil, err
	}
	h.rooms[campaignID] = room
	return room, nil
}

func (h *roomHub) drop(campaignID string) {
	h.mu.Lock()
	delete(h.rooms, campaignID)
	h.mu.Unlock()
}

func (h *roomHub) closeAll() {
	h.mu.Lock()
	rooms := make([]*tableRoom, 0, len(h.rooms))
	for _, room := range h.rooms {
		rooms = append(rooms, room)
	}
	h.rooms = make(map[string]*tableRoom)
	h.mu.Unlock()

	for _, room := range rooms {
		room.close()
	}
}

type roomMember struct {
	session       *wsSession
	participantID string
	role          string
}

type pendingApproval struct {
	actionID string
	req      engine.Request
	message  string
	timer    *time.Timer
}

// tableRoom is one live table: the in-memory state, the engine session
// running its actions, the connected peers, and the chat log. It is the
// rollmux sender and the engine notifier for its session.
type tableRoom struct {
	campaignID   string
	campaignName string
	sessionID    string
	printer      *message.Printer

	stores   storage.Stores
	settings roomSettings
	table    *state.Table
	rolls    *rollmux.Mux
	runner   *engine.Session

	mu               sync.Mutex
	closed           bool
	subscribers      map[*wsPeer]roomMember
	approvals        map[string]*pendingApproval
	nextSequence     int64
	messages         []protocol.ChatMessage
	idempotencyBy    map[string]protocol.ChatMessage
	idempotencyOrder []string

	autorollMu  sync.Mutex
	autorollRNG *rand.Rand

	persist     chan state.ChangeSet
	persistDone chan struct{}
}

func openTableRoom(ctx context.Context, campaignID string, stores storage.Stores, settings roomSettings) (*tableRoom, error) {
	loadCtx, cancel := context.WithTimeout(ctx, timeouts.Storage)
	defer cancel()

	campaign, err := stores.GetCampaign(loadCtx, campaignID)
	if err != nil {
		return nil, err
	}

	records, err := stores.ListActorsByCampaign(loadCtx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("load actors for campaign %s: %w", campaignID, err)
	}
	spells, err := stores.ListSpellsByCampaign(loadCtx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("load spells for campaign %s: %w", campaignID, err)
	}
	weapons, err := stores.ListWeaponsByCampaign(loadCtx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("load weapons for campaign %s: %w", campaignID, err)
	}

	sessionID, err := id.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	actors := make([]state.Actor, 0, len(records))
	tokens := make([]state.Token, 0, len(records))
	for _, record := range records {
		actors = append(actors, stateActor(record))
		tokens = append(tokens, state.Token{ID: record.ID, ActorID: record.ID})
	}

	room := &tableRoom{
		campaignID:    campaignID,
		campaignName:  campaign.Name,
		sessionID:     sessionID,
		printer:       localePrinter(campaign.Locale),
		stores:        stores,
		settings:      settings,
		subscribers:   make(map[*wsPeer]roomMember),
		approvals:     make(map[string]*pendingApproval),
		idempotencyBy: make(map[string]protocol.ChatMessage),
		autorollRNG:   rand.New(rand.NewSource(settings.autorollSeed)),
		persist:       make(chan state.ChangeSet, persistQueueCapacity),
		persistDone:   make(chan struct{}),
	}
	room.table = state.NewTable(sessionID, actors, tokens)
	room.rolls = rollmux.New(room, settings.rollTimeout)

	registry := engine.NewRegistry()
	if err := actions.Register(registry, buildCompendium(spells, weapons)); err != nil {
		return nil, fmt.Errorf("register actions: %w", err)
	}
	room.runner = engine.NewSession(ctx, engine.Config{
		Table:    room.table,
		Rolls:    room.rolls,
		Registry: registry,
		Notifier: room,
	})

	go room.persistLoop()
	return room, nil
}

// compendium indexes the campaign's decoded spell and weapon documents.
type compendium struct {
	spells  map[string]dnd5e.Spell
	weapons map[string]dnd5e.Weapon
}

func (c compendium) Spell(spellID string) (dnd5e.Spell, bool) {
	spell, ok := c.spells[spellID]
	return spell, ok
}

func (c compendium) Weapon(weaponID string) (dnd5e.Weapon, bool) {
	weapon, ok := c.weapons[weaponID]
	return weapon, ok
}

// buildCompendium decodes the stored documents, skipping entries that no
// longer parse so one bad document cannot keep a table from opening.
func buildCompendium(spells []storage.Spell, weapons []storage.Weapon) compendium {
	c := compendium{
		spells:  make(map[string]dnd5e.Spell, len(spells)),
		weapons: make(map[string]dnd5e.Weapon, len(weapons)),
	}
	for _, record := range spells {
		spell, err := dnd5e.DecodeSpell(record.Doc)
		if err != nil {
			log.Printf("table: skip spell %q: %v", record.ID, err)
			continue
		}
		c.spells[spell.ID] = spell
	}
	for _, record := range weapons {
		weapon, err := dnd5e.DecodeWeapon(record.Doc)
		if err != nil {
			log.Printf("table: skip weapon %q: %v", record.ID, err)
			continue
		}
		c.weapons[weapon.ID] = weapon
	}
	return c
}

func stateActor(record storage.Actor) state.Actor {
	return state.Actor{
		ID:               record.ID,
		Name:             record.Name,
		Kind:             state.ActorKind(record.Kind),
		ControllerID:     record.ControllerID,
		Level:            record.Level,
		AC:               record.AC,
		HP:               record.HP,
		MaxHP:            record.MaxHP,
		ProficiencyBonus: record.ProficiencyBonus,
		Scores:           record.Scores,
		Proficiencies:    record.Proficiencies,
		Conditions:       record.Conditions,
		Rules:            record.Rules,
	}
}

func actorRecord(campaignID string, actor state.Actor) storage.Actor {
	return storage.Actor{
		ID:               actor.ID,
		CampaignID:       campaignID,
		Name:             actor.Name,
		Kind:             string(actor.Kind),
		ControllerID:     actor.ControllerID,
		Level:            actor.Level,
		AC:               actor.AC,
		HP:               actor.HP,
		MaxHP:            actor.MaxHP,
		ProficiencyBonus: actor.ProficiencyBonus,
		Scores:           actor.Scores,
		Proficiencies:    actor.Proficiencies,
		Conditions:       actor.Conditions,
		Rules:            actor.Rules,
	}
}

func localePrinter(locale string) *message.Printer {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return message.NewPrinter(tag)
}

type roomWelcome struct {
	revision  uint64
	state     protocol.StateUpdatePayload
	chat      []protocol.ChatMessage
	prompts   []protocol.RollPromptPayload
	approvals []protocol.ApprovalRequestPayload
}

func (r *tableRoom) join(session *wsSession, participantID, role string) (roomWelcome, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return roomWelcome{}, apperrors.New(apperrors.CodeSessionClosed, "table session has ended")
	}
	r.subscribers[session.peer] = roomMember{
		session:       session,
		participantID: participantID,
		role:          role,
	}

	start := len(r.messages) - chatReplayLimit
	if start < 0 {
		start = 0
	}
	chat := make([]protocol.ChatMessage, len(r.messages)-start)
	copy(chat, r.messages[start:])

	var approvals []protocol.ApprovalRequestPayload
	if role == RoleGM {
		for _, approval := range r.approvals {
			approvals = append(approvals, approvalPayload(approval))
		}
	}
	r.mu.Unlock()

	sort.Slice(approvals, func(i, j int) bool {
		return approvals[i].ActionID < approvals[j].ActionID
	})

	snap := r.table.Snapshot()
	return roomWelcome{
		revision:  snap.Revision,
		state:     fullStatePayload(snap),
		chat:      chat,
		prompts:   r.promptsFor(snap, participantID, role),
		approvals: approvals,
	}, nil
}

func (r *tableRoom) leave(peer *wsPeer) {
	r.mu.Lock()
	delete(r.subscribers, peer)
	r.mu.Unlock()
}

// close tears the room down: refuse new members, resolve nothing further,
// stop the engine session, flush pending persists, and tell every peer
// the session ended. Safe to call more than once.
func (r *tableRoom) close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	peers := make([]*wsPeer, 0, len(r.subscribers))
	sessions := make([]*wsSession, 0, len(r.subscribers))
	for peer, member := range r.subscribers {
		peers = append(peers, peer)
		sessions = append(sessions, member.session)
	}
	r.subscribers = make(map[*wsPeer]roomMember)
	approvals := make([]*pendingApproval, 0, len(r.approvals))
	for _, approval := range r.approvals {
		approvals = append(approvals, approval)
	}
	r.approvals = make(map[string]*pendingApproval)
	r.mu.Unlock()

	for _, approval := range approvals {
		approval.timer.Stop()
	}

	r.runner.Close()
	close(r.persist)
	<-r.persistDone

	for _, session := range sessions {
		session.clearRoomIf(r)
	}

	endedFrame := protocol.Frame{
		Type:    protocol.TypeSessionEnded,
		Payload: mustJSON(protocol.SessionEndedPayload{SessionID: r.sessionID}),
	}
	for _, peer := range peers {
		_ = peer.writeFrame(endedFrame)
	}
}

// persistLoop writes committed actor changes back to the store. Failures
// are logged and skipped; the in-memory table stays authoritative for
// the running session.
func (r *tableRoom) persistLoop() {
	defer close(r.persistDone)
	for changes := range r.persist {
		for _, actor := range changes.Actors {
			ctx, cancel := context.WithTimeout(context.Background(), timeouts.Storage)
			err := r.stores.PutActor(ctx, actorRecord(r.campaignID, actor))
			cancel()
			if err != nil {
				log.Printf("table: persist actor %q in campaign %q: %v", actor.ID, r.campaignID, err)
			}
		}
	}
}

func (r *tableRoom) broadcast(frame protocol.Frame) {
	r.mu.Lock()
	peers := make([]*wsPeer, 0, len(r.subscribers))
	for peer := range r.subscribers {
		peers = append(peers, peer)
	}
	r.mu.Unlock()

	for _, peer := range peers {
		_ = peer.writeFrame(frame)
	}
}

func (r *tableRoom) broadcastToGM(frame protocol.Frame) {
	r.mu.Lock()
	peers := make([]*wsPeer, 0, len(r.subscribers))
	for peer, member := range r.subscribers {
		if member.role == RoleGM {
			peers = append(peers, peer)
		}
	}
	r.mu.Unlock()

	for _, peer := range peers {
		_ = peer.writeFrame(frame)
	}
}

// appendChat stores a participant chat line. A client_message_id seen
// before returns the original message with duplicate set; the caller
// acks but must not broadcast again.
func (r *tableRoom) appendChat(participantID, body, clientMessageID string) (protocol.ChatMessage, bool, []*wsPeer) {
	name := r.memberName(participantID)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.idempotencyBy[clientMessageID]; ok {
		return existing, true, nil
	}

	r.nextSequence++
	msg := protocol.ChatMessage{
		MessageID:       fmt.Sprintf("msg_%d", time.Now().UnixNano()),
		SessionID:       r.sessionID,
		SequenceID:      r.nextSequence,
		SentAt:          time.Now().UTC().Format(time.RFC3339),
		Kind:            "text",
		Actor:           protocol.ChatActor{ParticipantID: participantID, Name: name},
		Body:            body,
		ClientMessageID: clientMessageID,
	}
	r.appendMessageLocked(msg)

	r.idempotencyBy[clientMessageID] = msg
	r.idempotencyOrder = append(r.idempotencyOrder, clientMessageID)
	if len(r.idempotencyOrder) > maxIdempotencyRecord {
		evicted := r.idempotencyOrder[0]
		r.idempotencyOrder = r.idempotencyOrder[1:]
		delete(r.idempotencyBy, evicted)
	}

	return msg, false, r.subscriberPeersLocked()
}

// appendSystemLine stores a server-authored chat line, the combat log.
func (r *tableRoom) appendSystemLine(body string) (protocol.ChatMessage, []*wsPeer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextSequence++
	msg := protocol.ChatMessage{
		MessageID:  fmt.Sprintf("sys_%d", time.Now().UnixNano()),
		SessionID:  r.sessionID,
		SequenceID: r.nextSequence,
		SentAt:     time.Now().UTC().Format(time.RFC3339),
		Kind:       "system",
		Actor:      protocol.ChatActor{ParticipantID: "system", Name: r.systemLabel()},
		Body:       body,
	}
	r.appendMessageLocked(msg)
	return msg, r.subscriberPeersLocked()
}

func (r *tableRoom) appendMessageLocked(msg protocol.ChatMessage) {
	r.messages = append(r.messages, msg)
	if len(r.messages) > maxRoomMessages {
		r.messages = r.messages[len(r.messages)-maxRoomMessages:]
	}
}

func (r *tableRoom) subscriberPeersLocked() []*wsPeer {
	peers := make([]*wsPeer, 0, len(r.subscribers))
	for peer := range r.subscribers {
		peers = append(peers, peer)
	}
	return peers
}

// memberName labels chat lines with the speaker's actor when the
// participant controls exactly one, falling back to the participant id.
func (r *tableRoom) memberName(participantID string) string {
	snap := r.table.Snapshot()
	name := ""
	for _, actor := range snap.Actors {
		if !actor.Controlled(participantID) || actor.ControllerID == "" {
			continue
		}
		if name != "" {
			return participantID
		}
		name = actor.Name
	}
	if name == "" {
		return participantID
	}
	return name
}

func (r *tableRoom) systemLabel() string {
	return r.printer.Sprintf("chat.system_label")
}

// ActionEvent renders engine events into localized system chat lines and
// broadcasts them. It implements engine.Notifier.
func (r *tableRoom) ActionEvent(event engine.Event) {
	line := render.Line(r.printer, event)
	if line == "" {
		return
	}
	msg, peers := r.appendSystemLine(line)
	frame := protocol.Frame{
		Type:    protocol.TypeChatMessage,
		Payload: mustJSON(protocol.ChatMessagePayload{Message: msg}),
	}
	for _, peer := range peers {
		_ = peer.writeFrame(frame)
	}
}

func fullStatePayload(snap state.Snapshot) protocol.StateUpdatePayload {
	ids := make([]string, 0, len(snap.Actors))
	for actorID := range snap.Actors {
		ids = append(ids, actorID)
	}
	sort.Strings(ids)

	payload := protocol.StateUpdatePayload{
		Revision: snap.Revision,
		Actors:   make([]protocol.ActorState, 0, len(ids)),
	}
	for _, actorID := range ids {
		payload.Actors = append(payload.Actors, actorState(snap.Actors[actorID]))
	}
	return payload
}

func actorState(actor state.Actor) protocol.ActorState {
	return protocol.ActorState{
		ActorID:    actor.ID,
		Name:       actor.Name,
		HP:         actor.HP,
		MaxHP:      actor.MaxHP,
		AC:         actor.AC,
		Conditions: append([]string(nil), actor.Conditions...),
	}
}

func (r *tableRoom) startEncounter(order []string) error {
	if err := r.table.StartEncounter(order); err != nil {
		return err
	}
	snap := r.table.Snapshot()
	r.broadcast(protocol.Frame{
		Type: protocol.TypeEncounterStarted,
		Payload: mustJSON(protocol.EncounterStartedPayload{
			Round:       snap.Encounter.Round,
			ActiveActor: snap.Encounter.ActiveActor(),
			Order:       snap.Encounter.Order,
		}),
	})
	return nil
}

func (r *tableRoom) endEncounter() error {
	snap := r.table.Snapshot()
	if !snap.Encounter.Active {
		return apperrors.New(apperrors.CodeEncounterInactive, "no encounter is running")
	}
	r.table.EndEncounter()
	r.broadcast(protocol.Frame{Type: protocol.TypeEncounterEnded})
	return nil
}

func (r *tableRoom) nextTurn() error {
	snap := r.table.Snapshot()
	if !snap.Encounter.Active {
		return apperrors.New(apperrors.CodeEncounterInactive, "no encounter is running")
	}
	encounter, err := r.table.AdvanceTurn()
	if err != nil {
		return err
	}
	r.broadcast(protocol.Frame{
		Type: protocol.TypeTurnChanged,
		Payload: mustJSON(protocol.TurnChangedPayload{
			Round:        encounter.Round,
			Turn:         encounter.Turn,
			ActiveActor:  encounter.ActiveActor(),
			EconomyReset: true,
		}),
	})
	return nil
}
