// Package rollmux correlates outbound roll prompts with the results that
// players submit later. The engine blocks on a prompt while the rest of
// the table keeps moving; the mux pairs each inbound submission with its
// waiting prompt by correlation id, enforces a deadline on every wait, and
// keeps multi-target groups in dispatch order however the replies arrive.
package rollmux

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hearthvtt/hearth/internal/game/dice"
	"github.com/hearthvtt/hearth/internal/platform/errors"
	"github.com/hearthvtt/hearth/internal/platform/id"
)

// RollKind tells the client what the roll is for.
type RollKind string

const (
	KindAttack RollKind = "attack"
	KindSave   RollKind = "save"
	KindDamage RollKind = "damage"
)

// Prompt is one outbound roll request. The correlation id pairs it with
// the eventual submission; Metadata carries the display breakdown (attack
// bonus parts, save DC) and never feeds the math.
type Prompt struct {
	CorrelationID string
	SessionID     string
	ActorID       string
	ActorName     string
	TargetID      string
	Kind          RollKind
	Expression    string
	Reason        string
	Metadata      map[string]string
}

// Outcome is the resolved end of one prompt: either the validated rolls
// with a server-computed total, or a timeout marker meaning no result
// arrived in time.
type Outcome struct {
	Prompt   Prompt
	Rolls    []dice.Roll
	Total    int
	TimedOut bool
}

// Natural returns the first die of the first roll, the natural d20 an
// attack or save cares about. It returns 0 when the outcome carries no
// rolls.
func (o Outcome) Natural() int {
	if len(o.Rolls) == 0 || len(o.Rolls[0].Results) == 0 {
		return 0
	}
	return o.Rolls[0].Results[0]
}

// Sender delivers prompts to whoever rolls them, typically the table
// transport broadcasting to the controlling player's client.
type Sender interface {
	SendRollPrompt(ctx context.Context, prompt Prompt) error
}

type delivery struct {
	outcome   Outcome
	abandoned bool
}

type pendingRoll struct {
	prompt Prompt
	expr   dice.Expression
	ch     chan delivery
}

// Mux tracks the pending prompts for one session.
type Mux struct {
	mu      sync.Mutex
	sender  Sender
	timeout time.Duration
	pending map[string]*pendingRoll
	closed  bool
}

// New creates a mux that delivers prompts through sender and times every
// wait out after timeout.
func New(sender Sender, timeout time.Duration) *Mux {
	return &Mux{
		sender:  sender,
		timeout: timeout,
		pending: make(map[string]*pendingRoll),
	}
}

// Send dispatches one prompt and blocks until its result arrives, the
// deadline passes, or the context is canceled. A missed deadline is not
// an error: the outcome comes back with TimedOut set and the workflow
// decides what a missing roll means.
func (m *Mux) Send(ctx context.Context, prompt Prompt) (Outcome, error) {
	outcomes, err := m.SendGroup(ctx, []Prompt{prompt})
	if err != nil {
		return Outcome{}, err
	}
	return outcomes[0], nil
}

// SendGroup dispatches every prompt before awaiting any of them, then
// collects results in input order: outcomes[i] always answers prompts[i],
// however the submissions interleave. The whole group shares one deadline.
func (m *Mux) SendGroup(ctx context.Context, prompts []Prompt) ([]Outcome, error) {
	if len(prompts) == 0 {
		return nil, nil
	}

	pending, err := m.register(prompts)
	if err != nil {
		return nil, err
	}

	for _, p := range pending {
		if err := m.sender.SendRollPrompt(ctx, p.prompt); err != nil {
			m.unregister(pending)
			return nil, errors.Wrap(errors.CodeRollAbandoned, "roll prompt could not be delivered", err)
		}
	}

	deadline := time.Now().Add(m.timeout)
	outcomes := make([]Outcome, len(pending))
	for i, p := range pending {
		outcome, err := m.await(ctx, p, deadline)
		if err != nil {
			m.unregister(pending)
			return nil, err
		}
		outcomes[i] = outcome
	}
	return outcomes, nil
}

func (m *Mux) register(prompts []Prompt) ([]*pendingRoll, error) {
	pending := make([]*pendingRoll, len(prompts))
	for i, prompt := range prompts {
		expr, err := dice.ParseExpression(prompt.Expression)
		if err != nil {
			return nil, errors.Wrap(
				errors.CodeDiceInvalidExpression,
				fmt.Sprintf("roll prompt has invalid expression %q", prompt.Expression),
				err,
			)
		}
		if prompt.CorrelationID == "" {
			correlationID, err := id.NewID()
			if err != nil {
				return nil, errors.Wrap(errors.CodeUnknown, "generate roll correlation id", err)
			}
			prompt.CorrelationID = correlationID
		}
		pending[i] = &pendingRoll{
			prompt: prompt,
			expr:   expr,
			ch:     make(chan delivery, 1),
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New(errors.CodeRollAbandoned, "session roll channel is closed")
	}
	for _, p := range pending {
		m.pending[p.prompt.CorrelationID] = p
	}
	return pending, nil
}

func (m *Mux) unregister(pending []*pendingRoll) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range pending {
		delete(m.pending, p.prompt.CorrelationID)
	}
}

func (m *Mux) await(ctx context.Context, p *pendingRoll, deadline time.Time) (Outcome, error) {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		// The group deadline already passed while awaiting an earlier
		// prompt; still collect a result that raced in.
		select {
		case d := <-p.ch:
			return deliveryOutcome(d)
		default:
			m.unregister([]*pendingRoll{p})
			return Outcome{Prompt: p.prompt, TimedOut: true}, nil
		}
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case d := <-p.ch:
		return deliveryOutcome(d)
	case <-timer.C:
		m.unregister([]*pendingRoll{p})
		return Outcome{Prompt: p.prompt, TimedOut: true}, nil
	case <-ctx.Done():
		m.unregister([]*pendingRoll{p})
		return Outcome{}, errors.Wrap(errors.CodeRollAbandoned, "roll wait canceled", ctx.Err())
	}
}

func deliveryOutcome(d delivery) (Outcome, error) {
	if d.abandoned {
		return Outcome{}, errors.New(errors.CodeRollAbandoned, "session ended while awaiting a roll")
	}
	return d.outcome, nil
}

// Resolve pairs a submission with its pending prompt. The submitted dice
// must match the prompt's expression die for die; totals are recomputed
// server-side and client totals are ignored. An invalid submission leaves
// the prompt pending so the roller can correct and resubmit. A correlation
// id that is unknown, already resolved, or already timed out is rejected.
func (m *Mux) Resolve(correlationID string, rolls []dice.Roll) error {
	m.mu.Lock()
	p, ok := m.pending[correlationID]
	m.mu.Unlock()

	if !ok {
		return unknownCorrelationError(correlationID)
	}

	outcome, err := buildOutcome(p, rolls)
	if err != nil {
		return err
	}

	// Only the caller that removes the pending entry delivers; a wait
	// that timed out in the meantime already removed it.
	m.mu.Lock()
	_, still := m.pending[correlationID]
	if still {
		delete(m.pending, correlationID)
	}
	m.mu.Unlock()
	if !still {
		return unknownCorrelationError(correlationID)
	}

	p.ch <- delivery{outcome: outcome}
	return nil
}

func unknownCorrelationError(correlationID string) error {
	return errors.WithMetadata(
		errors.CodeRollUnknownCorrelation,
		"no pending roll matches this correlation id",
		map[string]string{"CorrelationID": correlationID},
	)
}

func buildOutcome(p *pendingRoll, rolls []dice.Roll) (Outcome, error) {
	groups := p.expr.Groups
	if len(rolls) != len(groups) {
		return Outcome{}, rollMismatchError(p, fmt.Sprintf("submitted %d dice groups, expression has %d", len(rolls), len(groups)))
	}

	total := p.expr.Modifier
	validated := make([]dice.Roll, len(rolls))
	for i, roll := range rolls {
		group := groups[i]
		if roll.Sides != group.Sides || len(roll.Results) != group.Count {
			return Outcome{}, rollMismatchError(p, fmt.Sprintf("group %d does not match %dd%d", i, group.Count, group.Sides))
		}
		sum := 0
		for _, result := range roll.Results {
			if result < 1 || result > group.Sides {
				return Outcome{}, rollMismatchError(p, fmt.Sprintf("die result %d outside 1-%d", result, group.Sides))
			}
			sum += result
		}
		validated[i] = dice.Roll{
			Sides:   roll.Sides,
			Results: append([]int(nil), roll.Results...),
			Total:   sum,
		}
		total += sum
	}

	return Outcome{Prompt: p.prompt, Rolls: validated, Total: total}, nil
}

func rollMismatchError(p *pendingRoll, detail string) error {
	return errors.WithMetadata(
		errors.CodeRollInvalid,
		fmt.Sprintf("submitted roll does not match the requested %s", p.prompt.Expression),
		map[string]string{
			"CorrelationID": p.prompt.CorrelationID,
			"Expression":    p.prompt.Expression,
			"Detail":        detail,
		},
	)
}

// Pending returns the prompts still awaiting a result, for re-sending to
// a client that reconnects mid-action.
func (m *Mux) Pending() []Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	prompts := make([]Prompt, 0, len(m.pending))
	for _, p := range m.pending {
		prompts = append(prompts, p.prompt)
	}
	return prompts
}

// Close abandons every pending wait and rejects all future sends. The
// session teardown calls this exactly once.
func (m *Mux) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for correlationID, p := range m.pending {
		delete(m.pending, correlationID)
		p.ch <- delivery{abandoned: true}
	}
}
