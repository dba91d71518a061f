package state

// Encounter tracks the running combat: the turn order and whose turn it is.
// Initiative rolling happens outside this package; the encounter only holds
// the resulting order and exposes the turn boundary that resets the action
// economy.
type Encounter struct {
	Active bool
	Round  int
	Turn   int
	Order  []string
}

// ActiveActor returns the actor id whose turn it is, or empty when no
// encounter is running.
func (e Encounter) ActiveActor() string {
	if !e.Active || len(e.Order) == 0 {
		return ""
	}
	return e.Order[e.Turn%len(e.Order)]
}

// advance moves to the next turn, starting a new round after the last
// actor in the order.
func (e *Encounter) advance() {
	if !e.Active || len(e.Order) == 0 {
		return
	}
	e.Turn++
	if e.Turn >= len(e.Order) {
		e.Turn = 0
		e.Round++
	}
}

// clone deep-copies the encounter.
func (e Encounter) clone() Encounter {
	out := e
	if e.Order != nil {
		out.Order = append([]string(nil), e.Order...)
	}
	return out
}
