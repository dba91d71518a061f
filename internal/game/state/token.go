package state

// Token is a battle-map placement referencing exactly one actor. Tokens
// resolve position and targeting only; the actor remains the single source
// of truth for stats.
type Token struct {
	ID      string
	ActorID string
	X       int
	Y       int
}
