package session

import (
	"math"

	"github.com/cory-johannsen/arrowgame/internal/protocol"
)

// ResolveWinner returns the player with the highest health. Ties go to the
// lowest PlayerID; NaN health never wins.
//
// Postcondition: Returns protocol.Unassigned if entries holds no comparable health.
func ResolveWinner(entries []protocol.HealthEntry) protocol.PlayerID {
	winner := protocol.Unassigned
	var best float32
	found := false
	for _, e := range entries {
		if math.IsNaN(float64(e.Health)) {
			continue
		}
		if !found || e.Health > best || (e.Health == best && e.PlayerID < winner) {
			winner, best, found = e.PlayerID, e.Health, true
		}
	}
	return winner
}
