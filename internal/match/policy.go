package match

import "fmt"

// TimeoutPolicy decides what a timed out move request costs the player.
type TimeoutPolicy string

const (
	// TimeoutForfeitMatch ends the match on the first timeout.
	TimeoutForfeitMatch TimeoutPolicy = "forfeit-match"
	// TimeoutForfeitMove plays the rules' default move instead, for as long
	// as the player's container tolerates timeouts.
	TimeoutForfeitMove TimeoutPolicy = "forfeit-move"
)

// ParseTimeoutPolicy parses a policy name. Empty selects forfeit-match.
func ParseTimeoutPolicy(value string) (TimeoutPolicy, error) {
	switch TimeoutPolicy(value) {
	case "", TimeoutForfeitMatch:
		return TimeoutForfeitMatch, nil
	case TimeoutForfeitMove:
		return TimeoutForfeitMove, nil
	default:
		return "", fmt.Errorf("unknown timeout policy %q", value)
	}
}
