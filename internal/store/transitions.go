package store

import "github.com/Drax929/orderly-patient-nexus/internal/models"

// transitionMap pins the forward-only lifecycle: a visit can never move
// backward or skip in_progress.
var transitionMap = map[string][]string{
	"call_next": {models.StatusWaiting},
	"complete":  {models.StatusInProgress},
}

func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}
