package store

import "github.com/pippoperasional-svg/LBHNUSANTARASEPAKAT/internal/models"

var transitionMap = map[string][]string{
	"call":     {models.StatusWaiting},
	"complete": {models.StatusCalled},
	"cancel":   {models.StatusWaiting},
	"recall":   {models.StatusCalled},
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
