package queue

import "hqms/queue-service/internal/models"

var transitionMap = map[string][]models.Status{
	"call":     {models.StatusWaiting},
	"start":    {models.StatusCalled},
	"complete": {models.StatusInProgress},
	"cancel":   {models.StatusWaiting},
	"no_show":  {models.StatusCalled},
}

func ValidTransition(action string, from models.Status) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == from {
			return true
		}
	}
	return false
}
