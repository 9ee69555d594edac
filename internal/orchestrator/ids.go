package orchestrator

import "github.com/google/uuid"

func NewEventID() string {
	return "evt-" + uuid.NewString()
}
