package chat

import (
	"time"

	"github.com/zhouzirui/intake-sim/backend/internal/model/persona"
)

// Session captures one anonymous intake conversation. Persona and
// Instruction never change after creation; Turns is append-only apart from
// oldest-first eviction.
type Session struct {
	ID          string          `json:"id"`
	Persona     persona.Persona `json:"persona"`
	Instruction string          `json:"-"`
	Turns       []Turn          `json:"turns"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}
