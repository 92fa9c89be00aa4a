package chat

// Role tags who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleSystem marks local carrier turns such as the patient summary. They
	// are never sent to the completion service.
	RoleSystem Role = "system"
)

// Turn is one message unit in a conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserTurn returns a turn authored by the interviewer.
func UserTurn(content string) Turn { return Turn{Role: RoleUser, Content: content} }

// AssistantTurn returns a turn authored by the simulated patient.
func AssistantTurn(content string) Turn { return Turn{Role: RoleAssistant, Content: content} }
