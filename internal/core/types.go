package core

const (
	TuskName      = "TuskMem"
	TuskUserAgent = "TuskMem/0.1"
	TuskVersion   = "0.1.0"

	TuskRepositoryURL = "https://github.com/sandevgo/tuskmem"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is a single conversation turn handed to the extraction pipeline
// or exchanged with a chat completion provider.
type Message struct {
	ID      string `json:"id,omitempty"`
	Role    string `json:"role"`
	Content string `json:"content"`
}
