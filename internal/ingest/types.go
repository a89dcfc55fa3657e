// Package ingest reconstructs linear conversations from branching chat
// export trees. Exports store regenerated turns as sibling branches; the
// parser follows only the main trunk (first content-bearing child at
// every step) so the result reads as one chronological thread.
package ingest

import "encoding/json"

// RawConversation is one conversation of an export file. Unknown extra
// fields are tolerated and ignored.
type RawConversation struct {
	ID         string             `json:"id"`
	Title      string             `json:"title"`
	CreateTime float64            `json:"create_time"`
	Mapping    map[string]RawNode `json:"mapping"`
}

// RawNode is one node of the conversation graph. The root has a nil
// parent; nodes without message data are structural only.
type RawNode struct {
	ID       string      `json:"id"`
	Message  *RawMessage `json:"message"`
	Parent   *string     `json:"parent"`
	Children []string    `json:"children"`
}

// RawMessage is the message payload of a content-bearing node.
type RawMessage struct {
	ID         string         `json:"id"`
	Author     RawAuthor      `json:"author"`
	CreateTime float64        `json:"create_time"`
	Content    RawContent     `json:"content"`
	Metadata   map[string]any `json:"metadata"`
}

// RawAuthor identifies who produced a message.
type RawAuthor struct {
	Role     string         `json:"role"`
	Metadata map[string]any `json:"metadata"`
}

// RawContent holds the message's fragments.
type RawContent struct {
	ContentType string `json:"content_type"`
	Parts       []any  `json:"parts"`
}

// ParsedMessage is one retained message of the linearized conversation.
// Only user/assistant messages with visible content (or voice messages)
// survive parsing.
type ParsedMessage struct {
	ID        string         `json:"id"`
	Author    string         `json:"author"`
	Content   string         `json:"content"`
	Timestamp *int64         `json:"timestamp,omitempty"` // epoch ms
	Metadata  map[string]any `json:"metadata,omitempty"`
	IsVoice   bool           `json:"is_voice"`
	IsImage   bool           `json:"is_image"`
}

// ParsedConversation is the linearized, chronologically ordered result
// handed to the enrichment pipeline. JSON-serializable by contract.
type ParsedConversation struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	CreateTime      int64           `json:"create_time"` // epoch ms
	Messages        []ParsedMessage `json:"messages"`
	HasVoiceContent bool            `json:"has_voice_content"`
	HasImageContent bool            `json:"has_image_content"`
}

// MessageCount sums retained messages across conversations.
func MessageCount(convs []ParsedConversation) int {
	n := 0
	for _, c := range convs {
		n += len(c.Messages)
	}
	return n
}

// UnmarshalExport decodes an export document: either a JSON array of
// conversations or a single conversation object.
func UnmarshalExport(data []byte) ([]RawConversation, error) {
	var many []RawConversation
	if err := json.Unmarshal(data, &many); err == nil {
		return many, nil
	}
	var one RawConversation
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, err
	}
	return []RawConversation{one}, nil
}
