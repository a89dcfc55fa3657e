package ingest

import (
	"log/slog"
	"math"
	"strings"

	"github.com/nextlevelbuilder/memclaw/internal/classify"
)

// epochMillisFloor: epoch values below this are seconds, not millis.
const epochMillisFloor = 1e12

// arena indexes the conversation graph by position instead of chasing
// node IDs through the mapping on every hop. Traversal is iterative so
// arbitrarily deep exports can't blow the stack.
type arena struct {
	nodes    []RawNode
	children [][]int
	root     int
}

func buildArena(raw RawConversation) (*arena, bool) {
	if len(raw.Mapping) == 0 {
		return nil, false
	}

	a := &arena{root: -1}
	index := make(map[string]int, len(raw.Mapping))
	for id, node := range raw.Mapping {
		if node.ID == "" {
			node.ID = id
		}
		index[id] = len(a.nodes)
		a.nodes = append(a.nodes, node)
	}

	a.children = make([][]int, len(a.nodes))
	for i, node := range a.nodes {
		for _, childID := range node.Children {
			if ci, ok := index[childID]; ok {
				a.children[i] = append(a.children[i], ci)
			}
		}
		if node.Parent == nil {
			if a.root != -1 {
				// Two roots — the graph is corrupt.
				return nil, false
			}
			a.root = i
		}
	}

	if a.root == -1 {
		return nil, false
	}
	return a, true
}

// nextTrunkChild returns the first child carrying message data, or -1.
// Side branches (regenerated turns) are simply never visited.
func (a *arena) nextTrunkChild(idx int) int {
	for _, ci := range a.children[idx] {
		if a.nodes[ci].Message != nil {
			return ci
		}
	}
	return -1
}

// Parse linearizes one raw conversation tree along its main trunk.
// Returns nil when the tree is malformed (no mapping, no root) or when
// no messages survive filtering — an empty conversation is dropped, not
// emitted.
func Parse(raw RawConversation) *ParsedConversation {
	a, ok := buildArena(raw)
	if !ok {
		slog.Debug("ingest.malformed_tree", "conversation_id", raw.ID)
		return nil
	}

	conv := &ParsedConversation{
		ID:         raw.ID,
		Title:      raw.Title,
		CreateTime: normalizeEpochMillis(raw.CreateTime),
	}

	for idx := a.root; idx != -1; idx = a.nextTrunkChild(idx) {
		m := a.nodes[idx].Message
		if m == nil {
			continue
		}
		if pm, ok := parseMessage(m); ok {
			conv.Messages = append(conv.Messages, pm)
			conv.HasVoiceContent = conv.HasVoiceContent || pm.IsVoice
			conv.HasImageContent = conv.HasImageContent || pm.IsImage
		}
	}

	if len(conv.Messages) == 0 {
		return nil
	}
	return conv
}

// parseMessage filters and extracts one raw message. System and tool
// messages never survive; neither do messages with nothing visible to
// say unless they are voice messages (which get a placeholder).
func parseMessage(m *RawMessage) (ParsedMessage, bool) {
	role := m.Author.Role
	if role == "system" || role == "tool" {
		return ParsedMessage{}, false
	}
	if len(m.Content.Parts) == 0 {
		return ParsedMessage{}, false
	}

	cm := classify.Message{
		ID:             m.ID,
		Role:           role,
		ContentType:    m.Content.ContentType,
		Parts:          m.Content.Parts,
		Metadata:       m.Metadata,
		AuthorMetadata: m.Author.Metadata,
		CreateTime:     m.CreateTime,
	}

	content := classify.ExtractParts(m.Content.Parts)
	isVoice := classify.IsVoiceMessage(cm)
	isImage := classify.IsImageMessage(cm) || strings.Contains(content, "[Image")

	// Voice message that produced no text at all still shows up, as a
	// placeholder the UI can flag.
	if isVoice && content == "" {
		content = classify.TagVoiceAudio
	}

	if content == "" && !isVoice {
		return ParsedMessage{}, false
	}

	pm := ParsedMessage{
		ID:       m.ID,
		Author:   role,
		Content:  content,
		Metadata: m.Metadata,
		IsVoice:  isVoice,
		IsImage:  isImage,
	}
	if ts := normalizeEpochMillis(m.CreateTime); ts != 0 {
		pm.Timestamp = &ts
	}
	return pm, true
}

// normalizeEpochMillis converts an epoch timestamp that may arrive in
// seconds or milliseconds to milliseconds.
func normalizeEpochMillis(v float64) int64 {
	if v == 0 || math.IsNaN(v) {
		return 0
	}
	if v < epochMillisFloor {
		v *= 1000
	}
	return int64(v)
}

// ParseAll linearizes a batch. A malformed individual tree is skipped,
// never fatal to the batch.
func ParseAll(raws []RawConversation) []ParsedConversation {
	out := make([]ParsedConversation, 0, len(raws))
	for _, raw := range raws {
		if conv := Parse(raw); conv != nil {
			out = append(out, *conv)
		} else {
			slog.Debug("ingest.conversation_skipped", "conversation_id", raw.ID)
		}
	}
	return out
}
