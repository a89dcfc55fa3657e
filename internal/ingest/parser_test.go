package ingest

import (
	"context"
	"encoding/json"
	"testing"
)

func strPtr(s string) *string { return &s }

func textNode(id, parent, role string, parts []any, children ...string) RawNode {
	var p *string
	if parent != "" {
		p = strPtr(parent)
	}
	return RawNode{
		ID:     id,
		Parent: p,
		Message: &RawMessage{
			ID:      id,
			Author:  RawAuthor{Role: role},
			Content: RawContent{Parts: parts},
		},
		Children: children,
	}
}

func rootNode(id string, children ...string) RawNode {
	return RawNode{ID: id, Parent: nil, Children: children}
}

func TestParse_TrunkOnlyTraversal(t *testing.T) {
	// root → a → {b1, b2}; b1 → c. b2 is a regenerated side branch and
	// must never appear in the output.
	raw := RawConversation{
		ID:    "conv1",
		Title: "branching",
		Mapping: map[string]RawNode{
			"root": rootNode("root", "a"),
			"a":    textNode("a", "root", "user", []any{"question"}, "b1", "b2"),
			"b1":   textNode("b1", "a", "assistant", []any{"first answer"}, "c"),
			"b2":   textNode("b2", "a", "assistant", []any{"regenerated answer"}),
			"c":    textNode("c", "b1", "user", []any{"followup"}),
		},
	}

	conv := Parse(raw)
	if conv == nil {
		t.Fatal("Parse returned nil")
	}
	if len(conv.Messages) != 3 {
		t.Fatalf("got %d messages, want 3", len(conv.Messages))
	}
	want := []string{"question", "first answer", "followup"}
	for i, w := range want {
		if conv.Messages[i].Content != w {
			t.Errorf("message %d = %q, want %q", i, conv.Messages[i].Content, w)
		}
	}
	for _, m := range conv.Messages {
		if m.Content == "regenerated answer" {
			t.Error("side branch leaked into output")
		}
	}
}

func TestParse_SystemAndToolDropped(t *testing.T) {
	raw := RawConversation{
		ID: "conv2",
		Mapping: map[string]RawNode{
			"root": rootNode("root", "s"),
			"s":    textNode("s", "root", "system", []any{"system prompt"}, "u"),
			"u":    textNode("u", "s", "user", []any{"hi"}, "t"),
			"t":    textNode("t", "u", "tool", []any{"tool output"}, "a"),
			"a":    textNode("a", "t", "assistant", []any{"hello"}),
		},
	}

	conv := Parse(raw)
	if conv == nil {
		t.Fatal("Parse returned nil")
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(conv.Messages))
	}
	if conv.Messages[0].Author != "user" || conv.Messages[1].Author != "assistant" {
		t.Errorf("authors = %s, %s", conv.Messages[0].Author, conv.Messages[1].Author)
	}
}

func TestParse_VoicePlaceholderSubstitution(t *testing.T) {
	raw := RawConversation{
		ID: "conv3",
		Mapping: map[string]RawNode{
			"root": rootNode("root", "v"),
			"v": {
				ID:     "v",
				Parent: strPtr("root"),
				Message: &RawMessage{
					ID:       "v",
					Author:   RawAuthor{Role: "user"},
					Metadata: map[string]any{"is_voice_message": true},
					Content: RawContent{Parts: []any{
						map[string]any{"content_type": "audio_asset_pointer", "asset_pointer": "x"},
					}},
				},
			},
		},
	}

	conv := Parse(raw)
	if conv == nil {
		t.Fatal("Parse returned nil")
	}
	if len(conv.Messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(conv.Messages))
	}
	m := conv.Messages[0]
	if m.Content != "[Voice/Audio Content]" {
		t.Errorf("content = %q, want %q", m.Content, "[Voice/Audio Content]")
	}
	if !m.IsVoice {
		t.Error("IsVoice = false, want true")
	}
	if !conv.HasVoiceContent {
		t.Error("HasVoiceContent = false, want true")
	}
}

func TestParse_MalformedTreesReturnNil(t *testing.T) {
	// No mapping.
	if conv := Parse(RawConversation{ID: "x"}); conv != nil {
		t.Error("missing mapping should return nil")
	}

	// No root (every node has a parent).
	raw := RawConversation{
		ID: "y",
		Mapping: map[string]RawNode{
			"a": textNode("a", "b", "user", []any{"hi"}),
			"b": textNode("b", "a", "assistant", []any{"yo"}),
		},
	}
	if conv := Parse(raw); conv != nil {
		t.Error("rootless tree should return nil")
	}

	// Root but zero retained messages.
	raw = RawConversation{
		ID: "z",
		Mapping: map[string]RawNode{
			"root": rootNode("root", "s"),
			"s":    textNode("s", "root", "system", []any{"prompt"}),
		},
	}
	if conv := Parse(raw); conv != nil {
		t.Error("conversation with no retained messages should return nil")
	}
}

func TestParse_TimestampNormalization(t *testing.T) {
	raw := RawConversation{
		ID:         "ts",
		CreateTime: 1700000000, // seconds
		Mapping: map[string]RawNode{
			"root": rootNode("root", "a"),
			"a": {
				ID:     "a",
				Parent: strPtr("root"),
				Message: &RawMessage{
					ID:         "a",
					Author:     RawAuthor{Role: "user"},
					CreateTime: 1700000000123, // already millis
					Content:    RawContent{Parts: []any{"hi"}},
				},
			},
		},
	}

	conv := Parse(raw)
	if conv == nil {
		t.Fatal("Parse returned nil")
	}
	if conv.CreateTime != 1700000000000 {
		t.Errorf("conversation create_time = %d, want 1700000000000", conv.CreateTime)
	}
	if conv.Messages[0].Timestamp == nil || *conv.Messages[0].Timestamp != 1700000000123 {
		t.Errorf("message timestamp = %v, want 1700000000123", conv.Messages[0].Timestamp)
	}
}

func TestParse_EndToEndTranscript(t *testing.T) {
	raw := RawConversation{
		ID: "e2e",
		Mapping: map[string]RawNode{
			"root":  rootNode("root", "child"),
			"child": textNode("child", "root", "user", []any{"hello"}, "leaf"),
			"leaf": {
				ID:     "leaf",
				Parent: strPtr("child"),
				Message: &RawMessage{
					ID:     "leaf",
					Author: RawAuthor{Role: "assistant"},
					Content: RawContent{
						ContentType: "multimodal_text",
						Parts: []any{
							map[string]any{"content_type": "audio_transcription", "text": "hi there"},
						},
					},
				},
			},
		},
	}

	conv := Parse(raw)
	if conv == nil {
		t.Fatal("Parse returned nil")
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(conv.Messages))
	}
	if conv.Messages[0].Content != "hello" {
		t.Errorf("message 1 = %q", conv.Messages[0].Content)
	}
	if conv.Messages[1].Content != "hi there\n\n[Transcript]" {
		t.Errorf("message 2 = %q, want %q", conv.Messages[1].Content, "hi there\n\n[Transcript]")
	}
	if !conv.Messages[1].IsVoice {
		t.Error("message 2 IsVoice = false, want true")
	}
}

func TestParseAll_PerItemIsolation(t *testing.T) {
	raws := []RawConversation{
		{ID: "bad"}, // no mapping
		{
			ID: "good",
			Mapping: map[string]RawNode{
				"root": rootNode("root", "a"),
				"a":    textNode("a", "root", "user", []any{"hi"}),
			},
		},
	}

	out := ParseAll(raws)
	if len(out) != 1 {
		t.Fatalf("got %d conversations, want 1", len(out))
	}
	if out[0].ID != "good" {
		t.Errorf("surviving conversation = %s", out[0].ID)
	}
}

func TestParseAllParallel_MatchesSequential(t *testing.T) {
	var raws []RawConversation
	for i := 0; i < 20; i++ {
		id := string(rune('a' + i))
		raws = append(raws, RawConversation{
			ID: id,
			Mapping: map[string]RawNode{
				"root": rootNode("root", "m"),
				"m":    textNode("m", "root", "user", []any{"msg " + id}),
			},
		})
	}
	// A malformed one in the middle.
	raws[10].Mapping = nil

	seq := ParseAll(raws)
	par := ParseAllParallel(context.Background(), raws, 4)

	if len(par) != len(seq) {
		t.Fatalf("parallel = %d conversations, sequential = %d", len(par), len(seq))
	}
	for i := range seq {
		if par[i].ID != seq[i].ID {
			t.Errorf("order mismatch at %d: %s vs %s", i, par[i].ID, seq[i].ID)
		}
	}
}

func TestUnmarshalExport_ArrayAndObject(t *testing.T) {
	arr := []byte(`[{"id":"c1","mapping":{}},{"id":"c2","mapping":{}}]`)
	convs, err := UnmarshalExport(arr)
	if err != nil {
		t.Fatalf("array: %v", err)
	}
	if len(convs) != 2 {
		t.Errorf("array: got %d, want 2", len(convs))
	}

	obj := []byte(`{"id":"c3","title":"solo","mapping":{},"unknown_field":true}`)
	convs, err = UnmarshalExport(obj)
	if err != nil {
		t.Fatalf("object: %v", err)
	}
	if len(convs) != 1 || convs[0].ID != "c3" {
		t.Errorf("object: got %+v", convs)
	}
}

func TestParsedConversation_JSONRoundtrip(t *testing.T) {
	ts := int64(1700000000000)
	conv := ParsedConversation{
		ID:         "c",
		Title:      "t",
		CreateTime: ts,
		Messages: []ParsedMessage{
			{ID: "m1", Author: "user", Content: "hi", Timestamp: &ts, IsVoice: true},
		},
		HasVoiceContent: true,
	}
	data, err := json.Marshal(conv)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back ParsedConversation
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Messages[0].Content != "hi" || !back.HasVoiceContent {
		t.Errorf("roundtrip mismatch: %+v", back)
	}
}
