// Package classify decides what kind of content a raw exported message
// fragment represents — plain text, voice transcript, generated image,
// file attachment — and renders it into the canonical text form used by
// the rest of the ingestion pipeline.
//
// Export formats are wildly inconsistent across client versions, so the
// classifier is built as an ordered rule cascade: each rule is a
// (match, build) pair evaluated top to bottom, first match wins. The
// precedence (explicit before heuristic, image before voice) lives in
// the rule order, not scattered across nested conditionals.
package classify

import (
	"fmt"
	"strings"
)

// FragmentKind tags the closed set of fragment variants the pipeline
// understands. Raw duck-typed fragments are converted exactly once, at
// the boundary, by ParseFragment.
type FragmentKind int

const (
	KindText FragmentKind = iota
	KindTranscript  // voice audio with transcription text
	KindPointer     // audio/video asset pointer, not user-visible
	KindImageGen    // generated image, optionally with a description
	KindFile        // document or file attachment
	KindLegacyVoice // old-style voice message, transcript may be empty
	KindUnknown
)

// Fragment is the classified form of one element of a message's
// content parts array.
type Fragment struct {
	Kind    FragmentKind
	Text    string   // KindText, KindTranscript, KindLegacyVoice
	Prompt  string   // KindImageGen description (revised_prompt or prompt)
	Size    string   // KindImageGen dimensions, e.g. "1024x1024"
	RawKeys []string // KindUnknown: the fragment's own keys, for diagnostics
}

// rawFragment wraps a decoded JSON fragment object with typed accessors
// so rules don't repeat type assertions.
type rawFragment map[string]any

func (r rawFragment) str(key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

func (r rawFragment) has(key string) bool {
	_, ok := r[key]
	return ok
}

// typeOrContentType returns whichever of "type"/"content_type" is set,
// preferring content_type (the newer field).
func (r rawFragment) typeOrContentType() string {
	if ct := r.str("content_type"); ct != "" {
		return ct
	}
	return r.str("type")
}

func (r rawFragment) keys() []string {
	out := make([]string, 0, len(r))
	for k := range r {
		out = append(out, k)
	}
	return out
}

// Keyword sets for the last-resort heuristic. Image keywords win over
// voice keywords when a fragment matches both.
var (
	imageKeywords = []string{"image", "picture", "photo", "prompt", "size", "revised_prompt", "dalle", "image_url"}
	voiceKeywords = []string{"transcript", "audio", "voice", "speech", "recording"}
)

// fragmentRule is one step of the classification cascade.
type fragmentRule struct {
	name  string
	match func(r rawFragment) bool
	build func(r rawFragment) Fragment
}

// fragmentRules is evaluated in order; the first matching rule decides
// the fragment's variant. Order is load-bearing.
var fragmentRules = []fragmentRule{
	{
		name: "audio_transcription",
		match: func(r rawFragment) bool {
			return r.str("content_type") == "audio_transcription" && r.str("text") != ""
		},
		build: func(r rawFragment) Fragment {
			return Fragment{Kind: KindTranscript, Text: r.str("text")}
		},
	},
	{
		name: "asset_pointer",
		match: func(r rawFragment) bool {
			ct := r.str("content_type")
			return ct == "audio_asset_pointer" ||
				ct == "real_time_user_audio_video_asset_pointer" ||
				r.has("audio_asset_pointer") || r.has("asset_pointer")
		},
		build: func(r rawFragment) Fragment {
			return Fragment{Kind: KindPointer}
		},
	},
	{
		name: "legacy_scalar",
		match: func(r rawFragment) bool {
			return r.str("text") != "" || r.str("transcript") != "" || r.str("content") != ""
		},
		build: func(r rawFragment) Fragment {
			if t := r.str("text"); t != "" {
				return Fragment{Kind: KindText, Text: t}
			}
			if t := r.str("transcript"); t != "" {
				return Fragment{Kind: KindTranscript, Text: t}
			}
			return Fragment{Kind: KindText, Text: r.str("content")}
		},
	},
	{
		name: "image_generation",
		match: func(r rawFragment) bool {
			if r.typeOrContentType() == "image" {
				return true
			}
			return r.has("image_url") || r.has("prompt") || r.has("size") || r.has("revised_prompt")
		},
		build: buildImageGen,
	},
	{
		name: "file_document",
		match: func(r rawFragment) bool {
			return r.typeOrContentType() == "file" || r.has("document")
		},
		build: func(r rawFragment) Fragment {
			return Fragment{Kind: KindFile}
		},
	},
	{
		name: "legacy_voice",
		match: func(r rawFragment) bool {
			t := r.typeOrContentType()
			return t == "voice" || t == "audio" || r.has("transcript") || r.has("audio")
		},
		build: func(r rawFragment) Fragment {
			return Fragment{Kind: KindLegacyVoice, Text: r.str("transcript")}
		},
	},
	{
		name:  "keyword_heuristic",
		match: matchesAnyKeyword,
		build: func(r rawFragment) Fragment {
			// Image keywords take priority over voice keywords.
			if keysMatchAny(r, imageKeywords) {
				return buildImageGen(r)
			}
			return Fragment{Kind: KindLegacyVoice, Text: r.str("transcript")}
		},
	},
}

func buildImageGen(r rawFragment) Fragment {
	desc := r.str("revised_prompt")
	if desc == "" {
		desc = r.str("prompt")
	}
	return Fragment{Kind: KindImageGen, Prompt: desc, Size: r.str("size")}
}

func matchesAnyKeyword(r rawFragment) bool {
	return keysMatchAny(r, imageKeywords) || keysMatchAny(r, voiceKeywords)
}

// keysMatchAny reports whether any of the fragment's own keys contains
// one of the keywords (case-insensitive substring match).
func keysMatchAny(r rawFragment, keywords []string) bool {
	for k := range r {
		lk := strings.ToLower(k)
		for _, kw := range keywords {
			if strings.Contains(lk, kw) {
				return true
			}
		}
	}
	return false
}

// ParseFragment converts one raw content part — a plain string or a
// decoded JSON object — into its classified Fragment. This is the only
// place that probes raw keys; everything downstream switches on Kind.
func ParseFragment(raw any) Fragment {
	switch v := raw.(type) {
	case nil:
		return Fragment{Kind: KindText, Text: ""}
	case string:
		return Fragment{Kind: KindText, Text: v}
	case map[string]any:
		r := rawFragment(v)
		for _, rule := range fragmentRules {
			if rule.match(r) {
				return rule.build(r)
			}
		}
		return Fragment{Kind: KindUnknown, RawKeys: r.keys()}
	default:
		// Numbers, bools, arrays — render as text rather than dropping.
		return Fragment{Kind: KindText, Text: fmt.Sprintf("%v", v)}
	}
}
