package classify

import (
	"regexp"
	"strings"
)

// ContentReport aggregates per-message content signals across one
// conversation. "Problematic" voice/image content degraded to a bare
// placeholder tag with no transcript or description text — the import
// UI surfaces these so users know what didn't survive the export.
type ContentReport struct {
	HasVoiceContent      bool `json:"has_voice_content"`
	HasImages            bool `json:"has_images"`
	HasCode              bool `json:"has_code"`
	HasProblematicVoice  bool `json:"has_problematic_voice"`
	HasProblematicImages bool `json:"has_problematic_images"`
	HasImageGeneration   bool `json:"has_image_generation"`
	HasMixedContent      bool `json:"has_mixed_content"`
}

var (
	// Fenced code blocks with a recognized language tag.
	fencedCodeRe = regexp.MustCompile("(?m)^```(go|python|py|javascript|js|typescript|ts|rust|java|c|cpp|csharp|ruby|php|swift|kotlin|sql|bash|sh|shell|html|css|json|yaml|xml)\\b")
	// Generic HTML/XML-like markup containing a closing tag.
	markupRe = regexp.MustCompile(`(?s)<([a-zA-Z][a-zA-Z0-9]*)[^>]*>.*</([a-zA-Z][a-zA-Z0-9]*)>`)
)

// DetectContentTypes scans every message of a conversation and reports
// which content categories occur.
func DetectContentTypes(messages []Message) ContentReport {
	var rep ContentReport

	for _, m := range messages {
		voice := IsVoiceMessage(m)
		image := IsImageMessage(m)

		var hasTranscriptText, hasImageDesc bool

		for _, p := range m.Parts {
			f := ParseFragment(p)
			text := Render(f)

			var sawText, sawVoice, sawImage, sawCode bool

			switch f.Kind {
			case KindText:
				sawText = f.Text != ""
			case KindTranscript:
				voice = true
				hasTranscriptText = f.Text != ""
				sawVoice = true
			case KindLegacyVoice:
				voice = true
				sawVoice = true
				if f.Text != "" {
					hasTranscriptText = true
				}
			case KindImageGen:
				image = true
				rep.HasImageGeneration = true
				sawImage = true
				if !strings.Contains(text, TagImage) {
					hasImageDesc = true
				}
			case KindPointer:
				voice = true
				sawVoice = true
			}

			if hasCodeContent(text) {
				rep.HasCode = true
				sawCode = true
			}

			if countSignals(sawText, sawVoice, sawImage, sawCode) >= 2 {
				rep.HasMixedContent = true
			}
		}

		if voice {
			rep.HasVoiceContent = true
			if !hasTranscriptText {
				rep.HasProblematicVoice = true
			}
		}
		if image || rep.HasImageGeneration {
			rep.HasImages = true
		}
		if image && !hasImageDesc {
			// Flagged as image but nothing rendered beyond a placeholder.
			if !messageHasImageDescription(m) {
				rep.HasProblematicImages = true
			}
		}
	}

	return rep
}

func messageHasImageDescription(m Message) bool {
	for _, p := range m.Parts {
		f := ParseFragment(p)
		if f.Kind == KindImageGen {
			desc := strings.TrimSpace(f.Prompt)
			if len(desc) > 5 && !strings.EqualFold(desc, "image") {
				return true
			}
		}
	}
	return false
}

func hasCodeContent(text string) bool {
	if fencedCodeRe.MatchString(text) {
		return true
	}
	return markupRe.MatchString(text)
}

func countSignals(flags ...bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}
