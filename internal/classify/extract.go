package classify

import (
	"regexp"
	"strings"
)

// Placeholder tags emitted when a fragment degraded to a marker with no
// substantive transcript or description.
const (
	TagTranscript = "[Transcript]"
	TagVoiceAudio = "[Voice/Audio Content]"
	TagImage      = "[Image]"
	TagDocument   = "[Document/File]"
	TagUnknown    = "[Unknown Content]"
)

var multiNewlineRe = regexp.MustCompile(`\n{3,}`)

// Render converts a classified fragment into its user-visible text.
func Render(f Fragment) string {
	switch f.Kind {
	case KindText:
		return f.Text
	case KindTranscript:
		return f.Text + "\n\n" + TagTranscript
	case KindPointer:
		// Raw asset pointers are never user-visible.
		return ""
	case KindImageGen:
		desc := strings.TrimSpace(f.Prompt)
		if len(desc) > 5 && !strings.EqualFold(desc, "image") {
			if f.Size != "" {
				return "\n\n[Image Generated: " + desc + " (" + f.Size + ")]"
			}
			return "\n\n[Image Generated: " + desc + "]"
		}
		return "\n\n" + TagImage
	case KindFile:
		return "\n\n" + TagDocument
	case KindLegacyVoice:
		if f.Text != "" {
			return f.Text + "\n\n" + TagTranscript
		}
		return "\n\n" + TagVoiceAudio
	default:
		return "\n\n" + TagUnknown
	}
}

// ExtractContent classifies and renders a single raw fragment.
func ExtractContent(raw any) string {
	return normalize(Render(ParseFragment(raw)))
}

// ExtractParts renders all fragments of a message in order,
// concatenates them, collapses runs of 3+ newlines to exactly 2, and
// trims surrounding whitespace.
func ExtractParts(parts []any) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(Render(ParseFragment(p)))
	}
	return normalize(b.String())
}

func normalize(s string) string {
	return strings.TrimSpace(multiNewlineRe.ReplaceAllString(s, "\n\n"))
}
