package classify

// Message is the raw exported message shape the classifier inspects.
// The tree parser builds one per content-bearing node; only the fields
// the classification rules look at are carried over.
type Message struct {
	ID             string
	Role           string
	ContentType    string // message-level content.content_type
	Parts          []any  // raw fragments, classified lazily
	Metadata       map[string]any
	AuthorMetadata map[string]any
	CreateTime     float64 // epoch, seconds or milliseconds
}

// Keys that mark a fragment as voice-only vs image/file-only for the
// ambiguity check in IsVoiceMessage. A fragment carrying both kinds is
// NOT treated as voice (image and file signals win).
var (
	voiceOnlyKeys     = []string{"transcript", "audio", "voice", "audio_url", "voice_message_url"}
	voiceOnlyTypes    = map[string]bool{"voice": true, "audio": true}
	imageFileTypes    = map[string]bool{"image": true, "file": true}
	imageFileOnlyKeys = []string{"document", "image", "prompt", "size"}
)

// IsVoiceMessage reports whether the message originated from voice
// input. Checks are ordered from the most explicit signal (voice-mode
// flag set by the client) down to key-shape heuristics on fragments.
func IsVoiceMessage(m Message) bool {
	// 1. Explicit voice-mode flag.
	if truthy(m.Metadata["voice_mode_message"]) {
		return true
	}

	// 2. Multimodal content with an audio transcription fragment.
	if m.ContentType == "multimodal_text" {
		for _, p := range m.Parts {
			if r, ok := p.(map[string]any); ok && rawFragment(r).str("content_type") == "audio_transcription" {
				return true
			}
		}
	}

	// 3. Metadata voice markers.
	if truthy(m.Metadata["is_voice_message"]) || truthy(m.Metadata["audio_content"]) ||
		truthy(m.Metadata["voice_content"]) || truthy(m.Metadata["transcript"]) {
		return true
	}
	if mt, ok := m.Metadata["message_type"].(string); ok && voiceOnlyTypes[mt] {
		return true
	}

	// 4. Legacy message-level content type.
	if voiceOnlyTypes[m.ContentType] {
		return true
	}

	// 5. Fragment shape: a voice-only key with no competing image/file key.
	for _, p := range m.Parts {
		r, ok := p.(map[string]any)
		if !ok {
			continue
		}
		rf := rawFragment(r)
		if fragmentIsVoiceShaped(rf) && !fragmentIsImageShaped(rf) {
			return true
		}
	}

	// 6. Author metadata voice-mode signal.
	if truthy(m.AuthorMetadata["voice_mode_message"]) || truthy(m.AuthorMetadata["is_voice_message"]) {
		return true
	}

	return false
}

func fragmentIsVoiceShaped(r rawFragment) bool {
	if voiceOnlyTypes[r.typeOrContentType()] {
		return true
	}
	for _, k := range voiceOnlyKeys {
		if r.has(k) {
			return true
		}
	}
	return false
}

func fragmentIsImageShaped(r rawFragment) bool {
	if imageFileTypes[r.typeOrContentType()] {
		return true
	}
	for _, k := range imageFileOnlyKeys {
		if r.has(k) {
			return true
		}
	}
	return false
}

// IsImageMessage reports whether the message is explicitly flagged as an
// image. Unlike voice detection this never inspects content: fragments
// that render image tags are annotated upstream by the parser, so only
// metadata flags count here.
func IsImageMessage(m Message) bool {
	if truthy(m.Metadata["is_image"]) {
		return true
	}
	if t, ok := m.Metadata["type"].(string); ok && t == "image" {
		return true
	}
	if mt, ok := m.Metadata["message_type"].(string); ok && mt == "image" {
		return true
	}
	return false
}

// truthy treats boolean true and any non-empty string as a set flag.
// Export metadata is not consistent about which one it uses.
func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	default:
		return false
	}
}
