package classify

import (
	"strings"
	"testing"
)

func TestExtractContent_PlainString(t *testing.T) {
	if got := ExtractContent("hello world"); got != "hello world" {
		t.Errorf("plain string = %q, want %q", got, "hello world")
	}
}

func TestExtractContent_AudioTranscription(t *testing.T) {
	frag := map[string]any{"content_type": "audio_transcription", "text": "hi there"}
	got := ExtractContent(frag)
	if got != "hi there\n\n[Transcript]" {
		t.Errorf("transcription = %q", got)
	}
}

func TestExtractContent_AssetPointerDiscarded(t *testing.T) {
	for _, ct := range []string{"audio_asset_pointer", "real_time_user_audio_video_asset_pointer"} {
		frag := map[string]any{"content_type": ct, "asset_pointer": "file-service://abc"}
		if got := ExtractContent(frag); got != "" {
			t.Errorf("pointer %s = %q, want empty", ct, got)
		}
	}
}

func TestExtractContent_LegacyScalarOrder(t *testing.T) {
	// "text" wins over "transcript" and "content".
	frag := map[string]any{"text": "primary", "transcript": "secondary", "content": "tertiary"}
	if got := ExtractContent(frag); got != "primary" {
		t.Errorf("legacy scalar = %q, want %q", got, "primary")
	}

	// "transcript" gets the [Transcript] suffix.
	frag = map[string]any{"transcript": "spoken words"}
	if got := ExtractContent(frag); got != "spoken words\n\n[Transcript]" {
		t.Errorf("transcript scalar = %q", got)
	}
}

func TestExtractContent_ImageGeneration(t *testing.T) {
	frag := map[string]any{"content_type": "image", "revised_prompt": "a red fox in snow", "size": "1024x1024"}
	got := ExtractContent(frag)
	want := "[Image Generated: a red fox in snow (1024x1024)]"
	if got != want {
		t.Errorf("image gen = %q, want %q", got, want)
	}

	// Description too short → bare placeholder.
	frag = map[string]any{"content_type": "image", "prompt": "img"}
	if got := ExtractContent(frag); got != TagImage {
		t.Errorf("short prompt = %q, want %q", got, TagImage)
	}

	// Literal "image" description → bare placeholder.
	frag = map[string]any{"content_type": "image", "revised_prompt": "image"}
	if got := ExtractContent(frag); got != TagImage {
		t.Errorf("literal image prompt = %q, want %q", got, TagImage)
	}
}

func TestExtractContent_ImagePriorityOverVoice(t *testing.T) {
	// A fragment with both prompt and transcript keys must classify as
	// image, never voice.
	frag := map[string]any{"prompt": "sunset over mountains", "transcript": "describe a sunset"}
	f := ParseFragment(frag)
	if f.Kind != KindImageGen {
		t.Fatalf("kind = %v, want KindImageGen", f.Kind)
	}
	got := ExtractContent(frag)
	if !strings.Contains(got, "[Image Generated:") {
		t.Errorf("mixed keys = %q, want image tag", got)
	}
	if strings.Contains(got, "[Transcript]") {
		t.Errorf("mixed keys = %q, must not contain transcript tag", got)
	}
}

func TestExtractContent_FileDocument(t *testing.T) {
	frag := map[string]any{"type": "file", "name": "report.pdf"}
	if got := ExtractContent(frag); got != TagDocument {
		t.Errorf("file = %q, want %q", got, TagDocument)
	}

	frag = map[string]any{"document": map[string]any{"id": "doc1"}}
	if got := ExtractContent(frag); got != TagDocument {
		t.Errorf("document key = %q, want %q", got, TagDocument)
	}
}

func TestExtractContent_LegacyVoicePlaceholder(t *testing.T) {
	frag := map[string]any{"type": "voice"}
	if got := ExtractContent(frag); got != TagVoiceAudio {
		t.Errorf("empty voice = %q, want %q", got, TagVoiceAudio)
	}
}

func TestExtractContent_UnknownFallback(t *testing.T) {
	frag := map[string]any{"mystery_field": 42}
	if got := ExtractContent(frag); got != TagUnknown {
		t.Errorf("unknown = %q, want %q", got, TagUnknown)
	}
}

func TestExtractParts_NewlineCollapse(t *testing.T) {
	parts := []any{"first\n\n\n\n", "second"}
	got := ExtractParts(parts)
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("result still has 3+ newlines: %q", got)
	}
	if got != "first\n\nsecond" {
		t.Errorf("collapsed = %q, want %q", got, "first\n\nsecond")
	}
}

func TestExtractParts_TrimsWhitespace(t *testing.T) {
	got := ExtractParts([]any{"  \n\nhello\n\n  "})
	if got != "hello" {
		t.Errorf("trimmed = %q, want %q", got, "hello")
	}
}

func TestIsVoiceMessage_ExplicitFlag(t *testing.T) {
	m := Message{Metadata: map[string]any{"voice_mode_message": true}}
	if !IsVoiceMessage(m) {
		t.Error("voice_mode_message flag not detected")
	}
}

func TestIsVoiceMessage_MultimodalTranscription(t *testing.T) {
	m := Message{
		ContentType: "multimodal_text",
		Parts: []any{
			map[string]any{"content_type": "audio_transcription", "text": "hello"},
		},
	}
	if !IsVoiceMessage(m) {
		t.Error("multimodal audio_transcription not detected")
	}
}

func TestIsVoiceMessage_ImageKeysSuppressVoice(t *testing.T) {
	// A fragment with transcript AND prompt keys is image-shaped; the
	// voice heuristic must not fire on it.
	m := Message{
		Parts: []any{
			map[string]any{"transcript": "something", "prompt": "a picture of a dog"},
		},
	}
	if IsVoiceMessage(m) {
		t.Error("image-shaped fragment misclassified as voice")
	}
}

func TestIsVoiceMessage_FragmentVoiceKey(t *testing.T) {
	m := Message{Parts: []any{map[string]any{"audio_url": "https://example.com/a.mp3"}}}
	if !IsVoiceMessage(m) {
		t.Error("audio_url fragment not detected as voice")
	}
}

func TestIsImageMessage_ExplicitOnly(t *testing.T) {
	// Content-based image signals must NOT trigger the predicate.
	m := Message{Parts: []any{map[string]any{"prompt": "a castle on a hill at dusk"}}}
	if IsImageMessage(m) {
		t.Error("content-based signal must not mark message as image")
	}

	m = Message{Metadata: map[string]any{"is_image": true}}
	if !IsImageMessage(m) {
		t.Error("is_image flag not detected")
	}

	m = Message{Metadata: map[string]any{"message_type": "image"}}
	if !IsImageMessage(m) {
		t.Error("message_type=image not detected")
	}
}

func TestDetectContentTypes_Code(t *testing.T) {
	msgs := []Message{
		{Parts: []any{"Here is the fix:\n```go\nfunc main() {}\n```"}},
	}
	rep := DetectContentTypes(msgs)
	if !rep.HasCode {
		t.Error("fenced go block not detected as code")
	}

	msgs = []Message{{Parts: []any{"<div class=\"x\">content</div>"}}}
	rep = DetectContentTypes(msgs)
	if !rep.HasCode {
		t.Error("html markup not detected as code")
	}

	msgs = []Message{{Parts: []any{"just prose, no markup at all"}}}
	rep = DetectContentTypes(msgs)
	if rep.HasCode {
		t.Error("prose misdetected as code")
	}
}

func TestDetectContentTypes_ProblematicVoice(t *testing.T) {
	// Voice message whose only fragment degraded to a placeholder.
	msgs := []Message{
		{
			Metadata: map[string]any{"is_voice_message": true},
			Parts:    []any{map[string]any{"type": "voice"}},
		},
	}
	rep := DetectContentTypes(msgs)
	if !rep.HasVoiceContent {
		t.Error("voice content not reported")
	}
	if !rep.HasProblematicVoice {
		t.Error("placeholder-only voice not reported as problematic")
	}

	// With a transcript it's not problematic.
	msgs = []Message{
		{Parts: []any{map[string]any{"content_type": "audio_transcription", "text": "real words"}}},
	}
	rep = DetectContentTypes(msgs)
	if !rep.HasVoiceContent {
		t.Error("transcription voice content not reported")
	}
	if rep.HasProblematicVoice {
		t.Error("transcribed voice wrongly reported as problematic")
	}
}

func TestDetectContentTypes_ImageGeneration(t *testing.T) {
	msgs := []Message{
		{Parts: []any{map[string]any{"content_type": "image", "revised_prompt": "a lighthouse in a storm"}}},
	}
	rep := DetectContentTypes(msgs)
	if !rep.HasImageGeneration || !rep.HasImages {
		t.Errorf("image generation not reported: %+v", rep)
	}
	if rep.HasProblematicImages {
		t.Error("described image wrongly problematic")
	}
}

func TestDetectContentTypes_MixedContent(t *testing.T) {
	// One fragment with transcript text that also contains a code fence:
	// text + voice + code in a single fragment.
	msgs := []Message{
		{Parts: []any{map[string]any{
			"content_type": "audio_transcription",
			"text":         "run this\n```python\nprint(1)\n```",
		}}},
	}
	rep := DetectContentTypes(msgs)
	if !rep.HasMixedContent {
		t.Error("mixed content not detected")
	}
}
