package memory

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/nextlevelbuilder/memclaw/internal/store"
	"github.com/nextlevelbuilder/memclaw/internal/store/sqlite"
)

// stubProvider maps exact texts to fixed vectors so similarity is
// controllable from the test.
type stubProvider struct {
	vectors    map[string][]float32
	fail       bool
	calls      int
	batchCalls int
	lastText   string
}

func (p *stubProvider) Name() string    { return "stub" }
func (p *stubProvider) Model() string   { return "stub-1" }
func (p *stubProvider) Dimensions() int { return 3 }

func (p *stubProvider) Embed(_ context.Context, text string) ([]float32, error) {
	p.calls++
	p.lastText = text
	if p.fail {
		return nil, errors.New("provider down")
	}
	if v, ok := p.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

func (p *stubProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.batchCalls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func newTestService(t *testing.T, provider *stubProvider) (*Service, store.MemoryStore) {
	t.Helper()
	st, err := sqlite.New(filepath.Join(t.TempDir(), "mem.db"))
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewService(st, provider, nil, DefaultConfig()), st
}

func TestCreate_StoresEntryWithEmbedding(t *testing.T) {
	p := &stubProvider{}
	svc, _ := newTestService(t, p)

	entry, err := svc.Create(context.Background(), CreateInput{
		Content: "user prefers dark roast coffee",
		Tags:    []string{"preferences"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if entry.ID == "" {
		t.Error("entry missing id")
	}
	if len(entry.Embedding) != 3 {
		t.Errorf("embedding = %v", entry.Embedding)
	}

	got, err := svc.Get(context.Background(), entry.ID)
	if err != nil || got == nil {
		t.Fatalf("Get: %v, %v", got, err)
	}
	if got.Degraded {
		t.Error("entry with a real embedding marked degraded")
	}
}

func TestCreate_EmbedsContentNotSummary(t *testing.T) {
	p := &stubProvider{}
	svc, _ := newTestService(t, p)

	_, err := svc.Create(context.Background(), CreateInput{
		Content: "the user drinks a flat white every morning before work",
		Summary: "short summary",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.lastText != "the user drinks a flat white every morning before work" {
		t.Errorf("embedded %q, want the content", p.lastText)
	}
}

func TestEmbedText_SummaryOnlyWhenContentBlank(t *testing.T) {
	e := &store.MemoryEntry{Content: "content", Summary: "summary"}
	if got := embedText(e); got != "content" {
		t.Errorf("embedText = %q, want content", got)
	}
	e.Content = ""
	if got := embedText(e); got != "summary" {
		t.Errorf("embedText = %q, want summary fallback", got)
	}
}

func TestCreate_ProviderFailureStillCreates(t *testing.T) {
	p := &stubProvider{fail: true}
	svc, st := newTestService(t, p)
	ctx := context.Background()

	entry, err := svc.Create(ctx, CreateInput{Content: "fact while provider is down"})
	if err != nil {
		t.Fatalf("Create should not fail on provider outage: %v", err)
	}
	if len(entry.Embedding) != 0 {
		t.Errorf("embedding should be absent, got %v", entry.Embedding)
	}
	if !entry.Degraded {
		t.Error("vector-less entry not marked degraded")
	}
	if got, _ := svc.Get(ctx, entry.ID); got == nil || !got.Degraded {
		t.Error("degraded flag not persisted")
	}

	// The entry shows up in the backfill queue.
	ids, err := st.MissingEmbeddings(ctx, 10)
	if err != nil {
		t.Fatalf("MissingEmbeddings: %v", err)
	}
	if len(ids) != 1 || ids[0] != entry.ID {
		t.Errorf("backfill queue = %v", ids)
	}

	// Once the provider recovers, Backfill fills the vector.
	p.fail = false
	n, err := svc.Backfill(ctx)
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if n != 1 {
		t.Errorf("backfilled = %d, want 1", n)
	}
	got, _ := svc.Get(ctx, entry.ID)
	if len(got.Embedding) != 3 {
		t.Errorf("embedding after backfill = %v", got.Embedding)
	}
	if got.Degraded {
		t.Error("degraded flag not cleared by backfill")
	}
}

func TestBackfill_UsesBatchEmbedding(t *testing.T) {
	p := &stubProvider{fail: true}
	svc, _ := newTestService(t, p)
	ctx := context.Background()

	for _, content := range []string{"fact one", "fact two", "fact three"} {
		if _, err := svc.Create(ctx, CreateInput{Content: content}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	p.fail = false
	p.batchCalls = 0
	n, err := svc.Backfill(ctx)
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if n != 3 {
		t.Errorf("backfilled = %d, want 3", n)
	}
	// One batch request for the whole pass, not one call per entry.
	if p.batchCalls != 1 {
		t.Errorf("batch calls = %d, want 1", p.batchCalls)
	}
}

func TestBackfillLoop_StopsOnCancel(t *testing.T) {
	p := &stubProvider{fail: true}
	svc, _ := newTestService(t, p)
	ctx := context.Background()

	entry, err := svc.Create(ctx, CreateInput{Content: "created during outage"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	p.fail = false

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		svc.BackfillLoop(loopCtx, time.Hour) // first pass runs immediately
		close(done)
	}()

	deadline := time.After(3 * time.Second)
	for {
		got, _ := svc.Get(ctx, entry.ID)
		if got != nil && len(got.Embedding) > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("loop never backfilled the entry")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("loop did not stop on cancel")
	}
}

func TestCreate_AutoMergeAbsorbsSimilar(t *testing.T) {
	p := &stubProvider{vectors: map[string][]float32{
		"likes espresso":  {1, 0, 0},
		"enjoys espresso": {0.99, 0.05, 0},
		"unrelated topic": {0, 1, 0},
	}}
	svc, _ := newTestService(t, p)
	ctx := context.Background()

	first, err := svc.Create(ctx, CreateInput{Content: "likes espresso", Tags: []string{"coffee"}, Importance: 0.9})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Create(ctx, CreateInput{Content: "unrelated topic"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	merged, err := svc.Create(ctx, CreateInput{Content: "enjoys espresso", Tags: []string{"drinks"}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// The first entry was absorbed.
	if got, _ := svc.Get(ctx, first.ID); got != nil {
		t.Error("absorbed entry still exists")
	}

	mergedFrom, ok := merged.Metadata["merged_from"].([]string)
	if !ok || len(mergedFrom) != 1 || mergedFrom[0] != first.ID {
		t.Errorf("merged_from = %v", merged.Metadata["merged_from"])
	}
	// Union of tags, highest importance.
	if !merged.HasTags([]string{"coffee", "drinks"}) {
		t.Errorf("tags = %v", merged.Tags)
	}
	if merged.Importance != 0.9 {
		t.Errorf("importance = %f, want 0.9", merged.Importance)
	}
	if merged.Summary == "" {
		t.Error("merged entry missing summary")
	}
}

func TestCreate_MergeIdempotent(t *testing.T) {
	p := &stubProvider{}
	svc, st := newTestService(t, p)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Create(ctx, CreateInput{Content: "the same fact"}); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}

	results, err := st.Search(ctx, []float32{1, 0, 0}, store.SearchOptions{SimilarityThreshold: 0.5, Limit: 50})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("entries after repeated ingestion = %d, want 1", len(results))
	}
	if results[0].Entry.Content != "the same fact" {
		t.Errorf("content grew: %q", results[0].Entry.Content)
	}
}

func TestFindSimilar_MissingEmbedding(t *testing.T) {
	p := &stubProvider{fail: true}
	svc, _ := newTestService(t, p)
	ctx := context.Background()

	entry, err := svc.Create(ctx, CreateInput{Content: "no vector"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = svc.FindSimilar(ctx, entry.ID, store.DefaultSearchOptions())
	if !errors.Is(err, ErrMissingEmbedding) {
		t.Errorf("err = %v, want ErrMissingEmbedding", err)
	}

	_, err = svc.FindSimilar(ctx, "no-such-id", store.DefaultSearchOptions())
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestFindSimilar_ExcludesSelf(t *testing.T) {
	p := &stubProvider{vectors: map[string][]float32{
		"entry a": {1, 0, 0},
		"entry b": {0, 1, 0}, // distinct so auto-merge leaves both
	}}
	svc, _ := newTestService(t, p)
	ctx := context.Background()

	a, _ := svc.Create(ctx, CreateInput{Content: "entry a"})
	results, err := svc.FindSimilar(ctx, a.ID, store.SearchOptions{SimilarityThreshold: 0.1})
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	for _, r := range results {
		if r.Entry.ID == a.ID {
			t.Error("result set contains the queried entry itself")
		}
	}
}

func TestFindSimilar_FullLimitAfterSelfExclusion(t *testing.T) {
	p := &stubProvider{}
	st, err := sqlite.New(filepath.Join(t.TempDir(), "mem.db"))
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := DefaultConfig()
	cfg.AutoMerge = false // keep near-identical entries separate
	svc := NewService(st, p, nil, cfg)
	ctx := context.Background()

	var first *store.MemoryEntry
	for i, content := range []string{"fact a", "fact b", "fact c", "fact d"} {
		entry, err := svc.Create(ctx, CreateInput{Content: content})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if i == 0 {
			first = entry
		}
	}

	// All four share a vector; dropping self must not eat a result slot.
	results, err := svc.FindSimilar(ctx, first.ID, store.SearchOptions{SimilarityThreshold: 0.5, Limit: 2})
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("results = %d, want the full limit of 2", len(results))
	}
	for _, r := range results {
		if r.Entry.ID == first.ID {
			t.Error("result set contains the queried entry itself")
		}
	}
}

func TestConcatSummarizer_RuneBoundary(t *testing.T) {
	// 450 bytes of 3-byte runes; the cap falls mid-rune.
	long := strings.Repeat("日", 150)
	got, err := concatSummarizer{}.Summarize(context.Background(), []string{long})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if len(got) > mergedSummaryLimit {
		t.Errorf("summary length = %d, want <= %d", len(got), mergedSummaryLimit)
	}
	if !utf8.ValidString(got) {
		t.Errorf("summary is not valid UTF-8: %q", got)
	}
}

func TestUpdate_PartialAndReEmbed(t *testing.T) {
	p := &stubProvider{vectors: map[string][]float32{
		"original": {1, 0, 0},
		"revised":  {0, 1, 0},
	}}
	svc, _ := newTestService(t, p)
	ctx := context.Background()

	entry, _ := svc.Create(ctx, CreateInput{Content: "original", Importance: 0.5})

	newContent := "revised"
	pinned := true
	updated, err := svc.Update(ctx, entry.ID, UpdateInput{Content: &newContent, Pinned: &pinned})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Content != "revised" || !updated.Pinned {
		t.Errorf("updated = %+v", updated)
	}
	if updated.Importance != 0.5 {
		t.Error("untouched field changed")
	}
	if updated.Embedding[1] != 1 {
		t.Errorf("content change should re-embed, got %v", updated.Embedding)
	}

	_, err = svc.Update(ctx, "missing", UpdateInput{Content: &newContent})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDelete_Missing(t *testing.T) {
	svc, _ := newTestService(t, &stubProvider{})
	if err := svc.Delete(context.Background(), "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
