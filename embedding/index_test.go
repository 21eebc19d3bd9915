package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/use-agent/uniassist/cache"
	"github.com/use-agent/uniassist/models"
)

func sampleRecords() []models.StoredContent {
	day := time.Date(2025, 4, 23, 0, 0, 0, 0, time.UTC)
	return []models.StoredContent{
		{
			ID: 1,
			ContentRecord: models.ContentRecord{
				Title:         "Library opening hours extended",
				Summary:       "The campus library now opens until midnight during exams.",
				Body:          "Students can study late in the library throughout the exam period.",
				URL:           "https://uni.example/news/library",
				Kind:          models.KindNews,
				PublishedDate: &day,
			},
			SourceName: "Campus News",
		},
		{
			ID: 2,
			ContentRecord: models.ContentRecord{
				Title:   "Open day",
				Summary: "Visit the university and meet lecturers.",
				Body:    "Tours of halls, sports facilities and departments run all day.",
				URL:     "https://uni.example/events/open-day",
				Kind:    models.KindEvent,
			},
			SourceName: "Campus Events",
		},
		{
			ID: 3,
			ContentRecord: models.ContentRecord{
				Title:   "Research grant awarded",
				Summary: "Chemistry team wins funding for battery research.",
				Body:    "The grant supports three years of work on solid state batteries.",
				URL:     "https://uni.example/news/grant",
				Kind:    models.KindNews,
			},
			SourceName: "Campus News",
		},
	}
}

type failingEmbedder struct {
	calls int
}

func (f *failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	f.calls++
	return nil, errors.New("model offline")
}

func (f *failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	f.calls++
	return nil, errors.New("model offline")
}

func (f *failingEmbedder) Dimension() int {
	return 0
}

func (f *failingEmbedder) Model() string {
	return "failing"
}

type countingEmbedder struct {
	*HashEmbedder
	batches []int
	queries int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.queries++
	return c.HashEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batches = append(c.batches, len(texts))
	return c.HashEmbedder.EmbedBatch(ctx, texts)
}

func TestIndex_RetrieveBestMatchFirst(t *testing.T) {
	records := sampleRecords()
	ix := NewIndex(t.TempDir(), NewHashEmbedder(128), Options{})
	n, err := ix.Rebuild(context.Background(), records)
	if err != nil || n != 3 {
		t.Fatalf("Rebuild = %d, %v", n, err)
	}

	hits, err := ix.Retrieve(context.Background(), InputText(records[0], 1000), 3, "")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("len(hits) = %d, want 3", len(hits))
	}
	if hits[0].ID != 1 {
		t.Errorf("best hit = %d, want 1", hits[0].ID)
	}
	if math.Abs(hits[0].Score-1) > 1e-5 {
		t.Errorf("best score = %f, want ~1", hits[0].Score)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Errorf("hits not sorted: %v", hits)
		}
	}
	if hits[0].PublishedDate == nil || hits[0].SourceName != "Campus News" {
		t.Errorf("metadata not carried: %+v", hits[0])
	}
}

func TestIndex_RetrieveKindFilter(t *testing.T) {
	records := sampleRecords()
	ix := NewIndex(t.TempDir(), NewHashEmbedder(128), Options{})
	if _, err := ix.Rebuild(context.Background(), records); err != nil {
		t.Fatal(err)
	}

	hits, err := ix.Retrieve(context.Background(), InputText(records[0], 1000), 2, models.KindEvent)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != 2 {
		t.Errorf("hits = %+v, want only the event", hits)
	}

	hits, _ = ix.Retrieve(context.Background(), "library", 1, models.KindNews)
	if len(hits) != 1 || hits[0].Kind != models.KindNews {
		t.Errorf("hits = %+v, want one news record", hits)
	}
}

func TestIndex_EmptyIndex(t *testing.T) {
	emb := &failingEmbedder{}
	ix := NewIndex(t.TempDir(), emb, Options{})

	hits, err := ix.Retrieve(context.Background(), "anything", 3, "")
	if err != nil || hits != nil {
		t.Errorf("Retrieve on empty index = %v, %v", hits, err)
	}
	if emb.calls != 0 {
		t.Errorf("model called %d times for an empty index", emb.calls)
	}
	if n, err := ix.Len(); err != nil || n != 0 {
		t.Errorf("Len = %d, %v", n, err)
	}
}

func TestIndex_RebuildNoRecords(t *testing.T) {
	ix := NewIndex(t.TempDir(), NewHashEmbedder(8), Options{})
	n, err := ix.Rebuild(context.Background(), nil)
	if err != nil || n != 0 {
		t.Fatalf("Rebuild = %d, %v", n, err)
	}
	hits, err := ix.Retrieve(context.Background(), "q", 3, "")
	if err != nil || len(hits) != 0 {
		t.Errorf("Retrieve = %v, %v", hits, err)
	}
}

func TestIndex_PersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	records := sampleRecords()
	query := "battery research funding"

	first := NewIndex(dir, NewHashEmbedder(64), Options{})
	if _, err := first.Rebuild(context.Background(), records); err != nil {
		t.Fatal(err)
	}
	want, err := first.Retrieve(context.Background(), query, 3, "")
	if err != nil {
		t.Fatal(err)
	}

	second := NewIndex(dir, NewHashEmbedder(64), Options{})
	got, err := second.Retrieve(context.Background(), query, 3, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i].ID || math.Abs(got[i].Score-want[i].Score) > 1e-6 {
			t.Errorf("hit %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestIndex_MissingVectorsFileMeansEmpty(t *testing.T) {
	dir := t.TempDir()
	ix := NewIndex(dir, NewHashEmbedder(16), Options{})
	if _, err := ix.Rebuild(context.Background(), sampleRecords()); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(dir, vectorsFile)); err != nil {
		t.Fatal(err)
	}

	fresh := NewIndex(dir, NewHashEmbedder(16), Options{})
	if n, err := fresh.Len(); err != nil || n != 0 {
		t.Errorf("Len = %d, %v; want empty index", n, err)
	}
}

func TestIndex_CorruptIndex(t *testing.T) {
	dir := t.TempDir()
	ix := NewIndex(dir, NewHashEmbedder(16), Options{})
	if _, err := ix.Rebuild(context.Background(), sampleRecords()); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, vectorsFile))
	if err != nil {
		t.Fatal(err)
	}
	sum := sha256.Sum256(raw)
	short, _ := json.Marshal(manifest{VectorsSHA256: hex.EncodeToString(sum[:]), Records: []Metadata{{ID: 1}}})
	if err := os.WriteFile(filepath.Join(dir, metadataFile), short, 0o644); err != nil {
		t.Fatal(err)
	}

	fresh := NewIndex(dir, NewHashEmbedder(16), Options{})
	if _, err := fresh.Retrieve(context.Background(), "q", 3, ""); err == nil {
		t.Error("expected error for 3 vectors and 1 metadata entry")
	}
}

func renamedRecords(prefix string) []models.StoredContent {
	records := sampleRecords()
	for i := range records {
		records[i].ID += 100
		records[i].Title = prefix + " " + records[i].Title
		records[i].Body = prefix + " " + records[i].Body
	}
	return records
}

func TestIndex_HalfSwappedFiles(t *testing.T) {
	saved := mismatchDelay
	mismatchDelay = time.Millisecond
	defer func() { mismatchDelay = saved }()

	dir := t.TempDir()
	writer := NewIndex(dir, NewHashEmbedder(32), Options{})
	if _, err := writer.Rebuild(context.Background(), sampleRecords()); err != nil {
		t.Fatal(err)
	}
	oldVectors, err := os.ReadFile(filepath.Join(dir, vectorsFile))
	if err != nil {
		t.Fatal(err)
	}

	reader := NewIndex(dir, NewHashEmbedder(32), Options{})
	if _, err := writer.Rebuild(context.Background(), renamedRecords("Updated")); err != nil {
		t.Fatal(err)
	}
	if err := reader.Load(); err != nil {
		t.Fatal(err)
	}

	// New metadata next to the previous generation's vectors, same count.
	if err := os.WriteFile(filepath.Join(dir, vectorsFile), oldVectors, 0o644); err != nil {
		t.Fatal(err)
	}

	fresh := NewIndex(dir, NewHashEmbedder(32), Options{})
	if err := fresh.Load(); !errors.Is(err, ErrIndexMismatch) {
		t.Errorf("fresh Load error = %v, want ErrIndexMismatch", err)
	}

	if err := reader.Load(); err != nil {
		t.Fatalf("reload with state in memory: %v", err)
	}
	hits, err := reader.Retrieve(context.Background(), "Updated library opening hours", 1, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != 101 {
		t.Errorf("hits = %+v, want the loaded record 101", hits)
	}
}

func TestDecodeVectors(t *testing.T) {
	encode := func(n, dim uint32, floats ...float32) []byte {
		b := binary.LittleEndian.AppendUint32(nil, n)
		b = binary.LittleEndian.AppendUint32(b, dim)
		for _, f := range floats {
			b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
		}
		return b
	}
	tests := []struct {
		name    string
		raw     []byte
		want    int
		wantErr bool
	}{
		{"two vectors", encode(2, 2, 1, 0, 0, 1), 2, false},
		{"empty", encode(0, 0), 0, false},
		{"short header", []byte{1, 0, 0}, 0, true},
		{"truncated payload", encode(2, 2, 1, 0, 0), 0, true},
		{"huge header", encode(1<<31, 1<<31, 1), 0, true},
		{"max header", encode(math.MaxUint32, math.MaxUint32), 0, true},
		{"count without dimension", encode(1<<30, 0), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeVectors(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeVectors() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestMetadata_ZeroScoreSerialised(t *testing.T) {
	b, err := json.Marshal(Metadata{ID: 7, Title: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"score":0`) {
		t.Errorf("zero score dropped: %s", b)
	}
}

func TestIndex_Batches(t *testing.T) {
	records := make([]models.StoredContent, 120)
	for i := range records {
		records[i].ID = int64(i)
		records[i].Title = "item"
	}
	emb := &countingEmbedder{HashEmbedder: NewHashEmbedder(8)}
	ix := NewIndex(t.TempDir(), emb, Options{})
	if _, err := ix.Rebuild(context.Background(), records); err != nil {
		t.Fatal(err)
	}
	want := []int{50, 50, 20}
	if len(emb.batches) != len(want) {
		t.Fatalf("batches = %v, want %v", emb.batches, want)
	}
	for i := range want {
		if emb.batches[i] != want[i] {
			t.Errorf("batches = %v, want %v", emb.batches, want)
		}
	}
}

func TestIndex_ModelFailure(t *testing.T) {
	dir := t.TempDir()
	ix := NewIndex(dir, &failingEmbedder{}, Options{})
	_, err := ix.Rebuild(context.Background(), sampleRecords())
	var se *models.ScrapeError
	if !errors.As(err, &se) || se.Code != models.ErrCodeEmbedding {
		t.Fatalf("Rebuild error = %v, want %s", err, models.ErrCodeEmbedding)
	}

	good := NewIndex(dir, NewHashEmbedder(16), Options{})
	if _, err := good.Rebuild(context.Background(), sampleRecords()); err != nil {
		t.Fatal(err)
	}
	broken := NewIndex(dir, &failingEmbedder{}, Options{})
	if _, err := broken.Retrieve(context.Background(), "q", 3, ""); !errors.As(err, &se) {
		t.Errorf("Retrieve error = %v, want ScrapeError", err)
	}
}

func TestIndex_InvalidateReloads(t *testing.T) {
	dir := t.TempDir()
	reader := NewIndex(dir, NewHashEmbedder(16), Options{})
	if n, _ := reader.Len(); n != 0 {
		t.Fatalf("Len = %d, want 0", n)
	}

	writer := NewIndex(dir, NewHashEmbedder(16), Options{})
	if _, err := writer.Rebuild(context.Background(), sampleRecords()); err != nil {
		t.Fatal(err)
	}
	if n, _ := reader.Len(); n != 0 {
		t.Errorf("Len before Invalidate = %d, want cached 0", n)
	}
	reader.Invalidate()
	if n, _ := reader.Len(); n != 3 {
		t.Errorf("Len after Invalidate = %d, want 3", n)
	}
}

func TestIndex_QueryCache(t *testing.T) {
	c := cache.New(10, time.Hour)
	defer c.Close()
	emb := &countingEmbedder{HashEmbedder: NewHashEmbedder(16)}
	ix := NewIndex(t.TempDir(), emb, Options{Cache: c})
	if _, err := ix.Rebuild(context.Background(), sampleRecords()); err != nil {
		t.Fatal(err)
	}

	for range 3 {
		if _, err := ix.Retrieve(context.Background(), "Open Day", 1, ""); err != nil {
			t.Fatal(err)
		}
	}
	if emb.queries != 1 {
		t.Errorf("query embedded %d times, want 1", emb.queries)
	}
}

func TestNormalize_ZeroVector(t *testing.T) {
	got := normalize([]float32{0, 0, 0})
	for _, x := range got {
		if x != 0 {
			t.Errorf("normalize(zero) = %v", got)
		}
	}
	got = normalize([]float32{3, 4})
	if math.Abs(float64(got[0])-0.6) > 1e-6 || math.Abs(float64(got[1])-0.8) > 1e-6 {
		t.Errorf("normalize(3,4) = %v", got)
	}
}
