package embedding

import (
	"bufio"
	"bytes"
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/use-agent/uniassist/cache"
	"github.com/use-agent/uniassist/models"
)

const (
	vectorsFile  = "vectors.bin"
	metadataFile = "metadata.json"
)

// ErrIndexMismatch means metadata.json does not describe the vectors.bin
// next to it, as seen while another process is between its two renames.
var ErrIndexMismatch = errors.New("embedding: metadata and vectors out of step")

// mismatchRetries and mismatchDelay bound how long a load waits for a
// concurrent writer to finish its second rename.
var (
	mismatchRetries = 3
	mismatchDelay   = 100 * time.Millisecond
)

// manifest is the content of metadata.json. VectorsSHA256 pins the exact
// vectors.bin the records are aligned with.
type manifest struct {
	VectorsSHA256 string     `json:"vectors_sha256"`
	Records       []Metadata `json:"records"`
}

// Metadata describes one indexed record. It is index-aligned with the
// stored vectors; Score is only set on retrieval results.
type Metadata struct {
	ID            int64              `json:"id"`
	Title         string             `json:"title"`
	Summary       string             `json:"summary"`
	URL           string             `json:"url"`
	Kind          models.ContentKind `json:"content_kind"`
	PublishedDate *time.Time         `json:"published_date,omitempty"`
	SourceName    string             `json:"source_name,omitempty"`
	University    string             `json:"university,omitempty"`
	Score         float64            `json:"score"`
}

// Options tunes an Index. Zero values select the defaults.
type Options struct {
	BatchSize  int          // texts per EmbedBatch call, default 50
	BodyPrefix int          // body runes included in the input text, default 1000
	Cache      *cache.Cache // optional query-vector cache
	Logger     *slog.Logger
}

// Index is a persisted similarity index over content records. The on-disk
// form is two files in dir: vectors.bin and metadata.json, which carries
// the SHA-256 of the vectors.bin it was written with. The index loads
// lazily on first use; Invalidate forces a reload.
type Index struct {
	dir  string
	emb  Embedder
	opts Options
	log  *slog.Logger

	mu      sync.RWMutex
	loaded  bool
	vectors [][]float32 // L2-normalised
	meta    []Metadata
}

// NewIndex creates an index stored in dir.
func NewIndex(dir string, emb Embedder, opts Options) *Index {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.BodyPrefix <= 0 {
		opts.BodyPrefix = 1000
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Index{dir: dir, emb: emb, opts: opts, log: log}
}

// InputText is the text embedded for a record: title, summary and the
// first prefix runes of the body.
func InputText(c models.StoredContent, prefix int) string {
	body := []rune(c.Body)
	if len(body) > prefix {
		body = body[:prefix]
	}
	return c.Title + ". " + c.Summary + " " + string(body)
}

// Rebuild embeds every record and replaces the persisted index. The
// in-memory state is swapped only after both files are written. Returns the
// number of records indexed.
func (ix *Index) Rebuild(ctx context.Context, records []models.StoredContent) (int, error) {
	vectors := make([][]float32, 0, len(records))
	for start := 0; start < len(records); start += ix.opts.BatchSize {
		end := min(start+ix.opts.BatchSize, len(records))
		texts := make([]string, 0, end-start)
		for _, r := range records[start:end] {
			texts = append(texts, InputText(r, ix.opts.BodyPrefix))
		}
		vecs, err := ix.emb.EmbedBatch(ctx, texts)
		if err != nil {
			return 0, models.NewScrapeError(models.ErrCodeEmbedding, "embedding batch failed", err)
		}
		if len(vecs) != len(texts) {
			return 0, models.NewScrapeError(models.ErrCodeEmbedding,
				fmt.Sprintf("model returned %d vectors for %d texts", len(vecs), len(texts)), nil)
		}
		vectors = append(vectors, vecs...)
		ix.log.Info("embedding: batch done", "from", start, "to", end, "total", len(records))
	}

	meta := make([]Metadata, len(records))
	for i, r := range records {
		meta[i] = Metadata{
			ID:            r.ID,
			Title:         r.Title,
			Summary:       r.Summary,
			URL:           r.URL,
			Kind:          r.Kind,
			PublishedDate: r.PublishedDate,
			SourceName:    r.SourceName,
			University:    r.University,
		}
	}

	if err := ix.persist(vectors, meta); err != nil {
		return 0, fmt.Errorf("embedding: persist index: %w", err)
	}

	normalised := make([][]float32, len(vectors))
	for i, v := range vectors {
		normalised[i] = normalize(v)
	}

	ix.mu.Lock()
	ix.vectors = normalised
	ix.meta = meta
	ix.loaded = true
	ix.mu.Unlock()

	if ix.opts.Cache != nil {
		ix.opts.Cache.Purge()
	}
	ix.log.Info("embedding: index rebuilt", "records", len(records), "dir", ix.dir)
	return len(records), nil
}

// Retrieve returns up to k records most similar to query, best first.
// A non-empty kind keeps only records of that kind; 2k candidates are
// considered before filtering. An empty index yields no results and no
// error.
func (ix *Index) Retrieve(ctx context.Context, query string, k int, kind models.ContentKind) ([]Metadata, error) {
	if k <= 0 {
		return nil, nil
	}
	if err := ix.ensureLoaded(); err != nil {
		return nil, err
	}

	ix.mu.RLock()
	vectors, meta := ix.vectors, ix.meta
	ix.mu.RUnlock()
	if len(meta) == 0 {
		return nil, nil
	}

	qv, err := ix.queryVector(ctx, query)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeEmbedding, "embed query", err)
	}
	if len(qv) != len(vectors[0]) {
		return nil, models.NewScrapeError(models.ErrCodeEmbedding,
			fmt.Sprintf("query dimension %d does not match index dimension %d", len(qv), len(vectors[0])), nil)
	}
	qv = normalize(qv)

	type scored struct {
		idx   int
		score float64
	}
	hits := make([]scored, len(vectors))
	for i, v := range vectors {
		hits[i] = scored{idx: i, score: dot(qv, v)}
	}
	slices.SortStableFunc(hits, func(a, b scored) int {
		return cmp.Compare(b.score, a.score)
	})

	hits = hits[:min(2*k, len(hits))]
	out := make([]Metadata, 0, k)
	for _, h := range hits {
		m := meta[h.idx]
		if kind != "" && m.Kind != kind {
			continue
		}
		m.Score = h.score
		out = append(out, m)
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// Len returns the number of indexed records.
func (ix *Index) Len() (int, error) {
	if err := ix.ensureLoaded(); err != nil {
		return 0, err
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.meta), nil
}

// Invalidate drops the in-memory state; the next query reloads from disk.
func (ix *Index) Invalidate() {
	ix.mu.Lock()
	ix.loaded = false
	ix.vectors = nil
	ix.meta = nil
	ix.mu.Unlock()
}

// Load reads the persisted index now instead of on first use.
func (ix *Index) Load() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.loadLocked()
}

func (ix *Index) ensureLoaded() error {
	ix.mu.RLock()
	loaded := ix.loaded
	ix.mu.RUnlock()
	if loaded {
		return nil
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.loaded {
		return nil
	}
	return ix.loadLocked()
}

// loadLocked reads both files. A checksum mismatch is retried while a
// writer may still be renaming; if it persists, state already in memory is
// kept and only an index with nothing loaded reports ErrIndexMismatch.
func (ix *Index) loadLocked() error {
	for attempt := 0; ; attempt++ {
		vectors, meta, err := readIndex(ix.dir)
		switch {
		case err == nil:
			for i, v := range vectors {
				vectors[i] = normalize(v)
			}
			ix.vectors, ix.meta, ix.loaded = vectors, meta, true
			ix.log.Info("embedding: index loaded", "records", len(meta), "dir", ix.dir)
			return nil
		case errors.Is(err, fs.ErrNotExist):
			ix.vectors, ix.meta, ix.loaded = nil, nil, true
			ix.log.Info("embedding: no index on disk, starting empty", "dir", ix.dir)
			return nil
		case !errors.Is(err, ErrIndexMismatch):
			return fmt.Errorf("embedding: load index: %w", err)
		}

		if attempt < mismatchRetries {
			time.Sleep(mismatchDelay)
			continue
		}
		if ix.loaded {
			ix.log.Warn("embedding: index on disk out of step, keeping loaded index",
				"dir", ix.dir, "records", len(ix.meta))
			return nil
		}
		return err
	}
}

// readIndex reads metadata.json and vectors.bin and checks that they
// belong together.
func readIndex(dir string) ([][]float32, []Metadata, error) {
	m, err := readManifest(filepath.Join(dir, metadataFile))
	if err != nil {
		return nil, nil, err
	}
	raw, err := os.ReadFile(filepath.Join(dir, vectorsFile))
	if err != nil {
		return nil, nil, err
	}
	if sum := sha256.Sum256(raw); hex.EncodeToString(sum[:]) != m.VectorsSHA256 {
		return nil, nil, ErrIndexMismatch
	}
	vectors, err := decodeVectors(raw)
	if err != nil {
		return nil, nil, err
	}
	if len(vectors) != len(m.Records) {
		return nil, nil, fmt.Errorf("index corrupt: %d vectors, %d metadata entries", len(vectors), len(m.Records))
	}
	return vectors, m.Records, nil
}

func (ix *Index) queryVector(ctx context.Context, query string) ([]float32, error) {
	c := ix.opts.Cache
	var key string
	if c != nil {
		key = cache.Key(ix.emb.Model(), query)
		if v, ok := c.Get(key); ok {
			return v, nil
		}
	}
	v, err := ix.emb.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if c != nil {
		c.Set(key, v)
	}
	return v, nil
}

// persist writes vectors.bin and then metadata.json, each through a temp
// file and rename. metadata.json records the checksum of the vectors it
// matches, so a reader catching the pair half swapped can tell.
func (ix *Index) persist(vectors [][]float32, meta []Metadata) error {
	if err := os.MkdirAll(ix.dir, 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := writeVectors(&buf, vectors); err != nil {
		return err
	}
	sum := sha256.Sum256(buf.Bytes())

	if err := writeAtomic(filepath.Join(ix.dir, vectorsFile), func(w io.Writer) error {
		_, err := w.Write(buf.Bytes())
		return err
	}); err != nil {
		return err
	}
	return writeAtomic(filepath.Join(ix.dir, metadataFile), func(w io.Writer) error {
		return json.NewEncoder(w).Encode(manifest{
			VectorsSHA256: hex.EncodeToString(sum[:]),
			Records:       meta,
		})
	})
}

func writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	if err := write(bw); err != nil {
		tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func writeVectors(w io.Writer, vectors [][]float32) error {
	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	header := [2]uint32{uint32(len(vectors)), uint32(dim)}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return err
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim)
		}
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return nil
}

// decodeVectors parses the vectors.bin layout: uint32 count, uint32
// dimension, then count*dimension float32s, all little-endian. The header
// must agree with the payload length before anything is allocated.
func decodeVectors(raw []byte) ([][]float32, error) {
	const headerLen = 8
	if len(raw) < headerLen {
		return nil, fmt.Errorf("vectors file too short: %d bytes", len(raw))
	}
	n := uint64(binary.LittleEndian.Uint32(raw[0:4]))
	dim := uint64(binary.LittleEndian.Uint32(raw[4:8]))
	payload := uint64(len(raw) - headerLen)
	switch {
	case dim == 0 && (n != 0 || payload != 0),
		dim != 0 && (n > payload/(4*dim) || n*dim*4 != payload):
		return nil, fmt.Errorf("vectors header says %d x %d, file has %d bytes", n, dim, len(raw))
	}

	body := raw[headerLen:]
	vectors := make([][]float32, n)
	for i := range vectors {
		v := make([]float32, dim)
		for j := range v {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(body[:4]))
			body = body[4:]
		}
		vectors[i] = v
	}
	return vectors, nil
}

func readManifest(path string) (manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return manifest{}, err
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return manifest{}, fmt.Errorf("decode metadata: %w", err)
	}
	return m, nil
}

// normalize returns v scaled to unit length. Zero vectors stay zero.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
