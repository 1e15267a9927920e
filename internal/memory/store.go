// Package memory persists per-tick summaries and retrieves the most
// relevant ones for the planner's state payload.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"vrcagent/internal/action"
	"vrcagent/internal/logging"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Record is one remembered tick summary.
type Record struct {
	ID        string
	CreatedAt time.Time
	Scene     string
	Heard     string
	Say       string
	Actions   []action.Action
}

// Store manages the agent's long-term memory database.
type Store struct {
	db         *sql.DB
	dbPath     string
	maxRecords int
	embedder   Embedder
	mu         sync.RWMutex
}

// Embedder turns text into a vector for semantic retrieval. Optional; when
// nil the store falls back to token-overlap scoring.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// NewStore creates or opens the memory store.
func NewStore(dbPath string, maxRecords int) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if maxRecords < 10 {
		maxRecords = 10
	}
	store := &Store{db: db, dbPath: dbPath, maxRecords: maxRecords}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// SetEmbedder enables embedding-based retrieval.
func (s *Store) SetEmbedder(e Embedder) {
	s.mu.Lock()
	s.embedder = e
	s.mu.Unlock()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ticks (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		scene TEXT NOT NULL,
		heard TEXT NOT NULL,
		say TEXT NOT NULL,
		actions_json TEXT,
		embedding BLOB
	);
	CREATE INDEX IF NOT EXISTS idx_ticks_created ON ticks(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append stores a record and prunes the oldest rows beyond the cap.
// Embedding failures degrade to overlap-only retrieval for that row.
func (s *Store) Append(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	actionsJSON, err := json.Marshal(rec.Actions)
	if err != nil {
		return fmt.Errorf("failed to marshal actions: %w", err)
	}

	var emb []byte
	s.mu.RLock()
	embedder := s.embedder
	s.mu.RUnlock()
	if embedder != nil {
		vec, err := embedder.Embed(ctx, rec.Scene+"\n"+rec.Heard+"\n"+rec.Say)
		if err != nil {
			logging.MemoryWarn("embedding failed, row stored without vector: %v", err)
		} else {
			emb = encodeVector(vec)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ticks (id, created_at, scene, heard, say, actions_json, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CreatedAt, rec.Scene, rec.Heard, rec.Say, string(actionsJSON), emb)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return s.pruneLocked(ctx)
}

// pruneLocked deletes the oldest rows above the cap. Caller holds the lock.
func (s *Store) pruneLocked(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM ticks WHERE id IN (
			SELECT id FROM ticks ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.maxRecords)
	return err
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ticks`).Scan(&n)
	return n, err
}

// Retrieve returns the topK most relevant records for the query. With an
// embedder configured it scores by cosine similarity; otherwise by token
// overlap blended with recency, mirroring the scoring the agent has always
// used for cross-language scene text.
func (s *Store) Retrieve(ctx context.Context, query string, topK int) ([]Record, error) {
	if topK < 1 {
		topK = 1
	}
	rows, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	embedder := s.embedder
	s.mu.RUnlock()
	if embedder != nil {
		if recs, err := s.retrieveByEmbedding(ctx, embedder, query, rows, topK); err == nil {
			return recs, nil
		} else {
			logging.MemoryWarn("embedding retrieval failed, falling back to overlap: %v", err)
		}
	}
	return retrieveByOverlap(query, rows, topK), nil
}

type storedRow struct {
	rec Record
	emb []float32
}

func (s *Store) loadAll(ctx context.Context) ([]storedRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, scene, heard, say, actions_json, embedding
		 FROM ticks ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []storedRow
	for rows.Next() {
		var (
			rec         Record
			actionsJSON sql.NullString
			emb         []byte
		)
		if err := rows.Scan(&rec.ID, &rec.CreatedAt, &rec.Scene, &rec.Heard, &rec.Say, &actionsJSON, &emb); err != nil {
			return nil, err
		}
		if actionsJSON.Valid && actionsJSON.String != "" {
			// Corrupt rows keep their text fields; actions are best-effort.
			_ = json.Unmarshal([]byte(actionsJSON.String), &rec.Actions)
		}
		out = append(out, storedRow{rec: rec, emb: decodeVector(emb)})
	}
	return out, rows.Err()
}

func (s *Store) retrieveByEmbedding(ctx context.Context, embedder Embedder, query string, rows []storedRow, topK int) ([]Record, error) {
	qvec, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	type scored struct {
		score float64
		rec   Record
	}
	var candidates []scored
	for _, row := range rows {
		if len(row.emb) == 0 {
			continue
		}
		candidates = append(candidates, scored{score: cosine(qvec, row.emb), rec: row.rec})
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no embedded rows")
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	recs := make([]Record, len(candidates))
	for i, c := range candidates {
		recs[i] = c.rec
	}
	return recs, nil
}

func retrieveByOverlap(query string, rows []storedRow, topK int) []Record {
	qTokens := tokenize(query)
	type scored struct {
		score float64
		idx   int
	}
	total := len(rows)
	var candidates []scored
	for i, row := range rows {
		text := row.rec.Scene + "\n" + row.rec.Heard + "\n" + row.rec.Say
		overlap := overlapScore(qTokens, tokenize(text))
		recency := float64(i+1) / float64(total)
		score := overlap*0.85 + recency*0.15
		candidates = append(candidates, scored{score: score, idx: i})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	var recs []Record
	for _, c := range candidates {
		if len(recs) >= topK {
			break
		}
		if c.score <= 0 {
			continue
		}
		recs = append(recs, rows[c.idx].rec)
	}
	return recs
}

// tokenRe matches latin words and short CJK chunks so cross-language scene
// text still overlaps usefully.
var tokenRe = regexp.MustCompile(`[a-z0-9_]+|[\x{4e00}-\x{9fff}]{1,3}`)

func tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, t := range tokenRe.FindAllString(strings.ToLower(text), -1) {
		tokens[t] = true
	}
	return tokens
}

func overlapScore(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	return float64(inter) / float64(len(a))
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
