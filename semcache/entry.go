package semcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// Entry is a single cached generation result. The cache key is derived
// from the normalized prompt, so identical prompts always collide to the
// same row and writes are upserts.
type Entry struct {
	CacheKey    string
	Prompt      string
	Embedding   []float32
	Schema      json.RawMessage
	SQL         string
	ModelUsed   string
	TokensSaved int64
	UsageCount  int64
	CreatedAt   time.Time
	LastUsedAt  time.Time
}

// Artifact is the output pair produced by a generation call: a structured
// schema definition and the SQL implementing it.
type Artifact struct {
	Schema json.RawMessage
	SQL    string
}

// Match is a successful similarity lookup: the matched entry together with
// the cosine similarity that qualified it.
type Match struct {
	Entry
	Similarity float64
}

// Candidate is a similarity-search result row returned by a Store, ranked
// by descending similarity.
type Candidate struct {
	Entry
	Similarity float64
}

// Normalize canonicalizes a prompt before hashing or embedding it.
func Normalize(prompt string) string {
	return strings.ToLower(strings.TrimSpace(prompt))
}

// Key derives the deterministic cache key for a prompt. Two prompts with
// the same normalized form always map to the same key.
func Key(prompt string) string {
	sum := sha256.Sum256([]byte(Normalize(prompt)))
	return hex.EncodeToString(sum[:])
}
