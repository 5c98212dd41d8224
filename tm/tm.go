// Package tm suggests prior approved translations for new source text.
//
// Candidates come from a Corpus, are scored by textual similarity to the
// query and returned best first. Small candidate sets are scored with a
// pairwise sequence ratio; large ones go through a trigram index.
package tm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Status is the review state of a translation.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusReview   Status = "review"
	StatusApproved Status = "approved"
)

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusDraft, StatusReview, StatusApproved:
		return st, nil
	case "":
		return StatusDraft, nil
	}
	return "", fmt.Errorf("unknown translation status %q (want draft, review or approved)", s)
}

// ErrInvalidQuery reports out-of-range suggestion parameters.
var ErrInvalidQuery = errors.New("invalid suggestion query")

// Record is one translation in the corpus with its string's provenance.
type Record struct {
	StringID       string
	Project        string
	ProjectName    string
	Key            string
	Language       string
	SourceText     string
	TranslatedText string
	Status         Status
	IsActive       bool
}

// Filter narrows the records a Corpus returns. Empty fields match all.
type Filter struct {
	Project  string
	Language string
}

// Corpus gives read access to stored translations. Implementations may
// return records outside the filter; the engine checks every field.
type Corpus interface {
	Records(ctx context.Context, f Filter) ([]Record, error)
}

// Suggestion is one ranked translation memory hit.
type Suggestion struct {
	SourceText     string  `json:"source_text" yaml:"source_text"`
	TranslatedText string  `json:"translated_text" yaml:"translated_text"`
	Similarity     float64 `json:"similarity" yaml:"similarity"`
	Project        string  `json:"project_slug" yaml:"project_slug"`
	ProjectName    string  `json:"project_name,omitempty" yaml:"project_name,omitempty"`
	Key            string  `json:"string_key" yaml:"string_key"`
	Language       string  `json:"language_code" yaml:"language_code"`
}

// Strategy selects the similarity measure.
type Strategy string

const (
	// StrategyAuto uses StrategyRatio below the index threshold and
	// StrategyTrigram at or above it.
	StrategyAuto    Strategy = "auto"
	StrategyRatio   Strategy = "ratio"
	StrategyTrigram Strategy = "trigram"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case StrategyAuto, StrategyRatio, StrategyTrigram:
		return st, nil
	case "":
		return StrategyAuto, nil
	}
	return "", fmt.Errorf("unknown similarity strategy %q (want auto, ratio or trigram)", s)
}

const (
	DefaultMinSimilarity  = 0.7
	DefaultMaxResults     = 10
	DefaultIndexThreshold = 500

	// parallelMin is the candidate count from which ratio scoring is split
	// across goroutines.
	parallelMin = 256
)

// Engine answers suggestion queries against a Corpus. It is safe for
// concurrent use.
type Engine struct {
	corpus         Corpus
	strategy       Strategy
	indexThreshold int
	minSimilarity  float64
	maxResults     int
	log            zerolog.Logger

	trigrams *trigramCache
}

// trigramCache is the trigram index kept across queries. Each distinct
// source text is indexed once; later queries only normalize new texts.
type trigramCache struct {
	mu   sync.Mutex
	ix   *Index
	docs map[string]int // source text -> document id
}

func newTrigramCache() *trigramCache {
	return &trigramCache{ix: NewIndex(nil), docs: make(map[string]int)}
}

// Option configures an Engine.
type Option func(*Engine)

func WithStrategy(s Strategy) Option { return func(e *Engine) { e.strategy = s } }

// WithIndexThreshold sets the candidate count at which StrategyAuto
// switches to the trigram index.
func WithIndexThreshold(n int) Option { return func(e *Engine) { e.indexThreshold = n } }

// WithDefaults sets the parameters used when a query does not override them.
func WithDefaults(minSimilarity float64, maxResults int) Option {
	return func(e *Engine) {
		e.minSimilarity = minSimilarity
		e.maxResults = maxResults
	}
}

func WithLogger(l zerolog.Logger) Option { return func(e *Engine) { e.log = l } }

// NewEngine returns an engine over corpus.
func NewEngine(corpus Corpus, opts ...Option) *Engine {
	e := &Engine{
		corpus:         corpus,
		strategy:       StrategyAuto,
		indexThreshold: DefaultIndexThreshold,
		minSimilarity:  DefaultMinSimilarity,
		maxResults:     DefaultMaxResults,
		log:            zerolog.Nop(),
		trigrams:       newTrigramCache(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Query holds per-call parameters.
type Query struct {
	MinSimilarity   float64
	MaxResults      int
	ExcludeStringID string
	Project         string
}

// QueryOption adjusts a Query.
type QueryOption func(*Query)

// MinSimilarity sets the lowest score returned, in [0, 1].
func MinSimilarity(v float64) QueryOption { return func(q *Query) { q.MinSimilarity = v } }

// MaxResults caps the number of suggestions; must be at least 1.
func MaxResults(n int) QueryOption { return func(q *Query) { q.MaxResults = n } }

// ExcludeString drops every translation of the string with this id.
func ExcludeString(id string) QueryOption { return func(q *Query) { q.ExcludeStringID = id } }

// InProject restricts candidates to one project.
func InProject(slug string) QueryOption { return func(q *Query) { q.Project = slug } }

// Suggest returns approved translations into language whose active source
// strings resemble sourceText, best first. Equal scores are ordered by
// project, key and language.
func (e *Engine) Suggest(ctx context.Context, sourceText, language string, opts ...QueryOption) ([]Suggestion, error) {
	q := Query{MinSimilarity: e.minSimilarity, MaxResults: e.maxResults}
	for _, opt := range opts {
		opt(&q)
	}
	if math.IsNaN(q.MinSimilarity) || q.MinSimilarity < 0 || q.MinSimilarity > 1 {
		return nil, fmt.Errorf("%w: min similarity %v outside [0, 1]", ErrInvalidQuery, q.MinSimilarity)
	}
	if q.MaxResults < 1 {
		return nil, fmt.Errorf("%w: max results %d < 1", ErrInvalidQuery, q.MaxResults)
	}
	if strings.TrimSpace(language) == "" {
		return nil, fmt.Errorf("%w: language is required", ErrInvalidQuery)
	}

	start := time.Now()
	records, err := e.corpus.Records(ctx, Filter{Project: q.Project, Language: language})
	if err != nil {
		return nil, fmt.Errorf("loading translation memory: %w", err)
	}

	candidates := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Status != StatusApproved || !r.IsActive || r.Language != language {
			continue
		}
		if q.Project != "" && r.Project != q.Project {
			continue
		}
		if q.ExcludeStringID != "" && r.StringID == q.ExcludeStringID {
			continue
		}
		candidates = append(candidates, r)
	}

	strategy := e.strategy
	if strategy == StrategyAuto || strategy == "" {
		strategy = StrategyRatio
		if len(candidates) >= e.indexThreshold {
			strategy = StrategyTrigram
		}
	}

	var scores map[int]float64
	switch strategy {
	case StrategyTrigram:
		scores = e.scoreTrigram(sourceText, candidates, q.MinSimilarity)
	default:
		scores, err = e.scoreRatio(ctx, sourceText, candidates, q.MinSimilarity)
		if err != nil {
			return nil, err
		}
	}

	out := make([]Suggestion, 0, len(scores))
	for i, score := range scores {
		r := candidates[i]
		out = append(out, Suggestion{
			SourceText:     r.SourceText,
			TranslatedText: r.TranslatedText,
			Similarity:     round2(score),
			Project:        r.Project,
			ProjectName:    r.ProjectName,
			Key:            r.Key,
			Language:       r.Language,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.Project != b.Project {
			return a.Project < b.Project
		}
		if a.Key != b.Key {
			return a.Key < b.Key
		}
		return a.Language < b.Language
	})
	if len(out) > q.MaxResults {
		out = out[:q.MaxResults]
	}

	e.log.Debug().
		Str("strategy", string(strategy)).
		Int("candidates", len(candidates)).
		Int("results", len(out)).
		Dur("took", time.Since(start)).
		Msg("translation memory query")
	return out, nil
}

// scoreRatio scores every candidate pairwise. Large sets are split into
// chunks scored concurrently.
func (e *Engine) scoreRatio(ctx context.Context, query string, candidates []Record, threshold float64) (map[int]float64, error) {
	nq := Normalize(query)
	scores := make([]float64, len(candidates))

	workers := 1
	if len(candidates) >= parallelMin {
		workers = runtime.GOMAXPROCS(0)
	}
	chunk := (len(candidates) + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	for lo := 0; lo < len(candidates); lo += chunk {
		hi := min(lo+chunk, len(candidates))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if i%64 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				scores[i] = Ratio(nq, Normalize(candidates[i].SourceText))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[int]float64)
	for i, s := range scores {
		if round2(s) >= threshold {
			out[i] = s
		}
	}
	return out, nil
}

// scoreTrigram looks candidates up in the engine's index, adding source
// texts it has not seen yet, and scores only documents sharing a trigram
// with the query.
func (e *Engine) scoreTrigram(query string, candidates []Record, threshold float64) map[int]float64 {
	c := e.trigrams
	c.mu.Lock()
	defer c.mu.Unlock()

	byDoc := make(map[int][]int)
	added := 0
	for i, r := range candidates {
		id, ok := c.docs[r.SourceText]
		if !ok {
			id = c.ix.Add(Normalize(r.SourceText))
			c.docs[r.SourceText] = id
			added++
		}
		byDoc[id] = append(byDoc[id], i)
	}
	if added > 0 {
		e.log.Debug().Int("added", added).Int("indexed", c.ix.Len()).Msg("trigram index updated")
	}

	out := make(map[int]float64)
	for id, score := range c.ix.Search(Normalize(query), threshold) {
		for _, i := range byDoc[id] {
			out[i] = score
		}
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
