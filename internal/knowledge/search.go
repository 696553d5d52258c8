// Package knowledge answers informational questions from an agent's property
// and FAQ index.
package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"

	"github.com/marwie0904/leadify-RE-APP-sub004/internal/llm"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/model"
	"github.com/marwie0904/leadify-RE-APP-sub004/pkg/logger"
)

// ErrSearchFailed wraps index failures.
var ErrSearchFailed = errors.New("knowledge search failed")

// Passage is one retrieved document.
type Passage struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Searcher retrieves passages relevant to a query.
type Searcher interface {
	Search(ctx context.Context, query string, scope llm.Scope) ([]Passage, error)
}

// NoopSearcher returns nothing. Used when no index is configured.
type NoopSearcher struct{}

// Search implements Searcher.
func (NoopSearcher) Search(context.Context, string, llm.Scope) ([]Passage, error) {
	return nil, nil
}

// Embedder is the subset of the model gateway used for query vectors.
type Embedder interface {
	Embed(ctx context.Context, op model.OperationType, text string, scope llm.Scope) ([]float32, *model.Usage, error)
}

// ElasticConfig configures ElasticSearcher.
type ElasticConfig struct {
	Addresses   []string
	Username    string
	Password    string
	IndexPrefix string
	Size        int
	// Transport overrides the HTTP transport, mostly for tests.
	Transport http.RoundTripper
}

// ElasticSearcher runs kNN queries over an index per agent. The query is
// embedded through the gateway so the call is metered as semantic_search.
// Without an embedding provider it falls back to a full-text match.
type ElasticSearcher struct {
	es     *elasticsearch.Client
	embed  Embedder
	prefix string
	size   int
	log    *logger.Logger
}

// NewElasticSearcher creates a searcher.
func NewElasticSearcher(cfg ElasticConfig, embed Embedder, log *logger.Logger) (*ElasticSearcher, error) {
	if log == nil {
		log = logger.NewNop()
	}
	esCfg := elasticsearch.Config{
		Addresses: cfg.Addresses,
		Transport: cfg.Transport,
	}
	if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}
	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	prefix := cfg.IndexPrefix
	if prefix == "" {
		prefix = "knowledge-"
	}
	size := cfg.Size
	if size <= 0 {
		size = 3
	}
	return &ElasticSearcher{es: es, embed: embed, prefix: prefix, size: size, log: log}, nil
}

// Ping checks the cluster.
func (s *ElasticSearcher) Ping(ctx context.Context) error {
	res, err := s.es.Ping(s.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch ping error: %s", res.Status())
	}
	return nil
}

// Search implements Searcher.
func (s *ElasticSearcher) Search(ctx context.Context, query string, scope llm.Scope) ([]Passage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	var body map[string]any
	vector, _, err := s.embed.Embed(ctx, model.OpSemanticSearch, query, scope)
	switch {
	case errors.Is(err, llm.ErrNoEmbedder):
		body = map[string]any{
			"size":  s.size,
			"query": map[string]any{"match": map[string]any{"content": query}},
		}
	case err != nil:
		return nil, err
	default:
		body = map[string]any{
			"size": s.size,
			"knn": map[string]any{
				"field":          "embedding",
				"query_vector":   vector,
				"k":              s.size,
				"num_candidates": s.size * 10,
			},
			"_source": []string{"title", "content"},
		}
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req := esapi.SearchRequest{
		Index: []string{s.index(scope.AgentID)},
		Body:  bytes.NewReader(raw),
	}
	res, err := req.Do(ctx, s.es)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		s.log.Debug("knowledge index missing", zap.String("index", s.index(scope.AgentID)))
		return nil, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("%w: %s", ErrSearchFailed, res.String())
	}

	var r struct {
		Hits struct {
			Hits []struct {
				Score  float64 `json:"_score"`
				Source Passage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrSearchFailed, err)
	}

	out := make([]Passage, 0, len(r.Hits.Hits))
	for _, h := range r.Hits.Hits {
		p := h.Source
		p.Score = h.Score
		out = append(out, p)
	}
	return out, nil
}

func (s *ElasticSearcher) index(agentID string) string {
	if agentID == "" {
		agentID = "default"
	}
	return s.prefix + strings.ToLower(agentID)
}
