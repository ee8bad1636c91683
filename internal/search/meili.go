package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/rs/zerolog"
)

const idxNotes = "notegeek_notes"

// Meili implements Searcher via Meilisearch.
type Meili struct {
	client    meili.ServiceManager
	logger    zerolog.Logger
	healthy   atomic.Bool
	onRecover atomic.Pointer[func()]
	done      chan struct{}
}

// NewMeili creates a Meilisearch client and configures the notes index.
// An unreachable server is not an error: the health loop keeps checking and
// the service falls back until it recovers.
func NewMeili(url, apiKey string, logger zerolog.Logger) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		logger: logger,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		logger.Warn().Err(err).Str("url", url).Msg("search: meilisearch unavailable")
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxNotes,
		PrimaryKey: "id",
	}); err != nil {
		m.logger.Debug().Err(err).Msg("search: create index (may already exist)")
	}

	index := m.client.Index(idxNotes)
	filterable := []interface{}{"userId", "tags", "type"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.logger.Warn().Err(err).Msg("search: update filterable attributes")
	}
	// Order sets attribute ranking: title matches outrank tags, tags outrank content.
	searchable := []string{"title", "tags", "content"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.logger.Warn().Err(err).Msg("search: update searchable attributes")
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.checkHealth()
		}
	}
}

// checkHealth refreshes the health flag. On the unhealthy to healthy
// transition the index is reconfigured and the recover hook runs.
func (m *Meili) checkHealth() {
	_, err := m.client.Health()
	wasHealthy := m.healthy.Swap(err == nil)
	if err != nil || wasHealthy {
		return
	}
	m.logger.Info().Msg("search: meilisearch recovered, reconfiguring index")
	m.configureIndexes()
	if fn := m.onRecover.Load(); fn != nil {
		(*fn)()
	}
}

// OnRecover registers fn to run each time Meilisearch comes back after
// being unreachable.
func (m *Meili) OnRecover(fn func()) {
	m.onRecover.Store(&fn)
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(_ context.Context, q Query) ([]Hit, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{searchRequest(q)},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}

	hits := make([]Hit, 0)
	for _, sr := range resp.Results {
		for _, hit := range sr.Hits {
			if h, ok := decodeHit(hit); ok {
				hits = append(hits, h)
			}
		}
	}
	return hits, nil
}

func searchRequest(q Query) *meili.SearchRequest {
	return &meili.SearchRequest{
		IndexUID:             idxNotes,
		Query:                q.Text,
		Limit:                int64(q.limit()),
		Filter:               fmt.Sprintf("userId = %q", q.UserID),
		AttributesToRetrieve: []string{"id"},
		ShowRankingScore:     true,
	}
}

func decodeHit(hit meili.Hit) (Hit, bool) {
	id := decodeString(hit, "id")
	if id == "" {
		return Hit{}, false
	}
	var score float64
	if raw, ok := hit["_rankingScore"]; ok {
		_ = json.Unmarshal(raw, &score)
	}
	return Hit{ID: id, Score: score}, true
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

// IndexNote adds or updates a note in the search index.
func (m *Meili) IndexNote(record NoteRecord) error {
	_, err := m.client.Index(idxNotes).AddDocuments([]NoteRecord{record}, nil)
	return err
}

// DeleteNote removes a note from the search index.
func (m *Meili) DeleteNote(id string) error {
	_, err := m.client.Index(idxNotes).DeleteDocument(id, nil)
	return err
}

// IndexNotes bulk-indexes notes.
func (m *Meili) IndexNotes(records []NoteRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxNotes).AddDocuments(records, nil)
	return err
}
