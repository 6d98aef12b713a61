package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxPedidos = "pedidos"

// Meili implements Searcher via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the pedidos index.
// An unreachable server leaves the client unhealthy until the health loop
// sees it come back.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxPedidos,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxPedidos, err)
	}

	index := m.client.Index(idxPedidos)
	filterable := []interface{}{"usuarioId", "tipoCertidao"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs for %s: %v", idxPedidos, err)
	}
	searchable := []string{"numeroPedido", "matricula", "codigoCertidao", "participantes", "documentos", "protocolos"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", idxPedidos, err)
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
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries the pedidos index restricted to q.UsuarioID.
func (m *Meili) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{{
			IndexUID:              idxPedidos,
			Query:                 q.Text,
			Limit:                 limit,
			Offset:                int64(q.Offset),
			Filter:                fmt.Sprintf("usuarioId = %d", q.UsuarioID),
			AttributesToHighlight: []string{"participantes", "protocolos"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
		}},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit))
		}
	}
	return results, total, nil
}

func hitToResult(hit meili.Hit) Result {
	r := Result{
		NumeroPedido: decodeString(hit, "numeroPedido"),
		Matricula:    decodeString(hit, "matricula"),
		DataPedido:   decodeString(hit, "dataPedido"),
	}
	if raw, ok := hit["id"]; ok {
		_ = json.Unmarshal(raw, &r.PedidoID)
	}
	r.Snippet = firstNonBlank(
		highlighted(hit, "participantes"),
		highlighted(hit, "protocolos"),
		strings.Join(decodeStrings(hit, "participantes"), ", "),
	)
	return r
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

func decodeStrings(hit meili.Hit, key string) []string {
	raw, ok := hit[key]
	if !ok {
		return nil
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil
	}
	return values
}

// highlighted returns the highlighted entries of an array attribute, keeping
// only those Meilisearch actually marked.
func highlighted(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]json.RawMessage
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	var values []string
	if err := json.Unmarshal(formatted[key], &values); err != nil {
		return ""
	}
	var marked []string
	for _, v := range values {
		if strings.Contains(v, "<mark>") {
			marked = append(marked, v)
		}
	}
	return strings.Join(marked, ", ")
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexPedido adds or updates a pedido in the search index.
func (m *Meili) IndexPedido(rec PedidoRecord) error {
	_, err := m.client.Index(idxPedidos).AddDocuments([]PedidoRecord{rec}, nil)
	return err
}

// DeletePedido removes a pedido from the search index.
func (m *Meili) DeletePedido(id int64) error {
	_, err := m.client.Index(idxPedidos).DeleteDocument(strconv.FormatInt(id, 10), nil)
	return err
}

// IndexPedidos bulk-indexes pedidos.
func (m *Meili) IndexPedidos(records []PedidoRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxPedidos).AddDocuments(records, nil)
	return err
}
