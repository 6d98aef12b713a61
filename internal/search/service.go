package search

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"pedidos/api/internal/pedido"
)

// Indexer keeps an external index in step with stored pedidos.
type Indexer interface {
	IndexPedido(rec PedidoRecord) error
	DeletePedido(id int64) error
	IndexPedidos(records []PedidoRecord) error
	Healthy() bool
}

// Loader reads the current aggregate of a pedido owned by usuarioID. It must
// return pedido.ErrNotFound once the pedido is gone.
type Loader func(ctx context.Context, usuarioID, pedidoID int64) (pedido.Aggregate, error)

const loadTimeout = 10 * time.Second

// Service is the facade that tries the primary engine first and falls back
// to SQL. Index updates go through a single worker that reads each pedido
// again before pushing it, so the index ends on the last committed state
// whatever order the writes finished in.
type Service struct {
	primary  Searcher
	fallback Searcher
	indexer  Indexer
	closer   func()

	mu      sync.Mutex
	load    Loader
	pending map[int64]int64
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
	closed  bool
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, sql *SQLSearch) *Service {
	s := &Service{fallback: sql}
	if meili != nil {
		s.primary = meili
		s.indexer = meili
		s.closer = meili.Close
	}
	return s
}

// NewServiceWith builds a service from arbitrary engines. primary and indexer
// may be nil.
func NewServiceWith(primary, fallback Searcher, indexer Indexer) *Service {
	return &Service{primary: primary, fallback: fallback, indexer: indexer}
}

// Search tries the primary engine if healthy, otherwise falls back to SQL.
func (s *Service) Search(ctx context.Context, q Query) (Response, error) {
	if s.primary != nil && s.primary.Healthy() {
		results, total, err := s.primary.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}, nil
		}
		log.Printf("search: primary engine error, falling back to sql: %v", err)
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		return Response{Results: []Result{}, Query: q.Text}, err
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}, nil
}

// Start runs the index worker. Refresh is a no-op until Start is called, and
// later calls are ignored.
func (s *Service) Start(load Loader) {
	if s.indexer == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.load != nil || s.closed {
		return
	}
	s.load = load
	s.pending = map[int64]int64{}
	s.wake = make(chan struct{}, 1)
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run()
}

// Refresh schedules pedidoID to be read again and pushed to the index, or
// removed from it when it no longer exists. Repeated calls for a pedido that
// has not been processed yet collapse into one.
func (s *Service) Refresh(usuarioID, pedidoID int64) {
	s.mu.Lock()
	if s.load == nil || s.closed {
		s.mu.Unlock()
		return
	}
	s.pending[pedidoID] = usuarioID
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Service) run() {
	defer close(s.done)
	for {
		select {
		case <-s.wake:
			s.drain()
		case <-s.stop:
			s.drain()
			return
		}
	}
}

func (s *Service) drain() {
	for {
		s.mu.Lock()
		var usuarioID, pedidoID int64
		found := false
		for id, owner := range s.pending {
			pedidoID, usuarioID, found = id, owner, true
			break
		}
		if found {
			delete(s.pending, pedidoID)
		}
		s.mu.Unlock()
		if !found {
			return
		}
		s.sync(usuarioID, pedidoID)
	}
}

func (s *Service) sync(usuarioID, pedidoID int64) {
	if !s.indexer.Healthy() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()

	agg, err := s.load(ctx, usuarioID, pedidoID)
	switch {
	case errors.Is(err, pedido.ErrNotFound):
		if err := s.indexer.DeletePedido(pedidoID); err != nil {
			log.Printf("search: delete pedido %d: %v", pedidoID, err)
		}
	case err != nil:
		log.Printf("search: load pedido %d: %v", pedidoID, err)
	default:
		if err := s.indexer.IndexPedido(NewRecord(usuarioID, agg)); err != nil {
			log.Printf("search: index pedido %d: %v", pedidoID, err)
		}
	}
}

// ReindexAll pushes records to the index synchronously. It returns the
// number of records sent, zero when no index is available.
func (s *Service) ReindexAll(records []PedidoRecord) (int, error) {
	if !s.Indexing() {
		return 0, nil
	}
	if err := s.indexer.IndexPedidos(records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// Indexing reports whether writes should be pushed to the index.
func (s *Service) Indexing() bool {
	return s.indexer != nil && s.indexer.Healthy()
}

// Backend names the engine that will serve the next query.
func (s *Service) Backend() string {
	if s.primary != nil && s.primary.Healthy() {
		return "meilisearch"
	}
	return "sql"
}

// Close processes refreshes already scheduled, then stops background work.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	started := s.load != nil
	s.mu.Unlock()

	if started {
		close(s.stop)
		<-s.done
	}
	if s.closer != nil {
		s.closer()
	}
}
