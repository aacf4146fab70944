package search

import "log"

// Service is the facade that tries Meilisearch first and falls back to
// querying Postgres directly.
type Service struct {
	meili *Meili
	pg    *PGSearch
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, pg *PGSearch) *Service {
	return &Service{meili: meili, pg: pg}
}

// Search tries Meilisearch if healthy, otherwise falls back to Postgres.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to postgres: %v", err)
	}

	results, total, err := s.pg.Search(q)
	if err != nil {
		log.Printf("search: postgres error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexMessage indexes a message (fire-and-forget to Meilisearch).
func (s *Service) IndexMessage(record MessageRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexMessage(record); err != nil {
			log.Printf("search: index message %s: %v", record.ID, err)
		}
	}()
}

// DeleteMessage removes a message from the index (fire-and-forget).
func (s *Service) DeleteMessage(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteMessage(id); err != nil {
			log.Printf("search: delete message %s: %v", id, err)
		}
	}()
}

// DeleteAll clears the index after a moderator bulk-clear (fire-and-forget).
func (s *Service) DeleteAll() {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteAllMessages(); err != nil {
			log.Printf("search: clear index: %v", err)
		}
	}()
}

func nonNil(results []Result) []Result {
	if results == nil {
		return []Result{}
	}
	return results
}
