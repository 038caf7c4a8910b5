package chi

import (
	"context"
	"net/http"
	"time"

	"github.com/oapi-codegen/runtime"

	domdoc "github.com/kailas-cloud/askdex/internal/domain/document"
)

type searchParams struct {
	Query string
	Limit *int
}

type searchHit struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	Tags      []string   `json:"tags"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	Score     float64    `json:"score"`
}

type searchFunc func(ctx context.Context, raw string, limit int) ([]domdoc.Hit, error)

// Search handles GET /search?query=...[&limit=n].
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	s.runSearch(w, r, s.search.Search)
}

// SimilarTitles handles GET /search/similar-titles?query=...[&limit=n].
func (s *Server) SimilarTitles(w http.ResponseWriter, r *http.Request) {
	s.runSearch(w, r, s.search.SimilarTitles)
}

func (s *Server) runSearch(w http.ResponseWriter, r *http.Request, fn searchFunc) {
	params, err := bindSearchParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	limit := 0
	if params.Limit != nil {
		limit = *params.Limit
	}
	hits, err := fn(r.Context(), params.Query, limit)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]searchHit, len(hits))
	for i := range hits {
		items[i] = hitToResponse(&hits[i])
	}
	writeJSON(w, http.StatusOK, items)
}

func bindSearchParams(r *http.Request) (searchParams, error) {
	var p searchParams
	q := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, true, "query", q, &p.Query); err != nil {
		return p, err
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", q, &p.Limit); err != nil {
		return p, err
	}
	return p, nil
}

func hitToResponse(h *domdoc.Hit) searchHit {
	tags := h.Tags()
	if tags == nil {
		tags = []string{}
	}
	out := searchHit{
		ID:      h.ID(),
		Title:   h.Title(),
		Content: h.Content(),
		Tags:    tags,
		Score:   h.Score,
	}
	if h.CreatedAt() > 0 {
		t := time.Unix(h.CreatedAt(), 0).UTC()
		out.CreatedAt = &t
	}
	return out
}
