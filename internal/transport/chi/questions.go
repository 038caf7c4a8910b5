package chi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	domq "github.com/kailas-cloud/askdex/internal/domain/question"
)

const maxBodyBytes = 1 << 20

type answerRequest struct {
	Content string `json:"content"`
}

// CreateQuestion handles POST /questions.
func (s *Server) CreateQuestion(w http.ResponseWriter, r *http.Request) {
	var draft domq.Draft
	if !decodeBody(w, r, &draft) {
		return
	}

	q, err := s.questions.Create(r.Context(), draft)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	w.Header().Set("Location", "/questions/"+q.ID)
	writeJSON(w, http.StatusCreated, q)
}

// ListQuestions handles GET /questions[?tag=slug].
func (s *Server) ListQuestions(w http.ResponseWriter, r *http.Request) {
	var tag string
	if err := runtime.BindQueryParameter("form", true, false, "tag", r.URL.Query(), &tag); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid tag parameter")
		return
	}

	qs, err := s.questions.List(r.Context(), tag)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, qs)
}

// GetQuestion handles GET /questions/{id}.
func (s *Server) GetQuestion(w http.ResponseWriter, r *http.Request) {
	q, err := s.questions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if q.Answers == nil {
		q.Answers = []domq.Answer{}
	}
	writeJSON(w, http.StatusOK, questionWithAnswers{Question: q, Answers: q.Answers})
}

// questionWithAnswers always renders the answers array, even when empty.
type questionWithAnswers struct {
	*domq.Question
	Answers []domq.Answer `json:"answers"`
}

// UpdateQuestion handles PUT /questions/{id}.
func (s *Server) UpdateQuestion(w http.ResponseWriter, r *http.Request) {
	var draft domq.Draft
	if !decodeBody(w, r, &draft) {
		return
	}
	if err := s.questions.Update(r.Context(), chi.URLParam(r, "id"), draft); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteQuestion handles DELETE /questions/{id}.
func (s *Server) DeleteQuestion(w http.ResponseWriter, r *http.Request) {
	if err := s.questions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddAnswer handles POST /questions/{id}/answers.
func (s *Server) AddAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	questionID := chi.URLParam(r, "id")
	a, err := s.questions.AddAnswer(r.Context(), questionID, req.Content)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	w.Header().Set("Location", "/questions/"+questionID+"/answers/"+a.ID)
	writeJSON(w, http.StatusCreated, a)
}

// UpdateAnswer handles PUT /questions/{id}/answers/{answerId}.
func (s *Server) UpdateAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := s.questions.UpdateAnswer(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "answerId"), req.Content)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAnswer handles DELETE /questions/{id}/answers/{answerId}.
func (s *Server) DeleteAnswer(w http.ResponseWriter, r *http.Request) {
	if err := s.questions.DeleteAnswer(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "answerId")); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AcceptAnswer handles POST /questions/{id}/answers/{answerId}/accept.
func (s *Server) AcceptAnswer(w http.ResponseWriter, r *http.Request) {
	if err := s.questions.AcceptAnswer(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "answerId")); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}
