// Package form serves the reviewer-facing answer page.
package form

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/handoff/internal/domain"
	"github.com/gosuda/handoff/web"
)

const (
	// AnswerPath is the route of the answer page, matching notify.ReviewURL.
	AnswerPath = "/answer_question/{auth_key}/{question_id}"

	maxFormBytes = 64 << 10
	notFoundText = "Question not found or invalid link"
)

// Reviewer is the subset of handoff.Service used by the form.
type Reviewer interface {
	Review(ctx context.Context, questionID, authKey string) (domain.Question, error)
	Submit(ctx context.Context, questionID, authKey, answer string) (domain.Question, bool, error)
	Now() time.Time
}

type page struct {
	Question  domain.Question
	ExpiresIn int
	Closed    bool
	Expired   bool
	Submitted bool
	Late      bool
	Error     string
}

// Handler renders and accepts answers. It never asks for the API key; the
// auth key in the URL is the only credential.
type Handler struct {
	reviewer Reviewer
	tmpl     *template.Template
}

// NewHandler parses the embedded templates.
func NewHandler(reviewer Reviewer) (*Handler, error) {
	tmpl, err := template.ParseFS(web.Templates, "templates/answer_form.html")
	if err != nil {
		return nil, err
	}
	return &Handler{reviewer: reviewer, tmpl: tmpl}, nil
}

// Routes mounts the answer page on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get(AnswerPath, h.show)
	r.Post(AnswerPath, h.submit)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, key := chi.URLParam(r, "question_id"), chi.URLParam(r, "auth_key")

	q, err := h.reviewer.Review(r.Context(), id, key)
	if err != nil {
		h.fail(w, err, id)
		return
	}

	h.render(w, http.StatusOK, h.pageFor(q))
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	id, key := chi.URLParam(r, "question_id"), chi.URLParam(r, "auth_key")

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form submission", http.StatusBadRequest)
		return
	}

	answer := strings.TrimSpace(r.PostForm.Get("custom_answer"))
	if answer == "" {
		answer = strings.TrimSpace(r.PostForm.Get("answer"))
	}

	q, recorded, err := h.reviewer.Submit(r.Context(), id, key, answer)
	if errors.Is(err, domain.ErrInvalidInput) {
		h.rerender(w, r, id, key)
		return
	}
	if err != nil {
		h.fail(w, err, id)
		return
	}

	p := h.pageFor(q)
	p.Submitted = recorded
	p.Late = !recorded
	h.render(w, http.StatusOK, p)
}

// rerender shows the form again after an empty submission. If the question
// closed in the meantime the terminal notice is shown instead.
func (h *Handler) rerender(w http.ResponseWriter, r *http.Request, id, key string) {
	q, err := h.reviewer.Review(r.Context(), id, key)
	if err != nil {
		h.fail(w, err, id)
		return
	}

	p := h.pageFor(q)
	if p.Closed {
		h.render(w, http.StatusOK, p)
		return
	}
	p.Error = "Please choose an option or write an answer."
	h.render(w, http.StatusBadRequest, p)
}

func (h *Handler) pageFor(q domain.Question) page {
	now := h.reviewer.Now()
	status := q.Status(now)
	return page{
		Question:  q,
		ExpiresIn: int(q.Remaining(now).Round(time.Second) / time.Second),
		Closed:    status != domain.QuestionStatusPending,
		Expired:   status == domain.QuestionStatusExpired,
	}
}

func (h *Handler) fail(w http.ResponseWriter, err error, id string) {
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrAccessDenied) {
		log.Debug().Err(err).Str("question_id", id).Msg("answer page rejected")
		http.Error(w, notFoundText, http.StatusNotFound)
		return
	}
	log.Error().Err(err).Str("question_id", id).Msg("answer page failed")
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

func (h *Handler) render(w http.ResponseWriter, status int, p page) {
	var buf bytes.Buffer
	if err := h.tmpl.Execute(&buf, p); err != nil {
		log.Error().Err(err).Msg("render answer page")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
