// Package web is the thin HTTP adapter over the core operations. Handlers
// parse requests, call into the store, recorder and resolver, and translate
// the error taxonomy into status codes; no scheduling or conflict logic
// lives here.
package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/rememo/rememo/internal/domain"
	"github.com/rememo/rememo/internal/review"
	"github.com/rememo/rememo/internal/storage"
	syncpkg "github.com/rememo/rememo/internal/sync"
)

// Server holds the dependencies of the HTTP adapter.
type Server struct {
	store    *storage.Store
	recorder *review.Recorder
	resolver *syncpkg.Resolver
	log      *slog.Logger
	validate *validator.Validate
	router   *http.ServeMux
}

// NewServer creates and configures the adapter.
func NewServer(store *storage.Store, recorder *review.Recorder, resolver *syncpkg.Resolver, log *slog.Logger) *Server {
	s := &Server{
		store:    store,
		recorder: recorder,
		resolver: resolver,
		log:      log,
		validate: validator.New(),
		router:   http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.HandleFunc("POST /items", s.handleCreateItem)
	s.router.HandleFunc("GET /items", s.handleListItems)
	s.router.HandleFunc("GET /items/{id}", s.handleGetItem)
	s.router.HandleFunc("PUT /items/{id}", s.handleUpdateItem)
	s.router.HandleFunc("DELETE /items/{id}", s.handleDeleteItem)

	s.router.HandleFunc("POST /cards/{id}/review", s.handleRecordReview)
	s.router.HandleFunc("PUT /cards/{id}/priority", s.handleSetPriority)
	s.router.HandleFunc("POST /cards/{id}/suspend", s.handleSuspend)
	s.router.HandleFunc("POST /cards/{id}/unsuspend", s.handleUnsuspend)
	s.router.HandleFunc("GET /cards/{id}/reviews", s.handleListReviews)

	s.router.HandleFunc("GET /due", s.handleDue)
	s.router.HandleFunc("POST /sync", s.handleSync)
	s.router.HandleFunc("GET /stats", s.handleStats)
}

type createItemRequest struct {
	ItemType  string          `json:"item_type" validate:"required"`
	Title     string          `json:"title" validate:"required"`
	ItemData  json.RawMessage `json:"item_data"`
	CardCount int             `json:"card_count" validate:"gte=1,lte=100"`
	Tags      []string        `json:"tags"`
}

type itemResponse struct {
	Item  *domain.Item  `json:"item"`
	Tags  []string      `json:"tags,omitempty"`
	Cards []domain.Card `json:"cards,omitempty"`
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if !s.decode(w, r, &req) {
		return
	}
	item, cards, err := s.store.CreateItem(r.Context(), storage.CreateItemInput{
		ItemType:  req.ItemType,
		Title:     req.Title,
		ItemData:  req.ItemData,
		CardCount: req.CardCount,
		Tags:      req.Tags,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, itemResponse{Item: item, Tags: req.Tags, Cards: cards})
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.ListItems(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, tags, cards, err := s.store.GetItem(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, itemResponse{Item: item, Tags: tags, Cards: cards})
}

type updateItemRequest struct {
	ItemType *string         `json:"item_type"`
	Title    *string         `json:"title"`
	ItemData json.RawMessage `json:"item_data"`
	Tags     []string        `json:"tags"`
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	if !s.decode(w, r, &req) {
		return
	}
	item, err := s.store.UpdateItem(r.Context(), r.PathValue("id"), storage.UpdateItemInput{
		ItemType: req.ItemType,
		Title:    req.Title,
		ItemData: req.ItemData,
		Tags:     req.Tags,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, itemResponse{Item: item})
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteItem(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reviewRequest struct {
	Rating     int    `json:"rating" validate:"required"`
	DeviceID   string `json:"device_id"`
	DurationMs *int64 `json:"duration_ms" validate:"omitempty,gte=0"`
}

func (s *Server) handleRecordReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if !s.decode(w, r, &req) {
		return
	}
	var duration *time.Duration
	if req.DurationMs != nil {
		d := time.Duration(*req.DurationMs) * time.Millisecond
		duration = &d
	}
	rec, err := s.recorder.Record(r.Context(), review.Request{
		CardID:   r.PathValue("id"),
		Rating:   domain.Rating(req.Rating),
		DeviceID: req.DeviceID,
		Duration: duration,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"review": rec})
}

type priorityRequest struct {
	Priority float64 `json:"priority"`
}

func (s *Server) handleSetPriority(w http.ResponseWriter, r *http.Request) {
	var req priorityRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.store.SetPriority(r.Context(), r.PathValue("id"), req.Priority); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSuspend(w http.ResponseWriter, r *http.Request) {
	if err := s.store.SuspendCard(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnsuspend(w http.ResponseWriter, r *http.Request) {
	if err := s.store.UnsuspendCard(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := s.store.ListReviews(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"reviews": reviews})
}

func (s *Server) handleDue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := storage.DueFilter{ItemType: q.Get("item_type")}
	if tags := q["tag"]; len(tags) > 0 {
		filter.Tags = tags
	}
	var err error
	if filter.MinPriority, err = parseFloat(q.Get("min_priority")); err != nil {
		s.writeError(w, r, err)
		return
	}
	if filter.MaxPriority, err = parseFloat(q.Get("max_priority")); err != nil {
		s.writeError(w, r, err)
		return
	}

	var after *storage.Cursor
	if token := q.Get("cursor"); token != "" {
		if after, err = storage.DecodeCursor(token); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			s.writeError(w, r, domain.ErrValidation)
			return
		}
	}

	cards, next, err := s.store.DueCards(r.Context(), time.Now().UTC(), filter, after, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := map[string]any{"cards": cards}
	if next != nil {
		resp["next_cursor"] = next.Encode()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type syncRequest struct {
	DeviceID string               `json:"device_id" validate:"required"`
	LastSync time.Time            `json:"last_sync"`
	Changes  []syncpkg.ItemChange `json:"changes"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.resolver.Sync(r.Context(), syncpkg.Request{
		DeviceID: req.DeviceID,
		LastSync: req.LastSync,
		Changes:  req.Changes,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := storage.ReadStats(r.Context(), s.store.DB())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// Nil until the first housekeeping pass has run.
	s.writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

// decode parses and validates a JSON request body, writing the error
// response itself on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed JSON body"})
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("encode response", "error", err)
	}
}

// writeError translates the core error taxonomy into transport responses.
// The core never does this itself.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidRating):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownSchedulerType):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func parseFloat(raw string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, domain.ErrValidation
	}
	return &v, nil
}
