package httpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"

	"pastebin-lite/internal/paste"
)

const notFoundMessage = "paste not found or unavailable"

type createRequest struct {
	Content    json.RawMessage `json:"content"`
	TTLSeconds json.RawMessage `json:"ttl_seconds"`
	MaxViews   json.RawMessage `json:"max_views"`
}

type createResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type fetchResponse struct {
	Content        string  `json:"content"`
	RemainingViews *int64  `json:"remaining_views"`
	ExpiresAt      *string `json:"expires_at"`
}

type healthResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	in, err := req.input()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.pastes.Create(r.Context(), in, s.clock.ForRequest(r))
	if err != nil {
		var verr *paste.ValidationError
		if errors.As(err, &verr) {
			s.writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		s.serverError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, createResponse{ID: id, URL: s.shareURL(r, id)})
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	view, err := s.pastes.Retrieve(r.Context(), chi.URLParam(r, "id"), s.clock.ForRequest(r))
	if err != nil {
		if errors.Is(err, paste.ErrUnavailable) {
			s.writeError(w, http.StatusNotFound, notFoundMessage)
			return
		}
		s.serverError(w, r, err)
		return
	}

	resp := fetchResponse{
		Content:        view.Content,
		RemainingViews: view.RemainingViews,
	}
	if view.ExpiresAt != nil {
		ts := formatMillis(*view.ExpiresAt)
		resp.ExpiresAt = &ts
	}
	w.Header().Set("Cache-Control", "no-store")
	s.writeJSON(w, http.StatusOK, resp)
}

// handleRaw is the share link target. It spends a view exactly like the API.
func (s *Server) handleRaw(w http.ResponseWriter, r *http.Request) {
	view, err := s.pastes.Retrieve(r.Context(), chi.URLParam(r, "id"), s.clock.ForRequest(r))
	if err != nil {
		if errors.Is(err, paste.ErrUnavailable) {
			http.Error(w, "Not found or expired", http.StatusNotFound)
			return
		}
		s.logger.Error("internal error", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	h.Set("X-Content-Type-Options", "nosniff")
	if view.RemainingViews != nil {
		h.Set("X-Remaining-Views", strconv.FormatInt(*view.RemainingViews, 10))
	}
	if view.ExpiresAt != nil {
		h.Set("X-Expires-At", formatMillis(*view.ExpiresAt))
	}
	_, _ = io.WriteString(w, view.Content)
}

// handleQR encodes the share link only; it never reads the store, so it
// costs no view and says nothing about whether the paste exists.
func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	png, err := qrcode.Encode(s.shareURL(r, chi.URLParam(r, "id")), qrcode.Medium, 256)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.pastes.Ping(r.Context()); err != nil {
		s.logger.Error("health check failed", "error", err)
		s.writeJSON(w, http.StatusInternalServerError, healthResponse{OK: false, Error: "persistence layer unavailable"})
		return
	}
	s.writeJSON(w, http.StatusOK, healthResponse{OK: true})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Error: message})
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("internal error", "error", err, "path", r.URL.Path, "request_id", RequestIDFrom(r.Context()))
	s.writeError(w, http.StatusInternalServerError, "Internal Server Error")
}

// input converts the wire request. Type mismatches are reported as
// validation errors; range checks are left to the paste service.
func (req createRequest) input() (paste.CreateInput, error) {
	var in paste.CreateInput
	if !isNull(req.Content) {
		if err := json.Unmarshal(req.Content, &in.Content); err != nil {
			return in, &paste.ValidationError{Field: "content", Message: "is required and must be a non-empty string"}
		}
	}
	var err error
	if in.TTLSeconds, err = optionalInt("ttl_seconds", req.TTLSeconds); err != nil {
		return in, err
	}
	if in.MaxViews, err = optionalInt("max_views", req.MaxViews); err != nil {
		return in, err
	}
	return in, nil
}

// optionalInt accepts an absent or null field, or a JSON number with no
// fractional part, so 5, 5.0 and 5e0 are the same value. Strings, booleans
// and fractions are rejected. Integers beyond int64 saturate.
func optionalInt(field string, raw json.RawMessage) (*int64, error) {
	if isNull(raw) {
		return nil, nil
	}
	invalid := &paste.ValidationError{Field: field, Message: "must be an integer >= 1"}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, invalid
	}
	num, ok := v.(json.Number)
	if !ok {
		return nil, invalid
	}
	if n, err := strconv.ParseInt(num.String(), 10, 64); err == nil {
		return &n, nil
	}
	f, _, err := big.ParseFloat(num.String(), 10, 256, big.ToNearestEven)
	if err != nil || !f.IsInt() {
		return nil, invalid
	}
	n, _ := f.Int64()
	return &n, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// formatMillis renders a timestamp the way JavaScript's toISOString does.
func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
