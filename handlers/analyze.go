package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"auteur/models"
	"auteur/services/ingest"
	"auteur/services/toplist"
)

// ratingsAnalyzer is the slice of the toplist service the handler needs.
type ratingsAnalyzer interface {
	Aggregate(ctx context.Context, rows []models.RatingEntry, minCredits int) []models.RankedEntry
}

var _ ratingsAnalyzer = (*toplist.Service)(nil)

var errUploadTooLarge = errors.New("upload too large")

type AnalyzeHandler struct {
	Service        ratingsAnalyzer
	MaxUploadBytes int64
}

func NewAnalyzeHandler(s ratingsAnalyzer, maxUploadMB int) *AnalyzeHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 32
	}
	return &AnalyzeHandler{
		Service:        s,
		MaxUploadBytes: int64(maxUploadMB) << 20,
	}
}

// Analyze handles POST /api/analyze. The body is either a multipart form
// with a "file" field or a raw CSV/zip bundle; minCredits comes from the
// query string and is clamped to the documented range. An empty toplist is
// a valid 200 response.
func (h *AnalyzeHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()[:8]

	data, err := h.readBundle(w, r)
	if err != nil {
		return
	}

	rows, err := ingest.Rows(data)
	if err != nil {
		log.Printf("[analyze] id=%s rejected bundle bytes=%d err=%v", id, len(data), err)
		writeError(w, http.StatusBadRequest, "no parsable ratings found in upload")
		return
	}

	minCredits := toplist.ClampMinCredits(r.URL.Query().Get("minCredits"))
	log.Printf("[analyze] id=%s bytes=%d rows=%d minCredits=%d", id, len(data), len(rows), minCredits)

	ranked := h.Service.Aggregate(r.Context(), rows, minCredits)
	if ranked == nil {
		ranked = []models.RankedEntry{}
	}
	log.Printf("[analyze] id=%s done ranked=%d", id, len(ranked))

	writeJSON(w, http.StatusOK, models.AnalyzeResponse{Toplist: ranked, Rows: len(rows)})
}

// readBundle extracts the upload bytes from either a multipart form or the
// raw body, enforcing the size ceiling. On failure it writes the error
// response itself and returns a non-nil error.
func (h *AnalyzeHandler) readBundle(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(h.MaxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart upload")
			return nil, err
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "multipart upload missing file field")
			return nil, err
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, h.MaxUploadBytes+1))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read upload")
			return nil, err
		}
		if int64(len(data)) > h.MaxUploadBytes {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return nil, errUploadTooLarge
		}
		return data, nil
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, h.MaxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return nil, err
	}
	if int64(len(data)) > h.MaxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
		return nil, errUploadTooLarge
	}
	return data, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[analyze] failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
