package summarizer

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/skynetai/skynet/backend/internal/apperr"
	"github.com/skynetai/skynet/backend/internal/model/user"
	summarizerService "github.com/skynetai/skynet/backend/internal/service/summarizer"
	"github.com/skynetai/skynet/backend/pkg/utils"
)

// Handler serves the /summarizer routes.
type Handler struct {
	svc            *summarizerService.Service
	maxUploadBytes int64
}

// New creates the summarizer handler. Uploads above maxUploadBytes are
// rejected.
func New(svc *summarizerService.Service, maxUploadBytes int64) *Handler {
	return &Handler{svc: svc, maxUploadBytes: maxUploadBytes}
}

// RegisterRoutes mounts the summarizer routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/summarizer", func(r chi.Router) {
		r.Get("/text", h.handleText)
		r.Post("/text", h.handleText)
		r.Post("/file", h.handleFile)
	})
}

func (h *Handler) handleText(w http.ResponseWriter, r *http.Request) {
	u, ok := user.FromContext(r.Context())
	if !ok {
		utils.RespondErr(w, r, apperr.New(apperr.ErrInvalidToken, "missing user"))
		return
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Text == "" {
		payload.Text = r.URL.Query().Get("text")
	}
	if payload.Text == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	summary, err := h.svc.SummarizeText(r.Context(), u.ID, payload.Text)
	if err != nil {
		utils.RespondErr(w, r, err)
		return
	}
	utils.RespondMessage(w, http.StatusOK, summary)
}

func (h *Handler) handleFile(w http.ResponseWriter, r *http.Request) {
	u, ok := user.FromContext(r.Context())
	if !ok {
		utils.RespondErr(w, r, apperr.New(apperr.ErrInvalidToken, "missing user"))
		return
	}

	if r.ContentLength > h.maxUploadBytes {
		utils.RespondError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		utils.RespondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	kind, err := summarizerService.KindFromUpload(header.Filename, header.Header.Get("Content-Type"))
	if err != nil {
		utils.RespondErr(w, r, err)
		return
	}

	raw, err := io.ReadAll(file)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	summary, err := h.svc.Summarize(r.Context(), u.ID, raw, kind)
	if err != nil {
		utils.RespondErr(w, r, err)
		return
	}
	utils.RespondMessage(w, http.StatusOK, summary)
}
