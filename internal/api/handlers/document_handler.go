package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	middleware "github.com/markdave123-py/docflow/internal/api/middlewares"
	"github.com/markdave123-py/docflow/internal/core"
	"github.com/markdave123-py/docflow/internal/models"
	"github.com/markdave123-py/docflow/internal/services"
)

const (
	maxUploadBytes = 50 << 20
	uploadTimeout  = 5 * time.Minute
)

type DocumentHandler struct {
	docs   *services.DocumentService
	logger *slog.Logger
}

func NewDocumentHandler(docs *services.DocumentService, logger *slog.Logger) *DocumentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentHandler{docs: docs, logger: logger.With("component", "api")}
}

type documentList struct {
	Documents []models.Document `json:"documents"`
	Total     int               `json:"total"`
	Skip      int               `json:"skip"`
	Limit     int               `json:"limit"`
}

type confirmRequest struct {
	ConfirmedText string `json:"confirmed_text"`
}

type contentRequest struct {
	Content string   `json:"content"`
	Title   *string  `json:"title,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// Routes mounts the document endpoints on r.
func (h *DocumentHandler) Routes(r chi.Router) {
	r.Post("/upload", h.UploadDocument)
	r.Get("/", h.ListDocuments)
	r.Get("/pending-validation", h.ListPendingValidation)
	r.Get("/{id}", h.GetDocument)
	r.Delete("/{id}", h.DeleteDocument)
	r.Put("/{id}/retry", h.RetryUpload)
	r.Post("/{id}/confirm", h.Confirm)
	r.Post("/{id}/retry-processing", h.RetryProcessing)
	r.Put("/{id}/content", h.UpdateContent)
}

// UploadDocument stores the multipart "file" part and starts the pipeline for it.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, r, h.logger, &core.ValidationError{Field: "file", Message: "could not read multipart body: " + err.Error()})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, h.logger, &core.ValidationError{Field: "file", Message: "is required"})
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	ctx, cancel := context.WithTimeout(r.Context(), uploadTimeout)
	defer cancel()

	ref, err := h.docs.StoreUpload(ctx, tenantID, filename, contentType, file)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	title := r.FormValue("title")
	if title == "" {
		title = filename
	}
	doc, err := h.docs.StartUpload(ctx, services.UploadRequest{
		TenantID:    tenantID,
		SourceRef:   ref,
		Title:       title,
		ContentType: contentType,
		Tags:        splitTags(r.MultipartForm.Value["tags"]),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	skip, err := queryInt(r, "skip", 0)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	limit, err := queryInt(r, "limit", services.DefaultPageSize)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	docs, total, err := h.docs.ListDocuments(r.Context(), tenantID, skip, limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	writeJSON(w, http.StatusOK, documentList{
		Documents: docs,
		Total:     total,
		Skip:      max(skip, 0),
		Limit:     min(max(limit, 1), services.MaxPageSize),
	})
}

func (h *DocumentHandler) ListPendingValidation(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	docs, err := h.docs.ListPendingValidation(r.Context(), tenantID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	doc, err := h.docs.GetDocument(r.Context(), tenantID, chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, doc, err)
}

func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	if err := h.docs.DeleteDocument(r.Context(), tenantID, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentHandler) RetryUpload(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	doc, err := h.docs.RetryUpload(r.Context(), tenantID, chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusAccepted, doc, err)
}

func (h *DocumentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req confirmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	doc, err := h.docs.ConfirmAndEmbed(r.Context(), tenantID, chi.URLParam(r, "id"), req.ConfirmedText)
	h.respond(w, r, http.StatusAccepted, doc, err)
}

func (h *DocumentHandler) RetryProcessing(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	doc, err := h.docs.RetryProcessing(r.Context(), tenantID, chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusAccepted, doc, err)
}

func (h *DocumentHandler) UpdateContent(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req contentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	doc, err := h.docs.UpdateContent(r.Context(), tenantID, chi.URLParam(r, "id"), services.ContentUpdate{
		Text:  req.Content,
		Title: req.Title,
		Tags:  req.Tags,
	})
	h.respond(w, r, http.StatusAccepted, doc, err)
}

func (h *DocumentHandler) respond(w http.ResponseWriter, r *http.Request, status int, doc *models.Document, err error) {
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, status, doc)
}

func (h *DocumentHandler) tenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenantID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "tenant not found in token"})
	}
	return tenantID, ok
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &core.ValidationError{Field: key, Message: "must be an integer"}
	}
	return n, nil
}

// splitTags accepts repeated "tags" fields, comma separated values, or both.
func splitTags(values []string) []string {
	var tags []string
	for _, v := range values {
		tags = append(tags, strings.Split(v, ",")...)
	}
	return tags
}
