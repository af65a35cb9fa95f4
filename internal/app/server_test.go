package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/docflow/internal/api/handlers"
	middleware "github.com/markdave123-py/docflow/internal/api/middlewares"
	"github.com/markdave123-py/docflow/internal/config"
	"github.com/markdave123-py/docflow/internal/core/mock"
	"github.com/markdave123-py/docflow/internal/models"
	"github.com/markdave123-py/docflow/internal/services"
)

var secret = []byte("router-secret")

func testRouter(health func(context.Context) error) (http.Handler, *mock.MemoryRepository) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := mock.NewMemoryRepository()
	index := mock.NewMemoryVectorIndex()
	docs := services.NewDocumentService(repo, mock.NewMemoryBlobStore(), index, &mock.RecordingQueue{}, logger)
	chat := services.NewChatService(services.NewRetrievalService(mock.NewMockEmbedder(), index, 5, logger), &mock.MockLLM{})

	return NewRouter(RouterDeps{
		JWTSecret: secret,
		Documents: handlers.NewDocumentHandler(docs, logger),
		Chat:      handlers.NewChatHandler(chat, logger),
		Health:    health,
		Logger:    logger,
	}), repo
}

func TestRouter_Healthz(t *testing.T) {
	r, _ := testRouter(func(context.Context) error { return nil })
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	r, _ = testRouter(func(context.Context) error { return errors.New("db down") })
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouter_APIRequiresToken(t *testing.T) {
	r, repo := testRouter(nil)
	repo.Put(&models.Document{ID: "d1", TenantID: "acme", Status: models.StatusCompleted})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/documents/d1", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := middleware.SignToken(secret, "acme", nil)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/documents/d1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	other, err := middleware.SignToken(secret, "globex", nil)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/documents/d1", nil)
	req.Header.Set("Authorization", "Bearer "+other)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	r, _ := testRouter(nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/documents/d1/content", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestIngestConfigFrom(t *testing.T) {
	cfg := &config.Config{
		WorkerCount: 3, QueueSize: 9, MaxAttempts: 5, ChunkSize: 400, ChunkOverlap: 40,
		EmbedBatchSize: 8, EmbedConcurrency: 2, AutoConfirm: true,
	}
	ic := IngestConfigFrom(cfg)
	assert.Equal(t, 3, ic.Workers)
	assert.Equal(t, 9, ic.QueueSize)
	assert.Equal(t, 5, ic.Retry.MaxAttempts)
	assert.Equal(t, 400, ic.ChunkSize)
	assert.Equal(t, 40, ic.ChunkOverlap)
	assert.Equal(t, 8, ic.BatchSize)
	assert.True(t, ic.AutoConfirm)
}
