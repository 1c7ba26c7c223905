package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/shelfsense/gpcsearch/internal/pkg/errs"
	"github.com/shelfsense/gpcsearch/internal/pkg/logger"
	"github.com/shelfsense/gpcsearch/internal/services"
)

type fakeSearchService struct {
	calls  int
	result *services.SearchResult
	err    error
}

func (f *fakeSearchService) Resolve(ctx context.Context, text string) (*services.SearchResult, error) {
	f.calls++
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text required", errs.ErrInvalidArgument)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func newTestRouter(t *testing.T, svc services.SearchService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := NewSearchHandler(testLogger(t), svc)
	router.POST("/search", h.Search)
	return router
}

func doSearch(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSearchReturnsResult(t *testing.T) {
	svc := &fakeSearchService{result: &services.SearchResult{
		ID:             4,
		Code:           "50111200",
		Title:          "Apples",
		FullTitle:      "Food > Fresh Food > Fruits > Apples",
		Level2Category: "Fresh",
		Level3Category: "Produce",
		Active:         true,
	}}
	router := newTestRouter(t, svc)

	w := doSearch(router, `{"text":"organic apples"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var got services.SearchResult
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got.Code != "50111200" || got.Level3Category != "Produce" {
		t.Fatalf("body = %+v", got)
	}
}

func TestSearchAcceptsQueryParam(t *testing.T) {
	svc := &fakeSearchService{result: &services.SearchResult{ID: 1, Code: "1"}}
	router := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/search?text=apples", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestSearchStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", errs.ErrNotFound, http.StatusNotFound},
		{"internal", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(t, &fakeSearchService{err: tc.err})
			w := doSearch(router, `{"text":"apples"}`)
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d", w.Code, tc.status)
			}
			var envelope ErrorEnvelope
			if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
				t.Fatalf("decode error envelope: %v", err)
			}
			if envelope.Error.Message == "" {
				t.Fatalf("error envelope has no message")
			}
		})
	}
}

func TestSearchRejectsBlankText(t *testing.T) {
	router := newTestRouter(t, &fakeSearchService{})
	w := doSearch(router, `{"text":""}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
