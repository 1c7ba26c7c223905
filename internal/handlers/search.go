package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shelfsense/gpcsearch/internal/pkg/errs"
	"github.com/shelfsense/gpcsearch/internal/pkg/logger"
	"github.com/shelfsense/gpcsearch/internal/services"
)

type SearchHandler struct {
	log *logger.Logger
	svc services.SearchService
}

func NewSearchHandler(log *logger.Logger, svc services.SearchService) *SearchHandler {
	return &SearchHandler{log: log.With("handler", "SearchHandler"), svc: svc}
}

type searchRequest struct {
	Text string `json:"text"`
}

func (h *SearchHandler) Search(c *gin.Context) {
	// Text arrives either as a query param or a JSON body.
	text := c.Query("text")
	if text == "" {
		var body searchRequest
		if err := c.ShouldBindJSON(&body); err == nil {
			text = body.Text
		}
	}

	result, err := h.svc.Resolve(c.Request.Context(), text)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrInvalidArgument):
			RespondError(c, http.StatusBadRequest, "invalid_argument", err)
		case errors.Is(err, errs.ErrNotFound):
			RespondError(c, http.StatusNotFound, "not_found", errors.New("no matching item found"))
		default:
			h.log.Error("Search failed", "error", err.Error())
			RespondError(c, http.StatusInternalServerError, "internal", err)
		}
		return
	}
	RespondOK(c, result)
}
