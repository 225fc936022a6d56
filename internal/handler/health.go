package handler

import (
	"net/http"

	"github.com/cradoe/lumenbank/internal/errHandler"
	"github.com/cradoe/lumenbank/internal/response"
	"github.com/cradoe/lumenbank/internal/version"
)

type HealthCheckHandler struct {
	ErrHandler *errHandler.ErrorHandler
}

func NewHealthCheckHandler(handler *HealthCheckHandler) *HealthCheckHandler {
	return handler
}

func (h *HealthCheckHandler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	data := map[string]string{
		"version": version.Get(),
	}

	err := response.JSONOkResponse(w, data, "Up and grateful", nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}
