package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/caselink/voice-call-service/internal/security"
	"github.com/stretchr/testify/assert"
)

func postCreateCall(h *CallHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/calls", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.CreateCall(rec, req)
	return rec
}

func TestCreateCallPhoneValidation(t *testing.T) {
	gate := security.NewGate(security.GateConfig{}, nil, nil)
	h := NewCallHandler(nil, nil, nil, gate)

	t.Run("short number gets 400", func(t *testing.T) {
		rec := postCreateCall(h, `{"phone_number":"555-2671"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("non-numeric number gets 400", func(t *testing.T) {
		rec := postCreateCall(h, `{"phone_number":"41555526abcd"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("suspicious number gets 422", func(t *testing.T) {
		rec := postCreateCall(h, `{"phone_number":"0000000000"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("malformed body gets 400", func(t *testing.T) {
		rec := postCreateCall(h, `{`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
