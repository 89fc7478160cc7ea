package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ArowuTest/pollstake-backend/internal/models"
	"github.com/ArowuTest/pollstake-backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestWriteErrorMapsKindsToStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrStakeOutOfRange, http.StatusBadRequest, "STAKE_OUT_OF_RANGE"},
		{services.ErrPollNotFound, http.StatusNotFound, "POLL_NOT_FOUND"},
		{services.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{services.ErrDuplicateStake, http.StatusConflict, "DUPLICATE_STAKE"},
		{services.ErrInsufficientBalance, http.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE"},
		{services.ErrWalletLocked, http.StatusUnprocessableEntity, "WALLET_LOCKED"},
		{services.ErrGatewayRejected, http.StatusBadGateway, "GATEWAY_REJECTED"},
		{services.ErrPoolMismatch, http.StatusInternalServerError, "POOL_MISMATCH"},
		{fmt.Errorf("wrapped: %w", services.ErrAlreadyResolved), http.StatusConflict, "ALREADY_RESOLVED"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			writeError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			body := decode(t, w)
			assert.Equal(t, tt.code, body["code"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestWriteErrorHidesInternalDetails(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	writeError(c, errors.New("mongo: connection refused at 10.0.0.5"))

	assert.NotContains(t, w.Body.String(), "10.0.0.5")
}

func TestWriteTransactionResultReportsRecoverableOutage(t *testing.T) {
	tx := &models.Transaction{Reference: "wd_1", Status: models.TransactionStatusProcessing}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	writeTransactionResult(c, http.StatusCreated, tx, services.ErrGatewayUnavailable.Wrap(errors.New("timeout")))

	assert.Equal(t, http.StatusAccepted, w.Code)
	body := decode(t, w)
	assert.Equal(t, "GATEWAY_UNAVAILABLE", body["code"])
	require.Contains(t, body, "transaction")
	assert.Equal(t, "processing", body["transaction"].(map[string]interface{})["status"])

	// without a transaction there is nothing to reconcile
	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	writeTransactionResult(c, http.StatusCreated, nil, services.ErrGatewayUnavailable)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestCreatePollBindingRejectsDuplicateOptions(t *testing.T) {
	require.NoError(t, RegisterValidators())

	tests := []struct {
		name string
		body string
		ok   bool
	}{
		{"valid", `{"title":"Finale","category":"tv","options":["Ada","Bola"]}`, true},
		{"duplicate ignoring case", `{"title":"Finale","category":"tv","options":["Ada"," ada "]}`, false},
		{"single option", `{"title":"Finale","category":"tv","options":["Ada"]}`, false},
		{"blank option", `{"title":"Finale","category":"tv","options":["Ada",""]}`, false},
		{"missing title", `{"category":"tv","options":["Ada","Bola"]}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			c.Request.Header.Set("Content-Type", "application/json")

			var req models.CreatePollRequest
			err := c.ShouldBindJSON(&req)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
