package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ArowuTest/pollstake-backend/internal/middleware"
	"github.com/ArowuTest/pollstake-backend/internal/models"
	"github.com/ArowuTest/pollstake-backend/internal/services"
	"github.com/gin-gonic/gin"
)

var kindStatus = map[services.ErrorKind]int{
	services.KindValidation:          http.StatusBadRequest,
	services.KindNotFound:            http.StatusNotFound,
	services.KindForbidden:           http.StatusForbidden,
	services.KindStateConflict:       http.StatusConflict,
	services.KindInsufficientBalance: http.StatusUnprocessableEntity,
	services.KindWalletLocked:        http.StatusUnprocessableEntity,
	services.KindExternalDependency:  http.StatusBadGateway,
	services.KindInvariantViolation:  http.StatusInternalServerError,
	services.KindInternal:            http.StatusInternalServerError,
}

// statusFor maps a service error to its HTTP status
func statusFor(err error) (int, *services.Error) {
	svcErr, ok := services.AsError(err)
	if !ok {
		return http.StatusInternalServerError, services.ErrInternal
	}
	status, ok := kindStatus[svcErr.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	return status, svcErr
}

// writeError renders err as {"error", "code"}. Internal details are logged, not returned.
func writeError(c *gin.Context, err error) {
	status, svcErr := statusFor(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		slog.Error("Request failed", "path", c.FullPath(), "code", svcErr.Code, "error", err)
	}
	c.JSON(status, gin.H{"error": svcErr.Message, "code": svcErr.Code})
}

// writeTransactionResult renders a gateway-backed transaction. A gateway outage that left a
// recoverable transaction behind is reported as 202 with the transaction attached.
func writeTransactionResult(c *gin.Context, successStatus int, tx *models.Transaction, err error) {
	if err == nil {
		c.JSON(successStatus, tx)
		return
	}
	if tx != nil && errors.Is(err, services.ErrGatewayUnavailable) {
		c.JSON(http.StatusAccepted, gin.H{
			"transaction": tx,
			"error":       services.ErrGatewayUnavailable.Message,
			"code":        services.ErrGatewayUnavailable.Code,
		})
		return
	}
	writeError(c, err)
}

func writeBindingError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": services.ErrValidation.Code})
}

// principal returns the authenticated caller or writes 401
func principal(c *gin.Context) (models.Principal, bool) {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated", "code": "UNAUTHORIZED"})
		return models.Principal{}, false
	}
	return p, true
}

// bindPageQuery reads page, limit, sortBy and sortOrder from the query string
func bindPageQuery(c *gin.Context) (models.PageQuery, bool) {
	var q models.PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeBindingError(c, err)
		return q, false
	}
	return q, true
}
