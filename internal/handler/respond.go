package handler

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"carelink/internal/service"
	appErrors "carelink/pkg/errors"

	"github.com/gin-gonic/gin"
)

// respondError writes err in the {"error": ..., "code": ...} shape. A lost
// race also carries the request as it is now so the caller can re-render.
func respondError(c *gin.Context, err error) {
	var conflict *service.ConflictError
	if errors.As(err, &conflict) {
		body := gin.H{"error": err.Error(), "code": appErrors.CodeConflict}
		if conflict.Current != nil {
			body["current"] = service.NewRequestView(conflict.Current)
		}
		c.JSON(http.StatusConflict, body)
		return
	}

	var appErr *appErrors.AppError
	if !errors.As(err, &appErr) {
		log.Printf("[HTTP] %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": appErrors.CodeInternal})
		return
	}
	status := statusFor(appErr.Code)
	msg := appErr.Message
	if status == http.StatusInternalServerError {
		log.Printf("[HTTP] %s %s: %v", c.Request.Method, c.FullPath(), err)
		msg = "internal error"
	}
	c.JSON(status, gin.H{"error": msg, "code": appErr.Code})
}

func statusFor(code appErrors.Code) int {
	switch code {
	case appErrors.CodeInvalidArgument:
		return http.StatusBadRequest
	case appErrors.CodeUnauthenticated:
		return http.StatusUnauthorized
	case appErrors.CodePermissionDenied:
		return http.StatusForbidden
	case appErrors.CodeNotFound:
		return http.StatusNotFound
	case appErrors.CodeConflict:
		return http.StatusConflict
	case appErrors.CodeFailedPrecondition:
		return http.StatusUnprocessableEntity
	case appErrors.CodePaymentRequired:
		return http.StatusPaymentRequired
	}
	return http.StatusInternalServerError
}

// paramID parses a positive numeric path parameter. It writes the 400
// itself and returns false when the value is unusable.
func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

// versioned is embedded in mutating request bodies. A zero version skips
// the expected-version check.
type versioned struct {
	Version int64 `json:"version"`
}

// bindOptional decodes a JSON body when one is present. An empty body
// leaves req at its zero value.
func bindOptional(c *gin.Context, req interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}
