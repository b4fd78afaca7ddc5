package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"carelink/internal/middleware"
	"carelink/internal/service"
	appErrors "carelink/pkg/errors"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	payments      *service.PaymentService
	webhookSecret string
}

func NewPaymentHandler(payments *service.PaymentService, webhookSecret string) *PaymentHandler {
	return &PaymentHandler{payments: payments, webhookSecret: webhookSecret}
}

// Status is the client's payment poll.
func (h *PaymentHandler) Status(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	view, err := h.payments.Status(c.Request.Context(), middleware.GetActor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// SelfReport records the client's "I paid" confirmation.
func (h *PaymentHandler) SelfReport(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	view, err := h.payments.SelfReport(c.Request.Context(), middleware.GetActor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Webhook accepts provider confirmations. It expects JSON
// { "reference": "...", "status": "paid" } signed with X-Webhook-Signature
// (hex HMAC-SHA256 of the body) when a secret is configured.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if h.webhookSecret != "" && !h.verifySignature(body, c.GetHeader("X-Webhook-Signature")) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}
	var payload struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if payload.Reference == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reference required"})
		return
	}
	switch strings.ToLower(payload.Status) {
	case "paid", "completed", "succeeded":
	default:
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}
	req, err := h.payments.ConfirmFromProvider(c.Request.Context(), payload.Reference)
	if errors.Is(err, appErrors.ErrRequestNotFound) {
		log.Printf("[PAYMENT] webhook for unknown reference %s", payload.Reference)
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true, "request_id": req.ID})
}

func (h *PaymentHandler) verifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}
