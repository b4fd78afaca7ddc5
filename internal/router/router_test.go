package router

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strconv"
	"testing"
	"time"

	"carelink/config"
	"carelink/internal/auth"
	"carelink/internal/database/dbtest"
	"carelink/internal/domain"
	"carelink/internal/models"
	"carelink/internal/relay"
	"carelink/pkg/payment"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const webhookSecret = "whsec_test"

type testEnv struct {
	t      *testing.T
	engine *gin.Engine
	db     *gorm.DB
	cfg    *config.Config

	clientToken       string
	professionalToken string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Server: config.ServerConfig{Env: "test", CORSOrigins: []string{"*"}},
		JWT:    config.JWTConfig{AccessSecret: "router-secret", AccessExpiry: time.Hour, Issuer: "carelink"},
		Payment: config.PaymentConfig{
			WebhookSecret:      webhookSecret,
			CommissionPercent:  10,
			FallbackPriceCents: 5000,
			Currency:           "USD",
		},
		Video:     config.VideoConfig{RoomBaseURL: "https://meet.example/"},
		RateLimit: config.RateLimitConfig{RequestsPerMinute: 100000, Burst: 100000},
	}
	db := dbtest.NewTestDB(t)
	svc := NewServices(cfg, db, relay.NewHub(16), &payment.StubProvider{BaseURL: "https://pay.example/"}, nil, nil)

	env := &testEnv{t: t, engine: Setup(cfg, db, svc), db: db, cfg: cfg}
	var err error
	env.clientToken, err = auth.GenerateAccessToken(&cfg.JWT, 100, domain.RoleClient)
	require.NoError(t, err)
	env.professionalToken, err = auth.GenerateAccessToken(&cfg.JWT, 200, domain.RoleProfessional)
	require.NoError(t, err)
	return env
}

func (e *testEnv) do(method, path, token string, body interface{}) (int, map[string]interface{}) {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	out := map[string]interface{}{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w.Code, out
}

func (e *testEnv) webhook(payload map[string]string, sign bool) int {
	e.t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(e.t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payment", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if sign {
		mac := hmac.New(sha256.New, []byte(webhookSecret))
		mac.Write(raw)
		req.Header.Set("X-Webhook-Signature", hex.EncodeToString(mac.Sum(nil)))
	} else {
		req.Header.Set("X-Webhook-Signature", "deadbeef")
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w.Code
}

func (e *testEnv) createRequest(serviceType string) string {
	e.t.Helper()
	code, body := e.do(http.MethodPost, "/api/v1/requests", e.clientToken, map[string]interface{}{
		"professional_id": 200,
		"service_type":    serviceType,
	})
	require.Equal(e.t, http.StatusCreated, code, body)
	return strconv.Itoa(int(body["id"].(float64)))
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	code, body := env.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestSetupSweepFollowsDone(t *testing.T) {
	env := newTestEnv(t)
	svc := NewServices(env.cfg, env.db, relay.NewHub(1), &payment.StubProvider{}, nil, nil)

	before := runtime.NumGoroutine()
	Setup(env.cfg, env.db, svc)
	assert.Equal(t, before, runtime.NumGoroutine(), "no sweep without Done")

	done := make(chan struct{})
	svc.Done = done
	Setup(env.cfg, env.db, svc)
	assert.Greater(t, runtime.NumGoroutine(), before)
	close(done)
	require.Eventually(t, func() bool { return runtime.NumGoroutine() <= before }, time.Second, 5*time.Millisecond)
}

func TestAuthAndRoleEnforcement(t *testing.T) {
	env := newTestEnv(t)

	code, _ := env.do(http.MethodGet, "/api/v1/me/requests", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = env.do(http.MethodPost, "/api/v1/requests", env.professionalToken, map[string]interface{}{
		"professional_id": 300,
		"service_type":    domain.ServiceTypeMessage,
	})
	assert.Equal(t, http.StatusForbidden, code)

	id := env.createRequest(domain.ServiceTypeMessage)
	code, _ = env.do(http.MethodPost, "/api/v1/requests/"+id+"/accept", env.clientToken, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = env.do(http.MethodGet, "/api/v1/requests/abc", env.clientToken, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = env.do(http.MethodGet, "/api/v1/requests/9999", env.clientToken, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCancelValidationAndStaleVersion(t *testing.T) {
	env := newTestEnv(t)
	id := env.createRequest(domain.ServiceTypeMessage)

	code, body := env.do(http.MethodPost, "/api/v1/requests/"+id+"/cancel", env.clientToken, map[string]interface{}{"reason": "   "})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_ARGUMENT", body["code"])

	code, body = env.do(http.MethodPost, "/api/v1/requests/"+id+"/accept", env.professionalToken, map[string]interface{}{"version": 1})
	require.Equal(t, http.StatusOK, code, body)

	// The client still holds version 1.
	code, body = env.do(http.MethodPost, "/api/v1/requests/"+id+"/cancel", env.clientToken, map[string]interface{}{
		"reason":  "changed my mind",
		"version": 1,
	})
	require.Equal(t, http.StatusConflict, code)
	current, ok := body["current"].(map[string]interface{})
	require.True(t, ok, "conflict carries the current row")
	assert.Equal(t, domain.RequestStatusAccepted, current["status"])

	code, body = env.do(http.MethodPost, "/api/v1/requests/"+id+"/cancel", env.clientToken, map[string]interface{}{
		"reason":  "changed my mind",
		"version": current["version"],
	})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, domain.RequestStatusCancelled, body["status"])
	assert.Equal(t, "changed my mind", body["cancellation_reason"])

	code, _ = env.do(http.MethodPost, "/api/v1/requests/"+id+"/complete", env.professionalToken, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestAcceptWithoutPaymentAccountReturnsPrompt(t *testing.T) {
	env := newTestEnv(t)
	id := env.createRequest(domain.ServiceTypeMessage)

	code, body := env.do(http.MethodPost, "/api/v1/requests/"+id+"/accept", env.professionalToken, nil)
	require.Equal(t, http.StatusOK, code, body)
	prompt := body["payment_prompt"].(map[string]interface{})
	assert.Equal(t, "needs_connection", prompt["reason"])
	request := body["request"].(map[string]interface{})
	assert.Equal(t, domain.PaymentStatusNotRequired, request["payment_status"])

	convID := strconv.Itoa(int(body["conversation"].(map[string]interface{})["id"].(float64)))
	code, _ = env.do(http.MethodPost, "/api/v1/conversations/"+convID+"/messages", env.clientToken, map[string]interface{}{"content": "hello"})
	assert.Equal(t, http.StatusCreated, code)
}

func TestGatedMessagingClearedByWebhook(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.db.Create(&models.PaymentAccount{
		ProfessionalID: 200,
		Provider:       "stub",
		AccountRef:     "acct_200",
		Status:         domain.PaymentAccountConnected,
	}).Error)

	id := env.createRequest(domain.ServiceTypeMessage)
	code, body := env.do(http.MethodPost, "/api/v1/requests/"+id+"/accept", env.professionalToken, nil)
	require.Equal(t, http.StatusOK, code, body)
	request := body["request"].(map[string]interface{})
	assert.Equal(t, true, request["communication_blocked"])
	ref := request["payment_reference"].(string)
	convID := strconv.Itoa(int(body["conversation"].(map[string]interface{})["id"].(float64)))

	code, body = env.do(http.MethodPost, "/api/v1/conversations/"+convID+"/messages", env.clientToken, map[string]interface{}{"content": "hi"})
	assert.Equal(t, http.StatusPaymentRequired, code)
	assert.Equal(t, "PAYMENT_REQUIRED", body["code"])

	assert.Equal(t, http.StatusUnauthorized, env.webhook(map[string]string{"reference": ref, "status": "paid"}, false))
	assert.Equal(t, http.StatusOK, env.webhook(map[string]string{"reference": ref, "status": "paid"}, true))

	code, body = env.do(http.MethodGet, "/api/v1/requests/"+id, env.professionalToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["communication_blocked"])
	assert.Equal(t, domain.PaymentSourceProvider, body["payment_source"])

	code, _ = env.do(http.MethodPost, "/api/v1/conversations/"+convID+"/messages", env.clientToken, map[string]interface{}{"content": "hi"})
	assert.Equal(t, http.StatusCreated, code)

	code, body = env.do(http.MethodGet, "/api/v1/conversations/"+convID+"/messages", env.professionalToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["messages"], 1)

	code, body = env.do(http.MethodGet, "/api/v1/me/unread", env.professionalToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["unread"])
}

func TestWebhookUnknownReferenceIsAcknowledged(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusOK, env.webhook(map[string]string{"reference": "nope", "status": "paid"}, true))
}

func TestVideoCallRendezvousOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	id := env.createRequest(domain.ServiceTypeVideoCall)
	code, _ := env.do(http.MethodPost, "/api/v1/requests/"+id+"/accept", env.professionalToken, nil)
	require.Equal(t, http.StatusOK, code)

	code, body := env.do(http.MethodPost, "/api/v1/requests/"+id+"/video-call", env.professionalToken, nil)
	require.Equal(t, http.StatusOK, code, body)
	room := body["room_id"].(string)
	assert.Equal(t, domain.VideoCallPending, body["status"])

	code, _ = env.do(http.MethodPost, "/api/v1/requests/"+id+"/video-call/accept", env.clientToken, map[string]interface{}{"room_id": "other"})
	assert.Equal(t, http.StatusConflict, code)

	code, body = env.do(http.MethodPost, "/api/v1/requests/"+id+"/video-call/accept", env.clientToken, map[string]interface{}{"room_id": room})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, domain.VideoCallActive, body["status"])

	code, body = env.do(http.MethodPost, "/api/v1/requests/"+id+"/video-call/join", env.professionalToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "https://meet.example/"+room, body["url"])

	code, body = env.do(http.MethodPost, "/api/v1/requests/"+id+"/video-call/end", env.clientToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, domain.VideoCallEnded, body["status"])
}

func TestLocationOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	id := env.createRequest(domain.ServiceTypeInPerson)
	code, _ := env.do(http.MethodPost, "/api/v1/requests/"+id+"/accept", env.professionalToken, nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = env.do(http.MethodPut, "/api/v1/requests/"+id+"/location", env.professionalToken, map[string]interface{}{"latitude": -1.2921, "longitude": 36.8219, "accuracy": 8})
	require.Equal(t, http.StatusOK, code)
	code, _ = env.do(http.MethodPut, "/api/v1/requests/"+id+"/location", env.clientToken, map[string]interface{}{"latitude": 0, "longitude": 0})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := env.do(http.MethodGet, "/api/v1/requests/"+id+"/locations", env.clientToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["peer_shared"])

	code, _ = env.do(http.MethodDelete, "/api/v1/requests/"+id+"/location", env.professionalToken, nil)
	assert.Equal(t, http.StatusOK, code)
}
