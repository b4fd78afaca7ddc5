package service

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"carelink/config"
	"carelink/internal/database/dbtest"
	"carelink/internal/domain"
	"carelink/internal/models"
	"carelink/internal/relay"
	"carelink/internal/repository"
	"carelink/pkg/payment/mocks"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"gorm.io/gorm"
)

var (
	client       = domain.Actor{UserID: 100, Role: domain.RoleClient}
	professional = domain.Actor{UserID: 200, Role: domain.RoleProfessional}
	stranger     = domain.Actor{UserID: 300, Role: domain.RoleClient}
)

type pushCall struct {
	Token    string
	Type     string
	DataOnly bool
	Data     map[string]string
}

type fakePush struct {
	mu    sync.Mutex
	calls []pushCall
}

func (f *fakePush) SendToUser(ctx context.Context, token, notifType, title, body string, data map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pushCall{Token: token, Type: notifType})
	return nil
}

func (f *fakePush) SendDataOnly(ctx context.Context, token string, data map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pushCall{Token: token, Type: data["type"], DataOnly: true, Data: data})
	return nil
}

func (f *fakePush) dataOnly() []pushCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []pushCall
	for _, c := range f.calls {
		if c.DataOnly {
			out = append(out, c)
		}
	}
	return out
}

type harness struct {
	db       *gorm.DB
	hub      *relay.Hub
	provider *mocks.MockProvider
	push     *fakePush

	requests *repository.RequestRepository
	convs    *repository.ConversationRepository
	accounts *repository.PaymentAccountRepository
	audit    *repository.AuditLogRepository
	tokens   *repository.DeviceTokenRepository

	payments  *PaymentService
	lifecycle *LifecycleService
	messaging *MessagingService
	video     *VideoCallService
	location  *LocationService
}

func newHarness(t *testing.T, tweak ...func(*config.PaymentConfig)) *harness {
	t.Helper()
	db := dbtest.NewTestDB(t)
	ctrl := gomock.NewController(t)
	h := &harness{
		db:       db,
		hub:      relay.NewHub(16),
		provider: mocks.NewMockProvider(ctrl),
		push:     &fakePush{},
		requests: repository.NewRequestRepository(db),
		convs:    repository.NewConversationRepository(db),
		accounts: repository.NewPaymentAccountRepository(db),
		audit:    repository.NewAuditLogRepository(db),
		tokens:   repository.NewDeviceTokenRepository(db),
	}
	cfg := config.PaymentConfig{
		CommissionPercent:  10,
		FallbackPriceCents: 5000,
		Currency:           "USD",
		AllowSelfReport:    true,
	}
	for _, fn := range tweak {
		fn(&cfg)
	}
	locations := repository.NewLocationRepository(db)
	notifier := NewNotificationService(repository.NewNotificationRepository(db), h.tokens, h.push)
	h.payments = NewPaymentService(h.requests, h.accounts, repository.NewPriceRepository(db), h.audit, h.provider, notifier, h.hub, cfg)
	h.lifecycle = NewLifecycleService(h.requests, h.convs, locations, h.audit, h.payments, notifier, h.hub)
	h.messaging = NewMessagingService(h.convs, repository.NewMessageRepository(db), h.requests, notifier, h.hub)
	h.video = NewVideoCallService(h.requests, h.audit, notifier, h.hub, "https://meet.example/")
	h.location = NewLocationService(h.requests, locations, h.hub)
	return h
}

func (h *harness) create(t *testing.T, serviceType string) *RequestView {
	t.Helper()
	view, err := h.lifecycle.Create(context.Background(), client, CreateRequestInput{
		ProfessionalID: professional.UserID,
		ServiceType:    serviceType,
	})
	require.NoError(t, err)
	return view
}

// accepted returns an accepted request without a payment link.
func (h *harness) accepted(t *testing.T, serviceType string) *models.ServiceRequest {
	t.Helper()
	view := h.create(t, serviceType)
	res, err := h.lifecycle.Accept(context.Background(), professional, view.ID, 0)
	require.NoError(t, err)
	return res.Request.ServiceRequest
}

// gated returns an accepted request carrying an unpaid payment link.
func (h *harness) gated(t *testing.T, serviceType string) *models.ServiceRequest {
	t.Helper()
	req := h.accepted(t, serviceType)
	link, ref := "https://pay.example/x", "ref-"+serviceType
	require.NoError(t, h.db.Model(&models.ServiceRequest{}).Where("id = ?", req.ID).
		Updates(map[string]interface{}{"payment_link": link, "payment_reference": ref}).Error)
	fresh, err := h.requests.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	return fresh
}

func (h *harness) connectAccount(t *testing.T, status string) {
	t.Helper()
	require.NoError(t, h.accounts.Create(context.Background(), &models.PaymentAccount{
		ProfessionalID: professional.UserID,
		Provider:       "checkout",
		AccountRef:     "acct_pro",
		Status:         status,
	}))
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
