package router

import (
	"carelink/config"
	"carelink/internal/relay"
	"carelink/internal/repository"
	"carelink/internal/service"
	"carelink/pkg/cloudinary"
	"carelink/pkg/payment"

	"gorm.io/gorm"
)

// NewServices wires repositories into the coordination services. push and
// cloud may be nil.
func NewServices(cfg *config.Config, db *gorm.DB, hub *relay.Hub, provider payment.Provider, push service.PushSender, cloud cloudinary.Client) Services {
	requestRepo := repository.NewRequestRepository(db)
	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	locationRepo := repository.NewLocationRepository(db)
	accountRepo := repository.NewPaymentAccountRepository(db)
	priceRepo := repository.NewPriceRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	deviceTokenRepo := repository.NewDeviceTokenRepository(db)

	notifSvc := service.NewNotificationService(notificationRepo, deviceTokenRepo, push)
	paymentSvc := service.NewPaymentService(requestRepo, accountRepo, priceRepo, auditRepo, provider, notifSvc, hub, cfg.Payment)

	return Services{
		Lifecycle: service.NewLifecycleService(requestRepo, conversationRepo, locationRepo, auditRepo, paymentSvc, notifSvc, hub),
		Payments:  paymentSvc,
		Messaging: service.NewMessagingService(conversationRepo, messageRepo, requestRepo, notifSvc, hub),
		Video:     service.NewVideoCallService(requestRepo, auditRepo, notifSvc, hub, cfg.Video.RoomBaseURL),
		Location:  service.NewLocationService(requestRepo, locationRepo, hub),
		Notifier:  notifSvc,
		Hub:       hub,
		Cloud:     cloud,
	}
}
