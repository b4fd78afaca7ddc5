package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"carelink/internal/domain"
	"carelink/internal/models"
	"carelink/internal/repository"
)

// Notification types.
const (
	NotifNewRequest       = "NEW_REQUEST"
	NotifRequestAccepted  = "REQUEST_ACCEPTED"
	NotifRequestRejected  = "REQUEST_REJECTED"
	NotifRequestCancelled = "REQUEST_CANCELLED"
	NotifRequestCompleted = "REQUEST_COMPLETED"
	NotifPaymentConfirmed = "PAYMENT_CONFIRMED"
	NotifNewMessage       = "NEW_MESSAGE"
	NotifVideoCall        = "VIDEO_CALL"
	NotifRated            = "REQUEST_RATED"
)

// NotificationService writes inbox rows and fans pushes out to the user's
// registered devices. Delivery failures are logged, never returned to the
// coordination call that triggered them.
type NotificationService struct {
	repo   *repository.NotificationRepository
	tokens *repository.DeviceTokenRepository
	push   PushSender
}

func NewNotificationService(repo *repository.NotificationRepository, tokens *repository.DeviceTokenRepository, push PushSender) *NotificationService {
	return &NotificationService{repo: repo, tokens: tokens, push: push}
}

func (s *NotificationService) Notify(ctx context.Context, userID uint, notifType, title, body string, data map[string]interface{}) {
	if s == nil {
		return
	}
	var dataJSON string
	if data != nil {
		b, _ := json.Marshal(data)
		dataJSON = string(b)
	}
	err := s.repo.Create(ctx, &models.Notification{
		UserID: userID,
		Type:   notifType,
		Title:  title,
		Body:   body,
		Data:   dataJSON,
	})
	if err != nil {
		log.Printf("[NOTIFY] store %s user=%d: %v", notifType, userID, err)
	}
	s.sendPush(ctx, userID, notifType, title, body, data)
}

func (s *NotificationService) sendPush(ctx context.Context, userID uint, notifType, title, body string, data map[string]interface{}) {
	if s.push == nil || s.tokens == nil {
		return
	}
	tokens, err := s.tokens.TokensForUser(ctx, userID)
	if err != nil {
		log.Printf("[NOTIFY] tokens user=%d: %v", userID, err)
		return
	}
	for _, tok := range tokens {
		_ = s.push.SendToUser(ctx, tok, notifType, title, body, data)
	}
}

func (s *NotificationService) List(ctx context.Context, userID uint, limit, offset int) ([]models.Notification, error) {
	return s.repo.ListByUserID(ctx, userID, limit, offset)
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id uint) error {
	return s.repo.MarkRead(ctx, id, userID)
}

func (s *NotificationService) RegisterDevice(ctx context.Context, userID uint, token, platform string) error {
	return s.tokens.Register(ctx, userID, token, platform)
}

func (s *NotificationService) NotifyNewRequest(ctx context.Context, req *models.ServiceRequest) {
	s.Notify(ctx, req.ProfessionalID, NotifNewRequest, "New request",
		fmt.Sprintf("You have a new %s request", humanServiceType(req.ServiceType)),
		map[string]interface{}{"request_id": req.ID})
}

func (s *NotificationService) NotifyAccepted(ctx context.Context, req *models.ServiceRequest) {
	data := map[string]interface{}{"request_id": req.ID}
	body := "Your request was accepted"
	if req.PaymentLink != nil {
		data["payment_link"] = *req.PaymentLink
		body = "Your request was accepted. Complete payment to start."
	}
	s.Notify(ctx, req.ClientID, NotifRequestAccepted, "Request accepted", body, data)
}

func (s *NotificationService) NotifyRejected(ctx context.Context, req *models.ServiceRequest) {
	s.Notify(ctx, req.ClientID, NotifRequestRejected, "Request declined", "Your request was declined",
		map[string]interface{}{"request_id": req.ID})
}

func (s *NotificationService) NotifyCancelled(ctx context.Context, req *models.ServiceRequest) {
	s.Notify(ctx, req.ProfessionalID, NotifRequestCancelled, "Request cancelled", req.CancellationReason,
		map[string]interface{}{"request_id": req.ID})
}

func (s *NotificationService) NotifyCompleted(ctx context.Context, req *models.ServiceRequest) {
	s.Notify(ctx, req.ClientID, NotifRequestCompleted, "Service completed", "Tell us how it went",
		map[string]interface{}{"request_id": req.ID})
}

func (s *NotificationService) NotifyRated(ctx context.Context, req *models.ServiceRequest) {
	s.Notify(ctx, req.ProfessionalID, NotifRated, "New rating", "A client rated your service",
		map[string]interface{}{"request_id": req.ID})
}

func (s *NotificationService) NotifyPaymentConfirmed(ctx context.Context, req *models.ServiceRequest) {
	data := map[string]interface{}{"request_id": req.ID, "amount_cents": req.AmountCents}
	s.Notify(ctx, req.ProfessionalID, NotifPaymentConfirmed, "Payment received", "The client has paid", data)
	s.Notify(ctx, req.ClientID, NotifPaymentConfirmed, "Payment confirmed", "Your payment was successful", data)
}

// NotifyNewMessage pushes without an inbox row; the conversation is the record.
func (s *NotificationService) NotifyNewMessage(ctx context.Context, recipientID, conversationID uint, preview string) {
	if s == nil {
		return
	}
	if r := []rune(preview); len(r) > 80 {
		preview = string(r[:80])
	}
	s.sendPush(ctx, recipientID, NotifNewMessage, "New message", preview,
		map[string]interface{}{"conversation_id": conversationID})
}

// NotifyIncomingCall sends a data-only push so the client can ring.
func (s *NotificationService) NotifyIncomingCall(ctx context.Context, req *models.ServiceRequest) {
	if s == nil || s.push == nil || s.tokens == nil {
		return
	}
	tokens, err := s.tokens.TokensForUser(ctx, req.ClientID)
	if err != nil {
		log.Printf("[NOTIFY] tokens user=%d: %v", req.ClientID, err)
		return
	}
	data := map[string]string{
		"type":       NotifVideoCall,
		"request_id": fmt.Sprintf("%d", req.ID),
		"room_id":    req.VideoCallRoomID,
	}
	for _, tok := range tokens {
		_ = s.push.SendDataOnly(ctx, tok, data)
	}
}

func humanServiceType(t string) string {
	switch t {
	case domain.ServiceTypeVideoCall:
		return "video call"
	case domain.ServiceTypeInPerson:
		return "in-person"
	}
	return t
}
