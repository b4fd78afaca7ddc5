package router

import (
	"time"

	"carelink/config"
	"carelink/internal/domain"
	"carelink/internal/handler"
	"carelink/internal/middleware"
	"carelink/internal/relay"
	"carelink/internal/service"
	"carelink/pkg/cloudinary"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Services are the coordination services the HTTP surface exposes.
type Services struct {
	Lifecycle *service.LifecycleService
	Payments  *service.PaymentService
	Messaging *service.MessagingService
	Video     *service.VideoCallService
	Location  *service.LocationService
	Notifier  *service.NotificationService
	Hub       *relay.Hub
	Cloud     cloudinary.Client // nil disables uploads

	// Done stops background sweeps started by Setup. Nil starts none.
	Done <-chan struct{}
}

func Setup(cfg *config.Config, db *gorm.DB, svc Services) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(corsConfig(cfg.Server.CORSOrigins)))

	limiter := middleware.NewIPRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
	if svc.Done != nil {
		go limiter.RunCleanup(time.Minute, svc.Done)
	}

	healthHandler := handler.NewHealthHandler(db)
	requestHandler := handler.NewRequestHandler(svc.Lifecycle)
	paymentHandler := handler.NewPaymentHandler(svc.Payments, cfg.Payment.WebhookSecret)
	videoHandler := handler.NewVideoCallHandler(svc.Video)
	locationHandler := handler.NewLocationHandler(svc.Location)
	chatHandler := handler.NewChatHandler(svc.Messaging)
	uploadHandler := handler.NewUploadHandler(svc.Cloud, svc.Messaging)
	notificationHandler := handler.NewNotificationHandler(svc.Notifier)

	authMw := middleware.AuthRequired(&cfg.JWT)
	clientOnly := middleware.RequireRole(domain.RoleClient)
	professionalOnly := middleware.RequireRole(domain.RoleProfessional)

	r.GET("/healthz", healthHandler.Check)
	r.GET("/ws/events", relay.ServeEvents(&cfg.JWT, svc.Hub))

	api := r.Group("/api/v1")
	api.Use(middleware.RateLimit(limiter))
	{
		// Provider callbacks are signed, not authenticated.
		api.POST("/webhooks/payment", paymentHandler.Webhook)

		requests := api.Group("/requests")
		requests.Use(authMw)
		{
			requests.POST("", clientOnly, requestHandler.Create)
			requests.GET("/:id", requestHandler.Get)
			requests.POST("/:id/accept", professionalOnly, requestHandler.Accept)
			requests.POST("/:id/reject", professionalOnly, requestHandler.Reject)
			requests.POST("/:id/cancel", clientOnly, requestHandler.Cancel)
			requests.POST("/:id/complete", professionalOnly, requestHandler.Complete)
			requests.POST("/:id/rating", clientOnly, requestHandler.Rate)

			requests.GET("/:id/payment-status", clientOnly, paymentHandler.Status)
			requests.POST("/:id/payment/self-report", clientOnly, paymentHandler.SelfReport)

			requests.POST("/:id/video-call", professionalOnly, videoHandler.Initiate)
			requests.POST("/:id/video-call/accept", clientOnly, videoHandler.Accept)
			requests.POST("/:id/video-call/join", videoHandler.Join)
			requests.POST("/:id/video-call/decline", clientOnly, videoHandler.Decline)
			requests.POST("/:id/video-call/end", videoHandler.End)
			requests.POST("/:id/video-call/reset", professionalOnly, videoHandler.Reset)

			requests.PUT("/:id/location", locationHandler.Report)
			requests.DELETE("/:id/location", locationHandler.Stop)
			requests.GET("/:id/locations", locationHandler.Snapshot)
		}

		conversations := api.Group("/conversations")
		conversations.Use(authMw)
		{
			conversations.POST("", chatHandler.Start)
			conversations.GET("", chatHandler.ListConversations)
			conversations.GET("/:id/messages", chatHandler.GetMessages)
			conversations.POST("/:id/messages", chatHandler.Send)
			conversations.POST("/:id/read", chatHandler.MarkRead)
		}

		me := api.Group("/me")
		me.Use(authMw)
		{
			me.GET("/requests", requestHandler.ListMine)
			me.GET("/unread", chatHandler.Unread)
			me.POST("/uploads/chat", uploadHandler.UploadChatMedia)
			me.POST("/device-token", notificationHandler.RegisterDevice)
			me.GET("/notifications", notificationHandler.List)
			me.PUT("/notifications/:id/read", notificationHandler.MarkRead)
		}
	}
	return r
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Webhook-Signature"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}
