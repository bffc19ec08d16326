package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"servicehub/internal/config"
	"servicehub/internal/database"
	"servicehub/internal/middleware"
	"servicehub/internal/modules/booking"
	"servicehub/internal/modules/payment"
	"servicehub/internal/notification"
	jwtsvc "servicehub/internal/pkg/jwt"
	"servicehub/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	if err := repository.AutoMigrate(db); err != nil {
		log.Fatal(err)
	}

	bookingRepo := repository.NewBookingRepository(db)
	providerRepo := repository.NewProviderRepository(db)
	serviceRepo := repository.NewServiceRepository(db)

	j := jwtsvc.New(cfg.JWTSecret, cfg.JWTTTL)

	var notifs interface {
		booking.NotificationSender
		payment.NotificationSender
	}
	if cfg.AMQPURL != "" {
		notifs = notification.NewPublisher(cfg.AMQPURL, log.Printf)
	} else {
		log.Println("AMQP_URL is empty, notifications disabled")
		notifs = notification.Noop{}
	}

	bookingService := booking.NewService(bookingRepo, providerRepo, serviceRepo, notifs, cfg.TaxRate)
	bookingHandler := booking.NewHandler(bookingService)

	gateway := payment.NewGateway(cfg.Razorpay, log.Printf)
	paymentService := payment.NewService(bookingRepo, providerRepo, gateway, notifs, cfg.Razorpay.KeyID, log.Printf)
	paymentHandler := payment.NewHandler(paymentService)

	r := gin.Default()
	r.Use(middleware.ErrorLogger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		// webhook authenticates via its own signature, not a bearer token
		paymentHandler.RegisterWebhookRoutes(v1)

		protected := v1.Group("/")
		protected.Use(middleware.Auth(j))
		{
			bookingHandler.RegisterRoutes(protected)
			paymentHandler.RegisterRoutes(protected)

			adminGroup := protected.Group("/admin")
			adminGroup.Use(middleware.AdminOnly())
			{
				bookingHandler.RegisterAdminRoutes(adminGroup)
			}
		}
	}

	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatal(err)
	}
}
