package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	intconfig "temani/internal/config"
	intdb "temani/internal/db"
	"temani/internal/events"
	router "temani/internal/http"
	"temani/internal/http/handlers"
	"temani/internal/jobs"
	"temani/internal/mq"
	"temani/internal/payment"
	"temani/internal/repositories"
	"temani/internal/services"
)

func main() {
	env := intconfig.LoadEnv()

	db := intconfig.ConnectDB(env.DBDSN)
	defer intconfig.CloseDB()

	if err := intdb.EnsureSchema(db); err != nil {
		log.Fatalf("Gagal menyiapkan skema database: %v", err)
	}

	gateway, err := payment.NewOmiseGateway(env.OmisePublicKey, env.OmiseSecretKey)
	if err != nil {
		log.Fatalf("Gagal inisialisasi payment gateway: %v", err)
	}

	var notifier events.Notifier = events.NopNotifier{}
	pub, err := mq.NewPublisher(env.AMQPURL, env.AMQPExchange)
	if err != nil {
		log.Printf("AMQP tidak tersedia, notifikasi dinonaktifkan: %v", err)
	} else {
		defer pub.Close()
		notifier = events.QueueNotifier{Pub: pub}
	}

	bookingRepo := repositories.BookingRepository{DB: db}
	requestRepo := repositories.RequestRepository{DB: db}
	verifyRepo := repositories.VerificationRepository{DB: db}
	userRepo := repositories.UserRepository{DB: db}
	transferRepo := repositories.TransferRepository{DB: db}

	paymentSvc := services.PaymentService{
		Gateway:    gateway,
		Bookings:   bookingRepo,
		Users:      userRepo,
		Transfers:  transferRepo,
		Notify:     notifier,
		Account:    payment.NewAccountCache(gateway.PlatformAccount, "", time.Hour),
		FeePercent: env.PlatformFeePercent,
		DB:         db,
	}
	bookingSvc := services.BookingService{
		Bookings:       bookingRepo,
		Requests:       requestRepo,
		Payments:       paymentSvc,
		Notify:         notifier,
		DB:             db,
		CancelNotice:   env.CancelNotice,
		ConflictBuffer: env.CreateConflictBuffer,
	}
	verifySvc := services.VerificationService{
		Bookings:      bookingRepo,
		Verifications: verifyRepo,
		Payments:      paymentSvc,
		Notify:        notifier,
		DB:            db,
		RadiusMeters:  env.VerifyRadiusMeters,
		Deadline:      env.VerifyDeadline,
		Extension:     env.VerifyExtension,
	}
	requestSvc := services.RequestService{
		Requests:        requestRepo,
		Bookings:        bookingRepo,
		Booking:         bookingSvc,
		Payments:        paymentSvc,
		Notify:          notifier,
		DB:              db,
		DefaultValidity: env.RequestValidity,
	}
	reconcileSvc := services.ReconcileService{
		Bookings:      bookingRepo,
		Requests:      requestRepo,
		Verifications: verifyRepo,
		Payments:      paymentSvc,
		Verification:  verifySvc,
		Notify:        notifier,
		DB:            db,
		IssueLead:     env.VerifyIssueLead,
		IssueFallback: env.VerifyIssueFallback,
		NoShowGrace:   env.NoShowGrace,
	}

	scheduler := &jobs.Scheduler{Reconcile: reconcileSvc, Interval: env.JobInterval}
	jobCtx, stopJobs := context.WithCancel(context.Background())
	defer stopJobs()
	if err := scheduler.Start(jobCtx); err != nil {
		log.Fatalf("Gagal menjalankan scheduler: %v", err)
	}
	defer scheduler.Stop()

	r := router.NewRouter(env, router.Handlers{
		Auth:         handlers.AuthHandler{Users: userRepo, JWTSecret: []byte(env.JWTSecret)},
		Bookings:     handlers.BookingHandler{Bookings: bookingSvc},
		Verification: handlers.VerificationHandler{Verification: verifySvc},
		Requests:     handlers.RequestHandler{Requests: requestSvc},
		Receipts:     handlers.ReceiptHandler{Receipts: services.ReceiptService{Bookings: bookingRepo, Users: userRepo, FeePercent: env.PlatformFeePercent}},
		Admin:        handlers.AdminHandler{Reconcile: reconcileSvc, Transfers: transferRepo},
	})
	handlers.SetRouter(r)

	srv := &http.Server{
		Addr:              env.AppAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       20 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Server berjalan di http://localhost%s", env.AppAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Gagal menjalankan server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("Mematikan server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Shutdown server gagal: %v", err)
	}

	log.Println("Server berhenti dengan aman.")
}
