package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fortune-entitlements-service/handlers"
	"fortune-entitlements-service/middleware"
	"fortune-entitlements-service/models"
	"fortune-entitlements-service/services"
	"fortune-entitlements-service/utils"
	"fortune-entitlements-service/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024, // badge icon uploads
	})

	// Only gateway requests are allowed through.
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-User-ID, X-User-Name, X-Service-Token, X-Device-ID",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitObjectStore(); err != nil {
		log.Fatal("failed to initialize object store client:", err)
	}

	// TranslateError turns unique-index violations into gorm.ErrDuplicatedKey,
	// which the store maps onto the engine's duplicate sentinel. Every
	// exactly-once guarantee in the engine depends on this.
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Account{},
		&models.DailyClaimRecord{},
		&models.TokenTransaction{},
		&models.TrialRecord{},
		&models.ReferralRecord{},
		&models.BadgeGrant{},
		&models.BadgeCatalogEntry{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	// All claims share one fixed reference timezone; device-local time never
	// decides what "today" is.
	tzName := os.Getenv("REWARD_TIMEZONE")
	if tzName == "" {
		tzName = "UTC"
	}
	rewardLocation, err := time.LoadLocation(tzName)
	if err != nil {
		log.Fatal("invalid REWARD_TIMEZONE:", err)
	}

	store := services.NewGormStore(db)
	trialBus := services.NewTrialEventBus()

	accountService := services.NewAccountService(store)
	badgeService := services.NewBadgeService(store)
	rewardLedger := services.NewRewardLedgerService(store, badgeService, rewardLocation)
	trialService := services.NewTrialService(store, trialBus)
	referralService := services.NewReferralService(store, badgeService)

	fortuneServiceURL := os.Getenv("FORTUNE_SERVICE_URL")
	if fortuneServiceURL == "" {
		log.Fatal("FORTUNE_SERVICE_URL environment variable not set")
	}
	serviceToken := os.Getenv("ENTITLEMENT_SERVICE_TOKEN")
	if serviceToken == "" {
		log.Fatal("ENTITLEMENT_SERVICE_TOKEN environment variable not set")
	}

	fortuneWorker := workers.NewFortuneSyncWorker(store, badgeService, fortuneServiceURL, "/api/v1/public/fortune-counts", serviceToken)
	purchaseClient := workers.NewPurchaseSyncClient(store, trialService, badgeService)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go workers.PollPurchases(ctx, purchaseClient, 30*time.Second)
	fortuneWorker.Start(ctx)

	sweeper, err := trialService.StartExpirySweep(1 * time.Minute)
	if err != nil {
		log.Fatal("failed to start trial expiry sweep:", err)
	}
	defer func() { _ = sweeper.Shutdown() }()

	handlers.SetupEntitlementRoutes(app, accountService, rewardLedger, trialService, referralService, badgeService)
	handlers.SetupAdminRoutes(app, accountService, trialService, badgeService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("Entitlements service running on http://localhost:5300")
	log.Println("Trial expiry sweep running (every 1m)")
	log.Println("Purchase polling running (every 30s)")
	log.Println("Fortune counter sync running (every 1m)")
	log.Printf("Reward timezone: %s", rewardLocation)
	log.Printf("CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	_ = app.Shutdown()
}
