package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/JakayaMrisho/SurveyPesa/app/controllers"
	"github.com/JakayaMrisho/SurveyPesa/app/repository"
	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/cache"
	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/database"
	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/env"
	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/eventlog"
	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/jobqueue"
	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/mail"
	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/momo"
	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/payout"
	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/reward"
	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/router"
	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/webhook"
)

func main() {
	app := NewApplication()

	// Graceful shutdown: drain the job queue before the process exits so
	// in-flight payout attempts are not cut off mid-transfer.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		if m := jobqueue.GetManager(); m != nil {
			m.Stop()
		}
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	factory := repository.NewFactory(database.GetDB())
	repository.SetGlobalFactory(factory)
	repos := factory.GetRepositories()

	// Provider clients share one token cache in Redis so restarts and
	// multiple workers reuse credentials instead of re-authenticating.
	tokens := momo.NewRedisTokenCache()
	clients := map[momo.Provider]momo.Client{
		momo.ProviderMTN:    momo.WithTokenCache(momo.NewMTNClientFromEnv(), tokens),
		momo.ProviderAirtel: momo.WithTokenCache(momo.NewAirtelClientFromEnv(), tokens),
	}

	events := eventlog.NewService(repos.Event)
	dispatcher := webhook.NewDispatcher(repos.Webhook)

	var alerter payout.Alerter
	if a := mail.NewOperatorAlerterFromEnv(); a != nil {
		alerter = a
	}

	orchestrator := payout.NewOrchestrator(
		payout.DefaultConfig(),
		clients,
		repos.Payout,
		repos.Survey,
		events,
		dispatcher,
		alerter,
	)

	manager := jobqueue.Initialize(jobqueue.Deps{
		Orchestrator: orchestrator,
		Payouts:      repos.Payout,
		Events:       events,
	})
	manager.Start()

	rewardService := reward.NewService(repos.Survey, repos.Response, repos.User, orchestrator, manager, events)

	controllers.Setup(controllers.Deps{
		Reward:   rewardService,
		EventLog: events,
	})

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName: "SurveyPesa",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "admin"),
		},
	}), monitor.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}
