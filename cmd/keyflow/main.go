package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/VladKvetkin/keyflow/internal/config"
	"github.com/VladKvetkin/keyflow/internal/handler"
	"github.com/VladKvetkin/keyflow/internal/ledger"
	"github.com/VladKvetkin/keyflow/internal/logger"
	"github.com/VladKvetkin/keyflow/internal/metrics"
	"github.com/VladKvetkin/keyflow/internal/notifier"
	"github.com/VladKvetkin/keyflow/internal/orders"
	"github.com/VladKvetkin/keyflow/internal/payments"
	"github.com/VladKvetkin/keyflow/internal/reminder"
	"github.com/VladKvetkin/keyflow/internal/server"
	"github.com/VladKvetkin/keyflow/internal/services/jwttoken"
	"github.com/VladKvetkin/keyflow/internal/sessions"
	"github.com/VladKvetkin/keyflow/internal/storage"
	"github.com/VladKvetkin/keyflow/internal/telegram"
	"github.com/VladKvetkin/keyflow/internal/webhook"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v3"
)

const sessionSweepInterval = time.Minute

func main() {
	os.Exit(start())
}

func start() int {
	config, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error create config: %v\n", err)
		return 1
	}

	if err := logger.Init(config.LogLevel, config.IsProduction()); err != nil {
		fmt.Fprintf(os.Stderr, "error init logger: %v\n", err)
		return 1
	}

	defer zap.L().Sync()

	store, closeStorage, err := newStorage(config)
	if err != nil {
		zap.L().Error("error create storage", zap.Error(err))
		return 1
	}

	defer closeStorage()

	var (
		client      *tele.Bot
		sender      notifier.Notifier = notifier.Log{}
		botUsername string
	)

	if config.BotToken != "" {
		client, err = telegram.NewClient(config.BotToken)
		if err != nil {
			zap.L().Error("error create telegram client", zap.Error(err))
			return 1
		}

		sender = telegram.NewSender(client)
		botUsername = client.Me.Username
	} else {
		zap.L().Warn("BOT_TOKEN is empty, notifications go to the log")
	}

	hooks := []orders.Hook{metrics.Hook{}}

	var statusWebhook *webhook.Notifier
	if config.StatusWebhookURL != "" {
		statusWebhook = webhook.NewNotifier(config.StatusWebhookURL, webhook.Options{})
		hooks = append(hooks, statusWebhook)
	}

	service := orders.NewService(
		store,
		ledger.New(store, config.ReferralBonus, nil),
		sender,
		payments.NewRegistry(
			payments.NewSBP(payments.SBPDetails{
				Phone:     config.SBPPhone,
				Bank:      config.SBPBank,
				Recipient: config.SBPRecipient,
			}),
			payments.NewCryptoBot(),
			payments.NewYooKassa(),
		),
		orders.Options{
			Operators:        config.AdminIDs,
			ReferralDiscount: config.ReferralDiscount,
			Support:          config.SupportUsername,
			WebAppURL:        config.WebAppURL,
			BotUsername:      botUsername,
			BroadcastRate:    rate.Limit(config.BroadcastRate),
		},
		hooks...,
	)

	var (
		operatorSessions = sessions.NewStore(config.OperatorSessionTTL, nil)
		scheduler        = reminder.NewScheduler(store, service, config.ReminderHour, config.ReminderDaysAhead)
		tokens           = jwttoken.NewManager(config.JWTSecret, config.TokenTTL)
	)

	server := server.NewServer(config, handler.NewHandler(service, tokens, config.BotToken), tokens)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if err := server.Start(); err != nil {
			zap.L().Error("error starting server", zap.Error(err))
			return err
		}

		return nil
	})

	eg.Go(func() error {
		return scheduler.Run(ctx)
	})

	eg.Go(func() error {
		sweepSessions(ctx, operatorSessions)
		return nil
	})

	if client != nil {
		bot := telegram.NewBot(client, service, operatorSessions, time.Local)

		eg.Go(func() error {
			return bot.Start(ctx)
		})
	}

	<-ctx.Done()

	eg.Go(func() error {
		if err := server.Stop(); err != nil {
			zap.L().Error("error stopping server", zap.Error(err))
			return err
		}
		return nil
	})

	err = eg.Wait()

	if statusWebhook != nil {
		statusWebhook.Wait()
	}

	if err != nil {
		return 1
	}

	return 0
}

// newStorage opens Postgres when a database URI is configured and falls back
// to the in-memory store otherwise.
func newStorage(config config.Config) (storage.Storage, func(), error) {
	if config.DatabaseURI == "" {
		zap.L().Warn("DATABASE_URI is empty, using in-memory storage")
		return storage.NewMemoryStorage(), func() {}, nil
	}

	db, err := sqlx.Connect("postgres", config.DatabaseURI)
	if err != nil {
		return nil, nil, fmt.Errorf("error connect to db: %w", err)
	}

	postgresStorage, err := storage.NewPostgresStorage(db)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("error create postgres storage: %w", err)
	}

	return postgresStorage, func() { db.Close() }, nil
}

func sweepSessions(ctx context.Context, store *sessions.Store) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if dropped := store.Sweep(); dropped > 0 {
				zap.L().Debug("operator sessions expired", zap.Int("count", dropped))
			}
		}
	}
}
