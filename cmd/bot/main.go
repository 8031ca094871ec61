package main

import (
    "context"
    "errors"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/joho/godotenv"
    "github.com/robfig/cron/v3"
    "github.com/sirupsen/logrus"

    "airdrop.bot/internal/api"
    "airdrop.bot/internal/bot"
    "airdrop.bot/internal/chain"
    "airdrop.bot/internal/payout"
    "airdrop.bot/internal/ratelimit"
    "airdrop.bot/internal/store"
    "airdrop.bot/internal/telegram"
)

type ledger interface {
    payout.Ledger
    Ping(ctx context.Context) error
}

func main() {
    _ = godotenv.Load()

    logger := logrus.New()
    logger.SetFormatter(&logrus.JSONFormatter{})
    logger.SetOutput(os.Stdout)

    cfg, err := loadConfig()
    if err != nil {
        logger.WithError(err).Fatal("config_error")
    }
    if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
        logger.SetLevel(level)
    }

    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()

    var db ledger
    if cfg.Storage == "memory" {
        logger.Warn("using in-memory storage, state is lost on restart")
        db = store.NewMemory()
    } else {
        if err := store.Migrate(cfg.DatabaseURL); err != nil {
            logger.WithError(err).Fatal("migrate_error")
        }
        pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
        if err != nil {
            logger.WithError(err).Fatal("db_error")
        }
        defer pool.Close()
        db = store.New(pool)
    }

    gateway, client, err := chain.Dial(ctx, chain.Config{
        RPCURL:     cfg.NodeURL,
        PrivateKey: cfg.PrivateKey,
        Token:      cfg.TokenContract,
        ChainID:    cfg.ChainID,
        Decimals:   cfg.TokenDecimals,
        GasLimit:   cfg.GasLimit,
    })
    if err != nil {
        logger.WithError(err).Fatal("chain_error")
    }
    defer client.Close()
    logger.WithField("address", gateway.Address()).Info("hot_wallet_loaded")

    botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
    if err != nil {
        logger.WithError(err).Fatal("telegram_error")
    }
    logger.WithField("username", botAPI.Self.UserName).Info("telegram_authorized")

    tg := telegram.New(botAPI, nil, logger)
    svc := payout.NewService(db, gateway, bot.NewNotifier(tg, cfg.AdminID, cfg.ExplorerTxURL), payout.Config{
        MinWithdrawal: cfg.MinWithdrawal,
        ReferralBonus: cfg.ReferralBonus,
        SubmitTimeout: cfg.SubmitTimeout,
    }, logger)

    limiter := ratelimit.New(cfg.RateLimitWindow)
    tg.SetHandler(bot.NewDispatcher(svc, limiter, bot.Config{
        AdminID:     cfg.AdminID,
        PageSize:    cfg.PageSize,
        BotUsername: botAPI.Self.UserName,
    }, logger))

    digest := bot.NewPendingDigest(svc, tg, cfg.AdminID, logger)
    jobs := cron.New()
    if _, err := jobs.AddFunc(cfg.DigestSchedule, func() {
        if err := digest.Run(ctx); err != nil {
            logger.WithError(err).Warn("pending_digest_failed")
        }
    }); err != nil {
        logger.WithError(err).Fatal("cron_error")
    }
    if _, err := jobs.AddFunc("@every 5m", func() {
        if n := limiter.Prune(); n > 0 {
            logger.WithField("entries", n).Debug("rate_limit_pruned")
        }
    }); err != nil {
        logger.WithError(err).Fatal("cron_error")
    }
    jobs.Start()

    var httpServer *http.Server
    if cfg.AuthToken != "" {
        srv := api.NewServer(svc, db, api.Config{AuthToken: cfg.AuthToken, PageSize: cfg.PageSize}, logger)
        httpServer = &http.Server{
            Addr:              ":" + cfg.Port,
            Handler:           srv.Routes(),
            ReadHeaderTimeout: 5 * time.Second,
        }
        go func() {
            logger.WithField("addr", httpServer.Addr).Info("admin_api_listening")
            if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
                logger.WithError(err).Fatal("server_error")
            }
        }()
    }

    if err := tg.Run(ctx); err != nil {
        logger.WithError(err).Error("bot_error")
    }

    <-jobs.Stop().Done()
    if httpServer != nil {
        ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
        defer cancel()
        _ = httpServer.Shutdown(ctxShutdown)
    }
    logger.Info("shutdown_complete")
}
