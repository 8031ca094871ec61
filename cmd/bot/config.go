package main

import (
    "errors"
    "fmt"
    "net"
    "net/url"
    "os"
    "strconv"
    "strings"
    "time"

    "github.com/robfig/cron/v3"

    "airdrop.bot/internal/money"
)

type config struct {
    BotToken        string
    AdminID         int64
    Storage         string
    DatabaseURL     string
    AuthToken       string
    Port            string
    MinWithdrawal   money.Amount
    ReferralBonus   money.Amount
    RateLimitWindow time.Duration
    PageSize        int
    NodeURL         string
    PrivateKey      string
    TokenContract   string
    ChainID         int64
    TokenDecimals   int32
    GasLimit        uint64
    SubmitTimeout   time.Duration
    DigestSchedule  string
    ExplorerTxURL   string
    LogLevel        string
}

func env(key, fallback string) string {
    if v := strings.TrimSpace(os.Getenv(key)); v != "" {
        return v
    }
    return fallback
}

func loadConfig() (config, error) {
    cfg := config{
        BotToken:       env("BOT_TOKEN", ""),
        Storage:        env("STORAGE", "postgres"),
        AuthToken:      env("AUTH_TOKEN", ""),
        Port:           env("PORT", "8080"),
        NodeURL:        env("BSC_NODE_URL", ""),
        PrivateKey:     env("BOT_PRIVATE_KEY", ""),
        TokenContract:  env("TOKEN_CONTRACT", "0x337610d27c682E347C9cD60BD4b3b107C9d34dDd"),
        DigestSchedule: env("DIGEST_SCHEDULE", "0 9 * * *"),
        ExplorerTxURL:  env("EXPLORER_TX_URL", "https://testnet.bscscan.com/tx/"),
        LogLevel:       env("LOG_LEVEL", "info"),
    }

    if cfg.BotToken == "" {
        return config{}, errors.New("BOT_TOKEN is required")
    }

    adminID, err := strconv.ParseInt(env("ADMIN_ID", ""), 10, 64)
    if err != nil || adminID <= 0 {
        return config{}, errors.New("ADMIN_ID must be a positive integer")
    }
    cfg.AdminID = adminID

    switch cfg.Storage {
    case "memory":
    case "postgres":
        dbURL, err := databaseURL()
        if err != nil {
            return config{}, err
        }
        cfg.DatabaseURL = dbURL
    default:
        return config{}, fmt.Errorf("STORAGE must be postgres or memory, got %q", cfg.Storage)
    }

    if cfg.NodeURL == "" || cfg.PrivateKey == "" {
        return config{}, errors.New("BSC_NODE_URL and BOT_PRIVATE_KEY are required")
    }

    if cfg.MinWithdrawal, err = money.Parse(env("MIN_WITHDRAWAL", "20")); err != nil {
        return config{}, fmt.Errorf("MIN_WITHDRAWAL: %w", err)
    }
    if cfg.ReferralBonus, err = money.Parse(env("REFERRAL_BONUS", "8")); err != nil {
        return config{}, fmt.Errorf("REFERRAL_BONUS: %w", err)
    }
    if cfg.RateLimitWindow, err = positiveDuration("RATE_LIMIT_WINDOW", "60s"); err != nil {
        return config{}, err
    }
    if cfg.SubmitTimeout, err = positiveDuration("SUBMIT_TIMEOUT", "2m"); err != nil {
        return config{}, err
    }

    if cfg.PageSize, err = strconv.Atoi(env("PAGE_SIZE", "5")); err != nil || cfg.PageSize <= 0 {
        return config{}, errors.New("PAGE_SIZE must be a positive integer")
    }
    if cfg.ChainID, err = strconv.ParseInt(env("CHAIN_ID", "97"), 10, 64); err != nil || cfg.ChainID <= 0 {
        return config{}, errors.New("CHAIN_ID must be a positive integer")
    }
    decimals, err := strconv.ParseInt(env("TOKEN_DECIMALS", "6"), 10, 32)
    if err != nil || decimals < money.Scale {
        return config{}, fmt.Errorf("TOKEN_DECIMALS must be an integer >= %d", money.Scale)
    }
    cfg.TokenDecimals = int32(decimals)
    if cfg.GasLimit, err = strconv.ParseUint(env("GAS_LIMIT", "100000"), 10, 64); err != nil || cfg.GasLimit == 0 {
        return config{}, errors.New("GAS_LIMIT must be a positive integer")
    }

    if _, err := cron.ParseStandard(cfg.DigestSchedule); err != nil {
        return config{}, fmt.Errorf("DIGEST_SCHEDULE: %w", err)
    }

    return cfg, nil
}

func positiveDuration(key, fallback string) (time.Duration, error) {
    d, err := time.ParseDuration(env(key, fallback))
    if err != nil || d <= 0 {
        return 0, fmt.Errorf("%s must be a positive duration", key)
    }
    return d, nil
}

func databaseURL() (string, error) {
    if dbURL := env("DATABASE_URL", ""); dbURL != "" {
        // migrate only accepts the URL form, not a key=value DSN
        if !strings.HasPrefix(dbURL, "postgres://") && !strings.HasPrefix(dbURL, "postgresql://") {
            return "", errors.New("DATABASE_URL must be a postgres:// or postgresql:// URL")
        }
        return dbURL, nil
    }

    user := env("DB_USER", "")
    password := env("DB_PASSWORD", "")
    name := env("DB_NAME", "")
    if user == "" || password == "" || name == "" {
        return "", errors.New("DATABASE_URL or DB_USER/DB_PASSWORD/DB_NAME are required")
    }

    u := url.URL{
        Scheme:   "postgres",
        User:     url.UserPassword(user, password),
        Host:     net.JoinHostPort(env("DB_HOST", "localhost"), env("DB_PORT", "5432")),
        Path:     "/" + name,
        RawQuery: url.Values{"sslmode": {env("DB_SSLMODE", "disable")}}.Encode(),
    }
    return u.String(), nil
}
