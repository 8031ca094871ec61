package main

import (
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "airdrop.bot/internal/money"
)

func setRequired(t *testing.T) {
    t.Helper()
    t.Setenv("BOT_TOKEN", "123:abc")
    t.Setenv("ADMIN_ID", "77")
    t.Setenv("STORAGE", "memory")
    t.Setenv("BSC_NODE_URL", "https://data-seed-prebsc-1-s1.binance.org:8545")
    t.Setenv("BOT_PRIVATE_KEY", "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
}

func TestLoadConfigDefaults(t *testing.T) {
    setRequired(t)

    cfg, err := loadConfig()
    require.NoError(t, err)
    assert.Equal(t, int64(77), cfg.AdminID)
    assert.Equal(t, money.Units(20), cfg.MinWithdrawal)
    assert.Equal(t, money.Units(8), cfg.ReferralBonus)
    assert.Equal(t, time.Minute, cfg.RateLimitWindow)
    assert.Equal(t, 2*time.Minute, cfg.SubmitTimeout)
    assert.Equal(t, 5, cfg.PageSize)
    assert.Equal(t, int64(97), cfg.ChainID)
    assert.Equal(t, int32(6), cfg.TokenDecimals)
    assert.Equal(t, uint64(100000), cfg.GasLimit)
    assert.Equal(t, "8080", cfg.Port)
    assert.Empty(t, cfg.DatabaseURL)
}

func TestLoadConfigOverrides(t *testing.T) {
    setRequired(t)
    t.Setenv("MIN_WITHDRAWAL", "12.50")
    t.Setenv("RATE_LIMIT_WINDOW", "30s")
    t.Setenv("TOKEN_DECIMALS", "18")

    cfg, err := loadConfig()
    require.NoError(t, err)
    assert.Equal(t, money.Amount(1250), cfg.MinWithdrawal)
    assert.Equal(t, 30*time.Second, cfg.RateLimitWindow)
    assert.Equal(t, int32(18), cfg.TokenDecimals)
}

func TestLoadConfigRequired(t *testing.T) {
    setRequired(t)
    t.Setenv("BOT_TOKEN", "")
    _, err := loadConfig()
    assert.Error(t, err)

    setRequired(t)
    t.Setenv("ADMIN_ID", "abc")
    _, err = loadConfig()
    assert.Error(t, err)

    setRequired(t)
    t.Setenv("BOT_PRIVATE_KEY", "")
    _, err = loadConfig()
    assert.Error(t, err)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
    cases := map[string]string{
        "MIN_WITHDRAWAL":    "-1",
        "RATE_LIMIT_WINDOW": "0s",
        "PAGE_SIZE":         "0",
        "TOKEN_DECIMALS":    "1",
        "DIGEST_SCHEDULE":   "not a cron",
        "STORAGE":           "sqlite",
    }
    for key, value := range cases {
        t.Run(key, func(t *testing.T) {
            setRequired(t)
            t.Setenv(key, value)
            _, err := loadConfig()
            assert.Error(t, err)
        })
    }
}

func TestDatabaseURLFromParts(t *testing.T) {
    setRequired(t)
    t.Setenv("STORAGE", "postgres")
    t.Setenv("DATABASE_URL", "")
    t.Setenv("DB_HOST", "db")
    t.Setenv("DB_USER", "bot")
    t.Setenv("DB_PASSWORD", "p@ss word")
    t.Setenv("DB_NAME", "airdrop")

    cfg, err := loadConfig()
    require.NoError(t, err)
    assert.Equal(t, "postgres://bot:p%40ss%20word@db:5432/airdrop?sslmode=disable", cfg.DatabaseURL)

    t.Setenv("DB_PASSWORD", "")
    _, err = loadConfig()
    assert.Error(t, err)
}

func TestDatabaseURLMustBeURLForm(t *testing.T) {
    setRequired(t)
    t.Setenv("STORAGE", "postgres")

    t.Setenv("DATABASE_URL", "host=db user=bot password=secret dbname=airdrop sslmode=disable")
    _, err := loadConfig()
    require.Error(t, err)
    assert.Contains(t, err.Error(), "DATABASE_URL")

    t.Setenv("DATABASE_URL", "postgresql://bot:secret@db:5432/airdrop")
    cfg, err := loadConfig()
    require.NoError(t, err)
    assert.Equal(t, "postgresql://bot:secret@db:5432/airdrop", cfg.DatabaseURL)
}
