package metrics

import (
    "net/http"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    // Registry holds the application-specific Prometheus collectors.
    Registry = prometheus.NewRegistry()

    commands = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "airdrop",
            Subsystem: "bot",
            Name:      "commands_total",
            Help:      "Total number of dispatched commands by action and outcome.",
        },
        []string{"action", "outcome"},
    )

    withdrawalsRequested = prometheus.NewCounter(
        prometheus.CounterOpts{
            Namespace: "airdrop",
            Subsystem: "withdrawals",
            Name:      "requested_total",
            Help:      "Total number of withdrawal requests created.",
        },
    )

    withdrawalsResolved = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "airdrop",
            Subsystem: "withdrawals",
            Name:      "resolved_total",
            Help:      "Total number of withdrawals moved to a terminal status.",
        },
        []string{"status"},
    )

    submitDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "airdrop",
            Subsystem: "chain",
            Name:      "submit_duration_seconds",
            Help:      "Duration of token transfer submissions including receipt wait.",
            Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4m
        },
        []string{"success"},
    )

    referrals = prometheus.NewCounter(
        prometheus.CounterOpts{
            Namespace: "airdrop",
            Subsystem: "accounts",
            Name:      "referrals_credited_total",
            Help:      "Total number of referral bonuses credited.",
        },
    )

    pending = prometheus.NewGauge(
        prometheus.GaugeOpts{
            Namespace: "airdrop",
            Subsystem: "withdrawals",
            Name:      "pending",
            Help:      "Pending withdrawals at the last digest run.",
        },
    )
)

func init() {
    Registry.MustRegister(
        commands,
        withdrawalsRequested,
        withdrawalsResolved,
        submitDuration,
        referrals,
        pending,
    )
}

func Handler() http.Handler {
    return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func CommandHandled(action, outcome string) {
    commands.WithLabelValues(action, outcome).Inc()
}

func WithdrawalRequested() {
    withdrawalsRequested.Inc()
}

func WithdrawalResolved(status string) {
    withdrawalsResolved.WithLabelValues(status).Inc()
}

func ObserveSubmit(d time.Duration, success bool) {
    label := "false"
    if success {
        label = "true"
    }
    submitDuration.WithLabelValues(label).Observe(d.Seconds())
}

func ReferralCredited() {
    referrals.Inc()
}

func SetPending(n int) {
    pending.Set(float64(n))
}
