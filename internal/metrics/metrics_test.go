package metrics

import (
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/prometheus/client_golang/prometheus/testutil"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
    before := testutil.ToFloat64(withdrawalsResolved.WithLabelValues("failed"))
    WithdrawalResolved("failed")
    assert.Equal(t, before+1, testutil.ToFloat64(withdrawalsResolved.WithLabelValues("failed")))

    SetPending(3)
    assert.Equal(t, float64(3), testutil.ToFloat64(pending))
}

func TestHandlerExposesCollectors(t *testing.T) {
    CommandHandled("withdraw", "ok")
    ObserveSubmit(time.Second, true)

    rec := httptest.NewRecorder()
    Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

    require.Equal(t, http.StatusOK, rec.Code)
    body := rec.Body.String()
    assert.True(t, strings.Contains(body, `airdrop_bot_commands_total{action="withdraw",outcome="ok"}`))
    assert.True(t, strings.Contains(body, "airdrop_chain_submit_duration_seconds"))
}
