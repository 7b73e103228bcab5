package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTransactionServiceDefaults(t *testing.T) {
	cfg, err := LoadTransactionService()
	require.NoError(t, err)

	assert.Equal(t, "8084", cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.CallTimeout)
	assert.Equal(t, 3, cfg.InlineCompensationAttempts)
	assert.Equal(t, 10, cfg.MaxCompensationAttempts)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.True(t, cfg.MigrateOnStart)
}

func TestLoadTransactionServiceFromEnv(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("CALL_TIMEOUT", "750ms")
	t.Setenv("LEDGER_SERVICE_URL", "http://ledger:8082")
	t.Setenv("MAX_COMPENSATION_ATTEMPTS", "7")
	t.Setenv("MIGRATE_ON_START", "false")

	cfg, err := LoadTransactionService()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, 750*time.Millisecond, cfg.CallTimeout)
	assert.Equal(t, "http://ledger:8082", cfg.LedgerServiceURL)
	assert.Equal(t, 7, cfg.MaxCompensationAttempts)
	assert.False(t, cfg.MigrateOnStart)
}

func TestLoadTransactionServiceRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"zero call timeout", "CALL_TIMEOUT", "0s"},
		{"max below inline attempts", "MAX_COMPENSATION_ATTEMPTS", "1"},
		{"stale window shorter than a call", "SAGA_STALE_AFTER", "1s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := LoadTransactionService()
			assert.Error(t, err)
		})
	}
}

func TestLoadGatewayRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := LoadGateway()
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "s3cret")
	cfg, err := LoadGateway()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, 10*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, 60*time.Second, cfg.TransferTimeout)
	assert.Greater(t, cfg.TransferTimeout, TransferBudget(5*time.Second, 3))
}

func TestLoadGatewayTransferTimeoutOutlastsOrchestrator(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	t.Setenv("TRANSFER_TIMEOUT", "10s")
	_, err := LoadGateway()
	assert.Error(t, err)

	// A slower transaction service needs a longer gateway budget.
	t.Setenv("TRANSFER_TIMEOUT", "60s")
	t.Setenv("CALL_TIMEOUT", "6s")
	_, err = LoadGateway()
	assert.Error(t, err)

	t.Setenv("CALL_TIMEOUT", "2s")
	t.Setenv("INLINE_COMPENSATION_ATTEMPTS", "5")
	cfg, err := LoadGateway()
	require.NoError(t, err)
	assert.Equal(t, 26*time.Second, TransferBudget(2*time.Second, 5))
	assert.Equal(t, 60*time.Second, cfg.TransferTimeout)
}

func TestLoadLedgerService(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://ledger")
	cfg, err := LoadLedgerService()
	require.NoError(t, err)
	assert.Equal(t, "postgres://ledger", cfg.DatabaseURL)
	assert.Equal(t, "8082", cfg.Port)
}
