package unitares

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/CIRWEL/unitares-sub004/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Port:                       18080,
		ReadTimeout:                5 * time.Second,
		WriteTimeout:               5 * time.Second,
		DBBackend:                  "sqlite",
		SQLitePath:                 filepath.Join(t.TempDir(), "unitares.db"),
		ToolMode:                   "operator_readonly",
		RiskApproveThreshold:       0.35,
		RiskReviseThreshold:        0.60,
		RiskRejectThreshold:        0.85,
		CoherenceWarningThreshold:  0.45,
		CoherenceCriticalThreshold: 0.25,
		VoidActiveThreshold:        0.15,
		LoopThreshold:              5,
		LoopCooldown:               time.Minute,
		SessionTTL:                 time.Hour,
		OnboardPinTTL:              30 * time.Minute,
		DialecticStuckThreshold:    2 * time.Hour,
		LockTimeout:                5 * time.Second,
		LockMaxRetries:             10,
		LockMaxAge:                 5 * time.Minute,
		ServiceName:                "unitares-test",
		JWTExpiration:              time.Hour,
	}
}

// TestNew_WiresUpAppAgainstSQLiteBackend exercises the full construction
// path against a real embedded-sqlite store, mirroring how cmd/unitaresd
// would build an App in production except for the environment-variable
// load step (WithConfig supplies a deterministic config instead).
func TestNew_WiresUpAppAgainstSQLiteBackend(t *testing.T) {
	ctx := context.Background()
	app, err := New(ctx, WithConfig(testConfig(t)), WithVersion("test"))
	require.NoError(t, err)
	require.NotNil(t, app)
	require.NotNil(t, app.mcpSrv.MCPServer())
	require.Len(t, app.registry.Specs(), 4)

	require.NoError(t, app.Shutdown(ctx))
}
