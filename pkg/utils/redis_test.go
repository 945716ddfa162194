package utils

import (
	"testing"
	"time"
)

func TestConcurrencyScriptsCompile(t *testing.T) {
	// Compile-time smoke test: scripts should be initialized.
	if concurrencyAcquireScript == nil || concurrencyReleaseScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
}

func TestRedisConfigDefaults(t *testing.T) {
	got := RedisConfig{Addr: "localhost:6379"}.withDefaults()

	if got.DialTimeout != 3*time.Second || got.ReadTimeout != 2*time.Second || got.WriteTimeout != 2*time.Second {
		t.Fatalf("timeout defaults: %+v", got)
	}
	if got.PoolSize != 20 || got.PoolTimeout != 4*time.Second {
		t.Fatalf("pool defaults: %+v", got)
	}
	if got.PingTimeout != 2*time.Second {
		t.Fatalf("ping timeout default: %v", got.PingTimeout)
	}
}
