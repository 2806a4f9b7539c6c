package utils

import (
	"testing"
	"time"
)

func TestPostgresPoolConfig_Defaults(t *testing.T) {
	c := PostgresPoolConfig{MaxOpenConns: 10}.withDefaults()
	if c.MaxOpenConns != 10 {
		t.Fatalf("explicit max open conns must be kept, got %d", c.MaxOpenConns)
	}
	if c.MaxIdleConns != 25 || c.ConnMaxLifetime != 30*time.Minute || c.PingTimeout != 5*time.Second {
		t.Fatalf("unexpected defaults %+v", c)
	}
}
