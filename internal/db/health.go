package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type HealthStatus struct {
	Postgres string `json:"postgres"`
	Redis    string `json:"redis"`
}

func (h HealthStatus) OK() bool {
	return h.Postgres == "ok" && h.Redis == "ok"
}

// Health pings both backing stores with a short timeout.
func Health(ctx context.Context, pool *pgxpool.Pool, rdb *redis.Client) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	st := HealthStatus{Postgres: "ok", Redis: "ok"}
	if pool == nil {
		st.Postgres = "not configured"
	} else if err := pool.Ping(ctx); err != nil {
		st.Postgres = err.Error()
	}
	if rdb == nil {
		st.Redis = "not configured"
	} else if err := rdb.Ping(ctx).Err(); err != nil {
		st.Redis = err.Error()
	}
	return st
}
