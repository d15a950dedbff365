package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sme-lending/backend/internal/db"
	"github.com/sme-lending/backend/internal/http/dto"
)

type HealthHandler struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
}

func NewHealthHandler(pool *pgxpool.Pool, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{pool: pool, rdb: rdb}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	st := db.Health(c.Context(), h.pool, h.rdb)
	resp := dto.HealthResponse{Status: "ok", Postgres: st.Postgres, Redis: st.Redis}
	if !st.OK() {
		resp.Status = "degraded"
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.SuccessResponse{Success: false, Data: resp})
	}
	return respondOK(c, resp)
}
