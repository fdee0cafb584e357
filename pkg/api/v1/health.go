package apiv1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/wahajws/amast-crm-sub000/pkg/common"
	"github.com/wahajws/amast-crm-sub000/pkg/repository"
)

type HealthGroup struct {
	backend     repository.BackendRepository
	redisClient *common.RedisClient // nil in local mode
	routerGroup *echo.Group
}

func NewHealthGroup(g *echo.Group, backend repository.BackendRepository, rdb *common.RedisClient) *HealthGroup {
	group := &HealthGroup{routerGroup: g, backend: backend, redisClient: rdb}

	g.GET("", group.HealthCheck)

	return group
}

func (h *HealthGroup) HealthCheck(c echo.Context) error {
	ctx := c.Request().Context()

	if err := h.backend.Ping(ctx); err != nil {
		log.Error().Err(err).Msg("health check failed: backend")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"status": "not ok",
			"error":  err.Error(),
		})
	}

	if h.redisClient != nil {
		if err := h.redisClient.Ping(ctx).Err(); err != nil {
			log.Error().Err(err).Msg("health check failed: redis")
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"status": "not ok",
				"error":  err.Error(),
			})
		}
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}
