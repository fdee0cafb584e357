package scheduler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wahajws/amast-crm-sub000/pkg/common"
)

// SchedulerService provides HTTP endpoints for scheduler operations
type SchedulerService struct {
	scheduler *Scheduler
}

// NewSchedulerService creates a new SchedulerService
func NewSchedulerService(scheduler *Scheduler) *SchedulerService {
	return &SchedulerService{
		scheduler: scheduler,
	}
}

// RegisterRoutes registers the scheduler HTTP routes
func (s *SchedulerService) RegisterRoutes(g *echo.Group, m ...echo.MiddlewareFunc) {
	g.GET("/scheduler", s.GetStatus, m...)
	g.POST("/scheduler/tick", s.TriggerTick, m...)
}

// GetStatus handles GET /scheduler
func (s *SchedulerService) GetStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.scheduler.Status())
}

// TriggerTick handles POST /scheduler/tick
func (s *SchedulerService) TriggerTick(c echo.Context) error {
	report, err := s.scheduler.Tick(c.Request().Context())
	if err != nil {
		if errors.Is(err, common.ErrLockNotObtained) {
			return c.JSON(http.StatusConflict, map[string]string{"error": "a scheduled pass already ran in this interval"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, report)
}
