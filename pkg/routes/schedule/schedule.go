package schedule

import (
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/sorrel/pkg/models"
	sched "github.com/Ramsey-B/sorrel/pkg/schedule"
	"github.com/Ramsey-B/sorrel/pkg/utils"
)

// MaxScheduleWindow caps how much schedule a single read may cover.
const MaxScheduleWindow = 14 * 24 * time.Hour

// Register registers schedule routes
func Register(g *echo.Group) {
	g.GET("/:channelID", GetSchedule)
	g.GET("", GetSchedules)
	g.POST("", WriteSchedule)
}

func parseInterval(c echo.Context) (models.Interval, error) {
	from, err := time.Parse(time.RFC3339, c.QueryParam("from"))
	if err != nil {
		return models.Interval{}, httperror.NewHTTPError(http.StatusBadRequest, "from must be an RFC3339 timestamp")
	}
	to, err := time.Parse(time.RFC3339, c.QueryParam("to"))
	if err != nil {
		return models.Interval{}, httperror.NewHTTPError(http.StatusBadRequest, "to must be an RFC3339 timestamp")
	}
	if !to.After(from) {
		return models.Interval{}, httperror.NewHTTPError(http.StatusBadRequest, "to must be after from")
	}
	if to.Sub(from) > MaxScheduleWindow {
		return models.Interval{}, httperror.NewHTTPError(http.StatusBadRequest, "requested window is too large")
	}
	return models.Interval{Start: from, End: to}, nil
}

func parseSelected(c echo.Context) []string {
	raw := c.QueryParam("selected")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	selected := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			selected = append(selected, p)
		}
	}
	return selected
}

// GetSchedule gets one channel's schedule with equivalents from the
// selected publishers attached to each entry
func GetSchedule(c echo.Context) error {
	ctx := c.Request().Context()

	channelID := c.Param("channelID")
	publisher := c.QueryParam("publisher")
	if publisher == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "publisher query parameter is required")
	}

	interval, err := parseInterval(c)
	if err != nil {
		return err
	}

	ctx, projector, err := ectoinject.GetContext[*sched.Projector](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	resolved, err := projector.ResolveSchedule(ctx, publisher, channelID, interval, parseSelected(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resolved)
}

// GetSchedules gets several channels' schedules over the same interval
func GetSchedules(c echo.Context) error {
	ctx := c.Request().Context()

	publisher := c.QueryParam("publisher")
	if publisher == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "publisher query parameter is required")
	}
	channelsRaw := c.QueryParam("channels")
	if channelsRaw == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "channels query parameter is required")
	}
	channelIDs := strings.Split(channelsRaw, ",")

	interval, err := parseInterval(c)
	if err != nil {
		return err
	}

	ctx, projector, err := ectoinject.GetContext[*sched.Projector](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	resolved, err := projector.ResolveSchedules(ctx, publisher, channelIDs, interval, parseSelected(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resolved)
}

// WriteScheduleRequest is the request body for writing a schedule batch
type WriteScheduleRequest struct {
	Publisher string                        `json:"publisher" validate:"required"`
	ChannelID string                        `json:"channel_id" validate:"required"`
	Interval  models.Interval               `json:"interval" validate:"required"`
	Entries   []models.ScheduleEntryMessage `json:"entries"`
}

// WriteSchedule replaces a channel interval's schedule for one publisher
func WriteSchedule(c echo.Context) error {
	ctx := c.Request().Context()

	var req WriteScheduleRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if _, err := utils.Validate(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	msg := models.ScheduleWriteMessage{
		Publisher: req.Publisher,
		ChannelID: req.ChannelID,
		Interval:  req.Interval,
		Entries:   req.Entries,
	}
	hierarchies, err := msg.Hierarchies()
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, reconciler, err := ectoinject.GetContext[*sched.Reconciler](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := reconciler.WriteSchedule(ctx, req.Publisher, req.ChannelID, req.Interval, hierarchies)
	if err != nil {
		if sched.IsValidation(err) {
			return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return err
	}

	if result.Written {
		ctx, projector, err := ectoinject.GetContext[*sched.Projector](ctx)
		if err == nil && projector != nil {
			if err := projector.ScheduleUpdated(ctx, req.ChannelID); err != nil {
				return err
			}
		}
	}

	return c.JSON(http.StatusOK, result)
}
