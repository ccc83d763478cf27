package equivalence

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/sorrel/internal/repositories/equivset"
	equiv "github.com/Ramsey-B/sorrel/pkg/equivalence"
	"github.com/Ramsey-B/sorrel/pkg/graph"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/schedule"
	"github.com/Ramsey-B/sorrel/pkg/utils"
)

// Register registers equivalence routes
func Register(g *echo.Group) {
	g.GET("/sets/:setID", GetSet)
	g.GET("/graphs/:id", GetGraph)
	g.POST("/assertions", WriteAssertions)
}

// GetSet gets a consolidated equivalence set by its id
func GetSet(c echo.Context) error {
	ctx := c.Request().Context()

	setID, err := strconv.ParseInt(c.Param("setID"), 10, 64)
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "setID must be an integer")
	}

	ctx, repo, err := ectoinject.GetContext[*equivset.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	row, err := repo.ResolveSet(ctx, setID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, row)
}

// GetGraph gets the asserted equivalence graph a piece of content belongs
// to, straight from the graph store
func GetGraph(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "id must be an integer")
	}

	ctx, store, err := ectoinject.GetContext[*graph.Store](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	graphs, err := store.ResolveGraphsForIDs(ctx, []int64{id})
	if err != nil {
		return err
	}
	g, ok := graphs[id]
	if !ok {
		return httperror.NewHTTPError(http.StatusNotFound, "content not found in graph")
	}

	return c.JSON(http.StatusOK, g)
}

// WriteAssertionsRequest is the request body for replacing a subject's
// asserted equivalents
type WriteAssertionsRequest struct {
	Subject  models.ContentRef   `json:"subject" validate:"required"`
	Asserted []models.ContentRef `json:"asserted"`
}

// WriteAssertions replaces the subject's outgoing assertions and
// reconsolidates the affected sets
func WriteAssertions(c echo.Context) error {
	ctx := c.Request().Context()

	var req WriteAssertionsRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if _, err := utils.Validate(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Subject.ID == 0 || req.Subject.Publisher == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "subject id and publisher are required")
	}

	ctx, store, err := ectoinject.GetContext[*graph.Store](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	update, err := store.WriteAssertions(ctx, req.Subject, req.Asserted)
	if err != nil {
		return err
	}

	ctx, consolidator, err := ectoinject.GetContext[*equiv.Consolidator](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	if err := consolidator.UpdateEquivalences(ctx, update); err != nil {
		return err
	}

	ctx, projector, err := ectoinject.GetContext[*schedule.Projector](ctx)
	if err == nil && projector != nil {
		if err := projector.EquivalencesUpdated(ctx); err != nil {
			return err
		}
	}

	return c.JSON(http.StatusOK, update)
}
