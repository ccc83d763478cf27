package content

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	contentrepo "github.com/Ramsey-B/sorrel/internal/repositories/content"
	"github.com/Ramsey-B/sorrel/internal/repositories/equivset"
	"github.com/Ramsey-B/sorrel/pkg/equivalence"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/writing"
)

const maxListLimit = 500

// Register registers content routes
func Register(g *echo.Group) {
	g.GET("/:id", GetContent)
	g.GET("/:id/equivalents", GetContentEquivalents)
	g.GET("/updated", ListUpdatedContent)
	g.POST("", WriteContent)
}

// GetContent gets a piece of content by its id
func GetContent(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "id must be an integer")
	}

	ctx, repo, err := ectoinject.GetContext[*contentrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	contents, err := repo.ResolveIDs(ctx, []int64{id})
	if err != nil {
		return err
	}
	if len(contents) == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, "content not found")
	}

	payload, err := models.MarshalContent(contents[0])
	if err != nil {
		return err
	}
	return c.JSONBlob(http.StatusOK, payload)
}

// GetContentEquivalents gets the consolidated equivalence set a piece of
// content belongs to
func GetContentEquivalents(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "id must be an integer")
	}

	ctx, repo, err := ectoinject.GetContext[*equivset.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	rows, err := repo.ResolveSetsForIDs(ctx, []int64{id})
	if err != nil {
		return err
	}
	row, ok := rows[id]
	if !ok {
		return httperror.NewHTTPError(http.StatusNotFound, "content not found")
	}

	return c.JSON(http.StatusOK, row)
}

// ListUpdatedContent lists content updated since a given instant, oldest
// first
func ListUpdatedContent(c echo.Context) error {
	ctx := c.Request().Context()

	since, err := time.Parse(time.RFC3339, c.QueryParam("since"))
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "since must be an RFC3339 timestamp")
	}

	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxListLimit {
			return httperror.NewHTTPError(http.StatusBadRequest, "limit must be between 1 and 500")
		}
	}

	ctx, repo, err := ectoinject.GetContext[*contentrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	contents, err := repo.ListUpdatedSince(ctx, since, limit)
	if err != nil {
		return err
	}

	payloads, err := models.MarshalContents(contents)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, payloads)
}

// WriteContent writes one piece of content through the versioning engine
func WriteContent(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}
	content, err := models.UnmarshalContent(body)
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid content envelope")
	}
	if content.Core().Publisher == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "content publisher is required")
	}

	ctx, engine, err := ectoinject.GetContext[*writing.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := engine.WriteContent(ctx, content)
	if err != nil {
		switch {
		case writing.IsPrecondition(err):
			return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
		case writing.IsMissingResource(err):
			return httperror.NewHTTPError(http.StatusNotFound, err.Error())
		case writing.IsResolutionTimeout(err):
			return httperror.NewHTTPError(http.StatusGatewayTimeout, err.Error())
		default:
			return err
		}
	}

	if result.Written {
		ctx, consolidator, err := ectoinject.GetContext[*equivalence.Consolidator](ctx)
		if err != nil {
			return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
		}
		if err := consolidator.UpdateContent(ctx, result.Resource); err != nil {
			return err
		}
	}

	payload, err := models.MarshalContent(result.Resource)
	if err != nil {
		return err
	}
	status := http.StatusOK
	if result.Written && result.Previous == nil {
		status = http.StatusCreated
	}
	return c.JSONBlob(status, payload)
}
