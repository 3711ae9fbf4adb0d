package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/acappella-workshop/internal/model"
)

// WeekLister lists the week catalogue, optionally by location.
type WeekLister interface {
	List(ctx context.Context, location string) ([]model.Week, error)
	GetByID(ctx context.Context, id string) (model.Week, error)
}

// ListWeeks handles GET /api/weeks?location=lex.
func ListWeeks(weeks WeekLister) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := dbCtx(c)
		defer cancel()
		list, err := weeks.List(ctx, strings.ToLower(strings.TrimSpace(c.QueryParam("location"))))
		if err != nil {
			return repoError(c, err, "list weeks failed")
		}
		return c.JSON(http.StatusOK, list)
	}
}

// GetWeek handles GET /api/weeks/:id.
func GetWeek(weeks WeekLister) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := dbCtx(c)
		defer cancel()
		w, err := weeks.GetByID(ctx, c.Param("id"))
		if err != nil {
			return repoError(c, err, "load week failed")
		}
		return c.JSON(http.StatusOK, w)
	}
}
