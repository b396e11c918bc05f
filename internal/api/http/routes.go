package httpapi

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/i474232898/ndvi-change/internal/analysis"
	"github.com/i474232898/ndvi-change/internal/ndvi"
	"github.com/i474232898/ndvi-change/internal/store"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app. runTimeout
// bounds on-demand comparison runs.
func RegisterRoutes(app *fiber.App, service *analysis.Service, runTimeout time.Duration) {
	v1 := app.Group("/api/v1")

	v1.Get("/analysis/latest", func(c *fiber.Ctx) error {
		res, err := service.GetLatest()
		if err != nil {
			return storeError(err, "no analysis result yet")
		}
		return c.JSON(res)
	})

	v1.Get("/analysis/latest/figure", func(c *fiber.Ctx) error {
		res, err := service.GetLatest()
		if err != nil {
			return storeError(err, "no analysis result yet")
		}
		if res.FigurePath == "" {
			return fiber.NewError(fiber.StatusNotFound, "latest result has no figure")
		}

		data, err := os.ReadFile(res.FigurePath)
		if err != nil {
			log.WithError(err).WithField("path", res.FigurePath).Warn("figure unreadable")
			return fiber.NewError(fiber.StatusNotFound, "figure file is not available")
		}
		c.Type(filepath.Ext(res.FigurePath))
		return c.Send(data)
	})

	v1.Get("/analysis/history", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		results, err := service.GetRange(req.From, req.To)
		if err != nil {
			return storeError(err, "no analysis history for requested range")
		}

		return c.JSON(fiber.Map{
			"region":  service.Region(),
			"from":    req.From,
			"to":      req.To,
			"results": results,
		})
	})

	v1.Post("/analysis/run", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), runTimeout)
		defer cancel()

		res, err := service.Run(ctx)
		if err != nil {
			return runError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	})
}

func storeError(err error, notFound string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, notFound)
	}
	return fiber.NewError(fiber.StatusInternalServerError, "failed to read analysis results")
}

func runError(err error) error {
	log.WithError(err).Error("on-demand comparison failed")
	switch {
	case errors.Is(err, ndvi.ErrEmptyRegion):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, analysis.ErrNoComposite), errors.Is(err, analysis.ErrNoSources):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.NewError(fiber.StatusGatewayTimeout, "comparison timed out")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "comparison failed")
	}
}

// historyQuery holds query parameters for the history endpoint.
type historyQuery struct {
	From time.Time `validate:"required"`
	To   time.Time `validate:"required,gtefield=From"`
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	h.From = from
	h.To = to
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
