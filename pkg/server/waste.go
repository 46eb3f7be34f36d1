package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/m-mizutani/goerr/v2"

	"github.com/xhad/agrigenius/pkg/waste"
)

// NewWasteServer serves POST /waste_predict and GET /schema.
func NewWasteServer(p *waste.Predictor, cfg Config) (*fiber.App, error) {
	if p == nil {
		return nil, goerr.New("waste server needs a predictor")
	}

	app := newApp("wastepredict", cfg)
	app.Post("/waste_predict", func(c *fiber.Ctx) error {
		var req waste.Request
		if err := c.BodyParser(&req); err != nil {
			return badRequest(err)
		}
		pred, err := p.Predict(req)
		if errors.Is(err, waste.ErrUnknownCategory) {
			return badRequest(err)
		}
		if err != nil {
			return err
		}
		return c.JSON(pred)
	})
	app.Get("/schema", func(c *fiber.Ctx) error {
		m := p.Model()
		return c.JSON(fiber.Map{
			"version":    m.Schema().Version,
			"columns":    m.Schema().Columns,
			"metrics":    m.Metrics(),
			"trained_at": m.TrainedAt(),
		})
	})
	return app, nil
}
