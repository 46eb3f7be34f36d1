package server

import (
	"context"
	"embed"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/m-mizutani/goerr/v2"

	"github.com/xhad/agrigenius/pkg/qa"
)

//go:embed static/index.html
var static embed.FS

// Asker answers one question. *qa.Pipeline implements it.
type Asker interface {
	Ask(ctx context.Context, question string) (qa.Answer, error)
}

// NewQAServer serves the chat page at GET / and answers form posts on
// POST /ask.
func NewQAServer(asker Asker, cfg Config) (*fiber.App, error) {
	if asker == nil {
		return nil, goerr.New("qa server needs a pipeline")
	}
	page, err := static.ReadFile("static/index.html")
	if err != nil {
		return nil, goerr.Wrap(err, "read chat page")
	}

	app := newApp("agrigenius", cfg)
	app.Get("/", func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.Send(page)
	})
	app.Post("/ask", func(c *fiber.Ctx) error {
		question := strings.TrimSpace(c.FormValue("messageText"))
		if question == "" {
			return fiber.NewError(fiber.StatusBadRequest, "messageText is required")
		}
		answer, err := asker.Ask(c.UserContext(), question)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"answer": answer.Text})
	})
	return app, nil
}
