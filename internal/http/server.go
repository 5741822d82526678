// Package http serves the operational surface: liveness, health and the
// pairing QR page used to link the WhatsApp device.
package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/nextlevelbuilder/showroombot/internal/pairing"
)

// Status reports the live state of the bot for /health.
type Status interface {
	TransportConnected() bool
	InventoryCount() int
	QueueDepth() int
}

// Server is the fiber app behind the ops endpoints.
type Server struct {
	app     *fiber.App
	status  Status
	pairing *pairing.State
	name    string
	started time.Time
}

// NewServer builds the app and registers routes. name is shown on the
// liveness and QR pages.
func NewServer(name string, status Status, ps *pairing.State) *Server {
	s := &Server{
		status:  status,
		pairing: ps,
		name:    name,
		started: time.Now(),
	}
	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})
	s.app.Use(recover.New())

	s.app.Get("/", s.handleRoot)
	s.app.Get("/health", s.handleHealth)
	s.app.Get("/qr", s.handleQR)
	s.app.Get("/qr.png", s.handleQRPNG)
	return s
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App { return s.app }

// Run listens on host:port until ctx is cancelled.
func (s *Server) Run(ctx context.Context, host string, port int) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	errCh := make(chan error, 1)
	go func() {
		slog.Info("ops server listening", "addr", addr)
		errCh <- s.app.Listen(addr)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.app.ShutdownWithContext(shutdownCtx)
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	}
}

func (s *Server) handleRoot(c *fiber.Ctx) error {
	return c.SendString(s.name + " assistant is running")
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":              "ok",
		"transport_connected": s.status.TransportConnected(),
		"inventory_count":     s.status.InventoryCount(),
		"queue_depth":         s.status.QueueDepth(),
		"started_at":          s.started.UTC().Format(time.RFC3339),
	})
}

var qrPage = template.Must(template.New("qr").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Name}} WhatsApp pairing</title>
{{if not .Connected}}<meta http-equiv="refresh" content="20">{{end}}
<style>body{font-family:sans-serif;text-align:center;margin-top:40px}</style>
</head>
<body>
<h2>{{.Name}} assistant</h2>
{{if .Connected}}<p>WhatsApp is already connected.</p>
{{else if .HasCode}}<p>Open WhatsApp &gt; Linked devices &gt; Link a device, then scan:</p>
<img src="/qr.png?t={{.Issued}}" alt="pairing QR" width="320" height="320">
<p><small>This page refreshes every 20 seconds.</small></p>
{{else}}<p>Waiting for a pairing code...</p>
<p><small>This page refreshes every 20 seconds.</small></p>
{{end}}
</body>
</html>
`))

func (s *Server) handleQR(c *fiber.Ctx) error {
	_, issued, ok := s.pairing.Current()
	data := struct {
		Name      string
		Connected bool
		HasCode   bool
		Issued    int64
	}{
		Name:      s.name,
		Connected: s.pairing.Connected(),
		HasCode:   ok,
		Issued:    issued.Unix(),
	}
	c.Type("html", "utf-8")
	return qrPage.Execute(c.Response().BodyWriter(), data)
}

func (s *Server) handleQRPNG(c *fiber.Ctx) error {
	png, err := s.pairing.PNG(320)
	if errors.Is(err, pairing.ErrNoCode) {
		return fiber.NewError(fiber.StatusNotFound, "no pairing code pending")
	}
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Type("png")
	return c.Send(png)
}
