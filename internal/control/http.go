package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/Lukeskaiwalker/led-matrix-gif-player/internal/config"
	"github.com/Lukeskaiwalker/led-matrix-gif-player/internal/core"
	"github.com/Lukeskaiwalker/led-matrix-gif-player/internal/store"
)

// HTTP is the HTTP control plane: uploads, display commands and slot
// inspection over a fiber app.
type HTTP struct {
	cfg       config.HTTPConfig
	limits    config.LimitsConfig
	svc       *core.Service
	app       *fiber.App
	allowNets []*net.IPNet
}

// NewHTTP builds the fiber app and its routes. Listening starts in Start.
func NewHTTP(cfg config.HTTPConfig, limits config.LimitsConfig, svc *core.Service) (*HTTP, error) {
	h := &HTTP{
		cfg:    cfg,
		limits: limits,
		svc:    svc,
	}

	for _, raw := range cfg.AllowNets {
		_, ipnet, err := net.ParseCIDR(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid allow_nets entry %q: %w", raw, err)
		}
		h.allowNets = append(h.allowNets, ipnet)
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             bodyLimit(limits.MaxUploadBytes),
	})

	if len(h.allowNets) > 0 {
		app.Use(h.allowlist)
	}

	app.Get("/", h.hints)
	app.Get("/ping", h.ping)
	app.Get("/status", h.status)
	app.Get("/current.gif", h.currentGIF)
	app.Head("/current.gif", h.currentGIF)
	app.Post("/upload", h.upload)
	app.Post("/brightness", h.brightness)
	app.Post("/clear", h.clear)
	app.Post("/default/current", h.defaultFromCurrent)
	app.Post("/default/load", h.defaultLoad)
	app.Post("/default/upload", h.defaultUpload)

	h.app = app
	return h, nil
}

// bodyLimit gives fasthttp a hard cap slightly above the configured upload
// limit so our own 413 mapping sees the payload first.
func bodyLimit(maxUpload int) int {
	if maxUpload <= 0 {
		return 32 * 1024 * 1024
	}
	return maxUpload + 64*1024
}

// App exposes the fiber app for tests.
func (h *HTTP) App() *fiber.App {
	return h.app
}

// Start begins listening without blocking.
func (h *HTTP) Start() error {
	slog.Info("starting http control plane", "addr", h.cfg.Addr)
	go func() {
		if err := h.app.Listen(h.cfg.Addr); err != nil {
			slog.Error("http control plane failed", "error", err)
		}
	}()
	return nil
}

// Stop shuts the listener down gracefully.
func (h *HTTP) Stop(ctx context.Context) error {
	return h.app.ShutdownWithContext(ctx)
}

func (h *HTTP) allowlist(c *fiber.Ctx) error {
	ip := net.ParseIP(c.IP())
	if ip != nil {
		for _, n := range h.allowNets {
			if n.Contains(ip) {
				return c.Next()
			}
		}
	}
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"ok": false, "detail": "forbidden"})
}

func (h *HTTP) hints(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"ok":             true,
		"hint_raw":       "curl --data-binary @anim.gif http://<host>/upload",
		"hint_multipart": "curl -F 'file=@anim.gif;type=image/gif' http://<host>/upload",
		"brightness":     `curl -X POST -H 'Content-Type: application/json' -d '{"value":60}' http://<host>/brightness`,
		"clear":          "curl -X POST http://<host>/clear",
	})
}

func (h *HTTP) ping(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"ok": true, "ping": "pong"})
}

func (h *HTTP) status(c *fiber.Ctx) error {
	return c.JSON(h.svc.Status())
}

// readPayload extracts upload bytes from either a multipart "file" field or
// the raw request body, enforcing the size limit against the declared
// Content-Length before reading anything.
func (h *HTTP) readPayload(c *fiber.Ctx) ([]byte, error) {
	if max := h.limits.MaxUploadBytes; max > 0 {
		if clen := c.Request().Header.ContentLength(); clen > max {
			return nil, fmt.Errorf("%w: declared %d > %d bytes", core.ErrUploadTooLarge, clen, max)
		}
	}

	ctype := string(c.Request().Header.ContentType())
	if len(ctype) >= 10 && ctype[:10] == "multipart/" {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("%w: no file field", core.ErrEmptyUpload)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open multipart file: %w", err)
		}
		defer f.Close()
		return io.ReadAll(f)
	}

	return c.Body(), nil
}

func (h *HTTP) upload(c *fiber.Ctx) error {
	data, err := h.readPayload(c)
	if err != nil {
		return uploadError(c, err)
	}

	setDefault := isTruthy(c.Query("set_default", c.FormValue("set_default")))

	res, err := h.svc.Upload(data, setDefault)
	if err != nil {
		return uploadError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true, "bytes": res.Bytes, "frames": res.Frames})
}

func (h *HTTP) brightness(c *fiber.Ctx) error {
	var body struct {
		Value int `json:"value"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"ok": false, "detail": "bad-brightness:invalid JSON"})
	}
	if err := h.svc.SetBrightness(body.Value); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"ok": false, "detail": fmt.Sprintf("bad-brightness:%v", err)})
	}
	return c.JSON(fiber.Map{"ok": true, "brightness": body.Value})
}

func (h *HTTP) clear(c *fiber.Ctx) error {
	if err := h.svc.Clear(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"ok": false, "detail": fmt.Sprintf("clear-failed:%v", err)})
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (h *HTTP) currentGIF(c *fiber.Ctx) error {
	data, mtime, err := h.svc.CurrentGIF()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"ok": false, "detail": "no current animation"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"ok": false, "detail": err.Error()})
	}

	c.Set(fiber.HeaderContentType, "image/gif")
	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Set(fiber.HeaderLastModified, mtime.UTC().Format(http.TimeFormat))
	if c.Method() == fiber.MethodHead {
		c.Set(fiber.HeaderContentLength, fmt.Sprintf("%d", len(data)))
		return nil
	}
	return c.Send(data)
}

func (h *HTTP) defaultFromCurrent(c *fiber.Ctx) error {
	n, err := h.svc.SaveCurrentAsDefault()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"ok": false, "detail": "no current animation"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"ok": false, "detail": err.Error()})
	}
	return c.JSON(fiber.Map{"ok": true, "bytes": n})
}

func (h *HTTP) defaultLoad(c *fiber.Ctx) error {
	res, err := h.svc.LoadDefault()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"ok": false, "detail": "no default animation"})
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"ok": false, "detail": fmt.Sprintf("bad-image:%v", err)})
	}
	return c.JSON(fiber.Map{"ok": true, "bytes": res.Bytes, "frames": res.Frames})
}

func (h *HTTP) defaultUpload(c *fiber.Ctx) error {
	data, err := h.readPayload(c)
	if err != nil {
		return uploadError(c, err)
	}
	res, err := h.svc.UploadDefault(data)
	if err != nil {
		return uploadError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true, "bytes": res.Bytes, "frames": res.Frames})
}

// uploadError maps pipeline errors onto transport status codes: oversize is
// 413, storage trouble is 500, everything else is the client's payload.
func uploadError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, core.ErrUploadTooLarge):
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"ok": false, "detail": "upload-too-large"})
	case errors.Is(err, core.ErrStorage):
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"ok": false, "detail": fmt.Sprintf("upload-failed:%v", err)})
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"ok": false, "detail": fmt.Sprintf("bad-image:%v", err)})
	}
}

func isTruthy(v string) bool {
	switch v {
	case "1", "true", "True", "yes", "on":
		return true
	}
	return false
}
