package tracking

import (
	"errors"

	"backend-safetrack/internal/auth"
	"backend-safetrack/internal/checkin"
	"backend-safetrack/internal/geolocation"
	"backend-safetrack/internal/link"

	"github.com/gofiber/fiber/v2"
)

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrSessionActive), errors.Is(err, ErrNoActiveSession):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, ErrNoResumableSession), errors.Is(err, ErrSessionNotFound),
		errors.Is(err, checkin.ErrNoPendingCheck):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrPositionUnavailable), errors.Is(err, ErrNoSample),
		errors.Is(err, checkin.ErrInvalidStatus):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, checkin.ErrHandshakeWrite):
		return fiber.NewError(fiber.StatusBadGateway, "could not send the check request, try again")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

// RegisterRoutes mounts the owner side of tracking. Every route acts on the caller's own tracker.
func RegisterRoutes(r fiber.Router, m *Manager, authMiddleware fiber.Handler, debug bool) {
	r.Use(authMiddleware)

	r.Post("/start", func(c *fiber.Ctx) error {
		session, err := m.Get(auth.UserID(c)).Tracker.Start(c.Context())
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(session)
	})

	r.Post("/resume", func(c *fiber.Ctx) error {
		session, err := m.Get(auth.UserID(c)).Tracker.Resume(c.Context())
		if err != nil {
			return httpError(err)
		}
		return c.JSON(session)
	})

	r.Post("/stop", func(c *fiber.Ctx) error {
		if err := m.Get(auth.UserID(c)).Tracker.Stop(c.Context()); err != nil {
			return httpError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Get("/current", func(c *fiber.Ctx) error {
		snap, ok := m.Get(auth.UserID(c)).Tracker.Current()
		if !ok {
			return httpError(ErrNoActiveSession)
		}
		return c.JSON(snap)
	})

	r.Post("/positions", func(c *fiber.Ctx) error {
		var req geolocation.Reading
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.Error == "" && (req.Latitude < -90 || req.Latitude > 90 || req.Longitude < -180 || req.Longitude > 180) {
			return fiber.NewError(fiber.StatusBadRequest, "latitude or longitude out of range")
		}
		m.Get(auth.UserID(c)).Feed.Push(req)
		return c.SendStatus(fiber.StatusAccepted)
	})

	r.Post("/ui", func(c *fiber.Ctx) error {
		var req struct {
			ModalOpen bool `json:"modal_open"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		m.Get(auth.UserID(c)).Tracker.SetBusy(req.ModalOpen)
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Post("/safety-check", func(c *fiber.Ctx) error {
		var req struct {
			Answer string `json:"answer"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		tr := m.Get(auth.UserID(c)).Tracker
		var err error
		switch req.Answer {
		case "yes":
			err = tr.ConfirmSafe(c.Context())
		case "no":
			err = tr.Panic(c.Context())
		default:
			return fiber.NewError(fiber.StatusBadRequest, "answer must be yes or no")
		}
		if err != nil {
			return httpError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Post("/panic", func(c *fiber.Ctx) error {
		if err := m.Get(auth.UserID(c)).Tracker.Panic(c.Context()); err != nil {
			return httpError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Post("/panic/cancel", func(c *fiber.Ctx) error {
		if err := m.Get(auth.UserID(c)).Tracker.CancelPanic(c.Context()); err != nil {
			return httpError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Post("/check-request", func(c *fiber.Ctx) error {
		req, err := m.Get(auth.UserID(c)).Tracker.RequestCheck(c.Context())
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(req)
	})

	r.Delete("/anomaly", func(c *fiber.Ctx) error {
		if err := m.Get(auth.UserID(c)).Tracker.ClearAnomaly(c.Context()); err != nil {
			return httpError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	if debug {
		r.Post("/debug/anomaly", func(c *fiber.Ctx) error {
			speed, err := m.Get(auth.UserID(c)).Tracker.SimulateAnomaly(c.Context())
			if err != nil {
				return httpError(err)
			}
			return c.JSON(fiber.Map{"speed_mps": speed})
		})
	}

	r.Get("/share", func(c *fiber.Ctx) error {
		snap, ok := m.Get(auth.UserID(c)).Tracker.Current()
		if !ok {
			return httpError(ErrNoActiveSession)
		}
		text := link.ShareText(snap.TrackingLink)
		return c.JSON(fiber.Map{
			"tracking_link": snap.TrackingLink,
			"text":          text,
			"whatsapp_url":  link.WhatsAppShareURL(text),
		})
	})

	r.Get("/qr", func(c *fiber.Ctx) error {
		snap, ok := m.Get(auth.UserID(c)).Tracker.Current()
		if !ok {
			return httpError(ErrNoActiveSession)
		}
		png, err := link.QRCode(snap.TrackingLink, c.QueryInt("size", 256))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		c.Set(fiber.HeaderContentType, "image/png")
		return c.Send(png)
	})
}

// RegisterViewerRoutes mounts the public tracker view. Knowing the session id is the credential.
func RegisterViewerRoutes(r fiber.Router, repo *Repository, checkins *checkin.Service) {
	r.Get("/sessions/:id", func(c *fiber.Ctx) error {
		session, err := repo.Get(c.Context(), c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(session)
	})

	r.Get("/sessions/:id/path", func(c *fiber.Ctx) error {
		if _, err := repo.Get(c.Context(), c.Params("id")); err != nil {
			return httpError(err)
		}
		path, err := repo.Path(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(path)
	})

	r.Get("/sessions/:id/check", func(c *fiber.Ctx) error {
		req, ok, err := checkins.Current(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if !ok {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.JSON(req)
	})

	r.Post("/sessions/:id/check", func(c *fiber.Ctx) error {
		var req struct {
			Status checkin.Status `json:"status"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := checkins.Reply(c.Context(), c.Params("id"), req.Status); err != nil {
			return httpError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}
