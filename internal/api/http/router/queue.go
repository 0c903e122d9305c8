package router

import (
	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/clinicq_backend/internal/api/http/handler"
)

func (r *Router) registerQueueRoutes(api fiber.Router, qh *handler.QueueHandler) {
	sessions := api.Group("/sessions")
	sessions.Get("/available", qh.AvailableSessions)
	sessions.Get("/:id/preview", qh.PreviewSlots)

	services := api.Group("/services/:id")
	services.Get("/next-number", qh.PreviewNextNumber)
	services.Get("/tickets", qh.ListScope)

	tickets := api.Group("/tickets")
	tickets.Post("/", qh.Book)

	t := tickets.Group("/:id")
	t.Get("/", qh.Get)
	t.Patch("/", qh.Edit)
	t.Patch("/cancel", qh.Cancel)
	t.Patch("/finish", qh.Finish)
	t.Get("/printable", qh.Printable)

	api.Get("/patients/:pid/active-ticket", qh.ActiveTicket)
	api.Post("/counters/:cid/call-next", qh.CallNext)

	quotas := api.Group("/quotas")
	quotas.Post("/sync", qh.SyncQuotas)
	quotas.Post("/defaults", qh.CreateDefaultQuotas)

	api.Post("/sweeps/overdue", qh.RunOverdueSweep)
}
