package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/attendance-kiosk/internal/web/handlers"
)

func (s *Server) setupRoutes(runtime handlers.RuntimeSource, queue handlers.QueueSource, actions handlers.SelfServiceClient, device handlers.DeviceInfo) {
	statusHandler := handlers.NewStatusHandler(runtime, queue, device)
	queueHandler := handlers.NewQueueHandler(queue)
	actionsHandler := handlers.NewActionsHandler(actions, device.DeviceID)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", statusHandler.Get)
		r.Get("/device", statusHandler.Device)
		r.Get("/events", statusHandler.Events)

		r.Get("/queue", queueHandler.List)
		r.Post("/queue/drain", queueHandler.Drain)
		r.Post("/queue/retry", queueHandler.RetryFailed)

		r.Post("/break/start", actionsHandler.StartBreak)
		r.Post("/break/end", actionsHandler.EndBreak)
		r.Post("/temp-exit", actionsHandler.TemporaryExit)
	})
}
