package api

import (
	"strings"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) setupRoutes() {
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(s.config.Security.AllowOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PATCH, DELETE, OPTIONS",
	}))
	s.app.Use(s.metricsMiddleware())

	s.app.Get("/api/health", s.handleHealth)
	if s.gatherer != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	api := s.app.Group("/api")

	api.Post("/auth/login", s.handleLogin)

	protected := api.Use(s.authMiddleware(), s.rateLimitMiddleware())

	protected.Get("/medications", s.handleListMedications)
	protected.Post("/medications", s.handleAddMedication)
	protected.Get("/medications/validate", s.handleValidateList)
	protected.Get("/medications/:id", s.handleGetMedication)
	protected.Patch("/medications/:id", s.handleUpdateMedication)
	protected.Delete("/medications/:id", s.handleDeleteMedication)

	protected.Post("/medications/:id/doses", s.handleRecordDose)
	protected.Post("/medications/:id/doses/:time/reset", s.handleResetDose)
	protected.Post("/medications/:id/stock", s.handleAdjustStock)
	protected.Post("/medications/:id/archive", s.handleArchive)
	protected.Post("/medications/:id/unarchive", s.handleUnarchive)
	protected.Get("/medications/:id/forecast", s.handleForecast)

	protected.Get("/restock", s.handleRestock)
	protected.Get("/adherence", s.handleAdherence)
}
