package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"docvault/internal/logger"
	"docvault/internal/service"
)

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Every /documents route runs behind auth; health probes stay public.
// db or blobs may be nil when that dependency is not in use.
func RegisterRoutes(app *fiber.App, db Pinger, blobs Prober, docSvc service.DocumentService, auth fiber.Handler, log zerolog.Logger) {
	log = logger.Component(log, "handler")

	app.Get("/health", HealthCheck(db, blobs))
	app.Get("/healthz", LivenessProbe())

	docs := app.Group("/documents", auth)
	docs.Get("", ListDocuments(docSvc, log))
	docs.Post("", UploadDocument(docSvc, log))
	docs.Get("/:id", GetDocument(docSvc, log))
	docs.Get("/:id/download", DownloadDocument(docSvc, log))
	docs.Get("/:id/versions", ListVersions(docSvc, log))
	docs.Delete("/:id", DeleteDocument(docSvc, log))
}
