// Package sspserver builds the gofiber/fiber/v2 app exposing every
// route, wired to the service layer through internal/sspserver/handlers
// and internal/sspserver/middleware.
package sspserver

import (
	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"

	"sspbackend/internal/sspserver/handlers"
	"sspbackend/internal/sspserver/middleware"
	"sspbackend/internal/sspshared/magic"
)

// New builds the fiber app with every sspserver route mounted.
func New(h *handlers.Handlers) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "ssp-backend",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(otelfiber.Middleware())

	app.Get(magic.PathHealth, h.Health)
	app.Get("/swagger/*", swagger.HandlerDefault)

	app.Post(magic.PathDelegations, middleware.RequireBearerJWT, middleware.RequireSessionPrincipal, h.PrepareDelegation)
	app.Get(magic.PathDelegations, middleware.RequireBearerJWT, h.GetDelegation)

	controllerOnly := middleware.RequireController(h.Access)
	app.Post(magic.PathAdminJWKSSync, controllerOnly, h.SyncJWKS)
	app.Put(magic.PathAdminJWKS, controllerOnly, h.SetJWKS)
	app.Get(magic.PathAdminJWKS, controllerOnly, h.GetJWKS)
	app.Put(magic.PathAdminConfigBackend, controllerOnly, h.SetBackendPrincipal)
	app.Get(magic.PathAdminConfig, controllerOnly, h.GetConfig)

	requireUser := middleware.RequireUserPrincipal(h.Delegation)

	app.Get(magic.PathMe, requireUser, h.GetMyUser)

	app.Post(magic.PathCertificates, requireUser, h.CreateCertificate)
	app.Get(magic.PathCertificates, requireUser, h.GetUserCertificates)
	app.Get(magic.PathCertificateByID, requireUser, h.GetCertificate)

	return app
}
