// Package handlers implements one function per route, each a thin
// fiber.Handler translating an HTTP request into a service call and
// its result into a sspapi wire response.
package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"sspbackend/internal/sspapi"
	"sspbackend/internal/sspauth/jwksfetcher"
	"sspbackend/internal/sspcrypto/platformcert"
	"sspbackend/internal/sspdomain"
	"sspbackend/internal/sspserver/middleware"
	"sspbackend/internal/sspservice/accesscontrol"
	"sspbackend/internal/sspservice/certificate"
	"sspbackend/internal/sspservice/delegation"
	"sspbackend/internal/sspservice/userdirectory"
	"sspbackend/internal/sspshared/apperr"
	"sspbackend/internal/sspshared/sysinfo"
)

// Handlers groups every route handler with the services it calls.
type Handlers struct {
	Delegation  *delegation.Service
	JWKS        *jwksfetcher.Service
	Access      *accesscontrol.Service
	Users       *userdirectory.Service
	Certificate *certificate.Service
	Signer      *platformcert.Signer
	SysInfo     sysinfo.Provider
}

// Health answers GET /healthz. It degrades gracefully: a SysInfo read
// failure never turns a live liveness probe into a failing one.
func (h *Handlers) Health(c *fiber.Ctx) error {
	body := fiber.Map{"status": "ok"}

	if h.SysInfo != nil {
		if snap, err := h.SysInfo.Snapshot(c.Context()); err == nil {
			body["host"] = snap
		}
	}

	return c.JSON(body)
}

// PrepareDelegation answers POST /v1/delegations.
func (h *Handlers) PrepareDelegation(c *fiber.Ctx) error {
	var req sspapi.PrepareDelegationRequest
	if err := c.BodyParser(&req); err != nil {
		return middleware.WriteError(c, apperr.Wrap(apperr.KindValidationError, "invalid request body", err))
	}

	sessionPrincipal, err := sspdomain.ParsePrincipalText(req.SessionPrincipal)
	if err != nil {
		return middleware.WriteError(c, err)
	}

	result, err := h.Delegation.PrepareDelegation(c.Context(), sessionPrincipal, middleware.BearerJWT(c))
	if err != nil {
		return middleware.WriteError(c, err)
	}

	return c.JSON(sspapi.NewPrepareDelegationResponse(result))
}

// GetDelegation answers GET /v1/delegations. A missing signature is
// not an error: it comes back as a no_such_delegation status rather
// than a 404, matching the non-error result variant the delegation
// service itself returns.
func (h *Handlers) GetDelegation(c *fiber.Ctx) error {
	sessionPrincipal, err := sspdomain.ParsePrincipalText(c.Query("session_principal"))
	if err != nil {
		return middleware.WriteError(c, err)
	}

	expirationRaw := c.Query("expiration")

	expiration, err := time.Parse(time.RFC3339Nano, expirationRaw)
	if err != nil {
		return middleware.WriteError(c, apperr.Wrap(apperr.KindValidationError, "invalid expiration", err))
	}

	result, found, err := h.Delegation.GetDelegation(c.Context(), sessionPrincipal, middleware.BearerJWT(c), expiration)
	if err != nil {
		return middleware.WriteError(c, err)
	}

	if !found {
		return c.JSON(sspapi.GetDelegationResponse{Status: sspapi.DelegationStatusNoSuchDelegation})
	}

	resp, err := sspapi.NewSignedDelegationResponse(result)
	if err != nil {
		return middleware.WriteError(c, err)
	}

	return c.JSON(sspapi.GetDelegationResponse{Status: sspapi.DelegationStatusSigned, Delegation: &resp})
}

// SyncJWKS answers POST /v1/admin/jwks/sync.
func (h *Handlers) SyncJWKS(c *fiber.Ctx) error {
	if err := h.JWKS.SyncJWKS(c.Context()); err != nil {
		return middleware.WriteError(c, err)
	}

	return c.JSON(fiber.Map{"status": "synced"})
}

// SetJWKS answers PUT /v1/admin/jwks.
func (h *Handlers) SetJWKS(c *fiber.Ctx) error {
	var req sspapi.JWKSResponse
	if err := c.BodyParser(&req); err != nil {
		return middleware.WriteError(c, apperr.Wrap(apperr.KindValidationError, "invalid request body", err))
	}

	if err := h.JWKS.SetJWKS(c.Context(), req); err != nil {
		return middleware.WriteError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// GetJWKS answers GET /v1/admin/jwks.
func (h *Handlers) GetJWKS(c *fiber.Ctx) error {
	keySet, found, err := h.JWKS.GetJWKS(c.Context())
	if err != nil {
		return middleware.WriteError(c, err)
	}

	if !found {
		return middleware.WriteError(c, apperr.New(apperr.KindNotFound, "no jwks has been configured"))
	}

	return c.JSON(sspapi.JWKSResponse(keySet))
}

// SetBackendPrincipal answers PUT /v1/admin/config/backend-principal.
func (h *Handlers) SetBackendPrincipal(c *fiber.Ctx) error {
	var req sspapi.SetBackendPrincipalRequest
	if err := c.BodyParser(&req); err != nil {
		return middleware.WriteError(c, apperr.Wrap(apperr.KindValidationError, "invalid request body", err))
	}

	principal, err := sspdomain.ParsePrincipalText(req.Principal)
	if err != nil {
		return middleware.WriteError(c, err)
	}

	if err := h.Access.SetBackendPrincipal(c.Context(), principal); err != nil {
		return middleware.WriteError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// GetConfig answers GET /v1/admin/config.
func (h *Handlers) GetConfig(c *fiber.Ctx) error {
	principal, found, err := h.Access.GetBackendPrincipal(c.Context())
	if err != nil {
		return middleware.WriteError(c, err)
	}

	return c.JSON(sspapi.NewConfigResponse(principal, found))
}

// GetMyUser answers GET /v1/me.
func (h *Handlers) GetMyUser(c *fiber.Ctx) error {
	principal := middleware.CallerPrincipal(c)

	user, found, err := h.Users.GetByPrincipal(c.Context(), principal)
	if err != nil {
		return middleware.WriteError(c, err)
	}

	if !found {
		return middleware.WriteError(c, apperr.New(apperr.KindNotFound, "no user directory record for this principal"))
	}

	return c.JSON(sspapi.NewMeResponse(user))
}

// CreateCertificate answers POST /v1/certificates. The certificate's
// owner is the caller itself, unless the caller is the backend
// principal, in which case user_db_id selects the owner on the
// backend's behalf — the backend has no certificates of its own.
func (h *Handlers) CreateCertificate(c *fiber.Ctx) error {
	var req sspapi.CreateCertificateRequest
	if err := c.BodyParser(&req); err != nil {
		return middleware.WriteError(c, apperr.Wrap(apperr.KindValidationError, "invalid request body", err))
	}

	caller := middleware.CallerPrincipal(c)

	isBackend, err := h.Access.IsBackend(c.Context(), caller)
	if err != nil {
		return middleware.WriteError(c, err)
	}

	ownerPrincipal := caller

	if isBackend {
		if req.UserDbID == "" {
			return middleware.WriteError(c, apperr.New(apperr.KindValidationError, "user_db_id is required when the backend principal creates a certificate"))
		}

		dbID, err := sspdomain.ParseUuid(req.UserDbID)
		if err != nil {
			return middleware.WriteError(c, err)
		}

		owner, found, err := h.Users.GetByDbID(c.Context(), dbID)
		if err != nil {
			return middleware.WriteError(c, err)
		}

		if !found {
			return middleware.WriteError(c, apperr.New(apperr.KindNotFound, "no user directory record for the given user_db_id"))
		}

		ownerPrincipal = owner.Principal
	}

	var managedUserID *sspdomain.Uuid

	if req.ManagedUserID != "" {
		if !isBackend {
			return middleware.WriteError(c, apperr.New(apperr.KindAccessDenied, "only the backend principal may issue certificates on behalf of another user"))
		}

		id, err := sspdomain.ParseUuid(req.ManagedUserID)
		if err != nil {
			return middleware.WriteError(c, err)
		}

		managedUserID = &id
	}

	id, err := h.Certificate.CreateCertificate(c.Context(), ownerPrincipal, req.Content.ToDomain(), managedUserID)
	if err != nil {
		return middleware.WriteError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(sspapi.CreateCertificateResponse{ID: id.String()})
}

// GetUserCertificates answers GET /v1/certificates. Exactly one of the
// user_principal or user_db_id query parameters selects the target
// user. Certificates are first searched by that user's own principal;
// if none are found, the search falls back to certificates managed on
// behalf of the user_db_id (issued by the backend for someone who has
// not yet derived a principal of their own). A non-backend caller may
// only ever see its own certificates, in either search.
func (h *Handlers) GetUserCertificates(c *fiber.Ctx) error {
	caller := middleware.CallerPrincipal(c)

	isBackend, err := h.Access.IsBackend(c.Context(), caller)
	if err != nil {
		return middleware.WriteError(c, err)
	}

	userPrincipalRaw := c.Query("user_principal")
	userDbIDRaw := c.Query("user_db_id")

	if (userPrincipalRaw == "") == (userDbIDRaw == "") {
		return middleware.WriteError(c, apperr.New(apperr.KindValidationError, "exactly one of user_principal or user_db_id must be provided"))
	}

	var (
		targetPrincipal sspdomain.Principal
		haveTarget      bool
		targetDbID      sspdomain.Uuid
		haveDbID        bool
	)

	if userPrincipalRaw != "" {
		targetPrincipal, err = sspdomain.ParsePrincipalText(userPrincipalRaw)
		if err != nil {
			return middleware.WriteError(c, err)
		}

		haveTarget = true
	} else {
		targetDbID, err = sspdomain.ParseUuid(userDbIDRaw)
		if err != nil {
			return middleware.WriteError(c, err)
		}

		haveDbID = true

		user, found, err := h.Users.GetByDbID(c.Context(), targetDbID)
		if err != nil {
			return middleware.WriteError(c, err)
		}

		if found {
			targetPrincipal = user.Principal
			haveTarget = true
		}
	}

	if haveTarget && !isBackend && !caller.Equal(targetPrincipal) {
		return middleware.WriteError(c, apperr.New(apperr.KindAccessDenied, "caller may only access its own certificates"))
	}

	var ids []sspdomain.Uuid

	if haveTarget {
		ids, err = h.Certificate.CertificatesByUser(c.Context(), targetPrincipal)
		if err != nil {
			return middleware.WriteError(c, err)
		}
	}

	if len(ids) == 0 && haveDbID {
		managed, err := h.Certificate.CertificatesByManaged(c.Context(), targetDbID)
		if err != nil {
			return middleware.WriteError(c, err)
		}

		if !isBackend {
			managed, err = h.Certificate.FilterByOwner(c.Context(), managed, caller)
			if err != nil {
				return middleware.WriteError(c, err)
			}
		}

		ids = managed
	}

	wire := make([]string, 0, len(ids))
	for _, id := range ids {
		wire = append(wire, id.String())
	}

	return c.JSON(sspapi.CertificateListResponse{IDs: wire})
}

// GetCertificate answers GET /v1/certificates/{id}.
func (h *Handlers) GetCertificate(c *fiber.Ctx) error {
	id, err := sspdomain.ParseUuid(c.Params("id"))
	if err != nil {
		return middleware.WriteError(c, err)
	}

	cert, err := h.Certificate.GetCertificate(c.Context(), id)
	if err != nil {
		return middleware.WriteError(c, err)
	}

	ownerPrincipal, err := sspdomain.NewPrincipal(cert.Certificate.UserPrincipal)
	if err != nil {
		return middleware.WriteError(c, err)
	}

	if err := h.Access.AssertUserOrBackend(c.Context(), middleware.CallerPrincipal(c), ownerPrincipal); err != nil {
		return middleware.WriteError(c, err)
	}

	resp, err := sspapi.NewCertificateResponse(id, cert, h.Signer.PublicKey())
	if err != nil {
		return middleware.WriteError(c, err)
	}

	return c.JSON(resp)
}
