// Package middleware extracts caller identity from incoming requests
// and enforces the controller/backend/user authorization split that
// internal/sspservice/accesscontrol implements.
package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"sspbackend/internal/sspdomain"
	"sspbackend/internal/sspservice/accesscontrol"
	"sspbackend/internal/sspshared/apperr"
)

const (
	localsJWT              = "ssp_jwt"
	localsSessionPrincipal = "ssp_session_principal"
	localsCallerPrincipal  = "ssp_caller_principal"
	localsControllerPrinc  = "ssp_controller_principal"

	headerSessionPrincipal    = "X-Session-Principal"
	headerControllerPrincipal = "X-Controller-Principal"
)

// WriteError maps an apperr.Error onto a JSON error body with the
// matching HTTP status, the single place every handler funnels errors
// through.
func WriteError(c *fiber.Ctx, err error) error {
	kind := apperr.KindOf(err)
	return c.Status(kind.HTTPStatus()).JSON(fiber.Map{
		"kind":    kind.String(),
		"message": err.Error(),
	})
}

// RequireBearerJWT extracts the raw JWT from the Authorization header
// and stashes it in locals for downstream handlers; it does not itself
// validate the token, since each route's service call does that with
// the issuer/audience/algorithm context it needs.
func RequireBearerJWT(c *fiber.Ctx) error {
	auth := c.Get(fiber.HeaderAuthorization)

	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		return WriteError(c, apperr.New(apperr.KindInvalidToken, "missing bearer token"))
	}

	c.Locals(localsJWT, token)

	return c.Next()
}

// BearerJWT returns the JWT RequireBearerJWT stashed for this request.
func BearerJWT(c *fiber.Ctx) string {
	token, _ := c.Locals(localsJWT).(string)
	return token
}

// RequireSessionPrincipal parses the caller's claimed session principal
// out of the X-Session-Principal header. The delegation service itself
// verifies this principal is bound to the presented JWT's nonce; this
// middleware only does the textual parse.
func RequireSessionPrincipal(c *fiber.Ctx) error {
	raw := c.Get(headerSessionPrincipal)
	if raw == "" {
		return WriteError(c, apperr.New(apperr.KindValidationError, "missing "+headerSessionPrincipal+" header"))
	}

	principal, err := sspdomain.ParsePrincipalText(raw)
	if err != nil {
		return WriteError(c, err)
	}

	c.Locals(localsSessionPrincipal, principal)

	return c.Next()
}

// SessionPrincipal returns the principal RequireSessionPrincipal parsed
// for this request.
func SessionPrincipal(c *fiber.Ctx) sspdomain.Principal {
	principal, _ := c.Locals(localsSessionPrincipal).(sspdomain.Principal)
	return principal
}

// principalResolver validates a bearer JWT and resolves it to the
// stable principal authorized to act as its holder. Satisfied by
// *delegation.Service; declared locally so this package depends on the
// behavior it needs rather than importing the service package.
type principalResolver interface {
	ResolvePrincipal(ctx context.Context, jwt string) (sspdomain.Principal, error)
}

// RequireUserPrincipal builds middleware for routes that act on a
// specific user's resources (certificates, the user directory record).
// Unlike RequireSessionPrincipal, it never trusts a client-supplied
// principal: it requires a bearer JWT, and resolves the caller's
// principal through resolver, which validates the JWT's signature and
// claims before returning anything. A caller cannot read or write
// another principal's resources by guessing or copying a header value.
func RequireUserPrincipal(resolver principalResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		auth := c.Get(fiber.HeaderAuthorization)

		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token == "" {
			return WriteError(c, apperr.New(apperr.KindInvalidToken, "missing bearer token"))
		}

		principal, err := resolver.ResolvePrincipal(c.Context(), token)
		if err != nil {
			return WriteError(c, err)
		}

		c.Locals(localsCallerPrincipal, principal)

		return c.Next()
	}
}

// CallerPrincipal returns the principal RequireUserPrincipal resolved
// for this request.
func CallerPrincipal(c *fiber.Ctx) sspdomain.Principal {
	principal, _ := c.Locals(localsCallerPrincipal).(sspdomain.Principal)
	return principal
}

// RequireController builds middleware that resolves the caller's
// identity from the X-Controller-Principal header (a stand-in for the
// mTLS-client-certificate-derived identity the production deployment
// would use) and requires it belong to the configured controller set.
func RequireController(access *accesscontrol.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Get(headerControllerPrincipal)
		if raw == "" {
			return WriteError(c, apperr.New(apperr.KindAccessDenied, "missing "+headerControllerPrincipal+" header"))
		}

		principal, err := sspdomain.ParsePrincipalText(raw)
		if err != nil {
			return WriteError(c, err)
		}

		if err := access.AssertController(principal); err != nil {
			return WriteError(c, err)
		}

		c.Locals(localsControllerPrinc, principal)

		return c.Next()
	}
}
