// Package accesscontrol implements the three principal classes this
// service recognizes — controllers (operators, authenticated out of
// band), the backend (a single configured service principal allowed to
// act on behalf of any user), and ordinary users (who may only act on
// their own resources) — and the checks every handler calls before
// touching a resource.
package accesscontrol

import (
	"context"

	"sspbackend/internal/sspdomain"
	"sspbackend/internal/sspshared/apperr"
	"sspbackend/internal/sspshared/magic"
	"sspbackend/internal/sspshared/store"
)

const configBackendPrincipalKey = "backend_principal"

// Service implements controller/backend/user authorization checks.
// Controller identities are a fixed, configured set (mTLS certificate
// or static token, resolved upstream of this package); the backend
// principal is a single runtime value read from the config segment.
type Service struct {
	store       store.Store
	controllers map[string]struct{}
}

// NewService wires a Service to its store and the fixed set of
// controller principals resolved from deployment configuration.
func NewService(s store.Store, controllerPrincipals []sspdomain.Principal) *Service {
	controllers := make(map[string]struct{}, len(controllerPrincipals))
	for _, p := range controllerPrincipals {
		controllers[p.String()] = struct{}{}
	}

	return &Service{store: s, controllers: controllers}
}

// IsController reports whether principal belongs to the fixed
// controller set.
func (svc *Service) IsController(principal sspdomain.Principal) bool {
	_, ok := svc.controllers[principal.String()]
	return ok
}

// AssertController returns an AccessDenied error unless principal is a
// controller.
func (svc *Service) AssertController(principal sspdomain.Principal) error {
	if !svc.IsController(principal) {
		return apperr.New(apperr.KindAccessDenied, "caller is not a controller")
	}

	return nil
}

// SetBackendPrincipal records the backend principal. It traps (returns
// a Conflict error) if a backend principal has already been set:
// ssp-backend deliberately never lets an operator silently repoint
// "the backend" onto a different identity once live traffic may depend
// on the old one.
func (svc *Service) SetBackendPrincipal(ctx context.Context, principal sspdomain.Principal) error {
	_, found, err := svc.GetBackendPrincipal(ctx)
	if err != nil {
		return err
	}

	if found {
		return apperr.New(apperr.KindConflict, "backend principal is already set; it cannot be changed once configured")
	}

	return svc.store.Put(ctx, magic.MemoryConfig, []byte(configBackendPrincipalKey), principal.Bytes())
}

// GetBackendPrincipal returns the configured backend principal, if any.
func (svc *Service) GetBackendPrincipal(ctx context.Context) (sspdomain.Principal, bool, error) {
	raw, found, err := svc.store.Get(ctx, magic.MemoryConfig, []byte(configBackendPrincipalKey))
	if err != nil || !found {
		return sspdomain.Principal{}, found, err
	}

	p, err := sspdomain.NewPrincipal(raw)
	if err != nil {
		return sspdomain.Principal{}, false, err
	}

	return p, true, nil
}

// IsBackend reports whether principal is the configured backend
// principal.
func (svc *Service) IsBackend(ctx context.Context, principal sspdomain.Principal) (bool, error) {
	backend, found, err := svc.GetBackendPrincipal(ctx)
	if err != nil {
		return false, err
	}

	return found && backend.Equal(principal), nil
}

// AssertUserOrBackend returns an AccessDenied error unless caller is
// either resourceOwner itself, or the configured backend principal
// acting on resourceOwner's behalf.
func (svc *Service) AssertUserOrBackend(ctx context.Context, caller sspdomain.Principal, resourceOwner sspdomain.Principal) error {
	if caller.Equal(resourceOwner) {
		return nil
	}

	isBackend, err := svc.IsBackend(ctx, caller)
	if err != nil {
		return err
	}

	if isBackend {
		return nil
	}

	return apperr.New(apperr.KindAccessDenied, "caller may only access its own resources")
}
