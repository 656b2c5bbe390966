// Package userdirectory owns the one-row-per-principal user directory:
// each user is created exactly once, the first time a principal
// successfully prepares a delegation, and is thereafter looked up by
// principal, by JWT subject, or by the database id its JWT carries — each a
// uniqueness-enforced index over the same underlying record.
package userdirectory

import (
	"context"

	"sspbackend/internal/sspdomain"
	"sspbackend/internal/sspshared/apperr"
	"sspbackend/internal/sspshared/magic"
	"sspbackend/internal/sspshared/store"
)

// Service implements the user directory over the durable store.
type Service struct {
	store store.Store
}

// NewService wires a Service to its store.
func NewService(s store.Store) *Service {
	return &Service{store: s}
}

// GetOrCreateUser returns the existing directory record for principal,
// creating one on first sight with the given dbID — the caller's JWT
// carries the authoritative db_id (the Hasura claims user id), so this
// package never mints one itself. If principal already has a record,
// its stored JWT subject must match jwtSub — a mismatch means the same
// principal was re-derived for two different subjects, which should be
// impossible given how seeds are derived and indicates a deployment
// error, so it is reported rather than silently overwritten.
func (svc *Service) GetOrCreateUser(ctx context.Context, principal sspdomain.Principal, jwtSub string, dbID sspdomain.Uuid) (sspdomain.User, error) {
	existing, found, err := svc.GetByPrincipal(ctx, principal)
	if err != nil {
		return sspdomain.User{}, err
	}

	if found {
		if existing.JWTSub != jwtSub {
			return sspdomain.User{}, apperr.New(apperr.KindConflict, "principal is already bound to a different jwt subject")
		}

		return existing, nil
	}

	if _, found, err := svc.lookupPrincipalBySub(ctx, jwtSub); err != nil {
		return sspdomain.User{}, err
	} else if found {
		return sspdomain.User{}, apperr.New(apperr.KindConflict, "jwt subject is already bound to a different principal")
	}

	if _, found, err := svc.lookupPrincipalByDbID(ctx, dbID); err != nil {
		return sspdomain.User{}, err
	} else if found {
		return sspdomain.User{}, apperr.New(apperr.KindConflict, "generated user db id already in use")
	}

	user, err := sspdomain.NewUser(principal, jwtSub, dbID, sspdomain.Now())
	if err != nil {
		return sspdomain.User{}, err
	}

	blob, err := sspdomain.EncodeUserCBOR(user)
	if err != nil {
		return sspdomain.User{}, err
	}

	if err := svc.store.Put(ctx, magic.MemoryUsers, principal.Bytes(), blob); err != nil {
		return sspdomain.User{}, err
	}

	if err := svc.store.Put(ctx, magic.MemoryUserSubIndex, []byte(jwtSub), principal.Bytes()); err != nil {
		return sspdomain.User{}, err
	}

	if err := svc.store.Put(ctx, magic.MemoryUserDbIDIndex, dbID.Bytes(), principal.Bytes()); err != nil {
		return sspdomain.User{}, err
	}

	return user, nil
}

// GetByPrincipal looks up the user directly owning principal.
func (svc *Service) GetByPrincipal(ctx context.Context, principal sspdomain.Principal) (sspdomain.User, bool, error) {
	blob, found, err := svc.store.Get(ctx, magic.MemoryUsers, principal.Bytes())
	if err != nil {
		return sspdomain.User{}, false, err
	}

	if !found {
		return sspdomain.User{}, false, nil
	}

	user, err := sspdomain.DecodeUserCBOR(blob)
	if err != nil {
		return sspdomain.User{}, false, err
	}

	return user, true, nil
}

// GetBySub looks up the user whose jwt_sub is sub.
func (svc *Service) GetBySub(ctx context.Context, sub string) (sspdomain.User, bool, error) {
	principal, found, err := svc.lookupPrincipalBySub(ctx, sub)
	if err != nil || !found {
		return sspdomain.User{}, found, err
	}

	return svc.GetByPrincipal(ctx, principal)
}

// GetByDbID looks up the user whose database id is dbID.
func (svc *Service) GetByDbID(ctx context.Context, dbID sspdomain.Uuid) (sspdomain.User, bool, error) {
	principal, found, err := svc.lookupPrincipalByDbID(ctx, dbID)
	if err != nil || !found {
		return sspdomain.User{}, found, err
	}

	return svc.GetByPrincipal(ctx, principal)
}

func (svc *Service) lookupPrincipalBySub(ctx context.Context, sub string) (sspdomain.Principal, bool, error) {
	raw, found, err := svc.store.Get(ctx, magic.MemoryUserSubIndex, []byte(sub))
	if err != nil || !found {
		return sspdomain.Principal{}, found, err
	}

	p, err := sspdomain.NewPrincipal(raw)
	if err != nil {
		return sspdomain.Principal{}, false, err
	}

	return p, true, nil
}

func (svc *Service) lookupPrincipalByDbID(ctx context.Context, dbID sspdomain.Uuid) (sspdomain.Principal, bool, error) {
	raw, found, err := svc.store.Get(ctx, magic.MemoryUserDbIDIndex, dbID.Bytes())
	if err != nil || !found {
		return sspdomain.Principal{}, found, err
	}

	p, err := sspdomain.NewPrincipal(raw)
	if err != nil {
		return sspdomain.Principal{}, false, err
	}

	return p, true, nil
}
