// Package delegation orchestrates ssp-backend's core protocol: turning
// a validated JWT into a canister-signature-style delegation binding a
// caller-supplied session key to a derived, stable user principal.
package delegation

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"sspbackend/internal/sspcrypto/cansig"
	"sspbackend/internal/sspcrypto/hashtree"
	"sspbackend/internal/sspdomain"
	"sspbackend/internal/sspservice/userdirectory"
	"sspbackend/internal/sspshared/apperr"
	"sspbackend/internal/sspshared/magic"
	"sspbackend/internal/sspshared/store"
)

// Decoder is the subset of jwtdecoder.Decoder this package depends on.
type Decoder interface {
	Decode(tokenString string) (sspdomain.JWTClaims, error)
}

// Service ties together JWT validation, seed derivation, the
// in-memory signature map, and the user directory.
type Service struct {
	decoder        Decoder
	signer         *hashtree.SignatureMap
	users          *userdirectory.Service
	store          store.Store
	selfCanisterID []byte
	now            func() time.Time

	saltMu sync.Mutex
}

// NewService wires a Service. selfCanisterID is the fixed identifier
// this deployment embeds in every derived canister-signature public
// key; it never changes for the lifetime of a deployment.
func NewService(decoder Decoder, signer *hashtree.SignatureMap, users *userdirectory.Service, st store.Store, selfCanisterID []byte) *Service {
	return &Service{decoder: decoder, signer: signer, users: users, store: st, selfCanisterID: selfCanisterID, now: time.Now}
}

// PreparedDelegation is the result of PrepareDelegation.
type PreparedDelegation struct {
	UserKey    []byte
	Expiration time.Time
}

// SignedDelegation is the result of GetDelegation.
type SignedDelegation struct {
	Pubkey     []byte
	Expiration time.Time
	Witness    *hashtree.Node
}

// PrepareDelegation validates jwt, binds it to sessionPrincipal via the
// nonce-derived self-authenticating principal, registers a signature
// over the resulting delegation message, and ensures a user directory
// record exists for the derived user principal.
func (svc *Service) PrepareDelegation(ctx context.Context, sessionPrincipal sspdomain.Principal, jwt string) (PreparedDelegation, error) {
	claims, sessionKey, err := svc.validateAndBindSession(ctx, sessionPrincipal, jwt)
	if err != nil {
		return PreparedDelegation{}, err
	}

	dbID, err := requireHasuraDbID(claims)
	if err != nil {
		return PreparedDelegation{}, err
	}

	salt, err := svc.ensureSalt(ctx)
	if err != nil {
		return PreparedDelegation{}, err
	}

	seed, err := cansig.DeriveSeed(salt, claims.Sub)
	if err != nil {
		return PreparedDelegation{}, err
	}

	expiration := svc.now().Add(magic.DelegationSigValidity)

	msgHash := cansig.DeriveMessageHash(cansig.NewDelegationPayload(sessionKey, uint64(expiration.UnixNano())))
	svc.signer.Add(seed, msgHash, expiration)

	userKey, err := cansig.EncodeCanisterSigPublicKeyDER(svc.selfCanisterID, seed)
	if err != nil {
		return PreparedDelegation{}, err
	}

	userPrincipal, err := sspdomain.NewPrincipal(cansig.SelfAuthenticatingPrincipal(userKey))
	if err != nil {
		return PreparedDelegation{}, err
	}

	if _, err := svc.users.GetOrCreateUser(ctx, userPrincipal, claims.Sub, dbID); err != nil {
		return PreparedDelegation{}, err
	}

	return PreparedDelegation{UserKey: userKey, Expiration: expiration}, nil
}

// GetDelegation re-validates jwt's session binding and returns the
// previously recorded signature witness for (seed, msg_hash) computed
// from the same jwt and the caller-supplied expiration. expiration is
// an opaque selector, not re-checked against the token's own exp
// claim: a mismatched expiration simply fails to find an entry.
//
// A signature lookup miss is not an error: it is a distinct, expected
// result variant (the found return is false), the same way the
// platform's own get_delegation distinguishes SignedDelegation from
// NoSuchDelegation rather than trapping on the latter.
func (svc *Service) GetDelegation(ctx context.Context, sessionPrincipal sspdomain.Principal, jwt string, expiration time.Time) (SignedDelegation, bool, error) {
	claims, sessionKey, err := svc.validateAndBindSession(ctx, sessionPrincipal, jwt)
	if err != nil {
		return SignedDelegation{}, false, err
	}

	salt, found, err := svc.loadSalt(ctx)
	if err != nil {
		return SignedDelegation{}, false, err
	}

	if !found {
		return SignedDelegation{}, false, nil
	}

	seed, err := cansig.DeriveSeed(salt, claims.Sub)
	if err != nil {
		return SignedDelegation{}, false, err
	}

	msgHash := cansig.DeriveMessageHash(cansig.NewDelegationPayload(sessionKey, uint64(expiration.UnixNano())))

	if !svc.signer.Has(seed, msgHash) {
		return SignedDelegation{}, false, nil
	}

	witness, ok := svc.signer.Witness(seed)
	if !ok {
		return SignedDelegation{}, false, nil
	}

	return SignedDelegation{Pubkey: sessionKey, Expiration: expiration, Witness: witness}, true, nil
}

// ResolvePrincipal validates jwt and returns the stable user principal
// bound to its subject claim. This is the real cryptographic binding
// every route touching a specific user's resources authenticates
// with: the caller proves possession of a JWT whose signature and
// claims this process already verifies, rather than asserting an
// unverified principal over a header. It requires that subject to
// have already completed PrepareDelegation at least once; there is no
// other path that creates a user directory record.
func (svc *Service) ResolvePrincipal(ctx context.Context, jwt string) (sspdomain.Principal, error) {
	claims, err := svc.decoder.Decode(jwt)
	if err != nil {
		return sspdomain.Principal{}, err
	}

	user, found, err := svc.users.GetBySub(ctx, claims.Sub)
	if err != nil {
		return sspdomain.Principal{}, err
	}

	if !found {
		return sspdomain.Principal{}, apperr.New(apperr.KindAccessDenied, "no user directory record for this token's subject; prepare a delegation first")
	}

	return user.Principal, nil
}

// validateAndBindSession decodes jwt, derives the token-bound principal
// from its hex-encoded nonce (which carries the caller's session
// public key), and requires it match sessionPrincipal — proof that the
// presented session key is the one the token's issuer was told about.
func (svc *Service) validateAndBindSession(_ context.Context, sessionPrincipal sspdomain.Principal, jwt string) (sspdomain.JWTClaims, []byte, error) {
	claims, err := svc.decoder.Decode(jwt)
	if err != nil {
		return sspdomain.JWTClaims{}, nil, err
	}

	sessionKey, err := hex.DecodeString(claims.Nonce)
	if err != nil {
		return sspdomain.JWTClaims{}, nil, apperr.Wrap(apperr.KindNonceMismatch, "token nonce is not valid hex", err)
	}

	tokenPrincipal, err := sspdomain.NewPrincipal(cansig.SelfAuthenticatingPrincipal(sessionKey))
	if err != nil {
		return sspdomain.JWTClaims{}, nil, err
	}

	if !sessionPrincipal.Equal(tokenPrincipal) {
		return sspdomain.JWTClaims{}, nil, apperr.New(apperr.KindNonceMismatch, "session principal does not match the token's bound nonce")
	}

	return claims, sessionKey, nil
}

func requireHasuraDbID(claims sspdomain.JWTClaims) (sspdomain.Uuid, error) {
	if claims.HasuraClaims == nil || claims.HasuraClaims.XHasuraUserID == "" {
		return sspdomain.Uuid{}, apperr.New(apperr.KindValidationError, "token is missing hasura user id claim")
	}

	dbID, err := sspdomain.ParseUuid(claims.HasuraClaims.XHasuraUserID)
	if err != nil {
		return sspdomain.Uuid{}, apperr.Wrap(apperr.KindValidationError, "hasura user id claim is not a valid uuid", err)
	}

	return dbID, nil
}

// ensureSalt returns the process-wide salt, generating and persisting
// one on first use. Concurrent first-use callers are serialized by
// saltMu so they observe the same value rather than racing two
// independent draws.
func (svc *Service) ensureSalt(ctx context.Context) (sspdomain.Salt, error) {
	svc.saltMu.Lock()
	defer svc.saltMu.Unlock()

	salt, found, err := svc.loadSalt(ctx)
	if err != nil {
		return sspdomain.Salt{}, err
	}

	if found {
		return salt, nil
	}

	newSalt, err := sspdomain.NewSalt()
	if err != nil {
		return sspdomain.Salt{}, err
	}

	if err := svc.store.Put(ctx, magic.MemorySalt, []byte{}, newSalt[:]); err != nil {
		return sspdomain.Salt{}, err
	}

	return newSalt, nil
}

func (svc *Service) loadSalt(ctx context.Context) (sspdomain.Salt, bool, error) {
	raw, found, err := svc.store.Get(ctx, magic.MemorySalt, []byte{})
	if err != nil || !found {
		return sspdomain.Salt{}, found, err
	}

	salt, err := sspdomain.SaltFromBytes(raw)
	if err != nil {
		return sspdomain.Salt{}, false, err
	}

	return salt, true, nil
}
