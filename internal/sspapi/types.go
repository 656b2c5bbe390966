// Package sspapi defines the HTTP request/response wire types for
// every route in sspserver, plus the conversions between them and the
// sspdomain/service-layer values the handlers actually operate on.
// There is no upstream OpenAPI document for this domain, so these are
// hand-written rather than generated, but follow the same
// generated-types-plus-handwritten-impl split the rest of the stack
// uses elsewhere.
package sspapi

import (
	"encoding/base64"
	"time"

	"sspbackend/internal/sspcrypto/hashtree"
	"sspbackend/internal/sspdomain"
	"sspbackend/internal/sspservice/certificate"
	"sspbackend/internal/sspservice/delegation"
)

// ErrorResponse is the body returned for every non-2xx response.
type ErrorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// PrepareDelegationRequest is the body of POST /v1/delegations.
// The bearer JWT itself travels in the Authorization header, not here.
type PrepareDelegationRequest struct {
	SessionPrincipal string `json:"session_principal"`
}

// PrepareDelegationResponse is the body of POST /v1/delegations.
type PrepareDelegationResponse struct {
	UserKey    string `json:"user_key"`
	Expiration string `json:"expiration"`
}

// NewPrepareDelegationResponse converts a service-layer result to wire.
func NewPrepareDelegationResponse(p delegation.PreparedDelegation) PrepareDelegationResponse {
	return PrepareDelegationResponse{
		UserKey:    base64.StdEncoding.EncodeToString(p.UserKey),
		Expiration: p.Expiration.UTC().Format(time.RFC3339Nano),
	}
}

// SignedDelegationResponse is the body of GET /v1/delegations.
type SignedDelegationResponse struct {
	Pubkey     string `json:"pubkey"`
	Expiration string `json:"expiration"`
	Witness    string `json:"witness"`
}

// NewSignedDelegationResponse converts a service-layer result to wire,
// encoding the inclusion witness the same way the IC's own
// certified_data witness is delivered: CBOR-like nested node structure,
// base64-wrapped for JSON transport.
func NewSignedDelegationResponse(d delegation.SignedDelegation) (SignedDelegationResponse, error) {
	witnessBytes, err := hashtree.EncodeWitness(d.Witness)
	if err != nil {
		return SignedDelegationResponse{}, err
	}

	return SignedDelegationResponse{
		Pubkey:     base64.StdEncoding.EncodeToString(d.Pubkey),
		Expiration: d.Expiration.UTC().Format(time.RFC3339Nano),
		Witness:    base64.StdEncoding.EncodeToString(witnessBytes),
	}, nil
}

// Delegation status tags distinguish a signed delegation from a
// lookup miss, so a missing signature travels as an ordinary result
// variant rather than an HTTP error the caller must treat as a fault.
const (
	DelegationStatusSigned           = "signed_delegation"
	DelegationStatusNoSuchDelegation = "no_such_delegation"
)

// GetDelegationResponse is the body of GET /v1/delegations: exactly
// one of Delegation or Status == DelegationStatusNoSuchDelegation.
type GetDelegationResponse struct {
	Status     string                    `json:"status"`
	Delegation *SignedDelegationResponse `json:"delegation,omitempty"`
}

// JWKSResponse mirrors sspdomain.Auth0JWKSet for PUT/GET /v1/admin/jwks.
type JWKSResponse = sspdomain.Auth0JWKSet

// SetBackendPrincipalRequest is the body of PUT /v1/admin/config/backend-principal.
type SetBackendPrincipalRequest struct {
	Principal string `json:"principal"`
}

// ConfigResponse is the body of GET /v1/admin/config.
type ConfigResponse struct {
	BackendPrincipal string `json:"backend_principal,omitempty"`
}

// NewConfigResponse converts the optional backend principal to wire.
func NewConfigResponse(principal sspdomain.Principal, found bool) ConfigResponse {
	if !found {
		return ConfigResponse{}
	}

	return ConfigResponse{BackendPrincipal: principal.String()}
}

// MeResponse is the body of GET /v1/me.
type MeResponse struct {
	Principal string `json:"principal"`
	DbID      string `json:"db_id"`
	Sub       string `json:"sub"`
	CreatedAt string `json:"created_at"`
}

// NewMeResponse converts a sspdomain.User to wire.
func NewMeResponse(u sspdomain.User) MeResponse {
	return MeResponse{
		Principal: u.Principal.String(),
		DbID:      u.DbID.String(),
		Sub:       u.JWTSub,
		CreatedAt: u.CreatedAt.String(),
	}
}

// CertificateContentRequest is the user-supplied certificate payload.
type CertificateContentRequest struct {
	Name           string `json:"name"`
	SportCategory  string `json:"sport_category"`
	Notes          string `json:"notes,omitempty"`
	FileURI        string `json:"file_uri"`
	ExternalID     string `json:"external_id,omitempty"`
	IssuerFullName string `json:"issuer_full_name"`
	IssuerClubName string `json:"issuer_club_name"`
}

// ToDomain converts the wire content into sspdomain.CertificateContent,
// stamping IssuedAt with the current time.
func (r CertificateContentRequest) ToDomain() sspdomain.CertificateContent {
	return sspdomain.CertificateContent{
		Name:           r.Name,
		SportCategory:  r.SportCategory,
		Notes:          r.Notes,
		FileURI:        r.FileURI,
		ExternalID:     r.ExternalID,
		IssuerFullName: r.IssuerFullName,
		IssuerClubName: r.IssuerClubName,
		IssuedAt:       sspdomain.Now(),
	}
}

// CreateCertificateRequest is the body of POST /v1/certificates.
// UserDbID selects the certificate's owner by database id; it is
// required when the caller is the backend principal (which has no
// owning principal of its own) and ignored otherwise, since an
// ordinary user may only ever create a certificate for themselves.
type CreateCertificateRequest struct {
	Content       CertificateContentRequest `json:"content"`
	UserDbID      string                    `json:"user_db_id,omitempty"`
	ManagedUserID string                    `json:"managed_user_id,omitempty"`
}

// CreateCertificateResponse is the body of POST /v1/certificates.
type CreateCertificateResponse struct {
	ID string `json:"id"`
}

// CertificateListResponse is the body of GET /v1/certificates.
type CertificateListResponse struct {
	IDs []string `json:"ids"`
}

// CertificateResponse is the body of GET /v1/certificates/{id}.
type CertificateResponse struct {
	ID             string                    `json:"id"`
	UserPrincipal  string                    `json:"user_principal"`
	CreatedAt      string                    `json:"created_at"`
	Content        CertificateContentRequest `json:"content"`
	ManagedUserID  string                    `json:"managed_user_id,omitempty"`
	Witness        string                    `json:"witness"`
	PlatformSig    string                    `json:"platform_signature"`
	PlatformPubkey string                    `json:"platform_pubkey"`
}

// NewCertificateResponse converts a certified certificate plus its id
// and platform public key into wire form.
func NewCertificateResponse(id sspdomain.Uuid, cc certificate.CertifiedCertificate, platformPubkey []byte) (CertificateResponse, error) {
	witnessBytes, err := hashtree.EncodeWitness(cc.Witness)
	if err != nil {
		return CertificateResponse{}, err
	}

	return CertificateResponse{
		ID:            id.String(),
		UserPrincipal: base64.StdEncoding.EncodeToString(cc.Certificate.UserPrincipal),
		CreatedAt:     cc.Certificate.CreatedAt,
		Content: CertificateContentRequest{
			Name:           cc.Certificate.Content.Name,
			SportCategory:  cc.Certificate.Content.SportCategory,
			Notes:          cc.Certificate.Content.Notes,
			FileURI:        cc.Certificate.Content.FileURI,
			ExternalID:     cc.Certificate.Content.ExternalID,
			IssuerFullName: cc.Certificate.Content.IssuerFullName,
			IssuerClubName: cc.Certificate.Content.IssuerClubName,
		},
		ManagedUserID:  cc.Certificate.ManagedUserID,
		Witness:        base64.StdEncoding.EncodeToString(witnessBytes),
		PlatformSig:    base64.StdEncoding.EncodeToString(cc.PlatformSig.Signature),
		PlatformPubkey: base64.StdEncoding.EncodeToString(platformPubkey),
	}, nil
}
