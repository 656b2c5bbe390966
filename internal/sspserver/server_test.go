package sspserver_test

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"sspbackend/internal/sspapi"
	"sspbackend/internal/sspauth/jwksfetcher"
	"sspbackend/internal/sspcrypto/cansig"
	"sspbackend/internal/sspcrypto/hashtree"
	"sspbackend/internal/sspcrypto/platformcert"
	"sspbackend/internal/sspdomain"
	"sspbackend/internal/sspserver"
	"sspbackend/internal/sspserver/handlers"
	"sspbackend/internal/sspservice/accesscontrol"
	"sspbackend/internal/sspservice/certificate"
	"sspbackend/internal/sspservice/delegation"
	"sspbackend/internal/sspservice/userdirectory"
	"sspbackend/internal/sspshared/store"
)

// fakeDecoder ignores the raw token text and always returns whatever
// claims are currently set, so a test can simulate a different caller
// presenting a different JWT just by mutating claims before the
// request — every request in these tests carries the literal bearer
// text "irrelevant-jwt-text".
type fakeDecoder struct {
	claims sspdomain.JWTClaims
}

func (f *fakeDecoder) Decode(_ string) (sspdomain.JWTClaims, error) {
	return f.claims, nil
}

type testUser struct {
	sessionKey []byte
	principal  sspdomain.Principal
	sub        string
	dbID       sspdomain.Uuid
	claims     sspdomain.JWTClaims
}

func newTestUser(t *testing.T, sub string, sessionKeyByte byte) testUser {
	t.Helper()

	sessionKey := []byte{sessionKeyByte, 0x02, 0x03, 0x04, 0x05}

	sessionPrincipal, err := sspdomain.NewPrincipal(cansig.SelfAuthenticatingPrincipal(sessionKey))
	require.NoError(t, err)

	dbID, err := sspdomain.NewUuid()
	require.NoError(t, err)

	claims := sspdomain.JWTClaims{
		Iss:          "https://issuer.example.test/",
		Aud:          "ssp-backend",
		Sub:          sub,
		Nonce:        hex.EncodeToString(sessionKey),
		HasuraClaims: &sspdomain.HasuraJWTClaims{XHasuraUserID: dbID.String()},
	}

	return testUser{sessionKey: sessionKey, principal: sessionPrincipal, sub: sub, dbID: dbID, claims: claims}
}

type testApp struct {
	handlers *handlers.Handlers
	app      *fiber.App
	decoder  *fakeDecoder
	access   *accesscontrol.Service
	users    *userdirectory.Service
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	st := store.NewGormStore(db)
	require.NoError(t, st.AutoMigrate())

	decoder := &fakeDecoder{}

	users := userdirectory.NewService(st)
	signatureMap := hashtree.NewSignatureMap()
	delegationSvc := delegation.NewService(decoder, signatureMap, users, st, []byte{0xaa, 0xbb})

	jwksSvc := jwksfetcher.NewService(st, http.DefaultClient, "https://issuer.example.test/.well-known/jwks.json")

	access := accesscontrol.NewService(st, nil)

	certSigner, err := platformcert.NewSigner()
	require.NoError(t, err)

	certSvc := certificate.NewService(st, certSigner)

	h := &handlers.Handlers{
		Delegation:  delegationSvc,
		JWKS:        jwksSvc,
		Access:      access,
		Users:       users,
		Certificate: certSvc,
		Signer:      certSigner,
	}

	return &testApp{handlers: h, app: sspserver.New(h), decoder: decoder, access: access, users: users}
}

// prepareDelegation drives POST /v1/delegations as u, so a user
// directory record exists for u's subject claim — the precondition
// every bearer-authenticated route relies on to resolve a caller.
func (ta *testApp) prepareDelegation(t *testing.T, u testUser) {
	t.Helper()

	ta.decoder.claims = u.claims

	body, err := json.Marshal(sspapi.PrepareDelegationRequest{SessionPrincipal: u.principal.String()})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/delegations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer irrelevant-jwt-text")
	req.Header.Set("X-Session-Principal", u.principal.String())

	resp, err := ta.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

// asUser points the fake decoder at u's claims, so the next request's
// Authorization bearer resolves to u through RequireUserPrincipal.
func (ta *testApp) asUser(u testUser) {
	ta.decoder.claims = u.claims
}

func bearerRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Authorization", "Bearer irrelevant-jwt-text")
	return req
}

func TestHealth(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	resp, err := ta.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPrepareDelegation_ThenGetMyUser(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)
	alice := newTestUser(t, "auth0|alice", 0x01)

	ta.prepareDelegation(t, alice)
	ta.asUser(alice)

	meReq := bearerRequest(http.MethodGet, "/v1/me", nil)

	meResp, err := ta.app.Test(meReq)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, meResp.StatusCode)

	var meBody sspapi.MeResponse
	require.NoError(t, json.NewDecoder(meResp.Body).Decode(&meBody))
	require.Equal(t, alice.principal.String(), meBody.Principal)
}

func TestGetMyUser_RejectsMissingBearerToken(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)

	resp, err := ta.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPrepareDelegation_MissingBearerToken(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)
	alice := newTestUser(t, "auth0|alice", 0x01)
	ta.decoder.claims = alice.claims

	body, err := json.Marshal(sspapi.PrepareDelegationRequest{SessionPrincipal: alice.principal.String()})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/delegations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := ta.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminRoutes_RequireControllerHeader(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/config", nil)

	resp, err := ta.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCreateCertificate_ThenGetIt(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)
	alice := newTestUser(t, "auth0|alice", 0x01)

	ta.prepareDelegation(t, alice)
	ta.asUser(alice)

	createReq := sspapi.CreateCertificateRequest{
		Content: sspapi.CertificateContentRequest{
			Name:           "10k race",
			SportCategory:  "running",
			FileURI:        "https://example.com/cert.pdf",
			IssuerFullName: "Jane Official",
			IssuerClubName: "Example Running Club",
		},
	}

	body, err := json.Marshal(createReq)
	require.NoError(t, err)

	req := bearerRequest(http.MethodPost, "/v1/certificates", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := ta.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var createResp sspapi.CreateCertificateResponse

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(respBody, &createResp))
	require.NotEmpty(t, createResp.ID)

	getReq := bearerRequest(http.MethodGet, "/v1/certificates/"+createResp.ID, nil)

	getResp, err := ta.app.Test(getReq)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getResp.StatusCode)
}

func TestCreateCertificate_OrdinaryUserCannotSetManagedUserID(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)
	alice := newTestUser(t, "auth0|alice", 0x01)
	bob := newTestUser(t, "auth0|bob", 0x06)

	ta.prepareDelegation(t, alice)
	ta.prepareDelegation(t, bob)
	ta.asUser(alice)

	createReq := sspapi.CreateCertificateRequest{
		Content: sspapi.CertificateContentRequest{
			Name:           "10k race",
			SportCategory:  "running",
			FileURI:        "https://example.com/cert.pdf",
			IssuerFullName: "Jane Official",
			IssuerClubName: "Example Running Club",
		},
		ManagedUserID: bob.dbID.String(),
	}

	body, err := json.Marshal(createReq)
	require.NoError(t, err)

	req := bearerRequest(http.MethodPost, "/v1/certificates", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := ta.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCreateCertificate_BackendCreatesOnBehalfOfUserDbID(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)
	backend := newTestUser(t, "auth0|backend-svc", 0x02)
	bob := newTestUser(t, "auth0|bob", 0x06)

	ta.prepareDelegation(t, backend)
	ta.prepareDelegation(t, bob)

	backendUser, found, err := ta.users.GetBySub(context.Background(), backend.sub)
	require.NoError(t, err)
	require.True(t, found)
	require.NoError(t, ta.access.SetBackendPrincipal(context.Background(), backendUser.Principal))

	ta.asUser(backend)

	createReq := sspapi.CreateCertificateRequest{
		Content: sspapi.CertificateContentRequest{
			Name:           "10k race",
			SportCategory:  "running",
			FileURI:        "https://example.com/cert.pdf",
			IssuerFullName: "Jane Official",
			IssuerClubName: "Example Running Club",
		},
		UserDbID: bob.dbID.String(),
	}

	body, err := json.Marshal(createReq)
	require.NoError(t, err)

	req := bearerRequest(http.MethodPost, "/v1/certificates", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := ta.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var createResp sspapi.CreateCertificateResponse

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(respBody, &createResp))

	ta.asUser(bob)

	getReq := bearerRequest(http.MethodGet, "/v1/certificates/"+createResp.ID, nil)

	getResp, err := ta.app.Test(getReq)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getResp.StatusCode, "bob owns the certificate the backend created on his behalf")
}

func TestGetUserCertificates_FallsBackToManagedWhenNoOwnCertificates(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)
	backend := newTestUser(t, "auth0|backend-svc", 0x02)
	charlie := newTestUser(t, "auth0|charlie", 0x03)
	bob := newTestUser(t, "auth0|bob", 0x06)

	ta.prepareDelegation(t, backend)
	ta.prepareDelegation(t, charlie)
	ta.prepareDelegation(t, bob)

	backendUser, found, err := ta.users.GetBySub(context.Background(), backend.sub)
	require.NoError(t, err)
	require.True(t, found)
	require.NoError(t, ta.access.SetBackendPrincipal(context.Background(), backendUser.Principal))

	ta.asUser(backend)

	// owned by charlie, but issued "for" bob — the managed-id index is
	// keyed on bob even though the certificate's own-principal index is
	// keyed on charlie, exercising the two indices independently.
	createReq := sspapi.CreateCertificateRequest{
		Content: sspapi.CertificateContentRequest{
			Name:           "10k race",
			SportCategory:  "running",
			FileURI:        "https://example.com/cert.pdf",
			IssuerFullName: "Jane Official",
			IssuerClubName: "Example Running Club",
		},
		UserDbID:      charlie.dbID.String(),
		ManagedUserID: bob.dbID.String(),
	}

	body, err := json.Marshal(createReq)
	require.NoError(t, err)

	createHTTPReq := bearerRequest(http.MethodPost, "/v1/certificates", bytes.NewReader(body))
	createHTTPReq.Header.Set("Content-Type", "application/json")

	createResp, err := ta.app.Test(createHTTPReq)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, createResp.StatusCode)

	// backend still looking for bob's certificates: bob owns none
	// directly, so the search must fall back to the managed-id index.
	listReq := bearerRequest(http.MethodGet, "/v1/certificates?user_db_id="+bob.dbID.String(), nil)

	listResp, err := ta.app.Test(listReq)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, listResp.StatusCode)

	var listBody sspapi.CertificateListResponse
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&listBody))
	require.Len(t, listBody.IDs, 1, "bob's own-principal search is empty, so it must fall back to the managed-id search")
}

func TestGetUserCertificates_RejectsExactlyOneSelectorViolation(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)
	alice := newTestUser(t, "auth0|alice", 0x01)

	ta.prepareDelegation(t, alice)
	ta.asUser(alice)

	req := bearerRequest(http.MethodGet, "/v1/certificates", nil)

	resp, err := ta.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetUserCertificates_OrdinaryCallerCannotReadAnotherUser(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)
	alice := newTestUser(t, "auth0|alice", 0x01)
	bob := newTestUser(t, "auth0|bob", 0x06)

	ta.prepareDelegation(t, alice)
	ta.prepareDelegation(t, bob)
	ta.asUser(alice)

	req := bearerRequest(http.MethodGet, "/v1/certificates?user_principal="+bob.principal.String(), nil)

	resp, err := ta.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}
