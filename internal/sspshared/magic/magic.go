// Package magic collects the named constants shared across ssp-backend
// packages: memory segment ids, hash-tree labels, path prefixes, and size
// bounds. Centralizing them here keeps the stable-storage layout and the
// labeled hash tree contract from drifting out from under the packages
// that depend on them.
package magic

import "time"

// Stable store memory segment ids. These are part of the external
// contract: a new process must rehydrate every segment without
// renumbering, or every upgrade since the contract was frozen breaks.
const (
	MemorySalt               = 0
	MemoryUsers              = 1
	MemoryUserSubIndex       = 2
	MemoryUserDbIDIndex      = 3
	MemoryConfig             = 4
	MemoryCertificates       = 5
	MemoryCertByUserIndex    = 6
	MemoryCertByManagedIndex = 7
	MemoryAuditLog           = 8
)

// Labeled hash tree domain separators.
const (
	LabelSig             = "sig"
	LabelSSPCertificates = "ssp_certificates"
)

// Field and wire-format size bounds enforced at the domain layer.
const (
	SaltSize               = 32
	UUIDSize               = 16
	PrincipalMaxBytes      = 29
	MaxSubjectBytes        = 255
	DateTimeWireLen        = 25
	DateTimeMaxYear        = 9999
	MaxNameChars           = 100
	MaxSportCategoryChars  = 80
	MaxNotesChars          = 500
	MaxFileURIBytes        = 1536 * 1024 // 1.5 MiB
	MaxExternalIDChars     = 100
	MaxIssuerFullNameChars = 100
	MaxIssuerClubNameChars = 100
)

// JWT validation tolerances.
const (
	IatFreshnessWindow = 10 * time.Minute
)

// JWKSRefreshInterval is the background refresh cadence for the cached
// JWK set.
const JWKSRefreshInterval = time.Hour

// DelegationSigValidity bounds how long a recorded signature witness is
// kept before it is pruned from the signature map.
const DelegationSigValidity = 30 * 24 * time.Hour

// HTTP route paths.
const (
	PathDelegations        = "/v1/delegations"
	PathAdminJWKSSync      = "/v1/admin/jwks/sync"
	PathAdminJWKS          = "/v1/admin/jwks"
	PathAdminConfigBackend = "/v1/admin/config/backend-principal"
	PathAdminConfig        = "/v1/admin/config"
	PathMe                 = "/v1/me"
	PathCertificates       = "/v1/certificates"
	PathCertificateByID    = "/v1/certificates/:id"
	PathHealth             = "/healthz"
)

// ExpectedJWTAlgorithm is deliberately a compile-time constant of the
// deployment rather than runtime configuration: accepting an
// attacker-chosen algorithm from a config value would reopen the
// classic "alg confusion" hole this package exists to close.
const ExpectedJWTAlgorithm = "RS256"
