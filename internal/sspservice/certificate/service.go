package certificate

import (
	"context"
	"sync/atomic"
	"time"

	"sspbackend/internal/sspcrypto/hashtree"
	"sspbackend/internal/sspcrypto/platformcert"
	"sspbackend/internal/sspdomain"
	"sspbackend/internal/sspshared/apperr"
	"sspbackend/internal/sspshared/magic"
	"sspbackend/internal/sspshared/store"
)

const leafDomainSep = "cert-leaf"

// Service implements certificate creation and certified retrieval: it
// owns the durable store segments for certificates and their indices,
// the in-memory registry that answers Root/Witness queries, and the
// platform signer that turns a registry root into a verifiable
// certificate.
type Service struct {
	store    store.Store
	registry *Registry
	signer   *platformcert.Signer
	auditSeq atomic.Uint64
}

// NewService wires a Service to its store and signer. Callers should
// invoke CertifyAll once at startup to rehydrate the in-memory registry
// from whatever certificates the store already holds.
func NewService(s store.Store, signer *platformcert.Signer) *Service {
	return &Service{store: s, registry: NewRegistry(), signer: signer}
}

// CreateCertificate validates content, mints a new certificate id,
// persists the certificate and its indices, and folds its leaf hash
// into the in-memory registry.
func (svc *Service) CreateCertificate(
	ctx context.Context,
	callerPrincipal sspdomain.Principal,
	content sspdomain.CertificateContent,
	managedUserID *sspdomain.Uuid,
) (sspdomain.Uuid, error) {
	certID, err := sspdomain.NewUuid()
	if err != nil {
		return sspdomain.Uuid{}, err
	}

	cert, err := sspdomain.NewCertificate(callerPrincipal, sspdomain.Now(), content, managedUserID)
	if err != nil {
		return sspdomain.Uuid{}, err
	}

	blob, err := sspdomain.EncodeCertificateCBOR(cert)
	if err != nil {
		return sspdomain.Uuid{}, err
	}

	if err := svc.store.Put(ctx, magic.MemoryCertificates, certID.Bytes(), blob); err != nil {
		return sspdomain.Uuid{}, err
	}

	userIndexKey := store.EncodeCompositeKey(callerPrincipal.Bytes(), certID.Bytes())
	if err := svc.store.Put(ctx, magic.MemoryCertByUserIndex, userIndexKey, certID.Bytes()); err != nil {
		return sspdomain.Uuid{}, err
	}

	if managedUserID != nil {
		managedIndexKey := store.EncodeCompositeKey(managedUserID.Bytes(), certID.Bytes())
		if err := svc.store.Put(ctx, magic.MemoryCertByManagedIndex, managedIndexKey, certID.Bytes()); err != nil {
			return sspdomain.Uuid{}, err
		}
	}

	leafHash := hashtree.LeafHash(leafDomainSep, blob)
	svc.registry.Insert(callerPrincipal.Bytes(), certID.Bytes(), leafHash)

	svc.recordAudit(ctx, "certificate.created", "certificate", certID.String(), callerPrincipal.String())

	return certID, nil
}

// CertifiedCertificate bundles a stored certificate with its inclusion
// witness and the platform's signature over the registry root it was
// witnessed against.
type CertifiedCertificate struct {
	Certificate sspdomain.Certificate
	Witness     *hashtree.Node
	PlatformSig platformcert.Certificate
}

// GetCertificate loads a certificate by id and bundles it with a fresh
// inclusion witness and platform certification.
func (svc *Service) GetCertificate(ctx context.Context, certID sspdomain.Uuid) (CertifiedCertificate, error) {
	blob, found, err := svc.store.Get(ctx, magic.MemoryCertificates, certID.Bytes())
	if err != nil {
		return CertifiedCertificate{}, err
	}

	if !found {
		return CertifiedCertificate{}, apperr.New(apperr.KindNotFound, "certificate not found")
	}

	cert, err := sspdomain.DecodeCertificateCBOR(blob)
	if err != nil {
		return CertifiedCertificate{}, err
	}

	witness, found := svc.registry.Witness(cert.UserPrincipal, certID.Bytes())
	if !found {
		return CertifiedCertificate{}, apperr.New(apperr.KindTransient, "certificate is not yet reflected in the registry")
	}

	root := svc.registry.Root()

	platformSig, err := svc.signer.Certify(root, uint64(time.Now().UnixNano()))
	if err != nil {
		return CertifiedCertificate{}, err
	}

	return CertifiedCertificate{Certificate: cert, Witness: witness, PlatformSig: platformSig}, nil
}

// CertificatesByUser returns the ids of every certificate owned by
// principal, in ascending id order.
func (svc *Service) CertificatesByUser(ctx context.Context, principal sspdomain.Principal) ([]sspdomain.Uuid, error) {
	return svc.idsByIndex(ctx, magic.MemoryCertByUserIndex, principal.Bytes())
}

// CertificatesByManaged returns the ids of every certificate issued on
// behalf of managedUserID, in ascending id order.
func (svc *Service) CertificatesByManaged(ctx context.Context, managedUserID sspdomain.Uuid) ([]sspdomain.Uuid, error) {
	return svc.idsByIndex(ctx, magic.MemoryCertByManagedIndex, managedUserID.Bytes())
}

// FilterByOwner returns the subset of ids whose stored certificate is
// owned by owner, preserving order. It is used to restrict a
// managed-id search to a single caller's own certificates.
func (svc *Service) FilterByOwner(ctx context.Context, ids []sspdomain.Uuid, owner sspdomain.Principal) ([]sspdomain.Uuid, error) {
	filtered := make([]sspdomain.Uuid, 0, len(ids))

	for _, id := range ids {
		blob, found, err := svc.store.Get(ctx, magic.MemoryCertificates, id.Bytes())
		if err != nil {
			return nil, err
		}

		if !found {
			continue
		}

		cert, err := sspdomain.DecodeCertificateCBOR(blob)
		if err != nil {
			return nil, err
		}

		certOwner, err := sspdomain.NewPrincipal(cert.UserPrincipal)
		if err != nil {
			return nil, err
		}

		if certOwner.Equal(owner) {
			filtered = append(filtered, id)
		}
	}

	return filtered, nil
}

func (svc *Service) idsByIndex(ctx context.Context, segment int, prefix []byte) ([]sspdomain.Uuid, error) {
	start, end := store.PrefixRangeBounds(prefix)

	entries, err := svc.store.Range(ctx, segment, start, end)
	if err != nil {
		return nil, err
	}

	ids := make([]sspdomain.Uuid, 0, len(entries))

	for _, e := range entries {
		id, err := sspdomain.UuidFromBytes(e.Value)
		if err != nil {
			return nil, err
		}

		ids = append(ids, id)
	}

	return ids, nil
}

// CertifyAll rebuilds the in-memory registry from every certificate
// currently in the store — the startup-time equivalent of a canister's
// post_upgrade certify_all pass, needed because the registry itself is
// not persisted, only the certificates it indexes.
func (svc *Service) CertifyAll(ctx context.Context) error {
	rows, err := svc.store.Range(ctx, magic.MemoryCertificates, nil, nil)
	if err != nil {
		return err
	}

	entries := make([]RegistryEntry, 0, len(rows))

	for _, row := range rows {
		cert, err := sspdomain.DecodeCertificateCBOR(row.Value)
		if err != nil {
			return err
		}

		entries = append(entries, RegistryEntry{
			Principal: cert.UserPrincipal,
			CertID:    row.Key,
			LeafHash:  hashtree.LeafHash(leafDomainSep, row.Value),
		})
	}

	svc.registry.RebuildFromEntries(entries)

	return nil
}

// Root returns the current registry root hash.
func (svc *Service) Root() [32]byte {
	return svc.registry.Root()
}

func (svc *Service) recordAudit(ctx context.Context, eventType, entityType, entityID, initiator string) {
	seq := svc.auditSeq.Add(1)

	event := sspdomain.AuditEvent{
		EventType:      eventType,
		EntityType:     entityType,
		EntityID:       entityID,
		Initiator:      initiator,
		OccurredAtWire: sspdomain.Now().String(),
		Seq:            seq,
	}

	var seqKey [8]byte
	for i := 0; i < 8; i++ {
		seqKey[7-i] = byte(seq >> (8 * i))
	}

	key := make([]byte, 0, len(event.OccurredAtWire)+len(seqKey))
	key = append(key, event.OccurredAtWire...)
	key = append(key, seqKey[:]...)

	blob, err := sspdomain.EncodeAuditEventCBOR(event)
	if err != nil {
		return
	}

	_ = svc.store.Put(ctx, magic.MemoryAuditLog, key, blob)
}
