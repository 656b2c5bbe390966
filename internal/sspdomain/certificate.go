package sspdomain

import (
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"sspbackend/internal/sspshared/apperr"
	"sspbackend/internal/sspshared/magic"
)

// CertificateContent is the user-supplied payload of a certificate.
// Fields are validated against fixed character/byte bounds, counting
// Unicode characters (after NFC normalization) rather than bytes for
// every field but FileURI.
type CertificateContent struct {
	Name           string   `cbor:"1,keyasint"`
	SportCategory  string   `cbor:"2,keyasint"`
	Notes          string   `cbor:"3,keyasint,omitempty"`
	FileURI        string   `cbor:"4,keyasint"`
	ExternalID     string   `cbor:"5,keyasint,omitempty"`
	IssuerFullName string   `cbor:"6,keyasint"`
	IssuerClubName string   `cbor:"7,keyasint"`
	IssuedAt       DateTime `cbor:"-"`
	IssuedAtWire   string   `cbor:"8,keyasint"`
}

// runeCount counts Unicode characters after NFC normalization, so
// combining-mark sequences that render as one glyph are not double
// counted against the field bounds.
func runeCount(s string) int {
	return utf8.RuneCountInString(norm.NFC.String(s))
}

// Validate enforces the field bounds. Error messages are the exact
// substrings that end-to-end callers are expected to match on.
func (c CertificateContent) Validate() error {
	switch {
	case runeCount(c.Name) == 0:
		return apperr.New(apperr.KindValidationError, "Title cannot be empty.")
	case runeCount(c.Name) > magic.MaxNameChars:
		return apperr.New(apperr.KindValidationError, "Title cannot be longer than 100 characters.")
	case runeCount(c.SportCategory) == 0:
		return apperr.New(apperr.KindValidationError, "Sport category cannot be empty.")
	case runeCount(c.SportCategory) > magic.MaxSportCategoryChars:
		return apperr.New(apperr.KindValidationError, "Sport category cannot be longer than 80 characters.")
	case runeCount(c.Notes) > magic.MaxNotesChars:
		return apperr.New(apperr.KindValidationError, "Notes cannot be longer than 500 characters.")
	case len(c.FileURI) == 0:
		return apperr.New(apperr.KindValidationError, "File URI cannot be empty.")
	case len(c.FileURI) > magic.MaxFileURIBytes:
		return apperr.New(apperr.KindValidationError, "File URI cannot be larger than 1.5 MiB.")
	case runeCount(c.ExternalID) > magic.MaxExternalIDChars:
		return apperr.New(apperr.KindValidationError, "External id cannot be longer than 100 characters.")
	case runeCount(c.IssuerFullName) == 0:
		return apperr.New(apperr.KindValidationError, "Issuer full name cannot be empty.")
	case runeCount(c.IssuerFullName) > magic.MaxIssuerFullNameChars:
		return apperr.New(apperr.KindValidationError, "Issuer full name cannot be longer than 100 characters.")
	case runeCount(c.IssuerClubName) == 0:
		return apperr.New(apperr.KindValidationError, "Issuer club name cannot be empty.")
	case runeCount(c.IssuerClubName) > magic.MaxIssuerClubNameChars:
		return apperr.New(apperr.KindValidationError, "Issuer club name cannot be longer than 100 characters.")
	}

	return nil
}

// Certificate is the immutable, content-addressed record stored in the
// registry. Field order here is the deterministic CBOR field order:
// once frozen, it must never change, or previously issued leaf hashes
// stop matching their certificates.
type Certificate struct {
	UserPrincipal []byte             `cbor:"1,keyasint"`
	CreatedAt     string             `cbor:"2,keyasint"`
	Content       CertificateContent `cbor:"3,keyasint"`
	ManagedUserID string             `cbor:"4,keyasint,omitempty"`
}

// NewCertificate constructs and validates a Certificate.
func NewCertificate(userPrincipal Principal, createdAt DateTime, content CertificateContent, managedUserID *Uuid) (Certificate, error) {
	if err := content.Validate(); err != nil {
		return Certificate{}, err
	}

	content.IssuedAtWire = content.IssuedAt.String()

	cert := Certificate{
		UserPrincipal: userPrincipal.Bytes(),
		CreatedAt:     createdAt.String(),
		Content:       content,
	}

	if managedUserID != nil {
		cert.ManagedUserID = managedUserID.String()
	}

	return cert, nil
}

// HasManagedUserID reports whether the certificate was issued on behalf
// of a managed user rather than the caller themselves.
func (c Certificate) HasManagedUserID() bool {
	return c.ManagedUserID != ""
}
