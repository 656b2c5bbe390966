package sspdomain

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"sspbackend/internal/sspshared/apperr"
)

// selfDescribeTag is the CBOR "self-describe" major-type-6 tag (RFC 8949
// §3.4.6, 0xd9d9f7) ssp-backend prepends to every encoded Certificate so
// a decoder can recognize the bytes as CBOR without out-of-band typing.
var selfDescribeTag = []byte{0xd9, 0xd9, 0xf7}

var canonicalEncMode = func() cbor.EncMode {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("sspdomain: invalid cbor encode options: %v", err))
	}

	return mode
}()

// EncodeCertificateCBOR produces the deterministic, self-describing CBOR
// encoding of cert.
func EncodeCertificateCBOR(cert Certificate) ([]byte, error) {
	body, err := canonicalEncMode.Marshal(cert)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransient, "failed to cbor-encode certificate", err)
	}

	out := make([]byte, 0, len(selfDescribeTag)+len(body))
	out = append(out, selfDescribeTag...)
	out = append(out, body...)

	return out, nil
}

// DecodeCertificateCBOR parses bytes previously produced by
// EncodeCertificateCBOR back into a Certificate.
func DecodeCertificateCBOR(data []byte) (Certificate, error) {
	body := data
	if len(data) >= len(selfDescribeTag) {
		matches := true

		for i, b := range selfDescribeTag {
			if data[i] != b {
				matches = false
				break
			}
		}

		if matches {
			body = data[len(selfDescribeTag):]
		}
	}

	var cert Certificate
	if err := cbor.Unmarshal(body, &cert); err != nil {
		return Certificate{}, apperr.Wrap(apperr.KindValidationError, "failed to cbor-decode certificate", err)
	}

	if cert.Content.IssuedAtWire != "" {
		issuedAt, err := ParseDateTime(cert.Content.IssuedAtWire)
		if err != nil {
			return Certificate{}, err
		}

		cert.Content.IssuedAt = issuedAt
	}

	return cert, nil
}

// EncodeAuditEventCBOR produces the deterministic, self-describing CBOR
// encoding of an audit event.
func EncodeAuditEventCBOR(event AuditEvent) ([]byte, error) {
	body, err := canonicalEncMode.Marshal(event)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransient, "failed to cbor-encode audit event", err)
	}

	out := make([]byte, 0, len(selfDescribeTag)+len(body))
	out = append(out, selfDescribeTag...)
	out = append(out, body...)

	return out, nil
}

// DecodeAuditEventCBOR parses bytes previously produced by
// EncodeAuditEventCBOR back into an AuditEvent.
func DecodeAuditEventCBOR(data []byte) (AuditEvent, error) {
	body := data
	if len(data) >= len(selfDescribeTag) {
		matches := true

		for i, b := range selfDescribeTag {
			if data[i] != b {
				matches = false
				break
			}
		}

		if matches {
			body = data[len(selfDescribeTag):]
		}
	}

	var event AuditEvent
	if err := cbor.Unmarshal(body, &event); err != nil {
		return AuditEvent{}, apperr.Wrap(apperr.KindValidationError, "failed to cbor-decode audit event", err)
	}

	return event, nil
}
