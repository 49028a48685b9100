// Package dcc reads EU Digital Covid Certificates from their QR encoding and checks
// their signatures.
package dcc

import (
	"context"
	"crypto"
	"io"

	"github.com/minvws/nl-covid19-coronacheck-dcc/common"
	"github.com/minvws/nl-covid19-coronacheck-dcc/qr"
	"github.com/minvws/nl-covid19-coronacheck-dcc/verifier"
)

// Certificate is a decoded, not yet verified, health certificate. It is immutable and can
// be shared between goroutines.
type Certificate struct {
	raw           string
	envelopeBytes []byte
	kid           []byte
	metadata      common.Metadata
	claims        map[string]interface{}
}

// FromRaw decodes an HC1: prefixed credential
func FromRaw(raw string) (*Certificate, error) {
	envelopeBytes, err := common.DecodeTransport([]byte(raw))
	if err != nil {
		return nil, err
	}

	envelope, err := common.ParseEnvelope(envelopeBytes)
	if err != nil {
		return nil, err
	}

	return &Certificate{
		raw:           raw,
		envelopeBytes: envelopeBytes,
		kid:           envelope.KID,
		metadata:      *envelope.Metadata,
		claims:        envelope.Claims,
	}, nil
}

// FromImage scans a PNG or JPEG image for a QR code and decodes its contents
func FromImage(r io.Reader) (*Certificate, error) {
	raw, err := qr.Scan(r)
	if err != nil {
		return nil, err
	}

	return FromRaw(raw)
}

// Raw returns the credential as it was read, including its prefix
func (c *Certificate) Raw() string {
	return c.raw
}

// EnvelopeBytes returns a copy of the decompressed COSE_Sign1 bytes
func (c *Certificate) EnvelopeBytes() []byte {
	return append([]byte(nil), c.envelopeBytes...)
}

func (c *Certificate) KeyID() []byte {
	return append([]byte(nil), c.kid...)
}

func (c *Certificate) Metadata() common.Metadata {
	return c.metadata
}

// Claims returns the version 1 health certificate, or nil for a nil certificate. The
// returned value must not be modified.
func (c *Certificate) Claims() map[string]interface{} {
	if c == nil {
		return nil
	}

	return c.claims
}

// Verify reports whether the certificate is signed by the given public key
func (c *Certificate) Verify(pk crypto.PublicKey) bool {
	return verifier.VerifyWithKey(c.envelopeBytes, pk)
}

// VerifyWithKeys resolves the key identifier of the certificate and reports whether it is
// signed by one of the resolved keys. On success the descriptor of the matching trust
// record is returned.
func (c *Certificate) VerifyWithKeys(ctx context.Context, resolver verifier.KeyResolver) (trusted interface{}, ok bool) {
	return verifier.New(resolver).Verify(ctx, c.envelopeBytes)
}

// Explain is VerifyWithKeys with the reason of a failed verification
func (c *Certificate) Explain(ctx context.Context, resolver verifier.KeyResolver) *verifier.Result {
	return verifier.New(resolver).VerifyWithReason(ctx, c.envelopeBytes)
}
