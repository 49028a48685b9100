package common

import (
	"github.com/fxamacker/cbor/v2"
)

// Envelope is a parsed COSE_Sign1 structure together with the health certificate it carries
type Envelope struct {
	CWT             *CWT
	ProtectedHeader *CWTHeader
	KID             []byte
	Metadata        *Metadata
	Claims          map[string]interface{}
}

// PayloadBytes returns the signed CWT payload
func (e *Envelope) PayloadBytes() []byte {
	return e.CWT.Payload
}

// Algorithm returns the COSE algorithm identifier from the protected header
func (e *Envelope) Algorithm() int {
	return e.ProtectedHeader.Alg
}

// ParseEnvelope parses the (optionally tagged) COSE_Sign1 bytes, determines the key
// identifier and extracts the version 1 health certificate claims
func ParseEnvelope(envelopeBytes []byte) (*Envelope, error) {
	cwt, err := UnmarshalCWT(envelopeBytes)
	if err != nil {
		return nil, err
	}

	protectedHeader, err := UnmarshalProtectedHeader(cwt.Protected)
	if err != nil {
		return nil, err
	}

	kid, err := FindKID(protectedHeader, &cwt.Unprotected)
	if err != nil {
		return nil, err
	}

	metadata, claims, err := ReadCWT(cwt)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		CWT:             cwt,
		ProtectedHeader: protectedHeader,
		KID:             kid,
		Metadata:        metadata,
		Claims:          claims,
	}, nil
}

func UnmarshalCWT(envelopeBytes []byte) (*CWT, error) {
	// Tag 18 is skipped by the decoder when present
	var cwt *CWT
	err := cbor.Unmarshal(envelopeBytes, &cwt)
	if err != nil {
		return nil, malformedEnvelope("Could not CBOR unmarshal QR as CWT", err)
	}

	if cwt == nil {
		return nil, malformedEnvelope("Could not process empty CWT", nil)
	}

	if len(cwt.Payload) == 0 {
		return nil, malformedEnvelope("Could not process CWT without payload", nil)
	}

	return cwt, nil
}

func UnmarshalProtectedHeader(protected []byte) (*CWTHeader, error) {
	// A zero length protected header represents the empty map
	protectedHeader := &CWTHeader{}
	if len(protected) == 0 {
		return protectedHeader, nil
	}

	err := cbor.Unmarshal(protected, protectedHeader)
	if err != nil {
		return nil, malformedEnvelope("Could not CBOR unmarshal protected header", err)
	}

	return protectedHeader, nil
}

func FindKID(protectedHeader *CWTHeader, unprotectedHeader *CWTHeader) (kid []byte, err error) {
	// Determine kid from protected and unprotected header
	if protectedHeader.KID != nil {
		kid = *protectedHeader.KID
	} else if unprotectedHeader.KID != nil {
		kid = *unprotectedHeader.KID
	}

	if len(kid) == 0 {
		return nil, malformedEnvelope("Could not find key identifier in protected or unprotected header", nil)
	}

	return kid, nil
}
