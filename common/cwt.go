package common

import (
	"github.com/fxamacker/cbor/v2"
)

const (
	ALG_ES256 = -7
	ALG_ES384 = -35
	ALG_ES512 = -36
	ALG_PS256 = -37
	ALG_PS384 = -38
	ALG_PS512 = -39

	HEADER_ALG = 1
	HEADER_KID = 4

	CLAIM_ISSUER          = 1
	CLAIM_EXPIRATION_TIME = 4
	CLAIM_ISSUED_AT       = 6
	CLAIM_HCERT           = -260
	HCERT_DCC_V1          = 1
)

type CWT struct {
	_           struct{} `cbor:",toarray"`
	Protected   []byte
	Unprotected CWTHeader
	Payload     []byte
	Signature   []byte
}

type CWTHeader struct {
	// KID is a pointer to a byte slice, so the entire struct can be compared with an empty value
	KID *[]byte `cbor:"4,keyasint,omitempty"`
	Alg int     `cbor:"1,keyasint,omitempty"`
}

type CWTPayload struct {
	Issuer         string `cbor:"1,keyasint"`
	ExpirationTime int64  `cbor:"4,keyasint"`
	IssuedAt       int64  `cbor:"6,keyasint"`

	HCert *RawHealthCertificate `cbor:"-260,keyasint"`
}

type cwtPayloadWithFloatTimestamps struct {
	Issuer         string  `cbor:"1,keyasint"`
	ExpirationTime float64 `cbor:"4,keyasint"`
	IssuedAt       float64 `cbor:"6,keyasint"`

	HCert *RawHealthCertificate `cbor:"-260,keyasint"`
}

type RawHealthCertificate struct {
	// Halt unmarshalling here, so the claims can be decoded generically
	DCC cbor.RawMessage `cbor:"1,keyasint"`
}

// Metadata holds the CWT claims surrounding the health certificate
type Metadata struct {
	Issuer         string `json:"issuer"`
	IssuedAt       int64  `json:"issuedAt"`
	ExpirationTime int64  `json:"expirationTime"`
}
