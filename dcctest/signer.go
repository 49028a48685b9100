// Package dcctest creates signed and encoded health certificates with throwaway keys, for
// use in tests. It is deliberately limited: it only supports what fixtures need.
package dcctest

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-errors/errors"
	"github.com/minvws/nl-covid19-coronacheck-dcc/common"
	"github.com/minvws/nl-covid19-coronacheck-dcc/verifier"
	"github.com/veraison/go-cose"
)

type Signer struct {
	certificate *x509.Certificate
	key         crypto.Signer
	kid         []byte
	alg         cose.Algorithm
}

type IssueSpecification struct {
	Issuer         string
	IssuedAt       int64
	ExpirationTime int64

	// DCC is CBOR marshalled as the -260/1 claim, usually a *DCC or map[string]interface{}
	DCC interface{}

	// KIDInUnprotectedHeader places the key identifier in the unprotected header
	KIDInUnprotectedHeader bool
	Untagged               bool
}

// NewSigner generates a key for the given algorithm and a self-signed DSC for it
func NewSigner(alg cose.Algorithm) (*Signer, error) {
	var key crypto.Signer
	var err error
	switch alg {
	case cose.AlgorithmES256:
		key, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case cose.AlgorithmES384:
		key, err = ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	case cose.AlgorithmES512:
		key, err = ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	case cose.AlgorithmPS256, cose.AlgorithmPS384, cose.AlgorithmPS512:
		key, err = rsa.GenerateKey(rand.Reader, 2048)
	default:
		return nil, errors.Errorf("Unsupported algorithm %s", alg)
	}
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not generate key", 0)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject: pkix.Name{
			Country:    []string{"NL"},
			CommonName: "Health DSC for tests",
		},
		NotBefore: time.Now().Add(-time.Hour),
		NotAfter:  time.Now().AddDate(1, 0, 0),
	}

	certDer, err := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not create DSC", 0)
	}

	cert, err := x509.ParseCertificate(certDer)
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not parse DSC", 0)
	}

	return &Signer{
		certificate: cert,
		key:         key,
		kid:         KIDFromCertificate(certDer),
		alg:         alg,
	}, nil
}

// NewSignerFromPEM loads an ES256 signer from a PEM certificate and EC private key
func NewSignerFromPEM(pemCertBytes, pemKeyBytes []byte) (*Signer, error) {
	pemCertBlock, _ := pem.Decode(pemCertBytes)
	if pemCertBlock == nil || pemCertBlock.Type != "CERTIFICATE" {
		return nil, errors.Errorf("Could not parse PEM as certificate")
	}

	cert, err := x509.ParseCertificate(pemCertBlock.Bytes)
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not parse certificate inside PEM", 0)
	}

	pemKeyBlock, _ := pem.Decode(pemKeyBytes)
	if pemKeyBlock == nil || pemKeyBlock.Type != "EC PRIVATE KEY" {
		return nil, errors.Errorf("Could not parse PEM as EC key")
	}

	key, err := x509.ParseECPrivateKey(pemKeyBlock.Bytes)
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not parse key inside PEM", 0)
	}

	return &Signer{
		certificate: cert,
		key:         key,
		kid:         KIDFromCertificate(pemCertBlock.Bytes),
		alg:         cose.AlgorithmES256,
	}, nil
}

// KIDFromCertificate returns the first 8 bytes of the SHA-256 hash of the DER certificate
func KIDFromCertificate(certDer []byte) []byte {
	certSum := sha256.Sum256(certDer)
	return certSum[0:8]
}

func (s *Signer) KID() []byte {
	return s.kid
}

func (s *Signer) PublicKey() crypto.PublicKey {
	return s.key.Public()
}

func (s *Signer) Certificate() *x509.Certificate {
	return s.certificate
}

// TrustKey describes the public key of this signer as a trust-key record
func (s *Signer) TrustKey() *verifier.TrustKey {
	pkBytes, _ := x509.MarshalPKIXPublicKey(s.key.Public())

	pka := &verifier.PublicKeyAlgorithm{}
	switch s.alg {
	case cose.AlgorithmES256:
		pka.Name, pka.NamedCurve = "ECDSA", "P-256"
	case cose.AlgorithmES384:
		pka.Name, pka.NamedCurve = "ECDSA", "P-384"
	case cose.AlgorithmES512:
		pka.Name, pka.NamedCurve = "ECDSA", "P-521"
	case cose.AlgorithmPS256:
		pka.Name, pka.Hash = "RSA-PSS", "SHA-256"
	case cose.AlgorithmPS384:
		pka.Name, pka.Hash = "RSA-PSS", "SHA-384"
	case cose.AlgorithmPS512:
		pka.Name, pka.Hash = "RSA-PSS", "SHA-512"
	}

	return &verifier.TrustKey{
		PublicKeyPem:       base64.StdEncoding.EncodeToString(pkBytes),
		PublicKeyAlgorithm: pka,
	}
}

// TrustKeys returns a mapping containing only this signer
func (s *Signer) TrustKeys() verifier.TrustKeys {
	return verifier.TrustKeys{
		base64.StdEncoding.EncodeToString(s.kid): verifier.TrustKeyRecords{s.TrustKey()},
	}
}

// Sign returns the COSE_Sign1 envelope bytes for an IssueSpecification
func (s *Signer) Sign(spec *IssueSpecification) ([]byte, error) {
	dccCbor, err := cbor.Marshal(spec.DCC)
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not CBOR marshal DCC", 0)
	}

	payload := map[int]interface{}{
		common.CLAIM_ISSUER:          spec.Issuer,
		common.CLAIM_ISSUED_AT:       spec.IssuedAt,
		common.CLAIM_EXPIRATION_TIME: spec.ExpirationTime,
		common.CLAIM_HCERT: map[int]cbor.RawMessage{
			common.HCERT_DCC_V1: dccCbor,
		},
	}

	payloadCbor, err := cbor.Marshal(payload)
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not CBOR marshal CWT payload", 0)
	}

	coseSigner, err := cose.NewSigner(s.alg, s.key)
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not create COSE signer", 0)
	}

	msg := cose.NewSign1Message()
	msg.Headers.Protected.SetAlgorithm(s.alg)
	if spec.KIDInUnprotectedHeader {
		msg.Headers.Unprotected[cose.HeaderLabelKeyID] = s.kid
	} else {
		msg.Headers.Protected[cose.HeaderLabelKeyID] = s.kid
	}
	msg.Payload = payloadCbor

	err = msg.Sign(rand.Reader, nil, coseSigner)
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not sign CWT", 0)
	}

	var envelope []byte
	if spec.Untagged {
		envelope, err = (*cose.UntaggedSign1Message)(msg).MarshalCBOR()
	} else {
		envelope, err = msg.MarshalCBOR()
	}
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not CBOR serialize signed CWT", 0)
	}

	return envelope, nil
}

// IssueQREncoded signs and transport encodes an IssueSpecification
func (s *Signer) IssueQREncoded(spec *IssueSpecification) ([]byte, error) {
	envelope, err := s.Sign(spec)
	if err != nil {
		return nil, err
	}

	return common.EncodeTransport(envelope)
}

// DefaultSpecification wraps a DCC with NL issuer metadata, valid for 28 days
func DefaultSpecification(dcc interface{}) *IssueSpecification {
	now := time.Now().UTC()
	return &IssueSpecification{
		Issuer:         "NL",
		IssuedAt:       now.Unix(),
		ExpirationTime: now.AddDate(0, 0, 28).Unix(),
		DCC:            dcc,
	}
}
