package verifier

import (
	"bytes"
	"context"
	"crypto"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"strings"

	"github.com/go-errors/errors"
	"github.com/veraison/go-cose"
)

// TrustKeys maps a base64 encoded key identifier to the trusted public key(s) with that identifier
type TrustKeys map[string]TrustKeyRecords

// TrustKeyRecords is a list of keys sharing a key identifier. It unmarshals from either a
// single record or an array of records.
type TrustKeyRecords []*TrustKey

type TrustKey struct {
	// PublicKeyPem holds the base64 encoded DER SubjectPublicKeyInfo, or a PEM block
	PublicKeyPem       string              `json:"publicKeyPem"`
	PublicKeyAlgorithm *PublicKeyAlgorithm `json:"publicKeyAlgorithm"`
}

// PublicKeyAlgorithm describes a key the way WebCrypto import parameters do
type PublicKeyAlgorithm struct {
	Name       string   `json:"name"`
	NamedCurve string   `json:"namedCurve,omitempty"`
	Hash       hashName `json:"hash,omitempty"`
}

type hashName string

func (h *hashName) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*h = hashName(name)
		return nil
	}

	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return errors.WrapPrefix(err, "Could not JSON unmarshal hash algorithm", 0)
	}

	*h = hashName(obj.Name)
	return nil
}

func (r *TrustKeyRecords) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var records []*TrustKey
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return errors.WrapPrefix(err, "Could not JSON unmarshal trust key records", 0)
		}

		*r = records
		return nil
	}

	record := &TrustKey{}
	if err := json.Unmarshal(trimmed, record); err != nil {
		return errors.WrapPrefix(err, "Could not JSON unmarshal trust key record", 0)
	}

	*r = TrustKeyRecords{record}
	return nil
}

// ParseTrustKeys parses the JSON trust-key mapping
func ParseTrustKeys(trustKeysJson []byte) (TrustKeys, error) {
	var tks TrustKeys
	err := json.Unmarshal(trustKeysJson, &tks)
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not JSON unmarshal trust keys", 0)
	}

	return tks, nil
}

// ResolveKey implements KeyResolver
func (tks TrustKeys) ResolveKey(ctx context.Context, kid []byte) ([]*ResolvedKey, error) {
	// Check if key id is present
	kidB64 := base64.StdEncoding.EncodeToString(kid)
	records, ok := tks[kidB64]
	if !ok {
		return nil, errors.WrapPrefix(ErrUnknownKeyID, kidB64, 0)
	}

	resolved := make([]*ResolvedKey, 0, len(records))
	for _, record := range records {
		// Allow parsing errors at this stage, so that kid collisions
		//  cannot prevent another key from verifying
		rk, err := record.Resolve()
		if err != nil {
			continue
		}

		resolved = append(resolved, rk)
	}

	if len(resolved) == 0 {
		return nil, errors.Errorf("Could not find any valid public keys for key id %s", kidB64)
	}

	return resolved, nil
}

// Resolve imports the public key of this record
func (tk *TrustKey) Resolve() (*ResolvedKey, error) {
	if tk == nil {
		return nil, errors.Errorf("Could not resolve empty trust key")
	}

	pk, err := ParsePublicKey(tk.PublicKeyPem)
	if err != nil {
		return nil, err
	}

	alg, err := tk.PublicKeyAlgorithm.CoseAlgorithm()
	if err != nil {
		return nil, err
	}

	return &ResolvedKey{
		PublicKey:  pk,
		Algorithm:  alg,
		Descriptor: tk,
	}, nil
}

// CoseAlgorithm maps the WebCrypto description onto a COSE algorithm
func (pka *PublicKeyAlgorithm) CoseAlgorithm() (cose.Algorithm, error) {
	if pka == nil {
		return 0, errors.Errorf("Could not determine algorithm of trust key without publicKeyAlgorithm")
	}

	switch strings.ToUpper(pka.Name) {
	case "ECDSA":
		switch strings.ToUpper(pka.NamedCurve) {
		case "P-256":
			return cose.AlgorithmES256, nil
		case "P-384":
			return cose.AlgorithmES384, nil
		case "P-521":
			return cose.AlgorithmES512, nil
		}

		return 0, errors.Errorf("Unsupported ECDSA curve '%s'", pka.NamedCurve)

	case "RSA-PSS":
		switch strings.ToUpper(string(pka.Hash)) {
		case "SHA-256":
			return cose.AlgorithmPS256, nil
		case "SHA-384":
			return cose.AlgorithmPS384, nil
		case "SHA-512":
			return cose.AlgorithmPS512, nil
		}

		return 0, errors.Errorf("Unsupported RSA-PSS hash '%s'", pka.Hash)
	}

	return 0, errors.Errorf("Unsupported public key algorithm '%s'", pka.Name)
}

// ParsePublicKey accepts a PEM block or base64 encoded DER SubjectPublicKeyInfo
func ParsePublicKey(encoded string) (crypto.PublicKey, error) {
	block, _ := pem.Decode([]byte(encoded))
	if block != nil {
		switch block.Type {
		case "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, errors.WrapPrefix(err, "Could not parse certificate inside PEM", 0)
			}

			return cert.PublicKey, nil
		default:
			pk, err := x509.ParsePKIXPublicKey(block.Bytes)
			if err != nil {
				return nil, errors.WrapPrefix(err, "Could not parse public key inside PEM", 0)
			}

			return pk, nil
		}
	}

	der, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not base64 decode public key", 0)
	}

	pk, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not parse public key", 0)
	}

	return pk, nil
}
