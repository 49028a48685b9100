package verifier

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"testing"

	"github.com/veraison/go-cose"
)

func TestParseTrustKeys(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal("Could not generate key:", err.Error())
	}

	pkBytes, _ := x509.MarshalPKIXPublicKey(key.Public())
	pkB64 := base64.StdEncoding.EncodeToString(pkBytes)

	tksJson := `{
		"AAECAwQFBgc=": {"publicKeyPem": "` + pkB64 + `", "publicKeyAlgorithm": {"name": "ECDSA", "namedCurve": "P-256"}},
		"CAkKCwwNDg8=": [
			{"publicKeyPem": "` + pkB64 + `", "publicKeyAlgorithm": {"name": "RSA-PSS", "hash": {"name": "SHA-384"}}, "keyUsage": ["v"]},
			{"publicKeyPem": "` + pkB64 + `", "publicKeyAlgorithm": {"name": "ECDSA", "namedCurve": "P-256"}}
		]
	}`

	tks, err := ParseTrustKeys([]byte(tksJson))
	if err != nil {
		t.Fatal("Could not parse trust keys:", err.Error())
	}

	if len(tks["AAECAwQFBgc="]) != 1 || len(tks["CAkKCwwNDg8="]) != 2 {
		t.Fatalf("Unexpected trust keys: %+v", tks)
	}

	alg, err := tks["CAkKCwwNDg8="][0].PublicKeyAlgorithm.CoseAlgorithm()
	if err != nil || alg != cose.AlgorithmPS384 {
		t.Fatalf("Expected PS384, got %v (%v)", alg, err)
	}

	resolved, err := tks.ResolveKey(context.Background(), []byte{0, 1, 2, 3, 4, 5, 6, 7})
	if err != nil {
		t.Fatal("Could not resolve key:", err.Error())
	}

	if len(resolved) != 1 || resolved[0].Algorithm != cose.AlgorithmES256 {
		t.Fatalf("Unexpected resolved keys: %+v", resolved)
	}

	if !key.PublicKey.Equal(resolved[0].PublicKey) {
		t.Fatal("Resolved public key does not match")
	}

	_, err = tks.ResolveKey(context.Background(), []byte{9, 9, 9})
	if err == nil {
		t.Fatal("Expected an error for an unknown key identifier")
	}
}

func TestParsePublicKeyPEM(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		t.Fatal("Could not generate key:", err.Error())
	}

	pkBytes, _ := x509.MarshalPKIXPublicKey(key.Public())
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pkBytes})

	pk, err := ParsePublicKey(string(pemBytes))
	if err != nil {
		t.Fatal("Could not parse PEM public key:", err.Error())
	}

	if !key.PublicKey.Equal(pk) {
		t.Fatal("Parsed public key does not match")
	}

	_, err = ParsePublicKey("%%%")
	if err == nil {
		t.Fatal("Expected an error for invalid base64")
	}
}

func TestCoseAlgorithm(t *testing.T) {
	cases := []struct {
		pka *PublicKeyAlgorithm
		alg cose.Algorithm
		ok  bool
	}{
		{&PublicKeyAlgorithm{Name: "ECDSA", NamedCurve: "P-256"}, cose.AlgorithmES256, true},
		{&PublicKeyAlgorithm{Name: "ecdsa", NamedCurve: "p-521"}, cose.AlgorithmES512, true},
		{&PublicKeyAlgorithm{Name: "RSA-PSS", Hash: "SHA-256"}, cose.AlgorithmPS256, true},
		{&PublicKeyAlgorithm{Name: "RSA-PSS", Hash: "SHA-1"}, 0, false},
		{&PublicKeyAlgorithm{Name: "ECDSA", NamedCurve: "secp256k1"}, 0, false},
		{&PublicKeyAlgorithm{Name: "RSASSA-PKCS1-v1_5", Hash: "SHA-256"}, 0, false},
		{nil, 0, false},
	}

	for _, c := range cases {
		alg, err := c.pka.CoseAlgorithm()
		if (err == nil) != c.ok || alg != c.alg {
			t.Errorf("%+v: expected %v (ok=%v), got %v (%v)", c.pka, c.alg, c.ok, alg, err)
		}
	}
}
