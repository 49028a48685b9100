package dcc

import (
	"bytes"
	"context"
	"image/png"
	"testing"

	"github.com/go-errors/errors"
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/minvws/nl-covid19-coronacheck-dcc/common"
	"github.com/minvws/nl-covid19-coronacheck-dcc/dcctest"
	"github.com/minvws/nl-covid19-coronacheck-dcc/verifier"
	"github.com/veraison/go-cose"
)

func issue(t *testing.T, alg cose.Algorithm) (*dcctest.Signer, *dcctest.IssueSpecification, string) {
	signer, err := dcctest.NewSigner(alg)
	if err != nil {
		t.Fatal("Could not create signer:", err.Error())
	}

	spec := dcctest.DefaultSpecification(dcctest.VaccinationDCC())
	qr, err := signer.IssueQREncoded(spec)
	if err != nil {
		t.Fatal("Could not issue:", err.Error())
	}

	return signer, spec, string(qr)
}

func TestFromRaw(t *testing.T) {
	signer, spec, raw := issue(t, cose.AlgorithmES256)

	cert, err := FromRaw(raw)
	if err != nil {
		t.Fatal("Could not read certificate:", err.Error())
	}

	if cert.Raw() != raw {
		t.Fatal("Raw credential was not retained")
	}

	if !bytes.Equal(cert.KeyID(), signer.KID()) {
		t.Fatalf("Expected kid %x, got %x", signer.KID(), cert.KeyID())
	}

	md := cert.Metadata()
	if md.Issuer != "NL" || md.IssuedAt != spec.IssuedAt || md.ExpirationTime != spec.ExpirationTime {
		t.Fatalf("Unexpected metadata: %+v", md)
	}

	if cert.Claims()["dob"] != "1970-01-01" {
		t.Fatalf("Unexpected date of birth: %v", cert.Claims()["dob"])
	}

	// Accessors hand out copies
	cert.KeyID()[0] ^= 0xff
	cert.EnvelopeBytes()[0] ^= 0xff
	if !bytes.Equal(cert.KeyID(), signer.KID()) || !cert.Verify(signer.PublicKey()) {
		t.Fatal("Certificate was modified through an accessor")
	}
}

func TestNilCertificateClaims(t *testing.T) {
	var cert *Certificate
	if cert.Claims() != nil {
		t.Fatal("Expected no claims for a nil certificate")
	}
}

func TestFromRawMalformed(t *testing.T) {
	_, _, raw := issue(t, cose.AlgorithmES256)

	_, err := FromRaw("HC2:" + raw[4:])
	if !errors.Is(err, common.ErrMalformedTransportEncoding) {
		t.Fatal("Expected malformed transport encoding, got", err)
	}

	envelope, err := common.EncodeTransport([]byte{0x84, 0x40, 0xa0, 0xf6, 0x40})
	if err != nil {
		t.Fatal("Could not encode envelope:", err.Error())
	}

	_, err = FromRaw(string(envelope))
	if !errors.Is(err, common.ErrMalformedEnvelope) {
		t.Fatal("Expected malformed envelope, got", err)
	}
}

func TestVerify(t *testing.T) {
	for _, alg := range []cose.Algorithm{cose.AlgorithmES256, cose.AlgorithmPS256} {
		signer, _, raw := issue(t, alg)
		other, _, _ := issue(t, alg)

		cert, err := FromRaw(raw)
		if err != nil {
			t.Fatal("Could not read certificate:", err.Error())
		}

		if !cert.Verify(signer.PublicKey()) {
			t.Fatalf("%s: could not verify with signing key", alg)
		}

		if cert.Verify(other.PublicKey()) {
			t.Fatalf("%s: verified with a different key", alg)
		}
	}
}

func TestVerifyWithKeys(t *testing.T) {
	signer, _, raw := issue(t, cose.AlgorithmES256)
	other, _, _ := issue(t, cose.AlgorithmES256)

	cert, err := FromRaw(raw)
	if err != nil {
		t.Fatal("Could not read certificate:", err.Error())
	}

	trusted, ok := cert.VerifyWithKeys(context.Background(), signer.TrustKeys())
	if !ok {
		t.Fatal("Could not verify with trust keys")
	}

	tk, isTrustKey := trusted.(*verifier.TrustKey)
	if !isTrustKey || tk.PublicKeyPem != signer.TrustKey().PublicKeyPem {
		t.Fatalf("Unexpected trusted descriptor: %#v", trusted)
	}

	trusted, ok = cert.VerifyWithKeys(context.Background(), other.TrustKeys())
	if ok || trusted != nil {
		t.Fatal("Verified against trust keys without the signing key")
	}

	res := cert.Explain(context.Background(), other.TrustKeys())
	if res.Valid || !errors.Is(res.Reason, verifier.ErrUnresolvableKey) {
		t.Fatal("Expected unresolvable key, got", res.Reason)
	}

	res = cert.Explain(context.Background(), signer.TrustKeys())
	if !res.Valid || res.Reason != nil || !bytes.Equal(res.KID, signer.KID()) {
		t.Fatalf("Unexpected result: %+v", res)
	}
}

func TestFromImage(t *testing.T) {
	signer, _, raw := issue(t, cose.AlgorithmES256)

	matrix, err := qrcode.NewQRCodeWriter().Encode(raw, gozxing.BarcodeFormat_QR_CODE, 800, 800, nil)
	if err != nil {
		t.Fatal("Could not create QR code:", err.Error())
	}

	var buf bytes.Buffer
	err = png.Encode(&buf, matrix)
	if err != nil {
		t.Fatal("Could not encode QR code as PNG:", err.Error())
	}

	cert, err := FromImage(&buf)
	if err != nil {
		t.Fatal("Could not read certificate from image:", err.Error())
	}

	if cert.Raw() != raw || !cert.Verify(signer.PublicKey()) {
		t.Fatal("Certificate read from image does not match")
	}
}
