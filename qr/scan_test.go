package qr

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

func TestScan(t *testing.T) {
	contents := "HC1:NCFOXN%TS3DH3ZSUZK+.V0ETD%65NL-AH-R6IOO6+IUKRG*I.I5BROCWAAT4V22F/8X*G3M9JUPY0BX/KR96R/S09T./0LWTKD33236J3TA3M*4VV2"

	matrix, err := qrcode.NewQRCodeWriter().Encode(contents, gozxing.BarcodeFormat_QR_CODE, 600, 600, nil)
	if err != nil {
		t.Fatal("Could not create QR code:", err.Error())
	}

	var buf bytes.Buffer
	err = png.Encode(&buf, matrix)
	if err != nil {
		t.Fatal("Could not encode QR code as PNG:", err.Error())
	}

	scanned, err := Scan(&buf)
	if err != nil {
		t.Fatal("Could not scan QR code:", err.Error())
	}

	if scanned != contents {
		t.Fatalf("Scanned %q, expected %q", scanned, contents)
	}
}

func TestScanWithoutQRCode(t *testing.T) {
	_, err := Scan(bytes.NewReader([]byte("not an image")))
	if err == nil {
		t.Fatal("Expected an error when scanning something that is not an image")
	}
}
