package common

import (
	"bytes"
	"io"

	"github.com/go-errors/errors"
	"github.com/klauspost/compress/zlib"
	"github.com/minvws/base45-go/eubase45"
)

const (
	COSE_SIGN1_TAG     = 18
	CURRENT_CONTEXT_ID = '1'

	PREFIX_LENGTH = 4
)

const base45Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ $%*+-./:"

// DecodeTransport strips the HC1: prefix, base45 decodes the remainder and inflates it,
// yielding the COSE_Sign1 envelope bytes
func DecodeTransport(proofPrefixed []byte) ([]byte, error) {
	contextId, proofEUBase45, err := extractContextId(proofPrefixed)
	if err != nil {
		return nil, err
	}

	if contextId != CURRENT_CONTEXT_ID {
		return nil, malformedTransport("Unrecognized QR context identifier", nil)
	}

	err = validateEUBase45(proofEUBase45)
	if err != nil {
		return nil, malformedTransport("Could not EUBase45 decode QR", err)
	}

	proofCompressed, err := eubase45.EUBase45Decode(proofEUBase45)
	if err != nil {
		return nil, malformedTransport("Could not EUBase45 decode QR", err)
	}

	// Inflate proof
	zr, err := zlib.NewReader(bytes.NewReader(proofCompressed))
	if err != nil {
		return nil, malformedTransport("Could not create zlib reader", err)
	}
	defer zr.Close()

	envelope, err := io.ReadAll(zr)
	if err != nil {
		return nil, malformedTransport("Could not decompress QR", err)
	}

	if len(envelope) == 0 {
		return nil, malformedTransport("Could not process empty decompressed QR", nil)
	}

	return envelope, nil
}

// EncodeTransport is the inverse of DecodeTransport
func EncodeTransport(envelope []byte) ([]byte, error) {
	var proofCompressed bytes.Buffer
	zw, err := zlib.NewWriterLevel(&proofCompressed, zlib.BestCompression)
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not create zlib writer", 0)
	}

	_, err = zw.Write(envelope)
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not write to zlib writer", 0)
	}

	err = zw.Close()
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not close zlib writer", 0)
	}

	proofEUBase45 := eubase45.EUBase45Encode(proofCompressed.Bytes())

	prefix := []byte{'H', 'C', CURRENT_CONTEXT_ID, ':'}
	return append(prefix, proofEUBase45...), nil
}

func HasEUPrefix(bts []byte) bool {
	_, _, err := extractContextId(bts)
	return err == nil
}

func extractContextId(proofPrefixed []byte) (contextId byte, proofEUBase45 []byte, err error) {
	if len(proofPrefixed) < PREFIX_LENGTH {
		return 0x00, nil, malformedTransport("Could not process abnormally short QR", nil)
	}

	if proofPrefixed[0] != 'H' || proofPrefixed[1] != 'C' || proofPrefixed[3] != ':' {
		return 0x00, nil, malformedTransport("QR is not prefixed as a EU Health Credential", nil)
	}

	contextId = proofPrefixed[2]
	if !((contextId >= '0' && contextId <= '9') || (contextId >= 'A' && contextId <= 'Z')) {
		return 0x00, nil, malformedTransport("QR has invalid context id byte", nil)
	}

	return contextId, proofPrefixed[PREFIX_LENGTH:], nil
}

// validateEUBase45 rejects input the decoder could otherwise silently truncate: unknown
// characters, dangling single characters and groups that overflow their byte width
func validateEUBase45(bts []byte) error {
	if len(bts) == 0 {
		return errors.Errorf("Could not process empty base45 data")
	}

	if len(bts)%3 == 1 {
		return errors.Errorf("Base45 data has invalid length %d", len(bts))
	}

	for i := 0; i < len(bts); i += 3 {
		end := i + 3
		if end > len(bts) {
			end = len(bts)
		}

		value := 0
		factor := 1
		for j := i; j < end; j++ {
			digit := bytes.IndexByte([]byte(base45Alphabet), bts[j])
			if digit < 0 {
				return errors.Errorf("Invalid base45 character %q at position %d", bts[j], j)
			}

			value += digit * factor
			factor *= 45
		}

		if (end-i == 3 && value > 0xFFFF) || (end-i == 2 && value > 0xFF) {
			return errors.Errorf("Base45 group at position %d overflows", i)
		}
	}

	return nil
}
