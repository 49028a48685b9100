package common

import "github.com/go-errors/errors"

var (
	// ErrMalformedTransportEncoding is returned when the prefixed base45 text or the
	// compressed stream inside of it cannot be decoded
	ErrMalformedTransportEncoding = errors.Errorf("malformed transport encoding")

	// ErrMalformedEnvelope is returned when the decompressed bytes are not a COSE_Sign1
	// structure carrying a version 1 health certificate
	ErrMalformedEnvelope = errors.Errorf("malformed envelope")
)

func malformedTransport(prefix string, cause error) *errors.Error {
	if cause != nil {
		prefix = prefix + ": " + cause.Error()
	}

	return errors.WrapPrefix(ErrMalformedTransportEncoding, prefix, 1)
}

func malformedEnvelope(prefix string, cause error) *errors.Error {
	if cause != nil {
		prefix = prefix + ": " + cause.Error()
	}

	return errors.WrapPrefix(ErrMalformedEnvelope, prefix, 1)
}
