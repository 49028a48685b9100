package verifier

import (
	"context"
	"crypto"
	"fmt"

	"github.com/go-errors/errors"
	"github.com/minvws/nl-covid19-coronacheck-dcc/common"
	"github.com/veraison/go-cose"
)

var (
	ErrUnknownKeyID       = errors.Errorf("unknown key identifier")
	ErrAlgorithmMismatch  = errors.Errorf("algorithm mismatch")
	ErrInvalidSignature   = errors.Errorf("invalid signature")
	ErrUnresolvableKey    = errors.Errorf("key could not be resolved")
	ErrUnverifiableFormat = errors.Errorf("envelope could not be prepared for verification")
)

// ResolvedKey is an imported public key, the algorithm it may be used with, and an opaque
// descriptor of the trust record it originates from
type ResolvedKey struct {
	PublicKey crypto.PublicKey

	// Algorithm restricts the key to a single COSE algorithm, zero allows any
	Algorithm  cose.Algorithm
	Descriptor interface{}
}

// KeyResolver resolves a key identifier to the keys that may have produced a signature.
// It is the only point at which verification may block.
type KeyResolver interface {
	ResolveKey(ctx context.Context, kid []byte) ([]*ResolvedKey, error)
}

type KeyResolverFunc func(ctx context.Context, kid []byte) ([]*ResolvedKey, error)

func (f KeyResolverFunc) ResolveKey(ctx context.Context, kid []byte) ([]*ResolvedKey, error) {
	return f(ctx, kid)
}

// Result explains a verification outcome. Reason is nil iff Valid is true.
type Result struct {
	Valid   bool
	KID     []byte
	Trusted interface{}
	Reason  error
}

type Verifier struct {
	resolver KeyResolver
}

func New(resolver KeyResolver) *Verifier {
	return &Verifier{
		resolver: resolver,
	}
}

// Verify reports whether the envelope is signed by one of the keys its key identifier
// resolves to, and returns the descriptor of the matching trust record
func (v *Verifier) Verify(ctx context.Context, envelopeBytes []byte) (trusted interface{}, ok bool) {
	res := v.VerifyWithReason(ctx, envelopeBytes)
	return res.Trusted, res.Valid
}

func (v *Verifier) VerifyWithReason(ctx context.Context, envelopeBytes []byte) *Result {
	msg, kid, err := prepare(envelopeBytes)
	if err != nil {
		return &Result{Reason: err}
	}

	res := &Result{KID: kid}
	if v == nil || v.resolver == nil {
		res.Reason = errors.WrapPrefix(ErrUnresolvableKey, "No key resolver configured", 0)
		return res
	}

	keys, err := v.resolver.ResolveKey(ctx, kid)
	if err != nil {
		// Keep the resolver error in the chain, so that its cause can be inspected
		res.Reason = errors.WrapPrefix(fmt.Errorf("%w: %w", ErrUnresolvableKey, err), "Could not find key for verification", 0)
		return res
	}

	if len(keys) == 0 {
		res.Reason = errors.WrapPrefix(ErrUnresolvableKey, "No public keys to verify with", 0)
		return res
	}

	// Try to verify with all public keys; which in practice is one key
	for _, key := range keys {
		if key == nil {
			continue
		}

		err = verifySignature(msg, key)
		if err == nil {
			res.Valid = true
			res.Trusted = key.Descriptor
			return res
		}
	}

	// Keep last verification error
	if err == nil {
		err = errors.WrapPrefix(ErrUnresolvableKey, "No public keys to verify with", 0)
	}
	res.Reason = err
	return res
}

// VerifyWithKey reports whether the envelope is signed by the given public key, using
// the algorithm from the protected header
func VerifyWithKey(envelopeBytes []byte, pk crypto.PublicKey) bool {
	return VerifyWithKeyReason(envelopeBytes, pk) == nil
}

func VerifyWithKeyReason(envelopeBytes []byte, pk crypto.PublicKey) error {
	msg, _, err := prepare(envelopeBytes)
	if err != nil {
		return err
	}

	return verifySignature(msg, &ResolvedKey{PublicKey: pk})
}

func prepare(envelopeBytes []byte) (*cose.Sign1Message, []byte, error) {
	cwt, err := common.UnmarshalCWT(envelopeBytes)
	if err != nil {
		return nil, nil, errors.WrapPrefix(ErrUnverifiableFormat, err.Error(), 0)
	}

	protectedHeader, err := common.UnmarshalProtectedHeader(cwt.Protected)
	if err != nil {
		return nil, nil, errors.WrapPrefix(ErrUnverifiableFormat, err.Error(), 0)
	}

	kid, err := common.FindKID(protectedHeader, &cwt.Unprotected)
	if err != nil {
		return nil, nil, errors.WrapPrefix(ErrUnverifiableFormat, err.Error(), 0)
	}

	msg, err := unmarshalSign1(envelopeBytes)
	if err != nil {
		return nil, nil, errors.WrapPrefix(ErrUnverifiableFormat, err.Error(), 0)
	}

	return msg, kid, nil
}

func unmarshalSign1(envelopeBytes []byte) (*cose.Sign1Message, error) {
	// 0xd2 is the initial byte of CBOR tag 18
	if len(envelopeBytes) > 0 && envelopeBytes[0] == 0xd2 {
		msg := &cose.Sign1Message{}
		err := msg.UnmarshalCBOR(envelopeBytes)
		if err != nil {
			return nil, errors.WrapPrefix(err, "Could not parse COSE_Sign1", 0)
		}

		return msg, nil
	}

	untagged := &cose.UntaggedSign1Message{}
	err := untagged.UnmarshalCBOR(envelopeBytes)
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not parse untagged COSE_Sign1", 0)
	}

	return (*cose.Sign1Message)(untagged), nil
}

func verifySignature(msg *cose.Sign1Message, key *ResolvedKey) error {
	alg, err := msg.Headers.Protected.Algorithm()
	if err != nil {
		return errors.WrapPrefix(ErrAlgorithmMismatch, "Could not determine algorithm from protected header", 0)
	}

	if key.Algorithm != 0 && key.Algorithm != alg {
		detail := "Trust key is for " + key.Algorithm.String() + ", envelope uses " + alg.String()
		return errors.WrapPrefix(ErrAlgorithmMismatch, detail, 0)
	}

	cv, err := cose.NewVerifier(alg, key.PublicKey)
	if err != nil {
		return errors.WrapPrefix(ErrAlgorithmMismatch, "Could not create verifier: "+err.Error(), 0)
	}

	err = msg.Verify(nil, cv)
	if err != nil {
		return errors.WrapPrefix(ErrInvalidSignature, err.Error(), 0)
	}

	return nil
}
