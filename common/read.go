package common

import (
	"encoding/base64"
	"fmt"
	"math/big"
	"time"

	"github.com/fxamacker/cbor/v2"
)

func ReadCWT(cwt *CWT) (metadata *Metadata, claims map[string]interface{}, err error) {
	payload, err := UnmarshalCWTPayload(cwt.Payload)
	if err != nil {
		return nil, nil, err
	}

	if payload.HCert == nil || payload.HCert.DCC == nil {
		return nil, nil, malformedEnvelope("Could not process empty hcert or dcc structure", nil)
	}

	claims, err = ReadClaims(payload.HCert.DCC)
	if err != nil {
		return nil, nil, err
	}

	metadata = &Metadata{
		Issuer:         payload.Issuer,
		IssuedAt:       payload.IssuedAt,
		ExpirationTime: payload.ExpirationTime,
	}

	return metadata, claims, nil
}

func UnmarshalCWTPayload(payloadCbor []byte) (*CWTPayload, error) {
	var payload *CWTPayload
	err := cbor.Unmarshal(payloadCbor, &payload)
	if err != nil {
		// Try to parse the CWT with float timestamps, then put it back into the regular structure
		var altPayload *cwtPayloadWithFloatTimestamps
		altErr := cbor.Unmarshal(payloadCbor, &altPayload)
		if altErr != nil {
			// Use the original error, as it is more likely to be of use
			return nil, malformedEnvelope("Could not CBOR unmarshal CWT payload", err)
		}

		if altPayload == nil {
			return nil, malformedEnvelope("Could not process empty CWT payload", nil)
		}

		payload = &CWTPayload{
			Issuer:         altPayload.Issuer,
			ExpirationTime: int64(altPayload.ExpirationTime),
			IssuedAt:       int64(altPayload.IssuedAt),
			HCert:          altPayload.HCert,
		}
	}

	if payload == nil {
		return nil, malformedEnvelope("Could not process empty CWT payload", nil)
	}

	return payload, nil
}

// ReadClaims decodes the DCC and converts it into a structure that can be JSON serialized
// and walked by rule logic
func ReadClaims(dccCbor []byte) (map[string]interface{}, error) {
	var rawDCC interface{}
	err := cbor.Unmarshal(dccCbor, &rawDCC)
	if err != nil {
		return nil, malformedEnvelope("Could not CBOR unmarshal dcc structure", err)
	}

	rawMap, ok := rawDCC.(map[interface{}]interface{})
	if !ok || len(rawMap) == 0 {
		return nil, malformedEnvelope("Could not process dcc structure that is not a non-empty map", nil)
	}

	return fixMap(rawMap), nil
}

func fixMap(val map[interface{}]interface{}) map[string]interface{} {
	res := make(map[string]interface{}, len(val))
	for k, v := range val {
		res[fixKey(k)] = fixValue(v)
	}

	return res
}

func fixSlice(val []interface{}) []interface{} {
	res := make([]interface{}, 0, len(val))
	for _, v := range val {
		res = append(res, fixValue(v))
	}

	return res
}

func fixKey(k interface{}) string {
	switch tk := k.(type) {
	case string:
		return tk
	case []byte:
		return base64.StdEncoding.EncodeToString(tk)
	default:
		return fmt.Sprint(tk)
	}
}

func fixValue(v interface{}) interface{} {
	switch tv := v.(type) {
	case map[interface{}]interface{}:
		return fixMap(tv)
	case []interface{}:
		return fixSlice(tv)
	case []byte:
		return base64.StdEncoding.EncodeToString(tv)
	case time.Time:
		return tv.Format(time.RFC3339)
	case big.Int:
		f, _ := new(big.Float).SetInt(&tv).Float64()
		return f
	case cbor.Tag:
		return fixValue(tv.Content)
	default:
		return v
	}
}
