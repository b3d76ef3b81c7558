// Package bundle serializes compiled programs into portable, optionally
// authenticated envelopes. The payload is canonical JSON: every struct in
// the program model declares its fields in lexicographic tag order, so
// encoding the same program always yields the same bytes and the MAC can
// be recomputed from a decoded program on read.
package bundle

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"swiftlet-vm/internal/chunk"
	"swiftlet-vm/internal/vm"
)

// envelope is the on-disk record. Signature is empty for unsigned bundles
// and an HMAC-SHA256 tag over the canonical program payload otherwise.
type envelope struct {
	Program   *chunk.Program `json:"program"`
	Signature []byte         `json:"signature"`
}

// Payload returns the canonical byte serialization of a program.
func Payload(p *chunk.Program) ([]byte, error) {
	return json.Marshal(p)
}

// Sign computes the authentication tag for a payload. A nil or empty key
// yields an empty tag (unsigned bundle).
func Sign(payload, key []byte) []byte {
	if len(key) == 0 {
		return []byte{}
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return mac.Sum(nil)
}

// Encode serializes a program plus its authentication tag.
func Encode(p *chunk.Program, key []byte) ([]byte, error) {
	payload, err := Payload(p)
	if err != nil {
		return nil, fmt.Errorf("bundle: marshal program: %w", err)
	}
	return json.Marshal(envelope{Program: p, Signature: Sign(payload, key)})
}

// Decode parses a bundle. With a key, the decoded program is re-serialized
// to its canonical payload, the tag recomputed and compared in constant
// time against the envelope signature; a mismatch fails with
// InvalidBundleSignature. Without a key the signature field is ignored.
func Decode(data, key []byte) (*chunk.Program, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("bundle: unmarshal envelope: %w", err)
	}
	if env.Program == nil {
		return nil, fmt.Errorf("bundle: envelope has no program")
	}

	if len(key) > 0 {
		payload, err := Payload(env.Program)
		if err != nil {
			return nil, fmt.Errorf("bundle: remarshal program: %w", err)
		}
		if !hmac.Equal(Sign(payload, key), env.Signature) {
			return nil, &vm.RuntimeError{
				Kind:    vm.InvalidBundleSignature,
				Message: "bundle signature verification failed",
			}
		}
	}

	return env.Program, nil
}
