package jwks

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"

	"github.com/tavernkeep/identity/pkg/signingkey"
)

// JWKS represents a JSON Web Key Set as defined in RFC 7517
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key as defined in RFC 7517
type JWK struct {
	// Key Type - "RSA" for RSA keys
	Kty string `json:"kty"`

	// Public Key Use - "sig" for signature
	Use string `json:"use"`

	// Key ID - selects the verification key matching a token's header
	Kid string `json:"kid"`

	// Algorithm - "RS256" for RSA with SHA-256
	Alg string `json:"alg,omitempty"`

	// RSA public key modulus (base64url encoded, unpadded)
	N string `json:"n"`

	// RSA public key exponent (base64url encoded, unpadded)
	E string `json:"e"`
}

// FromSigningKey renders the public half of a signing key as a JWK.
// Fails when the key carries no public key material.
func FromSigningKey(key *signingkey.SigningKey) (*JWK, error) {
	if key.PublicKey == nil || key.PublicKey.N == nil {
		return nil, fmt.Errorf("signing key %s has no public key material", key.Kid)
	}

	return &JWK{
		Kty: "RSA",
		Use: "sig",
		Kid: key.Kid,
		Alg: key.Alg,
		N:   EncodeModulus(key.PublicKey),
		E:   EncodeExponent(key.PublicKey),
	}, nil
}

// EncodeModulus encodes the RSA public key modulus as unpadded base64url.
// big.Int.Bytes() never emits a leading zero byte.
func EncodeModulus(publicKey *rsa.PublicKey) string {
	return base64.RawURLEncoding.EncodeToString(publicKey.N.Bytes())
}

// EncodeExponent encodes the RSA public key exponent as unpadded base64url
func EncodeExponent(publicKey *rsa.PublicKey) string {
	exponentBytes := big.NewInt(int64(publicKey.E)).Bytes()
	return base64.RawURLEncoding.EncodeToString(exponentBytes)
}
