// Package jwks renders the service's verification keys as a JSON Web Key
// Set (RFC 7517).
//
// The published document contains one entry per key still valid for
// signature verification: the currently active signing key plus any
// retired keys that have not yet expired. Relying parties select the
// verification key by matching a token's kid header against the set.
//
// The document is safe to cache, but because keys rotate, verifiers
// should re-fetch periodically or whenever they encounter a kid they do
// not recognize. The service sets no explicit cache-control policy.
//
// # Usage
//
//	service := jwks.NewService(keyRepository)
//
//	doc, err := service.GetJWKS(ctx)
//	if err != nil {
//	    // storage failure; surface as 5xx
//	}
//	// serve doc at /.well-known/jwks.json
package jwks
