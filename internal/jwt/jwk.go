package jwt

import (
	"crypto/rsa"

	"github.com/go-jose/go-jose/v4"
)

// JSONWebKey renders a client's verification key.
func JSONWebKey(keyID string, key *rsa.PublicKey) jose.JSONWebKey {
	return jose.JSONWebKey{
		KeyID:     keyID,
		Use:       "sig",
		Algorithm: string(Algorithm),
		Key:       key,
	}
}

// JWKS returns a key set holding the single public key of a client.
func JWKS(keyID string, key *rsa.PublicKey) jose.JSONWebKeySet {
	return jose.JSONWebKeySet{Keys: []jose.JSONWebKey{JSONWebKey(keyID, key)}}
}
