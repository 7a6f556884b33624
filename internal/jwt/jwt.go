package jwt

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
)

// Algorithm is the only signature algorithm issued or accepted.
const Algorithm = gojose.RS384

var (
	// ErrExpired is returned for a well-signed token past its exp claim.
	ErrExpired = errors.New("jwt: token expired")
	// ErrInvalid covers malformed tokens, bad signatures and bad claims.
	ErrInvalid = errors.New("jwt: token invalid")
)

// AccessTokenClaims are the private claims carried by access tokens.
type AccessTokenClaims struct {
	Scope          string `json:"scope"`
	OrganizationID string `json:"organization_id"`
	UserID         string `json:"user_id,omitempty"`
	Metadata       any    `json:"metadata,omitempty"`
}

// StandardClaims builds iss/sub/iat/exp for an access token.
func StandardClaims(issuer, subject string, issuedAt, expiry time.Time) gojwt.Claims {
	return gojwt.Claims{
		Issuer:   issuer,
		Subject:  subject,
		IssuedAt: gojwt.NewNumericDate(issuedAt),
		Expiry:   gojwt.NewNumericDate(expiry),
	}
}

// Sign produces a compact RS384 JWT.
func Sign(key *rsa.PrivateKey, std gojwt.Claims, custom AccessTokenClaims) (string, error) {
	signer, err := gojose.NewSigner(gojose.SigningKey{Algorithm: Algorithm, Key: key}, (&gojose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		return "", fmt.Errorf("new signer: %w", err)
	}

	token, err := gojwt.Signed(signer).Claims(std).Claims(custom).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize jwt: %w", err)
	}
	return token, nil
}

// Validate verifies the signature with key and checks expiry against now.
func Validate(key *rsa.PublicKey, token string, now time.Time) (*gojwt.Claims, *AccessTokenClaims, error) {
	parsed, err := gojwt.ParseSigned(token, []gojose.SignatureAlgorithm{Algorithm})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: parse: %v", ErrInvalid, err)
	}

	var std gojwt.Claims
	var custom AccessTokenClaims
	if err := parsed.Claims(key, &std, &custom); err != nil {
		return nil, nil, fmt.Errorf("%w: verify: %v", ErrInvalid, err)
	}
	if std.Expiry == nil {
		return nil, nil, fmt.Errorf("%w: missing exp", ErrInvalid)
	}

	if err := std.ValidateWithLeeway(gojwt.Expected{Time: now}, 0); err != nil {
		if errors.Is(err, gojwt.ErrExpired) {
			return &std, &custom, ErrExpired
		}
		return nil, nil, fmt.Errorf("%w: claims: %v", ErrInvalid, err)
	}
	return &std, &custom, nil
}
