// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"strconv"
	"time"

	"github.com/relockd/relockd/lib/clock"
)

// authenticator provides Authorization header values for API
// requests.
type authenticator interface {
	header(ctx context.Context) (string, error)
}

// staticToken authenticates with a fixed Bearer token: a PAT or a
// leased installation token.
type staticToken string

func (token staticToken) header(_ context.Context) (string, error) {
	return "Bearer " + string(token), nil
}

// appJWT authenticates as a GitHub App by signing short-lived RS256
// JWTs with the App's private key. App JWTs are only valid for
// app-level endpoints — minting and revoking installation tokens —
// never for repository operations.
type appJWT struct {
	appID      int64
	privateKey *rsa.PrivateKey
	clock      clock.Clock
}

func newAppJWT(appID int64, privateKeyPEM []byte, clk clock.Clock) (*appJWT, error) {
	block, _ := pem.Decode(privateKeyPEM)
	if block == nil {
		return nil, fmt.Errorf("github: failed to decode PEM block from private key")
	}

	privateKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		// GitHub documents PKCS1 but some key tools emit PKCS8.
		keyAny, pkcs8Err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if pkcs8Err != nil {
			return nil, fmt.Errorf("github: parsing private key: %w (also tried PKCS8: %v)", err, pkcs8Err)
		}
		rsaKey, ok := keyAny.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("github: private key is not RSA")
		}
		privateKey = rsaKey
	}

	return &appJWT{appID: appID, privateKey: privateKey, clock: clk}, nil
}

// header signs a fresh JWT per request. JWTs are cheap to sign and
// the App endpoints are called at most twice per run (mint, revoke),
// so there is nothing worth caching.
func (auth *appJWT) header(_ context.Context) (string, error) {
	jwt, err := auth.sign()
	if err != nil {
		return "", err
	}
	return "Bearer " + jwt, nil
}

// sign creates an RS256-signed JWT with a 10-minute expiry, issued
// 60 seconds in the past to absorb clock skew.
func (auth *appJWT) sign() (string, error) {
	now := auth.clock.Now()

	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))

	claims := struct {
		IssuedAt  int64  `json:"iat"`
		ExpiresAt int64  `json:"exp"`
		Issuer    string `json:"iss"`
	}{
		IssuedAt:  now.Add(-60 * time.Second).Unix(),
		ExpiresAt: now.Add(10 * time.Minute).Unix(),
		Issuer:    strconv.FormatInt(auth.appID, 10),
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("github: marshaling JWT claims: %w", err)
	}
	payload := base64.RawURLEncoding.EncodeToString(claimsJSON)

	signingInput := header + "." + payload
	digest := sha256.Sum256([]byte(signingInput))
	signature, err := rsa.SignPKCS1v15(rand.Reader, auth.privateKey, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("github: signing JWT: %w", err)
	}

	return signingInput + "." + base64.RawURLEncoding.EncodeToString(signature), nil
}
