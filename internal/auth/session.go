// Package auth provides password hashing and bearer-token issuance.
//
// Tokens are ed25519-signed JWTs carrying the user id and username. The key
// pair is generated at startup unless loaded from disk, so tokens do not
// survive a restart unless key files are configured.
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// tokenTTL is how long issued tokens stay valid. Zero means no expiry.
	tokenTTL time.Duration
)

// ErrInvalidToken covers malformed, tampered, and expired tokens.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the authenticated principal decoded from a token.
type Identity struct {
	UserID   uuid.UUID
	Username string
}

// Init generates a fresh ed25519 key pair at runtime and sets the token TTL.
func Init(ttl time.Duration) error {
	var err error
	publicKey, privateKey, err = ed25519.GenerateKey(nil)
	if err != nil {
		return fmt.Errorf("generate ed25519 key pair: %w", err)
	}
	tokenTTL = ttl
	return nil
}

// InitFromPath loads an ed25519 key pair from files and sets the token TTL.
func InitFromPath(privatePath, publicPath string, ttl time.Duration) error {
	privateKeyData, err := os.ReadFile(privatePath)
	if err != nil {
		return fmt.Errorf("read private key file: %w", err)
	}
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return fmt.Errorf("read public key file: %w", err)
	}
	privateKey = ed25519.PrivateKey(privateKeyData)
	publicKey = ed25519.PublicKey(publicKeyData)
	tokenTTL = ttl
	return nil
}

// CreateToken issues a signed JWT with "sub" = user id and a username claim,
// expiring after the configured TTL.
func CreateToken(userID uuid.UUID, username string) (string, error) {
	claims := jwt.MapClaims{
		"sub":      userID.String(),
		"username": username,
	}
	if tokenTTL > 0 {
		claims["exp"] = time.Now().Add(tokenTTL).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(privateKey)
}

// VerifyToken validates a JWT string and returns the identity it carries.
// Any parse, signature, or expiry failure maps to ErrInvalidToken.
func VerifyToken(tokenString string) (Identity, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return publicKey, nil
	})
	if err != nil || !t.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	username, _ := claims["username"].(string)

	return Identity{UserID: userID, Username: username}, nil
}
