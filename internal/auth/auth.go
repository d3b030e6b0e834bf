package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Actor identifies who owns a cart, order or promo redemption: an
// authenticated user (by platform token subject) or an anonymous visitor
// (by client-generated guest browser id).
type Actor struct {
	UserID  string
	GuestID string
}

func (a Actor) IsZero() bool {
	return a.UserID == "" && a.GuestID == ""
}

// ExtractTokenFromRequest extracts a bearer token from the Authorization header.
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header is missing")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}

	return parts[1], nil
}

// ExtractUserIDFromJWT parses the token and returns its 'sub' claim.
// Signature verification is the managed auth platform's job; by the time a
// request reaches this service the token has already passed the edge.
func ExtractUserIDFromJWT(tokenString string) (string, error) {
	if tokenString == "" {
		return "", errors.New("empty token")
	}

	token, _, err := new(jwt.Parser).ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid token claims")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("subject claim not found in token")
	}

	return sub, nil
}

// ActorFromRequest resolves the acting identity: the bearer token subject
// when present, otherwise the X-Guest-ID header for anonymous checkout.
func ActorFromRequest(r *http.Request) Actor {
	if token, err := ExtractTokenFromRequest(r); err == nil {
		if userID, err := ExtractUserIDFromJWT(token); err == nil {
			return Actor{UserID: userID}
		}
	}
	return Actor{GuestID: r.Header.Get("X-Guest-ID")}
}
