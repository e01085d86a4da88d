// ABOUTME: Generates bearer tokens for poking a local gateway
// ABOUTME: Tokens carry sub, email and role so rate limit keys and feature defaults pick them up

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/edusphere/portal-gateway/models"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "Usage: %s <user-id> <token-type> [role]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Token types: valid, expired, legacy\n")
		os.Exit(1)
	}

	userID := os.Args[1]
	tokenType := os.Args[2]

	role := models.RoleStudent
	if len(os.Args) > 3 {
		r, err := models.ParseRole(os.Args[3])
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		role = r
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"email": userID + "@example.com",
		"role":  string(role),
		"iat":   now.Unix(),
	}

	switch tokenType {
	case "valid":
		claims["sub"] = userID
		claims["exp"] = now.Add(time.Hour).Unix()
	case "expired":
		claims["sub"] = userID
		claims["exp"] = now.Add(-time.Hour).Unix()
		claims["iat"] = now.Add(-2 * time.Hour).Unix()
	case "legacy":
		// Older auth service builds put the id under userId
		claims["userId"] = userID
		claims["exp"] = now.Add(time.Hour).Unix()
	default:
		fmt.Fprintf(os.Stderr, "Unknown token type: %s\n", tokenType)
		os.Exit(1)
	}

	// The gateway never checks signatures, so any key will do locally
	secret := os.Getenv("DEV_JWT_SECRET")
	if secret == "" {
		secret = "local-dev-secret"
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(signed)
}
