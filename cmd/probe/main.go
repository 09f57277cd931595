package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/lumanagi/lumanagi-auth/internal/client"
)

// probe walks a full session lifecycle against a running server:
// register, fetch /me, rotate the refresh token, fetch /me again with
// the rotated pair, and log out.
func main() {
	apiURL := "http://localhost:8080"
	if envURL := os.Getenv("API_URL"); envURL != "" {
		apiURL = envURL
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	c := client.New(apiURL)
	email := fmt.Sprintf("probe_%s@lumanagi.com", uuid.New().String()[:8])

	result, err := c.Register(ctx, email, "probe-password-123", "Probe User")
	if err != nil {
		fail("register", err)
	}
	fmt.Printf("registered %s (id=%s role=%s)\n", result.User.Email, result.User.ID, result.User.Role)

	me, err := c.Me(ctx)
	if err != nil {
		fail("me", err)
	}
	fmt.Printf("me: %s\n", me.Email)

	// Force a rotation by discarding the access token; the next call
	// must recover via refresh.
	_, refresh := c.Tokens()
	c.SetTokens("expired-access-token", refresh)

	me, err = c.Me(ctx)
	if err != nil {
		fail("me after forced refresh", err)
	}
	fmt.Printf("me after refresh: %s\n", me.Email)

	if err := c.Logout(ctx); err != nil {
		fail("logout", err)
	}
	fmt.Println("logged out")

	if _, err := c.Me(ctx); err == nil {
		fail("post-logout me", fmt.Errorf("expected session to be gone"))
	}
	fmt.Println("session correctly rejected after logout")
}

func fail(step string, err error) {
	fmt.Fprintf(os.Stderr, "probe failed at %s: %v\n", step, err)
	os.Exit(1)
}
