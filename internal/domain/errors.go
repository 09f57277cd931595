package domain

import "errors"

// Authentication errors
var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrEmailExists         = errors.New("user already exists")
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrInvalidIDToken      = errors.New("invalid identity token")
	ErrFederatedLoginOff   = errors.New("federated login not configured")
	ErrInvalidRole         = errors.New("invalid role")
)
