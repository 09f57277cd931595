package service

import (
	"github.com/lumanagi/lumanagi-auth/internal/config"
	"github.com/lumanagi/lumanagi-auth/internal/repository"
)

type Services struct {
	Auth *AuthService
}

func NewServices(repos *repository.Repositories, verifier IdentityVerifier, cfg *config.Config) *Services {
	return &Services{
		Auth: NewAuthService(repos.User, repos.Registry, verifier, cfg),
	}
}
