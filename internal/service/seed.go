package service

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/lumanagi/lumanagi-auth/internal/domain"
	"github.com/lumanagi/lumanagi-auth/internal/repository"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

type usersFile struct {
	Users []struct {
		Email    string      `yaml:"email"`
		Password string      `yaml:"password"`
		FullName string      `yaml:"full_name"`
		Role     domain.Role `yaml:"role"`
	} `yaml:"users"`
}

// SeedUsers creates the accounts listed in a YAML file, skipping any
// email that already exists. Used to bootstrap demo and admin accounts
// in development.
func SeedUsers(ctx context.Context, userRepo repository.UserRepository, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var uf usersFile
	if err := yaml.Unmarshal(data, &uf); err != nil {
		return err
	}

	for _, u := range uf.Users {
		if u.Email == "" || u.Password == "" {
			continue
		}
		if !u.Role.IsValid() {
			return domain.ErrInvalidRole
		}

		if _, err := userRepo.GetByEmail(ctx, u.Email); err == nil {
			continue
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}

		user := &domain.User{
			ID:           uuid.New(),
			Email:        u.Email,
			PasswordHash: string(hash),
			FullName:     u.FullName,
			Role:         u.Role,
			CreatedAt:    time.Now(),
			UpdatedAt:    time.Now(),
		}
		if err := userRepo.Create(ctx, user); err != nil {
			return err
		}
	}

	return nil
}
