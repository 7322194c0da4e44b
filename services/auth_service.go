package services

import (
	"chat-relay/auth"
	apperrors "chat-relay/errors"
	"chat-relay/repositories"
	"errors"
	"fmt"
)

type IAuthService interface {
	Register(req auth.RegisterRequest) (string, error)
	Login(req auth.LoginRequest) (string, error)
}

// AuthService backs the REST register/login routes. The realtime core never
// calls it: identity is an external collaborator there.
type AuthService struct {
	users  repositories.IUserRepository
	issuer auth.TokenIssuer
}

func NewAuthService(users repositories.IUserRepository, issuer auth.TokenIssuer) *AuthService {
	return &AuthService{users: users, issuer: issuer}
}

// Register validates the request, hashes the password, and stores the account.
func (s *AuthService) Register(req auth.RegisterRequest) (string, error) {
	if err := auth.ValidateRegister(req); err != nil {
		return "", fmt.Errorf("invalid register request: %w", err)
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return "", err
	}
	return s.users.CreateUser(req.Email, req.Name, hash)
}

// Login verifies the credentials and issues a JWT. An unknown email and a
// wrong password return the same error so the response leaks nothing.
func (s *AuthService) Login(req auth.LoginRequest) (string, error) {
	if err := auth.ValidateLogin(req); err != nil {
		return "", fmt.Errorf("invalid login request: %w", err)
	}

	user, err := s.users.GetUserByEmail(req.Email)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return "", apperrors.ErrInvalidCredential
		}
		return "", err
	}

	ok, err := auth.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperrors.ErrInvalidCredential
	}
	return s.issuer.Generate(user.ID, user.Name)
}
