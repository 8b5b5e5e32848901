package service

import (
	"context"
	"net/mail"
	"regexp"
	"strings"

	"murmur/internal/models"
	"murmur/internal/repository"

	"golang.org/x/crypto/bcrypt"
)

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,30}$`)

const (
	minPasswordLength = 8
	maxBioLength      = 500
	maxNameLength     = 100
)

type UserService struct {
	userRepo   repository.UserRepository
	bcryptCost int
}

// RegisterInput is a new account.
type RegisterInput struct {
	Name      string
	Email     string
	Handle    string
	Password  string
	Bio       string
	AvatarURL string
}

func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo, bcryptCost: bcrypt.DefaultCost}
}

// Register validates the input, hashes the password and stores the user. Handles
// and emails are stored lowercased so mentions and lookups are case-insensitive.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if name == "" || email == "" || in.Password == "" {
		return nil, models.NewValidationError("Name, email, and password are required")
	}
	if len(name) > maxNameLength {
		return nil, models.NewValidationError("Name too long (max 100 characters)")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, models.NewValidationError("Invalid email address")
	}
	if len(in.Password) < minPasswordLength {
		return nil, models.NewValidationError("Password must be at least 8 characters")
	}
	if len(in.Bio) > maxBioLength {
		return nil, models.NewValidationError("Bio too long (max 500 characters)")
	}

	var handle *string
	if h := strings.TrimPrefix(strings.TrimSpace(in.Handle), "@"); h != "" {
		if !handlePattern.MatchString(h) {
			return nil, models.NewValidationError("Handle may contain only letters, digits and underscores (max 30)")
		}
		h = strings.ToLower(h)
		handle = &h
	}

	if _, err := s.userRepo.GetByEmail(ctx, email); err == nil {
		return nil, models.NewConflictError("A user with that email already exists")
	} else if !models.HasCode(err, models.CodeNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	user := &models.User{
		Name:         name,
		Email:        email,
		Handle:       handle,
		Bio:          in.Bio,
		AvatarURL:    in.AvatarURL,
		PasswordHash: string(hash),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	return s.userRepo.List(ctx, limit, offset)
}
