package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/markdave123-py/Studya/internal/core"
	"github.com/markdave123-py/Studya/internal/core/aierr"
	"github.com/markdave123-py/Studya/internal/models"
)

type UserService struct {
	db core.DbClient
}

func NewUserService(db core.DbClient) *UserService {
	return &UserService{db: db}
}

func (s *UserService) Register(ctx context.Context, firstName, email, password string) (*models.User, error) {
	if email == "" || password == "" {
		return nil, errors.New("email and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &models.User{
		ID:           uuid.NewString(),
		FirstName:    firstName,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.db.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errors.New("invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, errors.New("invalid credentials")
	}
	return user, nil
}

func (s *UserService) CreateNotebook(ctx context.Context, userID, title string) (*models.Notebook, error) {
	if title == "" {
		return nil, aierr.Validation("notebook title is required")
	}
	now := time.Now()
	nb := &models.Notebook{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.CreateNotebook(ctx, nb); err != nil {
		return nil, err
	}
	return nb, nil
}

func (s *UserService) GetNotebook(ctx context.Context, userID, notebookID string) (*models.Notebook, error) {
	nb, err := s.db.GetNotebookByID(ctx, notebookID)
	if err != nil {
		return nil, err
	}
	if nb == nil {
		return nil, fmt.Errorf("%w: notebook %s", aierr.ErrNotFound, notebookID)
	}
	if nb.UserID != userID {
		return nil, fmt.Errorf("%w: notebook %s", aierr.ErrPermission, notebookID)
	}
	return nb, nil
}
