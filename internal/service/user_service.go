package service

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/d60-Lab/pulse/internal/model"
	"github.com/d60-Lab/pulse/internal/repository"
)

var (
	ErrUserExists         = errors.New("username or email already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// UserService 注册 / 登录 / 资料读取
type UserService interface {
	Register(ctx context.Context, username, email, password, fullName string) (*model.User, error)
	Login(ctx context.Context, username, password string) (token string, user *model.User, err error)
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
}

type userService struct {
	userRepo   repository.UserRepository
	jwtSecret  []byte
	expiration time.Duration
}

func NewUserService(userRepo repository.UserRepository, jwtSecret []byte, expiration time.Duration) UserService {
	return &userService{userRepo: userRepo, jwtSecret: jwtSecret, expiration: expiration}
}

func (s *userService) Register(ctx context.Context, username, email, password, fullName string) (*model.User, error) {
	if _, err := s.userRepo.GetByUsername(ctx, username); err == nil {
		return nil, ErrUserExists
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &model.User{
		Username: username,
		Email:    email,
		Password: string(hash),
		FullName: fullName,
	}
	if err := s.userRepo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *userService) Login(ctx context.Context, username, password string) (string, *model.User, error) {
	u, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return "", nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
		return "", nil, ErrInvalidCredentials
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": u.ID,
		"iat": now.Unix(),
		"exp": now.Add(s.expiration).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", nil, err
	}
	return token, u, nil
}

func (s *userService) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

func (s *userService) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.userRepo.GetByUsername(ctx, username)
}
