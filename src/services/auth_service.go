package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"horizon-server/src/models"
	"horizon-server/src/payments"
	"horizon-server/src/util"
)

type AuthService struct {
	users    UserStore
	payments Payments
	secret   []byte
	ttl      time.Duration
	logger   *zap.Logger
}

func NewAuthService(users UserStore, payments Payments, secret string, ttl time.Duration, logger *zap.Logger) *AuthService {
	return &AuthService{users: users, payments: payments, secret: []byte(secret), ttl: ttl, logger: logger}
}

// Register creates the payments customer first so a user row never exists
// without one.
func (s *AuthService) Register(ctx context.Context, req *models.RegisterRequest) (*models.AuthResponse, error) {
	ctx, span := tracer.Start(ctx, "AuthService.Register")
	defer span.End()

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := util.ValidateRegistration(req); err != nil {
		return nil, err
	}

	_, err := s.users.GetByEmail(ctx, req.Email)
	if err == nil {
		return nil, &models.ErrConflict{Message: "email already registered"}
	}
	var nf *models.ErrNotFound
	if !errors.As(err, &nf) {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	customerURL, err := s.payments.CreateCustomer(ctx, req)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:               req.Email,
		FirstName:           req.FirstName,
		LastName:            req.LastName,
		PasswordHash:        hashedPassword,
		PaymentsCustomerID:  payments.CustomerIDFromURL(customerURL),
		PaymentsCustomerURL: customerURL,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", zap.Int64("user_id", user.ID))
	return s.respond(user)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	ctx, span := tracer.Start(ctx, "AuthService.Login")
	defer span.End()

	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		var nf *models.ErrNotFound
		if errors.As(err, &nf) {
			return nil, &models.ErrUnauthorized{Message: "invalid credentials"}
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		s.logger.Warn("invalid password attempt", zap.Int64("user_id", user.ID))
		return nil, &models.ErrUnauthorized{Message: "invalid credentials"}
	}

	return s.respond(user)
}

func (s *AuthService) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	return s.users.GetByID(ctx, userID)
}

func (s *AuthService) respond(user *models.User) (*models.AuthResponse, error) {
	token, err := util.IssueToken(s.secret, user.ID, user.Email, s.ttl)
	if err != nil {
		return nil, err
	}
	return &models.AuthResponse{Token: token, User: user}, nil
}
