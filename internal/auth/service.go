package auth

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"investment-backoffice/internal/database"
	"investment-backoffice/internal/logging"
)

// BcryptCost is the bcrypt cost used for all password hashing
const BcryptCost = 12

// Service provides authentication and account management
type Service struct {
	repo   *database.Repository
	jwt    *JWTManager
	config Config
	logger *logging.Logger
}

// NewService creates a new authentication service
func NewService(repo *database.Repository, jwtManager *JWTManager, cfg Config) *Service {
	return &Service{
		repo:   repo,
		jwt:    jwtManager,
		config: cfg,
		logger: logging.WithComponent("auth"),
	}
}

// HashPassword hashes a plaintext password with bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword verifies a plaintext password against a bcrypt hash
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func toUserResponse(user *database.User) UserResponse {
	return UserResponse{
		ID:             user.ID,
		Email:          user.Email,
		Name:           user.Name,
		Role:           string(user.Role),
		AccountBalance: user.AccountBalance,
		TotalDeposited: user.TotalDeposited,
		TotalWithdrawn: user.TotalWithdrawn,
		TotalEarnings:  user.TotalEarnings,
		IsActive:       user.IsActive,
		CreatedAt:      user.CreatedAt,
	}
}

func claimsFor(user *database.User) UserClaims {
	return UserClaims{
		UserID:  user.ID,
		Email:   user.Email,
		Role:    string(user.Role),
		IsAdmin: user.IsAdmin(),
	}
}

// Login authenticates a user and returns a token pair
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}
	if !CheckPassword(user.PasswordHash, req.Password) {
		s.logger.Warn("failed login attempt", "email", req.Email)
		return nil, ErrInvalidCredentials
	}

	pair, err := s.jwt.GenerateTokenPair(claimsFor(user))
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	s.logger.Info("user logged in", "user_id", user.ID)

	return &LoginResponse{
		User:         toUserResponse(user),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}, nil
}

// Refresh exchanges a valid refresh token for a new token pair
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	userID, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	pair, err := s.jwt.GenerateTokenPair(claimsFor(user))
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	return &RefreshResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}, nil
}

// GetMe returns the authenticated user's profile
func (s *Service) GetMe(ctx context.Context, userID string) (*UserResponse, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	resp := toUserResponse(user)
	return &resp, nil
}

// ChangePassword verifies the current password and sets a new one
func (s *Service) ChangePassword(ctx context.Context, userID string, req ChangePasswordRequest) error {
	if len(req.NewPassword) < s.config.MinPasswordLength {
		return ErrWeakPassword
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return ErrUserNotFound
	}

	if !CheckPassword(user.PasswordHash, req.CurrentPassword) {
		return ErrInvalidCredentials
	}

	hash, err := HashPassword(req.NewPassword)
	if err != nil {
		return err
	}

	if err := s.repo.UpdateUserPassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	s.logger.Info("password changed", "user_id", userID)
	return nil
}

// CreateUser creates a user account. There is no public self
// registration; only administrators call this.
func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (*database.User, error) {
	if len(req.Password) < s.config.MinPasswordLength {
		return nil, ErrWeakPassword
	}

	exists, err := s.repo.EmailExists(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return nil, ErrEmailExists
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	role := database.RoleUser
	if req.Role == string(database.RoleAdmin) {
		role = database.RoleAdmin
	}

	user := &database.User{
		Email:        req.Email,
		PasswordHash: hash,
		Name:         req.Name,
		Role:         role,
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user created", "user_id", user.ID, "role", string(role))
	return user, nil
}
