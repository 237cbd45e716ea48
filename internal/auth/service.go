// Package auth はJWTによる認証とスタッフユーザーの管理を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/sitepress/internal/model"
	"github.com/hitoshi/sitepress/internal/repository"
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int
}

// LoginResult はログイン成功時に返すトークンとユーザー。
type LoginResult struct {
	Token string
	User  *model.User
}

// RegisterInput はユーザー登録の入力。
type RegisterInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}

// ProfileInput はプロフィール更新の入力。nilの項目は変更しない。
type ProfileInput struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Avatar    *string `json:"avatar"`
	Bio       *string `json:"bio"`
}

// ChangePasswordInput はパスワード変更の入力。
type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// UserUpdateInput は管理者によるユーザー更新の入力。nilの項目は変更しない。
type UserUpdateInput struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Role      *string `json:"role"`
	IsActive  *bool   `json:"isActive"`
}

// Service は認証とユーザー管理に関するビジネスロジックを提供する。
type Service struct {
	users  repository.UserRepository
	hasher *PasswordHasher
	tokens *TokenIssuer
	now    func() time.Time

	onLoginFailure func()

	dummyOnce sync.Once
	dummyHash string
}

// NewService はServiceを生成する。
func NewService(users repository.UserRepository, cfg ServiceConfig) *Service {
	return &Service{
		users:  users,
		hasher: NewPasswordHasher(cfg.BcryptCost),
		tokens: NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL),
		now:    time.Now,
	}
}

// OnLoginFailure はログイン失敗時に呼ばれるフックを設定する。
func (s *Service) OnLoginFailure(fn func()) {
	s.onLoginFailure = fn
}

// VerifyToken はBearerトークンを検証し、リクエスト主体を返す。
// ユーザーが存在し有効であることも確認し、ロールはユーザーレコードから取得する。
func (s *Service) VerifyToken(ctx context.Context, token string) (*model.Identity, error) {
	if token == "" {
		return nil, model.NewUnauthorizedError()
	}

	claims, err := s.tokens.Parse(token)
	if err != nil {
		slog.Debug("token rejected", slog.String("error", err.Error()))
		return nil, model.NewUnauthorizedError()
	}

	user, err := s.users.FindByID(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewUnauthorizedError()
		}
		return nil, fmt.Errorf("failed to load token user: %w", err)
	}
	if !user.IsActive {
		return nil, model.NewUnauthorizedError()
	}

	return &model.Identity{UserID: user.ID, Email: user.Email, Role: user.Role}, nil
}

// Login はメールアドレスとパスワードで認証し、トークンを発行する。
// メールアドレス未登録、無効化済み、パスワード不一致はすべて同じエラーを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = normalizeEmail(email)

	var fields []model.FieldError
	if email == "" {
		fields = append(fields, model.FieldError{Field: "email", Message: "is required"})
	}
	if password == "" {
		fields = append(fields, model.FieldError{Field: "password", Message: "is required"})
	}
	if len(fields) > 0 {
		return nil, model.NewValidationError("", fields...)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// 応答時間でメールアドレスの存在が判別されないようにハッシュ照合を行う
			s.hasher.Compare(s.dummyPasswordHash(), password)
			return nil, s.loginFailed("unknown_email")
		}
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}

	if !s.hasher.Compare(user.PasswordHash, password) {
		return nil, s.loginFailed("password_mismatch")
	}
	if !user.IsActive {
		return nil, s.loginFailed("inactive")
	}

	now := s.now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("failed to record last login: %w", err)
	}
	user.LastLoginAt = &now

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))
	return &LoginResult{Token: token, User: user}, nil
}

// Register はスタッフユーザーを登録する。ロール未指定時はeditorになる。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Email = normalizeEmail(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if in.Role == "" {
		in.Role = model.RoleEditor
	}

	var fields []model.FieldError
	if !validEmail(in.Email) {
		fields = append(fields, model.FieldError{Field: "email", Message: "must be a valid email address"})
	}
	if len(in.Password) < MinPasswordLength {
		fields = append(fields, model.FieldError{Field: "password", Message: fmt.Sprintf("must be at least %d characters", MinPasswordLength)})
	}
	if in.FirstName == "" {
		fields = append(fields, model.FieldError{Field: "firstName", Message: "is required"})
	}
	if in.LastName == "" {
		fields = append(fields, model.FieldError{Field: "lastName", Message: "is required"})
	}
	if !model.ValidRole(in.Role) {
		fields = append(fields, model.FieldError{Field: "role", Message: "must be admin or editor"})
	}
	if len(fields) > 0 {
		return nil, model.NewValidationError("", fields...)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := &model.User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Role:         in.Role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, model.NewEmailTakenError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("role", user.Role),
	)
	return user, nil
}

// EnsureUser は同じメールアドレスのユーザーが存在しなければ登録する。
// 作成した場合はtrueを返す。
func (s *Service) EnsureUser(ctx context.Context, in RegisterInput) (bool, error) {
	_, err := s.users.FindByEmail(ctx, normalizeEmail(in.Email))
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return false, fmt.Errorf("failed to find user by email: %w", err)
	}

	if _, err := s.Register(ctx, in); err != nil {
		return false, err
	}
	return true, nil
}

// Me は認証済みユーザー自身の情報を返す。
func (s *Service) Me(ctx context.Context, userID string) (*model.User, error) {
	return s.findUser(ctx, userID)
}

// UpdateProfile は自身の氏名・アバター・自己紹介を更新する。
func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*model.User, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var fields []model.FieldError
	if in.FirstName != nil {
		if v := strings.TrimSpace(*in.FirstName); v == "" {
			fields = append(fields, model.FieldError{Field: "firstName", Message: "must not be empty"})
		} else {
			user.FirstName = v
		}
	}
	if in.LastName != nil {
		if v := strings.TrimSpace(*in.LastName); v == "" {
			fields = append(fields, model.FieldError{Field: "lastName", Message: "must not be empty"})
		} else {
			user.LastName = v
		}
	}
	if len(fields) > 0 {
		return nil, model.NewValidationError("", fields...)
	}
	if in.Avatar != nil {
		user.Avatar = strings.TrimSpace(*in.Avatar)
	}
	if in.Bio != nil {
		user.Bio = *in.Bio
	}

	user.UpdatedAt = s.now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return user, nil
}

// ChangePassword は現在のパスワードを確認したうえで新しいパスワードに変更する。
func (s *Service) ChangePassword(ctx context.Context, userID string, in ChangePasswordInput) error {
	var fields []model.FieldError
	if in.CurrentPassword == "" {
		fields = append(fields, model.FieldError{Field: "currentPassword", Message: "is required"})
	}
	if len(in.NewPassword) < MinPasswordLength {
		fields = append(fields, model.FieldError{Field: "newPassword", Message: fmt.Sprintf("must be at least %d characters", MinPasswordLength)})
	}
	if len(fields) > 0 {
		return model.NewValidationError("", fields...)
	}

	user, err := s.findUser(ctx, userID)
	if err != nil {
		return err
	}
	if !s.hasher.Compare(user.PasswordHash, in.CurrentPassword) {
		return model.NewValidationError("Current password is incorrect",
			model.FieldError{Field: "currentPassword", Message: "is incorrect"})
	}

	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.UpdatedAt = s.now().UTC()

	if err := s.users.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	slog.Info("password changed", slog.String("user_id", user.ID))
	return nil
}

// ListUsers は全ユーザーを返す。
func (s *Service) ListUsers(ctx context.Context) ([]*model.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// UpdateUser は管理者がユーザーの氏名・ロール・有効フラグを更新する。
// 自分自身の無効化と降格は許可しない。
func (s *Service) UpdateUser(ctx context.Context, actor *model.Identity, id string, in UserUpdateInput) (*model.User, error) {
	if !actor.HasRole(model.RoleAdmin) {
		return nil, model.NewForbiddenError()
	}

	user, err := s.findUser(ctx, id)
	if err != nil {
		return nil, err
	}

	var fields []model.FieldError
	if in.FirstName != nil {
		if v := strings.TrimSpace(*in.FirstName); v == "" {
			fields = append(fields, model.FieldError{Field: "firstName", Message: "must not be empty"})
		} else {
			user.FirstName = v
		}
	}
	if in.LastName != nil {
		if v := strings.TrimSpace(*in.LastName); v == "" {
			fields = append(fields, model.FieldError{Field: "lastName", Message: "must not be empty"})
		} else {
			user.LastName = v
		}
	}
	if in.Role != nil {
		if !model.ValidRole(*in.Role) {
			fields = append(fields, model.FieldError{Field: "role", Message: "must be admin or editor"})
		} else {
			user.Role = *in.Role
		}
	}
	if in.IsActive != nil {
		user.IsActive = *in.IsActive
	}
	if len(fields) > 0 {
		return nil, model.NewValidationError("", fields...)
	}

	if user.ID == actor.UserID && (!user.IsActive || user.Role != model.RoleAdmin) {
		return nil, model.NewForbiddenError()
	}

	user.UpdatedAt = s.now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	slog.Info("user updated by admin",
		slog.String("user_id", user.ID),
		slog.String("actor_id", actor.UserID),
	)
	return user, nil
}

// DeleteUser は管理者がユーザーを削除する。自分自身は削除できない。
func (s *Service) DeleteUser(ctx context.Context, actor *model.Identity, id string) error {
	if !actor.HasRole(model.RoleAdmin) {
		return model.NewForbiddenError()
	}
	if id == actor.UserID {
		return model.NewForbiddenError()
	}

	if err := s.users.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewNotFoundError("User")
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}

	slog.Info("user deleted",
		slog.String("user_id", id),
		slog.String("actor_id", actor.UserID),
	)
	return nil
}

func (s *Service) findUser(ctx context.Context, id string) (*model.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewNotFoundError("User")
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

func (s *Service) loginFailed(reason string) error {
	slog.Warn("login failed", slog.String("reason", reason))
	if s.onLoginFailure != nil {
		s.onLoginFailure()
	}
	return model.NewInvalidCredentialsError()
}

// dummyPasswordHash は未登録メールアドレスの照合に使うハッシュを返す。
func (s *Service) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(uuid.NewString())
		if err != nil {
			slog.Error("failed to prepare dummy password hash", slog.String("error", err.Error()))
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
