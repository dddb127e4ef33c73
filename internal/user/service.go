// Package user はアカウント登録とログインのドメインロジックを提供する。
// 認証結果の判定のみを行い、セッションやトークンは発行しない。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/insighthub/internal/metrics"
	"github.com/hitoshi/insighthub/internal/model"
	"github.com/hitoshi/insighthub/internal/repository"
)

// Hasher はパスワードの一方向ハッシュ化と照合を行う。
// ハッシュ文字列は不透明な値として扱う。
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hashed string) bool
}

// OutcomeRecorder はアカウント操作の結果を記録する。
type OutcomeRecorder interface {
	RecordAccountOutcome(op, outcome string)
}

// Service はアカウント管理のサービス層。
type Service struct {
	userRepo repository.UserRepository
	hasher   Hasher
	recorder OutcomeRecorder
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// recorderがnilの場合は記録しない。
func NewService(userRepo repository.UserRepository, hasher Hasher, recorder OutcomeRecorder) *Service {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Service{
		userRepo: userRepo,
		hasher:   hasher,
		recorder: recorder,
		now:      time.Now,
	}
}

// Register は新規ユーザーを登録する。
// usernameが既に存在する場合はDUPLICATE_USERのAPIErrorを返し、既存ユーザーは変更しない。
func (s *Service) Register(ctx context.Context, username, password string) error {
	if err := validateCredentials(username, password); err != nil {
		s.recorder.RecordAccountOutcome(metrics.OpRegister, metrics.OutcomeInvalid)
		return err
	}

	existing, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		s.recorder.RecordAccountOutcome(metrics.OpRegister, metrics.OutcomeError)
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if existing != nil {
		s.recorder.RecordAccountOutcome(metrics.OpRegister, metrics.OutcomeDuplicate)
		slog.Info("登録を拒否しました（ユーザー名重複）", slog.String("username", username))
		return model.NewDuplicateUserError()
	}

	hashed, err := s.hasher.Hash(password)
	if err != nil {
		s.recorder.RecordAccountOutcome(metrics.OpRegister, metrics.OutcomeError)
		return fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	user := &model.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: hashed,
		CreatedAt:    s.now(),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		// 存在確認とINSERTの間に同名ユーザーが登録された場合
		if errors.Is(err, repository.ErrDuplicateUsername) {
			s.recorder.RecordAccountOutcome(metrics.OpRegister, metrics.OutcomeDuplicate)
			return model.NewDuplicateUserError()
		}
		s.recorder.RecordAccountOutcome(metrics.OpRegister, metrics.OutcomeError)
		return fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	s.recorder.RecordAccountOutcome(metrics.OpRegister, metrics.OutcomeSuccess)
	slog.Info("ユーザーを登録しました",
		slog.String("user_id", user.ID),
		slog.String("username", username),
	)
	return nil
}

// Login は資格情報を検証する。
// ユーザー不在とパスワード不一致は区別せず、どちらもINVALID_CREDENTIALSを返す。
func (s *Service) Login(ctx context.Context, username, password string) error {
	if err := validateCredentials(username, password); err != nil {
		s.recorder.RecordAccountOutcome(metrics.OpLogin, metrics.OutcomeInvalid)
		return err
	}

	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		s.recorder.RecordAccountOutcome(metrics.OpLogin, metrics.OutcomeError)
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil || !s.hasher.Verify(password, user.PasswordHash) {
		s.recorder.RecordAccountOutcome(metrics.OpLogin, metrics.OutcomeInvalid)
		slog.Info("ログインに失敗しました", slog.String("username", username))
		return model.NewInvalidCredentialsError()
	}

	s.recorder.RecordAccountOutcome(metrics.OpLogin, metrics.OutcomeSuccess)
	slog.Info("ログインしました", slog.String("user_id", user.ID))
	return nil
}

func validateCredentials(username, password string) error {
	if strings.TrimSpace(username) == "" || password == "" {
		return model.NewInvalidRequestError("Username and password are required")
	}
	return nil
}
