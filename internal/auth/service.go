package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/meridian-his/meridian/internal/shared"
)

// RoleDirectory resolves current role membership. Implemented by the RBAC
// resolver; consulted at login and again at refresh so rotated tokens carry a
// fresh role snapshot.
type RoleDirectory interface {
	RoleCodesForUser(ctx context.Context, userID int64) ([]string, error)
}

// AuditSink is the append-only audit collaborator. The core records events
// but does not own their storage.
type AuditSink interface {
	Record(ctx context.Context, entry shared.AuditEntry) error
}

// Origin describes where a request came from, for audit purposes.
type Origin struct {
	Channel string
	IP      string
}

// MetricsRecorder counts authentication outcomes. Implemented by
// observability.Metrics; a nil recorder is a no-op.
type MetricsRecorder interface {
	ObserveLogin(outcome string)
	ObserveLockout()
}

// Service wraps the credential, lockout and token rules behind the login,
// refresh, logout and password-change flows.
type Service struct {
	repo    Repository
	tokens  *TokenService
	lockout LockoutPolicy
	roles   RoleDirectory
	audit   AuditSink
	logger  *slog.Logger
	metrics MetricsRecorder
	now     func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, tokens *TokenService, lockout LockoutPolicy, roles RoleDirectory, audit AuditSink, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		tokens:  tokens,
		lockout: lockout,
		roles:   roles,
		audit:   audit,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithMetrics attaches an authentication metrics recorder.
func (s *Service) WithMetrics(metrics MetricsRecorder) *Service {
	s.metrics = metrics
	return s
}

// Login authenticates a username/password pair and issues a token pair. The
// lockout gate runs before any password verification; wrong passwords and
// unknown usernames are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, username, password string, origin Origin) (*TokenPair, *Profile, error) {
	username = normalizeUsername(username)

	cred, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return nil, nil, shared.ErrInvalidCredentials
	}
	if !cred.IsActive {
		return nil, nil, shared.ErrInvalidCredentials
	}

	now := s.now()
	if err := s.lockout.Check(cred, now); err != nil {
		s.observeLogin("locked")
		return nil, nil, err
	}

	if !VerifyPassword(password, cred.PasswordHash) {
		attempts, lockedUntil := s.lockout.OnFailure(cred, now)
		if err := s.repo.RecordFailure(ctx, cred.ID, attempts, lockedUntil); err != nil {
			s.logger.Warn("record login failure", slog.Int64("credential_id", cred.ID), slog.Any("error", err))
		}
		if lockedUntil != nil && s.metrics != nil {
			s.metrics.ObserveLockout()
		}
		s.observeLogin("invalid")
		return nil, nil, shared.ErrInvalidCredentials
	}

	pair, profile, err := s.issueFor(ctx, cred)
	if err != nil {
		return nil, nil, err
	}
	if err := s.repo.RecordSuccess(ctx, cred.ID, now, pair.RefreshToken); err != nil {
		return nil, nil, fmt.Errorf("auth: record login: %w", err)
	}

	s.recordAudit(ctx, cred, "auth.login", "signed in", origin)
	s.observeLogin("success")
	return pair, profile, nil
}

func (s *Service) observeLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveLogin(outcome)
	}
}

// Refresh rotates a refresh token into a brand-new pair. The presented token
// must verify cryptographically and byte-for-byte match the stored slot; that
// one check catches expiry and already-superseded rotations alike.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.Verify(refreshToken, KindRefresh)
	if err != nil {
		return nil, shared.ErrTokenInvalid
	}

	cred, err := s.repo.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, shared.ErrRefreshRevoked
	}
	if !cred.IsActive {
		return nil, shared.ErrRefreshRevoked
	}
	if cred.RefreshToken == nil || *cred.RefreshToken != refreshToken {
		return nil, shared.ErrRefreshRevoked
	}

	pair, _, err := s.issueFor(ctx, cred)
	if err != nil {
		return nil, err
	}
	if err := s.repo.StoreRefreshToken(ctx, cred.ID, pair.RefreshToken); err != nil {
		return nil, fmt.Errorf("auth: rotate refresh token: %w", err)
	}
	return pair, nil
}

// Logout clears the stored refresh token, making the previously issued one
// permanently unusable. Idempotent.
func (s *Service) Logout(ctx context.Context, access *shared.AccessContext, origin Origin) error {
	if access == nil {
		return shared.ErrTokenInvalid
	}
	if err := s.repo.ClearRefreshToken(ctx, access.UserID); err != nil {
		return fmt.Errorf("auth: clear refresh token: %w", err)
	}
	s.recordAuditByID(ctx, access.UserID, access.Username, "auth.logout", "signed out", origin)
	return nil
}

// ChangePassword verifies the current secret, stores a new hash and clears
// the refresh token slot, forcing re-login on every device.
func (s *Service) ChangePassword(ctx context.Context, access *shared.AccessContext, current, next string, origin Origin) error {
	if access == nil {
		return shared.ErrTokenInvalid
	}
	if len(next) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", shared.ErrValidation)
	}

	cred, err := s.repo.FindByID(ctx, access.UserID)
	if err != nil {
		return shared.ErrInvalidCredentials
	}
	if !VerifyPassword(current, cred.PasswordHash) {
		return shared.ErrInvalidCredentials
	}

	hash, err := HashPassword(next)
	if err != nil {
		return fmt.Errorf("auth: hash password: %w", err)
	}
	if err := s.repo.UpdatePassword(ctx, cred.ID, hash); err != nil {
		return fmt.Errorf("auth: update password: %w", err)
	}

	s.recordAudit(ctx, cred, "auth.password_change", "changed password", origin)
	return nil
}

// Introspect returns the staff profile for the authenticated session.
func (s *Service) Introspect(ctx context.Context, access *shared.AccessContext) (*Profile, error) {
	if access == nil {
		return nil, shared.ErrTokenInvalid
	}
	return s.repo.FindProfile(ctx, access.StaffID)
}

// issueFor reads the user's current roles and department and signs a pair.
func (s *Service) issueFor(ctx context.Context, cred *Credential) (*TokenPair, *Profile, error) {
	roles, err := s.roles.RoleCodesForUser(ctx, cred.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("auth: resolve roles: %w", err)
	}

	profile, err := s.repo.FindProfile(ctx, cred.StaffID)
	if err != nil {
		// A credential without a staff profile can still sign in; the
		// profile summary is just empty.
		profile = &Profile{StaffID: cred.StaffID}
	}

	pair, err := s.tokens.IssuePair(cred.ID, cred.StaffID, cred.Username, roles, profile.DepartmentID)
	if err != nil {
		return nil, nil, fmt.Errorf("auth: issue tokens: %w", err)
	}
	return &pair, profile, nil
}

func (s *Service) recordAudit(ctx context.Context, cred *Credential, action, detail string, origin Origin) {
	s.recordAuditByID(ctx, cred.ID, cred.Username, action, detail, origin)
}

func (s *Service) recordAuditByID(ctx context.Context, userID int64, username, action, detail string, origin Origin) {
	if s.audit == nil {
		return
	}
	entry := shared.AuditEntry{
		OperatorID:   userID,
		OperatorName: username,
		Action:       action,
		ResourceType: shared.ResourceCredentials,
		ResourceID:   strconv.FormatInt(userID, 10),
		Detail:       detail,
		Channel:      origin.Channel,
		OriginIP:     origin.IP,
		At:           s.now(),
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("record audit entry", slog.String("action", action), slog.Any("error", err))
	}
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(username)))
}
