package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/beanval/internal/core/domain"
	"github.com/atvirokodosprendimai/beanval/internal/core/ports"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("api key not scoped for document")
)

// AuthService guards document publishing. Only token hashes are stored.
type AuthService struct {
	repo ports.APIKeyRepository
}

func NewAuthService(repo ports.APIKeyRepository) *AuthService {
	return &AuthService{repo: repo}
}

func (s *AuthService) Authenticate(ctx context.Context, token string) (domain.APIKey, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.APIKey{}, ErrUnauthorized
	}

	apiKey, err := s.repo.FindByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.APIKey{}, ErrUnauthorized
		}
		return domain.APIKey{}, err
	}
	if !apiKey.Active {
		return domain.APIKey{}, ErrUnauthorized
	}
	return apiKey, nil
}

// Authorize checks that key may change the document name.
func (s *AuthService) Authorize(key domain.APIKey, name string) error {
	if !key.Allows(name) {
		return fmt.Errorf("%w: %s", ErrForbidden, name)
	}
	return nil
}

// Register stores an active key for token under name, replacing any key with
// the same token. documents limits the key to those document names; a
// trailing "*" matches by prefix.
func (s *AuthService) Register(ctx context.Context, name, token string, documents ...string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("api key token is empty")
	}
	if name == "" {
		name = "bootstrap"
	}
	var scopes []string
	for _, scope := range documents {
		scope = strings.TrimSpace(scope)
		if scope == "" {
			continue
		}
		if prefix, ok := strings.CutSuffix(scope, "*"); !ok || prefix != "" {
			if err := domain.ValidateName(prefix); err != nil {
				return fmt.Errorf("api key scope %q: %w", scope, err)
			}
		}
		scopes = append(scopes, scope)
	}
	err := s.repo.Upsert(ctx, domain.APIKey{
		TokenHash: HashToken(token),
		Name:      name,
		Active:    true,
		Documents: scopes,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("register api key: %w", err)
	}
	return nil
}

func HashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}
