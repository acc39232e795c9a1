package application

import (
	"sync"
	"time"

	"github.com/ventas-png/control-consumo-agua/internal/ports"
)

type Service struct {
	cfg            Config
	users          ports.UserRepository
	sessions       ports.SessionRepository
	loginAttempts  ports.LoginAttemptRepository
	securityEvents ports.SecurityEventRepository
	revocations    ports.SessionRevocationStore
	hasher         ports.PasswordHasher
	tokenSigner    ports.TokenSigner
	nowFn          func() time.Time

	sentinelOnce sync.Once
	sentinelHash string
}

type Dependencies struct {
	Config         Config
	Users          ports.UserRepository
	Sessions       ports.SessionRepository
	LoginAttempts  ports.LoginAttemptRepository
	SecurityEvents ports.SecurityEventRepository
	Revocations    ports.SessionRevocationStore
	Hasher         ports.PasswordHasher
	TokenSigner    ports.TokenSigner
	// Clock overrides the service clock. Leave nil outside tests.
	Clock func() time.Time
}

func NewService(deps Dependencies) *Service {
	nowFn := deps.Clock
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		cfg:            deps.Config,
		users:          deps.Users,
		sessions:       deps.Sessions,
		loginAttempts:  deps.LoginAttempts,
		securityEvents: deps.SecurityEvents,
		revocations:    deps.Revocations,
		hasher:         deps.Hasher,
		tokenSigner:    deps.TokenSigner,
		nowFn:          nowFn,
	}
}

// PublicJWKs returns active public keys for downstream token verification.
func (s *Service) PublicJWKs() ([]map[string]any, error) {
	return s.tokenSigner.PublicJWKs()
}
