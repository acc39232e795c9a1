package application

import (
	"context"
	"log/slog"

	"github.com/ventas-png/control-consumo-agua/internal/domain"
	"github.com/ventas-png/control-consumo-agua/internal/ports"
)

// Authorize decides whether the session behind the token may perform the
// capability. Validation runs first: an expired or invalid session is denied
// with its session error before any capability logic. The decision uses the
// role snapshotted at issuance, and every denial lands in the ledger with the
// capability that was asked for.
func (s *Service) Authorize(ctx context.Context, token string, capability domain.Capability) (ports.AuthClaims, error) {
	claims, err := s.ValidateToken(ctx, token)
	if err != nil {
		return ports.AuthClaims{}, err
	}

	role, roleErr := domain.ParseRole(claims.Role)
	if roleErr != nil || !role.Allows(capability) {
		if err := s.appendEvent(ctx, domain.EventAuthzDenied, &claims.UserID, claims.Email, "", map[string]any{
			"capability": string(capability),
			"role":       claims.Role,
		}); err != nil {
			return ports.AuthClaims{}, err
		}
		slog.Default().WarnContext(ctx, "authorization denied",
			"service", "control-consumo-agua-auth",
			"module", "application",
			"layer", "application",
			"operation", "authorize",
			"outcome", "denied",
			"user_id", claims.UserID,
			"role", claims.Role,
			"capability", string(capability),
		)
		return ports.AuthClaims{}, domain.ErrAuthorizationDenied
	}

	return claims, nil
}
