package postgres

import (
	"gorm.io/gorm"

	"github.com/ventas-png/control-consumo-agua/internal/ports"
)

type Repositories struct {
	Users          ports.UserRepository
	Sessions       ports.SessionRepository
	LoginAttempts  ports.LoginAttemptRepository
	SecurityEvents ports.SecurityEventRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Users:          &userRepository{db: db},
		Sessions:       &sessionRepository{db: db},
		LoginAttempts:  &loginAttemptRepository{db: db},
		SecurityEvents: &securityEventRepository{db: db},
	}
}
