package auth

import (
	"github.com/smallbiznis/cabletrack/internal/auth/domain"
	"github.com/smallbiznis/cabletrack/internal/auth/repository"
	"github.com/smallbiznis/cabletrack/internal/auth/service"
	"github.com/smallbiznis/cabletrack/internal/auth/token"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.service",
	fx.Provide(repository.Provide),
	fx.Provide(token.NewService),
	fx.Provide(service.New),
	fx.Provide(func(svc domain.Service) domain.IdentityLookup { return svc }),
)
