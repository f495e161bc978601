package receiving

import (
	"github.com/smallbiznis/cabletrack/internal/receiving/repository"
	"github.com/smallbiznis/cabletrack/internal/receiving/service"
	"go.uber.org/fx"
)

var Module = fx.Module("receiving.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
