package notification

import (
	"github.com/smallbiznis/cabletrack/internal/config"
	"github.com/smallbiznis/cabletrack/internal/events"
	"github.com/smallbiznis/cabletrack/internal/notification/domain"
	"github.com/smallbiznis/cabletrack/internal/notification/repository"
	"github.com/smallbiznis/cabletrack/internal/notification/sender"
	"github.com/smallbiznis/cabletrack/internal/notification/service"
	ticketdomain "github.com/smallbiznis/cabletrack/internal/ticket/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification.service",
	fx.Provide(repository.Provide),
	fx.Provide(provideSMSSender),
	fx.Provide(provideEmailSender),
	fx.Provide(service.NewService),
	fx.Provide(func(s *service.Service) domain.Service { return s }),
	fx.Provide(func(s *service.Service) ticketdomain.NotificationPurger { return s }),
	fx.Invoke(func(s *service.Service, sub events.Subscriber) { s.Register(sub) }),
)

// Unconfigured channels resolve to nil and are skipped by the dispatcher.
func provideSMSSender(cfg config.Config, log *zap.Logger) domain.SMSSender {
	if !cfg.SMS.Enabled() {
		log.Info("sms channel not configured")
		return nil
	}
	return sender.WithSMSRetry(sender.NewTwilioSMSSender(cfg.SMS), sender.DefaultRetryPolicy())
}

func provideEmailSender(cfg config.Config, log *zap.Logger) domain.EmailSender {
	if !cfg.Email.Enabled() {
		log.Info("email channel not configured")
		return nil
	}
	return sender.WithEmailRetry(sender.NewSMTPEmailSender(cfg.Email), sender.DefaultRetryPolicy())
}
