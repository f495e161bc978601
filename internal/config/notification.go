package config

import (
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// NotificationConfig holds the message templates rendered by the
// notification dispatcher. Templates use text/template syntax for SMS and
// subjects and html/template syntax for email bodies.
type NotificationConfig struct {
	TicketCreated MessageConfig `mapstructure:"ticketCreated"`
	StatusChanged MessageConfig `mapstructure:"statusChanged"`
}

type MessageConfig struct {
	SMSEnabled   bool   `mapstructure:"smsEnabled"`
	EmailEnabled bool   `mapstructure:"emailEnabled"`
	Subject      string `mapstructure:"subject"`
	SMSBody      string `mapstructure:"smsBody"`
	EmailBody    string `mapstructure:"emailBody"`
}

const defaultCreatedSMS = `Cable Request from {{.Creator}}:

{{range $i, $it := .Items}}Item {{inc $i}}: {{$it.CableType}} | {{$it.CableLength}} | Qty: {{$it.Quantity}}
{{end}}Location: {{or .Location "N/A"}}

Approve: {{.ApproveURL}}
Reject: {{.RejectURL}}`

const defaultCreatedEmail = `<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
  <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
    <h2 style="color: #2563eb;">New Cable Request</h2>
    <p><strong>From:</strong> {{.Creator}}</p>
    <div style="background-color: #f3f4f6; padding: 15px; border-radius: 5px;">
      {{range $i, $it := .Items}}<p><strong>Item {{inc $i}}:</strong> {{$it.CableType}} | {{$it.CableLength}} | Qty: {{$it.Quantity}}</p>{{end}}
      <p><strong>Location:</strong> {{or .Location "N/A"}}</p>
      <p><strong>Notes:</strong> {{or .Notes "None"}}</p>
    </div>
    <p>
      <a href="{{.ApproveURL}}">Approve</a>
      <a href="{{.RejectURL}}">Reject</a>
    </p>
    <p style="font-size: 12px; color: #666;">Ticket ID: #{{.TicketID}} | Created: {{.CreatedAt}}</p>
  </div>
</body>
</html>`

const defaultStatusSMS = `{{.Headline}}

Ticket #{{.TicketID}}
Type: {{.CableType}}
Length: {{.CableLength}}

View: {{.TicketURL}}`

const defaultStatusEmail = `<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
  <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
    <h2 style="color: #2563eb;">Ticket Update</h2>
    <p style="font-size: 18px; font-weight: bold;">{{.Headline}}</p>
    <div style="background-color: #f3f4f6; padding: 15px; border-radius: 5px;">
      <p><strong>Ticket ID:</strong> #{{.TicketID}}</p>
      <p><strong>Cable Type:</strong> {{.CableType}}</p>
      <p><strong>Length:</strong> {{.CableLength}}</p>
      <p><strong>Status:</strong> {{.StatusUpper}}</p>
      {{if .RejectionReason}}<p><strong>Rejection Reason:</strong> {{.RejectionReason}}</p>{{end}}
    </div>
    <p><a href="{{.TicketURL}}" style="color: #2563eb;">View Ticket Details</a></p>
  </div>
</body>
</html>`

func DefaultNotificationConfig() NotificationConfig {
	return NotificationConfig{
		TicketCreated: MessageConfig{
			SMSEnabled:   true,
			EmailEnabled: true,
			Subject:      "Cable Request #{{.TicketID}}",
			SMSBody:      defaultCreatedSMS,
			EmailBody:    defaultCreatedEmail,
		},
		StatusChanged: MessageConfig{
			SMSEnabled:   true,
			EmailEnabled: true,
			Subject:      "Ticket #{{.TicketID}} Update",
			SMSBody:      defaultStatusSMS,
			EmailBody:    defaultStatusEmail,
		},
	}
}

type NotificationConfigHolder struct {
	current atomic.Value // holds NotificationConfig
}

// NewStaticNotificationConfigHolder returns a holder that never reloads.
func NewStaticNotificationConfigHolder(cfg NotificationConfig) *NotificationConfigHolder {
	holder := &NotificationConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewNotificationConfigHolder(cfg Config, log *zap.Logger) (*NotificationConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.notifications")

	v := viper.New()
	path := strings.TrimSpace(cfg.NotificationConfigPath)
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		ext = "yml"
	}
	v.SetConfigName(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	v.SetConfigType(ext)
	v.AddConfigPath(filepath.Dir(path))
	v.AddConfigPath("/etc/cabletrack")

	defaults := DefaultNotificationConfig()
	setMessageDefaults(v, "notifications.ticketCreated", defaults.TicketCreated)
	setMessageDefaults(v, "notifications.statusChanged", defaults.StatusChanged)

	found := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		found = false
	}

	current, err := decodeNotificationConfig(v)
	if err != nil {
		return nil, err
	}
	if err := validateNotificationConfig(current); err != nil {
		return nil, err
	}

	holder := &NotificationConfigHolder{}
	holder.current.Store(current)

	if !found {
		log.Info("notification config file not found, using defaults", zap.String("path", path))
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeNotificationConfig(v)
		if err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := validateNotificationConfig(updated); err != nil {
			log.Warn("invalid config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *NotificationConfigHolder) Get() NotificationConfig {
	return h.current.Load().(NotificationConfig)
}

// decodeNotificationConfig goes through AllSettings so file values are
// merged with defaults key by key.
func decodeNotificationConfig(v *viper.Viper) (NotificationConfig, error) {
	var wrapper struct {
		Notifications NotificationConfig `mapstructure:"notifications"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return NotificationConfig{}, err
	}
	return wrapper.Notifications, nil
}

func setMessageDefaults(v *viper.Viper, prefix string, msg MessageConfig) {
	v.SetDefault(prefix+".smsEnabled", msg.SMSEnabled)
	v.SetDefault(prefix+".emailEnabled", msg.EmailEnabled)
	v.SetDefault(prefix+".subject", msg.Subject)
	v.SetDefault(prefix+".smsBody", msg.SMSBody)
	v.SetDefault(prefix+".emailBody", msg.EmailBody)
}

func validateNotificationConfig(cfg NotificationConfig) error {
	for name, msg := range map[string]MessageConfig{
		"ticketCreated": cfg.TicketCreated,
		"statusChanged": cfg.StatusChanged,
	} {
		if msg.SMSEnabled && strings.TrimSpace(msg.SMSBody) == "" {
			return errors.New("notifications." + name + ".smsBody cannot be empty")
		}
		if msg.EmailEnabled && (strings.TrimSpace(msg.EmailBody) == "" || strings.TrimSpace(msg.Subject) == "") {
			return errors.New("notifications." + name + " email subject and body are required")
		}
	}
	return nil
}
