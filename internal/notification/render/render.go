package render

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/smallbiznis/cabletrack/internal/config"
	ledgerdomain "github.com/smallbiznis/cabletrack/internal/ledger/domain"
	ticketdomain "github.com/smallbiznis/cabletrack/internal/ticket/domain"
)

var funcs = map[string]any{
	"inc": func(i int) int { return i + 1 },
}

// Message is one rendered notification, ready for every channel.
type Message struct {
	Subject   string
	SMS       string
	EmailHTML string
}

type CreatedData struct {
	TicketID   int64
	Creator    string
	Items      []ledgerdomain.Item
	Location   string
	Notes      string
	ApproveURL string
	RejectURL  string
	CreatedAt  string
}

type StatusData struct {
	TicketID        int64
	Headline        string
	CableType       string
	CableLength     string
	Status          string
	StatusUpper     string
	RejectionReason string
	TicketURL       string
}

var headlines = map[ticketdomain.Status]string{
	ticketdomain.StatusApproved:  "Your cable request has been APPROVED!",
	ticketdomain.StatusRejected:  "Your cable request has been REJECTED",
	ticketdomain.StatusFulfilled: "Your cable request has been FULFILLED",
}

// NewCreatedData builds the template data for a new ticket. Approval links
// point at the frontend, which calls the token endpoints.
func NewCreatedData(appURL string, t ticketdomain.Ticket, creator string) CreatedData {
	base := strings.TrimRight(appURL, "/")
	return CreatedData{
		TicketID:   t.ID,
		Creator:    creator,
		Items:      t.Items,
		Location:   deref(t.Location),
		Notes:      deref(t.Notes),
		ApproveURL: fmt.Sprintf("%s/tickets/%d/approve/%s", base, t.ID, t.ApprovalToken),
		RejectURL:  fmt.Sprintf("%s/tickets/%d/reject/%s", base, t.ID, t.ApprovalToken),
		CreatedAt:  FormatTime(t.CreatedAt),
	}
}

// NewStatusData reports ok=false for statuses that do not notify.
func NewStatusData(appURL string, t ticketdomain.Ticket, status ticketdomain.Status) (StatusData, bool) {
	headline, ok := headlines[status]
	if !ok {
		return StatusData{}, false
	}
	cableType, cableLength := "N/A", "N/A"
	if len(t.Items) > 0 {
		cableType = t.Items[0].CableType
		cableLength = t.Items[0].CableLength
	}
	return StatusData{
		TicketID:        t.ID,
		Headline:        headline,
		CableType:       cableType,
		CableLength:     cableLength,
		Status:          string(status),
		StatusUpper:     strings.ToUpper(string(status)),
		RejectionReason: deref(t.RejectionReason),
		TicketURL:       fmt.Sprintf("%s/tickets/%d", strings.TrimRight(appURL, "/"), t.ID),
	}, true
}

// Render executes the subject and SMS body as text templates and the email
// body as an HTML template. Disabled channels are left empty.
func Render(cfg config.MessageConfig, data any) (Message, error) {
	var msg Message
	var err error

	if cfg.SMSEnabled {
		if msg.SMS, err = renderText("sms", cfg.SMSBody, data); err != nil {
			return Message{}, err
		}
		msg.SMS = strings.TrimSpace(msg.SMS)
	}
	if cfg.EmailEnabled {
		if msg.Subject, err = renderText("subject", cfg.Subject, data); err != nil {
			return Message{}, err
		}
		if msg.EmailHTML, err = renderHTML("email", cfg.EmailBody, data); err != nil {
			return Message{}, err
		}
	}
	return msg, nil
}

func renderText(name, body string, data any) (string, error) {
	tmpl, err := texttemplate.New(name).Funcs(funcs).Parse(body)
	if err != nil {
		return "", fmt.Errorf("parse %s template: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s template: %w", name, err)
	}
	return buf.String(), nil
}

func renderHTML(name, body string, data any) (string, error) {
	tmpl, err := htmltemplate.New(name).Funcs(funcs).Parse(body)
	if err != nil {
		return "", fmt.Errorf("parse %s template: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s template: %w", name, err)
	}
	return buf.String(), nil
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// FormatTime is the timestamp layout used in message bodies.
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04")
}
