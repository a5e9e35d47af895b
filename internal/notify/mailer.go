package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/lakestack/hometrace/internal/config"
	"go.uber.org/zap"
)

// Mailer sends notifications over SMTP
type Mailer struct {
	cfg  config.SMTPConfig
	loc  *time.Location
	log  *zap.Logger
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewMailer returns an SMTP mailer. Times are rendered in loc.
func NewMailer(cfg config.SMTPConfig, loc *time.Location, log *zap.Logger) *Mailer {
	return &Mailer{cfg: cfg, loc: loc, log: log.Named("mailer"), send: smtp.SendMail}
}

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"upper": strings.ToUpper,
}).Parse(`
{{define "new_appointment"}}<p>Hi {{.AgentName}},</p>
<p>{{.CustomerName}} ({{.CustomerEmail}}, {{.CustomerPhone}}) requested a viewing of <strong>{{.PropertyAddress}}</strong>.</p>
<p>Preferred times:</p>
<ul>{{range .Times}}<li>{{.Date}} at {{.Time}}</li>{{end}}</ul>
{{if .Message}}<p>Message: {{.Message}}</p>{{end}}{{end}}

{{define "time_proposal"}}<p>Hi {{.CustomerName}},</p>
<p>{{.AgentName}} proposed a viewing of <strong>{{.PropertyAddress}}</strong> on {{.When}}.</p>
<p><a href="{{.AcceptURL}}">Accept</a> or <a href="{{.DeclineURL}}">Decline</a></p>
<p>Questions? Reply to {{.AgentEmail}}.</p>{{end}}

{{define "appointment_update"}}<p>Hi {{.CustomerName}},</p>
<p>Your viewing appointments have been updated:</p>
<ul>{{range .Lines}}<li>{{.Address}}: {{.When}} ({{upper .Status}}) with {{.AgentName}}</li>{{end}}</ul>{{end}}

{{define "customer_response"}}<p>Hi {{.AgentName}},</p>
<p>{{.CustomerName}} ({{.CustomerEmail}}) {{.Verb}} the viewing of <strong>{{.PropertyAddress}}</strong> on {{.When}}.</p>{{end}}
`))

func (m *Mailer) when(t time.Time) string {
	return t.In(m.loc).Format("Mon 2 Jan 2006 at 3:04 PM")
}

// NewAppointment notifies the listing agent of a new request
func (m *Mailer) NewAppointment(ctx context.Context, msg NewAppointmentMessage) error {
	subject := "New Appointment Request - " + msg.PropertyAddress
	return m.deliver(ctx, msg.AgentEmail, subject, "new_appointment", msg)
}

// TimeProposal asks the customer to confirm the agent's chosen time
func (m *Mailer) TimeProposal(ctx context.Context, msg TimeProposalMessage) error {
	data := struct {
		TimeProposalMessage
		When string
	}{msg, m.when(msg.ProposedAt)}
	subject := "Appointment Time Proposal - " + msg.PropertyAddress
	return m.deliver(ctx, msg.CustomerEmail, subject, "time_proposal", data)
}

// AppointmentUpdate summarises changed appointments for a customer
func (m *Mailer) AppointmentUpdate(ctx context.Context, msg AppointmentUpdateMessage) error {
	type line struct{ Address, When, Status, AgentName string }
	lines := make([]line, 0, len(msg.Appointments))
	for _, a := range msg.Appointments {
		lines = append(lines, line{a.PropertyAddress, m.when(a.NewDateTime), a.Status, a.AgentName})
	}
	data := struct {
		CustomerName string
		Lines        []line
	}{msg.CustomerName, lines}

	subject := fmt.Sprintf("Appointment Update - %d appointment", len(msg.Appointments))
	if len(msg.Appointments) != 1 {
		subject += "s"
	}
	return m.deliver(ctx, msg.CustomerEmail, subject, "appointment_update", data)
}

// CustomerResponse tells the agent whether the customer accepted
func (m *Mailer) CustomerResponse(ctx context.Context, msg CustomerResponseMessage) error {
	verb, title := "declined", "Declined"
	if msg.Status == "confirmed" {
		verb, title = "accepted", "Accepted"
	}
	data := struct {
		CustomerResponseMessage
		Verb string
		When string
	}{msg, verb, m.when(msg.ScheduledAt)}
	subject := fmt.Sprintf("Customer %s Appointment - %s", title, msg.PropertyAddress)
	return m.deliver(ctx, msg.AgentEmail, subject, "customer_response", data)
}

func (m *Mailer) deliver(ctx context.Context, to, subject, tmpl string, data any) error {
	if to == "" {
		return fmt.Errorf("no recipient for %q", subject)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, tmpl, data); err != nil {
		return fmt.Errorf("render %s: %w", tmpl, err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	msg.Write(body.Bytes())

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	if err := m.send(addr, auth, m.cfg.From, []string{to}, msg.Bytes()); err != nil {
		return fmt.Errorf("send %q to %s: %w", subject, to, err)
	}
	m.log.Info("email sent", zap.String("template", tmpl), zap.String("to", to))
	return nil
}
