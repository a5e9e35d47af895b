package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier records notifications in the log instead of sending them.
// Used when no SMTP host is configured.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log.Named("notify")}
}

func (n *LogNotifier) NewAppointment(_ context.Context, msg NewAppointmentMessage) error {
	n.log.Info("new appointment notification",
		zap.String("to", msg.AgentEmail),
		zap.String("appointment_id", msg.AppointmentID.String()),
		zap.Int("times", len(msg.Times)))
	return nil
}

func (n *LogNotifier) TimeProposal(_ context.Context, msg TimeProposalMessage) error {
	n.log.Info("time proposal notification",
		zap.String("to", msg.CustomerEmail),
		zap.String("appointment_id", msg.AppointmentID.String()),
		zap.Time("proposed_at", msg.ProposedAt))
	return nil
}

func (n *LogNotifier) AppointmentUpdate(_ context.Context, msg AppointmentUpdateMessage) error {
	n.log.Info("appointment update notification",
		zap.String("to", msg.CustomerEmail),
		zap.Int("appointments", len(msg.Appointments)))
	return nil
}

func (n *LogNotifier) CustomerResponse(_ context.Context, msg CustomerResponseMessage) error {
	n.log.Info("customer response notification",
		zap.String("to", msg.AgentEmail),
		zap.String("status", msg.Status))
	return nil
}
