// Package notifier implements the Notifier (§4.8/§7): it emails operators
// when the watchdog declares agents dead. No third-party mail library
// appears anywhere in the retrieval pack (grep confirmed), so this is
// built directly on net/smtp, in the same "thin wrapper around a stdlib
// client, configured from Config" shape the teacher uses for its other
// infrastructure adapters (see internal/infrastructure/cache.RedisCache).
package notifier

import (
	"bytes"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/flowconductor/conductor/internal/infrastructure/config"
	"github.com/flowconductor/conductor/internal/infrastructure/logger"
)

// Notifier sends operator email notifications.
type Notifier struct {
	cfg    config.NotifierConfig
	logger *logger.Logger
}

// New returns a Notifier bound to cfg.
func New(cfg config.NotifierConfig, log *logger.Logger) *Notifier {
	return &Notifier{cfg: cfg, logger: log}
}

// DeadAgent is one agent the watchdog declared dead, with the vertices it
// was carrying.
type DeadAgent struct {
	AgentID  string
	Vertices []int64
}

// NotifyDeadAgents emails the configured operators about a batch of agents
// the watchdog just removed (§4.8's "Notify via Notifier with the
// dead-agent set and affected vertices").
func (n *Notifier) NotifyDeadAgents(dead []DeadAgent) error {
	if len(n.cfg.To) == 0 {
		n.logger.Warn("notifier: no error_email_to configured, skipping dead-agent email")
		return nil
	}

	var body bytes.Buffer
	fmt.Fprintf(&body, "The conductor watchdog declared %d agent(s) dead at %s.\n\n", len(dead), time.Now().Format(time.RFC3339))
	for _, d := range dead {
		fmt.Fprintf(&body, "agent %s: %d vertex(es) now unknown: %v\n", d.AgentID, len(d.Vertices), d.Vertices)
	}

	return n.send("conductor: dead agent(s) detected", body.String())
}

// NotifyTemplateDefect emails operators about a template-level failure
// (§7's "Template defect" category), e.g. a cyclic workflow graph
// discovered at trigger time.
func (n *Notifier) NotifyTemplateDefect(nodeID int64, reason string) error {
	if len(n.cfg.To) == 0 {
		return nil
	}
	body := fmt.Sprintf("Triggering node %d failed template validation: %s\n", nodeID, reason)
	return n.send("conductor: template defect", body)
}

func (n *Notifier) send(subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		n.cfg.From, strings.Join(n.cfg.To, ", "), subject, body)

	if err := smtp.SendMail(n.cfg.SMTPAddr, nil, n.cfg.From, n.cfg.To, []byte(msg)); err != nil {
		n.logger.Error("notifier: send failed", "err", err, "subject", subject)
		return fmt.Errorf("notifier: send: %w", err)
	}
	return nil
}
