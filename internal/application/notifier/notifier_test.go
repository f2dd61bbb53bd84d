package notifier_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flowconductor/conductor/internal/application/notifier"
	"github.com/flowconductor/conductor/internal/infrastructure/config"
	"github.com/flowconductor/conductor/internal/infrastructure/logger"
)

func TestNotifyDeadAgents_NoRecipientsIsNoOp(t *testing.T) {
	log := logger.New(config.LoggingConfig{Level: "error", Format: "text"})
	n := notifier.New(config.NotifierConfig{To: nil}, log)
	err := n.NotifyDeadAgents([]notifier.DeadAgent{{AgentID: "a1", Vertices: []int64{1, 2}}})
	assert.NoError(t, err)
}

func TestNotifyTemplateDefect_NoRecipientsIsNoOp(t *testing.T) {
	log := logger.New(config.LoggingConfig{Level: "error", Format: "text"})
	n := notifier.New(config.NotifierConfig{To: nil}, log)
	assert.NoError(t, n.NotifyTemplateDefect(1, "cycle detected"))
}
