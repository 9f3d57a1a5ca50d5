package provision

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// rollbackAction undoes one completed step.
type rollbackAction struct {
	name     string
	action   func(ctx context.Context) error
	critical bool
}

// rollback collects compensating actions and runs them newest first.
type rollback struct {
	actions []rollbackAction
	log     logrus.FieldLogger
}

func newRollback(log logrus.FieldLogger) *rollback {
	return &rollback{log: log}
}

func (rb *rollback) add(name string, action func(ctx context.Context) error, critical bool) {
	rb.actions = append(rb.actions, rollbackAction{name: name, action: action, critical: critical})
}

// discard forgets every action once the attempt has succeeded.
func (rb *rollback) discard() {
	rb.actions = nil
}

// execute runs the actions in LIFO order. A failing critical action stops
// the rollback and is returned; other failures are logged and collected.
func (rb *rollback) execute(ctx context.Context) error {
	if len(rb.actions) == 0 {
		return nil
	}
	rb.log.WithField("actions", len(rb.actions)).Info("rolling back provisioning attempt")

	var errs []error
	for i := len(rb.actions) - 1; i >= 0; i-- {
		a := rb.actions[i]
		if err := a.action(ctx); err != nil {
			entry := rb.log.WithError(err).WithField("action", a.name)
			if a.critical {
				entry.Error("rollback action failed")
				return fmt.Errorf("rollback %s: %w", a.name, err)
			}
			entry.Warn("rollback action failed")
			errs = append(errs, fmt.Errorf("%s: %w", a.name, err))
			continue
		}
		rb.log.WithField("action", a.name).Debug("rollback action done")
	}
	rb.actions = nil
	return errors.Join(errs...)
}
