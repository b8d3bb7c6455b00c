package alerting

import (
	"context"
	"errors"
)

// Multi fans a notification out to every channel. All channels are attempted;
// failures are joined.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, note Notification) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, note); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Notifier = Multi(nil)
