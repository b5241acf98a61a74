package pgx

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Listen issues `LISTEN channel_name` on conn and returns channels of
// notifications and errors. It runs in a goroutine and listens until ctx
// is canceled; both channels are closed on return.
func Listen(ctx context.Context, conn Conn, channelName string) (<-chan *pgconn.Notification, <-chan error) {
	notifications := make(chan *pgconn.Notification)
	errs := make(chan error, 1)

	var waitForNotification func(context.Context) (*pgconn.Notification, error)

	switch c := conn.(type) {
	case *pgxpool.Conn:
		waitForNotification = c.Conn().WaitForNotification
	case *pgx.Conn:
		waitForNotification = c.WaitForNotification
	default:
		errs <- fmt.Errorf("pgx: Listen requires *pgxpool.Conn or *pgx.Conn")
		close(notifications)
		close(errs)
		return notifications, errs
	}

	if _, err := conn.Exec(ctx, "LISTEN "+channelName); err != nil {
		errs <- fmt.Errorf("pgx: listen %s: %w", channelName, err)
		close(notifications)
		close(errs)
		return notifications, errs
	}

	go func() {
		defer close(notifications)
		defer close(errs)

		for {
			notification, err := waitForNotification(ctx)
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
					errs <- err
					return
				}
			}
			select {
			case notifications <- notification:
			case <-ctx.Done():
				return
			}
		}
	}()

	return notifications, errs
}
