package pgx

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

func TestListen(t *testing.T) {
	connString := os.Getenv("TEST_POSTGRES_CONN_STRING")
	if connString == "" {
		t.Skip("TEST_POSTGRES_CONN_STRING not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	listenConn, err := pgx.Connect(ctx, connString)
	require.NoError(t, err)
	defer listenConn.Close(ctx)

	notifyConn, err := pgx.Connect(ctx, connString)
	require.NoError(t, err)
	defer notifyConn.Close(ctx)

	const channelName = "test_channel"
	notifications, errs := Listen(ctx, listenConn, channelName)

	go func() {
		time.Sleep(100 * time.Millisecond)
		_, err := notifyConn.Exec(ctx, "NOTIFY "+channelName+", 'test_message'")
		require.NoError(t, err)
	}()

	select {
	case notification := <-notifications:
		require.NotNil(t, notification)
		require.Equal(t, "test_message", notification.Payload)
	case err := <-errs:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for notification")
	}
}
