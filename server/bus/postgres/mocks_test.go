package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

type (
	mockExecer struct {
		ExecContextFunc func(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	}

	mockListener struct {
		ListenFunc func(channel string) error
		C          chan *pq.Notification
		CloseFunc  func() error
	}
)

func (m mockExecer) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return m.ExecContextFunc(ctx, query, args...)
}

func (m mockListener) Listen(channel string) error {
	return m.ListenFunc(channel)
}

func (m mockListener) NotificationChannel() <-chan *pq.Notification {
	return m.C
}

func (m mockListener) Close() error {
	return m.CloseFunc()
}
