package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"storyreel-server/internal/interfaces"
)

// Mock TxManager. При Return(nil) прогоняет функцию транзакции с nil DBTX:
// моки репозиториев матчат его через mock.Anything. При Return(err)
// функция не вызывается, имитируя провал Begin.
type TxManager struct {
	mock.Mock
}

func (m *TxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx interfaces.DBTX) error) error {
	args := m.Called(ctx, fn)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(ctx, nil)
}
