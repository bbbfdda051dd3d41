package service

import "errors"

var (
	// ErrUnauthorized действие доступно только администраторам
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidState операция невозможна в текущем состоянии пользователя или заявки
	ErrInvalidState = errors.New("invalid state")
	// ErrStore ошибка хранилища; оборачивает исходную ошибку репозитория
	ErrStore = errors.New("store failure")
)

type storeError struct {
	op  string
	err error
}

func (e *storeError) Error() string {
	return e.op + ": " + ErrStore.Error() + ": " + e.err.Error()
}

func (e *storeError) Is(target error) bool {
	return target == ErrStore
}

func (e *storeError) Unwrap() error {
	return e.err
}

func wrapStore(op string, err error) error {
	return &storeError{op: op, err: err}
}
