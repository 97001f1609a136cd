package mq

import "errors"

var (
	// ErrNoChannel — соединение ещё не установлено или переподключается.
	ErrNoChannel = errors.New("no channel available")

	// ErrUnknownMessage — сообщение неожиданного типа.
	ErrUnknownMessage = errors.New("unknown message type")
)
