package repo

import "errors"

// Общие ошибки хранилищ.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — запись уже существует (конфликт уникальности).
	// Для runs — попытка вставить второй активный run в группу.
	ErrAlreadyExists = errors.New("already exists")
)
