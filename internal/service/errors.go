package service

import (
	"errors"
	"fmt"
)

// Базовые категории ошибок бизнес-логики. Конкретные ошибки оборачивают
// их, поэтому errors.Is работает на обоих уровнях.
var (
	// ErrNotFound — объект отсутствует или скрыт от вызывающего.
	ErrNotFound = errors.New("не найдено")
	// ErrInvalidState — операция недопустима в текущем состоянии сессии.
	ErrInvalidState = errors.New("недопустимое состояние")
	// ErrNotAuthorized — у вызывающего нет нужной роли.
	ErrNotAuthorized = errors.New("недостаточно прав")
	// ErrStorageUnavailable — объектное хранилище временно недоступно.
	ErrStorageUnavailable = errors.New("хранилище файлов недоступно")
)

// Ошибки сессий.
var (
	ErrSessionNotFound    = fmt.Errorf("%w: сессия не найдена", ErrNotFound)
	ErrSessionExpired     = fmt.Errorf("%w: срок действия сессии истёк", ErrInvalidState)
	ErrSessionInactive    = fmt.Errorf("%w: сессия неактивна", ErrInvalidState)
	ErrCreatorCannotLeave = fmt.Errorf("%w: создатель не может покинуть сессию, её можно только завершить", ErrInvalidState)

	ErrFileNotFound       = fmt.Errorf("%w: файл не найден", ErrNotFound)
	ErrSharedFileNotFound = fmt.Errorf("%w: файл сессии не найден", ErrNotFound)
	// ErrFileContentMissing — запись есть, но содержимого в хранилище нет.
	ErrFileContentMissing = fmt.Errorf("%w: содержимое файла отсутствует в хранилище", ErrNotFound)

	ErrOnlyCreator         = fmt.Errorf("%w: только создатель может завершить сессию", ErrNotAuthorized)
	ErrOnlySharerOrCreator = fmt.Errorf("%w: удалить файл может только расшаривший его или создатель сессии", ErrNotAuthorized)
)

// Внутренние причины, наружу отдаются как NotFound.
var (
	errNotParticipant         = errors.New("пользователь не участник сессии")
	errSharedFileOtherSession = errors.New("файл принадлежит другой сессии")
)
