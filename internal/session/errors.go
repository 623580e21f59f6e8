package session

import (
	"errors"
	"fmt"
)

// Kind classifies a failed operation for the boundary adapter
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNameConflict
	KindNotFound
	KindPersistence
	KindCrypto
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNameConflict:
		return "name_conflict"
	case KindNotFound:
		return "not_found"
	case KindPersistence:
		return "persistence"
	case KindCrypto:
		return "crypto"
	default:
		return "internal"
	}
}

// Session state errors
var (
	ErrAlreadyJoined = errors.New("connection is already in a room")
	ErrNotJoined     = errors.New("connection is not in a room")
	ErrRoomDeleted   = errors.New("room no longer exists")
)

// Error is the typed failure of one controller operation
// ARCHITECTURAL DISCOVERY: Controller methods never talk to the caller about
// failures themselves; they return *Error and the router renders Msg as a
// caller-only ShowError event
type Error struct {
	Kind Kind
	Op   string // join, send, delete
	Msg  string // text shown to the caller
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or KindInternal for foreign errors
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// UserMessage returns the caller-facing text for err
func UserMessage(err error) string {
	var se *Error
	if errors.As(err, &se) && se.Msg != "" {
		return se.Msg
	}
	return msgInternal
}

func newError(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// Caller-facing texts
const (
	msgInternal        = "Внутренняя ошибка сервера"
	msgEmptyName       = "Имя пользователя не может быть пустым"
	msgInvalidName     = "Недопустимое имя пользователя"
	msgEmptyRoom       = "Название комнаты не может быть пустым"
	msgInvalidRoom     = "Недопустимое название комнаты"
	msgNameTaken       = "Имя %s уже занято в этой комнате"
	msgAlreadyJoined   = "Вы уже находитесь в комнате"
	msgNotJoined       = "Вы не находитесь в комнате"
	msgEmptyMessage    = "Сообщение не может быть пустым"
	msgMessageTooLong  = "Сообщение слишком длинное (максимум %d символов)"
	msgRoomNotFound    = "Комната %s не найдена"
	msgRoomGone        = "Комната больше не существует"
	msgJoinFailed      = "Не удалось присоединиться к комнате"
	msgSendFailed      = "Не удалось отправить сообщение"
	msgEncryptFailed   = "Не удалось зашифровать сообщение"
	msgDeleteFailed    = "Не удалось удалить комнату"
	msgHistoryFailed   = "Не удалось загрузить историю сообщений"
	msgKeyMaterialFail = "Не удалось создать ключи шифрования"

	// HistoryPlaceholder replaces a history entry that cannot be decrypted
	HistoryPlaceholder = "[сообщение не может быть расшифровано]"

	noticeJoined  = "%s присоединился к чату"
	noticeLeft    = "%s покинул чат"
	noticeDeleted = "Комната %s была удалена"
)
