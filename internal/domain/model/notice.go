package model

import "time"

// NoticeKind — вид уведомления для UI.
type NoticeKind string

const (
	// NoticeSuccess — успешное завершение операции.
	NoticeSuccess NoticeKind = "success"
	// NoticeInfo — информационное сообщение.
	NoticeInfo NoticeKind = "info"
	// NoticeError — ошибка, требующая внимания пользователя.
	NoticeError NoticeKind = "error"
)

// Коды уведомлений. UI подбирает локализованный текст по коду,
// Message — запасной текст.
const (
	NoticeCodeWelcome          = "WELCOME"
	NoticeCodeWelcomeBack      = "WELCOME_BACK"
	NoticeCodeSignedOut        = "SIGNED_OUT"
	NoticeCodeConnected        = "CONNECTED"
	NoticeCodeAlreadyConnected = "ALREADY_CONNECTED"
	NoticeCodeConnectionFailed = "CONNECTION_FAILED"
	NoticeCodeBookingCreated   = "BOOKING_CREATED"
	NoticeCodeBookingFailed    = "BOOKING_FAILED"
	NoticeCodeProfileError     = "PROFILE_ERROR"
	NoticeCodeSetupFailed      = "SETUP_FAILED"
)

// Notice — подтверждение/уведомление, ожидающее показа в UI.
// Аналог toast: живёт в памяти, выдаётся UI один раз и не переживает рестарт.
type Notice struct {
	// ID — уникальный идентификатор уведомления.
	ID string `json:"id"`
	// Kind — вид (success, info, error).
	Kind NoticeKind `json:"kind"`
	// Code — машиночитаемый код.
	Code string `json:"code"`
	// Message — человекочитаемый текст (запасной, если UI не знает код).
	Message string `json:"message"`
	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}
