package models

import "time"

// EventType — тип события шины.
type EventType string

const (
	EventUser         EventType = "user"
	EventAuth         EventType = "auth"
	EventNotification EventType = "notification"
	EventSystem       EventType = "system"
)

// SubType — подтип события внутри EventType.
type SubType string

// Подтипы auth-событий.
const (
	AuthLoginSuccess  SubType = "login_success"
	AuthLoginFailed   SubType = "login_failed"
	AuthLogout        SubType = "logout"
	AuthTokenRefresh  SubType = "token_refresh"
	AuthPasswordReset SubType = "password_reset"
)

// Подтипы user-событий.
const (
	UserCreated   SubType = "created"
	UserUpdated   SubType = "updated"
	UserDeleted   SubType = "deleted"
	UserLoggedIn  SubType = "logged_in"
	UserLoggedOut SubType = "logged_out"
)

// Подтипы notification-событий.
const (
	NotificationEmailSent SubType = "email_sent"
	NotificationSMSSent   SubType = "sms_sent"
	NotificationPushSent  SubType = "push_sent"
)

var subTypes = map[EventType][]SubType{
	EventAuth:         {AuthLoginSuccess, AuthLoginFailed, AuthLogout, AuthTokenRefresh, AuthPasswordReset},
	EventUser:         {UserCreated, UserUpdated, UserDeleted, UserLoggedIn, UserLoggedOut},
	EventNotification: {NotificationEmailSent, NotificationSMSSent, NotificationPushSent},
	EventSystem:       {},
}

// Accepts сообщает, принадлежит ли подтип типу события.
// Пустой подтип допустим для любого известного типа (канал всего типа).
func (t EventType) Accepts(s SubType) bool {
	allowed, ok := subTypes[t]
	if !ok {
		return false
	}

	if s == "" {
		return true
	}

	for _, a := range allowed {
		if a == s {
			return true
		}
	}

	return false
}

// AuthMetadata — дополнительные сведения auth-события.
type AuthMetadata struct {
	DeviceID string `json:"deviceId,omitempty"`
	Location string `json:"location,omitempty"`
	Success  *bool  `json:"success,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// AuthEvent — событие аутентификации.
//
// ID/Timestamp/EventType/SubType проставляет шина при публикации;
// остальное заполняет use-case в момент принятия решения.
type AuthEvent struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	EventType EventType     `json:"eventType"`
	SubType   SubType       `json:"subType"`
	UserID    string        `json:"userId"`
	IP        string        `json:"ip,omitempty"`
	UserAgent string        `json:"userAgent,omitempty"`
	Metadata  *AuthMetadata `json:"metadata,omitempty"`
}

// ClientInfo — сведения о клиенте запроса, попадающие в события.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// Stamp проставляет служебные поля события перед публикацией.
func (e *AuthEvent) Stamp(id string, at time.Time, et EventType, st SubType) {
	e.ID = id
	e.Timestamp = at
	e.EventType = et
	e.SubType = st
}
