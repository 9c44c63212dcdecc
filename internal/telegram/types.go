package telegram

// ============================================================
// Типы Telegram Bot API (только используемые поля)
// ============================================================

// Update - входящее обновление вебхука
type Update struct {
	UpdateID      int64    `json:"update_id"`
	Message       *Message `json:"message,omitempty"`
	EditedMessage *Message `json:"edited_message,omitempty"`
}

// IncomingMessage возвращает сообщение или его отредактированную версию
func (u *Update) IncomingMessage() *Message {
	if u.Message != nil {
		return u.Message
	}
	return u.EditedMessage
}

// Message - входящее сообщение
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Date      int64  `json:"date"`
	Text      string `json:"text,omitempty"`
}

// User - отправитель сообщения
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// Chat - чат, в который пришло сообщение
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"`
}

// KeyboardButton - кнопка reply-клавиатуры
type KeyboardButton struct {
	Text string `json:"text"`
}

// ReplyKeyboardMarkup - постоянная клавиатура под полем ввода
type ReplyKeyboardMarkup struct {
	Keyboard       [][]KeyboardButton `json:"keyboard"`
	ResizeKeyboard bool               `json:"resize_keyboard"`
}

// OutgoingMessage - тело запроса sendMessage
type OutgoingMessage struct {
	ChatID                int64                `json:"chat_id"`
	Text                  string               `json:"text"`
	ParseMode             string               `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool                 `json:"disable_web_page_preview,omitempty"`
	ReplyMarkup           *ReplyKeyboardMarkup `json:"reply_markup,omitempty"`
}

// apiResponse - общий конверт ответа Bot API
type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after,omitempty"`
	} `json:"parameters,omitempty"`
}

// ParseModeMarkdown - режим разметки сообщений бота
const ParseModeMarkdown = "Markdown"

// Тексты кнопок основной клавиатуры
const (
	ButtonStats     = "📊 Stats"
	ButtonSubscribe = "💳 Subscribe"
	ButtonLast      = "🕒 Last signals"
	ButtonHelp      = "❓ Help"
	ButtonSupport   = "🆘 Support"
)

// DefaultKeyboard - клавиатура, прикрепляемая к ответам бота
func DefaultKeyboard() *ReplyKeyboardMarkup {
	return &ReplyKeyboardMarkup{
		Keyboard: [][]KeyboardButton{
			{{Text: ButtonStats}, {Text: ButtonSubscribe}},
			{{Text: ButtonLast}, {Text: ButtonHelp}},
			{{Text: ButtonSupport}},
		},
		ResizeKeyboard: true,
	}
}
