package alert

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gen2brain/beeep"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gopkg.in/gomail.v2"

	"humidstat.api/v0/internal/config"
	"humidstat.api/v0/storage"
)

// Event is one alert or clear notification produced by the evaluator.
type Event struct {
	Type      string    `json:"type"`
	Humidity  float64   `json:"humidity"`
	Threshold float64   `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// Cleared reports whether the event is a clear rather than a firing.
func (event Event) Cleared() bool {
	return strings.Contains(event.Type, "cleared")
}

// Record converts the event into its persisted form.
func (event Event) Record() storage.AlertRecord {
	return storage.AlertRecord{
		Timestamp: storage.FormatTime(event.Timestamp),
		Type:      event.Type,
		Humidity:  event.Humidity,
		Threshold: event.Threshold,
		Message:   event.Message,
	}
}

// Channel is a single notification sink. Channels decide for themselves
// whether they are currently enabled.
type Channel interface {
	Name() string
	Notify(event Event) error
}

// Notifier fans an event out to every channel in order. One channel's
// failure never prevents the remaining channels from running.
type Notifier struct {
	channels []Channel
}

// NewNotifier creates a notifier over the given channels, invoked in the
// given order.
func NewNotifier(channels ...Channel) *Notifier {
	return &Notifier{channels: channels}
}

// Dispatch delivers the event to every channel, logging failures. It
// reports whether every channel succeeded.
func (notifier *Notifier) Dispatch(event Event) bool {
	ok := true
	for _, channel := range notifier.channels {
		if err := channel.Notify(event); err != nil {
			log.Printf("Notification channel '%s' failed: %v\n", channel.Name(), err)
			ok = false
		}
	}
	return ok
}

// LogChannel persists every event to the append-only alert log. Always
// enabled.
type LogChannel struct {
	alertLog *storage.AlertLog
}

func NewLogChannel(alertLog *storage.AlertLog) *LogChannel {
	return &LogChannel{alertLog: alertLog}
}

func (channel *LogChannel) Name() string { return "log" }

func (channel *LogChannel) Notify(event Event) error {
	channel.alertLog.Append(event.Record())
	return nil
}

// SoundChannel plays a short audible cue. Clears use a lower, shorter tone
// than firings.
type SoundChannel struct {
	cfg *config.Config
}

func NewSoundChannel(cfg *config.Config) *SoundChannel {
	return &SoundChannel{cfg: cfg}
}

func (channel *SoundChannel) Name() string { return "sound" }

func (channel *SoundChannel) Notify(event Event) error {
	if !channel.cfg.Alerts().SoundEnabled {
		return nil
	}
	if event.Cleared() {
		return beeep.Beep(800, 200)
	}
	return beeep.Beep(1000, 500)
}

// Upper bound on one SMTP delivery attempt. Alert events are rare under
// cooldown, so a bounded synchronous send keeps the dispatch outcome
// honest without letting a hung server stall evaluation for long.
var emailSendTimeout = 5 * time.Second

// EmailChannel delivers events over SMTP. The recipient comes from the
// alert settings; the SMTP endpoint and credentials come from the
// environment (SMTP_HOST, SMTP_PORT, SMTP_USERNAME, SMTP_PASSWORD,
// SMTP_FROM).
type EmailChannel struct {
	cfg  *config.Config
	send func(host string, port int, username string, password string, msg *gomail.Message) error
}

func NewEmailChannel(cfg *config.Config) *EmailChannel {
	return &EmailChannel{
		cfg: cfg,
		send: func(host string, port int, username string, password string, msg *gomail.Message) error {
			return gomail.NewDialer(host, port, username, password).DialAndSend(msg)
		},
	}
}

func (channel *EmailChannel) Name() string { return "email" }

func (channel *EmailChannel) Notify(event Event) error {
	settings := channel.cfg.Alerts()
	if !settings.EmailEnabled || settings.EmailAddress == "" {
		return nil
	}

	host := os.Getenv("SMTP_HOST")
	if host == "" {
		return fmt.Errorf("SMTP_HOST is not configured")
	}
	port := 587
	if raw := os.Getenv("SMTP_PORT"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("failed to parse SMTP_PORT '%s': %v", raw, err)
		}
		port = parsed
	}
	username := os.Getenv("SMTP_USERNAME")
	from := os.Getenv("SMTP_FROM")
	if from == "" {
		from = username
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", settings.EmailAddress)
	msg.SetHeader("Subject", fmt.Sprintf("HumidStat alert: %s", event.Type))
	msg.SetBody("text/plain", fmt.Sprintf("%s\n\nAt: %s", event.Message, storage.FormatTime(event.Timestamp)))

	password := os.Getenv("SMTP_PASSWORD")
	result := make(chan error, 1)
	go func() {
		result <- channel.send(host, port, username, password, msg)
	}()
	select {
	case err := <-result:
		if err != nil {
			return fmt.Errorf("failed to deliver alert email to %s: %v", settings.EmailAddress, err)
		}
		return nil
	case <-time.After(emailSendTimeout):
		return fmt.Errorf("timed out delivering alert email to %s after %v", settings.EmailAddress, emailSendTimeout)
	}
}

// TelegramChannel pushes events through the telegram bot API. Disabled
// until both TELEGRAM_TOKEN and TELEGRAM_CHAT_ID are configured.
type TelegramChannel struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramChannel authenticates the bot from the environment. A missing
// token yields a disabled channel rather than an error.
func NewTelegramChannel() *TelegramChannel {
	token := os.Getenv("TELEGRAM_TOKEN")
	rawChatID := os.Getenv("TELEGRAM_CHAT_ID")
	if token == "" || rawChatID == "" {
		return &TelegramChannel{}
	}

	chatID, err := strconv.ParseInt(rawChatID, 10, 64)
	if err != nil {
		log.Printf("Failed to parse TELEGRAM_CHAT_ID '%s': %v\n", rawChatID, err)
		return &TelegramChannel{}
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		log.Printf("Failed to create a telegram bot api, channel disabled: %v\n", err)
		return &TelegramChannel{}
	}
	log.Printf("Telegram notifications authorized on account %s\n", bot.Self.UserName)
	return &TelegramChannel{bot: bot, chatID: chatID}
}

func (channel *TelegramChannel) Name() string { return "telegram" }

func (channel *TelegramChannel) Notify(event Event) error {
	if channel.bot == nil {
		return nil
	}
	_, err := channel.bot.Send(tgbotapi.NewMessage(channel.chatID, event.Message))
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %v", err)
	}
	return nil
}

// CallbackChannel invokes an in-process callback, used by the presentation
// layer's onAlert registration.
type CallbackChannel struct {
	name     string
	callback func(event Event)
}

func NewCallbackChannel(name string, callback func(event Event)) *CallbackChannel {
	return &CallbackChannel{name: name, callback: callback}
}

func (channel *CallbackChannel) Name() string { return channel.name }

func (channel *CallbackChannel) Notify(event Event) error {
	if channel.callback != nil {
		channel.callback(event)
	}
	return nil
}
