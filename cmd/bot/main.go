package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/xhad/printdesk/internal/app"
	"github.com/xhad/printdesk/internal/models"
	"github.com/xhad/printdesk/pkg/rag"
)

const (
	startText = "👋 Привет! Я помощник по 3D-печати.\n\n" +
		"Задай мне любой вопрос о 3D-печати, и я постараюсь помочь!\n\n" +
		"Примеры вопросов:\n" +
		"• Какую температуру использовать для PLA?\n" +
		"• Как настроить скорость печати?\n" +
		"• Почему появляются дефекты слоёв?"

	helpText = "ℹ️ Доступные команды:\n\n" +
		"/start - Приветствие и информация\n" +
		"/help - Справка\n\n" +
		"Просто отправь мне свой вопрос о 3D-печати, " +
		"и я найду релевантную информацию!"

	errorText = "❌ Извините, произошла ошибка при обработке вашего запроса. " +
		"Попробуйте переформулировать вопрос."

	maxSources = 3
	// Telegram rejects longer messages.
	maxMessageRunes = 4096
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, configPath); err != nil {
		log.Fatal(err)
	}
}

type bot struct {
	api      *tgbotapi.BotAPI
	pipeline *rag.Pipeline
	logger   *zap.Logger
	validate bool

	// last exchange per chat, sent as dialog context
	mu      sync.Mutex
	dialogs map[int64]string
}

func run(ctx context.Context, configPath string) error {
	a, err := app.Bootstrap(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.Config.Telegram.Token == "" {
		return errors.New("telegram token is not set; export " + a.Config.Telegram.TokenEnv)
	}
	api, err := tgbotapi.NewBotAPI(a.Config.Telegram.Token)
	if err != nil {
		return fmt.Errorf("failed to connect to telegram: %w", err)
	}
	api.Debug = a.Config.Telegram.Debug

	b := &bot{
		api:      api,
		pipeline: a.Pipeline,
		logger:   a.Logger.Named("bot"),
		validate: a.Config.Retrieval.EnableValidation,
		dialogs:  make(map[int64]string),
	}
	b.logger.Info("bot started", zap.String("username", api.Self.UserName))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			wg.Add(1)
			go func(msg *tgbotapi.Message) {
				defer wg.Done()
				b.handle(ctx, msg)
			}(update.Message)
		}
	}
}

func (b *bot) handle(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "start":
		b.send(chatID, msg.MessageID, startText)
		return
	case "help":
		b.send(chatID, msg.MessageID, helpText)
		return
	}

	question := strings.TrimSpace(msg.Text)
	if question == "" {
		return
	}
	logger := b.logger.With(zap.Int64("chat_id", chatID))
	if msg.From != nil {
		logger = logger.With(zap.String("username", msg.From.UserName))
	}
	logger.Info("question received", zap.String("question", question))

	if _, err := b.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		logger.Debug("typing action failed", zap.Error(err))
	}

	b.mu.Lock()
	dialog := b.dialogs[chatID]
	b.mu.Unlock()

	resp, err := b.pipeline.Query(ctx, rag.Request{
		Question:         question,
		DialogContext:    dialog,
		EnableValidation: b.validate,
	})
	if err != nil {
		logger.Error("query failed", zap.Error(err))
		b.send(chatID, msg.MessageID, errorText)
		return
	}

	b.mu.Lock()
	b.dialogs[chatID] = fmt.Sprintf("Пользователь: %s\nАссистент: %s", question, resp.Answer)
	b.mu.Unlock()

	reply := formatReply(resp)
	b.send(chatID, msg.MessageID, reply)
	logger.Info("answer sent", zap.Int("length", len([]rune(reply))), zap.String("category", string(resp.Category)))
}

func (b *bot) send(chatID int64, replyTo int, text string) {
	m := tgbotapi.NewMessage(chatID, text)
	m.ReplyToMessageID = replyTo
	if _, err := b.api.Send(m); err != nil {
		b.logger.Warn("failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// formatReply appends up to three sources to the answer and keeps the
// message within Telegram's size limit.
func formatReply(resp *models.Response) string {
	var sb strings.Builder
	sb.WriteString(resp.Answer)

	if len(resp.Sources) > 0 {
		sb.WriteString("\n\n📚 Источники:")
		for i, s := range resp.Sources {
			if i == maxSources {
				break
			}
			sb.WriteString("\n• ")
			sb.WriteString(s)
		}
	}

	out := []rune(sb.String())
	if len(out) > maxMessageRunes {
		out = append(out[:maxMessageRunes-1], '…')
	}
	return string(out)
}
