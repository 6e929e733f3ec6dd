package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/taxidocs/waybill-server/internal/render"
	"github.com/taxidocs/waybill-server/internal/session"
	"github.com/taxidocs/waybill-server/internal/shift"
	"github.com/taxidocs/waybill-server/internal/templates"
	"github.com/taxidocs/waybill-server/internal/waybill"
)

// Reply texts for the dialog. Russian is the operating language of the
// fleet this serves.
const (
	msgNoTemplate      = "Для вас не зарегистрирован шаблон путевого листа. Обратитесь к администратору."
	msgAskTime         = "Введите время начала смены в формате ЧЧ:ММ, например 08:00."
	msgBadTime         = "Не удалось разобрать время. Введите время в формате ЧЧ:ММ, например 08:00."
	msgAskOdometer     = "Теперь введите показания одометра (только цифры)."
	msgBadOdometer     = "Показания одометра должны состоять только из цифр. Попробуйте ещё раз."
	msgUseStart        = "Чтобы оформить путевой лист, отправьте команду /start."
	msgGenerating      = "Готовлю путевой лист..."
	msgRenderDown      = "Сервис формирования изображений временно недоступен. Попробуйте позже."
	msgGenerateFailure = "Не удалось сформировать путевой лист. Попробуйте позже или обратитесь к администратору."
)

// Generator produces waybill images; implemented by waybill.Service.
type Generator interface {
	Generate(ctx context.Context, req waybill.GenerateRequest) (*waybill.GenerateResult, error)
}

// Sender delivers replies; implemented by Client.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendPhoto(ctx context.Context, chatID int64, filename string, photo []byte, caption string) error
}

// Handler drives the dialog over incoming updates.
type Handler struct {
	gen       Generator
	sender    Sender
	templates templates.Resolver
	sessions  *session.Store
	log       *slog.Logger
}

// NewHandler wires the dialog to its collaborators.
func NewHandler(gen Generator, sender Sender, resolver templates.Resolver, sessions *session.Store, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		gen:       gen,
		sender:    sender,
		templates: resolver,
		sessions:  sessions,
		log:       log,
	}
}

// HandleUpdate advances the driver's dialog by one message. Errors are
// reported to the driver where possible; the returned error is for
// logging only, the webhook always acknowledges.
func (h *Handler) HandleUpdate(ctx context.Context, upd *Update) error {
	if upd.Message == nil || upd.Message.From == nil {
		return nil
	}
	msg := upd.Message
	userID := strconv.FormatInt(msg.From.ID, 10)
	chatID := msg.Chat.ID

	if isStartCommand(msg.Text) {
		return h.handleStart(ctx, userID, chatID)
	}

	sess, err := h.sessions.Get(userID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return h.sender.SendMessage(ctx, chatID, msgUseStart)
		}
		return fmt.Errorf("failed to load session: %w", err)
	}

	switch sess.State {
	case session.StateAwaitingTime:
		return h.handleTime(ctx, sess, chatID, msg.Text)
	case session.StateAwaitingOdometer:
		return h.handleOdometer(ctx, sess, chatID, msg.Text)
	default:
		h.log.Warn("unknown session state", "user_id", userID, "state", sess.State)
		if err := h.sessions.Reset(userID); err != nil {
			return err
		}
		return h.sender.SendMessage(ctx, chatID, msgUseStart)
	}
}

// isStartCommand recognizes /start in the forms Telegram delivers it:
// bare, with a bot mention ("/start@waybill_bot") and with a deep-link
// payload ("/start ref123").
func isStartCommand(text string) bool {
	cmd, _, _ := strings.Cut(text, " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return cmd == "/start"
}

// handleStart checks the driver has a template before opening a dialog,
// so drivers without one are turned away immediately.
func (h *Handler) handleStart(ctx context.Context, userID string, chatID int64) error {
	_, cleanup, err := h.templates.Resolve(ctx, userID)
	if err != nil {
		if errors.Is(err, templates.ErrTemplateMissing) {
			return h.sender.SendMessage(ctx, chatID, msgNoTemplate)
		}
		return fmt.Errorf("failed to resolve template: %w", err)
	}
	cleanup()

	if err := h.sessions.Put(&session.Session{
		UserID: userID,
		State:  session.StateAwaitingTime,
	}); err != nil {
		return err
	}
	return h.sender.SendMessage(ctx, chatID, msgAskTime)
}

func (h *Handler) handleTime(ctx context.Context, sess *session.Session, chatID int64, text string) error {
	if _, _, err := shift.ParseStartTime(text); err != nil {
		return h.sender.SendMessage(ctx, chatID, msgBadTime)
	}

	sess.State = session.StateAwaitingOdometer
	sess.StartTime = text
	if err := h.sessions.Put(sess); err != nil {
		return err
	}
	return h.sender.SendMessage(ctx, chatID, msgAskOdometer)
}

func (h *Handler) handleOdometer(ctx context.Context, sess *session.Session, chatID int64, text string) error {
	if err := shift.ValidateOdometer(text); err != nil {
		return h.sender.SendMessage(ctx, chatID, msgBadOdometer)
	}

	if err := h.sender.SendMessage(ctx, chatID, msgGenerating); err != nil {
		h.log.Warn("failed to send progress message", "error", err)
	}

	res, err := h.gen.Generate(ctx, waybill.GenerateRequest{
		UserID:    sess.UserID,
		StartTime: sess.StartTime,
		Odometer:  text,
	})
	if err != nil {
		h.log.Error("waybill generation failed", "user_id", sess.UserID, "error", err)
		reply := msgGenerateFailure
		if render.IsUnavailable(err) {
			reply = msgRenderDown
		}
		if sendErr := h.sender.SendMessage(ctx, chatID, reply); sendErr != nil {
			return sendErr
		}
		return err
	}

	caption := fmt.Sprintf("Путевой лист № %s", res.Serial)
	if err := h.sender.SendPhoto(ctx, chatID, "waybill.jpg", res.Image, caption); err != nil {
		return fmt.Errorf("failed to deliver waybill photo: %w", err)
	}

	// The dialog is complete; the next message starts fresh.
	return h.sessions.Reset(sess.UserID)
}
