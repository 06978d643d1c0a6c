package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agrosense/agrosense/internal/config"
	"github.com/agrosense/agrosense/internal/domain/models"
	"github.com/agrosense/agrosense/internal/lifecycle"
	"github.com/agrosense/agrosense/internal/service/commands"
	"github.com/agrosense/agrosense/pkg/clients/agrosense"
	"github.com/agrosense/agrosense/pkg/clients/anthropic"
	client "github.com/agrosense/agrosense/pkg/clients/whatsapp"
)

const (
	sendTimeout = 10 * time.Second
	// Meta retries undelivered webhooks for up to a day.
	seenMessageTTL = 24 * time.Hour
)

// MessagingService describes the operations the HTTP layer and the scheduler perform.
type MessagingService interface {
	VerifyWebhookToken(mode, verifyToken, challenge string) (string, error)
	HandleWebhook(ctx context.Context, payload models.WebhookPayload) error
	SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error
	NotifyOperator(ctx context.Context, body string) error
}

// MetaWhatsAppService is the production implementation backed by WhatsApp Cloud API.
type MetaWhatsAppService struct {
	cfg        config.WhatsAppConfig
	client     client.Client
	dispatcher commands.Dispatcher
	translator anthropic.Client
	logger     *zap.Logger

	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

// NewMetaWhatsAppService wires a new service instance. translator may be nil,
// in which case free text gets the command help.
func NewMetaWhatsAppService(cfg config.WhatsAppConfig, client client.Client, dispatcher commands.Dispatcher, translator anthropic.Client, logger *zap.Logger) *MetaWhatsAppService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetaWhatsAppService{
		cfg:        cfg,
		client:     client,
		dispatcher: dispatcher,
		translator: translator,
		logger:     logger,
		seen:       make(map[string]time.Time),
		now:        time.Now,
	}
}

// VerifyWebhookToken validates the callback verification token.
func (s *MetaWhatsAppService) VerifyWebhookToken(mode, verifyToken, challenge string) (string, error) {
	if mode == "" || verifyToken == "" {
		return "", errors.New("missing mode or verify token")
	}

	if !strings.EqualFold(mode, "subscribe") {
		return "", fmt.Errorf("unsupported hub.mode %s", mode)
	}

	if verifyToken != s.cfg.VerifyToken {
		return "", errors.New("invalid verify token")
	}

	return challenge, nil
}

// HandleWebhook processes inbound webhook payloads.
func (s *MetaWhatsAppService) HandleWebhook(ctx context.Context, payload models.WebhookPayload) error {
	var firstErr error

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				if err := s.handleInboundMessage(ctx, msg); err != nil {
					s.logger.Error("failed to handle inbound message", zap.Error(err), zap.String("message_id", msg.ID))
					if firstErr == nil {
						firstErr = err
					}
				}
			}
		}
	}

	return firstErr
}

func (s *MetaWhatsAppService) handleInboundMessage(ctx context.Context, msg models.InboundMessage) error {
	if s.cfg.OperatorID != "" && normaliseNumber(msg.From) != normaliseNumber(s.cfg.OperatorID) {
		s.logger.Warn("ignoring message from unknown sender", zap.String("from", msg.From))
		return nil
	}

	text := strings.TrimSpace(extractMessageText(msg))
	if text == "" {
		s.logger.Debug("skipping message without text", zap.String("type", msg.Type))
		return nil
	}

	if !s.markSeen(msg.ID) {
		s.logger.Info("skipping redelivered message", zap.String("message_id", msg.ID))
		return nil
	}

	reply := s.reply(ctx, text, msg.From)
	return s.send(ctx, msg.From, reply)
}

// markSeen records a message ID and reports whether it is new. Commands are
// not idempotent, so a redelivered message must not run twice.
func (s *MetaWhatsAppService) markSeen(id string) bool {
	if id == "" {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for seenID, at := range s.seen {
		if now.Sub(at) > seenMessageTTL {
			delete(s.seen, seenID)
		}
	}
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = now
	return true
}

// reply runs the operator text and renders the outcome, including failures.
func (s *MetaWhatsAppService) reply(ctx context.Context, text, sender string) string {
	if !models.IsSlashCommand(text) {
		if s.translator == nil {
			return commands.Usage
		}
		translated, err := s.translator.TranslateToCommand(ctx, text)
		if err != nil {
			if !errors.Is(err, anthropic.ErrNoCommand) {
				s.logger.Warn("command translation failed", zap.Error(err))
			}
			return "Sorry, I did not understand that.\n" + commands.Usage
		}
		s.logger.Info("translated free text", zap.String("command", translated))
		text = translated
	}

	cmd := models.ParseCommand(text)
	s.logger.Info("parsed inbound command",
		zap.String("from", sender),
		zap.String("command", string(cmd.Type)),
		zap.Strings("args", cmd.Args))

	out, err := s.dispatcher.HandleCommand(ctx, cmd, sender)
	if err != nil {
		return s.describeError(cmd, err)
	}
	return out
}

func (s *MetaWhatsAppService) describeError(cmd models.Command, err error) string {
	var (
		apiErr        *agrosense.APIError
		transitionErr *lifecycle.InvalidTransitionError
	)
	switch {
	case errors.Is(err, commands.ErrUnsupportedCommand), errors.Is(err, commands.ErrInvalidArguments):
		return err.Error() + "\n" + commands.Usage
	case errors.As(err, &transitionErr), lifecycle.IsClientError(err), errors.Is(err, lifecycle.ErrAlreadyHarvested):
		return "Rejected: " + err.Error()
	case errors.As(err, &apiErr):
		if apiErr.Message != "" {
			return "AgroSense: " + apiErr.Message
		}
		return fmt.Sprintf("AgroSense returned status %d.", apiErr.StatusCode)
	default:
		s.logger.Error("command failed", zap.String("command", string(cmd.Type)), zap.Error(err))
		return "Something went wrong, please try again later."
	}
}

// SendOutbound lets internal operators push quick notifications via HTTP.
func (s *MetaWhatsAppService) SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error {
	return s.send(ctx, req.To, req.Message)
}

// NotifyOperator sends body to the configured operator number.
func (s *MetaWhatsAppService) NotifyOperator(ctx context.Context, body string) error {
	if s.cfg.OperatorID == "" {
		return errors.New("operator number is not configured")
	}
	return s.send(ctx, s.cfg.OperatorID, body)
}

func (s *MetaWhatsAppService) send(ctx context.Context, to, body string) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	_, err := s.client.SendTextMessage(ctxWithTimeout, client.SendTextMessageRequest{
		To:   to,
		Body: body,
	})
	if err != nil {
		return fmt.Errorf("send to %s: %w", to, err)
	}
	return nil
}

func extractMessageText(msg models.InboundMessage) string {
	if msg.Text != nil {
		return msg.Text.Body
	}
	if msg.Interactive != nil && msg.Interactive.ButtonReply != nil {
		return msg.Interactive.ButtonReply.ID
	}
	return ""
}

func normaliseNumber(n string) string {
	return strings.TrimPrefix(strings.TrimSpace(n), "+")
}
