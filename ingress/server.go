// Package ingress exposes the chat-platform webhook that turns photo
// messages into queued meal jobs. It does no analysis itself: accept,
// enqueue, confirm.
package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/gin-gonic/gin"

	"github.com/platewise/platewise/log"
	"github.com/platewise/platewise/types"
)

const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// Enqueuer is the slice of the SQS client the server uses.
type Enqueuer interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Notifier sends the immediate "processing" confirmation.
type Notifier interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// Config wires a Server.
type Config struct {
	// Queue is the SQS client (required).
	Queue Enqueuer
	// QueueURL is the job queue (required).
	QueueURL string
	// Notifier confirms receipt to the user (required).
	Notifier Notifier
	// WebhookSecret, when set, must match the webhook's secret token
	// header. Telegram sets it when the webhook is registered with one.
	WebhookSecret string
	// Addr is the listen address (default ":8080").
	Addr string
	// Logger is the process logger. Optional.
	Logger *log.Logger
}

// Server is the webhook HTTP server.
type Server struct {
	config Config
	router *gin.Engine

	now func() time.Time
}

// update is the subset of the Telegram webhook payload we read.
// Photo sizes arrive smallest first; the last entry is the original.
type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		MessageID int64 `json:"message_id"`
		Chat      struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Photo []struct {
			FileID string `json:"file_id"`
		} `json:"photo"`
	} `json:"message"`
}

// NewServer validates the wiring and creates a Server.
func NewServer(cfg Config) (*Server, error) {
	switch {
	case cfg.Queue == nil:
		return nil, errors.New("ingress requires an sqs client")
	case cfg.QueueURL == "":
		return nil, errors.New("ingress requires a queue url")
	case cfg.Notifier == nil:
		return nil, errors.New("ingress requires a notifier")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewProcessLogger("ingress")
	}

	gin.SetMode(gin.ReleaseMode)
	s := &Server{config: cfg, now: time.Now}

	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/healthz", s.health)
	router.POST("/webhook", s.webhook)
	s.router = router
	return s, nil
}

// Router exposes the handler for tests and embedding.
func (s *Server) Router() http.Handler {
	return s.router
}

// Run serves until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.config.Logger.Info("ingress listening", map[string]any{"addr": s.config.Addr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": types.Version})
}

// webhook accepts one Telegram update. Updates without a photo are
// acknowledged and dropped; returning an error status would only make
// Telegram redeliver something we will never want.
func (s *Server) webhook(c *gin.Context) {
	logger := s.config.Logger

	if s.config.WebhookSecret != "" && c.GetHeader(secretTokenHeader) != s.config.WebhookSecret {
		logger.Warn("webhook secret mismatch", map[string]any{"remote": c.ClientIP()})
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	var u update
	if err := c.ShouldBindJSON(&u); err != nil {
		logger.Warn("unreadable webhook payload", map[string]any{"error": err.Error()})
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if u.Message == nil || len(u.Message.Photo) == 0 {
		logger.Debug("update without photo, ignoring", map[string]any{"update_id": u.UpdateID})
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	chatID := strconv.FormatInt(u.Message.Chat.ID, 10)
	job := types.MealJob{
		IdempotencyKey: fmt.Sprintf("%d-%d", u.Message.Chat.ID, u.Message.MessageID),
		ChatIdentity:   chatID,
		ImageReference: u.Message.Photo[len(u.Message.Photo)-1].FileID,
		ReceivedAt:     s.now().UTC(),
	}

	body, err := json.Marshal(job)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "encode job"})
		return
	}

	_, err = s.config.Queue.SendMessage(c.Request.Context(), &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.config.QueueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		logger.Error("enqueue failed", map[string]any{
			"idempotency_key": job.IdempotencyKey,
			"error":           err.Error(),
		})
		s.notify(c.Request.Context(), chatID, "Sorry, there was an error processing your request.")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue failed"})
		return
	}

	logger.Info("job enqueued", map[string]any{
		"idempotency_key": job.IdempotencyKey,
		"chat_id":         chatID,
	})
	s.notify(c.Request.Context(), chatID, "Processing your meal...")
	c.JSON(http.StatusOK, gin.H{"status": "queued"})
}

// notify is best-effort; the queued job is the source of truth.
func (s *Server) notify(ctx context.Context, chatID, text string) {
	if err := s.config.Notifier.SendMessage(ctx, chatID, text); err != nil {
		s.config.Logger.Warn("confirmation failed", map[string]any{
			"chat_id": chatID,
			"error":   err.Error(),
		})
	}
}
