// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package mail

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/samber/oops"
)

// Queue settings for deferred delivery.
const (
	TaskTypeSend = "mail:send"
	QueueName    = "mail"
	maxRetry     = 5
)

// sendPayload is the task body. It carries the rendered message, so the
// reset link lives in Redis until the task completes.
type sendPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// enqueuer is the part of asynq.Client QueueSender uses.
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueSender hands messages to an asynq queue instead of sending inline, so
// a slow provider never delays the HTTP response.
type QueueSender struct {
	client enqueuer
	logger *slog.Logger
}

// NewQueueSender creates a QueueSender.
func NewQueueSender(client enqueuer, logger *slog.Logger) *QueueSender {
	return &QueueSender{client: client, logger: logger}
}

// Send implements Sender by enqueueing a delivery task.
func (s *QueueSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := validateRecipient(to); err != nil {
		return err
	}
	body, err := json.Marshal(sendPayload{To: to, Subject: subject, HTML: htmlBody})
	if err != nil {
		return oops.Code("MAIL_ENQUEUE_FAILED").Wrap(err)
	}

	task := asynq.NewTask(TaskTypeSend, body, asynq.Queue(QueueName), asynq.MaxRetry(maxRetry))
	info, err := s.client.EnqueueContext(ctx, task)
	if err != nil {
		return oops.Code("MAIL_ENQUEUE_FAILED").
			With("operation", "enqueue mail").
			Wrap(err)
	}
	s.logger.DebugContext(ctx, "mail queued", "task_id", info.ID, "queue", info.Queue)
	return nil
}

// NewDeliveryHandler returns the asynq handler that performs queued sends
// with delivery.
func NewDeliveryHandler(delivery Sender, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p sendPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			logger.Error("dropping undecodable mail task", "error", err)
			return errors.Join(err, asynq.SkipRetry)
		}
		if err := delivery.Send(ctx, p.To, p.Subject, p.HTML); err != nil {
			logger.Warn("queued mail delivery failed", "subject", p.Subject, "error", err)
			return err
		}
		return nil
	}
}

// Worker runs the asynq server that drains the mail queue.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// NewWorker creates a Worker delivering through delivery.
func NewWorker(redis asynq.RedisConnOpt, delivery Sender, logger *slog.Logger) *Worker {
	server := asynq.NewServer(redis, asynq.Config{
		Concurrency: 2,
		Queues:      map[string]int{QueueName: 1},
	})
	mux := asynq.NewServeMux()
	mux.Handle(TaskTypeSend, NewDeliveryHandler(delivery, logger))
	return &Worker{server: server, mux: mux, logger: logger}
}

// Run processes tasks until ctx is canceled, then shuts the server down.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return oops.Code("MAIL_WORKER_FAILED").With("operation", "start mail worker").Wrap(err)
	}
	w.logger.Info("mail worker started", "queue", QueueName)
	<-ctx.Done()
	w.server.Shutdown()
	w.logger.Info("mail worker stopped")
	return nil
}

var _ Sender = (*QueueSender)(nil)
