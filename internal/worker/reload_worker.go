package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"content-indexer/internal/app"
	"content-indexer/internal/model"
	"content-indexer/internal/platform/rabbitmq"
)

type IndexRunner interface {
	Run(ctx context.Context, opts app.RunOptions) (*app.RunResult, error)
}

var errBadRequest = errors.New("malformed reload request")

// ReloadWorker consumes reload requests one at a time and runs the indexer
// for each.
type ReloadWorker struct {
	conn      *amqp.Connection
	runner    IndexRunner
	queueName string
	log       *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewReloadWorker(conn *amqp.Connection, runner IndexRunner, queueName string, log *zap.Logger) *ReloadWorker {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReloadWorker{
		conn:      conn,
		runner:    runner,
		queueName: queueName,
		log:       log.With(zap.String("queue", queueName)),
	}
}

func (w *ReloadWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if _, err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}

	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker prefetch failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}

				if err := w.handle(workerCtx, d.Body); err != nil {
					w.log.Error("reload request failed", zap.String("message_id", d.MessageId), zap.Error(err))
					_ = d.Nack(false, false)
					continue
				}

				_ = d.Ack(false)
			}
		}
	}()

	w.log.Info("reload worker started")
	return nil
}

func (w *ReloadWorker) handle(ctx context.Context, body []byte) error {
	var req model.ReloadRequest
	if len(body) > 0 {
		if err := sonic.Unmarshal(body, &req); err != nil {
			return fmt.Errorf("%w: %v", errBadRequest, err)
		}
	}

	w.log.Info("reload requested",
		zap.String("request_id", req.RequestID),
		zap.String("requested_by", req.RequestedBy),
	)
	result, err := w.runner.Run(ctx, app.RunOptions{SourcePath: req.SourcePath})
	if err != nil {
		return err
	}
	w.log.Info("reload request done",
		zap.String("request_id", req.RequestID),
		zap.String("run_id", result.RunID),
		zap.Int64("inserted", result.Load.Inserted),
	)
	return nil
}

func (w *ReloadWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
