package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"docrecon-backend/internal/bootstrap"
	"docrecon-backend/internal/shared/config"
	"docrecon-backend/internal/shared/metrics"
	"docrecon-backend/internal/shared/telemetry"
	"docrecon-backend/internal/workerproc"
)

const (
	defaultRegion             = "us-east-1"
	defaultVisibilitySeconds  = 1200
	defaultWorkerConcurrency  = 4
	defaultShutdownTimeoutSec = 30
)

func main() {
	cfg := config.Load()
	telemetry.SetLevel(cfg.LogLevel)

	queueURL := strings.TrimSpace(cfg.ReconcileQueueURL)
	if queueURL == "" {
		log.Fatal("RECONCILE_QUEUE_URL is required")
	}
	region := cfg.AWSRegion
	if region == "" {
		region = defaultRegion
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	visibilitySeconds := envInt("SQS_VISIBILITY_TIMEOUT_SECONDS", defaultVisibilitySeconds)
	concurrency := envInt("WORKER_CONCURRENCY", defaultWorkerConcurrency)
	shutdownTimeout := time.Duration(envInt("SHUTDOWN_TIMEOUT_SECONDS", defaultShutdownTimeoutSec)) * time.Second

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	var sqsClient sqsAPI = sqs.NewFromConfig(awsCfg)

	app, err := bootstrap.BuildWorker(cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()

	sem := make(chan struct{}, max(1, concurrency))
	var wg sync.WaitGroup

	log.Printf("worker started queue=%s concurrency=%d visibility=%ds", queueURL, concurrency, visibilitySeconds)

pollLoop:
	for {
		select {
		case <-ctx.Done():
			break pollLoop
		default:
		}

		resp, err := sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   int32(visibilitySeconds),
			AttributeNames:      []sqstypes.QueueAttributeName{sqstypes.QueueAttributeName("ApproximateReceiveCount")},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				break pollLoop
			}
			log.Printf("receive message: %v", err)
			continue
		}

		for _, msg := range resp.Messages {
			select {
			case <-ctx.Done():
				break pollLoop
			case sem <- struct{}{}:
			}
			metrics.IncReconcileJobsReceived()
			wg.Add(1)
			go func(m sqstypes.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				handleMessage(ctx, app.Reconciler, sqsClient, queueURL, m)
			}(msg)
		}
	}

	log.Printf("shutdown requested, waiting up to %s for in-flight reconciliations", shutdownTimeout)
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(shutdownTimeout):
		log.Printf("shutdown timeout reached; exiting with in-flight jobs")
	}
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

func handleMessage(ctx context.Context, r workerproc.Reconciler, client sqsAPI, queueURL string, msg sqstypes.Message) {
	body := aws.ToString(msg.Body)
	if strings.TrimSpace(body) == "" {
		fields := baseFields(msg, "", "")
		fields["body_len"] = 0
		telemetry.Error("worker.reconcile.empty_body", fields)
		if deleteMessage(ctx, client, queueURL, msg, "", "") {
			metrics.IncReconcileJobsDeletedUnrecoverable()
		}
		return
	}

	decoded, meta, err := workerproc.ParseMessage(body)
	if err != nil {
		switch e := err.(type) {
		case workerproc.ErrDecode:
			fields := baseFields(msg, "", "")
			fields["body_len"] = meta.BodyLen
			fields["body_sha256"] = meta.BodySHA
			fields["error"] = e.Err.Error()
			telemetry.Error("worker.reconcile.decode_failed", fields)
			if deleteMessage(ctx, client, queueURL, msg, "", "") {
				metrics.IncReconcileJobsDeletedUnrecoverable()
			}
			return
		case workerproc.ErrMissingBatchID:
			fields := baseFields(msg, "", e.RequestID)
			fields["body_len"] = meta.BodyLen
			fields["body_sha256"] = meta.BodySHA
			telemetry.Error("worker.reconcile.missing_id", fields)
			if deleteMessage(ctx, client, queueURL, msg, "", e.RequestID) {
				metrics.IncReconcileJobsDeletedUnrecoverable()
			}
			return
		default:
			fields := baseFields(msg, "", "")
			fields["body_len"] = meta.BodyLen
			if meta.BodySHA != "" {
				fields["body_sha256"] = meta.BodySHA
			}
			fields["error"] = err.Error()
			telemetry.Error("worker.reconcile.decode_failed", fields)
			if deleteMessage(ctx, client, queueURL, msg, "", "") {
				metrics.IncReconcileJobsDeletedUnrecoverable()
			}
			return
		}
	}

	telemetry.Info("worker.reconcile.received", baseFields(msg, decoded.BatchID, decoded.RequestID))

	ctxWithParsed := workerproc.WithParsedMessage(ctx, decoded)
	if err := workerproc.HandleMessage(ctxWithParsed, r, body); err != nil {
		if procErr, ok := err.(workerproc.ErrProcess); ok {
			fields := baseFields(msg, procErr.BatchID, procErr.RequestID)
			fields["error"] = procErr.Err.Error()
			telemetry.Error("worker.reconcile.failed", fields)
			metrics.IncReconcileJobsFailed()
			return
		}

		fields := baseFields(msg, decoded.BatchID, decoded.RequestID)
		fields["error"] = err.Error()
		telemetry.Error("worker.reconcile.failed", fields)
		metrics.IncReconcileJobsFailed()
		return
	}

	if deleteMessage(ctx, client, queueURL, msg, decoded.BatchID, decoded.RequestID) {
		telemetry.Info("worker.reconcile.completed", baseFields(msg, decoded.BatchID, decoded.RequestID))
		metrics.IncReconcileJobsCompleted()
	}
}

func deleteMessage(ctx context.Context, client sqsAPI, queueURL string, msg sqstypes.Message, batchID, requestID string) bool {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		fields := baseFields(msg, batchID, requestID)
		fields["error"] = "missing receipt handle"
		telemetry.Error("worker.reconcile.delete_failed", fields)
		return false
	}
	if _, err := client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		fields := baseFields(msg, batchID, requestID)
		fields["error"] = err.Error()
		telemetry.Error("worker.reconcile.delete_failed", fields)
		return false
	}
	return true
}

func baseFields(msg sqstypes.Message, batchID, requestID string) map[string]any {
	fields := map[string]any{
		"batch_id":       batchID,
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  receiveCount(msg),
	}
	if strings.TrimSpace(requestID) != "" {
		fields["request_id"] = requestID
	}
	return fields
}

func receiveCount(msg sqstypes.Message) int {
	if msg.Attributes == nil {
		return 0
	}
	raw := msg.Attributes["ApproximateReceiveCount"]
	if raw == "" {
		return 0
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}
