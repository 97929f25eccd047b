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

	"talentpool-backend/internal/bootstrap"
	"talentpool-backend/internal/queue"
	"talentpool-backend/internal/settlement"
	"talentpool-backend/internal/shared/config"
	"talentpool-backend/internal/shared/storage/db"
	"talentpool-backend/internal/shared/telemetry"
)

const (
	defaultVisibilitySeconds  = 120
	defaultSettlerConcurrency = 4
	defaultShutdownTimeoutSec = 30
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	queueURL := strings.TrimSpace(cfg.PayoutQueueURL)
	if queueURL == "" {
		log.Fatal("PAYOUT_SQS_QUEUE_URL is required")
	}
	region := cfg.AWSRegion
	if region == "" {
		region = queue.DefaultRegion
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	visibilitySeconds := envInt("SETTLER_VISIBILITY_TIMEOUT_SECONDS", defaultVisibilitySeconds)
	concurrency := envInt("SETTLER_CONCURRENCY", defaultSettlerConcurrency)
	shutdownTimeout := time.Duration(envInt("SETTLER_SHUTDOWN_TIMEOUT_SECONDS", defaultShutdownTimeoutSec)) * time.Second

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	var sqsClient sqsAPI = sqs.NewFromConfig(awsCfg)

	sqlDB, err := bootstrap.BuildDB(ctx, cfg, db.DefaultSettlerOptions())
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	if sqlDB != nil {
		defer sqlDB.Close()
	}
	rdb, err := bootstrap.BuildRedis(cfg)
	if err != nil {
		log.Fatalf("connect redis: %v", err)
	}
	if rdb != nil {
		defer rdb.Close()
	}
	// Locks expire no later than the message becomes visible again.
	processor := bootstrap.BuildProcessor(sqlDB, rdb, time.Duration(visibilitySeconds)*time.Second)

	sem := make(chan struct{}, max(1, concurrency))
	var wg sync.WaitGroup

	log.Printf("settler started queue=%s concurrency=%d visibility=%ds", queueURL, concurrency, visibilitySeconds)

pollLoop:
	for {
		select {
		case <-ctx.Done():
			break pollLoop
		default:
		}

		resp, err := sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:              aws.String(queueURL),
			MaxNumberOfMessages:   10,
			WaitTimeSeconds:       20,
			VisibilityTimeout:     int32(visibilitySeconds),
			AttributeNames:        []sqstypes.QueueAttributeName{sqstypes.QueueAttributeName("ApproximateReceiveCount")},
			MessageAttributeNames: []string{"All"},
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
			wg.Add(1)
			go func(m sqstypes.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				// In-flight settlements finish even after a shutdown signal.
				handleMessage(context.WithoutCancel(ctx), sqsClient, queueURL, processor, m)
			}(msg)
		}
	}

	log.Printf("shutdown requested, waiting up to %s for in-flight payouts", shutdownTimeout)
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(shutdownTimeout):
		log.Printf("shutdown timeout reached; exiting with in-flight payouts")
	}
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type payoutProcessor interface {
	Process(ctx context.Context, body string) (settlement.Outcome, error)
}

// handleMessage settles one payout. Messages are deleted once settled,
// recognised as duplicates, or found to be permanently malformed; transient
// failures, including intents locked by another attempt, are left for
// redelivery.
func handleMessage(ctx context.Context, client sqsAPI, queueURL string, processor payoutProcessor, msg sqstypes.Message) {
	body := aws.ToString(msg.Body)
	outcome, err := processor.Process(ctx, body)
	if err != nil {
		fields := baseFields(msg)
		fields["error"] = err.Error()
		if settlement.IsPermanent(err) {
			meta := settlement.ComputeMeta(body)
			fields["body_len"] = meta.BodyLen
			if meta.BodySHA != "" {
				fields["body_sha256"] = meta.BodySHA
			}
			var invalid settlement.ErrInvalidMessage
			if errors.As(err, &invalid) {
				fields["intent_id"] = invalid.IntentID
			}
			telemetry.Error("settler.payout.unrecoverable", fields)
			deleteMessage(ctx, client, queueURL, msg)
			return
		}
		var procErr settlement.ErrProcess
		if errors.As(err, &procErr) {
			fields["intent_id"] = procErr.IntentID
		}
		telemetry.Error("settler.payout.failed", fields)
		return
	}

	fields := baseFields(msg)
	fields["outcome"] = string(outcome)
	if deleteMessage(ctx, client, queueURL, msg) {
		telemetry.Info("settler.payout.completed", fields)
	}
}

func deleteMessage(ctx context.Context, client sqsAPI, queueURL string, msg sqstypes.Message) bool {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		fields := baseFields(msg)
		fields["error"] = "missing receipt handle"
		telemetry.Error("settler.payout.delete_failed", fields)
		return false
	}
	if _, err := client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		fields := baseFields(msg)
		fields["error"] = err.Error()
		telemetry.Error("settler.payout.delete_failed", fields)
		return false
	}
	return true
}

func baseFields(msg sqstypes.Message) map[string]any {
	fields := map[string]any{
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  receiveCount(msg),
	}
	if id := msg.MessageAttributes["IntentId"].StringValue; id != nil {
		fields["intent_id"] = *id
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
