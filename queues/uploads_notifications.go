package queues

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/nanostudio/nanostudio-services-uploads/internal/logging"
	"github.com/nanostudio/nanostudio-services-uploads/models"
	"github.com/nanostudio/nanostudio-services-uploads/services"
)

type UploadsNotifyReceiver interface {
	Start()
	Shutdown(ctx context.Context) error
}

// SQSClient is the slice of the SQS API the receiver needs.
type SQSClient interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// UploadsNotifyReceiverImpl long-polls the upload-completed queue and hands
// each event to the completion service. Messages are deleted only when
// processing succeeded or the message is poison; transient failures leave the
// message for redelivery after the visibility timeout.
type UploadsNotifyReceiverImpl struct {
	client        SQSClient
	completionSvc services.UploadCompletionService
	queueUrl      string

	logger logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewUploadsNotifyReceiverImpl(
	parent context.Context,
	client SQSClient,
	completionSvc services.UploadCompletionService,
	queueUrl string,
	l logging.Logger,
) *UploadsNotifyReceiverImpl {

	ctx, cancel := context.WithCancel(parent)

	return &UploadsNotifyReceiverImpl{
		client:        client,
		completionSvc: completionSvc,
		queueUrl:      queueUrl,
		logger:        l,
		ctx:           ctx,
		cancel:        cancel,
	}
}

func (r *UploadsNotifyReceiverImpl) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_ = r.pollLoop()
	}()
}

func (r *UploadsNotifyReceiverImpl) pollLoop() error {
	for {
		select {
		case <-r.ctx.Done():
			return r.ctx.Err()
		default:
		}

		out, err := r.client.ReceiveMessage(r.ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(r.queueUrl),
			MaxNumberOfMessages: 1,
			WaitTimeSeconds:     20, // long poll
			VisibilityTimeout:   30,
		})
		if err != nil {
			select {
			case <-r.ctx.Done():
				return r.ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		for _, msg := range out.Messages {
			r.handleMessage(r.ctx, msg)
		}
	}
}

func (r *UploadsNotifyReceiverImpl) deleteMessage(ctx context.Context, msg types.Message) error {
	_, err := r.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(r.queueUrl),
		ReceiptHandle: msg.ReceiptHandle,
	})
	return err
}

func (r *UploadsNotifyReceiverImpl) handleMessage(ctx context.Context, msg types.Message) {
	if msg.Body == nil {
		r.deleteMessage(ctx, msg)
		return
	}

	var evt models.UploadCompletedEvent
	if err := json.Unmarshal([]byte(*msg.Body), &evt); err != nil || evt.UploadId == "" {
		// poison message
		r.logger.Warn("dropping unreadable uploads notification", "error", err)
		r.deleteMessage(ctx, msg)
		return
	}

	if err := r.completionSvc.CompleteUpload(ctx, evt.UploadId); err != nil {
		r.logger.Error("upload completion failed, message left for redelivery", "upload_id", evt.UploadId, "error", err)
		return // retry
	}

	r.deleteMessage(ctx, msg)
}

func (r *UploadsNotifyReceiverImpl) Shutdown(ctx context.Context) error {
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
