package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type fakeSender struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSender) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func TestSQSClientSendEncodesMessage(t *testing.T) {
	sender := &fakeSender{}
	client := &SQSClient{client: sender, queueURL: "https://sqs.example/queue"}

	msg := NewReconcileMessage("batch-1", "req-1", time.Now())
	if err := client.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(sender.inputs) != 1 {
		t.Fatalf("expected one send, got %d", len(sender.inputs))
	}
	in := sender.inputs[0]
	if aws.ToString(in.QueueUrl) != "https://sqs.example/queue" {
		t.Fatalf("unexpected queue url %q", aws.ToString(in.QueueUrl))
	}
	decoded, err := DecodeMessage([]byte(aws.ToString(in.MessageBody)))
	if err != nil || decoded.BatchID != "batch-1" {
		t.Fatalf("unexpected body %q: %v", aws.ToString(in.MessageBody), err)
	}
}

func TestSQSClientSendWrapsErrors(t *testing.T) {
	boom := errors.New("throttled")
	client := &SQSClient{client: &fakeSender{err: boom}, queueURL: "q"}
	if err := client.Send(context.Background(), Message{BatchID: "b"}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
