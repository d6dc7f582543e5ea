package sqsqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"botgw/internal/domain"
)

type Producer struct {
	SQS      *sqs.Client
	QueueURL string
}

// ReplyJob is one outbound reply awaiting delivery. It carries no platform
// credentials; the sender resolves those from the deployment row at delivery
// time. Keep it small; SQS has a 256KB message size limit.
type ReplyJob struct {
	JobID        string          `json:"jobId"`
	DeploymentID string          `json:"deploymentId"`
	Platform     domain.Platform `json:"platform"`
	Recipient    string          `json:"recipient"`
	Text         string          `json:"text"`
}

func (p *Producer) EnqueueReply(ctx context.Context, job ReplyJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}

	// FIFO ordering per conversation
	groupID := fmt.Sprintf("%s:%s", job.DeploymentID, job.Recipient)
	_, err = p.SQS.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:               &p.QueueURL,
		MessageBody:            str(string(body)),
		MessageGroupId:         str(groupID),
		MessageDeduplicationId: str(job.JobID),
	})
	return err
}

// messageGroupIDBucketed hashes the conversation key into a fixed number of
// group buckets. FIFO queues cap throughput per message group; bucketing
// trades strict per-conversation ordering for parallelism on hot queues.
func messageGroupIDBucketed(deploymentID, recipient string, buckets uint32) string {
	if buckets == 0 {
		buckets = 128
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(deploymentID))
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write([]byte(recipient))
	return fmt.Sprintf("bucket-%d", h.Sum32()%buckets)
}

func str(s string) *string { return &s }
