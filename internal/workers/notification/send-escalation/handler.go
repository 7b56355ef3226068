// internal/workers/notification/send-escalation/handler.go
package sendescalation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"

	"biolens-workers/internal/common/logger"
	"biolens-workers/internal/common/metrics"
)

const (
	TaskType = "send-escalation"
)

// Interfaces over the AWS clients so tests can substitute mocks.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Handler struct {
	config    *Config
	logger    logger.Logger
	sesClient SESService
	snsClient SNSService
}

func NewHandler(config *Config, log logger.Logger) (*Handler, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(config.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &Handler{
		config:    config,
		logger:    log.WithFields(map[string]interface{}{"taskType": TaskType}),
		sesClient: ses.NewFromConfig(awsCfg),
		snsClient: sns.NewFromConfig(awsCfg),
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(client, job, "PARSE_ERROR", fmt.Sprintf("parse input: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.failJob(client, job, "ESCALATION_SEND_FAILED", err.Error())
		return
	}

	h.completeJob(client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

// execute sends the escalation over the enabled channels. Only high-risk or
// immediate-urgency consultations escalate; everything else is skipped so
// the process can continue without branching on risk upstream.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	escalationID := uuid.New().String()
	sentAt := time.Now().UTC().Format(time.RFC3339)

	if !shouldEscalate(input) {
		h.logger.Info("escalation skipped", map[string]interface{}{
			"sessionId":    input.SessionID,
			"riskLevel":    input.RiskLevel,
			"urgencyLevel": input.UrgencyLevel,
		})
		return &Output{EscalationID: escalationID, Status: StatusSkipped, SentAt: sentAt}, nil
	}

	subject, body := h.buildMessage(input)

	emailSent := false
	smsSent := false

	if h.config.EmailEnabled && input.Email != "" {
		if err := h.sendEmail(ctx, input.Email, subject, body); err != nil {
			h.logger.Error("escalation email failed", map[string]interface{}{
				"sessionId": input.SessionID,
				"error":     err.Error(),
			})
			return &Output{EscalationID: escalationID, Status: StatusFailed, SentAt: sentAt}, nil
		}
		emailSent = true
	}

	if h.config.SMSEnabled && input.Phone != "" {
		if err := h.sendSMS(ctx, input.Phone, smsText(input)); err != nil {
			h.logger.Error("escalation SMS failed", map[string]interface{}{
				"sessionId": input.SessionID,
				"error":     err.Error(),
			})
			return &Output{EscalationID: escalationID, Status: StatusFailed, EmailSent: emailSent, SentAt: sentAt}, nil
		}
		smsSent = true
	}

	status := StatusSkipped
	if emailSent || smsSent {
		status = StatusSent
	}

	h.logger.Info("escalation processed", map[string]interface{}{
		"sessionId": input.SessionID,
		"status":    status,
		"emailSent": emailSent,
		"smsSent":   smsSent,
	})

	return &Output{
		EscalationID: escalationID,
		Status:       status,
		EmailSent:    emailSent,
		SMSSent:      smsSent,
		SentAt:       sentAt,
	}, nil
}

func shouldEscalate(input *Input) bool {
	return strings.EqualFold(input.RiskLevel, "high") || strings.EqualFold(input.UrgencyLevel, "immediate")
}

func (h *Handler) buildMessage(input *Input) (string, string) {
	subject := "Your skin analysis needs prompt attention"

	var b strings.Builder
	b.WriteString("Your recent skin image analysis was flagged for prompt medical follow-up.\n\n")
	if input.Condition != "" {
		fmt.Fprintf(&b, "Finding: %s\n", input.Condition)
	}
	fmt.Fprintf(&b, "Risk level: %s\n", input.RiskLevel)
	if input.UrgencyLevel != "" {
		fmt.Fprintf(&b, "Recommended timeline: %s\n", input.UrgencyLevel)
	}
	if len(input.Factors) > 0 {
		b.WriteString("\nWhy this was flagged:\n")
		for _, factor := range input.Factors {
			fmt.Fprintf(&b, "- %s\n", factor)
		}
	}
	b.WriteString("\nPlease contact a healthcare provider as soon as possible. ")
	b.WriteString("This notification is informational and is not a substitute for professional medical advice.\n")

	return subject, b.String()
}

func smsText(input *Input) string {
	condition := input.Condition
	if condition == "" {
		condition = "a skin condition"
	}
	return fmt.Sprintf("BioLens alert: your skin analysis flagged %s for prompt follow-up. Please contact a healthcare provider as soon as possible.", condition)
}

func (h *Handler) sendEmail(ctx context.Context, to, subject, body string) error {
	_, err := h.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(h.config.FromEmail),
	})
	return err
}

func (h *Handler) sendSMS(ctx context.Context, to, message string) error {
	_, err := h.snsClient.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(to),
		Message:     aws.String(message),
	})
	return err
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
	}
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, errorCode, errorMessage string) {
	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":       job.Key,
		"errorCode":    errorCode,
		"errorMessage": errorMessage,
	})
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, errorCode).Inc()

	_, err := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(errorCode).
		ErrorMessage(errorMessage).
		Send(context.Background())
	if err != nil {
		h.logger.Error("failed to throw error", map[string]interface{}{
			"error": err,
		})
	}
}

// Execute exposes the escalation logic for tests.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
