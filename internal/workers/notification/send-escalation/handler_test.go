// internal/workers/notification/send-escalation/handler_test.go
package sendescalation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biolens-workers/internal/common/logger"
)

type mockSES struct {
	calls     int
	err       error
	lastInput *ses.SendEmailInput
}

func (m *mockSES) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	m.calls++
	m.lastInput = params
	if m.err != nil {
		return nil, m.err
	}
	return &ses.SendEmailOutput{}, nil
}

type mockSNS struct {
	calls     int
	err       error
	lastInput *sns.PublishInput
}

func (m *mockSNS) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.calls++
	m.lastInput = params
	if m.err != nil {
		return nil, m.err
	}
	return &sns.PublishOutput{}, nil
}

func newTestHandler(t *testing.T, sesMock SESService, snsMock SNSService) *Handler {
	t.Helper()
	return &Handler{
		config: &Config{
			Enabled:       true,
			MaxJobsActive: 1,
			Timeout:       5 * time.Second,
			EmailEnabled:  true,
			SMSEnabled:    true,
			FromEmail:     "alerts@biolens.health",
			AWSRegion:     "us-east-1",
		},
		logger:    logger.NewTestLogger(t),
		sesClient: sesMock,
		snsClient: snsMock,
	}
}

func highRiskInput() *Input {
	return &Input{
		SessionID:    "sess-1",
		RiskLevel:    "high",
		UrgencyLevel: "immediate",
		Condition:    "Melanoma",
		Email:        "user@example.com",
		Phone:        "+15550100",
		Factors:      []string{"Melanoma requires prompt clinical evaluation"},
	}
}

func TestExecute_HighRiskSendsBothChannels(t *testing.T) {
	sesMock := &mockSES{}
	snsMock := &mockSNS{}
	h := newTestHandler(t, sesMock, snsMock)

	output, err := h.Execute(context.Background(), highRiskInput())
	require.NoError(t, err)

	assert.Equal(t, StatusSent, output.Status)
	assert.True(t, output.EmailSent)
	assert.True(t, output.SMSSent)
	assert.Equal(t, 1, sesMock.calls)
	assert.Equal(t, 1, snsMock.calls)
	assert.NotEmpty(t, output.EscalationID)

	require.NotNil(t, sesMock.lastInput)
	assert.Equal(t, "alerts@biolens.health", *sesMock.lastInput.Source)
	assert.Contains(t, *sesMock.lastInput.Message.Body.Text.Data, "Melanoma")

	require.NotNil(t, snsMock.lastInput)
	assert.Equal(t, "+15550100", *snsMock.lastInput.PhoneNumber)
}

func TestExecute_LowRiskSkipped(t *testing.T) {
	sesMock := &mockSES{}
	snsMock := &mockSNS{}
	h := newTestHandler(t, sesMock, snsMock)

	input := highRiskInput()
	input.RiskLevel = "low"
	input.UrgencyLevel = "routine"

	output, err := h.Execute(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, StatusSkipped, output.Status)
	assert.Equal(t, 0, sesMock.calls)
	assert.Equal(t, 0, snsMock.calls)
}

func TestExecute_ImmediateUrgencyEscalatesRegardlessOfRisk(t *testing.T) {
	sesMock := &mockSES{}
	h := newTestHandler(t, sesMock, &mockSNS{})

	input := highRiskInput()
	input.RiskLevel = "moderate"
	input.UrgencyLevel = "immediate"
	input.Phone = ""

	output, err := h.Execute(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, StatusSent, output.Status)
	assert.Equal(t, 1, sesMock.calls)
}

func TestExecute_EmailFailureReportsFailed(t *testing.T) {
	sesMock := &mockSES{err: fmt.Errorf("ses throttled")}
	snsMock := &mockSNS{}
	h := newTestHandler(t, sesMock, snsMock)

	output, err := h.Execute(context.Background(), highRiskInput())
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, output.Status)
	assert.False(t, output.EmailSent)
	// SMS is not attempted once email fails.
	assert.Equal(t, 0, snsMock.calls)
}

func TestExecute_NoContactDetailsSkipped(t *testing.T) {
	h := newTestHandler(t, &mockSES{}, &mockSNS{})

	input := highRiskInput()
	input.Email = ""
	input.Phone = ""

	output, err := h.Execute(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, output.Status)
}

func TestExecute_DisabledChannelsNotUsed(t *testing.T) {
	sesMock := &mockSES{}
	snsMock := &mockSNS{}
	h := newTestHandler(t, sesMock, snsMock)
	h.config.EmailEnabled = false
	h.config.SMSEnabled = false

	output, err := h.Execute(context.Background(), highRiskInput())
	require.NoError(t, err)

	assert.Equal(t, StatusSkipped, output.Status)
	assert.Equal(t, 0, sesMock.calls)
	assert.Equal(t, 0, snsMock.calls)
}

func TestShouldEscalate(t *testing.T) {
	assert.True(t, shouldEscalate(&Input{RiskLevel: "high"}))
	assert.True(t, shouldEscalate(&Input{RiskLevel: "HIGH"}))
	assert.True(t, shouldEscalate(&Input{UrgencyLevel: "immediate"}))
	assert.False(t, shouldEscalate(&Input{RiskLevel: "moderate", UrgencyLevel: "within_week"}))
	assert.False(t, shouldEscalate(&Input{}))
}
