// internal/workers/consultation/generate-consultation/handler.go
package generateconsultation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"biolens-workers/internal/common/logger"
	"biolens-workers/internal/common/metrics"
	"biolens-workers/internal/common/observability"
	"biolens-workers/internal/common/validation"
	"biolens-workers/internal/consultation"
	"biolens-workers/internal/models"
)

const (
	TaskType = "generate-consultation"
)

// ConsultationStore persists completed consultations. Persistence is
// optional and best effort; a nil store disables it.
type ConsultationStore interface {
	Save(ctx context.Context, sessionID string, riskLevel models.RiskLevel, resp *models.ConsultationResponse) (string, error)
}

type Handler struct {
	config       *Config
	orchestrator *consultation.Orchestrator
	store        ConsultationStore
	obs          *observability.Observability
	logger       logger.Logger
}

func NewHandler(config *Config, orchestrator *consultation.Orchestrator, store ConsultationStore, obs *observability.Observability, log logger.Logger) *Handler {
	return &Handler{
		config:       config,
		orchestrator: orchestrator,
		store:        store,
		obs:          obs,
		logger:       log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
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

	output := h.execute(ctx, &input, []byte(job.Variables))
	h.completeJob(client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

// execute always produces a complete output: schema violations and AI
// failures both degrade to a locally generated consultation rather than
// failing the job.
func (h *Handler) execute(ctx context.Context, input *Input, raw []byte) *Output {
	start := time.Now()

	resp := h.orchestrator.GenerateConsultation(ctx, h.buildInput(input, raw))

	if h.obs != nil {
		path := "primary"
		if resp.Metadata.FallbackUsed {
			path = "fallback"
		}
		h.obs.RecordConsultation(ctx, path)
		h.obs.RecordDuration(ctx, time.Since(start), path)
	}

	output := &Output{
		Consultation: resp,
		SessionID:    input.SessionID,
	}

	if h.config.StoreResults && h.store != nil && input.SessionID != "" {
		riskLevel := models.RiskLevel(input.RiskLevel)
		id, err := h.store.Save(ctx, input.SessionID, riskLevel, resp)
		if err != nil {
			h.logger.Warn("consultation persistence failed", map[string]interface{}{
				"sessionId": input.SessionID,
				"error":     err.Error(),
			})
		} else {
			output.ConsultationID = id
		}
	}

	return output
}

// buildInput validates the raw payload and assembles the orchestrator input.
// A missing createdAt is stamped at entry; an unparsable one counts as a
// validation failure. Invalid input has its predictions stripped so the
// orchestrator serves its validation-category consultation.
func (h *Handler) buildInput(input *Input, raw []byte) *models.ConsultationInput {
	valid := true
	if result, err := validation.ValidateConsultationInput(raw); err != nil {
		h.logger.Warn("schema validation unavailable", map[string]interface{}{
			"error": err.Error(),
		})
	} else if !result.Valid {
		h.logger.Warn("input failed schema validation", map[string]interface{}{
			"sessionId": input.SessionID,
			"errors":    result.Errors,
		})
		valid = false
	}

	createdAt := time.Now().UTC()
	if input.CreatedAt != "" {
		ts, err := time.Parse(time.RFC3339, input.CreatedAt)
		if err != nil {
			h.logger.Warn("input carried an unparsable createdAt", map[string]interface{}{
				"sessionId": input.SessionID,
				"createdAt": input.CreatedAt,
			})
			valid = false
		} else {
			createdAt = ts
		}
	}

	if !valid {
		return &models.ConsultationInput{SessionID: input.SessionID, CreatedAt: createdAt}
	}
	return &models.ConsultationInput{
		Predictions: input.Predictions,
		Symptoms:    input.Symptoms,
		SessionID:   input.SessionID,
		RiskLevel:   input.RiskLevel,
		CreatedAt:   createdAt,
	}
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

// Execute exposes the core pipeline for tests.
func (h *Handler) Execute(ctx context.Context, input *Input, raw []byte) *Output {
	return h.execute(ctx, input, raw)
}
