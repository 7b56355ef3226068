// internal/consultation/store/store.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"biolens-workers/internal/common/logger"
	"biolens-workers/internal/models"
)

// historyCacheTTL is how long a session's consultation history stays cached.
const historyCacheTTL = 30 * time.Second

// Record is a persisted consultation.
type Record struct {
	ID           string                       `json:"id"`
	SessionID    string                       `json:"sessionId"`
	RiskLevel    string                       `json:"riskLevel"`
	UrgencyLevel string                       `json:"urgencyLevel"`
	ModelUsed    string                       `json:"modelUsed"`
	FallbackUsed bool                         `json:"fallbackUsed"`
	Response     *models.ConsultationResponse `json:"response"`
	CreatedAt    time.Time                    `json:"createdAt"`
}

// Store persists consultations in Postgres and caches per-session history
// in Redis. The cache is best effort; Redis failures degrade to the
// database, never to an error.
type Store struct {
	db     *sql.DB
	cache  *redis.Client
	logger logger.Logger
}

func New(db *sql.DB, cache *redis.Client, log logger.Logger) *Store {
	return &Store{
		db:     db,
		cache:  cache,
		logger: log.WithFields(map[string]interface{}{"component": "consultation-store"}),
	}
}

// Save inserts a completed consultation and invalidates the session's cached
// history. The generated record id is returned.
func (s *Store) Save(ctx context.Context, sessionID string, riskLevel models.RiskLevel, resp *models.ConsultationResponse) (string, error) {
	payload, err := json.Marshal(resp)
	if err != nil {
		return "", fmt.Errorf("marshal consultation: %w", err)
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO consultations (id, session_id, risk_level, urgency_level, model_used, fallback_used, response, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id,
		sessionID,
		string(riskLevel),
		string(resp.Consultation.UrgencyLevel),
		resp.Metadata.ModelUsed,
		resp.Metadata.FallbackUsed,
		payload,
		time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("insert consultation: %w", err)
	}

	s.invalidateHistory(ctx, sessionID)
	return id, nil
}

// RecentBySession returns the newest consultations for a session, newest
// first, serving from the Redis cache when a fresh copy exists.
func (s *Store) RecentBySession(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}

	key := historyKey(sessionID, limit)
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, key).Bytes()
		if err == nil {
			var records []Record
			if err := json.Unmarshal(cached, &records); err == nil {
				return records, nil
			}
			// Corrupt cache entry; fall through to the database.
			s.cache.Del(ctx, key)
		} else if err != redis.Nil {
			s.logger.Warn("history cache read failed", map[string]interface{}{
				"sessionId": sessionID,
				"error":     err.Error(),
			})
		}
	}

	records, err := s.queryRecent(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if payload, err := json.Marshal(records); err == nil {
			if err := s.cache.Set(ctx, key, payload, historyCacheTTL).Err(); err != nil {
				s.logger.Warn("history cache write failed", map[string]interface{}{
					"sessionId": sessionID,
					"error":     err.Error(),
				})
			}
		}
	}

	return records, nil
}

func (s *Store) queryRecent(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, risk_level, urgency_level, model_used, fallback_used, response, created_at
		FROM consultations
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query consultations: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var rec Record
		var payload []byte
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.RiskLevel, &rec.UrgencyLevel, &rec.ModelUsed, &rec.FallbackUsed, &payload, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan consultation row: %w", err)
		}
		if len(payload) > 0 {
			var resp models.ConsultationResponse
			if err := json.Unmarshal(payload, &resp); err == nil {
				rec.Response = &resp
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consultation rows: %w", err)
	}

	return records, nil
}

func (s *Store) invalidateHistory(ctx context.Context, sessionID string) {
	if s.cache == nil {
		return
	}
	iter := s.cache.Scan(ctx, 0, historyKeyPrefix(sessionID)+"*", 50).Iterator()
	for iter.Next(ctx) {
		s.cache.Del(ctx, iter.Val())
	}
	if err := iter.Err(); err != nil {
		s.logger.Warn("history cache invalidation failed", map[string]interface{}{
			"sessionId": sessionID,
			"error":     err.Error(),
		})
	}
}

func historyKeyPrefix(sessionID string) string {
	return "consultation:history:" + sessionID + ":"
}

func historyKey(sessionID string, limit int) string {
	return fmt.Sprintf("%s%d", historyKeyPrefix(sessionID), limit)
}
