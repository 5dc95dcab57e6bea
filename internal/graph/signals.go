package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/retainly/pkg/models"
)

// FindOpenSignal returns the open (new or contacted) signal of the
// given type for a tenant, or nil when none exists.
func (s *Neo4jStore) FindOpenSignal(ctx context.Context, tenantID string, signalType models.ExpansionSignalType) (*models.ExpansionSignal, error) {
	session := s.readSession(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (n:ExpansionSignal {tenant_id: $tenantId, type: $type})
		WHERE n.status IN ['new', 'contacted']
		RETURN n.data as data
		LIMIT 1
	`
	result, err := session.Run(ctx, query, map[string]interface{}{
		"tenantId": tenantID,
		"type":     string(signalType),
	})
	if err != nil {
		return nil, err
	}

	if !result.Next(ctx) {
		return nil, nil
	}

	var sig models.ExpansionSignal
	if err := unmarshalRecord(result.Record(), &sig); err != nil {
		return nil, err
	}
	return &sig, nil
}

// CreateSignal persists a new expansion signal
func (s *Neo4jStore) CreateSignal(ctx context.Context, sig *models.ExpansionSignal) error {
	session := s.writeSession(ctx)
	defer session.Close(ctx)

	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("failed to marshal expansion signal: %w", err)
	}

	query := `
		CREATE (n:ExpansionSignal {
			id: $id,
			tenant_id: $tenantId,
			type: $type,
			status: $status,
			data: $data
		})
	`
	_, err = session.Run(ctx, query, map[string]interface{}{
		"id":       sig.SignalID,
		"tenantId": sig.TenantID,
		"type":     string(sig.SignalType),
		"status":   string(sig.Status),
		"data":     string(data),
	})
	return err
}

// GetSignal retrieves an expansion signal by ID
func (s *Neo4jStore) GetSignal(ctx context.Context, signalID string) (*models.ExpansionSignal, error) {
	session := s.readSession(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (n:ExpansionSignal {id: $id})
		RETURN n.data as data
	`
	result, err := session.Run(ctx, query, map[string]interface{}{"id": signalID})
	if err != nil {
		return nil, err
	}

	record, err := result.Single(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: expansion signal %s", models.ErrNotFound, signalID)
	}

	var sig models.ExpansionSignal
	if err := unmarshalRecord(record, &sig); err != nil {
		return nil, err
	}
	return &sig, nil
}

// UpdateSignal replaces a signal's stored state
func (s *Neo4jStore) UpdateSignal(ctx context.Context, sig *models.ExpansionSignal) error {
	session := s.writeSession(ctx)
	defer session.Close(ctx)

	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("failed to marshal expansion signal: %w", err)
	}

	query := `
		MATCH (n:ExpansionSignal {id: $id})
		SET n.status = $status, n.data = $data
		RETURN n.id as id
	`
	result, err := session.Run(ctx, query, map[string]interface{}{
		"id":     sig.SignalID,
		"status": string(sig.Status),
		"data":   string(data),
	})
	if err != nil {
		return err
	}

	if _, err := result.Single(ctx); err != nil {
		return fmt.Errorf("%w: expansion signal %s", models.ErrNotFound, sig.SignalID)
	}
	return nil
}

// ListSignals retrieves signals, optionally filtered by tenant
func (s *Neo4jStore) ListSignals(ctx context.Context, tenantID string) ([]*models.ExpansionSignal, error) {
	session := s.readSession(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (n:ExpansionSignal)
		WHERE $tenantId = '' OR n.tenant_id = $tenantId
		RETURN n.data as data
	`
	result, err := session.Run(ctx, query, map[string]interface{}{"tenantId": tenantID})
	if err != nil {
		return nil, err
	}

	var signals []*models.ExpansionSignal
	for result.Next(ctx) {
		var sig models.ExpansionSignal
		if err := unmarshalRecord(result.Record(), &sig); err != nil {
			log.Printf("Failed to unmarshal expansion signal: %v", err)
			continue
		}
		signals = append(signals, &sig)
	}
	return signals, nil
}

// SaveResponse persists an NPS survey response
func (s *Neo4jStore) SaveResponse(ctx context.Context, r *models.NpsResponse) error {
	session := s.writeSession(ctx)
	defer session.Close(ctx)

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal nps response: %w", err)
	}

	query := `
		CREATE (n:NpsResponse {
			id: $id,
			tenant_id: $tenantId,
			submitted_at: $submittedAt,
			data: $data
		})
	`
	_, err = session.Run(ctx, query, map[string]interface{}{
		"id":          r.ResponseID,
		"tenantId":    r.TenantID,
		"submittedAt": r.SubmittedAt.UTC().Format(time.RFC3339Nano),
		"data":        string(data),
	})
	return err
}

// ListResponses returns responses in [from, to), oldest first
func (s *Neo4jStore) ListResponses(ctx context.Context, tenantID string, from, to time.Time) ([]*models.NpsResponse, error) {
	session := s.readSession(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (n:NpsResponse {tenant_id: $tenantId})
		WHERE n.submitted_at >= $from AND n.submitted_at < $to
		RETURN n.data as data
		ORDER BY n.submitted_at
	`
	result, err := session.Run(ctx, query, map[string]interface{}{
		"tenantId": tenantID,
		"from":     from.UTC().Format(time.RFC3339Nano),
		"to":       to.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, err
	}

	var responses []*models.NpsResponse
	for result.Next(ctx) {
		var r models.NpsResponse
		if err := unmarshalRecord(result.Record(), &r); err != nil {
			log.Printf("Failed to unmarshal nps response: %v", err)
			continue
		}
		responses = append(responses, &r)
	}
	return responses, nil
}

// LastSent returns when a survey was last dispatched to the tenant
func (s *Neo4jStore) LastSent(ctx context.Context, tenantID string) (time.Time, bool, error) {
	session := s.readSession(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (n:SurveyDispatch {tenant_id: $tenantId})
		RETURN n.sent_at as sentAt
	`
	result, err := session.Run(ctx, query, map[string]interface{}{"tenantId": tenantID})
	if err != nil {
		return time.Time{}, false, err
	}

	if !result.Next(ctx) {
		return time.Time{}, false, nil
	}

	raw, ok := result.Record().AsMap()["sentAt"].(string)
	if !ok {
		return time.Time{}, false, fmt.Errorf("survey dispatch for tenant %s has no timestamp", tenantID)
	}
	sentAt, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse survey dispatch timestamp: %w", err)
	}
	return sentAt, true, nil
}

// SetLastSent records a survey dispatch for the tenant
func (s *Neo4jStore) SetLastSent(ctx context.Context, tenantID string, at time.Time) error {
	session := s.writeSession(ctx)
	defer session.Close(ctx)

	query := `
		MERGE (n:SurveyDispatch {tenant_id: $tenantId})
		SET n.sent_at = $sentAt
	`
	_, err := session.Run(ctx, query, map[string]interface{}{
		"tenantId": tenantID,
		"sentAt":   at.UTC().Format(time.RFC3339Nano),
	})
	return err
}
