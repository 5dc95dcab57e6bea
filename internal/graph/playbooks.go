package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/retainly/pkg/models"
)

// SaveDefinition creates or replaces a playbook definition
func (s *Neo4jStore) SaveDefinition(ctx context.Context, def *models.PlaybookDefinition) error {
	session := s.writeSession(ctx)
	defer session.Close(ctx)

	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to marshal playbook: %w", err)
	}

	query := `
		MERGE (n:Playbook {id: $id})
		SET n.data = $data
	`
	_, err = session.Run(ctx, query, map[string]interface{}{
		"id":   def.PlaybookID,
		"data": string(data),
	})
	return err
}

// GetDefinition retrieves a playbook definition by ID
func (s *Neo4jStore) GetDefinition(ctx context.Context, playbookID string) (*models.PlaybookDefinition, error) {
	session := s.readSession(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (n:Playbook {id: $id})
		RETURN n.data as data
	`
	result, err := session.Run(ctx, query, map[string]interface{}{"id": playbookID})
	if err != nil {
		return nil, err
	}

	record, err := result.Single(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: playbook %s", models.ErrNotFound, playbookID)
	}

	var def models.PlaybookDefinition
	if err := unmarshalRecord(record, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

// ListDefinitions retrieves all playbook definitions
func (s *Neo4jStore) ListDefinitions(ctx context.Context) ([]*models.PlaybookDefinition, error) {
	session := s.readSession(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (n:Playbook)
		RETURN n.data as data
		ORDER BY n.id
	`
	result, err := session.Run(ctx, query, nil)
	if err != nil {
		return nil, err
	}

	var defs []*models.PlaybookDefinition
	for result.Next(ctx) {
		var def models.PlaybookDefinition
		if err := unmarshalRecord(result.Record(), &def); err != nil {
			log.Printf("Failed to unmarshal playbook: %v", err)
			continue
		}
		defs = append(defs, &def)
	}
	return defs, nil
}

// DeleteDefinition removes a playbook definition
func (s *Neo4jStore) DeleteDefinition(ctx context.Context, playbookID string) error {
	session := s.writeSession(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (n:Playbook {id: $id})
		DETACH DELETE n
		RETURN count(n) as deleted
	`
	result, err := session.Run(ctx, query, map[string]interface{}{"id": playbookID})
	if err != nil {
		return err
	}

	record, err := result.Single(ctx)
	if err != nil {
		return err
	}
	if deleted, _ := record.AsMap()["deleted"].(int64); deleted == 0 {
		return fmt.Errorf("%w: playbook %s", models.ErrNotFound, playbookID)
	}
	return nil
}

// CreateExecution creates a new execution if, and only if, no running
// or paused execution exists for the same playbook/tenant pair. The
// guard and the create run in one statement so concurrent starts
// cannot both pass the check.
func (s *Neo4jStore) CreateExecution(ctx context.Context, exec *models.PlaybookExecution) error {
	session := s.writeSession(ctx)
	defer session.Close(ctx)

	data, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("failed to marshal execution: %w", err)
	}

	query := `
		OPTIONAL MATCH (e:PlaybookExecution {playbook_id: $playbookId, tenant_id: $tenantId})
		WHERE e.status IN ['running', 'paused']
		WITH count(e) as active
		WHERE active = 0
		CREATE (n:PlaybookExecution {
			id: $id,
			playbook_id: $playbookId,
			tenant_id: $tenantId,
			status: $status,
			next_step_at: $nextStepAt,
			data: $data
		})
		RETURN n.id as id
	`
	result, err := session.Run(ctx, query, executionParams(exec, data))
	if err != nil {
		return err
	}

	if _, err := result.Single(ctx); err != nil {
		return fmt.Errorf("%w: playbook %s already active for tenant %s",
			models.ErrConflict, exec.PlaybookID, exec.TenantID)
	}
	return nil
}

// GetExecution retrieves an execution by ID
func (s *Neo4jStore) GetExecution(ctx context.Context, executionID string) (*models.PlaybookExecution, error) {
	session := s.readSession(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (n:PlaybookExecution {id: $id})
		RETURN n.data as data
	`
	result, err := session.Run(ctx, query, map[string]interface{}{"id": executionID})
	if err != nil {
		return nil, err
	}

	record, err := result.Single(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: execution %s", models.ErrNotFound, executionID)
	}

	var exec models.PlaybookExecution
	if err := unmarshalRecord(record, &exec); err != nil {
		return nil, err
	}
	return &exec, nil
}

// UpdateExecution replaces an execution's stored state
func (s *Neo4jStore) UpdateExecution(ctx context.Context, exec *models.PlaybookExecution) error {
	session := s.writeSession(ctx)
	defer session.Close(ctx)

	data, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("failed to marshal execution: %w", err)
	}

	query := `
		MATCH (n:PlaybookExecution {id: $id})
		SET n.status = $status, n.next_step_at = $nextStepAt, n.data = $data
		RETURN n.id as id
	`
	result, err := session.Run(ctx, query, executionParams(exec, data))
	if err != nil {
		return err
	}

	if _, err := result.Single(ctx); err != nil {
		return fmt.Errorf("%w: execution %s", models.ErrNotFound, exec.ExecutionID)
	}
	return nil
}

// ListExecutions retrieves executions, optionally filtered by tenant
func (s *Neo4jStore) ListExecutions(ctx context.Context, tenantID string) ([]*models.PlaybookExecution, error) {
	session := s.readSession(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (n:PlaybookExecution)
		WHERE $tenantId = '' OR n.tenant_id = $tenantId
		RETURN n.data as data
	`
	result, err := session.Run(ctx, query, map[string]interface{}{"tenantId": tenantID})
	if err != nil {
		return nil, err
	}

	var execs []*models.PlaybookExecution
	for result.Next(ctx) {
		var exec models.PlaybookExecution
		if err := unmarshalRecord(result.Record(), &exec); err != nil {
			log.Printf("Failed to unmarshal execution: %v", err)
			continue
		}
		execs = append(execs, &exec)
	}
	return execs, nil
}

// DueExecutions returns running executions whose next step is due
func (s *Neo4jStore) DueExecutions(ctx context.Context, now time.Time) ([]*models.PlaybookExecution, error) {
	session := s.readSession(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (n:PlaybookExecution {status: 'running'})
		WHERE n.next_step_at <= $now
		RETURN n.data as data
	`
	result, err := session.Run(ctx, query, map[string]interface{}{
		"now": now.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, err
	}

	var execs []*models.PlaybookExecution
	for result.Next(ctx) {
		var exec models.PlaybookExecution
		if err := unmarshalRecord(result.Record(), &exec); err != nil {
			log.Printf("Failed to unmarshal execution: %v", err)
			continue
		}
		execs = append(execs, &exec)
	}
	return execs, nil
}

func executionParams(exec *models.PlaybookExecution, data []byte) map[string]interface{} {
	return map[string]interface{}{
		"id":         exec.ExecutionID,
		"playbookId": exec.PlaybookID,
		"tenantId":   exec.TenantID,
		"status":     string(exec.Status),
		"nextStepAt": exec.NextStepAt.UTC().Format(time.RFC3339Nano),
		"data":       string(data),
	}
}
