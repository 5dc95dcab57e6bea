// Package graph persists retention state in Neo4j. Nodes carry a JSON
// data payload plus the handful of properties the queries filter on,
// so the Go models stay the single source of truth for shape.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/retainly/pkg/models"
)

// StoreConfig represents Neo4j store configuration
type StoreConfig struct {
	URI         string
	Database    string
	Username    string
	Password    string
	MaxPoolSize int
	ConnTimeout time.Duration
}

// Neo4jStore is the persistent retention store. It implements the same
// repository contracts as the in-memory store, so the engines do not
// know which one they run against.
type Neo4jStore struct {
	driver neo4j.DriverWithContext
	config StoreConfig
	now    func() time.Time
}

// NewNeo4jStore creates a new Neo4j retention store
func NewNeo4jStore(config StoreConfig) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(
		config.URI,
		neo4j.BasicAuth(config.Username, config.Password, ""),
		func(c *neo4j.Config) {
			c.MaxConnectionPoolSize = config.MaxPoolSize
			c.MaxConnectionLifetime = time.Hour
			c.ConnectionAcquisitionTimeout = config.ConnTimeout
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("failed to verify Neo4j connectivity: %w", err)
	}

	store := &Neo4jStore{
		driver: driver,
		config: config,
		now:    time.Now,
	}

	if err := store.initializeSchema(ctx); err != nil {
		log.Printf("Warning: failed to initialize schema: %v", err)
	}

	return store, nil
}

// Close releases the underlying driver
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// Ping verifies the database is reachable
func (s *Neo4jStore) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

// initializeSchema creates constraints and indexes
func (s *Neo4jStore) initializeSchema(ctx context.Context) error {
	session := s.writeSession(ctx)
	defer session.Close(ctx)

	constraints := []struct {
		name     string
		label    string
		property string
	}{
		{"profile_vertical_unique", "RetentionProfile", "vertical_id"},
		{"playbook_id_unique", "Playbook", "id"},
		{"execution_id_unique", "PlaybookExecution", "id"},
		{"signal_id_unique", "ExpansionSignal", "id"},
		{"nps_response_id_unique", "NpsResponse", "id"},
		{"survey_tenant_unique", "SurveyDispatch", "tenant_id"},
	}
	for _, c := range constraints {
		query := fmt.Sprintf("CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE",
			c.name, c.label, c.property)
		if _, err := session.Run(ctx, query, nil); err != nil {
			return fmt.Errorf("failed to create constraint %s: %w", c.name, err)
		}
	}

	indexes := []struct {
		name     string
		label    string
		property string
	}{
		{"score_tenant_idx", "HealthScore", "tenant_id"},
		{"prediction_tenant_idx", "ChurnPrediction", "tenant_id"},
		{"execution_tenant_idx", "PlaybookExecution", "tenant_id"},
		{"execution_status_idx", "PlaybookExecution", "status"},
		{"signal_tenant_idx", "ExpansionSignal", "tenant_id"},
		{"nps_tenant_idx", "NpsResponse", "tenant_id"},
	}
	for _, idx := range indexes {
		query := fmt.Sprintf("CREATE INDEX %s IF NOT EXISTS FOR (n:%s) ON (n.%s)",
			idx.name, idx.label, idx.property)
		if _, err := session.Run(ctx, query, nil); err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}

	return nil
}

func (s *Neo4jStore) writeSession(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.config.Database,
	})
}

func (s *Neo4jStore) readSession(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.config.Database,
	})
}

// SaveScore appends a health score record
func (s *Neo4jStore) SaveScore(ctx context.Context, score *models.HealthScore) error {
	session := s.writeSession(ctx)
	defer session.Close(ctx)

	data, err := json.Marshal(score)
	if err != nil {
		return fmt.Errorf("failed to marshal health score: %w", err)
	}

	query := `
		CREATE (n:HealthScore {tenant_id: $tenantId, calculated_at: $calculatedAt, data: $data})
	`
	_, err = session.Run(ctx, query, map[string]interface{}{
		"tenantId":     score.TenantID,
		"calculatedAt": score.CalculatedAt.UTC().Format(time.RFC3339Nano),
		"data":         string(data),
	})
	return err
}

// LatestScore returns the most recent health score for a tenant
func (s *Neo4jStore) LatestScore(ctx context.Context, tenantID string) (*models.HealthScore, error) {
	session := s.readSession(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (n:HealthScore {tenant_id: $tenantId})
		RETURN n.data as data
		ORDER BY n.calculated_at DESC
		LIMIT 1
	`
	result, err := session.Run(ctx, query, map[string]interface{}{"tenantId": tenantID})
	if err != nil {
		return nil, err
	}

	record, err := result.Single(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: no health score for tenant %s", models.ErrNotFound, tenantID)
	}

	var score models.HealthScore
	if err := unmarshalRecord(record, &score); err != nil {
		return nil, err
	}
	return &score, nil
}

// ScoreHistory returns scores newest first, up to limit
func (s *Neo4jStore) ScoreHistory(ctx context.Context, tenantID string, limit int) ([]*models.HealthScore, error) {
	session := s.readSession(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (n:HealthScore {tenant_id: $tenantId})
		RETURN n.data as data
		ORDER BY n.calculated_at DESC
		LIMIT $limit
	`
	result, err := session.Run(ctx, query, map[string]interface{}{
		"tenantId": tenantID,
		"limit":    limit,
	})
	if err != nil {
		return nil, err
	}

	var scores []*models.HealthScore
	for result.Next(ctx) {
		var score models.HealthScore
		if err := unmarshalRecord(result.Record(), &score); err != nil {
			log.Printf("Failed to unmarshal health score: %v", err)
			continue
		}
		scores = append(scores, &score)
	}
	return scores, nil
}

// UpsertPrediction overwrites the tenant's record for the prediction
// month. Months that have already elapsed are immutable.
func (s *Neo4jStore) UpsertPrediction(ctx context.Context, p *models.ChurnPrediction) error {
	currentMonth := s.now().UTC().Format(models.PredictionMonthLayout)
	if p.PredictionMonth < currentMonth {
		return fmt.Errorf("%w: prediction month %s has elapsed", models.ErrConflict, p.PredictionMonth)
	}

	session := s.writeSession(ctx)
	defer session.Close(ctx)

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal churn prediction: %w", err)
	}

	query := `
		MERGE (n:ChurnPrediction {tenant_id: $tenantId, month: $month})
		SET n.data = $data
	`
	_, err = session.Run(ctx, query, map[string]interface{}{
		"tenantId": p.TenantID,
		"month":    p.PredictionMonth,
		"data":     string(data),
	})
	return err
}

// LatestPrediction returns the tenant's most recent monthly prediction
func (s *Neo4jStore) LatestPrediction(ctx context.Context, tenantID string) (*models.ChurnPrediction, error) {
	session := s.readSession(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (n:ChurnPrediction {tenant_id: $tenantId})
		RETURN n.data as data
		ORDER BY n.month DESC
		LIMIT 1
	`
	result, err := session.Run(ctx, query, map[string]interface{}{"tenantId": tenantID})
	if err != nil {
		return nil, err
	}

	record, err := result.Single(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: no churn prediction for tenant %s", models.ErrNotFound, tenantID)
	}

	var p models.ChurnPrediction
	if err := unmarshalRecord(record, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// PredictionHistory returns predictions newest month first, up to limit
func (s *Neo4jStore) PredictionHistory(ctx context.Context, tenantID string, limit int) ([]*models.ChurnPrediction, error) {
	session := s.readSession(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (n:ChurnPrediction {tenant_id: $tenantId})
		RETURN n.data as data
		ORDER BY n.month DESC
		LIMIT $limit
	`
	result, err := session.Run(ctx, query, map[string]interface{}{
		"tenantId": tenantID,
		"limit":    limit,
	})
	if err != nil {
		return nil, err
	}

	var predictions []*models.ChurnPrediction
	for result.Next(ctx) {
		var p models.ChurnPrediction
		if err := unmarshalRecord(result.Record(), &p); err != nil {
			log.Printf("Failed to unmarshal churn prediction: %v", err)
			continue
		}
		predictions = append(predictions, &p)
	}
	return predictions, nil
}

func unmarshalRecord(record *neo4j.Record, target interface{}) error {
	raw, ok := record.AsMap()["data"].(string)
	if !ok {
		return fmt.Errorf("record has no data payload")
	}
	return json.Unmarshal([]byte(raw), target)
}
