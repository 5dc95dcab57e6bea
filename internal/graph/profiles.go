package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/retainly/pkg/models"
)

// SaveProfile validates and creates or replaces a retention profile.
// Persisting profiles here lets the sweeper pick up gateway edits
// without sharing a process.
func (s *Neo4jStore) SaveProfile(ctx context.Context, p *models.RetentionProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	stored := *p
	stored.UpdatedAt = s.now().UTC()

	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	session := s.writeSession(ctx)
	defer session.Close(ctx)

	query := `
		MERGE (n:RetentionProfile {vertical_id: $vertical_id})
		SET n.data = $data
	`
	_, err = session.Run(ctx, query, map[string]interface{}{
		"vertical_id": stored.VerticalID,
		"data":        string(data),
	})
	return err
}

// GetProfile retrieves a retention profile by vertical
func (s *Neo4jStore) GetProfile(ctx context.Context, verticalID string) (*models.RetentionProfile, error) {
	session := s.readSession(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (n:RetentionProfile {vertical_id: $vertical_id})
		RETURN n.data as data
	`
	result, err := session.Run(ctx, query, map[string]interface{}{"vertical_id": verticalID})
	if err != nil {
		return nil, err
	}

	record, err := result.Single(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: retention profile %s", models.ErrNotFound, verticalID)
	}

	var p models.RetentionProfile
	if err := unmarshalRecord(record, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProfiles retrieves all retention profiles
func (s *Neo4jStore) ListProfiles(ctx context.Context) ([]*models.RetentionProfile, error) {
	session := s.readSession(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (n:RetentionProfile)
		RETURN n.data as data
		ORDER BY n.vertical_id
	`
	result, err := session.Run(ctx, query, nil)
	if err != nil {
		return nil, err
	}

	var profiles []*models.RetentionProfile
	for result.Next(ctx) {
		var p models.RetentionProfile
		if err := unmarshalRecord(result.Record(), &p); err != nil {
			log.Printf("Failed to unmarshal profile: %v", err)
			continue
		}
		profiles = append(profiles, &p)
	}
	return profiles, nil
}

// DeleteProfile removes a retention profile
func (s *Neo4jStore) DeleteProfile(ctx context.Context, verticalID string) error {
	session := s.writeSession(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (n:RetentionProfile {vertical_id: $vertical_id})
		DETACH DELETE n
		RETURN count(n) as deleted
	`
	result, err := session.Run(ctx, query, map[string]interface{}{"vertical_id": verticalID})
	if err != nil {
		return err
	}

	record, err := result.Single(ctx)
	if err != nil {
		return err
	}
	if deleted, _ := record.AsMap()["deleted"].(int64); deleted == 0 {
		return fmt.Errorf("%w: retention profile %s", models.ErrNotFound, verticalID)
	}
	return nil
}
