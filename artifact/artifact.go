// Package artifact defines the persisted model bundle and the stores it is
// written to. A bundle is a single JSON document so it can be read without
// this module's package layout.
package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"city311-api/features"
	"city311-api/forest"
	"city311-api/training"
)

const (
	// FormatVersion is bumped whenever the JSON layout changes.
	FormatVersion = 1

	ModelKey    = "model.json"
	InsightsKey = "insights.json"
)

var ErrInvalid = errors.New("invalid model artifact")

// Artifact is the immutable output of one pipeline run.
type Artifact struct {
	Version           int                     `json:"version"`
	RunID             string                  `json:"run_id"`
	TrainedAt         time.Time               `json:"trained_at"`
	ColumnOrder       []string                `json:"column_order"`
	Fields            []string                `json:"fields,omitempty"`
	CategoricalValues features.Domain         `json:"categorical_values"`
	Metrics           training.Metrics        `json:"metrics"`
	FeatureImportance []training.FeatureScore `json:"feature_importance"`
	Model             *forest.Forest          `json:"model"`
}

// Validate checks the encoding contract: a non-empty column order whose width
// matches the classifier, and sorted category domains covering Fields.
func (a *Artifact) Validate() error {
	if a == nil {
		return fmt.Errorf("%w: nil artifact", ErrInvalid)
	}
	if len(a.ColumnOrder) == 0 {
		return fmt.Errorf("%w: %v", ErrInvalid, features.ErrNoColumns)
	}
	if a.Model == nil {
		return fmt.Errorf("%w: missing classifier", ErrInvalid)
	}
	if a.Model.NFeatures != len(a.ColumnOrder) {
		return fmt.Errorf("%w: classifier expects %d features, column order has %d",
			ErrInvalid, a.Model.NFeatures, len(a.ColumnOrder))
	}
	if err := a.Model.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := a.Schema(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Schema rebuilds the feature schema recorded in the artifact.
func (a *Artifact) Schema() (*features.Schema, error) {
	return features.NewSchema(a.ColumnOrder, a.CategoricalValues, a.Fields...)
}

// Marshal encodes the artifact as indented JSON.
func (a *Artifact) Marshal() ([]byte, error) {
	return json.MarshalIndent(a, "", " ")
}

// Unmarshal decodes and validates an artifact.
func Unmarshal(data []byte) (*Artifact, error) {
	var a Artifact
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if a.Version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalid, a.Version)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// Save validates and writes the artifact under ModelKey.
func Save(ctx context.Context, store Store, a *Artifact) error {
	if err := a.Validate(); err != nil {
		return err
	}
	data, err := a.Marshal()
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	return store.Put(ctx, ModelKey, data)
}

// Load reads and validates the artifact stored under ModelKey.
func Load(ctx context.Context, store Store) (*Artifact, error) {
	data, err := store.Get(ctx, ModelKey)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}
