// Package graph publishes meta-provenance lineage events to the
// knowledge-graph ingestion stream after each accepted fold.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360studio/semstreams/message"
	"github.com/c360studio/semstreams/natsclient"

	"github.com/c360studio/provreg/metaprov"
)

// LineageIngestSubject is the stream subject for lineage events.
const LineageIngestSubject = "provenance.ingest.lineage"

const tripleSource = "provreg.metaprov"

// LineageIngestMessage is the message format for lineage ingestion.
type LineageIngestMessage struct {
	ID        string           `json:"id"`
	Triples   []message.Triple `json:"triples"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// PublishFold publishes the lineage triples of one meta-provenance fold.
// A nil NATS client is a no-op so the registry degrades gracefully when
// running without a graph backend.
func PublishFold(ctx context.Context, nc *natsclient.Client, metaBundle string, result metaprov.FoldResult) error {
	if nc == nil {
		return nil
	}

	entityID := VersionEntityID(metaBundle, result.ConcreteID.Local)
	now := time.Now()

	triples := []message.Triple{
		{
			Subject:    entityID,
			Predicate:  "provenance.lineage.meta_bundle",
			Object:     metaBundle,
			Source:     tripleSource,
			Timestamp:  now,
			Confidence: 1.0,
		},
		{
			Subject:    entityID,
			Predicate:  "provenance.lineage.general",
			Object:     result.GeneralID.String(),
			Source:     tripleSource,
			Timestamp:  now,
			Confidence: 1.0,
		},
		{
			Subject:    entityID,
			Predicate:  "provenance.lineage.version",
			Object:     result.Version,
			Source:     tripleSource,
			Timestamp:  now,
			Confidence: 1.0,
		},
	}

	msg := LineageIngestMessage{
		ID:        entityID,
		Triples:   triples,
		UpdatedAt: now,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal lineage event: %w", err)
	}

	if err := nc.PublishToStream(ctx, LineageIngestSubject, data); err != nil {
		return fmt.Errorf("publish lineage event: %w", err)
	}

	return nil
}

// VersionEntityID generates a consistent entity ID for a concrete version.
// Format: provreg.<meta-bundle>.lineage.version.<concrete-local>
func VersionEntityID(metaBundle, concreteLocal string) string {
	return fmt.Sprintf("provreg.%s.lineage.version.%s", metaBundle, concreteLocal)
}
