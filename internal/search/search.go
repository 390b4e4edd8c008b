// Package search backs GET /discovery/search (§2, supplemented from
// apps/central/src/db/discovery.rs) with Meilisearch typeahead over
// registered-server metadata. Only id, display_name, description, domain, and
// member_count are ever indexed — never member or message content, matching the server's
// zero-plaintext-knowledge boundary; a community server's membership is
// opaque to Central by design, so there is nothing else to index.
package search

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/meilisearch/meilisearch-go"
)

const indexUID = "servers"

// Index wraps the Meilisearch client used to keep the discoverable-server
// index in sync with internal/store.Central's registered_servers table.
type Index struct {
	client meilisearch.ServiceManager
}

func New(host, apiKey string) (*Index, error) {
	client := meilisearch.New(host, meilisearch.WithAPIKey(apiKey))
	if _, err := client.Health(); err != nil {
		return nil, fmt.Errorf("connecting to meilisearch: %w", err)
	}
	return &Index{client: client}, nil
}

// ServerDocument is the subset of a registered server's public metadata fed
// to Meilisearch.
type ServerDocument struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	Domain      string `json:"domain"`
	MemberCount int32  `json:"member_count"`
}

// UpsertServer indexes (or reindexes) one server's public metadata, called
// after registration and after every successful heartbeat.
func (idx *Index) UpsertServer(ctx context.Context, doc ServerDocument) error {
	_, err := idx.client.Index(indexUID).AddDocuments([]ServerDocument{doc}, "id")
	if err != nil {
		return fmt.Errorf("indexing server %s: %w", doc.ID, err)
	}
	return nil
}

// RemoveServer drops a server from the index, e.g. once it stops
// self-registering with Central.
func (idx *Index) RemoveServer(ctx context.Context, id uuid.UUID) error {
	_, err := idx.client.Index(indexUID).DeleteDocument(id.String())
	if err != nil {
		return fmt.Errorf("removing server %s from index: %w", id, err)
	}
	return nil
}

// Search runs a typeahead query over the indexed server documents and
// returns the matching server ids in ranked order.
func (idx *Index) Search(ctx context.Context, query string, limit int64) ([]string, error) {
	resp, err := idx.client.Index(indexUID).Search(query, &meilisearch.SearchRequest{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("searching servers: %w", err)
	}

	ids := make([]string, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		m, ok := hit.(map[string]interface{})
		if !ok {
			continue
		}
		if id, ok := m["id"].(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
