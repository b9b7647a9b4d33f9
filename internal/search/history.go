// Package search indexes dispatch lifecycle events in Elasticsearch so operators
// can trace what happened to a request.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"

	apperrors "service-dispatch/internal/common/errors"
	"service-dispatch/internal/common/logger"
	"service-dispatch/internal/models"
)

const defaultSearchSize = 100

var indexMapping = `{
  "mappings": {
    "properties": {
      "requestId":   {"type": "keyword"},
      "type":        {"type": "keyword"},
      "status":      {"type": "keyword"},
      "serviceType": {"type": "keyword"},
      "providerIds": {"type": "keyword"},
      "detail":      {"type": "text"},
      "at":          {"type": "date"}
    }
  }
}`

type HistoryIndexer struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewHistoryIndexer(client *elasticsearch.Client, index string, log logger.Logger) *HistoryIndexer {
	return &HistoryIndexer{
		client: client,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "history_indexer", "index": index}),
	}
}

// EnsureIndex creates the events index with its mapping when it does not exist.
func (h *HistoryIndexer) EnsureIndex(ctx context.Context) error {
	res, err := h.client.Indices.Exists([]string{h.index}, h.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return searchError("exists", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = h.client.Indices.Create(h.index,
		h.client.Indices.Create.WithBody(strings.NewReader(indexMapping)),
		h.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return searchError("create", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return searchError("create", fmt.Errorf("%s", res.Status()))
	}
	return nil
}

// Record indexes ev and logs failures. History is best effort and never blocks
// a dispatch.
func (h *HistoryIndexer) Record(ctx context.Context, ev models.DispatchEvent) {
	if err := h.Index(ctx, ev); err != nil {
		h.logger.Warn("failed to index dispatch event", map[string]interface{}{
			"requestId": ev.RequestID,
			"type":      string(ev.Type),
			"error":     err,
		})
	}
}

func (h *HistoryIndexer) Index(ctx context.Context, ev models.DispatchEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	res, err := h.client.Index(h.index, bytes.NewReader(body),
		h.client.Index.WithDocumentID(uuid.NewString()),
		h.client.Index.WithContext(ctx),
	)
	if err != nil {
		return searchError("index", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return searchError("index", fmt.Errorf("%s", res.Status()))
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source models.DispatchEvent `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Events returns the indexed events of a request, oldest first.
func (h *HistoryIndexer) Events(ctx context.Context, requestID string) ([]models.DispatchEvent, error) {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"requestId": requestID},
		},
		"sort": []interface{}{
			map[string]interface{}{"at": map[string]interface{}{"order": "asc"}},
		},
	}
	body, _ := json.Marshal(query)
	size := defaultSearchSize

	req := esapi.SearchRequest{
		Index: []string{h.index},
		Body:  bytes.NewReader(body),
		Size:  &size,
	}
	res, err := req.Do(ctx, h.client)
	if err != nil {
		return nil, searchError("search", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, searchError("search", fmt.Errorf("%s", res.Status()))
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, searchError("decode", err)
	}

	events := make([]models.DispatchEvent, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		events = append(events, hit.Source)
	}
	return events, nil
}

func searchError(op string, err error) error {
	return apperrors.NewSearchIndexFailedError(op, err)
}
