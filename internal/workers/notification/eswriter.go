// internal/workers/notification/eswriter.go
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"lending-pipeline/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
)

// ElasticBulkWriter persists notification rows through the Elasticsearch
// bulk API. A whole-request failure is returned as an error; per-item
// rejections (mapping errors, backpressure) come back as indexes into the
// submitted slice so the handler can retry just the unprocessed subset.
type ElasticBulkWriter struct {
	client *elasticsearch.Client
}

func NewElasticBulkWriter(client *elasticsearch.Client) *ElasticBulkWriter {
	return &ElasticBulkWriter{client: client}
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]bulkItemResult `json:"items"`
}

type bulkItemResult struct {
	Status int `json:"status"`
	Error  *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error,omitempty"`
}

// BulkWrite indexes docs into the given index, keyed by NotificationID.
func (w *ElasticBulkWriter) BulkWrite(ctx context.Context, index string, docs []models.Notification) ([]int, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	var body bytes.Buffer
	for _, doc := range docs {
		action := map[string]map[string]string{
			"index": {"_index": index, "_id": doc.NotificationID},
		}
		if err := json.NewEncoder(&body).Encode(action); err != nil {
			return nil, fmt.Errorf("failed to encode bulk action: %w", err)
		}
		if err := json.NewEncoder(&body).Encode(doc); err != nil {
			return nil, fmt.Errorf("failed to encode notification %s: %w", doc.NotificationID, err)
		}
	}

	res, err := w.client.Bulk(
		bytes.NewReader(body.Bytes()),
		w.client.Bulk.WithContext(ctx),
		w.client.Bulk.WithIndex(index),
	)
	if err != nil {
		return nil, fmt.Errorf("bulk request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("bulk request error: %s: %s", res.Status(), msg)
	}

	var parsed bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if !parsed.Errors {
		return nil, nil
	}

	var failed []int
	for i, item := range parsed.Items {
		for _, result := range item {
			if result.Status >= 300 {
				failed = append(failed, i)
			}
		}
	}
	return failed, nil
}
