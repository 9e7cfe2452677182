package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v9"

	"github.com/neopharm/pharmacy/internal/models"
)

// Index is a full-text index of drugs across all categories.
type Index interface {
	Put(ctx context.Context, d *models.Drug) error
	Remove(ctx context.Context, cat models.Category, id uint) error
	Search(ctx context.Context, query string, cat models.Category, limit int) ([]models.Drug, error)
}

const mapping = `{
  "mappings": {
    "properties": {
      "id":          {"type": "long"},
      "type":        {"type": "keyword"},
      "name":        {"type": "text", "fields": {"raw": {"type": "keyword"}}},
      "brand":       {"type": "text"},
      "dosage_form": {"type": "keyword"},
      "unit":        {"type": "keyword"},
      "price":       {"type": "scaled_float", "scaling_factor": 100},
      "stock":       {"type": "integer"}
    }
  }
}`

type ESIndex struct {
	Client *elasticsearch.Client
	Name   string
}

func docID(cat models.Category, id uint) string {
	return string(cat) + "-" + strconv.FormatUint(uint64(id), 10)
}

// EnsureIndex creates the index with its mapping when it does not exist yet.
func (x *ESIndex) EnsureIndex(ctx context.Context) error {
	res, err := x.Client.Indices.Exists([]string{x.Name}, x.Client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("index exists: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	res, err = x.Client.Indices.Create(x.Name,
		x.Client.Indices.Create.WithContext(ctx),
		x.Client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		return fmt.Errorf("index create: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("index create", res.Status(), res.Body)
	}
	return nil
}

func (x *ESIndex) Put(ctx context.Context, d *models.Drug) error {
	body, err := json.Marshal(d)
	if err != nil {
		return err
	}
	res, err := x.Client.Index(x.Name, bytes.NewReader(body),
		x.Client.Index.WithContext(ctx),
		x.Client.Index.WithDocumentID(docID(d.Category, d.ID)),
	)
	if err != nil {
		return fmt.Errorf("index put: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("index put", res.Status(), res.Body)
	}
	return nil
}

func (x *ESIndex) Remove(ctx context.Context, cat models.Category, id uint) error {
	res, err := x.Client.Delete(x.Name, docID(cat, id), x.Client.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("index delete: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != 404 {
		return responseError("index delete", res.Status(), res.Body)
	}
	return nil
}

// Reindex writes every drug in one bulk request.
func (x *ESIndex) Reindex(ctx context.Context, list []models.Drug) error {
	if len(list) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range list {
		meta := map[string]any{"index": map[string]any{"_index": x.Name, "_id": docID(list[i].Category, list[i].ID)}}
		if err := enc.Encode(meta); err != nil {
			return err
		}
		if err := enc.Encode(&list[i]); err != nil {
			return err
		}
	}
	res, err := x.Client.Bulk(&buf, x.Client.Bulk.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("bulk: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("bulk", res.Status(), res.Body)
	}
	return nil
}

func (x *ESIndex) Search(ctx context.Context, query string, cat models.Category, limit int) ([]models.Drug, error) {
	boolQuery := map[string]any{
		"must": map[string]any{
			"multi_match": map[string]any{
				"query":     query,
				"fields":    []string{"name^2", "brand"},
				"fuzziness": "AUTO",
			},
		},
	}
	if cat != "" {
		boolQuery["filter"] = map[string]any{"term": map[string]any{"type": string(cat)}}
	}
	body := map[string]any{
		"query": map[string]any{"bool": boolQuery},
		"size":  limit,
		"sort":  []any{map[string]any{"name.raw": "asc"}},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}

	res, err := x.Client.Search(
		x.Client.Search.WithContext(ctx),
		x.Client.Search.WithIndex(x.Name),
		x.Client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, responseError("search", res.Status(), res.Body)
	}

	var r struct {
		Hits struct {
			Hits []struct {
				Source models.Drug `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, err
	}
	out := make([]models.Drug, len(r.Hits.Hits))
	for i, hit := range r.Hits.Hits {
		out[i] = hit.Source
	}
	return out, nil
}

func responseError(op, status string, body io.Reader) error {
	b, _ := io.ReadAll(io.LimitReader(body, 2048))
	return fmt.Errorf("%s: %s: %s", op, status, b)
}
