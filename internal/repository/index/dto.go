package index

import (
	"encoding/json"
	"fmt"
	"strings"

	domdoc "github.com/kailas-cloud/askdex/internal/domain/document"
)

// jsonDoc is the stored shape of a search document.
type jsonDoc struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Tags      []string `json:"tags"`
	CreatedAt int64    `json:"createdAt"`
	Revision  int64    `json:"revision"`
	Partial   bool     `json:"partial"`
}

func buildJSONDoc(doc *domdoc.Document) jsonDoc {
	tags := doc.Tags()
	if tags == nil {
		tags = []string{}
	}
	return jsonDoc{
		ID:        doc.ID(),
		Title:     doc.Title(),
		Content:   doc.Content(),
		Tags:      tags,
		CreatedAt: doc.CreatedAt(),
		Revision:  doc.Revision(),
		Partial:   doc.Partial(),
	}
}

func (d *jsonDoc) toDomain(fallbackID string) domdoc.Document {
	id := d.ID
	if id == "" {
		id = fallbackID
	}
	return domdoc.Reconstruct(id, d.Title, d.Content, d.Tags, d.CreatedAt, d.Revision, d.Partial)
}

// parseJSONDoc accepts both a bare object and the `[obj]` array JSON.GET $ returns.
func parseJSONDoc(raw string) (jsonDoc, bool, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "[") {
		var docs []jsonDoc
		if err := json.Unmarshal([]byte(raw), &docs); err != nil {
			return jsonDoc{}, false, fmt.Errorf("unmarshal document array: %w", err)
		}
		if len(docs) == 0 {
			return jsonDoc{}, false, nil
		}
		return docs[0], true, nil
	}
	var d jsonDoc
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return jsonDoc{}, false, fmt.Errorf("unmarshal document: %w", err)
	}
	return d, true, nil
}
