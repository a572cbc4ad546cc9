package documents

import (
	"context"
	"iter"
)

// Repo is the document registry. Writes to one document are serialized;
// writes to different documents proceed independently.
type Repo interface {
	Create(ctx context.Context, meta Metadata) (Document, error)
	Get(ctx context.Context, id string) (Document, error)
	Update(ctx context.Context, id string, upd Update) (Document, error)
	AssignBatch(ctx context.Context, id, batchID string) (Document, error)
	// List yields matching documents in creation order. Each range over the
	// returned sequence reads the registry afresh.
	List(ctx context.Context, filter Filter) iter.Seq2[Document, error]
}

// Collect drains a List sequence into a slice.
func Collect(seq iter.Seq2[Document, error]) ([]Document, error) {
	var out []Document
	for doc, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}
