// Package firestore implements the remote backend adapter on a managed
// document store: one document per record, keyed by the record id, under a
// single collection.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"spend/internal/core"
	"spend/internal/remote"
)

const defaultTimeout = 10 * time.Second

type Backend struct {
	client     *firestore.Client
	collection string
	timeout    time.Duration
}

type Config struct {
	ProjectID       string
	Collection      string
	CredentialsFile string // empty means application default credentials
	Timeout         time.Duration
}

func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("firestore project id is required")
	}
	if cfg.Collection == "" {
		cfg.Collection = "expenses"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}

	return &Backend{
		client:     client,
		collection: cfg.Collection,
		timeout:    cfg.Timeout,
	}, nil
}

func (b *Backend) Close() error {
	return b.client.Close()
}

// document is the stored shape. The record id is the document name, so it
// is not repeated in the fields.
type document struct {
	OwnerID       string    `firestore:"ownerId"`
	AmountCents   int64     `firestore:"amountCents"`
	Category      string    `firestore:"category"`
	Note          string    `firestore:"note"`
	AttachmentRef string    `firestore:"attachmentRef"`
	OccurredAt    time.Time `firestore:"occurredAt"`
	CreatedAt     int64     `firestore:"createdAt"`
	UpdatedAt     int64     `firestore:"updatedAt"`
}

func toDocument(r core.Record) document {
	return document{
		OwnerID:       r.OwnerID,
		AmountCents:   r.Amount.Cents,
		Category:      r.Category,
		Note:          r.Note,
		AttachmentRef: r.AttachmentRef,
		OccurredAt:    r.OccurredAt,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func toRecord(id string, d document) core.Record {
	return core.Record{
		ID:            id,
		OwnerID:       d.OwnerID,
		Amount:        core.Money{Cents: d.AmountCents},
		Category:      d.Category,
		Note:          d.Note,
		AttachmentRef: d.AttachmentRef,
		OccurredAt:    d.OccurredAt.UTC(),
		SyncState:     core.Synced,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

func (b *Backend) Push(ctx context.Context, r core.Record) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	// Set replaces the whole document; the write is idempotent because
	// the document name is the immutable record id.
	_, err := b.client.Collection(b.collection).Doc(r.ID).Set(ctx, toDocument(r))
	if err != nil {
		return classify("push", err)
	}
	return nil
}

func (b *Backend) PushBatch(ctx context.Context, records []core.Record) ([]remote.PushResult, error) {
	results := make([]remote.PushResult, 0, len(records))
	for _, r := range records {
		results = append(results, remote.PushResult{ID: r.ID, Err: b.Push(ctx, r)})
	}
	return results, nil
}

func (b *Backend) Pull(ctx context.Context, ownerID string) ([]core.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	iter := b.client.Collection(b.collection).
		Where("ownerId", "==", ownerID).
		OrderBy("occurredAt", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()

	var records []core.Record
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classify("pull", err)
		}

		var d document
		if err := snap.DataTo(&d); err != nil {
			return nil, fmt.Errorf("%w: decode document %s: %v", core.ErrRemoteRejected, snap.Ref.ID, err)
		}
		records = append(records, toRecord(snap.Ref.ID, d))
	}
	return records, nil
}

func (b *Backend) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	// Firestore deletes are idempotent: removing an absent document
	// succeeds, which is exactly the adapter contract.
	if _, err := b.client.Collection(b.collection).Doc(id).Delete(ctx); err != nil {
		return classify("delete", err)
	}
	return nil
}

// classify maps gRPC status codes onto the engine's error taxonomy.
func classify(op string, err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted,
		codes.Aborted, codes.Internal, codes.Unknown:
		return fmt.Errorf("%w: %s: %v", core.ErrRemoteTransient, op, err)
	default:
		return fmt.Errorf("%w: %s: %v", core.ErrRemoteRejected, op, err)
	}
}
