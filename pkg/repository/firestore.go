package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/placeset/pkg/adapter"
	"github.com/m-mizutani/placeset/pkg/model"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	collectionDatasets     = "datasets"
	collectionPlaceDetails = "place_details"
	collectionPlans        = "plans"
	collectionPlanProgress = "plan_progress"
)

// Firestore is the shared Repository backed by Cloud Firestore. Dataset
// payloads are stored inline, or in Cloud Storage when a bucket is given.
type Firestore struct {
	client  *firestore.Client
	storage adapter.Storage
}

var _ Repository = (*Firestore)(nil)

type FirestoreOption func(*Firestore)

// WithPayloadStorage moves dataset payloads out of the documents into
// object storage
func WithPayloadStorage(s adapter.Storage) FirestoreOption {
	return func(r *Firestore) {
		r.storage = s
	}
}

// New creates a Firestore repository
func New(projectID, databaseID string, opts ...FirestoreOption) (*Firestore, error) {
	return NewWithClientOptions(context.Background(), projectID, databaseID, nil, opts...)
}

// NewWithClientOptions creates a Firestore repository with explicit client
// options such as credentials
func NewWithClientOptions(ctx context.Context, projectID, databaseID string, clientOpts []option.ClientOption, opts ...FirestoreOption) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID, clientOpts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project", projectID), goerr.V("database", databaseID))
	}

	r := &Firestore{client: client}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Close releases the client
func (r *Firestore) Close() error {
	return r.client.Close()
}

type datasetDoc struct {
	Fingerprint  string    `firestore:"fingerprint"`
	Payload      []byte    `firestore:"payload,omitempty"`
	Object       string    `firestore:"object,omitempty"`
	RecordsCount int       `firestore:"records_count"`
	UpdatedAt    time.Time `firestore:"updated_at"`
}

type detailsDoc struct {
	ID        string         `firestore:"id"`
	Details   map[string]any `firestore:"details"`
	UpdatedAt time.Time      `firestore:"updated_at"`
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// planDocID returns the document ID of a plan name. Plan names embed the
// raw query, which may contain '/' and has no length bound, so the name is
// kept as a field and the ID is its digest.
func planDocID(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:])
}

func datasetObject(key model.Fingerprint) string {
	return collectionDatasets + "/" + key.Hash() + ".json"
}

func (r *Firestore) GetDataset(ctx context.Context, key model.Fingerprint) (*model.Dataset, error) {
	snap, err := r.client.Collection(collectionDatasets).Doc(key.Hash()).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to get dataset", goerr.V("fingerprint", key))
	}

	var doc datasetDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode dataset document", goerr.V("fingerprint", key))
	}

	raw := doc.Payload
	if doc.Object != "" {
		if r.storage == nil {
			return nil, goerr.New("dataset payload is in storage but no bucket is configured",
				goerr.V("fingerprint", key), goerr.V("object", doc.Object))
		}
		reader, err := r.storage.Get(ctx, doc.Object)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to open dataset payload", goerr.V("fingerprint", key))
		}
		defer reader.Close()
		if raw, err = io.ReadAll(reader); err != nil {
			return nil, goerr.Wrap(err, "failed to read dataset payload", goerr.V("fingerprint", key))
		}
	}

	return model.UnmarshalDataset(raw)
}

func (r *Firestore) PutDataset(ctx context.Context, key model.Fingerprint, ds *model.Dataset) error {
	raw, err := ds.Marshal()
	if err != nil {
		return err
	}

	doc := datasetDoc{
		Fingerprint:  key.String(),
		RecordsCount: ds.Len(),
		UpdatedAt:    time.Now(),
	}

	if r.storage != nil {
		doc.Object = datasetObject(key)
		w, err := r.storage.Put(ctx, doc.Object)
		if err != nil {
			return goerr.Wrap(err, "failed to open dataset payload writer", goerr.V("fingerprint", key))
		}
		if _, err := w.Write(raw); err != nil {
			_ = w.Close()
			return goerr.Wrap(err, "failed to write dataset payload", goerr.V("fingerprint", key))
		}
		if err := w.Close(); err != nil {
			return goerr.Wrap(err, "failed to commit dataset payload", goerr.V("fingerprint", key))
		}
	} else {
		doc.Payload = raw
	}

	if _, err := r.client.Collection(collectionDatasets).Doc(key.Hash()).Set(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to put dataset", goerr.V("fingerprint", key))
	}
	return nil
}

func (r *Firestore) GetPlaceDetails(ctx context.Context, id model.PlaceID) (model.PlaceDetails, error) {
	snap, err := r.client.Collection(collectionPlaceDetails).Doc(string(id)).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to get place details", goerr.V("id", id))
	}

	var doc detailsDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode place details", goerr.V("id", id))
	}
	return model.PlaceDetails(doc.Details), nil
}

func (r *Firestore) PutPlaceDetails(ctx context.Context, id model.PlaceID, details model.PlaceDetails) error {
	doc := detailsDoc{
		ID:        string(id),
		Details:   details,
		UpdatedAt: time.Now(),
	}
	if _, err := r.client.Collection(collectionPlaceDetails).Doc(string(id)).Set(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to put place details", goerr.V("id", id))
	}
	return nil
}

func (r *Firestore) GetPlan(ctx context.Context, name string) (*model.Plan, error) {
	snap, err := r.client.Collection(collectionPlans).Doc(planDocID(name)).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to get plan", goerr.V("name", name))
	}

	var plan model.Plan
	if err := snap.DataTo(&plan); err != nil {
		return nil, goerr.Wrap(err, "failed to decode plan", goerr.V("name", name))
	}
	return &plan, nil
}

func (r *Firestore) PutPlan(ctx context.Context, plan *model.Plan) error {
	if _, err := r.client.Collection(collectionPlans).Doc(planDocID(plan.Name)).Set(ctx, plan); err != nil {
		return goerr.Wrap(err, "failed to put plan", goerr.V("name", plan.Name))
	}
	return nil
}

func (r *Firestore) GetPlanProgress(ctx context.Context, name string) (*model.PlanProgress, error) {
	snap, err := r.client.Collection(collectionPlanProgress).Doc(planDocID(name)).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to get plan progress", goerr.V("name", name))
	}

	var progress model.PlanProgress
	if err := snap.DataTo(&progress); err != nil {
		return nil, goerr.Wrap(err, "failed to decode plan progress", goerr.V("name", name))
	}
	return &progress, nil
}

func (r *Firestore) PutPlanProgress(ctx context.Context, progress *model.PlanProgress) error {
	data := map[string]any{
		"name":       progress.Name,
		"progress":   progress.Progress,
		"api_call":   progress.APICalls,
		"updated_at": progress.UpdatedAt,
	}
	if progress.CompletedAt != nil {
		data["completed_at"] = *progress.CompletedAt
	}

	if _, err := r.client.Collection(collectionPlanProgress).Doc(planDocID(progress.Name)).Set(ctx, data, firestore.MergeAll); err != nil {
		return goerr.Wrap(err, "failed to put plan progress", goerr.V("name", progress.Name))
	}
	return nil
}
