package repository

import (
	"context"

	"github.com/m-mizutani/placeset/pkg/model"
)

// Repository is the persistence behind the dataset cache, the place-details
// cache and coverage plan state. Getters return nil without error when the
// entry does not exist; any other failure is returned as is.
type Repository interface {
	// GetDataset loads a previously stored dataset by fingerprint
	GetDataset(ctx context.Context, key model.Fingerprint) (*model.Dataset, error)

	// PutDataset stores a dataset under fingerprint. Storing equal content
	// under the same key again is harmless.
	PutDataset(ctx context.Context, key model.Fingerprint, ds *model.Dataset) error

	// GetPlaceDetails loads cached place details by place ID
	GetPlaceDetails(ctx context.Context, id model.PlaceID) (model.PlaceDetails, error)

	// PutPlaceDetails caches place details by place ID
	PutPlaceDetails(ctx context.Context, id model.PlaceID, details model.PlaceDetails) error

	// GetPlan loads a coverage plan by name
	GetPlan(ctx context.Context, name string) (*model.Plan, error)

	// PutPlan saves a coverage plan with its step states
	PutPlan(ctx context.Context, plan *model.Plan) error

	// GetPlanProgress loads the progress of a whole-plan run
	GetPlanProgress(ctx context.Context, name string) (*model.PlanProgress, error)

	// PutPlanProgress saves the progress of a whole-plan run
	PutPlanProgress(ctx context.Context, progress *model.PlanProgress) error
}
