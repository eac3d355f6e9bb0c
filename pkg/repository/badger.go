package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/placeset/pkg/model"
	"github.com/m-mizutani/placeset/pkg/utils/logging"
)

const (
	badgerDatasetPrefix  = "dataset/"
	badgerDetailsPrefix  = "details/"
	badgerPlanPrefix     = "plan/"
	badgerProgressPrefix = "progress/"
)

// Badger is a Repository on an embedded BadgerDB, for single-host
// deployments that want the cache to survive restarts
type Badger struct {
	db *badger.DB
}

var _ Repository = (*Badger)(nil)

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(msg string, items ...any) {
	l.logger.Error(fmt.Sprintf(msg, items...))
}

func (l *badgerLogger) Warningf(msg string, items ...any) {
	l.logger.Warn(fmt.Sprintf(msg, items...))
}

func (l *badgerLogger) Infof(msg string, items ...any) {
	l.logger.Debug(fmt.Sprintf(msg, items...))
}

func (l *badgerLogger) Debugf(msg string, items ...any) {
	l.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenBadger opens (or creates) the database directory at path. With
// inMemory set, path is ignored and nothing touches the disk.
func OpenBadger(path string, inMemory bool) (*Badger, error) {
	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if path == "" {
			return nil, goerr.New("badger path is required")
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, goerr.Wrap(err, "failed to create badger directory", goerr.V("path", path))
		}
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = &badgerLogger{logger: logging.Default()}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open badger", goerr.V("path", path))
	}
	return &Badger{db: db}, nil
}

// Close releases the database
func (b *Badger) Close() error {
	return b.db.Close()
}

func (b *Badger) get(key string, out any) (bool, error) {
	var raw []byte
	err := b.db.View(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, goerr.Wrap(err, "failed to read from badger", goerr.V("key", key))
	}

	if r, ok := out.(*[]byte); ok {
		*r = raw
		return true, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, goerr.Wrap(err, "failed to decode badger value", goerr.V("key", key))
	}
	return true, nil
}

func (b *Badger) put(key string, v any) error {
	raw, ok := v.([]byte)
	if !ok {
		var err error
		if raw, err = json.Marshal(v); err != nil {
			return goerr.Wrap(err, "failed to encode badger value", goerr.V("key", key))
		}
	}
	if err := b.db.Update(func(tx *badger.Txn) error {
		return tx.Set([]byte(key), raw)
	}); err != nil {
		return goerr.Wrap(err, "failed to write to badger", goerr.V("key", key))
	}
	return nil
}

func (b *Badger) GetDataset(ctx context.Context, key model.Fingerprint) (*model.Dataset, error) {
	var raw []byte
	found, err := b.get(badgerDatasetPrefix+key.Hash(), &raw)
	if err != nil || !found {
		return nil, err
	}
	return model.UnmarshalDataset(raw)
}

func (b *Badger) PutDataset(ctx context.Context, key model.Fingerprint, ds *model.Dataset) error {
	raw, err := ds.Marshal()
	if err != nil {
		return err
	}
	return b.put(badgerDatasetPrefix+key.Hash(), raw)
}

func (b *Badger) GetPlaceDetails(ctx context.Context, id model.PlaceID) (model.PlaceDetails, error) {
	var details model.PlaceDetails
	found, err := b.get(badgerDetailsPrefix+string(id), &details)
	if err != nil || !found {
		return nil, err
	}
	return details, nil
}

func (b *Badger) PutPlaceDetails(ctx context.Context, id model.PlaceID, details model.PlaceDetails) error {
	return b.put(badgerDetailsPrefix+string(id), details)
}

func (b *Badger) GetPlan(ctx context.Context, name string) (*model.Plan, error) {
	var plan model.Plan
	found, err := b.get(badgerPlanPrefix+name, &plan)
	if err != nil || !found {
		return nil, err
	}
	return &plan, nil
}

func (b *Badger) PutPlan(ctx context.Context, plan *model.Plan) error {
	return b.put(badgerPlanPrefix+plan.Name, plan)
}

func (b *Badger) GetPlanProgress(ctx context.Context, name string) (*model.PlanProgress, error) {
	var progress model.PlanProgress
	found, err := b.get(badgerProgressPrefix+name, &progress)
	if err != nil || !found {
		return nil, err
	}
	return &progress, nil
}

func (b *Badger) PutPlanProgress(ctx context.Context, progress *model.PlanProgress) error {
	return b.put(badgerProgressPrefix+progress.Name, progress)
}
