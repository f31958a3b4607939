package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sha1n/mr-pickles/internal/domain"
)

// FeaturesFilename is the feature ledger file name inside the state directory.
const FeaturesFilename = "feature_requests.json"

// ErrRecordNotFound is returned when no record matches a request.
var ErrRecordNotFound = errors.New("feature request not found")

// Features is the append-only ledger of feature requests, keyed by request text.
type Features struct {
	store *Store[domain.FeatureRecord]
	now   func() time.Time
}

// NewFeatures opens the feature ledger in dir.
func NewFeatures(dir string, logger *slog.Logger) *Features {
	return &Features{
		store: NewStore[domain.FeatureRecord](filepath.Join(dir, FeaturesFilename), logger),
		now:   time.Now,
	}
}

// Path returns the ledger file path.
func (f *Features) Path() string {
	return f.store.Path()
}

// Append records a new pending request and returns it.
func (f *Features) Append(request string) (domain.FeatureRecord, error) {
	now := f.now().UTC()
	record := domain.FeatureRecord{
		Request:   request,
		Status:    domain.FeatureStatusPending,
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := f.store.Update(func(records []domain.FeatureRecord) ([]domain.FeatureRecord, error) {
		return append(records, record), nil
	})
	if err != nil {
		return domain.FeatureRecord{}, err
	}
	return record, nil
}

// Update applies fn to the most recent record for request.
func (f *Features) Update(request string, fn func(*domain.FeatureRecord)) (domain.FeatureRecord, error) {
	var updated domain.FeatureRecord
	err := f.store.Update(func(records []domain.FeatureRecord) ([]domain.FeatureRecord, error) {
		for i := len(records) - 1; i >= 0; i-- {
			if records[i].Request == request {
				fn(&records[i])
				records[i].UpdatedAt = f.now().UTC()
				updated = records[i]
				return records, nil
			}
		}
		return nil, fmt.Errorf("%w: %q", ErrRecordNotFound, request)
	})
	return updated, err
}

// SetStatus sets the status of the most recent record for request.
func (f *Features) SetStatus(request string, status domain.FeatureStatus) (domain.FeatureRecord, error) {
	if !status.Valid() {
		return domain.FeatureRecord{}, fmt.Errorf("invalid status %q", status)
	}
	return f.Update(request, func(r *domain.FeatureRecord) {
		r.Status = status
		if status != domain.FeatureStatusFailed {
			r.Error = ""
		}
	})
}

// MarkFailed marks the most recent record for request as failed with cause.
func (f *Features) MarkFailed(request string, cause error) (domain.FeatureRecord, error) {
	return f.Update(request, func(r *domain.FeatureRecord) {
		r.Status = domain.FeatureStatusFailed
		if cause != nil {
			r.Error = cause.Error()
		}
	})
}

// List returns all records in insertion order.
func (f *Features) List() ([]domain.FeatureRecord, error) {
	return f.store.Load()
}

// Filter returns the records with the given status.
func (f *Features) Filter(status domain.FeatureStatus) ([]domain.FeatureRecord, error) {
	records, err := f.List()
	if err != nil {
		return nil, err
	}
	var out []domain.FeatureRecord
	for _, r := range records {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}
