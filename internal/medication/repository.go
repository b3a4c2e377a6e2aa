package medication

import "context"

// Repository is the persistence boundary of the aggregate. Lookups return (nil, nil)
// when the medication does not exist for that owner.
type Repository interface {
	FindByID(ctx context.Context, id, ownerID string) (*Medication, error)
	FindByUserID(ctx context.Context, ownerID string, includeArchived bool) ([]*Medication, error)
	Save(ctx context.Context, m *Medication) (*Medication, error)
	Delete(ctx context.Context, id, ownerID string) error
	// FindLowStock lists non-archived medications with stock at or below threshold
	FindLowStock(ctx context.Context, ownerID string, threshold int) ([]*Medication, error)
	Exists(ctx context.Context, id, ownerID string) (bool, error)
}

// OwnerLister enumerates every owner with at least one medication
type OwnerLister interface {
	Owners(ctx context.Context) ([]string, error)
}
