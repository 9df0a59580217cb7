package account

import "context"

// Repository is the durable account store. Implementations must reject a
// second insert for the same email atomically (ErrDuplicateEmail), even when
// two inserts race; lookups that match nothing return ErrNotFound.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (Account, error)
	FindByID(ctx context.Context, id string) (Account, error)
	Insert(ctx context.Context, a Account) (Account, error)
	// Update persists every non-nil field of the patch in a single write.
	Update(ctx context.Context, id string, patch Patch) (Account, error)
}
