package protoload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SchemaSetRecord is one immutable version of a compiled schema set.
type SchemaSetRecord struct {
	ID              int64
	Name            string
	Version         int32
	DescriptorSHA   string
	DescriptorBytes []byte
	CreatedAt       time.Time
}

// Repository stores compiled descriptor images in Postgres. Images are never
// overwritten: each registration under a name appends a new version, and any
// image can be fetched back by its content hash alone, so a document encoded
// against an old schema can always be decoded with the exact bytes it was
// produced against.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveVersion appends image as the next version of name and returns the
// version it was stored under. Re-registering the image that is already the
// newest version is a no-op returning the existing version; re-registering an
// older image still appends, so rollbacks leave a trail.
func (r *Repository) SaveVersion(ctx context.Context, name string, image []byte, sha string) (int32, error) {
	if r == nil || r.pool == nil {
		return 0, errors.New("repository not initialized")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var latest int32
	var latestSHA string
	err = tx.QueryRow(ctx, `
        SELECT version, descriptor_sha256
        FROM schema_set_versions
        WHERE name = $1
        ORDER BY version DESC
        LIMIT 1
        FOR UPDATE;
    `, name).Scan(&latest, &latestSHA)
	switch {
	case err == nil:
		if latestSHA == sha {
			return latest, tx.Commit(ctx)
		}
	case errors.Is(err, pgx.ErrNoRows):
		latest = 0
	default:
		return 0, err
	}

	next := latest + 1
	if _, err := tx.Exec(ctx, `
        INSERT INTO schema_set_versions (name, version, descriptor_bytes, descriptor_sha256)
        VALUES ($1, $2, $3, $4);
    `, name, next, image, sha); err != nil {
		return 0, err
	}
	return next, tx.Commit(ctx)
}

// GetBySHA fetches a descriptor image by its content hash, regardless of
// which name or version it was registered under.
func (r *Repository) GetBySHA(ctx context.Context, sha string) (*SchemaSetRecord, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("repository not initialized")
	}

	row := r.pool.QueryRow(ctx, `
        SELECT id, name, version, descriptor_bytes, descriptor_sha256, created_at
        FROM schema_set_versions
        WHERE descriptor_sha256 = $1
        ORDER BY created_at
        LIMIT 1;
    `, sha)
	return scanRecord(row)
}

// LatestVersion fetches the newest version registered under a name.
func (r *Repository) LatestVersion(ctx context.Context, name string) (*SchemaSetRecord, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("repository not initialized")
	}

	row := r.pool.QueryRow(ctx, `
        SELECT id, name, version, descriptor_bytes, descriptor_sha256, created_at
        FROM schema_set_versions
        WHERE name = $1
        ORDER BY version DESC
        LIMIT 1;
    `, name)
	return scanRecord(row)
}

func scanRecord(row pgx.Row) (*SchemaSetRecord, error) {
	var rec SchemaSetRecord
	if err := row.Scan(&rec.ID, &rec.Name, &rec.Version, &rec.DescriptorBytes, &rec.DescriptorSHA, &rec.CreatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}
