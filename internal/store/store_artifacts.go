package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storyreel/internal/item"
)

const artifactColumns = `id, part_id, kind, local_path, remote_id, remote_url,
    duration_seconds, size_bytes, status, created_at, uploaded_at, evicted_at`

// SaveArtifact records a freshly generated asset. One artifact per part and
// kind; regenerating replaces the prior row's payload fields.
func (s *Store) SaveArtifact(ctx context.Context, artifact *item.Artifact) error {
	if artifact == nil {
		return errors.New("nil artifact")
	}
	if artifact.PartID == 0 {
		return errors.New("artifact requires a part id")
	}

	now := time.Now().UTC()
	artifact.Status = item.ArtifactStatusGenerated
	artifact.CreatedAt = now

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO media_artifacts (
            part_id, kind, local_path, remote_id, remote_url,
            duration_seconds, size_bytes, status, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(part_id, kind) DO UPDATE SET
            local_path = excluded.local_path,
            remote_id = excluded.remote_id,
            remote_url = excluded.remote_url,
            duration_seconds = excluded.duration_seconds,
            size_bytes = excluded.size_bytes,
            status = excluded.status,
            uploaded_at = NULL,
            evicted_at = NULL`,
		artifact.PartID,
		string(artifact.Kind),
		nullableString(artifact.LocalPath),
		nullableString(artifact.RemoteID),
		nullableString(artifact.RemoteURL),
		artifact.DurationSeconds,
		artifact.SizeBytes,
		string(artifact.Status),
		timestamp(now),
	)
	if err != nil {
		return fmt.Errorf("save %s artifact for part %d: %w", artifact.Kind, artifact.PartID, err)
	}

	stored, lookupErr := s.ArtifactForPart(ctx, artifact.PartID, artifact.Kind)
	if lookupErr != nil {
		return lookupErr
	}
	artifact.ID = stored.ID
	return nil
}

// ArtifactByID fetches a single artifact.
func (s *Store) ArtifactByID(ctx context.Context, id int64) (*item.Artifact, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+artifactColumns+" FROM media_artifacts WHERE id = ?", id)
	return scanArtifact(row)
}

// ArtifactForPart fetches the artifact of a given kind for a part.
func (s *Store) ArtifactForPart(ctx context.Context, partID int64, kind item.ArtifactKind) (*item.Artifact, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+artifactColumns+" FROM media_artifacts WHERE part_id = ? AND kind = ?",
		partID, string(kind))
	return scanArtifact(row)
}

// MarkArtifactUploaded records durable remote storage of the artifact.
func (s *Store) MarkArtifactUploaded(ctx context.Context, artifact *item.Artifact, remoteID, remoteURL string) error {
	if artifact == nil {
		return errors.New("nil artifact")
	}
	now := time.Now().UTC()
	artifact.RemoteID = remoteID
	artifact.RemoteURL = remoteURL
	artifact.Status = item.ArtifactStatusUploaded
	artifact.UploadedAt = &now

	_, err := s.db.ExecContext(ctx, `
        UPDATE media_artifacts SET
            remote_id = ?, remote_url = ?, status = ?, uploaded_at = ?
        WHERE id = ?`,
		nullableString(remoteID),
		nullableString(remoteURL),
		string(artifact.Status),
		timestamp(now),
		artifact.ID,
	)
	if err != nil {
		return fmt.Errorf("mark artifact %d uploaded: %w", artifact.ID, err)
	}
	return nil
}

// EvictArtifactLocal clears the local path after the local copy is removed.
// Eviction requires a remote copy so the artifact stays reachable.
func (s *Store) EvictArtifactLocal(ctx context.Context, artifact *item.Artifact) error {
	if artifact == nil {
		return errors.New("nil artifact")
	}
	if artifact.RemoteID == "" {
		return fmt.Errorf("artifact %d has no remote copy, refusing to evict", artifact.ID)
	}
	now := time.Now().UTC()
	artifact.LocalPath = ""
	artifact.Status = item.ArtifactStatusEvicted
	artifact.EvictedAt = &now

	_, err := s.db.ExecContext(ctx, `
        UPDATE media_artifacts SET local_path = NULL, status = ?, evicted_at = ?
        WHERE id = ?`,
		string(artifact.Status),
		timestamp(now),
		artifact.ID,
	)
	if err != nil {
		return fmt.Errorf("evict artifact %d: %w", artifact.ID, err)
	}
	return nil
}

func scanArtifact(row rowScanner) (*item.Artifact, error) {
	var artifact item.Artifact
	var localPath, remoteID, remoteURL sql.NullString
	var kind, status, createdAt string
	var uploadedAt, evictedAt sql.NullString

	err := row.Scan(
		&artifact.ID, &artifact.PartID, &kind, &localPath, &remoteID,
		&remoteURL, &artifact.DurationSeconds, &artifact.SizeBytes,
		&status, &createdAt, &uploadedAt, &evictedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan artifact: %w", err)
	}

	artifact.Kind = item.ArtifactKind(kind)
	artifact.LocalPath = localPath.String
	artifact.RemoteID = remoteID.String
	artifact.RemoteURL = remoteURL.String
	artifact.Status = item.ArtifactStatus(status)
	artifact.UploadedAt = timePointer(uploadedAt)
	artifact.EvictedAt = timePointer(evictedAt)
	if artifact.CreatedAt, err = parseTimeString(createdAt); err != nil {
		return nil, fmt.Errorf("parse artifact created_at: %w", err)
	}
	return &artifact, nil
}
