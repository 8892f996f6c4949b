package storage

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/facewatch/internal/config"
	"github.com/your-org/facewatch/internal/matching"
	"github.com/your-org/facewatch/internal/models"
	"github.com/your-org/facewatch/internal/quality"
)

// ErrNotFound is returned by mutations that address a missing row.
var ErrNotFound = errors.New("not found")

//go:embed schema.sql
var schema string

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnsureSchema creates tables and indexes if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

// --- Identities ---

func (s *PostgresStore) CreateIdentity(ctx context.Context, name string, metadata json.RawMessage) (*models.Identity, error) {
	if metadata == nil {
		metadata = json.RawMessage("{}")
	}
	id := &models.Identity{
		ID:       uuid.New(),
		Name:     name,
		Status:   models.IdentityActive,
		Metadata: metadata,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO identities (id, name, status, metadata) VALUES ($1, $2, $3, $4) RETURNING created_at, updated_at`,
		id.ID, id.Name, id.Status, id.Metadata,
	).Scan(&id.CreatedAt, &id.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create identity: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetIdentity(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	i := &models.Identity{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, status, metadata, created_at, updated_at FROM identities WHERE id = $1`, id,
	).Scan(&i.ID, &i.Name, &i.Status, &i.Metadata, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return i, nil
}

func (s *PostgresStore) ListIdentities(ctx context.Context, limit, offset int) ([]models.Identity, int, error) {
	limit = clampLimit(limit)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM identities`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count identities: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, name, status, metadata, created_at, updated_at
		 FROM identities ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var out []models.Identity
	for rows.Next() {
		var i models.Identity
		if err := rows.Scan(&i.ID, &i.Name, &i.Status, &i.Metadata, &i.CreatedAt, &i.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan identity: %w", err)
		}
		out = append(out, i)
	}
	return out, total, rows.Err()
}

func (s *PostgresStore) SetIdentityStatus(ctx context.Context, id uuid.UUID, status models.IdentityStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE identities SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("set identity status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("identity %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteIdentity removes an identity; its references go with it.
func (s *PostgresStore) DeleteIdentity(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM identities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("identity %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- Reference photos ---

func (s *PostgresStore) AddReference(ctx context.Context, ref *models.Reference) error {
	if ref.ID == uuid.Nil {
		ref.ID = uuid.New()
	}
	vec := pgvector.NewVector(ref.Embedding)
	err := s.pool.QueryRow(ctx,
		`INSERT INTO reference_photos
		   (id, identity_id, embedding, quality, blur_score, brightness_score, size_score, frontality_score, pose, photo_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING created_at`,
		ref.ID, ref.IdentityID, vec, ref.Quality,
		ref.BlurScore, ref.BrightnessScore, ref.SizeScore, ref.FrontalityScore,
		ref.Pose, ref.PhotoKey,
	).Scan(&ref.CreatedAt)
	if err != nil {
		return fmt.Errorf("add reference: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListReferences(ctx context.Context, identityID uuid.UUID) ([]models.Reference, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, identity_id, quality, blur_score, brightness_score, size_score, frontality_score, pose, photo_key, created_at
		 FROM reference_photos WHERE identity_id = $1 ORDER BY created_at`, identityID)
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	defer rows.Close()

	var refs []models.Reference
	for rows.Next() {
		var r models.Reference
		if err := rows.Scan(&r.ID, &r.IdentityID, &r.Quality,
			&r.BlurScore, &r.BrightnessScore, &r.SizeScore, &r.FrontalityScore,
			&r.Pose, &r.PhotoKey, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

func (s *PostgresStore) CountReferences(ctx context.Context, identityID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM reference_photos WHERE identity_id = $1`, identityID,
	).Scan(&count)
	return count, err
}

// DeleteReference removes one reference and returns its photo key.
func (s *PostgresStore) DeleteReference(ctx context.Context, identityID, refID uuid.UUID) (string, error) {
	var key string
	err := s.pool.QueryRow(ctx,
		`DELETE FROM reference_photos WHERE id = $1 AND identity_id = $2 RETURNING photo_key`,
		refID, identityID,
	).Scan(&key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("reference %s: %w", refID, ErrNotFound)
		}
		return "", fmt.Errorf("delete reference: %w", err)
	}
	return key, nil
}

// GallerySnapshot loads every reference of every active identity. Identities
// come in creation order, references in insertion order.
func (s *PostgresStore) GallerySnapshot(ctx context.Context) (*matching.Gallery, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT r.id, r.identity_id, i.name, r.embedding, r.quality, r.pose
		 FROM reference_photos r
		 JOIN identities i ON i.id = r.identity_id
		 WHERE i.status = $1
		 ORDER BY i.created_at, i.id, r.created_at, r.id`, models.IdentityActive)
	if err != nil {
		return nil, fmt.Errorf("load gallery: %w", err)
	}
	defer rows.Close()

	var entries []matching.ReferenceEntry
	names := make(map[uuid.UUID]string)
	for rows.Next() {
		var (
			e    matching.ReferenceEntry
			name string
			vec  pgvector.Vector
			pose string
		)
		if err := rows.Scan(&e.ID, &e.IdentityID, &name, &vec, &e.Quality, &pose); err != nil {
			return nil, fmt.Errorf("scan gallery entry: %w", err)
		}
		e.Embedding = vec.Slice()
		e.Pose = quality.Pose(pose)
		names[e.IdentityID] = name
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load gallery: %w", err)
	}
	return matching.NewGallery(entries, names), nil
}

// SearchReferences returns the references closest to embedding by cosine
// distance, at most one per identity.
func (s *PostgresStore) SearchReferences(ctx context.Context, embedding []float32, limit int) ([]SearchMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	vec := pgvector.NewVector(embedding)

	rows, err := s.pool.Query(ctx, `
		SELECT identity_id, name, reference_id, quality, distance FROM (
			SELECT DISTINCT ON (r.identity_id)
			       r.identity_id, i.name, r.id AS reference_id, r.quality, r.embedding <=> $1 AS distance
			FROM reference_photos r
			JOIN identities i ON i.id = r.identity_id
			WHERE i.status = $2
			ORDER BY r.identity_id, r.embedding <=> $1
		) best
		ORDER BY distance
		LIMIT $3`, vec, models.IdentityActive, limit)
	if err != nil {
		return nil, fmt.Errorf("search references: %w", err)
	}
	defer rows.Close()

	var matches []SearchMatch
	for rows.Next() {
		var m SearchMatch
		if err := rows.Scan(&m.IdentityID, &m.Name, &m.ReferenceID, &m.Quality, &m.Distance); err != nil {
			return nil, fmt.Errorf("scan search match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

type SearchMatch struct {
	IdentityID  uuid.UUID `json:"identity_id"`
	Name        string    `json:"name"`
	ReferenceID uuid.UUID `json:"reference_id"`
	Quality     float64   `json:"quality"`
	Distance    float64   `json:"distance"`
}

// --- Videos ---

const videoColumns = `id, filename, object_key, status, fps, total_frames, width, height, duration_seconds,
	frames_processed, total_faces, unique_identities, summary_report, error_message,
	started_at, completed_at, created_at, updated_at`

func scanVideo(row scanner) (*models.Video, error) {
	v := &models.Video{}
	err := row.Scan(&v.ID, &v.Filename, &v.ObjectKey, &v.Status, &v.FPS, &v.TotalFrames,
		&v.Width, &v.Height, &v.DurationSeconds, &v.FramesProcessed, &v.TotalFaces,
		&v.UniqueIdentities, &v.SummaryReport, &v.ErrorMessage,
		&v.StartedAt, &v.CompletedAt, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

func (s *PostgresStore) CreateVideo(ctx context.Context, v *models.Video) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	v.Status = models.VideoPending
	return s.pool.QueryRow(ctx,
		`INSERT INTO videos (id, filename, object_key, status, fps, total_frames, width, height, duration_seconds)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING created_at, updated_at`,
		v.ID, v.Filename, v.ObjectKey, v.Status, v.FPS, v.TotalFrames, v.Width, v.Height, v.DurationSeconds,
	).Scan(&v.CreatedAt, &v.UpdatedAt)
}

func (s *PostgresStore) GetVideo(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	v, err := scanVideo(s.pool.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get video: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) ListVideos(ctx context.Context, status models.VideoStatus, limit, offset int) ([]models.Video, int, error) {
	limit = clampLimit(limit)

	where := ""
	args := []any{}
	if status != "" {
		where = "WHERE status = $1"
		args = append(args, status)
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM videos `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count videos: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM videos %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		videoColumns, where, len(args)+1, len(args)+2)
	rows, err := s.pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	var videos []models.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, *v)
	}
	return videos, total, rows.Err()
}

// DeleteVideo removes a video row and its evidence.
func (s *PostgresStore) DeleteVideo(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM videos WHERE id = $1 AND status <> $2`, id, models.VideoProcessing)
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- Run state ---

// BeginRun moves a pending video to processing in one conditional update, so
// two workers can never both start the same video.
func (s *PostgresStore) BeginRun(ctx context.Context, id uuid.UUID) (*models.Video, bool, error) {
	v, err := scanVideo(s.pool.QueryRow(ctx,
		`UPDATE videos
		 SET status = $2, started_at = now(), frames_processed = 0, error_message = '', updated_at = now()
		 WHERE id = $1 AND status = $3
		 RETURNING `+videoColumns,
		id, models.VideoProcessing, models.VideoPending))
	if err == nil {
		return v, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("begin run: %w", err)
	}

	current, err := s.GetVideo(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if current == nil {
		return nil, false, fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	return current, false, nil
}

func (s *PostgresStore) Checkpoint(ctx context.Context, id uuid.UUID, framesProcessed int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE videos SET frames_processed = $1, updated_at = now() WHERE id = $2 AND status = $3`,
		framesProcessed, id, models.VideoProcessing)
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddFrameEvidence(ctx context.Context, ev *models.FrameEvidence) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	ev.CreatedAt = time.Now()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO frame_evidence
		   (id, video_id, frame_number, timestamp, faces_detected, identity_id, confidence, x, y, w, h, frame_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		ev.ID, ev.VideoID, ev.FrameNumber, ev.Timestamp, ev.FacesDetected, ev.IdentityID, ev.Confidence,
		ev.Region.X, ev.Region.Y, ev.Region.W, ev.Region.H, ev.FrameKey, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("add frame evidence: %w", err)
	}
	return nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, id uuid.UUID, stats models.VideoStats) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE videos
		 SET status = $1, frames_processed = $2, total_faces = $3, unique_identities = $4,
		     summary_report = $5, completed_at = now(), updated_at = now()
		 WHERE id = $6 AND status = $7`,
		models.VideoCompleted, stats.FramesProcessed, stats.TotalFaces, stats.UniqueIdentities,
		stats.SummaryReport, id, models.VideoProcessing)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("complete run: video %s is no longer processing", id)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, id uuid.UUID, message string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE videos SET status = $1, error_message = $2, completed_at = now(), updated_at = now()
		 WHERE id = $3 AND status = $4`,
		models.VideoFailed, message, id, models.VideoProcessing)
	if err != nil {
		return fmt.Errorf("fail run: %w", err)
	}
	return nil
}

// ListFrameEvidence pages through a video's audit trail in frame order.
func (s *PostgresStore) ListFrameEvidence(ctx context.Context, videoID uuid.UUID, matchedOnly bool, limit, offset int) ([]models.FrameEvidence, int, error) {
	limit = clampLimit(limit)

	where := "WHERE video_id = $1"
	if matchedOnly {
		where += " AND identity_id IS NOT NULL"
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM frame_evidence `+where, videoID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count frame evidence: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, video_id, frame_number, timestamp, faces_detected, identity_id, confidence, x, y, w, h, frame_key, created_at
		 FROM frame_evidence `+where+` ORDER BY frame_number, created_at LIMIT $2 OFFSET $3`,
		videoID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list frame evidence: %w", err)
	}
	defer rows.Close()

	var out []models.FrameEvidence
	for rows.Next() {
		var ev models.FrameEvidence
		if err := rows.Scan(&ev.ID, &ev.VideoID, &ev.FrameNumber, &ev.Timestamp, &ev.FacesDetected,
			&ev.IdentityID, &ev.Confidence, &ev.Region.X, &ev.Region.Y, &ev.Region.W, &ev.Region.H,
			&ev.FrameKey, &ev.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan frame evidence: %w", err)
		}
		out = append(out, ev)
	}
	return out, total, rows.Err()
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 500 {
		return 500
	}
	return limit
}

// --- Detections ---

const detectionColumns = `d.id, d.request_id, d.face_index,
	COALESCE(d.identity_id, '00000000-0000-0000-0000-000000000000'::uuid), COALESCE(i.name, ''),
	COALESCE(d.reference_id, '00000000-0000-0000-0000-000000000000'::uuid), d.confidence,
	d.x, d.y, d.w, d.h, d.location, d.camera_id, d.image_key, d.status, d.notes, d.detected_at, d.updated_at`

func scanDetection(row scanner) (*models.Detection, error) {
	d := &models.Detection{}
	err := row.Scan(&d.ID, &d.RequestID, &d.FaceIndex, &d.IdentityID, &d.IdentityName, &d.ReferenceID,
		&d.Confidence, &d.Region.X, &d.Region.Y, &d.Region.W, &d.Region.H,
		&d.Location, &d.CameraID, &d.ImageKey, &d.Status, &d.Notes, &d.DetectedAt, &d.UpdatedAt)
	return d, err
}

// RecordDetections stores the detections of one resolved image atomically.
func (s *PostgresStore) RecordDetections(ctx context.Context, detections []models.Detection) error {
	if len(detections) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	for i := range detections {
		d := &detections[i]
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
		if d.Status == "" {
			d.Status = models.DetectionPending
		}
		d.DetectedAt, d.UpdatedAt = now, now
		_, err := tx.Exec(ctx,
			`INSERT INTO detections
			   (id, request_id, face_index, identity_id, reference_id, confidence, x, y, w, h,
			    location, camera_id, image_key, status, notes, detected_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)`,
			d.ID, d.RequestID, d.FaceIndex, d.IdentityID, d.ReferenceID, d.Confidence,
			d.Region.X, d.Region.Y, d.Region.W, d.Region.H,
			d.Location, d.CameraID, d.ImageKey, d.Status, d.Notes, now)
		if err != nil {
			return fmt.Errorf("insert detection: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetDetection(ctx context.Context, id uuid.UUID) (*models.Detection, error) {
	d, err := scanDetection(s.pool.QueryRow(ctx,
		`SELECT `+detectionColumns+` FROM detections d LEFT JOIN identities i ON i.id = d.identity_id WHERE d.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get detection: %w", err)
	}
	return d, nil
}

// ListDetections returns detections newest first, optionally by status.
func (s *PostgresStore) ListDetections(ctx context.Context, status models.DetectionStatus, limit, offset int) ([]models.Detection, int, error) {
	limit = clampLimit(limit)

	where := ""
	args := []any{}
	if status != "" {
		where = "WHERE d.status = $1"
		args = append(args, status)
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM detections d `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count detections: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM detections d LEFT JOIN identities i ON i.id = d.identity_id %s
		ORDER BY d.detected_at DESC, d.face_index LIMIT $%d OFFSET $%d`,
		detectionColumns, where, len(args)+1, len(args)+2)
	rows, err := s.pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list detections: %w", err)
	}
	defer rows.Close()

	var out []models.Detection
	for rows.Next() {
		d, err := scanDetection(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan detection: %w", err)
		}
		out = append(out, *d)
	}
	return out, total, rows.Err()
}

// ReviewDetection sets the reviewed status and notes of a detection.
func (s *PostgresStore) ReviewDetection(ctx context.Context, id uuid.UUID, status models.DetectionStatus, notes string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE detections SET status = $1, notes = $2, updated_at = now() WHERE id = $3`,
		status, notes, id)
	if err != nil {
		return fmt.Errorf("review detection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("detection %s: %w", id, ErrNotFound)
	}
	return nil
}
