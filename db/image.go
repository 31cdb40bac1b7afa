package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
)

// AddImage registers an image attached to a message. A non-empty Hash must be
// unique across all images; a duplicate fails with a *StoreError whose
// Constraint is "images.hash".
func (r *Repository) AddImage(ctx context.Context, img Image) (*Image, error) {
	if img.FileSize < 0 {
		return nil, &ValidationError{Field: "file_size", Reason: "must not be negative"}
	}
	if img.Metadata == nil {
		img.Metadata = Metadata{}
	}
	meta, err := encodeJSON(img.Metadata)
	if err != nil {
		return nil, err
	}

	img.CreatedAt = r.now()
	img.ID, err = r.insert(ctx, "images",
		`INSERT INTO images
			(message_id, file_path, file_name, file_size, mime_type, width, height, hash, created_at, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		img.MessageID, img.FilePath, img.FileName, img.FileSize, img.MimeType,
		nullIntPtr(img.Width), nullIntPtr(img.Height), nullString(img.Hash), img.CreatedAt, meta,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add image: %w", err)
	}

	return &img, nil
}

func (r *Repository) scanImage(row interface{ Scan(...interface{}) error }) (*Image, error) {
	var (
		img           Image
		width, height sql.NullInt64
		hash, meta    sql.NullString
		createdAt     sql.NullTime
	)
	err := row.Scan(&img.ID, &img.MessageID, &img.FilePath, &img.FileName, &img.FileSize, &img.MimeType,
		&width, &height, &hash, &createdAt, &meta)
	if err != nil {
		return nil, err
	}
	img.CreatedAt = createdAt.Time
	img.Width = intPtr(width)
	img.Height = intPtr(height)
	img.Hash = hash.String
	img.Metadata = r.decodeMetadata("images", img.ID, meta)
	return &img, nil
}

// GetImage retrieves an image by ID
func (r *Repository) GetImage(ctx context.Context, id int64) (*Image, error) {
	img, err := r.scanImage(r.db.queryRow(ctx,
		"SELECT "+imageColumns.String()+" FROM images WHERE id = ?", id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("image %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get image", err)
	}
	return img, nil
}

// FindImageByHash returns the image stored with the given content hash
func (r *Repository) FindImageByHash(ctx context.Context, hash string) (*Image, error) {
	img, err := r.scanImage(r.db.queryRow(ctx,
		"SELECT "+imageColumns.String()+" FROM images WHERE hash = ?", hash,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("image with hash %s: %w", hash, ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("find image", err)
	}
	return img, nil
}

// ListImages retrieves the images attached to a message, oldest first
func (r *Repository) ListImages(ctx context.Context, messageID int64) ([]*Image, error) {
	rows, err := r.db.query(ctx,
		"SELECT "+imageColumns.String()+" FROM images WHERE message_id = ? ORDER BY created_at ASC, id ASC",
		messageID,
	)
	if err != nil {
		return nil, storeErr("list images", err)
	}
	defer rows.Close()

	images := []*Image{}
	for rows.Next() {
		img, err := r.scanImage(rows)
		if err != nil {
			return nil, storeErr("scan image", err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list images", err)
	}
	return images, nil
}

// AddVisionAnalysis stores the result of analysing an image. A confidence
// outside [0, 1] is rejected, never clamped.
func (r *Repository) AddVisionAnalysis(ctx context.Context, a VisionAnalysis) (*VisionAnalysis, error) {
	if a.Confidence != nil {
		c := *a.Confidence
		if math.IsNaN(c) || c < 0 || c > 1 {
			return nil, &ValidationError{Field: "confidence", Reason: fmt.Sprintf("%g is outside [0, 1]", c)}
		}
	}
	if a.Model == "" {
		return nil, &ValidationError{Field: "model", Reason: "is required"}
	}
	if a.DetectedObjects == nil {
		a.DetectedObjects = []map[string]interface{}{}
	}
	if a.Tags == nil {
		a.Tags = []string{}
	}
	if a.Metadata == nil {
		a.Metadata = Metadata{}
	}

	objects, err := encodeJSON(a.DetectedObjects)
	if err != nil {
		return nil, err
	}
	tags, err := encodeJSON(a.Tags)
	if err != nil {
		return nil, err
	}
	meta, err := encodeJSON(a.Metadata)
	if err != nil {
		return nil, err
	}

	a.CreatedAt = r.now()
	a.ID, err = r.insert(ctx, "vision_analyses",
		`INSERT INTO vision_analyses
			(image_id, message_id, model, description, detected_objects, extracted_text, tags,
			 confidence, processing_time, created_at, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ImageID, nullInt64Ptr(a.MessageID), a.Model, nullString(a.Description), objects,
		nullString(a.ExtractedText), tags, nullFloatPtr(a.Confidence), nullFloatPtr(a.ProcessingTime),
		a.CreatedAt, meta,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add vision analysis: %w", err)
	}

	return &a, nil
}

func (r *Repository) scanVisionAnalysis(row interface{ Scan(...interface{}) error }) (*VisionAnalysis, error) {
	var (
		a                          VisionAnalysis
		messageID                  sql.NullInt64
		description, extracted     sql.NullString
		objects, tags, meta        sql.NullString
		confidence, processingTime sql.NullFloat64
		createdAt                  sql.NullTime
	)
	err := row.Scan(&a.ID, &a.ImageID, &messageID, &a.Model, &description, &objects, &extracted, &tags,
		&confidence, &processingTime, &createdAt, &meta)
	if err != nil {
		return nil, err
	}
	a.CreatedAt = createdAt.Time

	a.MessageID = int64Ptr(messageID)
	a.Description = description.String
	a.ExtractedText = extracted.String
	a.Confidence = floatPtr(confidence)
	a.ProcessingTime = floatPtr(processingTime)
	a.DetectedObjects = decodeField[[]map[string]interface{}](r, "vision_analyses", "detected_objects", a.ID, objects)
	if a.DetectedObjects == nil {
		a.DetectedObjects = []map[string]interface{}{}
	}
	a.Tags = decodeField[[]string](r, "vision_analyses", "tags", a.ID, tags)
	if a.Tags == nil {
		a.Tags = []string{}
	}
	a.Metadata = r.decodeMetadata("vision_analyses", a.ID, meta)
	return &a, nil
}

// ListVisionAnalyses retrieves the analyses of an image, newest first
func (r *Repository) ListVisionAnalyses(ctx context.Context, imageID int64) ([]*VisionAnalysis, error) {
	rows, err := r.db.query(ctx,
		"SELECT "+visionColumns.String()+" FROM vision_analyses WHERE image_id = ? ORDER BY created_at DESC, id DESC",
		imageID,
	)
	if err != nil {
		return nil, storeErr("list vision analyses", err)
	}
	defer rows.Close()

	analyses := []*VisionAnalysis{}
	for rows.Next() {
		a, err := r.scanVisionAnalysis(rows)
		if err != nil {
			return nil, storeErr("scan vision analysis", err)
		}
		analyses = append(analyses, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list vision analyses", err)
	}
	return analyses, nil
}
