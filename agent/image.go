package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fluxa/db"
	"fluxa/utils"
)

// ErrVisionDisabled is returned by AttachImage when image handling is switched off
var ErrVisionDisabled = errors.New("vision is disabled")

// AttachImage validates the image at path against the vision limits and
// records it against messageID. Attaching the same content twice fails with
// a unique constraint violation on images.hash.
func (a *Agent) AttachImage(ctx context.Context, messageID int64, path string) (*db.Image, error) {
	vision := a.config.Vision
	if !vision.Enabled {
		return nil, ErrVisionDisabled
	}

	if !utils.HasFormat(path, vision.SupportedFormats) {
		return nil, &db.ValidationError{
			Field:  "file_path",
			Reason: fmt.Sprintf("unsupported image format (supported: %s)", strings.Join(vision.SupportedFormats, ", ")),
		}
	}

	size, err := utils.GetFileSize(path)
	if err != nil {
		return nil, err
	}
	if limit := int64(vision.MaxImageSizeMB) * 1024 * 1024; size > limit {
		return nil, &db.ValidationError{
			Field:  "file_size",
			Reason: fmt.Sprintf("image is %d bytes, limit is %d MB", size, vision.MaxImageSizeMB),
		}
	}

	info, err := utils.InspectImage(path)
	if err != nil {
		return nil, err
	}

	img, err := a.repo.AddImage(ctx, db.Image{
		MessageID: messageID,
		FilePath:  info.Path,
		FileName:  info.Name,
		FileSize:  info.Size,
		MimeType:  info.MimeType,
		Width:     info.Width,
		Height:    info.Height,
		Hash:      info.Hash,
	})
	if err != nil {
		return nil, err
	}
	a.logger.Info("Attached image %s to message %d", info.Name, messageID)
	return img, nil
}
