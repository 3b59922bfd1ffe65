package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bobarin/storyreel/internal/models"
	"github.com/rs/zerolog"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// DriveUploader puts videos into a Google Drive folder and shares them with
// anyone holding the link.
type DriveUploader struct {
	svc           *drive.Service
	defaultFolder string
	logger        zerolog.Logger
}

var _ Uploader = (*DriveUploader)(nil)

// NewDriveUploader authenticates with a service-account file, or with
// application default credentials when credentialsFile is empty.
func NewDriveUploader(ctx context.Context, credentialsFile, defaultFolder string, logger zerolog.Logger) (*DriveUploader, error) {
	opts := []option.ClientOption{option.WithScopes(drive.DriveFileScope)}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive client: %w", err)
	}
	return NewDriveUploaderWithService(svc, defaultFolder, logger), nil
}

func NewDriveUploaderWithService(svc *drive.Service, defaultFolder string, logger zerolog.Logger) *DriveUploader {
	return &DriveUploader{
		svc:           svc,
		defaultFolder: defaultFolder,
		logger:        logger.With().Str("component", "drive").Logger(),
	}
}

// Upload creates the file in folderID (or the default folder), grants
// anyone-with-link read access and returns the view link.
func (d *DriveUploader) Upload(ctx context.Context, localPath, folderID string) (string, error) {
	if folderID == "" {
		folderID = d.defaultFolder
	}
	if folderID == "" {
		return "", fmt.Errorf("%w: no drive folder configured", models.ErrUpload)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: failed to open %s: %w", models.ErrUpload, localPath, err)
	}
	defer f.Close()

	meta := &drive.File{
		Name:     filepath.Base(localPath),
		Parents:  []string{folderID},
		MimeType: contentTypeFor(localPath),
	}

	created, err := d.svc.Files.Create(meta).
		Media(f, googleapi.ContentType(meta.MimeType)).
		Fields("id", "webViewLink", "webContentLink").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("%w: drive upload failed: %w", models.ErrUpload, err)
	}

	perm := &drive.Permission{Type: "anyone", Role: "reader"}
	if _, err := d.svc.Permissions.Create(created.Id, perm).SupportsAllDrives(true).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("%w: failed to share drive file %s: %w", models.ErrUpload, created.Id, err)
	}

	link := shareableLink(created)
	d.logger.Info().Str("file_id", created.Id).Str("folder", folderID).Msg("video uploaded to drive")
	return link, nil
}

// shareableLink prefers the browser view link and falls back to a link
// built from the file id.
func shareableLink(f *drive.File) string {
	if f.WebViewLink != "" {
		return f.WebViewLink
	}
	if f.WebContentLink != "" {
		return f.WebContentLink
	}
	return fmt.Sprintf("https://drive.google.com/file/d/%s/view?usp=sharing", f.Id)
}
