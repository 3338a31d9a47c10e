// Package storage builds the configured input asset provider.
package storage

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"renderbridge/internal/adapters/storage/gdrive"
	"renderbridge/internal/adapters/storage/localfs"
	"renderbridge/internal/adapters/storage/s3"
	"renderbridge/internal/config"
	"renderbridge/internal/ports"
)

// Provider lets commands name the provider type without importing ports.
type Provider = ports.StorageProvider

const (
	ProviderLocalFS = "localfs"
	ProviderGDrive  = "gdrive"
	ProviderS3      = "s3"
)

// NewProvider returns the provider selected by cfg.Provider.
func NewProvider(ctx context.Context, cfg config.Storage) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderLocalFS:
		if cfg.LocalRoot == "" {
			return nil, missing("STORAGE_LOCAL_ROOT")
		}
		return localfs.New(cfg.LocalRoot), nil

	case ProviderGDrive:
		return newGDriveProvider(ctx, cfg)

	case ProviderS3:
		if cfg.S3Bucket == "" {
			return nil, missing("S3_BUCKET")
		}
		return s3.New(ctx, s3.Config{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
			Prefix:   cfg.S3Prefix,
		})

	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Provider)
	}
}

// GDriveOAuthConfig is the OAuth client used both by the provider and by the
// refresh-token bootstrap command.
func GDriveOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
	}
}

func newGDriveProvider(ctx context.Context, cfg config.Storage) (Provider, error) {
	for k, v := range map[string]string{
		"GDRIVE_CLIENT_ID":     cfg.GDriveClientID,
		"GDRIVE_CLIENT_SECRET": cfg.GDriveClientSecret,
		"GDRIVE_REFRESH_TOKEN": cfg.GDriveRefreshToken,
	} {
		if v == "" {
			return nil, missing(k)
		}
	}

	conf := GDriveOAuthConfig(cfg.GDriveClientID, cfg.GDriveClientSecret, "")
	tok := &oauth2.Token{RefreshToken: cfg.GDriveRefreshToken}
	httpClient := conf.Client(context.WithoutCancel(ctx), tok)

	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("gdrive service: %w", err)
	}
	return gdrive.NewClient(srv, cfg.GDriveFolderID), nil
}

func missing(key string) error {
	return fmt.Errorf("missing env: %s", key)
}
