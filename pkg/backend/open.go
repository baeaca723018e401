package backend

import (
	"context"
	"fmt"
	"os"

	"github.com/dd0wney/cluso-vaultcrypt/pkg/config"
)

// FromConfig builds the backend cfg selects. S3 static credentials are
// read from VAULT_S3_ACCESS_KEY_ID and VAULT_S3_SECRET_ACCESS_KEY.
func FromConfig(ctx context.Context, cfg config.BackendConfig) (Backend, error) {
	switch cfg.Type {
	case config.BackendLocal:
		return NewLocalBackend(cfg.Local.Root)
	case config.BackendS3:
		client, err := NewS3Client(ctx, S3Options{
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			PathStyle:       cfg.S3.PathStyle,
			AccessKeyID:     os.Getenv("VAULT_S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("VAULT_S3_SECRET_ACCESS_KEY"),
			SessionToken:    os.Getenv("VAULT_S3_SESSION_TOKEN"),
		})
		if err != nil {
			return nil, err
		}
		return NewS3Backend(client, cfg.S3.Bucket, cfg.S3.Prefix)
	default:
		return nil, fmt.Errorf("unknown backend type %q", cfg.Type)
	}
}
