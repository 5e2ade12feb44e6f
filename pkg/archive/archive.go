// Package archive copies a persisted index directory to and from a Google
// Cloud Storage bucket prefix.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"

	"github.com/xhad/docuchat/internal/logger"
)

const (
	DefaultBucket = "docuchat_storage"
	DefaultPrefix = "persistentdb"
)

type ArchiveConfig struct {
	Bucket string
	Prefix string
	// CredentialsFile is a service account key. Application default
	// credentials are used when empty.
	CredentialsFile string
	// AccessToken is a static OAuth2 token. It takes precedence over
	// CredentialsFile.
	AccessToken string
	// Endpoint overrides the storage API endpoint, for emulators and tests.
	Endpoint   string
	HTTPClient *http.Client
}

// Archive syncs a local directory with objects under Bucket/Prefix.
type Archive struct {
	config  ArchiveConfig
	service *storage.Service
}

func NewWithConfig(ctx context.Context, config ArchiveConfig) (*Archive, error) {
	if config.Bucket == "" {
		config.Bucket = DefaultBucket
	}
	if config.Prefix == "" {
		config.Prefix = DefaultPrefix
	}
	config.Prefix = strings.Trim(config.Prefix, "/")

	var opts []option.ClientOption
	switch {
	case config.HTTPClient != nil:
		opts = append(opts, option.WithHTTPClient(config.HTTPClient))
	case config.AccessToken != "":
		opts = append(opts, option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: config.AccessToken})))
	case config.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(config.CredentialsFile))
	}
	if config.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(config.Endpoint))
	}

	service, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %v", err)
	}

	return &Archive{config: config, service: service}, nil
}

func (a *Archive) Config() ArchiveConfig { return a.config }

func (a *Archive) objectName(rel string) string {
	return path.Join(a.config.Prefix, filepath.ToSlash(rel))
}

// Push uploads every file under localDir and returns the number of
// uploaded files.
func (a *Archive) Push(ctx context.Context, localDir string) (int, error) {
	count := 0
	err := filepath.WalkDir(localDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		name := a.objectName(rel)

		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = a.service.Objects.Insert(a.config.Bucket, &storage.Object{Name: name}).
			Media(f).
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("failed to upload %s: %w", p, err)
		}

		count++
		logger.Debug("uploaded file", "file", p, "object", fmt.Sprintf("gs://%s/%s", a.config.Bucket, name))
		return nil
	})
	if err != nil {
		return count, err
	}

	logger.Info("uploaded index", "files", count, "bucket", a.config.Bucket, "prefix", a.config.Prefix)
	return count, nil
}

// Pull downloads every object under the prefix into localDir and returns
// the number of downloaded files. An empty or missing prefix yields 0.
func (a *Archive) Pull(ctx context.Context, localDir string) (int, error) {
	prefix := a.config.Prefix + "/"
	count := 0

	err := a.service.Objects.List(a.config.Bucket).Prefix(prefix).Pages(ctx, func(objects *storage.Objects) error {
		for _, obj := range objects.Items {
			if strings.HasSuffix(obj.Name, "/") {
				continue
			}
			rel := strings.TrimPrefix(obj.Name, prefix)
			target := filepath.Join(localDir, filepath.FromSlash(rel))
			if !strings.HasPrefix(target, filepath.Clean(localDir)+string(os.PathSeparator)) {
				return fmt.Errorf("object %s escapes %s", obj.Name, localDir)
			}

			if err := a.download(ctx, obj.Name, target); err != nil {
				return err
			}
			count++
			logger.Debug("downloaded file", "object", obj.Name, "file", target)
		}
		return nil
	})
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
			return 0, fmt.Errorf("bucket %s not found: %w", a.config.Bucket, err)
		}
		return count, err
	}

	logger.Info("downloaded index", "files", count, "bucket", a.config.Bucket, "prefix", a.config.Prefix)
	return count, nil
}

func (a *Archive) download(ctx context.Context, name, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	resp, err := a.service.Objects.Get(a.config.Bucket, name).Context(ctx).Download()
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", name, err)
	}
	defer resp.Body.Close()

	tmp := target + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to download %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, target)
}
