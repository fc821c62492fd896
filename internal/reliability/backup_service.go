// Package reliability provides data protection services: scheduled
// snapshots of the data directory uploaded to an S3-compatible bucket.
package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/quantive/chatfolio/internal/config"
)

// fileMetadata describes one file inside a backup archive.
type fileMetadata struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// backupManifest is embedded in every archive so a restore can verify
// integrity before touching live databases.
type backupManifest struct {
	Timestamp time.Time      `json:"timestamp"`
	Files     []fileMetadata `json:"files"`
}

// BackupService snapshots the data directory into a tar.gz archive, with a
// sha256 manifest, and uploads it to the configured bucket.
type BackupService struct {
	cfg      *config.BackupConfig
	dataDir  string
	uploader *manager.Uploader
	log      zerolog.Logger
}

// NewBackupService creates a backup service. Returns an error when the
// bucket credentials cannot be assembled into a client.
func NewBackupService(ctx context.Context, cfg *config.BackupConfig, dataDir string, log zerolog.Logger) (*BackupService, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("backup bucket is not configured")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &BackupService{
		cfg:      cfg,
		dataDir:  dataDir,
		uploader: manager.NewUploader(client),
		log:      log.With().Str("service", "backup").Logger(),
	}, nil
}

// Backup archives every .db file in the data directory and uploads the
// result. Returns the object key of the uploaded archive.
func (s *BackupService) Backup(ctx context.Context) (string, error) {
	start := time.Now()
	s.log.Info().Msg("Starting backup")

	files, err := s.dataFiles()
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("no database files found in %s", s.dataDir)
	}

	stagingDir, err := os.MkdirTemp("", "chatfolio-backup-*")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	manifest := backupManifest{Timestamp: time.Now().UTC()}
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			return "", fmt.Errorf("failed to stat %s: %w", f, err)
		}
		checksum, err := checksumFile(f)
		if err != nil {
			return "", fmt.Errorf("failed to checksum %s: %w", f, err)
		}
		manifest.Files = append(manifest.Files, fileMetadata{
			Filename:  filepath.Base(f),
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
	}

	manifestPath := filepath.Join(stagingDir, "backup-manifest.json")
	if err := writeManifest(manifestPath, manifest); err != nil {
		return "", err
	}

	archiveName := fmt.Sprintf("chatfolio-backup-%s.tar.gz", time.Now().Format("2006-01-02-150405"))
	archivePath := filepath.Join(stagingDir, archiveName)
	if err := createArchive(archivePath, append(files, manifestPath)); err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	key := "backups/" + archiveName
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Body:   archive,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload archive: %w", err)
	}

	info, _ := os.Stat(archivePath)
	s.log.Info().
		Str("key", key).
		Int64("size_bytes", info.Size()).
		Dur("duration", time.Since(start)).
		Msg("Backup completed")

	return key, nil
}

// dataFiles lists the .db files in the data directory. WAL and SHM
// sidecars are skipped; the snapshot is of checkpointed state.
func (s *BackupService) dataFiles() ([]string, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".db") {
			continue
		}
		files = append(files, filepath.Join(s.dataDir, e.Name()))
	}
	return files, nil
}

func writeManifest(path string, manifest backupManifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func createArchive(archivePath string, files []string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer out.Close()

	gw := gzip.NewWriter(out)
	defer gw.Close()
	tw := tar.NewWriter(gw)
	defer tw.Close()

	for _, path := range files {
		if err := addToArchive(tw, path); err != nil {
			return fmt.Errorf("failed to archive %s: %w", path, err)
		}
	}
	return nil
}

func addToArchive(tw *tar.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = filepath.Base(path)

	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}
