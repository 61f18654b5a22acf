package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vanishedbrands/download-service/internal/auth"
	"github.com/vanishedbrands/download-service/internal/config"
	"github.com/vanishedbrands/download-service/internal/storage"
	apperrors "github.com/vanishedbrands/download-service/pkg/util"
)

// DatasetService serves the legacy signed-link path: compact HS256 tokens
// minted out of band that grant a direct, watermarked copy of a dataset
// version. Separate from purchase tokens; no usage state is kept.
type DatasetService struct {
	links  *auth.LinkManager
	store  storage.Backend
	cfg    config.StoreConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewDatasetService constructs the service.
func NewDatasetService(cfg config.StoreConfig, links *auth.LinkManager, store storage.Backend, logger *zap.Logger) *DatasetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DatasetService{
		links:  links,
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// DatasetDownload is a watermarked dataset copy ready to stream.
type DatasetDownload struct {
	Filename string
	Content  []byte
}

// MintedLink is a freshly signed dataset link.
type MintedLink struct {
	Token     string
	Email     string
	Version   string
	ExpiresAt time.Time
}

// MintLink signs a dataset link for a buyer email and dataset version.
func (s *DatasetService) MintLink(email, version string) (*MintedLink, error) {
	email = strings.TrimSpace(email)
	version = strings.TrimSpace(version)
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperrors.NewValidationError("valid email required", nil)
	}
	if version == "" || strings.ContainsAny(version, "/\\") {
		return nil, apperrors.NewValidationError("valid version required", nil)
	}
	token, expiresAt, err := s.links.GenerateLink(email, version)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &MintedLink{Token: token, Email: email, Version: version, ExpiresAt: expiresAt}, nil
}

// Fetch validates the link token and returns the versioned CSV with the
// buyer watermark appended.
func (s *DatasetService) Fetch(ctx context.Context, token string) (*DatasetDownload, error) {
	claims, err := s.links.ParseLink(token)
	if err != nil {
		return nil, apperrors.NewUnauthorized("invalid or expired link")
	}
	if strings.ContainsAny(claims.Version, "/\\") {
		return nil, apperrors.NewUnauthorized("invalid or expired link")
	}

	filename := fmt.Sprintf("brands-%s.csv", claims.Version)
	raw, err := s.store.Get(ctx, s.cfg.DatasetPrefix+filename)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NewNotFound("dataset", map[string]any{"version": claims.Version})
		}
		s.logger.Error("dataset fetch failed",
			zap.String("version", claims.Version), zap.Error(err))
		return nil, apperrors.NewUpstreamFailure("could not fetch dataset", err)
	}

	stamped := s.watermark(string(raw), claims.Email, claims.Version)
	return &DatasetDownload{Filename: filename, Content: []byte(stamped)}, nil
}

// watermark appends a buyer fingerprint row, adding last_updated and
// dataset_version columns when the export predates them. The fingerprint
// ties a leaked copy back to the buyer and mint time.
func (s *DatasetService) watermark(csv, email, version string) string {
	stamp := s.now().UTC().Format(time.RFC3339)
	sum := sha1.Sum([]byte(email + "." + version + "." + stamp))
	fp := hex.EncodeToString(sum[:])[:10]

	lines := strings.Split(strings.TrimRight(csv, "\r\n "), "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], "\r")
	}
	if !strings.Contains(strings.ToLower(lines[0]), "dataset_version") {
		lines[0] += ",last_updated,dataset_version"
		today := s.now().UTC().Format("2006-01-02")
		for i := 1; i < len(lines); i++ {
			lines[i] += fmt.Sprintf(",%s,%s", today, version)
		}
	}
	lines = append(lines, fmt.Sprintf(`__WATERMARK__,,,,,,,,,,%s,%s,"%s","%s"`,
		stamp, version, strings.ReplaceAll(email, `"`, `""`), fp))
	return strings.Join(lines, "\n") + "\n"
}
