// internal/reporting/github.go
package reporting

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/go-github/v58/github"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/api/schemas"
)

// UploadTarget identifies the repository and revision a SARIF document
// describes. Ref must use the fully qualified form, e.g. "refs/heads/main".
type UploadTarget struct {
	Owner     string
	Repo      string
	CommitSHA string
	Ref       string
}

func (t UploadTarget) validate() error {
	switch {
	case t.Owner == "":
		return fmt.Errorf("upload target owner is required")
	case t.Repo == "":
		return fmt.Errorf("upload target repo is required")
	case t.CommitSHA == "":
		return fmt.Errorf("upload target commit SHA is required")
	case t.Ref == "":
		return fmt.Errorf("upload target ref is required")
	case !strings.HasPrefix(t.Ref, "refs/"):
		return fmt.Errorf("upload target ref must be fully qualified (got %q)", t.Ref)
	}
	return nil
}

// SARIFUploader pushes finished SARIF documents to the GitHub code scanning
// API.
type SARIFUploader struct {
	client *github.Client
	logger *zap.Logger
}

// NewSARIFUploader builds an uploader authenticated with the given token.
func NewSARIFUploader(token string, logger *zap.Logger) *SARIFUploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := github.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return &SARIFUploader{
		client: client,
		logger: logger.Named("sarif_uploader"),
	}
}

// SetBaseURL points the uploader at a different API endpoint. Used for
// GitHub Enterprise installs and for tests.
func (u *SARIFUploader) SetBaseURL(raw string) error {
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid GitHub API base URL %q: %w", raw, err)
	}
	u.client.BaseURL = parsed
	return nil
}

// Upload gzips and base64-encodes the SARIF document, as the code scanning
// API requires, and submits it. It returns the analysis ID GitHub assigned.
func (u *SARIFUploader) Upload(ctx context.Context, target UploadTarget, sarifDoc []byte) (string, error) {
	if err := target.validate(); err != nil {
		return "", err
	}
	if len(sarifDoc) == 0 {
		return "", fmt.Errorf("refusing to upload empty SARIF document")
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(sarifDoc); err != nil {
		return "", fmt.Errorf("failed to compress SARIF document: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("failed to compress SARIF document: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(buf.Bytes())

	analysis := &github.SarifAnalysis{
		CommitSHA: github.String(target.CommitSHA),
		Ref:       github.String(target.Ref),
		Sarif:     github.String(encoded),
	}

	u.logger.Info("Uploading SARIF to GitHub code scanning",
		zap.String("owner", target.Owner),
		zap.String("repo", target.Repo),
		zap.String("commit_sha", target.CommitSHA),
		zap.String("ref", target.Ref),
		zap.Int("sarif_bytes", len(sarifDoc)),
	)

	sarifID, _, err := u.client.CodeScanning.UploadSarif(ctx, target.Owner, target.Repo, analysis)
	if err != nil {
		return "", fmt.Errorf("failed to upload SARIF to GitHub: %w", err)
	}

	id := sarifID.GetID()
	u.logger.Info("SARIF upload accepted", zap.String("analysis_id", id))
	return id, nil
}

// SARIFBytes renders an envelope to a standalone SARIF document, for callers
// that upload the report instead of writing it out.
func SARIFBytes(envelope *schemas.ResultEnvelope, logger *zap.Logger, toolVersion string) ([]byte, error) {
	var buf bytes.Buffer
	r := NewSARIFReporter(&nopWriteCloser{&buf}, logger, toolVersion)
	if err := r.Write(envelope); err != nil {
		return nil, fmt.Errorf("failed to render SARIF document: %w", err)
	}
	if err := r.Close(); err != nil {
		return nil, fmt.Errorf("failed to render SARIF document: %w", err)
	}
	return buf.Bytes(), nil
}
