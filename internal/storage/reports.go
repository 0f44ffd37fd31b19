package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/promo-notifier/internal/domain"
)

// ReportKey is the object key for a dispatch summary:
// dispatch-reports/YYYY/MM/DD/<promotion>-<unix>.json.
func ReportKey(s domain.DispatchSummary) string {
	at := s.StartedAt.UTC()
	return fmt.Sprintf("dispatch-reports/%s/%s-%d.json", at.Format("2006/01/02"), s.PromotionID, at.Unix())
}

type dispatchReport struct {
	domain.DispatchSummary
	DurationMS int64 `json:"duration_ms"`
}

func marshalReport(s domain.DispatchSummary) ([]byte, error) {
	data, err := json.MarshalIndent(dispatchReport{DispatchSummary: s, DurationMS: s.Duration.Milliseconds()}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling report: %w", err)
	}
	return data, nil
}

// S3ReportArchive writes dispatch summaries to a bucket. It implements
// notification.ReportSink.
type S3ReportArchive struct {
	client S3API
	bucket string
}

func NewS3ReportArchive(client S3API, bucket string) *S3ReportArchive {
	return &S3ReportArchive{client: client, bucket: bucket}
}

func (a *S3ReportArchive) StoreDispatchReport(ctx context.Context, s domain.DispatchSummary) error {
	data, err := marshalReport(s)
	if err != nil {
		return err
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(ReportKey(s)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("putting object to S3: %w", err)
	}
	return nil
}

// LocalReportArchive writes the same layout under a directory.
type LocalReportArchive struct {
	root string
}

func NewLocalReportArchive(root string) *LocalReportArchive {
	return &LocalReportArchive{root: root}
}

func (a *LocalReportArchive) StoreDispatchReport(_ context.Context, s domain.DispatchSummary) error {
	data, err := marshalReport(s)
	if err != nil {
		return err
	}
	path := filepath.Join(a.root, filepath.FromSlash(ReportKey(s)))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
