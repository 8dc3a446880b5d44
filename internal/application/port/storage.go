package port

import (
	"context"
	"time"
)

// ArchivedReport describes one stored export
type ArchivedReport struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// ReportArchive stores exported workbooks under flat, sanitized names
type ReportArchive interface {
	Save(ctx context.Context, name string, content []byte) (string, error)
	Read(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context) ([]ArchivedReport, error)
	Delete(ctx context.Context, name string) error
}
