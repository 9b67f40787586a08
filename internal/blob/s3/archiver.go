package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/inkpress/comicmint/internal/domain"
)

// multipartThreshold is the payload size above which archives are uploaded
// with the multipart manager instead of a single PutObject.
const multipartThreshold = 8 * 1024 * 1024

// archiveBatchSize bounds how many transaction records one archive pass
// pulls from the store.
const archiveBatchSize = 5000

// Archiver moves settled history out of the primary store: terminal
// transaction records and old audit rows are serialized to JSONL, uploaded
// to S3, and then pruned. Pruning happens only after the upload succeeded,
// so a failed pass leaves the rows in place for the next one.
type Archiver struct {
	writer domain.BlobWriter
	txs    domain.TransactionStore
	audit  domain.AuditStore
}

// NewArchiver creates an Archiver over the given writer and stores.
func NewArchiver(writer domain.BlobWriter, txs domain.TransactionStore, audit domain.AuditStore) *Archiver {
	return &Archiver{
		writer: writer,
		txs:    txs,
		audit:  audit,
	}
}

// ArchiveTransactions uploads all terminal (completed, failed, cancelled)
// transaction records settled before the cutoff to
// archive/transactions/YYYY-MM.jsonl, deletes them from the store, and
// returns the count archived.
func (a *Archiver) ArchiveTransactions(ctx context.Context, before time.Time) (int64, error) {
	records, err := a.txs.ListTerminalBefore(ctx, before, archiveBatchSize)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive transactions query: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive transactions marshal: %w", err)
	}

	path := archivePath("transactions", before)
	if err := a.upload(ctx, path, buf); err != nil {
		return 0, fmt.Errorf("s3blob: archive transactions upload: %w", err)
	}

	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	deleted, err := a.txs.DeleteByIDs(ctx, ids)
	if err != nil {
		return int64(len(records)), fmt.Errorf("s3blob: archive transactions prune: %w", err)
	}

	if err := a.audit.Log(ctx, "archive.transactions", map[string]any{
		"path":    path,
		"count":   len(records),
		"deleted": deleted,
		"before":  before.Format(time.RFC3339),
	}); err != nil {
		return int64(len(records)), fmt.Errorf("s3blob: archive transactions audit log: %w", err)
	}

	return int64(len(records)), nil
}

// ArchiveAuditLog uploads audit entries older than the cutoff to
// archive/audit/YYYY-MM.jsonl and prunes them from the store.
func (a *Archiver) ArchiveAuditLog(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.audit.List(ctx, domain.ListOpts{Until: &before})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}

	path := archivePath("audit", before)
	if err := a.upload(ctx, path, buf); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit upload: %w", err)
	}

	deleted, err := a.audit.DeleteBefore(ctx, before)
	if err != nil {
		return int64(len(entries)), fmt.Errorf("s3blob: archive audit prune: %w", err)
	}

	if err := a.audit.Log(ctx, "archive.audit", map[string]any{
		"path":    path,
		"count":   len(entries),
		"deleted": deleted,
		"before":  before.Format(time.RFC3339),
	}); err != nil {
		return int64(len(entries)), fmt.Errorf("s3blob: archive audit log entry: %w", err)
	}

	return int64(len(entries)), nil
}

func (a *Archiver) upload(ctx context.Context, path string, buf []byte) error {
	if len(buf) >= multipartThreshold {
		return a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	}
	return a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/transactions/2026-03.jsonl
//	archive/audit/2026-03.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
