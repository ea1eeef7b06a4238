package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/DMS/document"
	"github.com/teranos/DMS/errors"
	"github.com/teranos/DMS/logger"
)

// Processor performs the ingestion work for a single document.
// Returning a *ProcessingError records a failed log and the sweep continues;
// any other error stops the sweep.
type Processor interface {
	Process(ctx context.Context, doc document.Document) error
}

// ProcessorFunc adapts a function to Processor
type ProcessorFunc func(ctx context.Context, doc document.Document) error

// Process calls f(ctx, doc)
func (f ProcessorFunc) Process(ctx context.Context, doc document.Document) error {
	return f(ctx, doc)
}

// ProcessingError is an expected, per-document failure
type ProcessingError struct {
	DocumentID int64
	Reason     string
	Err        error
}

// NewProcessingError creates a per-document failure with a reason stored on the log
func NewProcessingError(documentID int64, reason string, err error) *ProcessingError {
	return &ProcessingError{DocumentID: documentID, Reason: reason, Err: err}
}

func (e *ProcessingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("document %d: %s: %v", e.DocumentID, e.Reason, e.Err)
	}
	return fmt.Sprintf("document %d: %s", e.DocumentID, e.Reason)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// FileOpener opens stored document content
type FileOpener interface {
	Open(path string) (*os.File, error)
}

// Digest summarises the content read for one document
type Digest struct {
	Size        int64
	SHA256      string
	ContentType string
}

// FileProcessor reads each document's stored file, digests it and then
// waits the configured delay, standing in for downstream extraction.
type FileProcessor struct {
	files  FileOpener
	delay  atomic.Int64
	logger *zap.SugaredLogger
}

// NewFileProcessor creates a processor reading from files
func NewFileProcessor(files FileOpener, delay time.Duration, log *zap.SugaredLogger) *FileProcessor {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	p := &FileProcessor{files: files, logger: log}
	p.SetDelay(delay)
	return p
}

// SetDelay changes the per-document delay; safe to call during a sweep
func (p *FileProcessor) SetDelay(d time.Duration) {
	if d < 0 {
		d = 0
	}
	p.delay.Store(int64(d))
}

// Delay returns the current per-document delay
func (p *FileProcessor) Delay() time.Duration {
	return time.Duration(p.delay.Load())
}

// Process digests doc's file, then waits out the delay unless ctx ends first
func (p *FileProcessor) Process(ctx context.Context, doc document.Document) error {
	digest, err := p.digest(doc)
	if err != nil {
		return err
	}
	p.logger.Debugw("Digested document",
		logger.FieldDocumentID, doc.ID,
		logger.FieldSize, digest.Size,
		"sha256", digest.SHA256,
		"content_type", digest.ContentType)

	if d := p.Delay(); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "processing document %d interrupted", doc.ID)
		}
	}
	return nil
}

func (p *FileProcessor) digest(doc document.Document) (Digest, error) {
	f, err := p.files.Open(doc.FilePath)
	if err != nil {
		return Digest{}, NewProcessingError(doc.ID, "file not readable", err)
	}
	defer f.Close()

	h := sha256.New()
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return Digest{}, NewProcessingError(doc.ID, "file not readable", err)
	}
	head = head[:n]
	h.Write(head)

	rest, err := io.Copy(h, f)
	if err != nil {
		return Digest{}, NewProcessingError(doc.ID, "file not readable", err)
	}

	size := int64(n) + rest
	if size == 0 {
		return Digest{}, NewProcessingError(doc.ID, "document is empty", nil)
	}
	return Digest{
		Size:        size,
		SHA256:      hex.EncodeToString(h.Sum(nil)),
		ContentType: http.DetectContentType(head),
	}, nil
}
