package core

// import.go implements the batch import of an uploaded guest-list file.
//
// The file is read whole, tokenized and mapped before the registry is
// touched; a file without usable rows fails with ErrNoRows and makes no
// network call. Candidates are then created one at a time in file order.
// The first rejection stops the batch: earlier rows stay created, later rows
// are never sent. Whatever the outcome, the event's guest list is re-read
// from the registry afterwards.
//
// The import runs on a context detached from the caller so that a client
// disconnect cannot cut a batch short; only the import timeout bounds it.
// The trailing refresh and the history entry run after that timeout too.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/guestlist/internal/csv"
	"github.com/JonMunkholm/guestlist/internal/logging"
	"github.com/JonMunkholm/guestlist/internal/schema"
)

// Import reads a guest-list file from r and creates every row in the
// registry. On a rejected row the returned error is an *ImportError and the
// result still describes what was committed.
func (s *Service) Import(ctx context.Context, eventID, fileName string, r io.Reader) (ImportResult, error) {
	text, err := csv.ReadText(r, s.maxFileSize)
	if err != nil {
		return ImportResult{}, err
	}
	return s.ImportText(ctx, eventID, fileName, text)
}

// ImportText is Import for text already in memory.
func (s *Service) ImportText(ctx context.Context, eventID, fileName, text string) (ImportResult, error) {
	mapping := schema.MapRows(schema.Rows(csv.Tokenize(text)))
	if len(mapping.Candidates) == 0 {
		s.metrics.IncrementOutcome("empty")
		return ImportResult{EventID: eventID, Dropped: mapping.Dropped}, ErrNoRows
	}

	release, err := s.locks.TryAcquire(ctx, eventID)
	if err != nil {
		return ImportResult{}, err
	}
	defer release()

	s.active.Add(1)
	defer s.active.Add(-1)

	importID := uuid.New().String()
	started := time.Now().UTC()
	logger := logging.WithFields(ctx,
		"import_id", importID,
		"event_id", eventID,
		"file", fileName,
	)

	status := ImportStatus{
		ImportID:  importID,
		EventID:   eventID,
		FileName:  fileName,
		State:     ImportImporting,
		TotalRows: len(mapping.Candidates),
		Dropped:   mapping.Dropped,
		IPAddress: GetIPAddressFromContext(ctx),
		UserAgent: GetUserAgentFromContext(ctx),
		StartedAt: &started,
	}
	s.setImportStatus(status)
	logger.Info("import started", "rows", status.TotalRows, "dropped", status.Dropped)

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.importTimeout)
	defer cancel()

	submitted, importErr := s.submit(runCtx, eventID, mapping.Candidates)
	status.Submitted = submitted

	// The batch may have stopped because runCtx expired; the refresh and the
	// history entry get their own budget.
	finishCtx, finish := s.detached(ctx)
	defer finish()

	snap, refreshErr := s.refreshAfterMutation(finishCtx, eventID)
	if refreshErr != nil {
		logger.Warn("refresh after import failed", "error", refreshErr)
	}

	finished := time.Now().UTC()
	status.FinishedAt = &finished
	if importErr != nil {
		status.State = ImportFailed
		status.Error = importErr.Error()
		var ie *ImportError
		if errors.As(importErr, &ie) {
			status.FailedRow = ie.Index
			status.FailedName = ie.Name
		}
		logger.Error("import failed",
			"submitted", submitted,
			"failed_row", status.FailedRow,
			"failed_name", status.FailedName,
			"error", importErr,
		)
		s.metrics.IncrementOutcome("failed")
	} else {
		status.State = ImportCompleted
		logger.Info("import completed",
			"submitted", submitted,
			"duration_ms", finished.Sub(started).Milliseconds(),
		)
		s.metrics.IncrementOutcome("completed")
	}
	s.metrics.ObserveImportLatency(finished.Sub(started))

	s.setImportStatus(status)
	s.recordHistory(finishCtx, logger, status)

	result := ImportResult{
		ImportID:  importID,
		EventID:   eventID,
		TotalRows: status.TotalRows,
		Submitted: submitted,
		Dropped:   mapping.Dropped,
		Snapshot:  snap,
	}
	if importErr != nil {
		return result, importErr
	}
	if refreshErr != nil {
		return result, refreshErr
	}
	return result, nil
}

// submit creates candidates in order and stops at the first failure.
func (s *Service) submit(ctx context.Context, eventID string, candidates []schema.Candidate) (int, error) {
	for i, c := range candidates {
		if _, err := s.registry.Create(ctx, eventID, c.Guest); err != nil {
			s.metrics.IncrementRow(false)
			return i, &ImportError{Index: i + 1, Row: c.Row, Name: c.Guest.Name, Err: err}
		}
		s.metrics.IncrementRow(true)
	}
	return len(candidates), nil
}

func (s *Service) setImportStatus(status ImportStatus) {
	s.mu.Lock()
	s.imports[status.EventID] = status
	s.mu.Unlock()
}

func (s *Service) recordHistory(ctx context.Context, logger *slog.Logger, status ImportStatus) {
	if err := s.history.Record(ctx, status); err != nil {
		logger.Warn("record import history failed", "error", err)
	}
}

// ImportStatus returns the running or most recent import for an event.
// An event that never imported reports ImportIdle.
func (s *Service) ImportStatus(eventID string) ImportStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.imports[eventID]; ok {
		return st
	}
	return ImportStatus{EventID: eventID, State: ImportIdle}
}

// History returns finished imports for an event, newest first.
func (s *Service) History(ctx context.Context, eventID string, limit int) ([]ImportStatus, error) {
	entries, err := s.history.List(ctx, eventID, limit)
	if err != nil {
		return nil, fmt.Errorf("list import history: %w", err)
	}
	return entries, nil
}
