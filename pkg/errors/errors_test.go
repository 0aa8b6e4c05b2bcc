package errors

import (
	"errors"
	"io/fs"
	"testing"
)

func TestAppErrorUnwrapsSentinelAndCause(t *testing.T) {
	storage := StorageIO(fs.ErrPermission, "writing %s", "seg_1.spdx")
	err := Wrap(ErrCommitFailure, storage, "commit generation 3")

	if !errors.Is(err, ErrCommitFailure) {
		t.Fatalf("expected ErrCommitFailure in chain: %v", err)
	}
	if !errors.Is(err, ErrStorageIO) {
		t.Fatalf("expected ErrStorageIO in chain: %v", err)
	}
	if !errors.Is(err, fs.ErrPermission) {
		t.Fatalf("expected fs.ErrPermission in chain: %v", err)
	}
	if errors.Is(err, ErrWriterLockHeld) {
		t.Fatalf("unexpected ErrWriterLockHeld in chain")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"invalid input", Newf(ErrInvalidInput, "limit %d", 0), 2},
		{"unknown field", New(ErrUnknownField, "title"), 2},
		{"schema mismatch", New(ErrSchemaMismatch, "fields differ"), 3},
		{"lock held", New(ErrWriterLockHeld, "write.lock"), 4},
		{"commit failure", Wrap(ErrCommitFailure, errors.New("disk full"), "gen 2"), 5},
		{"not found", New(ErrDocumentNotFound, "doc 9"), 6},
		{"timeout", Wrap(ErrTimeout, errors.New("deadline"), "search"), 7},
		{"other", errors.New("boom"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
