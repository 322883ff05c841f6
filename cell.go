package rdthemis

import (
	"context"
	"errors"
	"fmt"

	"github.com/serious-company/rd-themis/persist"
)

// CellEncrypt seals message under passphrase and stores the cell at key,
// replacing any previous value. Bad input is rejected before the key is
// touched; if sealing fails after the key was opened for writing, the key is
// deleted.
func (s *Service) CellEncrypt(ctx context.Context, key string, passphrase, message []byte) error {
	size, err := s.cell.SealedLen(passphrase, len(message))
	if err != nil {
		return fmt.Errorf("%w: %w: %v", ErrEncryptFailed, ErrSealFailed, err)
	}

	entry, err := s.store.Open(ctx, key, persist.ModeRead|persist.ModeWrite)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncryptFailed, err)
	}

	if err = entry.Truncate(size); err != nil {
		return s.abandon(entry, fmt.Errorf("%w: %w", ErrEncryptFailed, err))
	}

	if _, err = s.cell.SealTo(entry.MutableBytes(), passphrase, nil, message); err != nil {
		return s.abandon(entry, fmt.Errorf("%w: %w: %v", ErrEncryptFailed, ErrSealFailed, err))
	}

	if err = entry.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrEncryptFailed, err)
	}
	return nil
}

// CellDecrypt reads the cell at key and unseals it with passphrase.
// It returns ErrNotFound for an absent key and ErrWrongType for a key that
// does not hold a string.
func (s *Service) CellDecrypt(ctx context.Context, key string, passphrase []byte) ([]byte, error) {
	entry, err := s.openForRead(ctx, key)
	if err != nil {
		return nil, err
	}
	defer entry.Close()

	plaintext, err := s.cell.Unseal(passphrase, nil, entry.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %v", ErrDecryptFailed, ErrUnsealFailed, err)
	}
	return plaintext, nil
}

// openForRead opens key and checks it holds a string.
func (s *Service) openForRead(ctx context.Context, key string) (persist.Entry, error) {
	entry, err := s.store.Open(ctx, key, persist.ModeRead)
	if err != nil {
		if errors.Is(err, persist.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrDecryptFailed, err)
	}

	if entry.Type() != persist.TypeString {
		_ = entry.Close()
		return nil, ErrWrongType
	}
	return entry, nil
}

// abandon deletes a partially written key and returns cause.
func (s *Service) abandon(entry persist.Entry, cause error) error {
	if err := entry.Delete(); err != nil {
		s.log.Error().Err(err).Str("key", entry.Key()).Msg("failed to delete key after failed encryption")
	}
	if err := entry.Close(); err != nil {
		s.log.Error().Err(err).Str("key", entry.Key()).Msg("failed to close key after failed encryption")
	}
	return cause
}
