package operations

import (
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"
)

// ErrCorruptArchive means the downloaded file is not a readable zip archive.
var ErrCorruptArchive = errors.New("backup archive is corrupt")

// VerifyArchive reads every entry of the zip at path so each CRC is checked,
// and returns the number of entries.
func VerifyArchive(path string) (int, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrCorruptArchive, err)
	}
	defer r.Close()

	for _, f := range r.File {
		if err := readEntry(f); err != nil {
			return 0, fmt.Errorf("%w: entry %q: %w", ErrCorruptArchive, f.Name, err)
		}
	}
	return len(r.File), nil
}

func readEntry(f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(io.Discard, rc)
	return err
}
