package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"

	"github.com/YuminosukeSato/liverrisk/pkg/errors"
)

// WriteCSV writes a header row followed by the data rows. Missing cells are empty.
func WriteCSV(w io.Writer, f *Frame) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.names); err != nil {
		return errors.Wrap(err, "failed to write CSV header")
	}
	for r := 0; r < f.Len(); r++ {
		if err := cw.Write(f.Row(r)); err != nil {
			return errors.Wrapf(err, "failed to write CSV row %d", r)
		}
	}
	cw.Flush()
	return errors.WithStack(cw.Error())
}

// ReadCSV reads a CSV with a header row into a frame.
func ReadCSV(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.Wrap(errors.ErrEmptyData, "CSV has no header")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read CSV header")
	}
	f := NewFrame(header)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to read CSV")
		}
		if err := f.AppendRow(rec); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// WriteCSVFile writes f to path, creating parent directories.
func WriteCSVFile(path string, f *Frame) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", path)
	}
	out, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	if err := WriteCSV(out, f); err != nil {
		_ = out.Close()
		return err
	}
	return errors.WithStack(out.Close())
}

// ReadCSVFile reads the CSV at path.
func ReadCSVFile(path string) (*Frame, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer in.Close()
	return ReadCSV(in)
}
