// Package export appends one row per recovered message to a CSV file so
// store operators can reconcile lane traffic without database access.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var header = []string{
	"timestamp", "remote", "msg_type",
	"StoreLocationID", "POSTransactionID", "TenderAmount", "UPC", "Description",
}

// Row is the parsed-field projection of one inbound message.
type Row struct {
	Remote           string
	MsgType          string
	StoreLocationID  string
	POSTransactionID string
	TenderAmount     string
	UPC              string
	Description      string
}

// Recorder serializes appends from concurrent connection handlers. A nil
// Recorder is valid and drops every row, so the gateway can treat the
// exporter as optional.
type Recorder struct {
	mu  sync.Mutex
	f   *os.File
	w   *csv.Writer
	log zerolog.Logger
}

// Open appends to path, writing the header first when the file is new.
func Open(path string, logger zerolog.Logger) (*Recorder, error) {
	info, statErr := os.Stat(path)
	fresh := statErr != nil || info.Size() == 0

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("export open %s: %w", path, err)
	}
	r := &Recorder{f: f, w: csv.NewWriter(f), log: logger}
	if fresh {
		if err := r.w.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("export header: %w", err)
		}
		r.w.Flush()
	}
	return r, nil
}

// Append writes one row and flushes. Failures are logged, not propagated:
// the export file must never interfere with lane traffic.
func (r *Recorder) Append(row Row) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := []string{
		time.Now().Format(time.RFC3339),
		row.Remote,
		row.MsgType,
		row.StoreLocationID,
		row.POSTransactionID,
		row.TenderAmount,
		row.UPC,
		row.Description,
	}
	if err := r.w.Write(rec); err != nil {
		r.log.Error().Err(err).Msg("csv append failed")
		return
	}
	r.w.Flush()
	if err := r.w.Error(); err != nil {
		r.log.Error().Err(err).Msg("csv flush failed")
	}
}

func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.w.Flush()
	return r.f.Close()
}
