// Package tradelog persists order outcomes as JSON lines.
//
// Reconciled order snapshots go to one append-only file per
// (username, broker, trading day); every submission attempt is also appended
// to a daily submission log shared by all accounts.
package tradelog

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"seller-market/internal/types"
)

// DefaultZone is used when the configured timezone cannot be loaded.
var DefaultZone = time.FixedZone("IRST", 3*3600+30*60)

// LoadLocation resolves name, falling back to DefaultZone.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return DefaultZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return DefaultZone
	}
	return loc
}

// Snapshot is one reconciled order as written to the daily record.
type Snapshot struct {
	RecordedAt time.Time         `json:"recorded_at"`
	RunID      string            `json:"run_id,omitempty"`
	Account    string            `json:"account"`
	Broker     string            `json:"broker"`
	Order      types.OrderResult `json:"order"`
}

// Submission is one order attempt as written to the submission log.
type Submission struct {
	Time           string `json:"time"`
	RunID          string `json:"run_id,omitempty"`
	AttemptID      string `json:"attempt_id"`
	Account        string `json:"account"`
	Broker         string `json:"broker"`
	ISIN           string `json:"isin"`
	Side           string `json:"side"`
	Price          int64  `json:"price"`
	Volume         int64  `json:"volume"`
	SerialNumber   int64  `json:"serial_number,omitempty"`
	Simulated      bool   `json:"simulated,omitempty"`
	StatusCode     int    `json:"status_code,omitempty"`
	TrackingNumber int64  `json:"tracking_number,omitempty"`
	Error          string `json:"error,omitempty"`
	BrokerCode     string `json:"broker_code,omitempty"`
	BrokerMessage  string `json:"broker_message,omitempty"`
}

type Option func(*Recorder)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// Recorder writes under a results directory. Each file has its own lock so
// accounts never contend with each other.
type Recorder struct {
	dir   string
	loc   *time.Location
	now   func() time.Time
	locks sync.Map // path -> *sync.Mutex
}

func NewRecorder(dir string, loc *time.Location, opts ...Option) *Recorder {
	if loc == nil {
		loc = DefaultZone
	}
	r := &Recorder{dir: dir, loc: loc, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) Dir() string              { return r.dir }
func (r *Recorder) Location() *time.Location { return r.loc }

// Day formats t as the trading day stamp used in file names.
func (r *Recorder) Day(t time.Time) string {
	return t.In(r.loc).Format("20060102")
}

// RecordPath is the daily record of an account.
func (r *Recorder) RecordPath(username, broker string, day time.Time) string {
	return filepath.Join(r.dir, fmt.Sprintf("%s_%s_%s.jsonl", safe(username), safe(broker), r.Day(day)))
}

// SummaryPath is where the account's daily summary artifact is written.
func (r *Recorder) SummaryPath(username, broker string, day time.Time) string {
	return filepath.Join(r.dir, "summary", fmt.Sprintf("%s_%s_%s.csv", safe(username), safe(broker), r.Day(day)))
}

func (r *Recorder) submissionPath(t time.Time) string {
	return filepath.Join(r.dir, "submissions", t.In(r.loc).Format("2006-01-02")+".jsonl")
}

func (r *Recorder) lock(path string) func() {
	v, _ := r.locks.LoadOrStore(path, &sync.Mutex{})
	m := v.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

// AppendResults appends one snapshot per order to the account's record for
// day and returns the record path. Existing lines are never rewritten.
func (r *Recorder) AppendResults(acct types.AccountContext, day time.Time, runID string, orders []types.OrderResult) (string, error) {
	path := r.RecordPath(acct.Credentials.Username, acct.Credentials.BrokerCode, day)
	recordedAt := r.now().In(r.loc)
	lines := make([]any, 0, len(orders))
	for _, o := range orders {
		lines = append(lines, Snapshot{
			RecordedAt: recordedAt,
			RunID:      runID,
			Account:    acct.Credentials.Username,
			Broker:     acct.Credentials.BrokerCode,
			Order:      o,
		})
	}
	return path, r.appendLines(path, lines)
}

// AppendSubmission adds e to today's submission log.
func (r *Recorder) AppendSubmission(e Submission) error {
	now := r.now().In(r.loc)
	e.Time = now.Format("2006-01-02 15:04:05")
	return r.appendLines(r.submissionPath(now), []any{e})
}

func (r *Recorder) appendLines(path string, lines []any) error {
	unlock := r.lock(path)
	defer unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, l := range lines {
		b, err := json.Marshal(l)
		if err != nil {
			return err
		}
		w.Write(b)
		w.WriteByte('\n')
	}
	return w.Flush()
}

// Load reads back an account's record for day. A missing file yields no
// snapshots and no error.
func (r *Recorder) Load(username, broker string, day time.Time) ([]Snapshot, error) {
	path := r.RecordPath(username, broker, day)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []Snapshot
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var s Snapshot
		if err := json.Unmarshal([]byte(line), &s); err != nil {
			return out, fmt.Errorf("%s:%d: %w", path, n, err)
		}
		out = append(out, s)
	}
	return out, sc.Err()
}

// CompressOlder gzips submission logs last modified more than
// retentionDays ago. Daily account records are left untouched. A file that
// fails does not stop the others; all failures are returned joined.
func (r *Recorder) CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	root := filepath.Join(r.dir, "submissions")
	cutoff := r.now().AddDate(0, 0, -retentionDays)
	var errs []error
	walkErr := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if p == root && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			errs = append(errs, err)
			return nil
		}
		if d.IsDir() || filepath.Ext(p) != ".jsonl" {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			errs = append(errs, err)
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := compressFile(p); err != nil {
				errs = append(errs, fmt.Errorf("compressing %s: %w", p, err))
			}
		}
		return nil
	})
	return errors.Join(append(errs, walkErr)...)
}

func compressFile(p string) error {
	gz := p + ".gz"
	if fi, err := os.Stat(gz); err == nil && fi.Mode().IsRegular() {
		return os.Remove(p)
	}
	in, err := os.Open(p)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(gz, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	_, copyErr := io.Copy(gw, in)
	closeErr := errors.Join(gw.Close(), out.Close())
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(gz)
		return err
	}
	in.Close()
	return os.Remove(p)
}

// safe keeps user-controlled parts of file names inside the results dir.
func safe(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '-'
		}
		return r
	}, s)
}
