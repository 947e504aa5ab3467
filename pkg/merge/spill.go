package merge

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/logweave/logweave/pkg/iterator"
	"github.com/logweave/logweave/pkg/records"
)

// writeRun drains an already-ordered stream into a JSON-lines run file
// under dir and returns its path. Runs are the intermediate product of a
// polyphase pass: ordered, forward-only, read back exactly once.
func writeRun(dir string, iter iterator.Iterator) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("run-%s.jsonl", uuid.NewString()))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		iterator.Drain(iter)
		return "", err
	}
	w := bufio.NewWriter(f)
	err = iter.Iterate(func(rec records.Record, _ int) error {
		data, err := json.Marshal(rec)
		if err != nil {
			// Shouldn't ever happen, given the data type.
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
		return w.WriteByte('\n')
	})
	if err != nil {
		iterator.Drain(iter)
		_ = f.Close()
		return "", err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return "", err
	}
	return path, f.Close()
}

// readRun streams a run file back as records. The file is opened lazily
// on first read and removed once exhausted, so a multi-pass merge only
// holds open the runs it is actively draining.
func readRun(path string) iterator.Iterator {
	var (
		f    *os.File
		sc   *bufio.Scanner
		next int
	)
	finish := func() {
		if f != nil {
			_ = f.Close()
			_ = os.Remove(path)
			f = nil
		}
	}
	return iterator.Func(func() (records.Record, int, error) {
		if sc == nil {
			var err error
			f, err = os.Open(path)
			if err != nil {
				return records.Record{}, -1, err
			}
			sc = bufio.NewScanner(f)
			sc.Buffer(make([]byte, 0, 64*1024), maxSpillLine)
		}
		if !sc.Scan() {
			err := sc.Err()
			finish()
			if err != nil {
				return records.Record{}, -1, err
			}
			return iterator.End()
		}
		rec := records.New()
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			finish()
			return records.Record{}, -1, err
		}
		cur := next
		next += 1
		return rec, cur, nil
	})
}

// maxSpillLine bounds one serialized record in a run file.
const maxSpillLine = 16 * 1024 * 1024
