package chain

import (
	"bufio"
	"encoding/json"
	"io"
	"sort"
)

// ReadJSONL reads a receipt log with one JSON receipt per line and returns the
// receipts for traceID sorted by hop. Blank and malformed lines are skipped and
// counted in skipped; an empty traceID keeps every receipt.
func ReadJSONL(r io.Reader, traceID string) (c Chain, skipped int, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Receipt
		if err := json.Unmarshal(line, &rec); err != nil {
			skipped++
			continue
		}
		if traceID != "" && rec.TraceID != traceID {
			continue
		}
		c = append(c, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, skipped, err
	}
	sort.SliceStable(c, func(i, j int) bool { return c[i].Hop < c[j].Hop })
	return c, skipped, nil
}
