package data

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/algomatic/go-backtest/pkg/types"
)

func mkBars(n int) []types.Bar {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]types.Bar, n)
	for i := range bars {
		c := 100 + float64(i)
		bars[i] = types.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      c, High: c + 1, Low: c - 1, Close: c, Volume: 1000,
		}
	}
	return bars
}

func barsJSON(bars []types.Bar) string {
	var sb strings.Builder
	sb.WriteString(`{"symbol":"SPY","interval":"1h","count":`)
	fmt.Fprintf(&sb, "%d", len(bars))
	sb.WriteString(`,"bars":[`)
	for i, b := range bars {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, `{"timestamp":%q,"open":%g,"high":%g,"low":%g,"close":%g,"volume":%g}`,
			b.Timestamp.Format(time.RFC3339), b.Open, b.High, b.Low, b.Close, b.Volume)
	}
	sb.WriteString("]}")
	return sb.String()
}

func TestFetchBarsSortsAndDedupes(t *testing.T) {
	bars := mkBars(5)
	// serve out of order with a duplicate of bar 2
	shuffled := []types.Bar{bars[3], bars[0], bars[2], bars[2], bars[1], bars[4]}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("symbol"); got != "SPY" {
			t.Errorf("symbol = %q, want SPY", got)
		}
		fmt.Fprint(w, barsJSON(shuffled))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	got, err := c.FetchBars(context.Background(), "SPY", types.Interval1h, bars[0].Timestamp, bars[4].Timestamp)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d bars, want 5 after dedup", len(got))
	}
	for i := 1; i < len(got); i++ {
		if !got[i].Timestamp.After(got[i-1].Timestamp) {
			t.Fatalf("bars not strictly ascending at %d", i)
		}
	}
}

func TestFetchBarsRetriesServerErrors(t *testing.T) {
	bars := mkBars(3)
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, barsJSON(bars))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &ClientConfig{MaxRetries: 2})
	got, err := c.FetchBars(context.Background(), "SPY", types.Interval1h, bars[0].Timestamp, bars[2].Timestamp)
	if err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", calls)
	}
	if len(got) != 3 {
		t.Errorf("got %d bars, want 3", len(got))
	}
}

func TestFetchBarsNotFoundIsFatal(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"detail":"unknown symbol"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &ClientConfig{MaxRetries: 3})
	_, err := c.FetchBars(context.Background(), "NOPE", types.Interval1h, time.Now().Add(-time.Hour), time.Now())
	if err == nil || !strings.Contains(err.Error(), "unknown symbol") {
		t.Fatalf("err = %v, want the api detail surfaced", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want no retries on 404", calls)
	}
}

func TestCSVRoundTrip(t *testing.T) {
	bars := mkBars(4)
	var buf bytes.Buffer
	if err := WriteCSV(&buf, bars); err != nil {
		t.Fatal(err)
	}
	got, err := ReadCSV(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(bars) {
		t.Fatalf("got %d bars, want %d", len(got), len(bars))
	}
	for i := range bars {
		if !got[i].Timestamp.Equal(bars[i].Timestamp) || got[i].Close != bars[i].Close {
			t.Fatalf("bar %d mismatch: %+v vs %+v", i, got[i], bars[i])
		}
	}
}

func TestReadCSVRejectsBadRows(t *testing.T) {
	cases := map[string]string{
		"bad_timestamp": "timestamp,open,high,low,close,volume\nnot-a-time,1,2,0.5,1.5,10\n",
		"bad_number":    "timestamp,open,high,low,close,volume\n2024-01-02T00:00:00Z,1,x,0.5,1.5,10\n",
		"high_below_low": "timestamp,open,high,low,close,volume\n" +
			"2024-01-02T00:00:00Z,100,90,99,100,10\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ReadCSV(strings.NewReader(body)); !errors.Is(err, types.ErrDataIntegrity) {
				t.Errorf("err = %v, want ErrDataIntegrity", err)
			}
		})
	}
}

func TestFileCacheStaleness(t *testing.T) {
	fc, err := NewFileCache(t.TempDir(), time.Hour, nil)
	if err != nil {
		t.Fatal(err)
	}
	bars := mkBars(6)
	start, end := bars[0].Timestamp, bars[5].Timestamp
	if err := fc.Put("SPY", types.Interval1h, start, end, bars); err != nil {
		t.Fatal(err)
	}

	if got, ok := fc.Get("SPY", types.Interval1h, start, end); !ok || len(got) != 6 {
		t.Fatalf("fresh cache: ok=%v bars=%d, want a hit with 6 bars", ok, len(got))
	}
	if _, ok := fc.Get("SPY", types.Interval4h, start, end); ok {
		t.Error("different interval produced a hit")
	}

	fc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, ok := fc.Get("SPY", types.Interval1h, start, end); ok {
		t.Error("stale file produced a hit")
	}
}

func TestLoaderPrefersFileCache(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	fc, err := NewFileCache(t.TempDir(), time.Hour, nil)
	if err != nil {
		t.Fatal(err)
	}
	bars := mkBars(6)
	start, end := bars[0].Timestamp, bars[5].Timestamp
	if err := fc.Put("SPY", types.Interval1h, start, end, bars); err != nil {
		t.Fatal(err)
	}

	l, err := NewLoader(NewClient(srv.URL, &ClientConfig{MaxRetries: 1}), fc, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := l.Bars(context.Background(), "SPY", types.Interval1h, start, end)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 6 {
		t.Errorf("got %d bars, want 6 from the cache", len(got))
	}
	if calls != 0 {
		t.Errorf("API hit %d times despite a fresh cache", calls)
	}
}
