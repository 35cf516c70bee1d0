// Package testutil provides testing utilities for pagefetch.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// Record is one item served by the mock upstream.
type Record map[string]any

// Failure describes an injected error response.
type Failure struct {
	StatusCode int
	RetryAfter string
	Body       string
}

// MockUpstream is a configurable paginated JSON API for testing. It serves
// offset/limit (take, skip) and page number (page, page_size) requests,
// partitioned by a query parameter.
type MockUpstream struct {
	server *httptest.Server

	mu             sync.Mutex
	partitionParam string
	records        map[string][]Record
	envelope       string
	delay          time.Duration
	queued         []Failure
	broken         map[string]Failure

	// Tracking
	requestCount  int
	partitionHits map[string]int
	lastQuery     map[string]string
}

// NewMockUpstream creates a mock upstream partitioned by the query parameter
// partitionParam. Requests without that parameter use the "" partition.
func NewMockUpstream(partitionParam string) *MockUpstream {
	mock := &MockUpstream{
		partitionParam: partitionParam,
		records:        make(map[string][]Record),
		broken:         make(map[string]Failure),
		partitionHits:  make(map[string]int),
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the mock server URL.
func (m *MockUpstream) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockUpstream) Close() {
	m.server.Close()
}

// SetRecords sets the collection served for a partition.
func (m *MockUpstream) SetRecords(partition string, records []Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[partition] = records
}

// SetEnvelope wraps every page in an object under the given field instead of
// returning a bare array. An empty field restores bare arrays.
func (m *MockUpstream) SetEnvelope(field string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.envelope = field
}

// SetDelay delays every response.
func (m *MockUpstream) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// FailNext makes the next n requests fail with f.
func (m *MockUpstream) FailNext(n int, f Failure) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.queued = append(m.queued, f)
	}
}

// FailPartition makes every request for partition fail with f.
func (m *MockUpstream) FailPartition(partition string, f Failure) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broken[partition] = f
}

// RequestCount returns the number of requests made to the server.
func (m *MockUpstream) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// PartitionRequests returns the number of requests made for a partition.
func (m *MockUpstream) PartitionRequests(partition string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.partitionHits[partition]
}

// LastQuery returns the query parameters of the most recent request.
func (m *MockUpstream) LastQuery() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.lastQuery))
	for k, v := range m.lastQuery {
		out[k] = v
	}
	return out
}

// Records builds n records with ids from 1 to n.
func Records(n int) []Record {
	out := make([]Record, n)
	for i := range out {
		out[i] = Record{"id": i + 1}
	}
	return out
}

func (m *MockUpstream) handle(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	partition := query.Get(m.partitionParam)

	m.mu.Lock()
	m.requestCount++
	m.partitionHits[partition]++
	m.lastQuery = make(map[string]string, len(query))
	for k := range query {
		m.lastQuery[k] = query.Get(k)
	}

	var failure *Failure
	if len(m.queued) > 0 {
		f := m.queued[0]
		m.queued = m.queued[1:]
		failure = &f
	} else if f, ok := m.broken[partition]; ok {
		failure = &f
	}
	records := m.records[partition]
	envelope := m.envelope
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	if failure != nil {
		if failure.RetryAfter != "" {
			w.Header().Set("Retry-After", failure.RetryAfter)
		}
		w.WriteHeader(failure.StatusCode)
		body := failure.Body
		if body == "" {
			body = `{"error": "` + http.StatusText(failure.StatusCode) + `"}`
		}
		w.Write([]byte(body))
		return
	}

	page := slice(records, query.Get("take"), query.Get("skip"), query.Get("page"), query.Get("page_size"))

	var payload any = page
	if envelope != "" {
		payload = map[string]any{envelope: page, "total": len(records)}
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(payload)
}

// slice returns the requested window of records. Without pagination
// parameters every record is returned.
func slice(records []Record, take, skip, page, pageSize string) []Record {
	var offset, limit int
	switch {
	case take != "":
		limit, _ = strconv.Atoi(take)
		offset, _ = strconv.Atoi(skip)
	case pageSize != "":
		limit, _ = strconv.Atoi(pageSize)
		index, _ := strconv.Atoi(page)
		offset = index * limit
	default:
		return append([]Record{}, records...)
	}

	if offset >= len(records) || limit <= 0 {
		return []Record{}
	}
	end := offset + limit
	if end > len(records) {
		end = len(records)
	}
	return append([]Record{}, records[offset:end]...)
}
