// package testing contains shared testing utilities
package testing

import (
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/AraneaDev/eventually/internal/models"
	"github.com/AraneaDev/eventually/internal/pivot"
)

// StoreCall records one invocation of a [MockStore] method.
type StoreCall struct {
	Op         string
	Input      pivot.Input
	Attributes models.Attributes
	Touch      bool
	Detaching  bool
}

// MockStore is a test double for [pivot.Store].
//
// Every mutating call is recorded; Err, when set, is returned by all of them.
type MockStore struct {
	mu sync.Mutex

	Err        error
	Count      int
	Changes    models.Changes
	Current    []models.RelatedID
	CurrentErr error

	calls        []StoreCall
	currentCalls int
}

func (m *MockStore) record(call StoreCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *MockStore) Attach(in pivot.Input, attrs models.Attributes, touch bool) error {
	m.record(StoreCall{Op: "attach", Input: in, Attributes: attrs, Touch: touch})
	return m.Err
}

func (m *MockStore) Detach(in pivot.Input, touch bool) (int, error) {
	m.record(StoreCall{Op: "detach", Input: in, Touch: touch})
	if m.Err != nil {
		return 0, m.Err
	}
	return m.Count, nil
}

func (m *MockStore) Sync(in pivot.Input, detaching bool) (models.Changes, error) {
	m.record(StoreCall{Op: "sync", Input: in, Detaching: detaching})
	if m.Err != nil {
		return models.Changes{}, m.Err
	}
	return m.Changes, nil
}

func (m *MockStore) Toggle(in pivot.Input, touch bool) (models.Changes, error) {
	m.record(StoreCall{Op: "toggle", Input: in, Touch: touch})
	if m.Err != nil {
		return models.Changes{}, m.Err
	}
	return m.Changes, nil
}

func (m *MockStore) UpdateExistingPivot(in pivot.Input, attrs models.Attributes, touch bool) (int, error) {
	m.record(StoreCall{Op: "updateExistingPivot", Input: in, Attributes: attrs, Touch: touch})
	if m.Err != nil {
		return 0, m.Err
	}
	return m.Count, nil
}

func (m *MockStore) CurrentRelatedIDs() ([]models.RelatedID, error) {
	m.mu.Lock()
	m.currentCalls++
	m.mu.Unlock()
	if m.CurrentErr != nil {
		return nil, m.CurrentErr
	}
	return m.Current, nil
}

// Calls returns a copy of the recorded mutating calls.
func (m *MockStore) Calls() []StoreCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StoreCall(nil), m.calls...)
}

// CurrentCalls returns how many times the current related ids were queried.
func (m *MockStore) CurrentCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentCalls
}

// Recorder is an event listener capturing every payload it receives.
type Recorder struct {
	mu       sync.Mutex
	payloads []pivot.Payload
	verdict  pivot.Verdict
}

// NewRecorder creates a [Recorder] answering every event with verdict.
func NewRecorder(verdict pivot.Verdict) *Recorder {
	return &Recorder{verdict: verdict}
}

// Listen is the [pivot.Listener] to register.
func (r *Recorder) Listen(p pivot.Payload) pivot.Verdict {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, p)
	return r.verdict
}

// Events returns the names of the received events in order.
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.payloads))
	for i, p := range r.payloads {
		names[i] = p.Event
	}
	return names
}

// Payloads returns the received payloads in order.
func (r *Recorder) Payloads() []pivot.Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pivot.Payload(nil), r.payloads...)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

// MustWriteFile writes content to path, failing the test on error.
func MustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
