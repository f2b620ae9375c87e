package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"sjsage522/bidnoticeworker/helpers"
	"sjsage522/bidnoticeworker/internal/models"
	"sjsage522/bidnoticeworker/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockCollector returns a fixed collection result
type MockCollector struct {
	result service.ServiceResult
	calls  int
}

var _ Collector = (*MockCollector)(nil)

func (m *MockCollector) CollectToday(_ context.Context, opts service.CollectOptions) service.ServiceResult {
	m.calls++
	return m.result
}

// MockScraper returns a fixed batch result
type MockScraper struct {
	orgs    []string
	listErr error
	batch   service.BatchResult
	ran     [][]string
}

var _ Scraper = (*MockScraper)(nil)

func (m *MockScraper) ActiveAgencies(context.Context) ([]string, error) {
	return m.orgs, m.listErr
}

func (m *MockScraper) RunAgencies(_ context.Context, orgs []string, _ bool) service.BatchResult {
	m.ran = append(m.ran, orgs)
	return m.batch
}

// MockNotifier records published notices
type MockNotifier struct {
	mu        sync.Mutex
	published []string
	trims     int
	trimErr   error
}

var _ Notifier = (*MockNotifier)(nil)

func (m *MockNotifier) PublishNotices(_ context.Context, notices []*models.BidNotice) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range notices {
		m.published = append(m.published, n.BidNoticeNo)
	}
	return len(notices)
}

func (m *MockNotifier) TrimStreams(context.Context) error {
	m.trims++
	return m.trimErr
}

// MockLogger implements the helpers.LoggerInterface for testing
type MockLogger struct {
	mu     sync.Mutex
	errors []string
	infos  []string
}

// Ensure MockLogger implements helpers.LoggerInterface
var _ helpers.LoggerInterface = (*MockLogger)(nil)

func (m *MockLogger) LogError(source string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, source+": "+err.Error())
}

func (m *MockLogger) LogInfo(format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, fmt.Sprintf(format, args...))
}

func bid(no string) *models.BidNotice {
	return &models.BidNotice{BidNoticeNo: no, BidNoticeName: "공고 " + no}
}

func TestRunOncePublishesEverythingInserted(t *testing.T) {
	collector := &MockCollector{result: service.ServiceResult{Success: true, NewNotices: []*models.BidNotice{bid("R1")}}}
	scraper := &MockScraper{
		orgs:  []string{"a", "b"},
		batch: service.BatchResult{TotalAgencies: 2, Inserted: []*models.BidNotice{bid("WEB-1")}},
	}
	notifier := &MockNotifier{}
	log := &MockLogger{}

	cycle := NewWorker(collector, scraper, notifier, log, time.Minute, true).RunOnce(context.Background())

	assert.Equal(t, 1, collector.calls)
	assert.Equal(t, [][]string{{"a", "b"}}, scraper.ran)
	assert.Equal(t, []string{"R1", "WEB-1"}, notifier.published)
	assert.Equal(t, 2, cycle.Published)
	assert.Equal(t, 1, notifier.trims)
	require.NotNil(t, cycle.Scrape)
	assert.Empty(t, log.errors)
	require.Len(t, log.infos, 1)
	assert.Contains(t, log.infos[0], "R1")
}

func TestRunOnceLogsFailures(t *testing.T) {
	collector := &MockCollector{result: service.ServiceResult{
		Errors:           []string{"collection log save failed: db down"},
		CollectionResult: models.CollectionResult{ErrorCount: 1, Errors: []string{"collection error: timeout"}},
	}}
	scraper := &MockScraper{listErr: errors.New("settings unavailable")}
	notifier := &MockNotifier{trimErr: errors.New("redis down")}
	log := &MockLogger{}

	cycle := NewWorker(collector, scraper, notifier, log, time.Minute, false).RunOnce(context.Background())

	assert.Nil(t, cycle.Scrape)
	assert.Empty(t, scraper.ran)
	assert.Zero(t, cycle.Published)
	require.Len(t, log.errors, 3)
	assert.Contains(t, log.errors[0], "CollectToday")
	assert.Contains(t, log.errors[0], "timeout")
	assert.Contains(t, log.errors[1], "settings unavailable")
	assert.Contains(t, log.errors[2], "StreamTrimming")
	assert.Empty(t, log.infos)
}

func TestRunOnceWithoutScraperOrNotifier(t *testing.T) {
	collector := &MockCollector{result: service.ServiceResult{Success: true, NewNotices: []*models.BidNotice{bid("R1")}}}

	cycle := NewWorker(collector, nil, nil, &MockLogger{}, time.Minute, false).RunOnce(context.Background())

	assert.True(t, cycle.Collection.Success)
	assert.Zero(t, cycle.Published)
}

func TestStartStopsOnCancel(t *testing.T) {
	collector := &MockCollector{result: service.ServiceResult{Success: true}}
	w := NewWorker(collector, nil, nil, &MockLogger{}, time.Hour, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Equal(t, 1, collector.calls)
}
