package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/jhunt/legisync/internal/config"
	"github.com/jhunt/legisync/internal/model"
	"github.com/jhunt/legisync/internal/scan"
	"github.com/jhunt/legisync/internal/store"
	"github.com/jhunt/legisync/internal/transport"
)

type fakeJobStore struct {
	mu     sync.Mutex
	jobs   map[string]*model.SyncJob
	getErr error
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[string]*model.SyncJob)}
}

func copyJob(j *model.SyncJob) *model.SyncJob {
	out := *j
	out.BillTypes = append([]string(nil), j.BillTypes...)
	out.Progress = make(map[string]int, len(j.Progress))
	for k, v := range j.Progress {
		out.Progress[k] = v
	}
	out.Completed = make(map[string]bool, len(j.Completed))
	for k, v := range j.Completed {
		out.Completed[k] = v
	}
	return &out
}

func (f *fakeJobStore) Create(ctx context.Context, job *model.SyncJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.jobs {
		if !existing.Terminal() {
			return store.ErrJobActive
		}
	}
	f.jobs[job.ID] = copyJob(job)
	return nil
}

func (f *fakeJobStore) Get(ctx context.Context, id string) (*model.SyncJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	j, ok := f.jobs[id]
	if !ok {
		return nil, nil
	}
	return copyJob(j), nil
}

func (f *fakeJobStore) GetActive(ctx context.Context) (*model.SyncJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if !j.Terminal() {
			return copyJob(j), nil
		}
	}
	return nil, nil
}

func (f *fakeJobStore) Transition(ctx context.Context, id, to string, from ...string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if j.Status == s {
			j.Status = to
			return true, nil
		}
	}
	return false, nil
}

// SaveProgress mirrors the guarded write: counters always land, the status
// column only moves when the row is still RUNNING.
func (f *fakeJobStore) SaveProgress(ctx context.Context, job *model.SyncJob, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.jobs[job.ID]
	if !ok {
		return fmt.Errorf("job %s not found", job.ID)
	}
	stored.Progress = make(map[string]int, len(job.Progress))
	for k, v := range job.Progress {
		stored.Progress[k] = v
	}
	stored.Completed = make(map[string]bool, len(job.Completed))
	for k, v := range job.Completed {
		stored.Completed[k] = v
	}
	stored.TotalProcessed = job.TotalProcessed
	stored.TotalCreated = job.TotalCreated
	stored.TotalUpdated = job.TotalUpdated
	stored.TotalErrors = job.TotalErrors
	if stored.Status == model.JobRunning {
		stored.Status = status
	}
	return nil
}

func (f *fakeJobStore) SetLastError(ctx context.Context, id, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.jobs[id]; ok {
		j.LastError = &message
	}
	return nil
}

func (f *fakeJobStore) setGetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr = err
}

func (f *fakeJobStore) setStatus(id, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.jobs[id]; ok {
		j.Status = status
	}
}

type fakeBillStore struct {
	mu   sync.Mutex
	byID map[string]*model.Bill
}

func newFakeBillStore() *fakeBillStore {
	return &fakeBillStore{byID: make(map[string]*model.Bill)}
}

func (f *fakeBillStore) Upsert(ctx context.Context, b *model.Bill) (store.UpsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, exists := f.byID[b.BillID]
	stored := *b
	f.byID[b.BillID] = &stored
	if exists {
		return store.UpsertUpdated, nil
	}
	return store.UpsertCreated, nil
}

func (f *fakeBillStore) MaxBillNumber(ctx context.Context, billType string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	max := 0
	for _, b := range f.byID {
		if b.BillType == billType && b.BillNumber > max {
			max = b.BillNumber
		}
	}
	return max, nil
}

func (f *fakeBillStore) get(billID string) *model.Bill {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[billID]
}

type fakeClient struct {
	mu       sync.Mutex
	listings map[string][]int
	docs     map[string]string
	texts    map[string]string
	fetched  []string
	onFetch  func(billID string)
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		listings: make(map[string][]int),
		docs:     make(map[string]string),
		texts:    make(map[string]string),
	}
}

func (f *fakeClient) FetchBillHistory(ctx context.Context, session, billType string, number int) ([]byte, error) {
	billID := model.BillID(billType, number)
	f.mu.Lock()
	f.fetched = append(f.fetched, billID)
	doc, ok := f.docs[billID]
	hook := f.onFetch
	f.mu.Unlock()

	if hook != nil {
		hook(billID)
	}
	if !ok {
		return nil, transport.ErrNotFound
	}
	return []byte(doc), nil
}

func (f *fakeClient) ListBillNumbers(ctx context.Context, session, billType string) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listings[billType], nil
}

func (f *fakeClient) FetchTextDocument(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	text, ok := f.texts[url]
	if !ok {
		return "", transport.ErrNotFound
	}
	return text, nil
}

func (f *fakeClient) Close() error { return nil }

func (f *fakeClient) fetchedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

func historyXML(billType string, number int, extra string) string {
	return fmt.Sprintf(`<billhistory bill="89R %s %d">
  <caption>Relating to test bill %d.</caption>
  <actions><action><date>01/01/2025</date><description>Filed</description></action></actions>
  %s
</billhistory>`, billType, number, number, extra)
}

func testConfig() *config.Config {
	return &config.Config{
		SessionCode:  "89R",
		SessionName:  "89th Legislature",
		BillTypes:    []string{"HB"},
		SyncEnabled:  true,
		BatchSize:    20,
		BatchDelay:   time.Millisecond,
		DelayEvery:   5,
		FetchTimeout: time.Second,
		Transport:    config.TransportHTTP,
	}
}

func testService(cfg *config.Config, jobs *fakeJobStore, bills *fakeBillStore, client *fakeClient) *Service {
	log := logrus.New()
	log.SetOutput(io.Discard)
	scanner := scan.NewScanner(client, bills)
	return NewService(cfg, jobs, bills, client, scanner, log)
}

func TestProcessBatchCompletesType(t *testing.T) {
	jobs := newFakeJobStore()
	bills := newFakeBillStore()
	client := newFakeClient()
	client.listings["HB"] = []int{1, 2, 3}
	client.docs["HB 1"] = historyXML("HB", 1, `<billtext><weburl>https://example.test/hb1.htm</weburl></billtext>`)
	client.docs["HB 2"] = historyXML("HB", 2, "")
	client.docs["HB 3"] = historyXML("HB", 3, "")
	client.texts["https://example.test/hb1.htm"] = "<html><body><p>A BILL TO BE ENTITLED AN ACT relating to public education funding, the foundation school program, and the duties of the agency in connection therewith.</p></body></html>"

	svc := testService(testConfig(), jobs, bills, client)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx)
	require.NoError(t, err)
	require.Equal(t, model.JobPending, job.Status)

	job, err = svc.ResumeJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, model.JobRunning, job.Status)

	res, err := svc.ProcessBatch(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 3)
	for _, o := range res.Outcomes {
		require.Equal(t, OutcomeCreated, o.Outcome)
	}

	require.Equal(t, model.JobCompleted, res.Job.Status)
	require.True(t, res.Job.Completed["HB"])
	require.Equal(t, 3, res.Job.Progress["HB"])
	require.Equal(t, 3, res.Job.TotalProcessed)
	require.Equal(t, 3, res.Job.TotalCreated)
	require.Equal(t, 0, res.Job.TotalErrors)

	stored := bills.get("HB 1")
	require.NotNil(t, stored)
	require.Equal(t, "Relating to test bill 1.", stored.Description)
	require.NotNil(t, stored.Content)
	require.Contains(t, *stored.Content, "A BILL TO BE ENTITLED AN ACT")
	require.NotContains(t, *stored.Content, "<p>")
}

func TestProcessBatchResumesAboveWatermark(t *testing.T) {
	jobs := newFakeJobStore()
	bills := newFakeBillStore()
	client := newFakeClient()
	client.listings["HB"] = []int{149, 150, 151, 152}
	client.docs["HB 151"] = historyXML("HB", 151, "")
	client.docs["HB 152"] = historyXML("HB", 152, "")

	svc := testService(testConfig(), jobs, bills, client)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx)
	require.NoError(t, err)
	job.Progress["HB"] = 150
	require.NoError(t, jobs.SaveProgress(ctx, job, model.JobPending))
	_, err = svc.ResumeJob(ctx, job.ID)
	require.NoError(t, err)

	res, err := svc.ProcessBatch(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 2)
	require.Equal(t, []string{"HB 151", "HB 152"}, client.fetchedIDs())
	require.Equal(t, 152, res.Job.Progress["HB"])
	require.Equal(t, model.JobCompleted, res.Job.Status)
}

func TestProcessBatchUpdatesExistingBill(t *testing.T) {
	jobs := newFakeJobStore()
	bills := newFakeBillStore()
	bills.byID["HB 1"] = &model.Bill{BillID: "HB 1", BillType: "HB", BillNumber: 1}
	client := newFakeClient()
	client.listings["HB"] = []int{1, 2}
	client.docs["HB 1"] = historyXML("HB", 1, "")
	client.docs["HB 2"] = historyXML("HB", 2, "")

	svc := testService(testConfig(), jobs, bills, client)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx)
	require.NoError(t, err)
	_, err = svc.ResumeJob(ctx, job.ID)
	require.NoError(t, err)

	// The persisted watermark already covers HB 1, so only HB 2 is pending.
	res, err := svc.ProcessBatch(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 1)
	require.Equal(t, "HB 2", res.Outcomes[0].BillID)
	require.Equal(t, OutcomeCreated, res.Outcomes[0].Outcome)
	require.Equal(t, 1, res.Job.TotalCreated)
}

func TestProcessBatchCountsSkippedAndErrors(t *testing.T) {
	jobs := newFakeJobStore()
	bills := newFakeBillStore()
	client := newFakeClient()
	client.listings["HB"] = []int{1, 2, 3}
	client.docs["HB 1"] = historyXML("HB", 1, "")
	// HB 2 is absent at the source; HB 3 is not a bill history at all.
	client.docs["HB 3"] = "<html><body>Website Error</body></html>"

	svc := testService(testConfig(), jobs, bills, client)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx)
	require.NoError(t, err)
	_, err = svc.ResumeJob(ctx, job.ID)
	require.NoError(t, err)

	res, err := svc.ProcessBatch(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 3)
	require.Equal(t, OutcomeCreated, res.Outcomes[0].Outcome)
	require.Equal(t, OutcomeSkipped, res.Outcomes[1].Outcome)
	require.Equal(t, OutcomeError, res.Outcomes[2].Outcome)

	require.Equal(t, 3, res.Job.TotalProcessed)
	require.Equal(t, 1, res.Job.TotalCreated)
	require.Equal(t, 1, res.Job.TotalErrors)
	require.Equal(t, 3, res.Job.Progress["HB"])
	require.Equal(t, model.JobCompleted, res.Job.Status)
}

func TestProcessBatchAbortsOnPause(t *testing.T) {
	jobs := newFakeJobStore()
	bills := newFakeBillStore()
	client := newFakeClient()
	client.listings["HB"] = []int{1, 2, 3, 4, 5}
	for n := 1; n <= 5; n++ {
		client.docs[model.BillID("HB", n)] = historyXML("HB", n, "")
	}

	svc := testService(testConfig(), jobs, bills, client)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx)
	require.NoError(t, err)
	_, err = svc.ResumeJob(ctx, job.ID)
	require.NoError(t, err)

	// A concurrent operator pauses the job while the first bill is in flight.
	client.onFetch = func(string) { jobs.setStatus(job.ID, model.JobPaused) }

	res, err := svc.ProcessBatch(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 1)
	require.Equal(t, model.JobPaused, res.Job.Status)
	require.Equal(t, 1, res.Job.Progress["HB"])
	require.False(t, res.Job.Completed["HB"])
	require.Equal(t, 1, res.Job.TotalProcessed)
}

func TestProcessBatchAbortsWhenJobReadFails(t *testing.T) {
	jobs := newFakeJobStore()
	bills := newFakeBillStore()
	client := newFakeClient()
	client.listings["HB"] = []int{1, 2, 3}
	for n := 1; n <= 3; n++ {
		client.docs[model.BillID("HB", n)] = historyXML("HB", n, "")
	}

	svc := testService(testConfig(), jobs, bills, client)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx)
	require.NoError(t, err)
	_, err = svc.ResumeJob(ctx, job.ID)
	require.NoError(t, err)

	// The job store becomes unreachable after the first bill; the batch must
	// stop rather than keep fetching with the pause signal unreadable.
	storeDown := errors.New("connection refused")
	client.onFetch = func(string) { jobs.setGetErr(storeDown) }

	_, err = svc.ProcessBatch(ctx, job.ID)
	require.ErrorIs(t, err, storeDown)
	require.Equal(t, []string{"HB 1"}, client.fetchedIDs())

	jobs.setGetErr(nil)
	final, err := svc.JobByID(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, 1, final.TotalProcessed)
	require.Equal(t, 1, final.Progress["HB"])
	require.Equal(t, model.JobRunning, final.Status)
}

func TestNewJobReenumeratesSource(t *testing.T) {
	jobs := newFakeJobStore()
	bills := newFakeBillStore()
	client := newFakeClient()
	client.listings["HB"] = []int{1}
	client.docs["HB 1"] = historyXML("HB", 1, "")

	svc := testService(testConfig(), jobs, bills, client)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx)
	require.NoError(t, err)
	_, err = svc.ResumeJob(ctx, job.ID)
	require.NoError(t, err)
	res, err := svc.ProcessBatch(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, model.JobCompleted, res.Job.Status)

	// The source gains a bill after the first job finishes. The next job must
	// re-enumerate instead of reusing the previous job's listing.
	client.listings["HB"] = []int{1, 2}
	client.docs["HB 2"] = historyXML("HB", 2, "")

	job, err = svc.CreateJob(ctx)
	require.NoError(t, err)
	_, err = svc.ResumeJob(ctx, job.ID)
	require.NoError(t, err)

	res, err = svc.ProcessBatch(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 1)
	require.Equal(t, "HB 2", res.Outcomes[0].BillID)
	require.Equal(t, 1, res.Job.TotalProcessed)
	require.Equal(t, model.JobCompleted, res.Job.Status)
}

func TestProcessBatchRefusesWhenNotRunning(t *testing.T) {
	jobs := newFakeJobStore()
	client := newFakeClient()
	svc := testService(testConfig(), jobs, newFakeBillStore(), client)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx)
	require.NoError(t, err)

	res, err := svc.ProcessBatch(ctx, job.ID)
	require.NoError(t, err)
	require.Empty(t, res.Outcomes)
	require.Contains(t, res.Message, model.JobPending)
	require.Empty(t, client.fetchedIDs())
}

func TestCreateJobSingleActive(t *testing.T) {
	jobs := newFakeJobStore()
	svc := testService(testConfig(), jobs, newFakeBillStore(), newFakeClient())
	ctx := context.Background()

	_, err := svc.CreateJob(ctx)
	require.NoError(t, err)

	_, err = svc.CreateJob(ctx)
	require.ErrorIs(t, err, store.ErrJobActive)
}

func TestCreateJobDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.SyncEnabled = false
	svc := testService(cfg, newFakeJobStore(), newFakeBillStore(), newFakeClient())

	_, err := svc.CreateJob(context.Background())
	require.ErrorIs(t, err, ErrSyncDisabled)
}

func TestCreateJobNoSession(t *testing.T) {
	cfg := testConfig()
	cfg.SessionCode = ""
	svc := testService(cfg, newFakeJobStore(), newFakeBillStore(), newFakeClient())

	_, err := svc.CreateJob(context.Background())
	require.ErrorIs(t, err, ErrNoSession)
}

func TestJobLifecycleTransitions(t *testing.T) {
	jobs := newFakeJobStore()
	svc := testService(testConfig(), jobs, newFakeBillStore(), newFakeClient())
	ctx := context.Background()

	job, err := svc.CreateJob(ctx)
	require.NoError(t, err)

	// A pending job cannot be paused.
	_, err = svc.PauseJob(ctx, job.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	job, err = svc.ResumeJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, model.JobRunning, job.Status)

	job, err = svc.PauseJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, model.JobPaused, job.Status)

	job, err = svc.StopJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, model.JobStopped, job.Status)

	// Terminal jobs stay terminal.
	_, err = svc.ResumeJob(ctx, job.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.PauseJob(ctx, "no-such-job")
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestRunEmitsEventStream(t *testing.T) {
	jobs := newFakeJobStore()
	bills := newFakeBillStore()
	client := newFakeClient()
	client.listings["HB"] = []int{1, 2, 3}
	for n := 1; n <= 3; n++ {
		client.docs[model.BillID("HB", n)] = historyXML("HB", n, "")
	}

	svc := testService(testConfig(), jobs, bills, client)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx)
	require.NoError(t, err)

	events := make(chan Event, 256)
	require.NoError(t, svc.Run(ctx, job.ID, events))

	var collected []Event
	for e := range events {
		collected = append(collected, e)
	}

	require.NotEmpty(t, collected)
	require.Equal(t, EventPhase, collected[0].Type)
	require.Equal(t, "sync started", collected[0].Message)

	var billEvents, progressEvents int
	for _, e := range collected {
		switch e.Type {
		case EventBill:
			billEvents++
			require.Equal(t, OutcomeCreated, e.Outcome)
		case EventProgress:
			progressEvents++
			require.Equal(t, "HB", e.BillType)
		}
	}
	require.Equal(t, 3, billEvents)
	require.Equal(t, 3, progressEvents)

	last := collected[len(collected)-1]
	require.Equal(t, EventComplete, last.Type)
	require.True(t, last.Success)
	require.NotNil(t, last.Summary)
	require.Equal(t, 3, last.Summary.Processed)
	require.Equal(t, 3, last.Summary.Created)
	require.Equal(t, 0, last.Summary.Errors)

	final, err := svc.JobByID(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, model.JobCompleted, final.Status)
}

func TestRunHonorsPerRunCap(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 2
	cfg.MaxBillsPerSync = 2

	jobs := newFakeJobStore()
	client := newFakeClient()
	client.listings["HB"] = []int{1, 2, 3, 4}
	for n := 1; n <= 4; n++ {
		client.docs[model.BillID("HB", n)] = historyXML("HB", n, "")
	}

	svc := testService(cfg, jobs, newFakeBillStore(), client)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.Run(ctx, job.ID, nil))

	final, err := svc.JobByID(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, model.JobPaused, final.Status)
	require.Equal(t, 2, final.TotalProcessed)
	require.Equal(t, 2, final.Progress["HB"])
}

func TestRunDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.SyncEnabled = false
	svc := testService(cfg, newFakeJobStore(), newFakeBillStore(), newFakeClient())

	events := make(chan Event, 8)
	err := svc.Run(context.Background(), "any", events)
	require.ErrorIs(t, err, ErrSyncDisabled)

	e, ok := <-events
	require.True(t, ok)
	require.Equal(t, EventError, e.Type)
}
