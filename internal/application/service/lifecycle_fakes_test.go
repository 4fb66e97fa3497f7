package service

import (
	"billevents/internal/config"
	"billevents/internal/domain/entity"
	"billevents/internal/domain/messaging"
	"billevents/internal/port/inbound"
	"billevents/internal/port/outbound"
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Shared hand-rolled fakes for the extraction lifecycle services. Each fake
// records calls under a mutex so tests can assert on them after concurrent
// use.

type fakeBillRepository struct {
	mu        sync.Mutex
	bills     map[string]*entity.Bill
	appended  map[string][]string
	cleared   []string
	findErr   error
	appendErr error
	clearErr  error
}

func newFakeBillRepository(bills ...*entity.Bill) *fakeBillRepository {
	repo := &fakeBillRepository{
		bills:    make(map[string]*entity.Bill),
		appended: make(map[string][]string),
	}
	for _, bill := range bills {
		repo.bills[bill.Key()] = bill
	}
	return repo
}

func (f *fakeBillRepository) FindByKey(_ context.Context, key string) (*entity.Bill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.bills[key], nil
}

func (f *fakeBillRepository) FindByKeys(_ context.Context, keys []string) ([]*entity.Bill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	found := make([]*entity.Bill, 0, len(keys))
	for _, key := range keys {
		if bill, ok := f.bills[key]; ok {
			found = append(found, bill)
		}
	}
	return found, nil
}

func (f *fakeBillRepository) AppendEventIDs(_ context.Context, key string, eventIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended[key] = append(f.appended[key], eventIDs...)
	return nil
}

func (f *fakeBillRepository) ClearEventIDs(_ context.Context, keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clearErr != nil {
		return f.clearErr
	}
	f.cleared = append(f.cleared, keys...)
	return nil
}

func (f *fakeBillRepository) appendedTo(key string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.appended[key]
}

type fakeEventRepository struct {
	mu           sync.Mutex
	saved        []*entity.PolicyEvent
	deletedKeys  []string
	deletedCount int64
	saveErr      error
	saveErrSeq   []error
	deleteErr    error
	findErr      error
}

func (f *fakeEventRepository) SaveAll(_ context.Context, events []*entity.PolicyEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saveErrSeq) > 0 {
		err := f.saveErrSeq[0]
		f.saveErrSeq = f.saveErrSeq[1:]
		if err != nil {
			return err
		}
	} else if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, events...)
	return nil
}

func (f *fakeEventRepository) FindByBillKey(_ context.Context, billKey string) ([]*entity.PolicyEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []*entity.PolicyEvent
	for _, event := range f.saved {
		if event.BillKey() == billKey {
			out = append(out, event)
		}
	}
	return out, nil
}

func (f *fakeEventRepository) DeleteByBillKeys(_ context.Context, billKeys []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	f.deletedKeys = append(f.deletedKeys, billKeys...)
	return f.deletedCount, nil
}

func (f *fakeEventRepository) savedEvents() []*entity.PolicyEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*entity.PolicyEvent, len(f.saved))
	copy(out, f.saved)
	return out
}

type fakeBatchJobRepository struct {
	mu            sync.Mutex
	jobs          map[string]*entity.BatchJob
	saveErr       error
	updateErr     error
	getErr        error
	unfinishedErr error
	claimWon      bool
	claimErr      error
	claims        []string
	released      []string
	releaseErr    error
	updates       int
}

func newFakeBatchJobRepository(jobs ...*entity.BatchJob) *fakeBatchJobRepository {
	repo := &fakeBatchJobRepository{
		jobs:     make(map[string]*entity.BatchJob),
		claimWon: true,
	}
	for _, job := range jobs {
		repo.jobs[job.BatchHandle()] = job
	}
	return repo
}

func (f *fakeBatchJobRepository) Save(_ context.Context, job *entity.BatchJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.jobs[job.BatchHandle()] = job
	return nil
}

func (f *fakeBatchJobRepository) Update(_ context.Context, job *entity.BatchJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates++
	f.jobs[job.BatchHandle()] = job
	return nil
}

func (f *fakeBatchJobRepository) GetByID(_ context.Context, id uuid.UUID) (*entity.BatchJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, job := range f.jobs {
		if job.ID() == id {
			return job, nil
		}
	}
	return nil, nil
}

func (f *fakeBatchJobRepository) GetByHandle(_ context.Context, batchHandle string) (*entity.BatchJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.jobs[batchHandle], nil
}

func (f *fakeBatchJobRepository) GetUnfinished(_ context.Context) ([]*entity.BatchJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unfinishedErr != nil {
		return nil, f.unfinishedErr
	}
	handles := make([]string, 0, len(f.jobs))
	for handle := range f.jobs {
		handles = append(handles, handle)
	}
	sort.Strings(handles)
	var out []*entity.BatchJob
	for _, handle := range handles {
		job := f.jobs[handle]
		if job.Status() == entity.JobStatusSubmitted || job.Status() == entity.JobStatusPolling {
			out = append(out, job)
		}
	}
	return out, nil
}

func (f *fakeBatchJobRepository) ClaimFinalization(_ context.Context, batchHandle string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return false, f.claimErr
	}
	f.claims = append(f.claims, batchHandle)
	return f.claimWon, nil
}

func (f *fakeBatchJobRepository) ReleaseFinalization(_ context.Context, batchHandle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.releaseErr != nil {
		return f.releaseErr
	}
	f.released = append(f.released, batchHandle)
	return nil
}

func (f *fakeBatchJobRepository) jobByHandle(handle string) *entity.BatchJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[handle]
}

type fakeInferenceClient struct {
	mu          sync.Mutex
	createInfo  *outbound.BatchInfo
	createErr   error
	createdReqs [][]outbound.BatchRequest
	getInfo     *outbound.BatchInfo
	getErr      error
	results     []outbound.BatchResult
	listErr     error
	listCalls   int
	cancelInfo  *outbound.BatchInfo
	cancelErr   error
}

func (f *fakeInferenceClient) CreateBatch(_ context.Context, requests []outbound.BatchRequest) (*outbound.BatchInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.createdReqs = append(f.createdReqs, requests)
	return f.createInfo, nil
}

func (f *fakeInferenceClient) GetBatch(_ context.Context, _ string) (*outbound.BatchInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.getInfo, nil
}

func (f *fakeInferenceClient) ListResults(_ context.Context, _ string) ([]outbound.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.results, nil
}

func (f *fakeInferenceClient) CancelBatch(_ context.Context, _ string) (*outbound.BatchInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	return f.cancelInfo, nil
}

type scheduledTrigger struct {
	billKeys     []string
	retryAttempt int
}

type fakePollScheduler struct {
	mu          sync.Mutex
	triggers    map[string]scheduledTrigger
	scheduleErr error
	cancelErr   error
	cancelled   []string
}

func newFakePollScheduler() *fakePollScheduler {
	return &fakePollScheduler{triggers: make(map[string]scheduledTrigger)}
}

func (f *fakePollScheduler) Schedule(_ context.Context, batchHandle string, billKeys []string, retryAttempt int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scheduleErr != nil {
		return f.scheduleErr
	}
	f.triggers[batchHandle] = scheduledTrigger{billKeys: billKeys, retryAttempt: retryAttempt}
	return nil
}

func (f *fakePollScheduler) Cancel(_ context.Context, batchHandle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	delete(f.triggers, batchHandle)
	f.cancelled = append(f.cancelled, batchHandle)
	return nil
}

func (f *fakePollScheduler) ActiveTriggers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	handles := make([]string, 0, len(f.triggers))
	for handle := range f.triggers {
		handles = append(handles, handle)
	}
	sort.Strings(handles)
	return handles
}

func (f *fakePollScheduler) trigger(batchHandle string) (scheduledTrigger, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	trigger, ok := f.triggers[batchHandle]
	return trigger, ok
}

type fakeEmbeddingService struct {
	mu     sync.Mutex
	vector []float32
	err    error
	inputs []string
}

func newFakeEmbeddingService() *fakeEmbeddingService {
	return &fakeEmbeddingService{vector: []float32{2, 0, 0, 0}}
}

func (f *fakeEmbeddingService) GenerateEmbedding(_ context.Context, text string) (*outbound.EmbeddingResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, text)
	return &outbound.EmbeddingResult{
		Vector:      f.vector,
		Dimensions:  len(f.vector),
		Model:       "gemini-embedding-001",
		GeneratedAt: time.Now(),
	}, nil
}

func (f *fakeEmbeddingService) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([]*outbound.EmbeddingResult, error) {
	results := make([]*outbound.EmbeddingResult, 0, len(texts))
	for _, text := range texts {
		result, err := f.GenerateEmbedding(ctx, text)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

type fakeMessagePublisher struct {
	mu          sync.Mutex
	extracts    []messaging.Envelope
	retrieves   []messaging.Envelope
	deadLetters []messaging.DeadLetterPayload
	extractErr  error
	retrieveErr error
	deadErr     error
}

func (f *fakeMessagePublisher) PublishExtract(_ context.Context, envelope messaging.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.extractErr != nil {
		return f.extractErr
	}
	f.extracts = append(f.extracts, envelope)
	return nil
}

func (f *fakeMessagePublisher) PublishRetrieve(_ context.Context, envelope messaging.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.retrieveErr != nil {
		return f.retrieveErr
	}
	f.retrieves = append(f.retrieves, envelope)
	return nil
}

func (f *fakeMessagePublisher) PublishDeadLetter(_ context.Context, payload messaging.DeadLetterPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deadErr != nil {
		return f.deadErr
	}
	f.deadLetters = append(f.deadLetters, payload)
	return nil
}

func (f *fakeMessagePublisher) publishedExtracts() []messaging.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]messaging.Envelope, len(f.extracts))
	copy(out, f.extracts)
	return out
}

type fakeConsumer struct {
	mu       sync.Mutex
	running  bool
	startErr error
	stopErr  error
	starts   int
	stops    int
}

func (f *fakeConsumer) Start(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	f.starts++
	return nil
}

func (f *fakeConsumer) Stop(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopErr != nil {
		return f.stopErr
	}
	f.running = false
	f.stops++
	return nil
}

func (f *fakeConsumer) Health() inbound.ConsumerHealthStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return inbound.ConsumerHealthStatus{
		IsRunning:   f.running,
		IsConnected: f.running,
		QueueGroup:  f.QueueGroup(),
		Subject:     f.Subject(),
	}
}

func (f *fakeConsumer) QueueGroup() string  { return "bill-workers" }
func (f *fakeConsumer) Subject() string     { return "bills.job" }
func (f *fakeConsumer) DurableName() string { return "bill-worker" }

func (f *fakeConsumer) setRunning(running bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = running
}

func (f *fakeConsumer) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func testExtractionConfig() *config.ExtractionConfig {
	return &config.ExtractionConfig{
		TierThresholdChars: 10000,
		SmallModel:         "claude-3-5-haiku-latest",
		LargeModel:         "claude-sonnet-4-5",
		SmallMaxTokens:     8192,
		LargeMaxTokens:     12000,
		Temperature:        0.7,
		PollInterval:       2 * time.Minute,
		MaxRetries:         3,
	}
}

func testBill(t *testing.T, key, body string) *entity.Bill {
	t.Helper()
	bill, err := entity.NewBill(key, "An Act concerning "+key, body)
	require.NoError(t, err)
	return bill
}
