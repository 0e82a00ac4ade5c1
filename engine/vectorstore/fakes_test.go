package vectorstore

import (
	"context"
	"crypto/sha256"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/WessleyAI/ragqa/engine/domain"
)

const testDims = 8

// --- fake session ---

type fakeSession struct {
	mu          sync.Mutex
	collections map[string][]domain.QARecord
	loaded      map[string]bool
	events      []string

	created      int
	insertCalls  int
	failInsertAt int // 1-based insert call that fails; 0 never
	searchErr    error
	loadErr      error
	released     int
	closed       int
	indexSpecs   []IndexSpec

	opDelay time.Duration
	active  atomic.Int32
	peak    atomic.Int32
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		collections: map[string][]domain.QARecord{},
		loaded:      map[string]bool{},
	}
}

func (s *fakeSession) enter(event string) func() {
	cur := s.active.Add(1)
	for {
		p := s.peak.Load()
		if cur <= p || s.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	if s.opDelay > 0 {
		time.Sleep(s.opDelay)
	}
	s.mu.Lock()
	s.events = append(s.events, event)
	return func() {
		s.mu.Unlock()
		s.active.Add(-1)
	}
}

func (s *fakeSession) CollectionExists(_ context.Context, name string) (bool, error) {
	defer s.enter("exists")()
	_, ok := s.collections[name]
	return ok, nil
}

func (s *fakeSession) CreateCollection(_ context.Context, schema Schema) error {
	defer s.enter("create")()
	if _, ok := s.collections[schema.Name]; ok {
		return errors.New("collection already exists")
	}
	s.collections[schema.Name] = nil
	s.created++
	return nil
}

func (s *fakeSession) Insert(_ context.Context, name string, records []domain.QARecord) error {
	defer s.enter("insert")()
	s.insertCalls++
	if s.failInsertAt > 0 && s.insertCalls == s.failInsertAt {
		return errors.New("insert rejected")
	}
	if _, ok := s.collections[name]; !ok {
		return domain.ErrCollectionNotFound
	}
	s.collections[name] = append(s.collections[name], records...)
	return nil
}

func (s *fakeSession) BuildIndex(_ context.Context, _ string, spec IndexSpec) error {
	defer s.enter("index")()
	s.indexSpecs = append(s.indexSpecs, spec)
	return nil
}

func (s *fakeSession) Load(_ context.Context, name string) error {
	defer s.enter("load")()
	if s.loadErr != nil {
		return s.loadErr
	}
	if _, ok := s.collections[name]; !ok {
		return domain.ErrCollectionNotFound
	}
	s.loaded[name] = true
	return nil
}

func (s *fakeSession) Release(_ context.Context, name string) error {
	defer s.enter("release")()
	s.loaded[name] = false
	s.released++
	return nil
}

func (s *fakeSession) Search(_ context.Context, name string, vector []float32, limit int) ([]domain.SearchResult, error) {
	defer s.enter("search")()
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	recs, ok := s.collections[name]
	if !ok {
		return nil, domain.ErrCollectionNotFound
	}
	if !s.loaded[name] {
		return nil, errors.New("collection not loaded")
	}
	out := make([]domain.SearchResult, 0, len(recs))
	for _, r := range recs {
		out = append(out, domain.SearchResult{Distance: squaredL2(vector, r.Embedding), Instruction: r.Instruction, Output: r.Output})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeSession) ListCollections(context.Context) ([]string, error) {
	defer s.enter("list")()
	names := make([]string, 0, len(s.collections))
	for n := range s.collections {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (s *fakeSession) DropCollection(_ context.Context, name string) error {
	defer s.enter("drop")()
	delete(s.collections, name)
	delete(s.loaded, name)
	return nil
}

func (s *fakeSession) Close() error {
	defer s.enter("close")()
	s.closed++
	return nil
}

// removeBehindBack simulates an external drop.
func (s *fakeSession) removeBehindBack(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, name)
	delete(s.loaded, name)
}

func (s *fakeSession) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.collections[name])
}

func (s *fakeSession) eventLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

func squaredL2(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return float32(sum)
}

// --- fake dialer ---

type fakeDialer struct {
	session *fakeSession
	delay   time.Duration
	err     error
	dials   atomic.Int32
}

func (d *fakeDialer) Dial(ctx context.Context) (Session, error) {
	d.dials.Add(1)
	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.session, nil
}

// --- fake embedder ---

// fakeEmbedder returns fixed vectors for known texts and a hash-spread vector
// otherwise, so distinct unknown texts land far apart.
type fakeEmbedder struct {
	vectors    map[string][]float32
	err        error
	calls      atomic.Int32
	batchCalls atomic.Int32
}

func (e *fakeEmbedder) vector(text string) []float32 {
	if v, ok := e.vectors[text]; ok {
		return v
	}
	sum := sha256.Sum256([]byte(text))
	v := make([]float32, testDims)
	for i := range v {
		v[i] = float32(sum[i]) / 16
	}
	return v
}

func (e *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	return e.vector(text), nil
}

func (e *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.batchCalls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

// --- recording observer ---

type recordingObserver struct {
	mu      sync.Mutex
	dials   []error
	lookups []domain.LookupKind
	stores  []error
}

func (o *recordingObserver) ObserveDial(err error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dials = append(o.dials, err)
}

func (o *recordingObserver) ObserveLookup(kind domain.LookupKind, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lookups = append(o.lookups, kind)
}

func (o *recordingObserver) ObserveStore(_ int, err error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stores = append(o.stores, err)
}

// --- helpers ---

func newTestCoordinator(opts Options) (*Coordinator, *fakeDialer, *fakeSession, *fakeEmbedder) {
	sess := newFakeSession()
	d := &fakeDialer{session: sess}
	e := &fakeEmbedder{vectors: map[string][]float32{}}
	opts.Dimensions = testDims
	return New(d, e, opts), d, sess, e
}

func records(n int) []domain.QARecord {
	out := make([]domain.QARecord, n)
	for i := range out {
		out[i] = domain.QARecord{Instruction: "question " + itoa(i), Output: "answer " + itoa(i)}
	}
	return out
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b []byte
	for ; i > 0; i /= 10 {
		b = append([]byte{byte('0' + i%10)}, b...)
	}
	return string(b)
}
