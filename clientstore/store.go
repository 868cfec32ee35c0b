package clientstore

import (
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/Jiadezhende/CleanSightBackend/errors"
	"github.com/Jiadezhende/CleanSightBackend/frame"
	"github.com/Jiadezhende/CleanSightBackend/metric"
	"github.com/Jiadezhende/CleanSightBackend/pkg/buffer"
	"github.com/Jiadezhende/CleanSightBackend/pkg/timestamp"
	"github.com/Jiadezhende/CleanSightBackend/task"
)

const defaultRealtimeCapacity = 30

// BackpressurePolicy controls what happens when a cache queue reaches its
// configured maximum depth.
type BackpressurePolicy int

const (
	// PolicyUnbounded never drops; cache queues grow until flushed.
	PolicyUnbounded BackpressurePolicy = iota
	// PolicyDropOldest evicts the oldest cached pair to admit the new one.
	PolicyDropOldest
	// PolicyReject refuses the new pair.
	PolicyReject
)

func (p BackpressurePolicy) String() string {
	switch p {
	case PolicyUnbounded:
		return "unbounded"
	case PolicyDropOldest:
		return "drop-oldest"
	case PolicyReject:
		return "reject"
	default:
		return "unknown"
	}
}

// ParsePolicy maps a config string to a policy.
func ParsePolicy(s string) (BackpressurePolicy, error) {
	switch s {
	case "", "unbounded":
		return PolicyUnbounded, nil
	case "drop-oldest":
		return PolicyDropOldest, nil
	case "reject":
		return PolicyReject, nil
	default:
		return PolicyUnbounded, errors.WrapInvalid(errors.ErrInvalidConfig, "Store", "ParsePolicy", s)
	}
}

// Entry pairs a processed frame with the per-task results that produced it.
// The raw counterpart travels in the raw cache and is matched back up by
// sequence number at flush time.
type Entry struct {
	Frame   *frame.Record
	Results map[string]task.Result
}

// clientState is everything tracked for one client id.
type clientState struct {
	ready           []*frame.Record
	rawCache        []*frame.Record
	processedCache  []*Entry
	realtime        buffer.Buffer[*frame.Record]
	task            *task.CleaningTask
	latestProcessed *frame.Record
	rtmpURL         string
	createdAt       int64
	nextSeq         uint64
	limiter         *rate.Limiter
}

// QueueStatus is the per-client view returned by Status.
type QueueStatus struct {
	Ready          int    `json:"ready"`
	RawCache       int    `json:"raw_cache"`
	ProcessedCache int    `json:"processed_cache"`
	Realtime       int    `json:"realtime"`
	RTMPURL        string `json:"rtmp_url,omitempty"`

	Task *task.CleaningSnapshot `json:"task,omitempty"`
}

// Status is a consistent snapshot of the store taken under one lock
// acquisition.
type Status struct {
	Clients int                    `json:"clients"`
	Queues  map[string]QueueStatus `json:"queues"`
}

// Store is the coarse-locked per-client state store.
type Store struct {
	mu      sync.Mutex
	clients map[string]*clientState

	realtimeCap int
	cachePolicy BackpressurePolicy
	cacheMax    int
	rateLimit   rate.Limit
	rateBurst   int

	logger  *slog.Logger
	metrics *Metrics
}

// Option configures a Store.
type Option func(*Store)

// WithRealtimeCapacity sets the fixed real-time queue capacity K.
func WithRealtimeCapacity(k int) Option {
	return func(s *Store) {
		if k > 0 {
			s.realtimeCap = k
		}
	}
}

// WithCachePolicy bounds the cache queues. maxDepth is ignored for
// PolicyUnbounded.
func WithCachePolicy(policy BackpressurePolicy, maxDepth int) Option {
	return func(s *Store) {
		s.cachePolicy = policy
		s.cacheMax = maxDepth
	}
}

// WithRateLimit enables a per-client ingest limiter of rps frames per
// second with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Store) {
		s.rateLimit = rate.Limit(rps)
		s.rateBurst = burst
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l.With("component", "clientstore")
		}
	}
}

// WithMetricsRegistry registers the store's collectors.
func WithMetricsRegistry(registry *metric.MetricsRegistry) Option {
	return func(s *Store) {
		s.metrics = newMetrics(registry)
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		clients:     make(map[string]*clientState),
		realtimeCap: defaultRealtimeCapacity,
		logger:      slog.Default().With("component", "clientstore"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = newMetrics(nil)
	}
	return s
}

// getOrCreate must be called with the lock held.
func (s *Store) getOrCreate(id string) *clientState {
	st, exists := s.clients[id]
	if exists {
		return st
	}

	rt, _ := buffer.New[*frame.Record](s.realtimeCap,
		buffer.WithOverflowPolicy[*frame.Record](buffer.DropOldest))
	st = &clientState{
		realtime:  rt,
		createdAt: timestamp.Now(),
	}
	if s.rateLimit > 0 {
		st.limiter = rate.NewLimiter(s.rateLimit, s.rateBurst)
	}
	s.clients[id] = st
	s.metrics.Clients.Set(float64(len(s.clients)))
	s.logger.Info("client registered", "client_id", id)
	return st
}

// GetOrCreate ensures a client exists.
func (s *Store) GetOrCreate(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreate(id)
}

// SubmitFrame assigns the frame its per-client sequence number and appends
// it to the ready queue. The client is created lazily on first contact.
func (s *Store) SubmitFrame(id string, rec *frame.Record) error {
	if rec == nil || len(rec.Image) == 0 {
		return errors.WrapInvalid(errors.ErrEmptyFrame, "Store", "SubmitFrame", "validate frame")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.getOrCreate(id)
	if st.limiter != nil && !st.limiter.Allow() {
		s.metrics.RateLimited.WithLabelValues(id).Inc()
		return errors.WrapTransient(errors.ErrQueueRejected, "Store", "SubmitFrame", "rate limit")
	}

	rec.ClientID = id
	rec.Seq = st.nextSeq
	st.nextSeq++
	st.ready = append(st.ready, rec)
	s.metrics.Submitted.WithLabelValues(id).Inc()
	return nil
}

// PopReady removes and returns the oldest ready frame.
func (s *Store) PopReady(id string) (*frame.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, exists := s.clients[id]
	if !exists || len(st.ready) == 0 {
		return nil, false
	}
	rec := st.ready[0]
	st.ready = st.ready[1:]
	return rec, true
}

// AppendResult records the outcome of one processed frame: the raw original
// goes to the raw cache, the annotated frame plus its results to the
// processed cache and the real-time queue, and latestProcessed is updated.
// Under PolicyReject a full cache refuses the pair.
func (s *Store) AppendResult(id string, raw, processed *frame.Record, results map[string]task.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, exists := s.clients[id]
	if !exists {
		return errors.WrapInvalid(errors.ErrUnknownClient, "Store", "AppendResult", id)
	}

	if s.cachePolicy != PolicyUnbounded && s.cacheMax > 0 && len(st.rawCache) >= s.cacheMax {
		switch s.cachePolicy {
		case PolicyReject:
			s.metrics.CacheDrops.WithLabelValues(id, "reject").Inc()
			s.logger.Warn("cache full, pair rejected", "client_id", id, "depth", len(st.rawCache))
			return errors.WrapTransient(errors.ErrQueueRejected, "Store", "AppendResult", "cache full")
		case PolicyDropOldest:
			st.rawCache = st.rawCache[1:]
			if len(st.processedCache) > 0 {
				st.processedCache = st.processedCache[1:]
			}
			s.metrics.CacheDrops.WithLabelValues(id, "drop_oldest").Inc()
			s.logger.Warn("cache full, oldest pair dropped", "client_id", id)
		}
	}

	st.rawCache = append(st.rawCache, raw)
	st.processedCache = append(st.processedCache, &Entry{Frame: processed, Results: results})
	_ = st.realtime.Write(processed)
	st.latestProcessed = processed
	return nil
}

// GetResult returns the newest real-time frame, falling back to the last
// processed frame when the queue is momentarily empty.
func (s *Store) GetResult(id string) (*frame.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, exists := s.clients[id]
	if !exists {
		return nil, false
	}
	if rec, ok := st.realtime.Latest(); ok {
		return rec, true
	}
	if st.latestProcessed != nil {
		return st.latestProcessed, true
	}
	return nil, false
}

// LatestProcessed returns the most recently completed result.
func (s *Store) LatestProcessed(id string) (*frame.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, exists := s.clients[id]
	if !exists || st.latestProcessed == nil {
		return nil, false
	}
	return st.latestProcessed, true
}

// SetTask binds a cleaning task to the client, creating it if needed.
// A nil task unbinds.
func (s *Store) SetTask(id string, t *task.CleaningTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreate(id).task = t
}

// GetTask returns the bound cleaning task.
func (s *Store) GetTask(id string) (*task.CleaningTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, exists := s.clients[id]
	if !exists || st.task == nil {
		return nil, false
	}
	return st.task, true
}

// SetRTMPURL records the client's stream URL, creating the client if
// needed.
func (s *Store) SetRTMPURL(id, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreate(id).rtmpURL = url
}

// RemoveClient discards all state for a client immediately. Cached frames
// are not flushed.
func (s *Store) RemoveClient(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.clients[id]; !exists {
		return false
	}
	delete(s.clients, id)
	s.metrics.Clients.Set(float64(len(s.clients)))
	s.logger.Info("client removed", "client_id", id)
	return true
}

// ClientIDs returns the current client set in unspecified order.
func (s *Store) ClientIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.clients))
	for id := range s.clients {
		out = append(out, id)
	}
	return out
}

// CacheLens returns the raw and processed cache depths.
func (s *Store) CacheLens(id string) (raw, processed int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, exists := s.clients[id]
	if !exists {
		return 0, 0
	}
	return len(st.rawCache), len(st.processedCache)
}

// ReadyLen returns the ready queue depth.
func (s *Store) ReadyLen(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, exists := s.clients[id]
	if !exists {
		return 0
	}
	return len(st.ready)
}

// DrainAligned removes up to limit raw/processed pairs from the caches,
// pairing by frame sequence number. When the two heads disagree the lagging
// side's record is dropped and counted until the sequences match, so a pair
// is never built from different frames. Both slices are equal length.
func (s *Store) DrainAligned(id string, limit int) (raw []*frame.Record, processed []*Entry, dropped int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, exists := s.clients[id]
	if !exists || limit <= 0 {
		return nil, nil, 0
	}

	for len(raw) < limit && len(st.rawCache) > 0 && len(st.processedCache) > 0 {
		r := st.rawCache[0]
		p := st.processedCache[0]

		switch {
		case r.Seq < p.Frame.Seq:
			st.rawCache = st.rawCache[1:]
			dropped++
			s.metrics.CacheDrops.WithLabelValues(id, "align").Inc()
			s.logger.Warn("unpaired raw frame dropped", "client_id", id, "seq", r.Seq)
		case r.Seq > p.Frame.Seq:
			st.processedCache = st.processedCache[1:]
			dropped++
			s.metrics.CacheDrops.WithLabelValues(id, "align").Inc()
			s.logger.Warn("unpaired processed frame dropped", "client_id", id, "seq", p.Frame.Seq)
		default:
			st.rawCache = st.rawCache[1:]
			st.processedCache = st.processedCache[1:]
			raw = append(raw, r)
			processed = append(processed, p)
		}
	}
	return raw, processed, dropped
}

// Status snapshots every client under a single lock acquisition.
func (s *Store) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Status{
		Clients: len(s.clients),
		Queues:  make(map[string]QueueStatus, len(s.clients)),
	}
	for id, st := range s.clients {
		qs := QueueStatus{
			Ready:          len(st.ready),
			RawCache:       len(st.rawCache),
			ProcessedCache: len(st.processedCache),
			Realtime:       st.realtime.Size(),
			RTMPURL:        st.rtmpURL,
		}
		if st.task != nil {
			snap := st.task.Snapshot()
			qs.Task = &snap
		}
		out.Queues[id] = qs
	}
	return out
}

// RealtimeSnapshot returns the real-time queue contents oldest first.
func (s *Store) RealtimeSnapshot(id string) []*frame.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, exists := s.clients[id]
	if !exists {
		return nil
	}
	return st.realtime.Snapshot()
}
