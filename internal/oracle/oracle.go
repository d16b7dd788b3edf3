// internal/oracle/oracle.go
//
// The decryption authority and its request/callback channel.
// Responsibilities:
//   - Accept decryption requests synchronously and hand out fresh ids.
//   - Decrypt granted handles, ABI-encode the results and sign them.
//   - Deliver the signed result to the registered callback, retrying with
//     exponential backoff until it is accepted or permanently rejected.
//   - Verify decryption proofs on behalf of the state machine.
//
// Notes:
//   - With Workers == 0 nothing is delivered until Resolve or ResolveAll is
//     called. Tests use this to resolve requests in any order.
//   - In worker mode a job whose delivery series gives up is queued again
//     after RequeueDelay. In manual mode it stays pending for the next
//     Resolve.
//   - Jobs live in memory. After a restart serve hands the unresolved
//     requests back through Restore.

package oracle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chandiniv1/secret-number-game/internal/fhe"
	"github.com/chandiniv1/secret-number-game/internal/game"
	"github.com/chandiniv1/secret-number-game/internal/metrics"
	"github.com/chandiniv1/secret-number-game/internal/proof"
)

var (
	ErrUnknownRequest = errors.New("unknown decryption request")
	ErrNoHandles      = errors.New("no handles to decrypt")
	ErrStopped        = errors.New("oracle stopped")
)

// CiphertextReader gives the authority access to granted ciphertexts.
type CiphertextReader interface {
	Ciphertext(ctx context.Context, h fhe.Handle, reader string) (fhe.Record, error)
}

// Config tunes delivery.
type Config struct {
	Workers      int           // 0 means manual resolution
	Delay        time.Duration // wait before a worker processes a job
	RetryTimeout time.Duration // max elapsed time per delivery attempt series
	RequeueDelay time.Duration // wait before a given-up job is retried
}

type job struct {
	id       game.RequestID
	handles  []fhe.Handle
	callback string
	seq      uint64
}

// Service implements game.DecryptionChannel.
type Service struct {
	cfg      Config
	reader   CiphertextReader
	dec      fhe.Decryptor
	signer   *proof.DecryptionSigner
	verifier *proof.DecryptionVerifier
	deliver  Deliverer
	log      zerolog.Logger
	newID    func() string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	cond    *sync.Cond
	jobs    map[game.RequestID]*job
	queue   []game.RequestID
	seq     uint64
	stopped bool
}

var _ game.DecryptionChannel = (*Service)(nil)

// New builds a stopped Service. Call Start to launch workers.
func New(cfg Config, reader CiphertextReader, dec fhe.Decryptor, signer *proof.DecryptionSigner, d Deliverer, logger zerolog.Logger) *Service {
	if cfg.RetryTimeout <= 0 {
		cfg.RetryTimeout = 30 * time.Second
	}
	if cfg.RequeueDelay <= 0 {
		cfg.RequeueDelay = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		cfg:      cfg,
		reader:   reader,
		dec:      dec,
		signer:   signer,
		verifier: signer.Verifier(),
		deliver:  d,
		log:      logger.With().Str("component", "oracle").Logger(),
		newID:    uuid.NewString,
		ctx:      ctx,
		cancel:   cancel,
		jobs:     make(map[game.RequestID]*job),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start launches cfg.Workers delivery workers.
func (s *Service) Start() {
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	s.log.Info().Int("workers", s.cfg.Workers).Dur("delay", s.cfg.Delay).Msg("oracle started")
}

// Stop cancels in-flight deliveries and waits for the workers to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cancel()
	s.cond.Broadcast()
	s.wg.Wait()
}

// RequestDecryption records a job for handles and returns its id. Every
// handle must already be granted to the decryption authority. It never
// blocks on delivery.
func (s *Service) RequestDecryption(ctx context.Context, handles []fhe.Handle, callback string) (game.RequestID, error) {
	if err := s.checkGranted(ctx, handles); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return "", ErrStopped
	}
	id := game.RequestID(s.newID())
	s.add(id, handles, callback)
	metrics.OracleRequestsTotal.Inc()
	s.log.Debug().Str("requestId", string(id)).Str("callback", callback).Msg("decryption requested")
	return id, nil
}

// Restore re-registers a request issued before a restart under its original
// id. Restoring an id that is already pending is a no-op.
func (s *Service) Restore(ctx context.Context, id game.RequestID, handles []fhe.Handle, callback string) error {
	if err := s.checkGranted(ctx, handles); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if _, ok := s.jobs[id]; ok {
		return nil
	}
	s.add(id, handles, callback)
	s.log.Info().Str("requestId", string(id)).Msg("decryption request restored")
	return nil
}

// RestoreAll restores every unprocessed guess request in reqs and returns
// how many were restored. Requests recorded without a handle cannot be
// decrypted again and are skipped.
func (s *Service) RestoreAll(ctx context.Context, reqs []game.PendingRequest) (int, error) {
	n := 0
	for _, r := range reqs {
		if r.Processed {
			continue
		}
		if r.Handle.IsZero() {
			s.log.Warn().Str("requestId", string(r.ID)).Msg("request has no handle, cannot restore")
			continue
		}
		if err := s.Restore(ctx, r.ID, []fhe.Handle{r.Handle}, game.CallbackGuessResult); err != nil {
			return n, fmt.Errorf("restore %s: %w", r.ID, err)
		}
		n++
	}
	return n, nil
}

func (s *Service) checkGranted(ctx context.Context, handles []fhe.Handle) error {
	if len(handles) == 0 {
		return ErrNoHandles
	}
	for _, h := range handles {
		if _, err := s.reader.Ciphertext(ctx, h, fhe.DecryptionAuthority); err != nil {
			return err
		}
	}
	return nil
}

// add registers a job. s.mu must be held.
func (s *Service) add(id game.RequestID, handles []fhe.Handle, callback string) {
	s.seq++
	s.jobs[id] = &job{
		id:       id,
		handles:  append([]fhe.Handle(nil), handles...),
		callback: callback,
		seq:      s.seq,
	}
	if s.cfg.Workers > 0 {
		s.queue = append(s.queue, id)
		s.cond.Signal()
	}
	metrics.OraclePending.Inc()
}

// VerifyDecryptionProof checks a proof produced by this authority.
func (s *Service) VerifyDecryptionProof(id game.RequestID, cleartext []byte, token string) bool {
	return s.verifier.Verify(string(id), cleartext, token)
}

// Pending lists undelivered request ids in submission order.
func (s *Service) Pending() []game.RequestID {
	s.mu.Lock()
	defer s.mu.Unlock()
	js := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		js = append(js, j)
	}
	sort.Slice(js, func(a, b int) bool { return js[a].seq < js[b].seq })
	out := make([]game.RequestID, len(js))
	for i, j := range js {
		out[i] = j.id
	}
	return out
}

// Resolve decrypts and delivers one request now.
func (s *Service) Resolve(ctx context.Context, id game.RequestID) error {
	return s.process(ctx, id)
}

// ResolveAll resolves every pending request in submission order and returns
// the first error.
func (s *Service) ResolveAll(ctx context.Context) error {
	var first error
	for _, id := range s.Pending() {
		if err := s.process(ctx, id); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (s *Service) worker(n int) {
	defer s.wg.Done()
	for {
		id, ok := s.next()
		if !ok {
			return
		}
		if s.cfg.Delay > 0 {
			select {
			case <-time.After(s.cfg.Delay):
			case <-s.ctx.Done():
				return
			}
		}
		if err := s.process(s.ctx, id); err != nil {
			s.log.Debug().Err(err).Int("worker", n).Str("requestId", string(id)).Msg("job not delivered")
			if _, pending := s.lookup(id); pending {
				s.requeueLater(id)
			}
		}
	}
}

// requeueLater puts a still-pending job back on the queue after
// cfg.RequeueDelay.
func (s *Service) requeueLater(id game.RequestID) {
	s.log.Info().Str("requestId", string(id)).Dur("in", s.cfg.RequeueDelay).Msg("requeueing job")
	time.AfterFunc(s.cfg.RequeueDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.jobs[id]; !ok || s.stopped {
			return
		}
		s.queue = append(s.queue, id)
		s.cond.Signal()
	})
}

func (s *Service) next() (game.RequestID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) == 0 && !s.stopped {
		s.cond.Wait()
	}
	if s.stopped {
		return "", false
	}
	id := s.queue[0]
	s.queue = s.queue[1:]
	return id, true
}

func (s *Service) lookup(id game.RequestID) (*job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	return j, ok
}

func (s *Service) done(id game.RequestID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; ok {
		delete(s.jobs, id)
		metrics.OraclePending.Dec()
	}
}

// process runs one decrypt-sign-deliver cycle. The job is dropped once the
// callback accepts it or rejects it permanently.
func (s *Service) process(ctx context.Context, id game.RequestID) error {
	j, ok := s.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRequest, id)
	}
	start := time.Now()
	logger := s.log.With().Str("requestId", string(id)).Logger()

	cb, err := s.result(ctx, j)
	if err != nil {
		metrics.OracleDeliveriesTotal.WithLabelValues("failed").Inc()
		logger.Error().Err(err).Msg("decryption failed")
		return err
	}

	err = s.deliverWithRetry(ctx, cb, logger)
	switch {
	case err == nil:
		metrics.OracleDeliveriesTotal.WithLabelValues("delivered").Inc()
		metrics.OracleDeliveryDuration.Observe(time.Since(start).Seconds())
		logger.Info().Dur("took", time.Since(start)).Msg("callback delivered")
		s.done(id)
		return nil
	case errors.Is(err, game.ErrAlreadyProcessed):
		metrics.OracleDeliveriesTotal.WithLabelValues("duplicate").Inc()
		logger.Info().Msg("callback already applied")
		s.done(id)
		return nil
	case isPermanent(err):
		metrics.OracleDeliveriesTotal.WithLabelValues("rejected").Inc()
		logger.Warn().Err(err).Msg("callback rejected")
		s.done(id)
		return err
	default:
		metrics.OracleDeliveriesTotal.WithLabelValues("failed").Inc()
		logger.Error().Err(err).Msg("callback delivery gave up, request stays pending")
		return err
	}
}

// result decrypts every handle of j into consecutive ABI bool words.
func (s *Service) result(ctx context.Context, j *job) (Callback, error) {
	plain := make([]byte, 0, 32*len(j.handles))
	for _, h := range j.handles {
		rec, err := s.reader.Ciphertext(ctx, h, fhe.DecryptionAuthority)
		if err != nil {
			return Callback{}, err
		}
		if rec.Kind != fhe.KindBool {
			return Callback{}, fmt.Errorf("%w: %s is %s", fhe.ErrKindMismatch, h, rec.Kind)
		}
		b, err := s.dec.DecryptBool(rec.Ciphertext)
		if err != nil {
			return Callback{}, fmt.Errorf("decrypt %s: %w", h, err)
		}
		plain = append(plain, game.EncodeBool(b)...)
	}
	sig, err := s.signer.Sign(string(j.id), plain)
	if err != nil {
		return Callback{}, fmt.Errorf("sign: %w", err)
	}
	return Callback{RequestID: j.id, Name: j.callback, Cleartext: plain, Proof: sig}, nil
}

func (s *Service) deliverWithRetry(ctx context.Context, cb Callback, logger zerolog.Logger) error {
	op := func() error {
		err := s.deliver.Deliver(ctx, cb)
		if err != nil && isPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	expBackOff := backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(s.cfg.RetryTimeout),
	)
	notify := func(err error, d time.Duration) {
		logger.Warn().Err(err).Dur("retryIn", d).Msg("callback delivery failed, retrying")
	}
	return backoff.RetryNotify(op, backoff.WithContext(expBackOff, ctx), notify)
}

// isPermanent reports rejections that a retry cannot fix.
func isPermanent(err error) bool {
	return errors.Is(err, game.ErrAlreadyProcessed) ||
		errors.Is(err, game.ErrInvalidRequest) ||
		errors.Is(err, game.ErrUnauthorizedDecryption) ||
		errors.Is(err, game.ErrMalformedResult)
}
