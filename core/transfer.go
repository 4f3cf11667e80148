package core

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

const (
	cmdInsert  = 'i'
	cmdRequest = 'r'
)

// TransferEngine drives up to K simultaneous block transfers against the
// fleet, one goroutine per in-flight block rather than the single-threaded
// non-blocking selector the source uses to multiplex transfer slots over
// one socket set (Design Notes: goroutines bounded by a semaphore replace
// the sentinel byte-offset state machine). It owns no object state —
// blocks, masks and hashes are passed in per call and belong to the
// orchestrator's object buffer for the duration.
type TransferEngine struct {
	ring           *Ring
	concurrency    int
	requestRetries int
	dialTimeout    time.Duration
	ioTimeout      time.Duration
	logger         *logrus.Logger
	metrics        *Metrics
}

// TransferEngineConfig configures a TransferEngine.
type TransferEngineConfig struct {
	Concurrency    int // K, §4.D
	RequestRetries int // 3, §4.D retry policy
	DialTimeout    time.Duration
	IOTimeout      time.Duration
	Logger         *logrus.Logger
	Metrics        *Metrics
}

// NewTransferEngine constructs a TransferEngine bound to ring.
func NewTransferEngine(ring *Ring, cfg TransferEngineConfig) *TransferEngine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.RequestRetries <= 0 {
		cfg.RequestRetries = 3
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NopMetrics()
	}
	return &TransferEngine{
		ring:           ring,
		concurrency:    cfg.Concurrency,
		requestRetries: cfg.RequestRetries,
		dialTimeout:    cfg.DialTimeout,
		ioTimeout:      cfg.IOTimeout,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
	}
}

// FanoutInsert delivers every position in [0, count) not set in skip
// under the insert sub-protocol (§4.D, §6). A per-block transport
// failure reconnects to the primary (route(hash, 0)) and retries
// unboundedly — inserts must persist, by design (§9, "Unbounded insert
// retries vs bounded request retries"). FanoutInsert returns an error
// only for an empty ring at lookup time (fatal, §7) or when ctx is
// cancelled.
func (e *TransferEngine) FanoutInsert(ctx context.Context, blocks []byte, skip *bitset.BitSet, count, blockSize int, hashes []Hash) error {
	sem := semaphore.NewWeighted(int64(e.concurrency))
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fatal error
	)

	for p := 0; p < count; p++ {
		if skip != nil && skip.Test(uint(p)) {
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return fatalf("fanout insert: semaphore wait", err)
		}
		wg.Add(1)
		go func(p int) {
			defer sem.Release(1)
			defer wg.Done()
			payload := blockSlice(blocks, blockSize, p)
			if err := e.insertOne(ctx, p, payload, hashes[p]); err != nil {
				mu.Lock()
				if fatal == nil {
					fatal = err
				}
				mu.Unlock()
			}
		}(p)
	}
	wg.Wait()
	return fatal
}

// insertOne delivers one block, reconnecting at the primary address
// unboundedly on transport failure.
func (e *TransferEngine) insertOne(ctx context.Context, pos int, payload []byte, h Hash) error {
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		addr, err := e.ring.Route(h, 0)
		if err != nil {
			return err // fatal: empty ring
		}
		if err := e.sendInsert(addr, payload); err != nil {
			attempt++
			e.metrics.BlocksRetried.Inc()
			e.logger.Warnf("insert block %d attempt %d to %s failed: %v", pos, attempt, addr, err)
			continue
		}
		e.metrics.BlocksSent.Inc()
		return nil
	}
}

func (e *TransferEngine) sendInsert(addr NodeAddr, payload []byte) error {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", addr, BlockServerPort), e.dialTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(e.ioTimeout))

	if _, err := conn.Write([]byte{cmdInsert}); err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := conn.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = conn.Write(payload)
	return err
}

// FanoutRequest attempts to retrieve every position in [0, count) not
// already set in have, under the request sub-protocol (§4.D, §6). Each
// block gets up to requestRetries attempts, at off 0, 1, 2 in turn;
// blocks left missing after the budget stay unset in have. FanoutRequest
// returns an error only for an empty ring (fatal) or when ctx is
// cancelled while waiting for a concurrency slot.
func (e *TransferEngine) FanoutRequest(ctx context.Context, blocks []byte, have *bitset.BitSet, count, blockSize int, hashes []Hash) error {
	sem := semaphore.NewWeighted(int64(e.concurrency))
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fatal error
	)

	for p := 0; p < count; p++ {
		mu.Lock()
		skip := have.Test(uint(p))
		mu.Unlock()
		if skip {
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return fatalf("fanout request: semaphore wait", err)
		}
		wg.Add(1)
		go func(p int) {
			defer sem.Release(1)
			defer wg.Done()
			dst := blockSlice(blocks, blockSize, p)
			ok, err := e.requestOne(ctx, p, dst, hashes[p])
			if err != nil {
				mu.Lock()
				if fatal == nil {
					fatal = err
				}
				mu.Unlock()
				return
			}
			if ok {
				mu.Lock()
				have.Set(uint(p))
				mu.Unlock()
			} else {
				e.metrics.BlocksMissing.Inc()
			}
		}(p)
	}
	wg.Wait()
	return fatal
}

// requestOne tries up to e.requestRetries attempts at off 0, 1, 2 and
// reports whether it recovered the block.
func (e *TransferEngine) requestOne(ctx context.Context, pos int, dst []byte, h Hash) (bool, error) {
	for attempt := 0; attempt < e.requestRetries; attempt++ {
		select {
		case <-ctx.Done():
			return false, nil
		default:
		}
		if attempt > 0 {
			e.metrics.BlocksRetried.Inc()
		}

		addr, err := e.ring.Route(h, attempt)
		if err != nil {
			return false, err // fatal: empty ring
		}
		data, err := e.fetchBlock(addr, h, len(dst))
		if err != nil {
			e.logger.Warnf("request block %d attempt %d from %s failed: %v", pos, attempt, addr, err)
			continue
		}
		if HashBytes(data) != h {
			e.logger.Warnf("request block %d attempt %d from %s: hash mismatch, demoting to missing", pos, attempt, addr)
			continue
		}
		copy(dst, data)
		return true, nil
	}
	return false, nil
}

func (e *TransferEngine) fetchBlock(addr NodeAddr, h Hash, wantLen int) ([]byte, error) {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", addr, BlockServerPort), e.dialTimeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(e.ioTimeout))

	if _, err := conn.Write([]byte{cmdRequest}); err != nil {
		return nil, err
	}
	if _, err := conn.Write(h[:]); err != nil {
		return nil, err
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		return nil, err
	}
	declared := binary.LittleEndian.Uint32(lenBuf[:])
	if int(declared) != wantLen {
		return nil, fmt.Errorf("declared length %d != block size %d", declared, wantLen)
	}

	buf := make([]byte, declared)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
