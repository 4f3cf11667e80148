package core

import (
	"context"
	"encoding/binary"
	"io"

	"github.com/bits-and-blooms/bitset"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Orchestrator sequences the insert and request flows (§4.E) over a
// GraphTable and TransferEngine, reading the client's request from r and
// writing the client's response to w.
type Orchestrator struct {
	graphs  *GraphTable
	engine  *TransferEngine
	cipher  Cipher
	logger  *logrus.Logger
	metrics *Metrics
}

// OrchestratorConfig configures an Orchestrator.
type OrchestratorConfig struct {
	Graphs  *GraphTable
	Engine  *TransferEngine
	Cipher  Cipher // nil defaults to DefaultCipher
	Logger  *logrus.Logger
	Metrics *Metrics
}

// NewOrchestrator constructs an Orchestrator from cfg.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Cipher == nil {
		cfg.Cipher = DefaultCipher
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NopMetrics()
	}
	return &Orchestrator{
		graphs:  cfg.Graphs,
		engine:  cfg.Engine,
		cipher:  cfg.Cipher,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// Insert runs the insert flow (§4.E steps 1-9): read the plaintext from r,
// pad, encrypt, encode check blocks, hash everything, write the resulting
// URI to w, then fan the object out across the fleet.
func (o *Orchestrator) Insert(ctx context.Context, r io.Reader, w io.Writer) error {
	opID := uuid.New().String()

	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return ErrClientIO
	}
	l := int(binary.LittleEndian.Uint32(lenBuf[:]))
	o.logger.Infof("insert[%s]: plaintext length %d", opID, l)

	d, c, b, err := deriveDC(o.graphs, l)
	if err != nil {
		return err
	}
	graph, err := o.graphs.Graph(d)
	if err != nil {
		return err
	}

	obj := make([]byte, (d+c)*b)
	if _, err := io.ReadFull(r, obj[:l]); err != nil {
		return ErrClientIO
	}

	h0 := HashBytes(obj[:l])
	encLen := paddedLen(l)
	if err := o.cipher.Encrypt(obj[:encLen], encLen, h0); err != nil {
		return err
	}

	Encode(graph, obj, b)

	hashes := make([]Hash, 1+d+c)
	hashes[0] = h0
	for p := 0; p < d+c; p++ {
		hashes[1+p] = HashBytes(blockSlice(obj, b, p))
	}
	uri := &URI{L: l, Hashes: hashes}

	if _, err := w.Write(uri.Pack()); err != nil {
		return ErrClientIO
	}

	o.logger.Infof("insert[%s]: fanning out %d blocks, uri %s", opID, d+c, uri)
	return o.engine.FanoutInsert(ctx, obj, nil, d+c, b, hashes[1:])
}

// Request runs the request flow (§4.E steps 1-8): read the URI from r,
// fan out block requests, decode any gaps, verify integrity, and write
// the recovered plaintext to w. Reconstructed positions are re-inserted
// into the fleet before returning.
func (o *Orchestrator) Request(ctx context.Context, r io.Reader, w io.Writer) error {
	opID := uuid.New().String()

	uri, err := ReadURI(r)
	if err != nil {
		return err
	}
	o.logger.Infof("request[%s]: uri %s", opID, uri)

	d, c, b, err := deriveDC(o.graphs, uri.L)
	if err != nil {
		return err
	}
	if len(uri.Hashes) != 1+d+c {
		return ErrMalformedURI
	}
	graph, err := o.graphs.Graph(d)
	if err != nil {
		return err
	}

	obj := make([]byte, (d+c)*b)
	have := bitset.New(uint(d + c))

	if err := o.engine.FanoutRequest(ctx, obj, have, d+c, b, uri.Hashes[1:]); err != nil {
		return err
	}
	haveOriginal := have.Clone()

	if have.Count() < uint(d+c) {
		result, err := Decode(graph, obj, b, have)
		o.metrics.DecodeFixpoint.Inc()
		if err != nil {
			return ErrIrrecoverable
		}
		o.logger.Infof("request[%s]: decode recovered %d positions", opID, len(result.Recovered))
	}

	// §4.E step 7: every position decode reconstructed (missing in
	// have_original) must still hash to its URI entry. H_i is the hash of
	// the block as stored on the fleet, i.e. the encrypted bytes for data
	// positions — this check must run against obj before Decrypt below
	// turns the data region into plaintext, or it would compare decrypted
	// bytes against an encrypted-bytes hash and spuriously fail.
	reinsertCount := uint(0)
	for p := uint(0); p < uint(d+c); p++ {
		if haveOriginal.Test(p) {
			continue
		}
		if HashBytes(blockSlice(obj, b, int(p))) != uri.BlockHash(int(p)) {
			return ErrIntegrity
		}
		reinsertCount++
	}

	// Snapshot the as-stored (still encrypted) object now, before Decrypt
	// mutates the data region in place, so the fleet re-insert below sends
	// back the same bytes the URI's hashes describe rather than plaintext.
	var reinsertObj []byte
	if reinsertCount > 0 {
		reinsertObj = append([]byte(nil), obj...)
	}

	encLen := paddedLen(uri.L)
	if err := o.cipher.Decrypt(obj[:encLen], encLen, uri.H0()); err != nil {
		return err
	}
	if HashBytes(obj[:uri.L]) != uri.H0() {
		return ErrIntegrity
	}

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(uri.L))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return ErrClientIO
	}
	if _, err := w.Write(obj[:uri.L]); err != nil {
		return ErrClientIO
	}

	if reinsertCount == 0 {
		return nil
	}
	o.metrics.Reinserts.Add(float64(reinsertCount))

	// mask_skip = have_original (§4.E step 8): only the positions decode
	// reconstructed, i.e. everything that was NOT fetched directly, goes
	// back out.
	return o.engine.FanoutInsert(ctx, reinsertObj, haveOriginal, d+c, b, uri.Hashes[1:])
}
