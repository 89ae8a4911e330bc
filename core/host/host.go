// Package host executes signed invocations against the vault and token
// modules. Each invocation runs against its own state transaction: it either
// commits every write in one batch and then publishes its events, or it
// leaves no trace at all.
package host

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"epochvault/core/auth"
	"epochvault/core/events"
	"epochvault/core/state"
	"epochvault/core/types"
	"epochvault/crypto"
	"epochvault/indexer"
	"epochvault/native/bank"
	nativecommon "epochvault/native/common"
	"epochvault/native/vault"
	"epochvault/observability"
	telemetry "epochvault/observability/otel"
	"epochvault/storage"
)

var (
	ErrNilInvocation   = errors.New("host: invocation required")
	ErrChainIDMismatch = errors.New("host: chain id mismatch")
	ErrReplay          = errors.New("host: invocation already executed")
	ErrUnknownMethod   = errors.New("host: unknown method")
	ErrInvalidArgs     = errors.New("host: invalid arguments")
	ErrNoSigners       = errors.New("host: invocation carries no signatures")
)

var replayPrefix = []byte("host/replay/")

// Receipt reports the outcome of one invocation. Failed invocations carry the
// vault error code when the failure came from the vault taxonomy.
type Receipt struct {
	Digest   string          `json:"digest"`
	Method   string          `json:"method"`
	OK       bool            `json:"ok"`
	Code     uint32          `json:"code,omitempty"`
	CodeName string          `json:"codeName,omitempty"`
	Error    string          `json:"error,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	Events   []*types.Event  `json:"events"`
}

// Archive persists receipts after execution.
type Archive interface {
	Record(ctx context.Context, entry indexer.Entry) error
}

// Options configures a Host.
type Options struct {
	ChainID   uint64
	VaultSeed string
	Pauses    nativecommon.PauseView
	Logger    *slog.Logger
}

// Host serialises invocations over a single store.
type Host struct {
	mu sync.Mutex

	db        storage.Database
	chainID   uint64
	vaultAddr [20]byte
	pauses    nativecommon.PauseView
	logger    *slog.Logger
	emitter   events.Emitter
	archive   Archive
	now       func() time.Time
}

// New creates a host over db.
func New(db storage.Database, opts Options) *Host {
	seed := opts.VaultSeed
	if seed == "" {
		seed = "vault"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{
		db:        db,
		chainID:   opts.ChainID,
		vaultAddr: crypto.ModuleAddress(seed),
		pauses:    opts.Pauses,
		logger:    logger,
		emitter:   events.NoopEmitter{},
		now:       time.Now,
	}
}

// ChainID returns the chain id invocations must be signed for.
func (h *Host) ChainID() uint64 { return h.chainID }

// VaultAddress returns the vault module account.
func (h *Host) VaultAddress() [20]byte { return h.vaultAddr }

// SetEmitter configures where committed events are published. Passing nil
// resets the emitter to a no-op implementation.
func (h *Host) SetEmitter(emitter events.Emitter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if emitter == nil {
		h.emitter = events.NoopEmitter{}
		return
	}
	h.emitter = emitter
}

// SetArchive configures the receipt archive. nil disables archiving.
func (h *Host) SetArchive(archive Archive) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.archive = archive
}

func replayKey(digest [32]byte) []byte {
	key := make([]byte, 0, len(replayPrefix)+len(digest))
	key = append(key, replayPrefix...)
	return append(key, digest[:]...)
}

// execution bundles the per-invocation capabilities.
type execution struct {
	state  *state.Manager
	ledger *bank.Ledger
	vault  *vault.Engine
	pauses nativecommon.PauseView
}

func (h *Host) newExecution(signers [][20]byte) (*execution, *events.Buffer) {
	mgr := state.NewManager(h.db)
	authCtx := auth.NewContext(signers...)
	buf := &events.Buffer{}

	ledger := bank.NewLedger(mgr, authCtx)
	ledger.SetEmitter(buf)

	engine := vault.NewEngine(h.vaultAddr)
	engine.SetState(mgr)
	engine.SetTokens(ledger)
	engine.SetAuthorizer(authCtx)
	engine.SetEmitter(buf)
	engine.SetPauses(h.pauses)

	return &execution{state: mgr, ledger: ledger, vault: engine, pauses: h.pauses}, buf
}

// Invoke verifies and executes one signed invocation. A returned error means
// the invocation was rejected before execution or could not be persisted;
// execution failures are reported through a receipt with OK unset and leave
// state untouched.
func (h *Host) Invoke(ctx context.Context, inv *auth.Invocation) (*Receipt, error) {
	if inv == nil {
		return nil, ErrNilInvocation
	}
	ctx, span := telemetry.Tracer().Start(ctx, "host.Invoke", trace.WithAttributes(
		attribute.String("vault.method", inv.Method),
	))
	defer span.End()

	receipt, err := h.invoke(ctx, inv)
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case !receipt.OK:
		span.SetStatus(codes.Error, receipt.CodeName)
	}
	return receipt, err
}

func (h *Host) invoke(ctx context.Context, inv *auth.Invocation) (*Receipt, error) {
	start := h.now()
	h.mu.Lock()
	defer h.mu.Unlock()

	if inv.ChainID != h.chainID {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrChainIDMismatch, inv.ChainID, h.chainID)
	}
	digest, err := inv.Digest()
	if err != nil {
		return nil, err
	}
	if len(inv.Signatures) == 0 {
		return nil, ErrNoSigners
	}
	signers, err := inv.Signers()
	if err != nil {
		return nil, err
	}
	handler, ok := methods[inv.Method]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, inv.Method)
	}

	exec, buf := h.newExecution(signers)
	seen, err := exec.state.KVHas(replayKey(digest))
	if err != nil {
		return nil, err
	}
	if seen {
		return nil, fmt.Errorf("%w: 0x%s", ErrReplay, hex.EncodeToString(digest[:]))
	}

	receipt := &Receipt{
		Digest: "0x" + hex.EncodeToString(digest[:]),
		Method: inv.Method,
		Events: []*types.Event{},
	}

	result, execErr := handler(exec, inv.Args)
	if errors.Is(execErr, ErrInvalidArgs) {
		exec.state.Discard()
		return nil, execErr
	}
	if execErr != nil {
		exec.state.Discard()
		buf.Drain()
		receipt.Error = execErr.Error()
		if code, ok := classify(execErr); ok {
			receipt.Code = uint32(code)
			receipt.CodeName = code.String()
		} else {
			receipt.CodeName = "Internal"
		}
		h.finish(ctx, receipt, start)
		return receipt, nil
	}

	if result != nil {
		encoded, err := json.Marshal(result)
		if err != nil {
			exec.state.Discard()
			return nil, fmt.Errorf("host: encode result: %w", err)
		}
		receipt.Result = encoded
	}
	if err := exec.state.KVPut(replayKey(digest), inv.Nonce); err != nil {
		exec.state.Discard()
		return nil, err
	}
	writes := exec.state.Dirty()
	if err := exec.state.Commit(); err != nil {
		return nil, fmt.Errorf("host: commit: %w", err)
	}
	h.logger.Debug("state committed", slog.String("digest", receipt.Digest), slog.Int("writes", writes))

	receipt.OK = true
	emitted := buf.Drain()
	for _, evt := range emitted {
		receipt.Events = append(receipt.Events, events.Render(evt))
		h.emitter.Emit(evt)
	}
	h.recordVaultMetrics(exec, emitted)
	h.finish(ctx, receipt, start)
	return receipt, nil
}

// classify maps an execution failure onto the stable code table. Token
// methods fail with bank and auth errors directly, without the vault wrapper.
func classify(err error) (vault.Code, bool) {
	if code, ok := vault.CodeOf(err); ok {
		return code, true
	}
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return vault.CodeUnauthorized, true
	case errors.Is(err, nativecommon.ErrModulePaused):
		return vault.CodeModulePaused, true
	case errors.Is(err, bank.ErrInsufficientBalance),
		errors.Is(err, bank.ErrInsufficientAllowance),
		errors.Is(err, bank.ErrUnknownToken),
		errors.Is(err, bank.ErrNegativeAmount),
		errors.Is(err, bank.ErrBalanceOverflow):
		return vault.CodeTokenTransferFailed, true
	}
	return 0, false
}

func (h *Host) finish(ctx context.Context, receipt *Receipt, start time.Time) {
	observability.Invocations().Observe(receipt.Method, receipt.CodeName, h.now().Sub(start))
	if receipt.OK {
		h.logger.Info("invocation committed",
			slog.String("method", receipt.Method),
			slog.String("digest", receipt.Digest),
			slog.Int("events", len(receipt.Events)))
	} else {
		h.logger.Warn("invocation failed",
			slog.String("method", receipt.Method),
			slog.String("digest", receipt.Digest),
			slog.String("code", receipt.CodeName),
			slog.String("error", receipt.Error))
	}
	if h.archive == nil {
		return
	}
	entry := indexer.Entry{
		Digest: receipt.Digest,
		Method: receipt.Method,
		OK:     receipt.OK,
		Code:   receipt.CodeName,
		Error:  receipt.Error,
		Events: receipt.Events,
	}
	if err := h.archive.Record(ctx, entry); err != nil {
		h.logger.Error("archive receipt", slog.String("digest", receipt.Digest), slog.Any("error", err))
	}
}

func (h *Host) recordVaultMetrics(exec *execution, emitted []events.Event) {
	vm := observability.Vault()
	em := observability.Events()
	touchedVault := false
	for _, evt := range emitted {
		em.RecordEvent(evt.EventType())
		switch e := evt.(type) {
		case bank.TransferEvent:
			em.RecordTransfer(e.Token)
		case vault.RedeemRequestedEvent:
			vm.RecordRequest("filed")
			touchedVault = true
		case vault.RequestCancelledEvent:
			vm.RecordRequest("cancelled")
			touchedVault = true
		case vault.RequestClaimedEvent:
			vm.RecordRequest("claimed")
			vm.RecordClaim(e.Payout, e.Auto)
		case vault.EpochSettledEvent:
			vm.RecordSettlement(uint32(e.Rate))
			touchedVault = true
		case vault.InitializedEvent:
			touchedVault = true
		}
	}
	if !touchedVault {
		return
	}
	epochID, err := exec.vault.EpochID()
	if err != nil {
		return
	}
	pool, err := exec.vault.TotalRedeem()
	if err != nil {
		return
	}
	vm.SetEpoch(epochID, pool)
}
