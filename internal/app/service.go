package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"schsync/internal/bridge"
	"schsync/internal/fault"
	"schsync/internal/host"
	"schsync/internal/ir"
	"schsync/internal/journal"
	"schsync/internal/metrics"
	"schsync/internal/netlist"
	"schsync/internal/reconcile"
	"schsync/internal/schematicmap"
	"schsync/internal/store"
	"schsync/internal/verify"
)

// Journal is the apply history kept per document.
type Journal interface {
	reconcile.Journal
	History(ctx context.Context, documentID string, limit int) ([]journal.Revision, error)
	MappingAt(ctx context.Context, documentID, hash string) (*schematicmap.Map, journal.Revision, error)
}

// Artifacts stores captures and exported netlists.
type Artifacts interface {
	reconcile.Artifacts
	netlist.Artifacts
}

type BridgeStatus interface {
	Status() bridge.Status
}

// Deps wires a Service. Host and KV are required; everything else may be
// left nil to disable it.
type Deps struct {
	Host      host.Host
	KV        store.KV
	StoreName string
	Journal   Journal
	Artifacts Artifacts
	Bridge    BridgeStatus
	Metrics   *metrics.Metrics
	Log       *slog.Logger
}

type Service struct {
	maps      *schematicmap.Store
	engine    *reconcile.Engine
	nets      *verify.Verifier
	netlists  *netlist.Checker
	journal   Journal
	bridge    BridgeStatus
	storeName string
	log       *slog.Logger
	started   time.Time

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func New(deps Deps) *Service {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		maps:      schematicmap.NewStore(deps.KV, log),
		journal:   deps.Journal,
		bridge:    deps.Bridge,
		storeName: deps.StoreName,
		log:       log,
		started:   time.Now(),
		locks:     make(map[string]*sync.Mutex),
	}

	opts := []reconcile.Option{
		reconcile.WithMetrics(deps.Metrics),
		reconcile.WithLogger(log),
		reconcile.WithDocumentLock(s.lockDocument),
	}
	var netlistArtifacts netlist.Artifacts
	if deps.Journal != nil {
		opts = append(opts, reconcile.WithJournal(deps.Journal))
	}
	if deps.Artifacts != nil {
		opts = append(opts, reconcile.WithArtifacts(deps.Artifacts))
		netlistArtifacts = deps.Artifacts
	}
	s.engine = reconcile.New(deps.Host, s.maps, opts...)
	s.nets = verify.New(deps.Host, deps.Metrics, log)
	s.netlists = netlist.NewChecker(deps.Host, netlistArtifacts, deps.Metrics, log)
	return s
}

// lockDocument serializes applies against one document.
func (s *Service) lockDocument(documentID string) func() {
	s.lockMu.Lock()
	lock, ok := s.locks[documentID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[documentID] = lock
	}
	s.lockMu.Unlock()
	lock.Lock()
	return lock.Unlock
}

func (s *Service) Apply(ctx context.Context, d *ir.Description) (*reconcile.Result, error) {
	return s.engine.ApplyDescription(ctx, d, nil)
}

func (s *Service) VerifyNets(ctx context.Context, req verify.Request) (*verify.Report, error) {
	return s.nets.VerifyNets(ctx, req)
}

func (s *Service) VerifyNetlist(ctx context.Context, req netlist.Request) (*netlist.Report, error) {
	return s.netlists.VerifyNetlist(ctx, req)
}

func (s *Service) Documents(ctx context.Context) ([]string, error) {
	return s.maps.Documents(ctx)
}

func (s *Service) Mapping(ctx context.Context, documentID string) (*schematicmap.Map, error) {
	return s.maps.Load(ctx, documentID)
}

func (s *Service) DeleteMapping(ctx context.Context, documentID string) error {
	unlock := s.lockDocument(documentID)
	defer unlock()
	return s.maps.Delete(ctx, documentID)
}

var errJournalDisabled = fault.New(fault.NotSupported, "Apply journal is disabled")

func (s *Service) History(ctx context.Context, documentID string, limit int) ([]journal.Revision, error) {
	if s.journal == nil {
		return nil, errJournalDisabled
	}
	return s.journal.History(ctx, documentID, limit)
}

type RepairResult struct {
	DocumentID string           `json:"documentId"`
	Revision   journal.Revision `json:"revision"`
	Mapped     int              `json:"mapped"`
}

// RepairMapping restores the stored mapping of a document from the journal,
// at revision or at the latest one when revision is empty.
func (s *Service) RepairMapping(ctx context.Context, documentID, revision string) (*RepairResult, error) {
	if s.journal == nil {
		return nil, errJournalDisabled
	}
	unlock := s.lockDocument(documentID)
	defer unlock()

	m, rev, err := s.journal.MappingAt(ctx, documentID, revision)
	if err != nil {
		return nil, err
	}
	if err := s.maps.Save(ctx, documentID, m); err != nil {
		return nil, err
	}
	s.log.Info("mapping repaired from journal", "document", documentID, "revision", rev.Hash, "mapped", m.Len())
	return &RepairResult{DocumentID: documentID, Revision: rev, Mapped: m.Len()}, nil
}

type Check struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Ready reports whether the mapping store answers and a CAD host is
// connected.
func (s *Service) Ready(ctx context.Context) (bool, map[string]Check) {
	checks := map[string]Check{"store": {Status: "ok"}}
	ready := true
	if err := s.maps.Ping(ctx); err != nil {
		checks["store"] = Check{Status: "error", Error: err.Error()}
		ready = false
	}
	if s.bridge != nil {
		if s.bridge.Status().Connected {
			checks["bridge"] = Check{Status: "ok"}
		} else {
			checks["bridge"] = Check{Status: "error", Error: "no CAD host connected"}
			ready = false
		}
	}
	return ready, checks
}

type StatusReport struct {
	Store          string         `json:"store"`
	JournalEnabled bool           `json:"journalEnabled"`
	UptimeSeconds  int64          `json:"uptimeSeconds"`
	Bridge         *bridge.Status `json:"bridge,omitempty"`
}

func (s *Service) Status() StatusReport {
	st := StatusReport{
		Store:          s.storeName,
		JournalEnabled: s.journal != nil,
		UptimeSeconds:  int64(time.Since(s.started).Seconds()),
	}
	if s.bridge != nil {
		b := s.bridge.Status()
		st.Bridge = &b
	}
	return st
}

// ParseDescription decodes a JSON or YAML request body.
func ParseDescription(body []byte, yaml bool) (*ir.Description, error) {
	if len(body) == 0 {
		return nil, fault.New(fault.InvalidIR, "empty description")
	}
	if yaml {
		return ir.ParseYAML(body)
	}
	return ir.Parse(body)
}
