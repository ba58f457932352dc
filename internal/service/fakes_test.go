package service

import (
	"context"
	"sync"
	"time"

	"github.com/Harshitk-cp/updraft/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

// fastTimeouts keeps remote-wait polling tight so timeout paths fail in
// milliseconds instead of minutes.
func fastTimeouts() Timeouts {
	return Timeouts{
		BackupWait:   50 * time.Millisecond,
		OnlineWait:   50 * time.Millisecond,
		VerifyWait:   50 * time.Millisecond,
		PollInterval: time.Millisecond,
	}
}

// fakeCommands is a scriptable Command Channel. onDispatch lets a test
// simulate the agent's asynchronous reaction to each command.
type fakeCommands struct {
	mu          sync.Mutex
	dispatched  []*domain.Command
	rejectTypes map[domain.CommandType]bool
	onDispatch  func(cmd *domain.Command)
}

func newFakeCommands() *fakeCommands {
	return &fakeCommands{rejectTypes: make(map[domain.CommandType]bool)}
}

func (f *fakeCommands) CreateCommand(ctx context.Context, agentID string, cmdType domain.CommandType, params map[string]any) (*domain.Command, error) {
	return &domain.Command{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		Type:      cmdType,
		Params:    params,
		CreatedAt: time.Now(),
	}, nil
}

func (f *fakeCommands) Dispatch(ctx context.Context, cmd *domain.Command) bool {
	f.mu.Lock()
	if f.rejectTypes[cmd.Type] {
		f.mu.Unlock()
		return false
	}
	f.dispatched = append(f.dispatched, cmd)
	hook := f.onDispatch
	f.mu.Unlock()

	if hook != nil {
		hook(cmd)
	}
	return true
}

func (f *fakeCommands) reject(cmdType domain.CommandType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectTypes[cmdType] = true
}

func (f *fakeCommands) sent(cmdType domain.CommandType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.dispatched {
		if c.Type == cmdType {
			n++
		}
	}
	return n
}

// fakeStatus is a scriptable agent status/heartbeat channel.
type fakeStatus struct {
	mu       sync.Mutex
	online   map[string]bool
	versions map[string]string
	backups  map[string]string
}

func newFakeStatus() *fakeStatus {
	return &fakeStatus{
		online:   make(map[string]bool),
		versions: make(map[string]string),
		backups:  make(map[string]string),
	}
}

func (f *fakeStatus) IsOnline(agentID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online[agentID]
}

func (f *fakeStatus) ReportedVersion(agentID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.versions[agentID]
	return v, ok
}

func (f *fakeStatus) ConfirmedBackup(agentID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.backups[agentID]
	return b, ok
}

func (f *fakeStatus) setOnline(agentID string, online bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online[agentID] = online
}

func (f *fakeStatus) setVersion(agentID, version string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.versions[agentID] = version
}

func (f *fakeStatus) setBackup(agentID, ref string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backups[agentID] = ref
}

// fakeFetcher returns canned artifact bytes.
type fakeFetcher struct {
	payload []byte
	err     error
}

func (f *fakeFetcher) Fetch(ctx context.Context, pkg *domain.UpdatePackage) ([]byte, error) {
	return f.payload, f.err
}

// fakeEvents records emitted lifecycle notifications.
type fakeEvents struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeEvents) Emit(event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeEvents) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e == event {
			n++
		}
	}
	return n
}

// staticFeed serves fixed packages per channel, optionally failing some
// channels.
type staticFeed struct {
	mu       sync.Mutex
	packages map[domain.Channel][]domain.UpdatePackage
	fail     map[domain.Channel]error
}

func newStaticFeed() *staticFeed {
	return &staticFeed{
		packages: make(map[domain.Channel][]domain.UpdatePackage),
		fail:     make(map[domain.Channel]error),
	}
}

func (f *staticFeed) List(ctx context.Context, channel domain.Channel) ([]domain.UpdatePackage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[channel]; err != nil {
		return nil, err
	}
	return f.packages[channel], nil
}

func (f *staticFeed) add(pkg domain.UpdatePackage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.packages[pkg.Channel] = append(f.packages[pkg.Channel], pkg)
}

// testEnv wires the full control plane over fakes.
type testEnv struct {
	registry  *VersionRegistry
	catalog   *UpdateCatalog
	jobs      *JobTable
	scheduler *Scheduler
	executor  *Executor
	rollback  *RollbackCoordinator
	commands  *fakeCommands
	status    *fakeStatus
	events    *fakeEvents
	feed      *staticFeed
}

func newTestEnv() *testEnv {
	logger := zap.NewNop()
	persist := NewBestEffortPersist(logger)

	env := &testEnv{
		jobs:     NewJobTable(),
		commands: newFakeCommands(),
		status:   newFakeStatus(),
		events:   &fakeEvents{},
		feed:     newStaticFeed(),
	}

	env.registry = NewVersionRegistry(nil, persist, logger)
	env.catalog = NewUpdateCatalog(env.feed, []domain.Channel{domain.ChannelStable, domain.ChannelBeta}, nil, persist, logger)
	env.executor = NewExecutor(env.jobs, env.registry, env.catalog, &fakeFetcher{payload: []byte("artifact")}, env.commands, env.status, nil, persist, env.events, logger)
	env.executor.SetTimeouts(fastTimeouts())
	env.rollback = NewRollbackCoordinator(env.jobs, env.registry, env.commands, env.status, nil, nil, persist, env.events, logger)
	env.rollback.SetTimeouts(fastTimeouts())
	env.executor.SetRollbackCoordinator(env.rollback)
	env.scheduler = NewScheduler(env.catalog, env.registry, env.jobs, NewEvaluator(nil), env.executor, nil, persist, env.events, logger)
	return env
}

// healthyAgent scripts the fakes so the agent cooperates with every stage:
// backups confirm, restarts come back online, and the agent ends up
// reporting whatever version it was asked to verify or roll back to.
func (env *testEnv) healthyAgent() {
	env.commands.onDispatch = func(cmd *domain.Command) {
		switch cmd.Type {
		case domain.CommandCreateBackup:
			env.status.setBackup(cmd.AgentID, cmd.Params["path"].(string))
		case domain.CommandRestartForUpdate:
			env.status.setOnline(cmd.AgentID, true)
		case domain.CommandVerifyVersion:
			env.status.setVersion(cmd.AgentID, cmd.Params["expected_version"].(string))
		case domain.CommandExecuteRollback:
			env.status.setVersion(cmd.AgentID, cmd.Params["target_version"].(string))
		}
	}
}

func stableAgent(id, version string) *domain.AgentVersion {
	return &domain.AgentVersion{
		AgentID:       id,
		Version:       version,
		Platform:      "linux",
		Architecture:  "amd64",
		UpdateChannel: domain.ChannelStable,
	}
}

func stablePackage(id, version string) domain.UpdatePackage {
	return domain.UpdatePackage{
		ID:                id,
		Version:           version,
		Channel:           domain.ChannelStable,
		UpdateType:        domain.UpdateSecurity,
		DownloadURL:       "https://cdn.example.com/" + id,
		Checksum:          "deadbeef",
		Compatibility:     domain.Compatibility{Platforms: []string{"linux", "windows"}},
		RollbackSupported: true,
	}
}
