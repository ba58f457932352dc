package command

import (
	"context"
	"sync"
	"time"

	"github.com/Harshitk-cp/updraft/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultMaxQueued = 100

// Queue is a per-agent FIFO of pending commands. Agents poll their queue
// over HTTP and acknowledge commands once executed; the control plane
// never pushes, it only enqueues.
type Queue struct {
	mu      sync.Mutex
	pending map[string][]*domain.Command

	maxQueued int
	logger    *zap.Logger
}

func NewQueue(logger *zap.Logger) *Queue {
	return &Queue{
		pending:   make(map[string][]*domain.Command),
		maxQueued: defaultMaxQueued,
		logger:    logger,
	}
}

// CreateCommand builds a new command bound for an agent.
func (q *Queue) CreateCommand(ctx context.Context, agentID string, cmdType domain.CommandType, params map[string]any) (*domain.Command, error) {
	return &domain.Command{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		Type:      cmdType,
		Params:    params,
		CreatedAt: time.Now(),
	}, nil
}

// Dispatch enqueues the command for its agent. It returns false when the
// agent's queue is full, which the caller treats as a rejected command.
func (q *Queue) Dispatch(ctx context.Context, cmd *domain.Command) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending[cmd.AgentID]) >= q.maxQueued {
		q.logger.Warn("command queue full, rejecting",
			zap.String("agent_id", cmd.AgentID),
			zap.String("type", string(cmd.Type)))
		return false
	}

	q.pending[cmd.AgentID] = append(q.pending[cmd.AgentID], cmd)
	q.logger.Debug("command queued",
		zap.String("agent_id", cmd.AgentID),
		zap.String("command_id", cmd.ID),
		zap.String("type", string(cmd.Type)))
	return true
}

// Poll returns the agent's pending commands without removing them; a
// command leaves the queue only on Ack, so a crashed agent sees it again.
func (q *Queue) Poll(agentID string) []*domain.Command {
	q.mu.Lock()
	defer q.mu.Unlock()

	cmds := q.pending[agentID]
	out := make([]*domain.Command, len(cmds))
	copy(out, cmds)
	return out
}

// Ack removes one command from the agent's queue.
func (q *Queue) Ack(agentID, commandID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	cmds := q.pending[agentID]
	for i, cmd := range cmds {
		if cmd.ID == commandID {
			q.pending[agentID] = append(cmds[:i], cmds[i+1:]...)
			return true
		}
	}
	return false
}

// PendingCount returns how many commands are queued for an agent.
func (q *Queue) PendingCount(agentID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending[agentID])
}
