package temporal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	taskqueuepb "go.temporal.io/api/taskqueue/v1"
	workflowservicepb "go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
	"go.uber.org/zap"

	"github.com/canopy-network/payoutx/pkg/config"
)

type Client struct {
	TClient   client.Client
	Namespace string

	// IndexerQueue is a format string taking the chain name, e.g. "index:%s".
	IndexerQueue string
	// IndexChainWorkflowID is a format string taking the chain name.
	IndexChainWorkflowID string
}

type Health struct {
	ConnectionOK bool                      `json:"connection_ok"`
	IndexerQueue []*taskqueuepb.PollerInfo `json:"indexer_queue"`
}

// NewClient dials Temporal and checks the connection before returning.
func NewClient(ctx context.Context, logger *zap.Logger, cfg config.TemporalConfig) (*Client, error) {
	logger.Info("Connecting to Temporal", zap.String("host", cfg.HostPort), zap.String("namespace", cfg.Namespace))
	tClient, err := Dial(ctx, cfg.HostPort, cfg.Namespace, NewZapAdapter(logger))
	if err != nil {
		return nil, err
	}
	if _, err = tClient.CheckHealth(ctx, nil); err != nil {
		tClient.Close()
		return nil, err
	}
	return New(tClient, cfg), nil
}

// New wraps an already connected client.
func New(tClient client.Client, cfg config.TemporalConfig) *Client {
	queue := cfg.TaskQueue
	if queue == "" {
		queue = "index:%s"
	}
	return &Client{
		TClient:              tClient,
		Namespace:            cfg.Namespace,
		IndexerQueue:         queue,
		IndexChainWorkflowID: "%s:index-chain",
	}
}

// Dial connects to Temporal using the provided hostPort and namespace.
func Dial(ctx context.Context, hostPort, namespace string, logger log.Logger) (client.Client, error) {
	return client.DialContext(
		ctx,
		client.Options{
			HostPort:  hostPort,
			Namespace: namespace,
			Logger:    logger,
		},
	)
}

// GetIndexerQueue returns the task queue of the given chain.
func (c *Client) GetIndexerQueue(chain string) string {
	return formatChain(c.IndexerQueue, chain)
}

// GetIndexChainWorkflowID returns the id of the single indexing workflow of a chain.
func (c *Client) GetIndexChainWorkflowID(chain string) string {
	return formatChain(c.IndexChainWorkflowID, chain)
}

func formatChain(format, chain string) string {
	if format == "" {
		return chain
	}
	return fmt.Sprintf(format, chain)
}

// IsAlreadyStarted reports whether err says the workflow id is already running.
func IsAlreadyStarted(err error) bool {
	var started *serviceerror.WorkflowExecutionAlreadyStarted
	return errors.As(err, &started)
}

// Health returns the health of the Temporal client and the pollers of the chain queue.
func (c *Client) Health(ctx context.Context, chain string) (Health, error) {
	h := Health{ConnectionOK: true}
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	if _, err := c.TClient.CheckHealth(ctx, nil); err != nil {
		h.ConnectionOK = false
		return h, err
	}
	svc := c.TClient.WorkflowService()
	if svc != nil {
		if rep, err := svc.DescribeTaskQueue(ctx, &workflowservicepb.DescribeTaskQueueRequest{
			Namespace:     c.Namespace,
			TaskQueue:     &taskqueuepb.TaskQueue{Name: c.GetIndexerQueue(chain)},
			TaskQueueType: enums.TASK_QUEUE_TYPE_WORKFLOW,
		}); err == nil {
			h.IndexerQueue = rep.GetPollers()
		}
	}
	return h, nil
}
