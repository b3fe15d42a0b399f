package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"go.uber.org/multierr"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/pos-agent/pkg/config"
	"github.com/angelmondragon/pos-agent/pkg/logger"
)

var errProjectIDRequired = errors.New("gcp project id is required")

// Client connects a till to the back office: it receives trigger-sync
// commands and publishes sync outcomes. Either side may be left unconfigured.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig

	once       sync.Once
	subscriber *pubsub.Subscriber
	publisher  *pubsub.Publisher
}

func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}

	psClient, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{client: psClient, projectID: projectID, cfg: cfg}

	if err := c.verify(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"subscription": c.subscriptionResourceName(cfg.SyncTriggerSubscription),
			"topic":        c.topicResourceName(cfg.SyncEventsTopic),
		}), "back-office channel ready")
	}
	return c, nil
}

// verify checks every configured resource and reports all that are missing.
func (c *Client) verify(ctx context.Context) error {
	var errs error
	if name := c.subscriptionResourceName(c.cfg.SyncTriggerSubscription); name != "" {
		_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: name})
		errs = multierr.Append(errs, lookupError("subscription", name, err))
	}
	if name := c.topicResourceName(c.cfg.SyncEventsTopic); name != "" {
		_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
		errs = multierr.Append(errs, lookupError("topic", name, err))
	}
	return errs
}

func lookupError(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %q does not exist", kind, name)
	default:
		return fmt.Errorf("checking %s %q: %w", kind, name, err)
	}
}

func (c *Client) handles() {
	c.once.Do(func() {
		if name := c.subscriptionResourceName(c.cfg.SyncTriggerSubscription); name != "" {
			c.subscriber = c.client.Subscriber(name)
			// one command at a time; a pass is sequential anyway
			c.subscriber.ReceiveSettings.MaxOutstandingMessages = 1
		}
		if name := c.topicResourceName(c.cfg.SyncEventsTopic); name != "" {
			c.publisher = c.client.Publisher(name)
		}
	})
}

// SyncTriggerSubscription returns the subscriber for back-office sync
// commands, or nil when none is configured.
func (c *Client) SyncTriggerSubscription() *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	c.handles()
	return c.subscriber
}

// SyncEventsPublisher returns the shared publisher for sync outcomes, or nil
// when no topic is configured.
func (c *Client) SyncEventsPublisher() *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	c.handles()
	return c.publisher
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	return c.verify(ctx)
}

// Close flushes pending sync events before closing the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	if c.publisher != nil {
		c.publisher.Stop()
	}
	return c.client.Close()
}

func (c *Client) subscriptionResourceName(name string) string {
	return resourceName(c.projectID, name, "subscriptions")
}

func (c *Client) topicResourceName(name string) string {
	return resourceName(c.projectID, name, "topics")
}

// resourceName accepts a short name or an already qualified one.
func resourceName(projectID, name, kind string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+kind+"/") {
		return name
	}
	if projectID = strings.TrimSpace(projectID); projectID == "" {
		return ""
	}
	return "projects/" + projectID + "/" + kind + "/" + name
}
