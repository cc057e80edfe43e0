package jenkins

import (
	"context"
	"net/url"
)

// API paths consumed by the exporter, relative to the base URL.
const (
	PathQueue         = "/queue"
	PathPluginManager = "/pluginManager"
	PathComputer      = "/computer"
)

// pluginTree limits the plugin manager response to the fields we read.
const pluginTree = "plugins[shortName,version,enabled,hasUpdate]"

// AgentClass is the _class of computers that are build agents rather than
// the built-in controller node.
const AgentClass = "hudson.slaves.SlaveComputer"

// Queue is the /queue payload.
type Queue struct {
	Items []QueueItem `json:"items"`
}

// QueueItem is one pending build in the queue.
type QueueItem struct {
	// InQueueSince is the enqueue time in milliseconds since the epoch.
	InQueueSince int64 `json:"inQueueSince"`
}

// OldestSince returns the smallest InQueueSince across items, and false when
// the queue is empty.
func (q *Queue) OldestSince() (int64, bool) {
	if len(q.Items) == 0 {
		return 0, false
	}
	oldest := q.Items[0].InQueueSince
	for _, it := range q.Items[1:] {
		if it.InQueueSince < oldest {
			oldest = it.InQueueSince
		}
	}
	return oldest, true
}

// PluginList is the /pluginManager payload.
type PluginList struct {
	Plugins []Plugin `json:"plugins"`
}

// Plugin is one installed plugin.
type Plugin struct {
	ShortName string `json:"shortName"`
	Version   string `json:"version"`
	Enabled   bool   `json:"enabled"`
	HasUpdate bool   `json:"hasUpdate"`
}

// ComputerSet is the /computer payload.
type ComputerSet struct {
	Computers []Computer `json:"computer"`
}

// Computer is one node known to Jenkins.
type Computer struct {
	Class              string `json:"_class"`
	DisplayName        string `json:"displayName"`
	Offline            bool   `json:"offline"`
	TemporarilyOffline bool   `json:"temporarilyOffline"`
}

// IsAgent reports whether c is a build agent.
func (c Computer) IsAgent() bool { return c.Class == AgentClass }

// Up reports whether c is online and not temporarily offline.
func (c Computer) Up() bool { return !c.Offline && !c.TemporarilyOffline }

// Agents returns the build agents in s, in API order.
func (s *ComputerSet) Agents() []Computer {
	var out []Computer
	for _, c := range s.Computers {
		if c.IsAgent() {
			out = append(out, c)
		}
	}
	return out
}

// Queue fetches the build queue. The returned Response carries the Jenkins
// version. ok is false if the request failed for any reason.
func (c *Client) Queue(ctx context.Context) (*Queue, *Response, bool) {
	var q Queue
	resp, ok := c.Request(ctx, PathQueue, nil, &q)
	if !ok {
		return nil, nil, false
	}
	return &q, resp, true
}

// Plugins fetches the installed plugins.
func (c *Client) Plugins(ctx context.Context) (*PluginList, bool) {
	var pl PluginList
	params := url.Values{"tree": []string{pluginTree}}
	if _, ok := c.Request(ctx, PathPluginManager, params, &pl); !ok {
		return nil, false
	}
	return &pl, true
}

// Computers fetches the node inventory.
func (c *Client) Computers(ctx context.Context) (*ComputerSet, bool) {
	var cs ComputerSet
	if _, ok := c.Request(ctx, PathComputer, nil, &cs); !ok {
		return nil, false
	}
	return &cs, true
}
