package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/deemkeen/fedinbox/activitypub"
	"github.com/deemkeen/fedinbox/util"
	"github.com/gin-gonic/gin"
)

const nodeInfoSchema = "http://nodeinfo.diaspora.software/ns/schema/2.0"

// NodeInfo20 represents the NodeInfo 2.0 schema
// See: https://nodeinfo.diaspora.software/schema.html
type NodeInfo20 struct {
	Version           string           `json:"version"`
	Software          NodeInfoSoftware `json:"software"`
	Protocols         []string         `json:"protocols"`
	Services          NodeInfoServices `json:"services"`
	OpenRegistrations bool             `json:"openRegistrations"`
	Usage             NodeInfoUsage    `json:"usage"`
	Metadata          NodeInfoMetadata `json:"metadata"`
}

type NodeInfoSoftware struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type NodeInfoServices struct {
	Inbound  []string `json:"inbound"`
	Outbound []string `json:"outbound"`
}

type NodeInfoUsage struct {
	Users      NodeInfoUsers `json:"users"`
	LocalPosts int           `json:"localPosts"`
}

type NodeInfoUsers struct {
	Total int `json:"total"`
}

type NodeInfoMetadata struct {
	NodeName string `json:"nodeName"`
}

// WellKnownNodeInfo represents the /.well-known/nodeinfo response
type WellKnownNodeInfo struct {
	Links []NodeInfoLink `json:"links"`
}

type NodeInfoLink struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

// Counter is the statistics source for nodeinfo
type Counter interface {
	CountLocalAccounts(ctx context.Context) (int, error)
	CountLocalStatuses(ctx context.Context) (int, error)
}

// GetNodeInfo20 builds the NodeInfo 2.0 document. Failed counts are logged
// and reported as zero.
func GetNodeInfo20(ctx context.Context, counter Counter, tags *activitypub.TagManager) NodeInfo20 {
	totalUsers, err := counter.CountLocalAccounts(ctx)
	if err != nil {
		slog.Warn("failed to count accounts", "err", err)
		totalUsers = 0
	}

	localPosts, err := counter.CountLocalStatuses(ctx)
	if err != nil {
		slog.Warn("failed to count local statuses", "err", err)
		localPosts = 0
	}

	return NodeInfo20{
		Version: "2.0",
		Software: NodeInfoSoftware{
			Name:    util.Name,
			Version: util.GetVersion(),
		},
		Protocols: []string{"activitypub"},
		Services: NodeInfoServices{
			Inbound:  []string{},
			Outbound: []string{},
		},
		OpenRegistrations: false,
		Usage: NodeInfoUsage{
			Users:      NodeInfoUsers{Total: totalUsers},
			LocalPosts: localPosts,
		},
		Metadata: NodeInfoMetadata{NodeName: tags.LocalDomain()},
	}
}

// GetWellKnownNodeInfo returns the /.well-known/nodeinfo discovery document
func GetWellKnownNodeInfo(webHost string) WellKnownNodeInfo {
	return WellKnownNodeInfo{
		Links: []NodeInfoLink{
			{
				Rel:  nodeInfoSchema,
				Href: "https://" + webHost + "/nodeinfo/2.0",
			},
		},
	}
}

type nodeInfoHandler struct {
	counter Counter
	tags    *activitypub.TagManager
	webHost string
}

func (h *nodeInfoHandler) wellKnown(c *gin.Context) {
	c.JSON(http.StatusOK, GetWellKnownNodeInfo(h.webHost))
}

func (h *nodeInfoHandler) nodeInfo(c *gin.Context) {
	c.Header("Content-Type", "application/json; profile=\""+nodeInfoSchema+"#\"")
	c.JSON(http.StatusOK, GetNodeInfo20(c.Request.Context(), h.counter, h.tags))
}
