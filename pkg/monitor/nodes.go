package monitor

import (
	"context"

	"go.uber.org/zap"

	"github.com/nanoeti/maps-express/pkg/registry"
)

// NodesMonitor drives the node's registration lifecycle. Register is called
// on server start and Unregister on stop or on entering maintenance.
type NodesMonitor interface {
	Register()
	Unregister()
}

// RegistryNodesMonitor registers against the cluster registry.
type RegistryNodesMonitor struct {
	client *registry.Client
	node   registry.NodeInfo
}

func NewRegistryNodesMonitor(client *registry.Client, host string, port uint) *RegistryNodesMonitor {
	return &RegistryNodesMonitor{
		client: client,
		node:   registry.NodeInfo{ID: host, Host: host, Port: port},
	}
}

func (m *RegistryNodesMonitor) Register() {
	if err := m.client.Register(context.Background(), m.node); err != nil {
		zap.L().Error("node registration failed", zap.Error(err))
		return
	}
	zap.L().Info("node registered", zap.String("node", m.node.ID))
}

func (m *RegistryNodesMonitor) Unregister() {
	if err := m.client.Unregister(context.Background(), m.node); err != nil {
		zap.L().Error("node unregistration failed", zap.Error(err))
		return
	}
	zap.L().Info("node unregistered", zap.String("node", m.node.ID))
}
