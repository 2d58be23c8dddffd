package server

import (
	"fmt"

	"github.com/rathix/devproxy/internal/config"
	"github.com/rathix/devproxy/internal/proxy"
)

// FrontendRuleName labels frontend traffic in logs and metrics.
const FrontendRuleName = "frontend"

// NewFrontendProxy forwards every request to an external frontend dev server,
// including its HMR websocket upgrades.
func NewFrontendProxy(target string, opts proxy.Options) (*proxy.Handler, error) {
	rule, err := proxy.Compile(config.ProxyRule{
		Name:         FrontendRuleName,
		Prefix:       "/",
		Target:       target,
		ChangeOrigin: true,
	})
	if err != nil {
		return nil, fmt.Errorf("frontend proxy: %w", err)
	}
	return proxy.NewHandler(rule, opts), nil
}
