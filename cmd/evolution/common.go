package main

import (
	"go.uber.org/zap"

	"github.com/codenerd-labs/evolution-engine/internal/engine"
)

// openEngine builds an Engine rooted at the global --workspace/--config
// flags. No council oracle or custom history provider is wired here - the
// CLI binary is the minimal operator surface; a host product embedding this
// module supplies its own via internal/engine.Open directly.
func openEngine() (*engine.Engine, error) {
	return engine.Open(workspace, configPath, nil, nil)
}

func zapWorkspace() zap.Field {
	return zap.String("workspace", workspace)
}
