package remote

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/novagen-ai/novagen/internal/registry"
	"github.com/novagen-ai/novagen/pipeline"
	"github.com/novagen-ai/novagen/scheduler"
)

// Defaults for model directories that omit component options.
const (
	defaultNumTokens   = 256
	defaultPatchCount  = 1024
	defaultScaleFactor = 0.18215
)

// schedulerConfigName is the scheduler configuration file inside the
// scheduler component directory.
const schedulerConfigName = "scheduler_config.json"

type schedulerConfig struct {
	NumTrainTimesteps int     `json:"num_train_timesteps"`
	BetaStart         float64 `json:"beta_start"`
	BetaEnd           float64 `json:"beta_end"`
}

// Factories returns a registry factory set whose text encoder, VAE and
// transformer run on model servers. Components declaring the same address
// share one connection. The scheduler is built locally from the component's
// scheduler_config.json.
func Factories() registry.Factories {
	pool := newClientPool()

	return registry.Factories{
		TextEncoder: func(spec registry.ComponentSpec) (pipeline.TextEncoder, error) {
			client, err := pool.get(spec)
			if err != nil {
				return nil, err
			}
			return NewTextEncoder(client, intOption(spec, "num_tokens", defaultNumTokens)), nil
		},
		VAE: func(spec registry.ComponentSpec) (pipeline.VAE, error) {
			client, err := pool.get(spec)
			if err != nil {
				return nil, err
			}
			return NewVAE(client, floatOption(spec, "scale_factor", defaultScaleFactor)), nil
		},
		Transformer: func(spec registry.ComponentSpec) (pipeline.Transformer, error) {
			client, err := pool.get(spec)
			if err != nil {
				return nil, err
			}
			return NewTransformer(client, intOption(spec, "patch_count", defaultPatchCount)), nil
		},
		Scheduler: func(spec registry.ComponentSpec) (pipeline.Scheduler, error) {
			return loadScheduler(spec.Dir)
		},
	}
}

// loadScheduler builds the DDIM sampler from the component directory's
// configuration file.
func loadScheduler(dir string) (pipeline.Scheduler, error) {
	data, err := os.ReadFile(filepath.Join(dir, schedulerConfigName))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", schedulerConfigName, err)
	}
	var cfg schedulerConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", schedulerConfigName, err)
	}
	if cfg.NumTrainTimesteps <= 0 {
		return nil, fmt.Errorf("%s: num_train_timesteps must be positive, got %d", schedulerConfigName, cfg.NumTrainTimesteps)
	}
	if cfg.BetaStart <= 0 || cfg.BetaEnd <= cfg.BetaStart {
		return nil, fmt.Errorf("%s: invalid beta range [%g, %g]", schedulerConfigName, cfg.BetaStart, cfg.BetaEnd)
	}
	return scheduler.NewDDIM(cfg.NumTrainTimesteps, cfg.BetaStart, cfg.BetaEnd), nil
}

// clientPool shares one connection per server address across factories.
type clientPool struct {
	mu      sync.Mutex
	clients map[string]*Client
}

func newClientPool() *clientPool {
	return &clientPool{clients: make(map[string]*Client)}
}

func (p *clientPool) get(spec registry.ComponentSpec) (*Client, error) {
	addr, _ := spec.Options["address"].(string)
	if addr == "" {
		return nil, fmt.Errorf("component %s: missing option %q", spec.Kind, "address")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[addr]; ok {
		return c, nil
	}
	c, err := Dial(addr)
	if err != nil {
		return nil, err
	}
	p.clients[addr] = c
	return c, nil
}

// intOption reads an integer component option, tolerating the float64 values
// encoding/json produces.
func intOption(spec registry.ComponentSpec, key string, def int) int {
	switch v := spec.Options[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

func floatOption(spec registry.ComponentSpec, key string, def float64) float64 {
	switch v := spec.Options[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return def
	}
}
