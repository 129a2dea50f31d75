// Package registry resolves pipeline collaborators from a pretrained model
// directory. Resolution is explicit: every component kind has a registered
// factory, run once before a pipeline is constructed; nothing is looked up
// dynamically on the generation hot path.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/novagen-ai/novagen/internal/logger"
	"github.com/novagen-ai/novagen/pipeline"
)

// IndexName is the manifest file naming each component of a model directory.
const IndexName = "model_index.json"

// Index is the on-disk model manifest.
type Index struct {
	Pipeline   string                   `json:"pipeline"`
	Components map[string]ComponentSpec `json:"components"`
}

// ComponentSpec locates one pretrained component inside the model directory.
type ComponentSpec struct {
	// Class is the declared component class name, recorded for
	// reproducibility.
	Class string `json:"class"`
	// Path is the component subdirectory, relative to the model directory.
	Path string `json:"path"`
	// Options carries component-specific settings (addresses, dtypes, ...).
	Options map[string]any `json:"options,omitempty"`

	// Kind and Dir are filled in during resolution.
	Kind string `json:"-"`
	Dir  string `json:"-"`
}

// Factories builds collaborators from resolved component specs. All four
// must be set; a missing factory is a configuration error, caught before
// any model weights are touched.
type Factories struct {
	TextEncoder func(spec ComponentSpec) (pipeline.TextEncoder, error)
	VAE         func(spec ComponentSpec) (pipeline.VAE, error)
	Transformer func(spec ComponentSpec) (pipeline.Transformer, error)
	Scheduler   func(spec ComponentSpec) (pipeline.Scheduler, error)
}

func (f Factories) validate() error {
	if f.TextEncoder == nil {
		return fmt.Errorf("missing factory: text_encoder")
	}
	if f.VAE == nil {
		return fmt.Errorf("missing factory: vae")
	}
	if f.Transformer == nil {
		return fmt.Errorf("missing factory: transformer")
	}
	if f.Scheduler == nil {
		return fmt.Errorf("missing factory: scheduler")
	}
	return nil
}

// Resolution is the record of a resolved model: the collaborator set ready
// for pipeline.New, plus the class names actually constructed, for
// introspection and reproducibility.
type Resolution struct {
	Config   pipeline.Config
	Pipeline string
	// Resolved maps component kind to the constructed Go type name.
	Resolved map[string]string
	// Declared maps component kind to the class name from the index.
	Declared map[string]string
}

// ModelsDir returns the root directory for named models: $NOVAGEN_MODELS if
// set, otherwise ~/.novagen/models.
func ModelsDir() (string, error) {
	if env := os.Getenv("NOVAGEN_MODELS"); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".novagen", "models"), nil
}

// ResolveModelDir maps a model name or path to a directory containing a
// model index. A path that exists on disk wins; otherwise the name is looked
// up under the models root.
func ResolveModelDir(nameOrPath string) (string, error) {
	if st, err := os.Stat(nameOrPath); err == nil && st.IsDir() {
		return nameOrPath, nil
	}
	root, err := ModelsDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(root, nameOrPath)
	if st, err := os.Stat(dir); err == nil && st.IsDir() {
		return dir, nil
	}
	return "", fmt.Errorf("model %q not found (no such directory, and not under %s)", nameOrPath, root)
}

// LoadIndex reads and validates the model index of a model directory.
func LoadIndex(modelDir string) (*Index, error) {
	data, err := os.ReadFile(filepath.Join(modelDir, IndexName))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", IndexName, err)
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parse %s: %w", IndexName, err)
	}
	for _, kind := range []string{"text_encoder", "vae", "transformer", "scheduler"} {
		if _, ok := idx.Components[kind]; !ok {
			return nil, fmt.Errorf("%s: missing component %q", IndexName, kind)
		}
	}
	return &idx, nil
}

// Resolve loads the model index and runs every factory, returning the
// collaborator set and the resolution record.
func Resolve(modelDir string, factories Factories) (*Resolution, error) {
	if err := factories.validate(); err != nil {
		return nil, err
	}
	idx, err := LoadIndex(modelDir)
	if err != nil {
		return nil, err
	}

	log := logger.Log.Component("registry")
	res := &Resolution{
		Pipeline: idx.Pipeline,
		Resolved: make(map[string]string),
		Declared: make(map[string]string),
	}

	spec := func(kind string) ComponentSpec {
		s := idx.Components[kind]
		s.Kind = kind
		s.Dir = filepath.Join(modelDir, s.Path)
		res.Declared[kind] = s.Class
		return s
	}

	if res.Config.TextEncoder, err = factories.TextEncoder(spec("text_encoder")); err != nil {
		return nil, fmt.Errorf("resolve text_encoder: %w", err)
	}
	if res.Config.VAE, err = factories.VAE(spec("vae")); err != nil {
		return nil, fmt.Errorf("resolve vae: %w", err)
	}
	if res.Config.Transformer, err = factories.Transformer(spec("transformer")); err != nil {
		return nil, fmt.Errorf("resolve transformer: %w", err)
	}
	if res.Config.Scheduler, err = factories.Scheduler(spec("scheduler")); err != nil {
		return nil, fmt.Errorf("resolve scheduler: %w", err)
	}

	res.Resolved["text_encoder"] = fmt.Sprintf("%T", res.Config.TextEncoder)
	res.Resolved["vae"] = fmt.Sprintf("%T", res.Config.VAE)
	res.Resolved["transformer"] = fmt.Sprintf("%T", res.Config.Transformer)
	res.Resolved["scheduler"] = fmt.Sprintf("%T", res.Config.Scheduler)

	log.Info("model resolved",
		"dir", modelDir,
		"pipeline", idx.Pipeline,
		"components", res.Resolved)
	return res, nil
}

// SaveResolution persists the resolution record next to the model index, so
// a later run can see which component implementations produced an output.
func SaveResolution(res *Resolution, path string) error {
	record := map[string]any{
		"pipeline": res.Pipeline,
		"declared": res.Declared,
		"resolved": res.Resolved,
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
