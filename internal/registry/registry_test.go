package registry

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/gomlx/types/tensors"

	"github.com/novagen-ai/novagen/pipeline"
)

type stubEncoder struct{}

func (stubEncoder) EncodePrompts(ctx context.Context, prompts []string) (*tensors.Tensor, error) {
	return nil, nil
}
func (stubEncoder) NumTokens() int { return 256 }

type stubVAE struct{}

func (stubVAE) Encode(ctx context.Context, pixels *tensors.Tensor, generator *rand.Rand) (*tensors.Tensor, error) {
	return nil, nil
}
func (stubVAE) Decode(ctx context.Context, latent *tensors.Tensor) (*tensors.Tensor, error) {
	return nil, nil
}
func (stubVAE) Scale(latent *tensors.Tensor) *tensors.Tensor { return latent }
func (stubVAE) ScaleFactor() float64                         { return 1 }

type stubTransformer struct{}

func (stubTransformer) PatchCount() int                     { return 64 }
func (stubTransformer) SetScheduler(s pipeline.Scheduler)   {}
func (stubTransformer) Generate(ctx context.Context, inputs *pipeline.GenerationInputs) (*pipeline.GenerationOutputs, error) {
	return nil, nil
}
func (stubTransformer) Postprocess(ctx context.Context, outputs *pipeline.GenerationOutputs, pctx *pipeline.PostprocessContext) error {
	return nil
}

type stubScheduler struct{}

func (stubScheduler) SetTimesteps(numSteps int) []int { return nil }
func (stubScheduler) Step(modelOutput *tensors.Tensor, timestep int, sample *tensors.Tensor) *tensors.Tensor {
	return sample
}

func stubFactories() Factories {
	return Factories{
		TextEncoder: func(spec ComponentSpec) (pipeline.TextEncoder, error) { return stubEncoder{}, nil },
		VAE:         func(spec ComponentSpec) (pipeline.VAE, error) { return stubVAE{}, nil },
		Transformer: func(spec ComponentSpec) (pipeline.Transformer, error) { return stubTransformer{}, nil },
		Scheduler:   func(spec ComponentSpec) (pipeline.Scheduler, error) { return stubScheduler{}, nil },
	}
}

const testIndex = `{
  "pipeline": "NOVAPipeline",
  "components": {
    "text_encoder": {"class": "PhiModel", "path": "text_encoder", "options": {"num_tokens": 77}},
    "vae": {"class": "AutoencoderKL", "path": "vae"},
    "transformer": {"class": "NOVATransformer", "path": "transformer"},
    "scheduler": {"class": "DDIMScheduler", "path": "scheduler"}
  }
}`

func writeTestModel(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, IndexName), []byte(testIndex), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
	return dir
}

func TestLoadIndex(t *testing.T) {
	dir := writeTestModel(t)
	idx, err := LoadIndex(dir)
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	if idx.Pipeline != "NOVAPipeline" {
		t.Errorf("expected pipeline NOVAPipeline, got %q", idx.Pipeline)
	}
	if got := idx.Components["text_encoder"].Class; got != "PhiModel" {
		t.Errorf("expected text_encoder class PhiModel, got %q", got)
	}
}

func TestLoadIndexMissingComponent(t *testing.T) {
	dir := t.TempDir()
	partial := `{"pipeline": "NOVAPipeline", "components": {"vae": {"class": "AutoencoderKL", "path": "vae"}}}`
	if err := os.WriteFile(filepath.Join(dir, IndexName), []byte(partial), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
	if _, err := LoadIndex(dir); err == nil {
		t.Fatal("expected error for missing components")
	}
}

func TestLoadIndexMissingFile(t *testing.T) {
	if _, err := LoadIndex(t.TempDir()); err == nil {
		t.Fatal("expected error for missing index file")
	}
}

func TestResolve(t *testing.T) {
	dir := writeTestModel(t)
	res, err := Resolve(dir, stubFactories())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Config.TextEncoder == nil || res.Config.VAE == nil || res.Config.Transformer == nil || res.Config.Scheduler == nil {
		t.Fatal("expected all collaborators resolved")
	}
	if res.Declared["scheduler"] != "DDIMScheduler" {
		t.Errorf("expected declared scheduler DDIMScheduler, got %q", res.Declared["scheduler"])
	}
	if res.Resolved["text_encoder"] == "" {
		t.Error("expected resolved type name for text_encoder")
	}
}

func TestResolvePassesSpecDirAndOptions(t *testing.T) {
	dir := writeTestModel(t)
	var seen ComponentSpec
	f := stubFactories()
	f.TextEncoder = func(spec ComponentSpec) (pipeline.TextEncoder, error) {
		seen = spec
		return stubEncoder{}, nil
	}
	if _, err := Resolve(dir, f); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if seen.Kind != "text_encoder" {
		t.Errorf("expected kind text_encoder, got %q", seen.Kind)
	}
	if want := filepath.Join(dir, "text_encoder"); seen.Dir != want {
		t.Errorf("expected dir %q, got %q", want, seen.Dir)
	}
	if v, ok := seen.Options["num_tokens"].(float64); !ok || v != 77 {
		t.Errorf("expected num_tokens option 77, got %v", seen.Options["num_tokens"])
	}
}

func TestResolveMissingFactory(t *testing.T) {
	dir := writeTestModel(t)
	f := stubFactories()
	f.Scheduler = nil
	if _, err := Resolve(dir, f); err == nil {
		t.Fatal("expected error for missing scheduler factory")
	}
}

func TestResolveModelDirPrefersExistingPath(t *testing.T) {
	dir := writeTestModel(t)
	got, err := ResolveModelDir(dir)
	if err != nil {
		t.Fatalf("ResolveModelDir: %v", err)
	}
	if got != dir {
		t.Errorf("expected %q, got %q", dir, got)
	}
}

func TestResolveModelDirByName(t *testing.T) {
	root := t.TempDir()
	t.Setenv("NOVAGEN_MODELS", root)
	if err := os.MkdirAll(filepath.Join(root, "nova-d48w1024"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	got, err := ResolveModelDir("nova-d48w1024")
	if err != nil {
		t.Fatalf("ResolveModelDir: %v", err)
	}
	if got != filepath.Join(root, "nova-d48w1024") {
		t.Errorf("unexpected dir %q", got)
	}
}

func TestResolveModelDirUnknown(t *testing.T) {
	t.Setenv("NOVAGEN_MODELS", t.TempDir())
	if _, err := ResolveModelDir("no-such-model"); err == nil {
		t.Fatal("expected error for unknown model")
	}
}

func TestSaveResolution(t *testing.T) {
	dir := writeTestModel(t)
	res, err := Resolve(dir, stubFactories())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	path := filepath.Join(dir, "resolution.json")
	if err := SaveResolution(res, path); err != nil {
		t.Fatalf("SaveResolution: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read resolution: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty resolution record")
	}
}
