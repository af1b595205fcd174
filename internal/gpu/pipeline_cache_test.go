package gpu

import (
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
)

func newTestPipelineCache(t *testing.T) (*PipelineCache, func()) {
	t.Helper()
	groups, _, cleanup := newTestBindGroupCache(t)
	pipelines, err := NewPipelineCache(groups.device, gputypes.TextureFormatBGRA8Unorm, groups.Layout())
	if err != nil {
		cleanup()
		t.Fatalf("NewPipelineCache failed: %v", err)
	}
	return pipelines, func() {
		pipelines.Destroy()
		cleanup()
	}
}

func TestSpriteShaderSource(t *testing.T) {
	source := SpriteShaderSource()
	if source == "" {
		t.Fatal("sprite shader source is empty")
	}
	for _, want := range []string{
		"vs_main",
		"fs_main",
		"@group(0) @binding(0)",
		"@group(1) @binding(0)",
		"@group(1) @binding(1)",
		"texture_2d_array<f32>",
		"@location(8) world_trans",
	} {
		if !strings.Contains(source, want) {
			t.Errorf("shader source missing %q", want)
		}
	}
}

func TestSpriteShaderCompiles(t *testing.T) {
	spirv, err := naga.Compile(SpriteShaderSource())
	if err != nil {
		t.Fatalf("naga.Compile failed: %v", err)
	}
	if len(spirv) == 0 {
		t.Fatal("empty SPIR-V output")
	}
}

func TestBlendModeState(t *testing.T) {
	alpha := BlendAlpha.State()
	if alpha != gputypes.BlendStateAlpha() {
		t.Errorf("BlendAlpha.State() = %+v", alpha)
	}
	add := BlendAdditive.State()
	for _, c := range []gputypes.BlendComponent{add.Color, add.Alpha} {
		if c.SrcFactor != gputypes.BlendFactorSrcAlpha ||
			c.DstFactor != gputypes.BlendFactorOne ||
			c.Operation != gputypes.BlendOperationAdd {
			t.Errorf("additive component = %+v", c)
		}
	}
	if BlendMode(9).Valid() {
		t.Error("BlendMode(9) must be invalid")
	}
	if BlendAdditive.String() != "additive" {
		t.Errorf("String() = %q", BlendAdditive.String())
	}
}

func TestPipelineCacheEnsure(t *testing.T) {
	pipelines, cleanup := newTestPipelineCache(t)
	defer cleanup()

	if _, err := pipelines.Index(BuiltinShader, BlendAlpha); !errors.Is(err, ErrInvalidPipelineID) {
		t.Errorf("Index before Ensure: got %v, want ErrInvalidPipelineID", err)
	}

	i1, err := pipelines.Ensure(BuiltinShader, BlendAlpha)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	i2, err := pipelines.Ensure(BuiltinShader, BlendAlpha)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if i1 != i2 || pipelines.Len() != 1 {
		t.Errorf("Ensure not idempotent: %d, %d, len %d", i1, i2, pipelines.Len())
	}
	idx, err := pipelines.Index(BuiltinShader, BlendAlpha)
	if err != nil || idx != i1 {
		t.Errorf("Index() = %d, %v; want %d", idx, err, i1)
	}
	if _, err := pipelines.Get(i1); err != nil {
		t.Errorf("Get(%d): %v", i1, err)
	}

	i3, err := pipelines.Ensure(BuiltinShader, BlendAdditive)
	if err != nil {
		t.Fatalf("Ensure additive failed: %v", err)
	}
	if i3 == i1 || pipelines.Len() != 2 {
		t.Errorf("additive pipeline index %d, len %d", i3, pipelines.Len())
	}

	if _, err := pipelines.Ensure("missing", BlendAlpha); !errors.Is(err, ErrInvalidPipelineID) {
		t.Errorf("unknown shader: got %v, want ErrInvalidPipelineID", err)
	}
	if _, err := pipelines.Ensure(BuiltinShader, BlendMode(5)); !errors.Is(err, ErrInvalidPipelineID) {
		t.Errorf("invalid blend: got %v, want ErrInvalidPipelineID", err)
	}
	if _, err := pipelines.Get(99); !errors.Is(err, ErrInvalidPipelineID) {
		t.Errorf("Get(99): got %v, want ErrInvalidPipelineID", err)
	}
}

func TestPipelineCacheRegisterShader(t *testing.T) {
	pipelines, cleanup := newTestPipelineCache(t)
	defer cleanup()

	tinted := strings.Replace(SpriteShaderSource(), "let veto = texel;", "let veto = texel * 0.5;", 1)
	if err := pipelines.RegisterShader("half", tinted); err != nil {
		t.Fatalf("RegisterShader failed: %v", err)
	}
	if !pipelines.HasShader("half") {
		t.Error("HasShader(half) = false")
	}
	if err := pipelines.RegisterShader("half", tinted); !errors.Is(err, ErrShaderExists) {
		t.Errorf("duplicate name: got %v, want ErrShaderExists", err)
	}
	if err := pipelines.RegisterShader(BuiltinShader, tinted); !errors.Is(err, ErrShaderExists) {
		t.Errorf("builtin name: got %v, want ErrShaderExists", err)
	}
	if err := pipelines.RegisterShader("broken", "fn vs_main( {"); !errors.Is(err, ErrInvalidShader) {
		t.Errorf("invalid WGSL: got %v, want ErrInvalidShader", err)
	}
	if pipelines.HasShader("broken") {
		t.Error("rejected shader was registered")
	}

	if _, err := pipelines.Ensure("half", BlendAlpha); err != nil {
		t.Fatalf("Ensure custom shader failed: %v", err)
	}
	if pipelines.Len() != 1 {
		t.Errorf("Len() = %d, want 1", pipelines.Len())
	}
}
