// Command kelpbench drives the kelp sprite pipeline headless and reports
// per-frame batching statistics and timings.
package main

import (
	"flag"
	"image"
	"image/color"
	_ "image/png"
	"log"
	"log/slog"
	"math/rand/v2"
	"os"
	"time"

	"github.com/chewxy/math32"
	"github.com/gogpu/kelp"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

func main() {
	var (
		backend = flag.String("backend", kelp.BackendSoftware, "GPU backend ("+kelp.BackendAuto+", "+kelp.BackendSoftware+", "+kelp.BackendNoop+", ...)")
		config  = flag.String("config", "", "TOML or YAML config file")
		frames  = flag.Int("frames", 120, "frames to render")
		sprites = flag.Int("sprites", 10000, "sprites per frame")
		sprite  = flag.String("sprite", "", "sprite image (PNG, BMP or WebP); a generated checker if empty")
		size    = flag.Int("size", 512, "off-screen target size")
		verbose = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	kelp.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := kelp.DefaultConfig()
	if *config != "" {
		var err error
		if cfg, err = kelp.LoadConfig(*config); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	cfg.Backend = *backend

	k, err := kelp.Initialise(kelp.Window{}, kelp.WithConfig(cfg))
	if err != nil {
		log.Fatalf("Failed to initialise: %v", err)
	}
	defer k.Close()

	img, err := loadSprite(*sprite)
	if err != nil {
		log.Fatalf("Failed to load sprite: %v", err)
	}
	tex, err := k.CreateTextureFromImage(img)
	if err != nil {
		log.Fatalf("Failed to create texture: %v", err)
	}
	//nolint:gosec // flag value, checked by CreateRenderTarget
	target, err := k.CreateRenderTarget(uint32(*size), uint32(*size))
	if err != nil {
		log.Fatalf("Failed to create render target: %v", err)
	}

	b := newBench(*sprites, float32(*size), img.Bounds().Dx(), img.Bounds().Dy())
	var total time.Duration
	var last kelp.FrameStats
	for i := range *frames {
		start := time.Now()
		if err := b.frame(k, tex, target, float32(i)/60); err != nil {
			log.Fatalf("Frame %d: %v", i, err)
		}
		total += time.Since(start)
		last = k.Stats()
	}

	atlas := k.AtlasStats()
	log.Printf("Backend %s, adapter %q", cfg.Backend, k.AdapterInfo().Name)
	log.Printf("%d frames, %d sprites: %v/frame", *frames, *sprites, total/time.Duration(max(*frames, 1)))
	log.Printf("Last frame: %d lists, %d passes, %d draws, %d pipeline binds, %d bind group binds, %d instances",
		last.Lists, last.RenderPasses, last.DrawCalls, last.PipelineBinds, last.BindGroupBinds, last.Instances)
	log.Printf("Atlas: %d/%d layers of %dpx, %.1f%% used", atlas.Layers, atlas.MaxLayers, atlas.Size, atlas.Utilization*100)
}

// loadSprite decodes path, or returns a 32x32 checker.
func loadSprite(path string) (image.Image, error) {
	if path == "" {
		img := image.NewNRGBA(image.Rect(0, 0, 32, 32))
		for y := range 32 {
			for x := range 32 {
				c := color.NRGBA{R: 240, G: 200, B: 60, A: 255}
				if (x/8+y/8)%2 == 1 {
					c = color.NRGBA{R: 40, G: 120, B: 200, A: 255}
				}
				img.SetNRGBA(x, y, c)
			}
		}
		return img, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

type particle struct {
	x, y, vx, vy, spin float32
	mode               kelp.InstanceMode
}

type bench struct {
	particles []particle
	instances []kelp.Instance
	extent    float32
	w, h      float32
}

func newBench(n int, extent float32, w, h int) *bench {
	b := &bench{
		particles: make([]particle, n),
		instances: make([]kelp.Instance, n),
		extent:    extent,
		w:         float32(w),
		h:         float32(h),
	}
	modes := []kelp.InstanceMode{kelp.ModeMultiply, kelp.ModeWash, kelp.ModeVeto}
	for i := range b.particles {
		b.particles[i] = particle{
			x:    rand.Float32() * extent,
			y:    rand.Float32() * extent,
			vx:   rand.Float32()*2 - 1,
			vy:   rand.Float32()*2 - 1,
			spin: rand.Float32()*4 - 2,
			mode: modes[i%len(modes)],
		}
	}
	return b
}

// frame draws every particle into the off-screen target in two blend
// batches, then composites the target onto the surface when there is one.
func (b *bench) frame(k *kelp.Kelp, tex kelp.TextureHandle, target kelp.TargetHandle, t float32) error {
	for i := range b.particles {
		p := &b.particles[i]
		p.x = wrap(p.x+p.vx, b.extent)
		p.y = wrap(p.y+p.vy, b.extent)
		b.instances[i] = kelp.Instance{
			Color:  kelp.Color{R: 1, G: 1, B: 1, A: 0.8},
			Mode:   p.mode,
			Source: kelp.FullSource,
			World: kelp.Transform{
				X:        p.x,
				Y:        p.y,
				ScaleX:   b.w,
				ScaleY:   b.h,
				Rotation: p.spin * t,
				OriginX:  0.5,
				OriginY:  0.5,
			},
		}
	}

	if err := k.BeginFrame(); err != nil {
		return err
	}
	half := b.extent / 2
	cam := kelp.Camera{X: half, Y: half, Width: b.extent, Height: b.extent, Scale: 1}
	split := len(b.instances) / 2

	offscreen := kelp.NewRenderList(&target, cam, &kelp.Color{A: 1})
	if _, err := offscreen.AddInstances(k, tex, false, kelp.BlendAlpha, b.instances[:split]); err != nil {
		return err
	}
	if _, err := offscreen.AddInstances(k, tex, true, kelp.BlendAdditive, b.instances[split:]); err != nil {
		return err
	}
	if err := k.SubmitRenderList(offscreen); err != nil {
		return err
	}

	if !k.Headless() {
		w, h := k.SurfaceSize()
		fw, fh := float32(w), float32(h)
		screen := kelp.NewRenderList(nil, kelp.Camera{X: fw / 2, Y: fh / 2, Width: fw, Height: fh, Scale: 1}, &kelp.Color{A: 1})
		composite := []kelp.Instance{{
			Color:  kelp.White,
			Source: kelp.FullSource,
			World:  kelp.Transform{ScaleX: fw, ScaleY: fh},
		}}
		if _, err := screen.AddInstances(k, target, true, kelp.BlendAlpha, composite); err != nil {
			return err
		}
		if err := k.SubmitRenderList(screen); err != nil {
			return err
		}
	}
	return k.PresentFrame()
}

func wrap(v, extent float32) float32 {
	return math32.Mod(v+extent, extent)
}
