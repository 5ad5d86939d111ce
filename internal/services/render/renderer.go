// Package render produces vertical short videos from narration audio and
// caption text by driving ffmpeg.
package render

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"storyreel/internal/censor"
	"storyreel/internal/config"
	"storyreel/internal/services"
)

var commandContext = exec.CommandContext

// Spec describes one video to render.
type Spec struct {
	AudioPath       string
	Caption         string
	Title           string
	OutputPath      string
	DurationSeconds float64
	Bleeps          []censor.Interval
}

// Result describes a rendered video file.
type Result struct {
	Path      string
	SizeBytes int64
}

// Renderer shells out to ffmpeg.
type Renderer struct {
	binary   string
	width    int
	height   int
	fontName string
}

// New wires a renderer from configuration.
func New(cfg config.Render) *Renderer {
	binary := strings.TrimSpace(cfg.FFmpegBinary)
	if binary == "" {
		binary = "ffmpeg"
	}
	width, height := cfg.Width, cfg.Height
	if width <= 0 {
		width = 720
	}
	if height <= 0 {
		height = 1280
	}
	return &Renderer{binary: binary, width: width, height: height, fontName: strings.TrimSpace(cfg.FontName)}
}

// Render builds the video at spec.OutputPath.
func (r *Renderer) Render(ctx context.Context, spec Spec) (*Result, error) {
	if strings.TrimSpace(spec.AudioPath) == "" {
		return nil, services.Wrap(services.ErrValidation, "render", "video", "audio path required", nil)
	}
	if strings.TrimSpace(spec.OutputPath) == "" {
		return nil, services.Wrap(services.ErrValidation, "render", "video", "output path required", nil)
	}
	if spec.DurationSeconds <= 0 {
		return nil, services.Wrap(services.ErrValidation, "render", "video", "duration required", nil)
	}
	if err := os.MkdirAll(filepath.Dir(spec.OutputPath), 0o755); err != nil {
		return nil, fmt.Errorf("render output: mkdir: %w", err)
	}

	args := r.buildArgs(spec)
	cmd := commandContext(ctx, r.binary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, services.Wrap(services.ErrTransient, "render", "video",
			fmt.Sprintf("ffmpeg: %s", strings.TrimSpace(string(output))), err)
	}

	info, err := os.Stat(spec.OutputPath)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "render", "video", "ffmpeg produced no output", err)
	}
	return &Result{Path: spec.OutputPath, SizeBytes: info.Size()}, nil
}

func (r *Renderer) buildArgs(spec Spec) []string {
	background := fmt.Sprintf("color=c=0x101018:s=%dx%d:d=%.3f", r.width, r.height, spec.DurationSeconds)

	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "lavfi",
		"-i", background,
		"-i", spec.AudioPath,
	}

	videoFilter := r.captionFilter(spec)
	audioFilter := bleepFilter(spec.Bleeps)

	filters := make([]string, 0, 2)
	if videoFilter != "" {
		filters = append(filters, "[0:v]"+videoFilter+"[v]")
	}
	if audioFilter != "" {
		filters = append(filters, "[1:a]"+audioFilter+"[a]")
	}
	if len(filters) > 0 {
		args = append(args, "-filter_complex", strings.Join(filters, ";"))
	}

	videoMap := "0:v"
	if videoFilter != "" {
		videoMap = "[v]"
	}
	audioMap := "1:a"
	if audioFilter != "" {
		audioMap = "[a]"
	}
	args = append(args,
		"-map", videoMap,
		"-map", audioMap,
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-shortest",
		spec.OutputPath,
	)
	return args
}

func (r *Renderer) captionFilter(spec Spec) string {
	var parts []string
	if title := strings.TrimSpace(spec.Title); title != "" {
		parts = append(parts, fmt.Sprintf(
			"drawtext=%stext='%s':fontcolor=white:fontsize=%d:x=(w-text_w)/2:y=h*0.12",
			r.fontArg(), escapeDrawText(title), r.height/24))
	}
	if caption := strings.TrimSpace(spec.Caption); caption != "" {
		parts = append(parts, fmt.Sprintf(
			"drawtext=%stext='%s':fontcolor=white:fontsize=%d:x=(w-text_w)/2:y=(h-text_h)/2:line_spacing=8",
			r.fontArg(), escapeDrawText(caption), r.height/32))
	}
	return strings.Join(parts, ",")
}

func (r *Renderer) fontArg() string {
	if r.fontName == "" {
		return ""
	}
	return "font='" + escapeDrawText(r.fontName) + "':"
}

// bleepFilter silences censored spans. Volume expressions are evaluated per
// frame against the timing intervals.
func bleepFilter(bleeps []censor.Interval) string {
	if len(bleeps) == 0 {
		return ""
	}
	conditions := make([]string, 0, len(bleeps))
	for _, interval := range bleeps {
		conditions = append(conditions, fmt.Sprintf(
			"between(t,%.3f,%.3f)",
			float64(interval.StartMS)/1000,
			float64(interval.EndMS)/1000))
	}
	expr := conditions[0]
	for _, condition := range conditions[1:] {
		expr = expr + "+" + condition
	}
	return fmt.Sprintf("volume=volume='if(%s,0,1)':eval=frame", expr)
}

func escapeDrawText(text string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
		`%`, `\%`,
	)
	return replacer.Replace(text)
}
