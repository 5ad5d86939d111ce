package render_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"storyreel/internal/censor"
	"storyreel/internal/config"
	"storyreel/internal/services"
	"storyreel/internal/services/render"
)

// stubFFmpeg writes a script that records its arguments and creates the
// output file named by the final argument.
func stubFFmpeg(t *testing.T, dir string, exitCode int) (binary, argsFile string) {
	t.Helper()
	argsFile = filepath.Join(dir, "args.txt")
	binary = filepath.Join(dir, "ffmpeg")
	script := "#!/bin/sh\n" +
		"printf '%s\\n' \"$@\" > " + argsFile + "\n" +
		"for last; do :; done\n"
	if exitCode == 0 {
		script += "echo fake > \"$last\"\n"
	}
	script += "exit " + map[int]string{0: "0", 1: "1"}[exitCode] + "\n"
	if err := os.WriteFile(binary, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return binary, argsFile
}

func TestRenderInvokesFFmpegWithCaptionAndBleeps(t *testing.T) {
	dir := t.TempDir()
	binary, argsFile := stubFFmpeg(t, dir, 0)

	renderer := render.New(config.Render{
		FFmpegBinary: binary, Width: 720, Height: 1280, FontName: "DejaVu Sans",
	})
	audio := filepath.Join(dir, "part.mp3")
	if err := os.WriteFile(audio, []byte("mp3"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}

	out := filepath.Join(dir, "video", "part.mp4")
	result, err := renderer.Render(context.Background(), render.Spec{
		AudioPath:       audio,
		Caption:         "A short caption.",
		Title:           "Story Title",
		OutputPath:      out,
		DurationSeconds: 42.5,
		Bleeps:          []censor.Interval{{StartMS: 1000, EndMS: 1500}},
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if result.Path != out || result.SizeBytes == 0 {
		t.Fatalf("unexpected result: %#v", result)
	}

	raw, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	argText := string(raw)
	for _, want := range []string{
		"color=c=0x101018:s=720x1280:d=42.500",
		"drawtext",
		"Story Title",
		"between(t,1.000,1.500)",
		out,
	} {
		if !strings.Contains(argText, want) {
			t.Fatalf("ffmpeg args missing %q:\n%s", want, argText)
		}
	}
}

func TestRenderClassifiesFFmpegFailureTransient(t *testing.T) {
	dir := t.TempDir()
	binary, _ := stubFFmpeg(t, dir, 1)

	renderer := render.New(config.Render{FFmpegBinary: binary})
	_, err := renderer.Render(context.Background(), render.Spec{
		AudioPath:       filepath.Join(dir, "a.mp3"),
		OutputPath:      filepath.Join(dir, "out.mp4"),
		DurationSeconds: 10,
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if services.Classify(err) != services.KindTransient {
		t.Fatalf("expected transient classification, got %v", err)
	}
}

func TestRenderValidatesSpec(t *testing.T) {
	renderer := render.New(config.Render{})
	_, err := renderer.Render(context.Background(), render.Spec{OutputPath: "x.mp4", DurationSeconds: 5})
	if services.Classify(err) != services.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}
