package restore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"sheetfetch/internal/services"
)

func TestLoadBestCheckpointPicksLowestValidationLoss(t *testing.T) {
	dir := t.TempDir()
	for epoch := 1; epoch <= 3; epoch++ {
		var meta map[string]string
		if epoch == 3 {
			meta = map[string]string{MetadataValLoss: "[0.5, 0.2, 0.3]"}
		}
		writeSafetensors(t, filepath.Join(dir, fmt.Sprintf("model_epoch_%d.safetensors", epoch)),
			map[string]Param{"module.marker": {Shape: []int{1}, Data: []float32{float32(epoch)}}}, meta)
	}
	// Unrelated files are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	ckpt, err := LoadBestCheckpoint(dir)
	if err != nil {
		t.Fatalf("LoadBestCheckpoint: %v", err)
	}
	if ckpt.Epoch != 2 {
		t.Fatalf("expected epoch 2, got %d", ckpt.Epoch)
	}
	marker, ok := ckpt.State["marker"]
	if !ok {
		t.Fatalf("expected prefix-stripped parameter, got %v", ckpt.State)
	}
	if marker.Data[0] != 2 {
		t.Fatalf("loaded wrong checkpoint: marker %v", marker.Data)
	}
	if best, ok := ckpt.BestValLoss(); !ok || best != 0.2 {
		t.Fatalf("unexpected best loss %v %v", best, ok)
	}
}

func TestLoadBestCheckpointOrdersEpochsNumerically(t *testing.T) {
	dir := t.TempDir()
	losses := "[0.9, 0.8, 0.7, 0.6, 0.5, 0.4, 0.3, 0.2, 0.1, 0.05]"
	for _, epoch := range []int{2, 9, 10} {
		meta := map[string]string{MetadataValLoss: losses}
		writeSafetensors(t, filepath.Join(dir, fmt.Sprintf("model_epoch_%d.safetensors", epoch)),
			map[string]Param{"marker": {Shape: []int{1}, Data: []float32{float32(epoch)}}}, meta)
	}
	ckpt, err := LoadBestCheckpoint(dir)
	if err != nil {
		t.Fatalf("LoadBestCheckpoint: %v", err)
	}
	if ckpt.Epoch != 10 || ckpt.State["marker"].Data[0] != 10 {
		t.Fatalf("expected epoch 10, got %d", ckpt.Epoch)
	}
}

func TestLoadBestCheckpointErrors(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		_, err := LoadBestCheckpoint(filepath.Join(t.TempDir(), "nope"))
		if !errors.Is(err, services.ErrModelLoad) {
			t.Fatalf("expected ErrModelLoad, got %v", err)
		}
	})
	t.Run("empty directory", func(t *testing.T) {
		_, err := LoadBestCheckpoint(t.TempDir())
		if !errors.Is(err, services.ErrModelLoad) {
			t.Fatalf("expected ErrModelLoad, got %v", err)
		}
	})
	t.Run("no history", func(t *testing.T) {
		dir := t.TempDir()
		writeSafetensors(t, filepath.Join(dir, "model_epoch_1.safetensors"),
			map[string]Param{"marker": {Shape: []int{1}, Data: []float32{1}}}, nil)
		_, err := LoadBestCheckpoint(dir)
		if !errors.Is(err, services.ErrModelLoad) {
			t.Fatalf("expected ErrModelLoad, got %v", err)
		}
	})
	t.Run("best epoch file missing", func(t *testing.T) {
		dir := t.TempDir()
		writeSafetensors(t, filepath.Join(dir, "model_epoch_3.safetensors"),
			map[string]Param{"marker": {Shape: []int{1}, Data: []float32{3}}},
			map[string]string{MetadataValLoss: "[0.1, 0.2, 0.3]"})
		_, err := LoadBestCheckpoint(dir)
		if !errors.Is(err, services.ErrModelLoad) {
			t.Fatalf("expected ErrModelLoad, got %v", err)
		}
	})
}

func TestLoadCheckpointRequiresValidationLoss(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model_epoch_1.safetensors")
	writeSafetensors(t, path, map[string]Param{"marker": {Shape: []int{1}, Data: []float32{1}}}, nil)
	if _, err := LoadCheckpoint(path); !errors.Is(err, services.ErrModelLoad) {
		t.Fatalf("expected ErrModelLoad, got %v", err)
	}

	writeSafetensors(t, path, map[string]Param{"marker": {Shape: []int{1}, Data: []float32{1}}},
		map[string]string{MetadataValLoss: "0.25"})
	ckpt, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if ckpt.Epoch != 1 || len(ckpt.ValLoss) != 1 || ckpt.ValLoss[0] != 0.25 {
		t.Fatalf("unexpected checkpoint %+v", ckpt)
	}
}
