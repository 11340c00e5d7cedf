package restore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"sheetfetch/internal/services"
)

// CheckpointExt is the file extension of loadable checkpoints.
const CheckpointExt = ".safetensors"

// MetadataValLoss is the metadata key holding the JSON array of per-epoch
// validation losses recorded up to that checkpoint.
const MetadataValLoss = "val_loss"

var epochPattern = regexp.MustCompile(`^model_epoch_(\d+)\.safetensors$`)

// StateDict maps parameter names to weights.
type StateDict map[string]Param

// Checkpoint is one loaded set of network weights.
type Checkpoint struct {
	Path    string
	Epoch   int
	ValLoss []float64
	State   StateDict
}

// BestValLoss returns the lowest recorded validation loss.
func (c *Checkpoint) BestValLoss() (float64, bool) {
	if c == nil || len(c.ValLoss) == 0 {
		return 0, false
	}
	best := c.ValLoss[0]
	for _, v := range c.ValLoss[1:] {
		if v < best {
			best = v
		}
	}
	return best, true
}

type epochFile struct {
	epoch int
	path  string
}

// ListCheckpoints returns model_epoch_<N> checkpoints in dir ordered by epoch.
func ListCheckpoints(dir string) ([]string, error) {
	files, err := scanEpochs(dir)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.path)
	}
	return paths, nil
}

func scanEpochs(dir string) ([]epochFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []epochFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := epochPattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		epoch, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		files = append(files, epochFile{epoch: epoch, path: filepath.Join(dir, entry.Name())})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].epoch < files[j].epoch })
	return files, nil
}

// LoadBestCheckpoint reads the validation-loss history stored in the latest
// epoch checkpoint of dir and loads the epoch with the lowest loss. Epochs are
// 1-based positions in that history.
func LoadBestCheckpoint(dir string) (*Checkpoint, error) {
	files, err := scanEpochs(dir)
	if err != nil {
		return nil, services.Wrap(services.ErrModelLoad, "restore", "scan checkpoints", "Cannot read checkpoint directory", err)
	}
	if len(files) == 0 {
		return nil, services.Wrap(services.ErrModelLoad, "restore", "scan checkpoints",
			fmt.Sprintf("No model_epoch_<N>%s checkpoints found in %s", CheckpointExt, dir), nil)
	}

	latest := files[len(files)-1]
	_, metadata, err := readSafetensors(latest.path)
	if err != nil {
		return nil, services.Wrap(services.ErrModelLoad, "restore", "read latest checkpoint", filepath.Base(latest.path), err)
	}
	losses, err := parseValLoss(metadata)
	if err != nil {
		return nil, services.Wrap(services.ErrModelLoad, "restore", "read validation history", filepath.Base(latest.path), err)
	}

	bestIdx := 0
	for i, v := range losses {
		if v < losses[bestIdx] {
			bestIdx = i
		}
	}
	bestEpoch := bestIdx + 1
	bestPath := filepath.Join(dir, fmt.Sprintf("model_epoch_%d%s", bestEpoch, CheckpointExt))

	ckpt, err := loadCheckpointFile(bestPath, false)
	if err != nil {
		return nil, err
	}
	ckpt.Epoch = bestEpoch
	ckpt.ValLoss = losses
	return ckpt, nil
}

// LoadCheckpoint loads a single checkpoint file. The file must carry a
// validation-loss record.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	return loadCheckpointFile(path, true)
}

func loadCheckpointFile(path string, requireLoss bool) (*Checkpoint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, services.Wrap(services.ErrModelLoad, "restore", "open checkpoint", "Checkpoint file missing", err)
	}
	if info.IsDir() {
		return nil, services.Wrap(services.ErrModelLoad, "restore", "open checkpoint", path+" is a directory", nil)
	}
	params, metadata, err := readSafetensors(path)
	if err != nil {
		return nil, services.Wrap(services.ErrModelLoad, "restore", "read checkpoint", filepath.Base(path), err)
	}
	ckpt := &Checkpoint{Path: path, State: stripPrefixes(params)}
	if match := epochPattern.FindStringSubmatch(filepath.Base(path)); match != nil {
		ckpt.Epoch, _ = strconv.Atoi(match[1])
	}
	if losses, err := parseValLoss(metadata); err == nil {
		ckpt.ValLoss = losses
	} else if requireLoss {
		return nil, services.Wrap(services.ErrModelLoad, "restore", "read validation history", filepath.Base(path), err)
	}
	return ckpt, nil
}

func parseValLoss(metadata map[string]string) ([]float64, error) {
	raw, ok := metadata[MetadataValLoss]
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, errors.New("no validation loss recorded")
	}
	var losses []float64
	if err := json.Unmarshal([]byte(raw), &losses); err != nil {
		var single float64
		if err2 := json.Unmarshal([]byte(raw), &single); err2 != nil {
			return nil, fmt.Errorf("parse %s: %w", MetadataValLoss, err)
		}
		losses = []float64{single}
	}
	if len(losses) == 0 {
		return nil, errors.New("validation loss history is empty")
	}
	return losses, nil
}

// stripPrefixes removes wrapper prefixes added by data-parallel training and
// graph compilation.
func stripPrefixes(params map[string]Param) StateDict {
	out := make(StateDict, len(params))
	for name, p := range params {
		name = strings.ReplaceAll(name, "module.", "")
		name = strings.ReplaceAll(name, "_orig_mod.", "")
		out[name] = p
	}
	return out
}
