// Package checkpoint persists training state as an atomically written CBOR
// bundle: model weights, optimizer state, scheduler positions, epoch,
// global step and a monotonically increasing counter. Checkpoints are
// immutable once written; recovery from a failed run is a manual restart
// from the latest counter.
package checkpoint

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/d4l3k/go-bfloat16"
	"github.com/fxamacker/cbor/v2"
	"github.com/pdevine/tensor"
	"github.com/x448/float16"
)

// Tensor is a serialized weight tensor. Dtype selects the payload
// precision: f32, f16 or bf16.
type Tensor struct {
	Shape []int  `cbor:"shape"`
	Dtype string `cbor:"dtype"`
	Data  []byte `cbor:"data"`
}

// State is one checkpoint bundle.
type State struct {
	RunID   string `cbor:"run_id"`
	Epoch   int    `cbor:"epoch"`
	Step    int    `cbor:"step"`
	Counter int    `cbor:"counter"`

	Model             map[string]Tensor `cbor:"model"`
	Optimizer         []byte            `cbor:"optimizer"`
	LRSchedulerSteps  int               `cbor:"lr_scheduler_steps"`
	TeacherForceSteps int               `cbor:"teacher_force_steps"`
}

// EncodeTensor serializes a float32 tensor at the requested precision.
func EncodeTensor(t *tensor.Dense, precision string) (Tensor, error) {
	data, ok := t.Data().([]float32)
	if !ok {
		return Tensor{}, fmt.Errorf("encode tensor: expected float32 backing, got %T", t.Data())
	}

	out := Tensor{Shape: append([]int(nil), t.Shape()...), Dtype: precision}
	switch precision {
	case "f32":
		out.Data = make([]byte, 4*len(data))
		for i, v := range data {
			binary.LittleEndian.PutUint32(out.Data[4*i:], math.Float32bits(v))
		}
	case "f16":
		out.Data = make([]byte, 2*len(data))
		for i, v := range data {
			binary.LittleEndian.PutUint16(out.Data[2*i:], float16.Fromfloat32(v).Bits())
		}
	case "bf16":
		out.Data = bfloat16.EncodeFloat32(data)
	default:
		return Tensor{}, fmt.Errorf("invalid precision %q: supported values are \"f32\", \"f16\" and \"bf16\"", precision)
	}

	return out, nil
}

// Decode reconstructs the float32 tensor.
func (t Tensor) Decode() (*tensor.Dense, error) {
	var data []float32
	switch t.Dtype {
	case "f32":
		data = make([]float32, len(t.Data)/4)
		for i := range data {
			data[i] = math.Float32frombits(binary.LittleEndian.Uint32(t.Data[4*i:]))
		}
	case "f16":
		data = make([]float32, len(t.Data)/2)
		for i := range data {
			data[i] = float16.Frombits(binary.LittleEndian.Uint16(t.Data[2*i:])).Float32()
		}
	case "bf16":
		data = bfloat16.DecodeFloat32(t.Data)
	default:
		return nil, fmt.Errorf("invalid tensor dtype %q", t.Dtype)
	}

	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	if n != len(data) {
		return nil, fmt.Errorf("tensor shape %v does not match %d values", t.Shape, len(data))
	}

	return tensor.New(tensor.WithShape(t.Shape...), tensor.WithBacking(data)), nil
}

// Save writes the bundle through a temp file and renames it into place, so
// a partially written checkpoint is never loadable.
func Save(path string, st *State) error {
	b, err := cbor.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(path), "convqa-ckpt")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(b); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(f.Name(), path)
}

// Load reads a bundle back.
func Load(path string) (*State, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	var st State
	if err := cbor.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", path, err)
	}
	return &st, nil
}

// Filename names a checkpoint by its counter.
func Filename(counter int) string {
	return fmt.Sprintf("checkpoint_%d.ckpt", counter)
}

var filenameRe = regexp.MustCompile(`^checkpoint_(\d+)\.ckpt$`)

// Latest resolves the highest-counter checkpoint in dir. It returns an
// error when the directory holds no checkpoints.
func Latest(dir string) (string, int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", 0, err
	}

	best := -1
	for _, e := range entries {
		m := filenameRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > best {
			best = n
		}
	}

	if best < 0 {
		return "", 0, fmt.Errorf("no checkpoints in %s", dir)
	}
	return filepath.Join(dir, Filename(best)), best, nil
}
