package scorer

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagd-project/pagd-go/internal/conf"
	"github.com/pagd-project/pagd-go/internal/errors"
)

type fakeInterpreter struct {
	out    []float32
	err    error
	inputs [][]float32
	closed int
}

func (f *fakeInterpreter) Run(input []float32) ([]float32, error) {
	f.inputs = append(f.inputs, append([]float32(nil), input...))
	if f.err != nil {
		return nil, f.err
	}
	return append([]float32(nil), f.out...), nil
}

func (f *fakeInterpreter) Close() error {
	f.closed++
	return nil
}

func TestSplitLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		label, category, specific string
	}{
		{"Gunshot, gunfire", "Gunshot", "gunfire"},
		{"Machine gun", "Machine gun", "Machine gun"},
		{"Cap gun, toy,  pop ", "Cap gun", "toy,  pop"},
		{" Speech ", "Speech", "Speech"},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			t.Parallel()
			c, s := SplitLabel(tt.label)
			assert.Equal(t, tt.category, c)
			assert.Equal(t, tt.specific, s)
		})
	}
}

func TestClamp(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 0, clamp(float32(math.NaN())), 0)
	assert.InDelta(t, 0, clamp(-0.2), 0)
	assert.InDelta(t, 1, clamp(1.7), 0)
	assert.InDelta(t, 0.4, clamp(0.4), 1e-7)
}

func TestTwoStage_Score(t *testing.T) {
	t.Parallel()

	signature := &fakeInterpreter{out: []float32{0.1, 0.2, 0.3}}
	model := &fakeInterpreter{out: []float32{0.8}}
	s, err := NewTwoStage(signature, model, []string{"Gun1", "Gun2", "Gun4"}, 4)
	require.NoError(t, err)

	scores, err := s.Score([]float32{1, 2, 3, 4})
	require.NoError(t, err)

	require.Len(t, scores, 3)
	for _, e := range scores {
		assert.InDelta(t, 0.8, e.Score, 1e-6)
	}
	assert.Equal(t, [][]float32{{0.1, 0.2, 0.3}}, model.inputs, "spectrogram feeds the model")
	assert.Equal(t, []string{"Gun1", "Gun2", "Gun4"}, s.Categories(), "labels keep configured order")
	assert.Equal(t, 4, s.WindowSize())

	c, typ := ResultName(s, "Gun2")
	assert.Equal(t, Unlabelled, c)
	assert.Equal(t, Unlabelled, typ)

	require.NoError(t, s.Close())
	assert.Equal(t, 1, signature.closed)
	assert.Equal(t, 1, model.closed)
}

func TestTwoStage_ScoreFailureIsTransient(t *testing.T) {
	t.Parallel()

	s, err := NewTwoStage(&fakeInterpreter{err: errors.NewStd("boom")}, &fakeInterpreter{}, []string{"Gun1"}, 2)
	require.NoError(t, err)

	_, err = s.Score([]float32{0, 0})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryTransientScore))

	s, err = NewTwoStage(&fakeInterpreter{}, &fakeInterpreter{}, []string{"Gun1"}, 2)
	require.NoError(t, err)
	_, err = s.Score([]float32{0, 0})
	require.Error(t, err, "empty model output")
}

func TestNewTwoStage_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewTwoStage(&fakeInterpreter{}, &fakeInterpreter{}, nil, 2048)
	require.ErrorIs(t, err, ErrModelLoad)

	_, err = NewTwoStage(&fakeInterpreter{}, &fakeInterpreter{}, []string{"Gun1"}, 0)
	require.ErrorIs(t, err, ErrModelLoad)
}

func TestMultiLabel_SortedCategories(t *testing.T) {
	t.Parallel()

	model := &fakeInterpreter{out: []float32{0.1, 0.9, 0.5}}
	s, err := NewMultiLabel(model, []string{"Speech", "Gunshot, gunfire", "Fireworks"}, 3)
	require.NoError(t, err)

	assert.Equal(t, []string{"Fireworks", "Gunshot, gunfire", "Speech"}, s.Categories())

	scores, err := s.Score([]float32{0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, Scores{
		{Label: "Fireworks", Score: 0.5},
		{Label: "Gunshot, gunfire", Score: 0.9},
		{Label: "Speech", Score: 0.1},
	}, scores)

	c, typ := ResultName(s, "Gunshot, gunfire")
	assert.Equal(t, "Gunshot", c)
	assert.Equal(t, "gunfire", typ)
}

func TestMultiLabel_ShortOutput(t *testing.T) {
	t.Parallel()

	s, err := NewMultiLabel(&fakeInterpreter{out: []float32{0.1}}, []string{"a", "b"}, 1)
	require.NoError(t, err)

	_, err = s.Score([]float32{0})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryTransientScore))
}

func TestNewMultiLabel_DuplicateLabels(t *testing.T) {
	t.Parallel()

	_, err := NewMultiLabel(&fakeInterpreter{}, []string{"a", "a"}, 1)
	require.ErrorIs(t, err, ErrModelLoad)
	assert.True(t, errors.IsCategory(err, errors.CategoryModelLoad))
}

func TestParseLabels(t *testing.T) {
	t.Parallel()

	plain, err := ParseLabels([]byte("Gun1\n\n Gun2 \r\nGun3\n"), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"Gun1", "Gun2", "Gun3"}, plain)

	classMap := "index,mid,display_name\n0,/m/09x0r,Speech\n427,/m/032s66,\"Gunshot, gunfire\"\n"
	csvLabels, err := ParseLabels([]byte(classMap), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"Speech", "Gunshot, gunfire"}, csvLabels)

	_, err = ParseLabels([]byte("\n \n"), false)
	require.Error(t, err)

	_, err = ParseLabels([]byte("0,only-two\n"), true)
	require.Error(t, err)
}

func TestLoadLabels_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadLabels(filepath.Join(t.TempDir(), "missing.txt"))
	require.ErrorIs(t, err, ErrModelLoad)
	assert.True(t, errors.IsCategory(err, errors.CategoryLabelLoad))
}

func TestLoadTFLite_MissingModel(t *testing.T) {
	t.Parallel()

	_, err := LoadTFLite(filepath.Join(t.TempDir(), "missing.tflite"), TFLiteOptions{})
	require.ErrorIs(t, err, ErrModelLoad)
	assert.True(t, errors.IsCategory(err, errors.CategoryModelLoad))

	var ee *errors.EnhancedError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "load_model", ee.GetContext()["operation"])
	assert.Equal(t, "tflite", ee.GetContext()["model_kind"])
}

func TestThreadCount(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 1, ThreadCount(1))
	assert.GreaterOrEqual(t, ThreadCount(0), 1)
}

// Tests below swap openInterpreter and must not run in parallel.

func stubInterpreters(t *testing.T, byPath map[string]Interpreter) {
	t.Helper()
	orig := openInterpreter
	openInterpreter = func(path string, _ TFLiteOptions) (Interpreter, error) {
		if in, ok := byPath[path]; ok {
			return in, nil
		}
		return nil, modelLoadError(os.ErrNotExist, path, "tflite")
	}
	t.Cleanup(func() { openInterpreter = orig })
}

func TestLoad_TwoStage(t *testing.T) {
	stubInterpreters(t, map[string]Interpreter{
		"sig.tflite":   &fakeInterpreter{out: []float32{1}},
		"model.tflite": &fakeInterpreter{out: []float32{0.7}},
	})

	s, err := Load(conf.ClassifierSettings{
		Name: "legacy", Kind: conf.KindTwoStage,
		SignaturePath: "sig.tflite", ModelPath: "model.tflite",
		Labels: []string{"Gun1"}, WindowSize: 2048,
	})
	require.NoError(t, err)
	assert.IsType(t, &TwoStage{}, s)
	assert.Equal(t, 2048, s.WindowSize())
}

func TestLoad_TwoStageClosesSignatureOnModelFailure(t *testing.T) {
	sig := &fakeInterpreter{}
	stubInterpreters(t, map[string]Interpreter{"sig.tflite": sig})

	_, err := Load(conf.ClassifierSettings{
		Kind: conf.KindTwoStage, SignaturePath: "sig.tflite", ModelPath: "missing.tflite",
		Labels: []string{"Gun1"}, WindowSize: 2048,
	})
	require.ErrorIs(t, err, ErrModelLoad)
	assert.Equal(t, 1, sig.closed)
}

func TestLoad_MultiLabelFromFile(t *testing.T) {
	labels := filepath.Join(t.TempDir(), "labels.txt")
	require.NoError(t, os.WriteFile(labels, []byte("b\na\n"), 0o600))
	stubInterpreters(t, map[string]Interpreter{"yamnet.tflite": &fakeInterpreter{out: []float32{0.2, 0.3}}})

	s, err := Load(conf.ClassifierSettings{
		Kind: conf.KindMultiLabel, ModelPath: "yamnet.tflite", LabelPath: labels, WindowSize: 15600,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, s.Categories())
}

func TestLoad_UnknownKind(t *testing.T) {
	_, err := Load(conf.ClassifierSettings{Kind: "bogus"})
	require.ErrorIs(t, err, ErrModelLoad)
}
