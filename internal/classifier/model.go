package classifier

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// ObjectiveBinaryLogistic is the only supported objective.
const ObjectiveBinaryLogistic = "binary:logistic"

// Model is an immutable gradient-boosted tree ensemble loaded from the
// XGBoost JSON format (Booster.save_model("model.json")).
type Model struct {
	featureNames []string
	numFeature   int
	baseMargin   float64
	trees        []tree
}

// tree stores nodes in XGBoost's flat array layout. Node 0 is the root;
// a node with left child -1 is a leaf whose value is splitConditions[i].
type tree struct {
	left            []int
	right           []int
	splitIndices    []int
	splitConditions []float64
	defaultLeft     []bool
}

// FeatureNames returns the feature names the model was trained on.
func (m *Model) FeatureNames() []string {
	out := make([]string, len(m.featureNames))
	copy(out, m.featureNames)
	return out
}

// NumFeature returns the expected vector width.
func (m *Model) NumFeature() int {
	return m.numFeature
}

// NumTrees returns the ensemble size.
func (m *Model) NumTrees() int {
	return len(m.trees)
}

// Margin returns the raw score: logit(base_score) plus the leaf value of
// every tree. NaN inputs follow each split's default direction.
func (m *Model) Margin(x []float64) float64 {
	sum := m.baseMargin
	for i := range m.trees {
		sum += m.trees[i].leaf(x)
	}
	return sum
}

func (t *tree) leaf(x []float64) float64 {
	node := 0
	for t.left[node] != -1 {
		v := x[t.splitIndices[node]]
		switch {
		case math.IsNaN(v):
			if t.defaultLeft[node] {
				node = t.left[node]
			} else {
				node = t.right[node]
			}
		case v < t.splitConditions[node]:
			node = t.left[node]
		default:
			node = t.right[node]
		}
	}
	return t.splitConditions[node]
}

// JSON layout of the subset of the XGBoost model file we read.
type modelFile struct {
	Learner struct {
		FeatureNames      []string `json:"feature_names"`
		LearnerModelParam struct {
			BaseScore  string `json:"base_score"`
			NumClass   string `json:"num_class"`
			NumFeature string `json:"num_feature"`
		} `json:"learner_model_param"`
		Objective struct {
			Name string `json:"name"`
		} `json:"objective"`
		GradientBooster struct {
			Name  string `json:"name"`
			Model struct {
				Trees []treeFile `json:"trees"`
			} `json:"model"`
		} `json:"gradient_booster"`
	} `json:"learner"`
}

type treeFile struct {
	LeftChildren    []int     `json:"left_children"`
	RightChildren   []int     `json:"right_children"`
	SplitIndices    []int     `json:"split_indices"`
	SplitConditions []float64 `json:"split_conditions"`
	DefaultLeft     flags     `json:"default_left"`
}

// flags accepts default_left written as booleans or as 0/1 integers,
// depending on the XGBoost version.
type flags []bool

func (f *flags) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]bool, len(raw))
	for i, r := range raw {
		switch s := strings.TrimSpace(string(r)); s {
		case "true", "1":
			out[i] = true
		case "false", "0":
			out[i] = false
		default:
			return fmt.Errorf("default_left[%d]: unexpected value %s", i, s)
		}
	}
	*f = out
	return nil
}

// LoadModel reads an XGBoost JSON model from path.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	m, err := ParseModel(data)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", path, err)
	}
	return m, nil
}

// ParseModel decodes and validates an XGBoost JSON model.
func ParseModel(data []byte) (*Model, error) {
	var f modelFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode model json: %w", err)
	}
	l := f.Learner

	if l.Objective.Name != ObjectiveBinaryLogistic {
		return nil, fmt.Errorf("unsupported objective %q, want %s", l.Objective.Name, ObjectiveBinaryLogistic)
	}
	if l.GradientBooster.Name != "" && l.GradientBooster.Name != "gbtree" {
		return nil, fmt.Errorf("unsupported booster %q", l.GradientBooster.Name)
	}
	if nc := l.LearnerModelParam.NumClass; nc != "" && nc != "0" && nc != "1" {
		return nil, fmt.Errorf("multi-class models are not supported (num_class=%s)", nc)
	}

	baseScore, err := parseParam(l.LearnerModelParam.BaseScore)
	if err != nil {
		return nil, fmt.Errorf("base_score: %w", err)
	}
	if baseScore <= 0 || baseScore >= 1 {
		return nil, fmt.Errorf("base_score %v outside (0, 1)", baseScore)
	}

	numFeature := len(l.FeatureNames)
	if l.LearnerModelParam.NumFeature != "" {
		n, err := parseParam(l.LearnerModelParam.NumFeature)
		if err != nil {
			return nil, fmt.Errorf("num_feature: %w", err)
		}
		numFeature = int(n)
	}
	if numFeature <= 0 {
		return nil, fmt.Errorf("model declares no features")
	}
	if len(l.FeatureNames) != 0 && len(l.FeatureNames) != numFeature {
		return nil, fmt.Errorf("%d feature names for num_feature %d", len(l.FeatureNames), numFeature)
	}

	trees := l.GradientBooster.Model.Trees
	if len(trees) == 0 {
		return nil, fmt.Errorf("model has no trees")
	}

	m := &Model{
		featureNames: l.FeatureNames,
		numFeature:   numFeature,
		baseMargin:   math.Log(baseScore / (1 - baseScore)),
		trees:        make([]tree, len(trees)),
	}
	for i, tf := range trees {
		t, err := buildTree(tf, numFeature)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		m.trees[i] = t
	}
	return m, nil
}

// parseParam parses a numeric learner parameter. XGBoost 2 writes
// "5E-1"; XGBoost 3 writes "[5E-1]".
func parseParam(s string) (float64, error) {
	s = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(s), "["), "]")
	return strconv.ParseFloat(s, 64)
}

// buildTree validates array lengths and that every child index points
// forward, which rules out cycles.
func buildTree(tf treeFile, numFeature int) (tree, error) {
	n := len(tf.LeftChildren)
	if n == 0 {
		return tree{}, fmt.Errorf("empty tree")
	}
	if len(tf.RightChildren) != n || len(tf.SplitIndices) != n || len(tf.SplitConditions) != n {
		return tree{}, fmt.Errorf("node arrays differ in length")
	}

	defaultLeft := []bool(tf.DefaultLeft)
	if len(defaultLeft) == 0 {
		defaultLeft = make([]bool, n)
	}
	if len(defaultLeft) != n {
		return tree{}, fmt.Errorf("default_left has %d entries for %d nodes", len(defaultLeft), n)
	}

	for i := 0; i < n; i++ {
		l, r := tf.LeftChildren[i], tf.RightChildren[i]
		if l == -1 {
			if r != -1 {
				return tree{}, fmt.Errorf("node %d: leaf with a right child", i)
			}
			continue
		}
		if l <= i || l >= n || r <= i || r >= n {
			return tree{}, fmt.Errorf("node %d: child index out of range", i)
		}
		if idx := tf.SplitIndices[i]; idx < 0 || idx >= numFeature {
			return tree{}, fmt.Errorf("node %d: split index %d out of range", i, idx)
		}
	}

	return tree{
		left:            tf.LeftChildren,
		right:           tf.RightChildren,
		splitIndices:    tf.SplitIndices,
		splitConditions: tf.SplitConditions,
		defaultLeft:     defaultLeft,
	}, nil
}
