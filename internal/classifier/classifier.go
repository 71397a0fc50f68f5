// Package classifier scores feature vectors with a pre-trained
// gradient-boosted tree ensemble.
//
// The model is a binary classifier where class 1 is post-peak and class 0
// is pre-peak.
package classifier

import (
	"fmt"
	"math"

	"github.com/carter293/hasItPumped/internal/domain"
)

// Classifier is safe for concurrent use.
type Classifier struct {
	model *Model
}

// New binds a model to the feature layout it will be fed.
// featureNames must equal the model's names in arity and order.
func New(model *Model, featureNames []string) (*Classifier, error) {
	if model == nil {
		return nil, fmt.Errorf("nil model")
	}
	if model.NumFeature() != len(featureNames) {
		return nil, fmt.Errorf("model expects %d features, engine provides %d",
			model.NumFeature(), len(featureNames))
	}
	for i, name := range model.featureNames {
		if name != featureNames[i] {
			return nil, fmt.Errorf("feature %d: model has %q, engine has %q", i, name, featureNames[i])
		}
	}
	return &Classifier{model: model}, nil
}

// Predict returns the verdict for one feature vector.
// Confidence is the probability of the predicted class, in [0.5, 1].
func (c *Classifier) Predict(x []float64) (domain.Verdict, error) {
	if len(x) != c.model.NumFeature() {
		return domain.Verdict{}, fmt.Errorf("%w: got %d values, want %d",
			domain.ErrInvalidFeatures, len(x), c.model.NumFeature())
	}
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return domain.Verdict{}, fmt.Errorf("%w: value %d is %v", domain.ErrInvalidFeatures, i, v)
		}
	}

	pPost := sigmoid(c.model.Margin(x))
	pPre := 1 - pPost

	if pPre >= 0.5 {
		return domain.Verdict{IsPrePeak: true, Confidence: pPre}, nil
	}
	return domain.Verdict{IsPrePeak: false, Confidence: pPost}, nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
