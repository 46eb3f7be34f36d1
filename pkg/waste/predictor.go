package waste

import (
	"math"

	"github.com/m-mizutani/goerr/v2"
)

type Prediction struct {
	FarmArea       float64 `json:"farm_area"`
	PredictedWaste float64 `json:"predicted_waste"`
}

// Predictor serves a trained Model. It holds no mutable state, so one value
// can be shared by every request.
type Predictor struct {
	model   *Model
	lenient bool
}

func NewPredictor(model *Model, lenient bool) (*Predictor, error) {
	if model == nil {
		return nil, goerr.New("predictor needs a trained model")
	}
	return &Predictor{model: model, lenient: lenient}, nil
}

func (p *Predictor) Model() *Model {
	return p.model
}

// Encode returns the request as a row in the model's schema order.
func (p *Predictor) Encode(req Request) []float64 {
	return p.model.schema.Align(req.Features())
}

// Predict validates and encodes req, then returns the forest output rounded
// to two decimals alongside the requested crop area.
func (p *Predictor) Predict(req Request) (Prediction, error) {
	if err := req.Validate(p.lenient); err != nil {
		return Prediction{}, err
	}
	v, err := p.model.PredictRow(p.Encode(req))
	if err != nil {
		return Prediction{}, goerr.Wrap(err, "predict waste")
	}
	return Prediction{
		FarmArea:       req.CropArea,
		PredictedWaste: math.Round(v*100) / 100,
	}, nil
}
