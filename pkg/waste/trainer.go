package waste

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/xhad/agrigenius/internal/logging"
	"github.com/xhad/agrigenius/pkg/forest"
)

type TrainConfig struct {
	NTrees         int     // default 100
	TestSize       float64 // held-out fraction, default 0.2
	Seed           int64   // default 42
	MaxDepth       int
	MinSamplesLeaf int
}

func (c TrainConfig) withDefaults() TrainConfig {
	if c.NTrees <= 0 {
		c.NTrees = 100
	}
	if c.TestSize <= 0 || c.TestSize >= 1 {
		c.TestSize = 0.2
	}
	if c.Seed == 0 {
		c.Seed = 42
	}
	if c.MinSamplesLeaf <= 0 {
		c.MinSamplesLeaf = 1
	}
	return c
}

// Metrics describe the model on the held-out rows.
type Metrics struct {
	TrainRows int     `json:"train_rows"`
	TestRows  int     `json:"test_rows"`
	MAE       float64 `json:"mae"`
	RMSE      float64 `json:"rmse"`
	R2        float64 `json:"r2"`
}

// Model is a fitted forest together with the schema it expects. It is
// immutable after Train.
type Model struct {
	schema  *Schema
	forest  *forest.Forest
	metrics Metrics
	trained time.Time
}

func (m *Model) Schema() *Schema {
	return m.schema
}

func (m *Model) Metrics() Metrics {
	return m.metrics
}

func (m *Model) TrainedAt() time.Time {
	return m.trained
}

// PredictRow runs the forest on a row already aligned to Schema.
func (m *Model) PredictRow(row []float64) (float64, error) {
	if len(row) != m.schema.Width() {
		return 0, goerr.New("row does not match schema",
			goerr.V("width", len(row)), goerr.V("schema_version", m.schema.Version))
	}
	return m.forest.Predict(row)
}

// Train encodes the dataset, splits it with a seeded shuffle and fits the
// forest on the training part. The held-out part is scored into Metrics.
func Train(ctx context.Context, ds *Dataset, cfg TrainConfig) (*Model, error) {
	cfg = cfg.withDefaults()
	logger := logging.From(ctx)
	started := time.Now()

	schema, X, y, err := ds.Encode()
	if err != nil {
		return nil, goerr.Wrap(err, "encode dataset")
	}

	trainIdx, testIdx := Split(len(X), cfg.TestSize, cfg.Seed)
	if len(trainIdx) == 0 {
		return nil, goerr.Wrap(ErrBadDataset, "not enough rows to train", goerr.V("rows", len(X)))
	}

	f := forest.NewWithConfig(forest.ForestConfig{
		NTrees:         cfg.NTrees,
		MaxDepth:       cfg.MaxDepth,
		MinSamplesLeaf: cfg.MinSamplesLeaf,
		Seed:           cfg.Seed,
	})
	trainX, trainY := pick(X, y, trainIdx)
	if err := f.Fit(trainX, trainY); err != nil {
		return nil, goerr.Wrap(err, "fit forest")
	}

	m := &Model{schema: schema, forest: f, trained: time.Now()}
	m.metrics = Metrics{TrainRows: len(trainIdx), TestRows: len(testIdx)}
	if len(testIdx) > 0 {
		testX, testY := pick(X, y, testIdx)
		pred, err := f.PredictAll(testX)
		if err != nil {
			return nil, goerr.Wrap(err, "score test split")
		}
		m.metrics.MAE, m.metrics.RMSE, m.metrics.R2 = score(testY, pred)
	}

	logger.Info("trained waste model",
		"rows", len(X),
		"features", schema.Width(),
		"schema_version", schema.Version,
		"trees", cfg.NTrees,
		"test_mae", m.metrics.MAE,
		"test_r2", m.metrics.R2,
		"elapsed", time.Since(started).Round(time.Millisecond))
	return m, nil
}

// Split shuffles row indices with seed and holds out ceil(n*testSize) of
// them for testing.
func Split(n int, testSize float64, seed int64) (train, test []int) {
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	nTest := int(math.Ceil(float64(n) * testSize))
	if nTest >= n {
		nTest = n - 1
	}
	if nTest < 0 {
		nTest = 0
	}
	return perm[nTest:], perm[:nTest]
}

func pick(X [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	px := make([][]float64, len(idx))
	py := make([]float64, len(idx))
	for i, j := range idx {
		px[i] = X[j]
		py[i] = y[j]
	}
	return px, py
}

func score(truth, pred []float64) (mae, rmse, r2 float64) {
	var mean float64
	for _, v := range truth {
		mean += v
	}
	mean /= float64(len(truth))

	var absSum, sqSum, total float64
	for i, v := range truth {
		d := v - pred[i]
		absSum += math.Abs(d)
		sqSum += d * d
		total += (v - mean) * (v - mean)
	}
	n := float64(len(truth))
	mae = absSum / n
	rmse = math.Sqrt(sqSum / n)
	if total > 0 {
		r2 = 1 - sqSum/total
	}
	return mae, rmse, r2
}
