// Package classifier defines the bird sound CNN: its configuration, its
// layer topology and the serialized artifact that carries trained
// weights between training and inference.
package classifier

import (
	"fmt"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/audio/fbank"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/birdid"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/nn"
)

// ModelName is the name given to built models.
const ModelName = "BirdSoundClassifier"

// Config sizes the network.
type Config struct {
	NumClasses   int     `json:"numClasses" yaml:"num_classes" msgpack:"num_classes"`
	InputHeight  int     `json:"inputHeight" yaml:"input_height" msgpack:"input_height"`
	InputWidth   int     `json:"inputWidth" yaml:"input_width" msgpack:"input_width"`
	LearningRate float64 `json:"learningRate" yaml:"learning_rate" msgpack:"learning_rate"`
	DropoutRate  float64 `json:"dropoutRate" yaml:"dropout_rate" msgpack:"dropout_rate"`
	Seed         int64   `json:"seed" yaml:"seed" msgpack:"seed"`
}

// DefaultConfig derives the input size from the spectrogram config and
// uses learning rate 0.001 and dropout 0.3.
func DefaultConfig(numClasses int, spec fbank.Config) Config {
	h, w := spec.Dimensions()
	return Config{
		NumClasses:   numClasses,
		InputHeight:  h,
		InputWidth:   w,
		LearningRate: 0.001,
		DropoutRate:  0.3,
	}
}

// Validate checks the config can produce a network.
func (c Config) Validate() error {
	switch {
	case c.NumClasses < 2:
		return fmt.Errorf("classifier: %d classes, need at least 2: %w", c.NumClasses, birdid.ErrPrecondition)
	case c.InputHeight < 16 || c.InputWidth < 16:
		// Four 2x2 poolings need at least 16 in each axis.
		return fmt.Errorf("classifier: input %dx%d smaller than 16x16: %w", c.InputHeight, c.InputWidth, birdid.ErrPrecondition)
	case c.LearningRate <= 0:
		return fmt.Errorf("classifier: learning rate %g: %w", c.LearningRate, birdid.ErrPrecondition)
	case c.DropoutRate < 0 || c.DropoutRate >= 1:
		return fmt.Errorf("classifier: dropout rate %g: %w", c.DropoutRate, birdid.ErrPrecondition)
	}
	return nil
}

func convBlock(name string, filters int) []nn.Layer {
	return []nn.Layer{
		nn.NewConv2D(name+"_conv", filters, 3, nn.Same, nn.ReLUActivation, nn.HeNormal),
		nn.NewBatchNorm(name + "_bn"),
		nn.NewMaxPool2D(name+"_pool", 2),
	}
}

func separableBlock(name string, filters int) []nn.Layer {
	return []nn.Layer{
		nn.NewDepthwiseConv2D(name+"_dw", 3, nn.Same, nn.ReLUActivation, nn.GlorotNormal),
		nn.NewBatchNorm(name + "_dw_bn"),
		nn.NewConv2D(name+"_pw", filters, 1, nn.Same, nn.ReLUActivation, nn.GlorotNormal),
		nn.NewBatchNorm(name + "_pw_bn"),
		nn.NewMaxPool2D(name+"_pool", 2),
	}
}

// Build constructs the uncompiled network:
//
//	block1  conv 32 3x3 relu, bn, maxpool 2x2
//	block2  conv 64 3x3 relu, bn, maxpool 2x2
//	block3  depthwise 3x3 relu, bn, pointwise 128 relu, bn, maxpool 2x2
//	block4  depthwise 3x3 relu, bn, pointwise 256 relu, bn, maxpool 2x2
//	global average pool
//	fc1 512 relu, dropout; fc2 256 relu, dropout
//	predictions numClasses softmax
func Build(cfg Config) (*nn.Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var layers []nn.Layer
	layers = append(layers, convBlock("block1", 32)...)
	layers = append(layers, convBlock("block2", 64)...)
	layers = append(layers, separableBlock("block3", 128)...)
	layers = append(layers, separableBlock("block4", 256)...)
	layers = append(layers,
		nn.NewGlobalAvgPool2D("global_avg_pool"),
		nn.NewDense("fc1", 512, nn.ReLUActivation, nn.HeNormal),
		nn.NewDropout("dropout1", cfg.DropoutRate),
		nn.NewDense("fc2", 256, nn.ReLUActivation, nn.HeNormal),
		nn.NewDropout("dropout2", cfg.DropoutRate),
		nn.NewDense("predictions", cfg.NumClasses, nn.SoftmaxActivation, nn.GlorotNormal),
	)
	m, err := nn.NewModel(ModelName, []int{cfg.InputHeight, cfg.InputWidth, 1}, cfg.Seed, layers...)
	if err != nil {
		return nil, fmt.Errorf("classifier: build: %w", err)
	}
	return m, nil
}

// Compile attaches Adam at the given learning rate and categorical
// cross-entropy. Accuracy is always reported by the model.
func Compile(m *nn.Model, learningRate float64) {
	m.Compile(nn.NewAdam(learningRate), nn.CategoricalCrossEntropy{})
}

// New builds and compiles a model from cfg.
func New(cfg Config) (*nn.Model, error) {
	m, err := Build(cfg)
	if err != nil {
		return nil, err
	}
	Compile(m, cfg.LearningRate)
	return m, nil
}
