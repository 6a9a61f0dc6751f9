package encoder

import (
	"fmt"

	"impulsewars/internal/nn"
	"impulsewars/internal/obs"
)

// Config holds the encoder widths
type Config struct {
	CNNChannels        int `yaml:"cnn_channels" json:"cnn_channels"`
	EmbedDims          int `yaml:"embed_dims" json:"embed_dims"`
	FloatingWallHidden int `yaml:"floating_wall_hidden" json:"floating_wall_hidden"`
	EnemyHidden        int `yaml:"enemy_hidden" json:"enemy_hidden"`
	OwnHidden          int `yaml:"own_hidden" json:"own_hidden"`
	Latent             int `yaml:"latent" json:"latent"`
}

// DefaultConfig returns the standard network widths
func DefaultConfig() Config {
	return Config{
		CNNChannels:        32,
		EmbedDims:          3,
		FloatingWallHidden: 32,
		EnemyHidden:        32,
		OwnHidden:          64,
		Latent:             128,
	}
}

// Validate checks that every width is positive
func (c Config) Validate() error {
	widths := []struct {
		name string
		v    int
	}{
		{"cnn_channels", c.CNNChannels},
		{"embed_dims", c.EmbedDims},
		{"floating_wall_hidden", c.FloatingWallHidden},
		{"enemy_hidden", c.EnemyHidden},
		{"own_hidden", c.OwnHidden},
		{"latent", c.Latent},
	}
	for _, w := range widths {
		if w.v <= 0 {
			return fmt.Errorf("%w: encoder %s must be positive, got %d", obs.ErrConfig, w.name, w.v)
		}
	}
	return nil
}

// Encoder fuses the spatial branch and every entity branch into one latent vector
type Encoder struct {
	layout  *obs.Layout
	cfg     Config
	weapons *nn.Embedding
	spatial *Spatial
	units   []*Unit
	fusion  *Fusion
}

// New builds every branch against the layout and registers its parameters in p.
// The weapon embedding table is shared by the map and all entity branches.
func New(p *nn.Params, l *obs.Layout, cfg Config) (*Encoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Encoder{
		layout:  l,
		cfg:     cfg,
		weapons: nn.NewEmbedding(p, "weapon_embedding", l.Cardinality(obs.DomainWeapon), cfg.EmbedDims),
	}

	var err error
	e.spatial, err = NewSpatial(p, l, e.weapons, cfg.CNNChannels)
	if err != nil {
		return nil, err
	}
	branches := []Branch{{Name: "map", Width: e.spatial.Width()}}

	for _, spec := range unitSpecs(l, cfg) {
		u, err := NewUnit(p, l, e.weapons, spec)
		if err != nil {
			return nil, err
		}
		e.units = append(e.units, u)
		branches = append(branches, Branch{Name: u.Name(), Width: u.Width()})
	}

	e.fusion = NewFusion(p, branches, cfg.Latent)
	return e, nil
}

// Encode maps a decoded observation batch to latents shaped (batch, Latent)
func (e *Encoder) Encode(o *obs.Observation) ([]float32, error) {
	outputs := make([][]float32, 0, len(e.units)+1)
	outputs = append(outputs, e.spatial.Forward(o.Map))
	for _, u := range e.units {
		outputs = append(outputs, u.Forward(o.Scalars))
	}
	return e.fusion.Forward(outputs, o.Batch)
}

// Branches returns the fusion inputs in order with their widths
func (e *Encoder) Branches() []Branch { return e.fusion.Branches() }

// FeatureWidth returns the concatenated branch width
func (e *Encoder) FeatureWidth() int { return e.fusion.Width() }

// LatentSize returns the output width
func (e *Encoder) LatentSize() int { return e.cfg.Latent }

// Weapons returns the shared weapon embedding table
func (e *Encoder) Weapons() *nn.Embedding { return e.weapons }

// Spatial returns the map branch
func (e *Encoder) Spatial() *Spatial { return e.spatial }

// Unit returns the entity branch with the given name, or nil
func (e *Encoder) Unit(name string) *Unit {
	for _, u := range e.units {
		if u.Name() == name {
			return u
		}
	}
	return nil
}
