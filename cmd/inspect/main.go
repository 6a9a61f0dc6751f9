package main

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"impulsewars/internal/config"
	"impulsewars/internal/encoder"
	"impulsewars/internal/logging"
	"impulsewars/internal/nn"
	"impulsewars/internal/obs"
	"impulsewars/internal/policy"
	"impulsewars/internal/rollout"
)

var (
	frameIndex int
	asJSON     bool
	synthOut   string
	synthCount int
)

var rootCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Inspect observation layouts, buffers and policy outputs",
	Long: `Inspect works on raw observation dumps: files holding one or more
observations back to back, exactly as the simulator writes them.

The layout is fixed by --num-drones and --ruleset (or a config file), and a
dump whose size is not a multiple of the observation size is rejected.`,
	SilenceUsage: true,
}

var layoutCmd = &cobra.Command{
	Use:   "layout",
	Short: "Print the byte layout and encoder branch widths",
	Args:  cobra.NoArgs,
	RunE:  runLayout,
}

var decodeCmd = &cobra.Command{
	Use:   "decode FILE",
	Short: "Decode an observation dump into typed records",
	Args:  cobra.ExactArgs(1),
	RunE:  runDecode,
}

var forwardCmd = &cobra.Command{
	Use:   "forward FILE",
	Short: "Run one policy forward pass over every observation in a dump",
	Args:  cobra.ExactArgs(1),
	RunE:  runForward,
}

var synthCmd = &cobra.Command{
	Use:   "synth",
	Short: "Write synthetic observations to a dump file",
	Args:  cobra.NoArgs,
	RunE:  runSynth,
}

func init() {
	config.AddFlags(rootCmd.PersistentFlags())

	decodeCmd.Flags().IntVar(&frameIndex, "index", -1, "Only decode this observation (-1 for all)")
	decodeCmd.Flags().BoolVar(&asJSON, "json", false, "Print frames as JSON instead of a map drawing")
	synthCmd.Flags().StringVar(&synthOut, "out", "obs.bin", "Output file")
	synthCmd.Flags().IntVar(&synthCount, "count", 4, "Observations to write")

	rootCmd.AddCommand(layoutCmd, decodeCmd, forwardCmd, synthCmd)

	if err := config.BindFlags(viper.GetViper(), rootCmd.PersistentFlags()); err != nil {
		panic(err)
	}
}

func loadCodec() (*config.Config, *obs.Codec, error) {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	ruleset, err := cfg.Ruleset()
	if err != nil {
		return nil, nil, err
	}
	layout, err := obs.NewLayout(cfg.Env.NumDrones, ruleset)
	if err != nil {
		return nil, nil, err
	}
	codec, err := obs.NewCodec(layout)
	if err != nil {
		return nil, nil, err
	}
	return cfg, codec, nil
}

// readDump returns the dump and the number of observations it holds
func readDump(path string, l *obs.Layout) ([]byte, int, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	if len(buf) == 0 || len(buf)%l.ObsBytes != 0 {
		return nil, 0, fmt.Errorf("%w: %s is %d bytes, not a multiple of %d",
			obs.ErrMalformedBuffer, path, len(buf), l.ObsBytes)
	}
	return buf, len(buf) / l.ObsBytes, nil
}

func runLayout(cmd *cobra.Command, args []string) error {
	cfg, codec, err := loadCodec()
	if err != nil {
		return err
	}
	l := codec.Layout()

	fmt.Printf("Ruleset %s, %d drones\n", l.Ruleset, l.NumDrones)
	fmt.Printf("Map:     %d x %d cells, %d bytes\n", l.Columns, l.Rows, l.MapBytes)
	fmt.Printf("Scalars: offset %d, %d bytes\n", l.ScalarOffset, l.ScalarBytes())
	fmt.Printf("Total:   %d bytes per observation\n", l.ObsBytes)
	fmt.Println("---")

	fmt.Println("Map fields:")
	for _, f := range l.MapFields {
		fmt.Printf("  %-14s mask %#04x shift %d cardinality %d\n", f.Name, f.Mask, f.Shift, l.Cardinality(f.Domain))
	}

	fmt.Println("Scalar fields:")
	off := l.ScalarOffset
	for _, f := range l.Scalar {
		fmt.Printf("  %-20s @%5d  %4d x %d bytes\n", f.ID, off, f.Count, f.Type.Size())
		off += f.Width()
	}
	fmt.Println("---")

	enc, err := encoder.New(nn.NewParams(), l, cfg.Policy.Encoder)
	if err != nil {
		return err
	}
	fmt.Println("Encoder branches:")
	for _, b := range enc.Branches() {
		fmt.Printf("  %-16s %5d\n", b.Name, b.Width)
	}
	fmt.Printf("  %-16s %5d -> latent %d\n", "total", enc.FeatureWidth(), enc.LatentSize())
	return nil
}

func runDecode(cmd *cobra.Command, args []string) error {
	_, codec, err := loadCodec()
	if err != nil {
		return err
	}
	buf, n, err := readDump(args[0], codec.Layout())
	if err != nil {
		return err
	}
	o, err := codec.Decode(buf, n)
	if err != nil {
		return err
	}

	for b := 0; b < n; b++ {
		if frameIndex >= 0 && b != frameIndex {
			continue
		}
		f := codec.Frame(o, b)
		if asJSON {
			data, err := json.MarshalIndent(f, "", "  ")
			if err != nil {
				return fmt.Errorf("observation %d: %w", b, err)
			}
			fmt.Println(string(data))
			continue
		}
		fmt.Printf("Observation %d\n", b)
		NewDisplay(codec.Layout()).Render(f)
	}
	if frameIndex >= n {
		return fmt.Errorf("index %d out of range, dump holds %d observations", frameIndex, n)
	}
	return nil
}

func runForward(cmd *cobra.Command, args []string) error {
	cfg, codec, err := loadCodec()
	if err != nil {
		return err
	}
	buf, n, err := readDump(args[0], codec.Layout())
	if err != nil {
		return err
	}

	pc, err := cfg.PolicyConfig()
	if err != nil {
		return err
	}
	p, err := policy.New(pc)
	if err != nil {
		return err
	}
	if cfg.Policy.Checkpoint != "" {
		ck, err := logging.LoadCheckpoint(cfg.Policy.Checkpoint)
		if err != nil {
			return err
		}
		if err := logging.ApplyCheckpoint(p, ck); err != nil {
			return err
		}
	}

	out, _, err := p.Forward(buf, n, p.InitialState(n), rand.NewPCG(cfg.Policy.Seed, cfg.Env.Seed))
	if err != nil {
		return err
	}
	mode := out.Dist.Mode()
	logProbs := out.Dist.LogProb(mode)
	entropy := out.Dist.Entropy()
	for b := 0; b < n; b++ {
		fmt.Printf("[%d] value %8.4f  entropy %8.4f  log_prob %8.4f  action ", b, out.Values[b], entropy[b], logProbs[b])
		if len(mode.Continuous) > 0 {
			dims := len(mode.Continuous) / n
			fmt.Printf("%.4f\n", mode.Continuous[b*dims:(b+1)*dims])
		} else {
			dims := len(mode.Discrete) / n
			fmt.Printf("%d\n", mode.Discrete[b*dims:(b+1)*dims])
		}
	}
	return nil
}

func runSynth(cmd *cobra.Command, args []string) error {
	cfg, codec, err := loadCodec()
	if err != nil {
		return err
	}
	sc := cfg.SyntheticConfig()
	sc.NumEnvs = synthCount
	env, err := rollout.NewSyntheticEnv(codec, sc)
	if err != nil {
		return err
	}
	defer env.Close()

	buf, err := env.Reset(cfg.Env.Seed)
	if err != nil {
		return err
	}
	if err := os.WriteFile(synthOut, buf, 0644); err != nil {
		return err
	}
	fmt.Printf("Wrote %d observations (%d bytes) to %s\n", synthCount, len(buf), synthOut)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
