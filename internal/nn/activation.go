package nn

import "math"

// LeakySlope is the negative slope used by every LeakyReLU in the network
const LeakySlope = 0.01

// LeakyReLU applies max(x, slope*x) in place
func LeakyReLU(x []float32) {
	for i, v := range x {
		if v < 0 {
			x[i] = v * LeakySlope
		}
	}
}

func sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}

func tanh(x float32) float32 {
	return float32(math.Tanh(float64(x)))
}

// MaxPool reduces x shaped (batch, slots, width) over the slot axis
func MaxPool(x []float32, batch, slots, width int) []float32 {
	if len(x) != batch*slots*width {
		panic("nn: MaxPool input size")
	}
	out := make([]float32, batch*width)
	for b := 0; b < batch; b++ {
		dst := out[b*width : (b+1)*width]
		copy(dst, x[b*slots*width:])
		for s := 1; s < slots; s++ {
			row := x[(b*slots+s)*width : (b*slots+s+1)*width]
			for i, v := range row {
				if v > dst[i] {
					dst[i] = v
				}
			}
		}
	}
	return out
}

// Argmax returns the index of the largest value
func Argmax(vals []float32) int {
	maxIdx := 0
	maxVal := vals[0]
	for i := 1; i < len(vals); i++ {
		if vals[i] > maxVal {
			maxVal = vals[i]
			maxIdx = i
		}
	}
	return maxIdx
}
