package nn

import "fmt"

// Conv2D is a strided convolution with valid padding.
// Weight is stored as (Out, In, Kernel, Kernel).
type Conv2D struct {
	In     int
	Out    int
	Kernel int
	Stride int
	Weight []float32
	Bias   []float32
}

// NewConv2D registers the convolution's weight and bias under name
func NewConv2D(p *Params, name string, in, out, kernel, stride int, gain float64) *Conv2D {
	fanIn := in * kernel * kernel
	return &Conv2D{
		In:     in,
		Out:    out,
		Kernel: kernel,
		Stride: stride,
		Weight: p.Register(name+".weight", out*fanIn, fanIn, gain),
		Bias:   p.Register(name+".bias", out, 0, 0),
	}
}

// OutSize returns the output height and width for an h x w input.
// Either is <= 0 when the kernel does not fit.
func (c *Conv2D) OutSize(h, w int) (int, int) {
	if h < c.Kernel || w < c.Kernel {
		return 0, 0
	}
	return (h-c.Kernel)/c.Stride + 1, (w-c.Kernel)/c.Stride + 1
}

// Forward convolves x shaped (batch, In, h, w) and returns the output
// shaped (batch, Out, oh, ow) along with oh and ow.
func (c *Conv2D) Forward(x []float32, batch, h, w int) ([]float32, int, int) {
	if len(x) != batch*c.In*h*w {
		panic(fmt.Sprintf("nn: conv expects %dx%dx%d inputs per row, got %d values for batch %d", c.In, h, w, len(x), batch))
	}
	oh, ow := c.OutSize(h, w)
	if oh <= 0 || ow <= 0 {
		return nil, oh, ow
	}

	k := c.Kernel
	out := make([]float32, batch*c.Out*oh*ow)
	for b := 0; b < batch; b++ {
		img := x[b*c.In*h*w : (b+1)*c.In*h*w]
		for o := 0; o < c.Out; o++ {
			kern := c.Weight[o*c.In*k*k : (o+1)*c.In*k*k]
			dst := out[(b*c.Out+o)*oh*ow : (b*c.Out+o+1)*oh*ow]
			for y := 0; y < oh; y++ {
				for xx := 0; xx < ow; xx++ {
					sum := c.Bias[o]
					for i := 0; i < c.In; i++ {
						plane := img[i*h*w : (i+1)*h*w]
						kw := kern[i*k*k : (i+1)*k*k]
						for ky := 0; ky < k; ky++ {
							src := plane[(y*c.Stride+ky)*w+xx*c.Stride:]
							for kx := 0; kx < k; kx++ {
								sum += src[kx] * kw[ky*k+kx]
							}
						}
					}
					dst[y*ow+xx] = sum
				}
			}
		}
	}
	return out, oh, ow
}
