// Package color converts 8-bit texels between the sRGB transfer curve and
// linear light, so that color pyramids are filtered in linear space.
package color

import "math"

// Space is the color space of stored texels.
type Space uint8

const (
	// SRGB texels are gamma encoded with the sRGB transfer curve.
	SRGB Space = iota
	// Linear texels store linear light.
	Linear
)

// String returns the name used in configuration files.
func (s Space) String() string {
	if s == Linear {
		return "linear"
	}
	return "srgb"
}

// ParseSpace parses "srgb" or "linear". Anything else is sRGB.
func ParseSpace(name string) Space {
	if name == "linear" {
		return Linear
	}
	return SRGB
}

// toLinearLUT maps an sRGB byte to linear light in [0, 1].
var toLinearLUT [256]float32

// fromLinearLUT maps linear light quantized to 12 bits to an sRGB byte.
var fromLinearLUT [4096]uint8

func init() {
	for i := range toLinearLUT {
		toLinearLUT[i] = float32(rgbToLinear(float64(i) / 255))
	}
	for i := range fromLinearLUT {
		fromLinearLUT[i] = quantize(linearToRGB(float64(i) / 4095))
	}
}

func rgbToLinear(s float64) float64 {
	if s <= 0.04045 {
		return s / 12.92
	}
	return math.Pow((s+0.055)/1.055, 2.4)
}

func linearToRGB(l float64) float64 {
	if l <= 0.0031308 {
		return l * 12.92
	}
	return 1.055*math.Pow(l, 1/2.4) - 0.055
}

func quantize(v float64) uint8 {
	return uint8(min(max(math.Round(v*255), 0), 255))
}

// ToLinear returns the linear value of a texel component in [0, 1]. Alpha
// components must not be converted.
func (s Space) ToLinear(v uint8) float32 {
	if s == Linear {
		return float32(v) / 255
	}
	return toLinearLUT[v]
}

// FromLinear encodes a linear value, clamped to [0, 1], as a texel
// component.
func (s Space) FromLinear(l float32) uint8 {
	l = min(max(l, 0), 1)
	if s == Linear {
		return quantize(float64(l))
	}
	return fromLinearLUT[int(l*4095+0.5)]
}

// Decode converts interleaved texels to linear values. The fourth channel
// of RGBA texels is alpha and is only rescaled.
func (s Space) Decode(pix []byte, channels int, dst []float32) []float32 {
	dst = dst[:0]
	for i, v := range pix {
		if channels == 4 && i%4 == 3 {
			dst = append(dst, float32(v)/255)
			continue
		}
		dst = append(dst, s.ToLinear(v))
	}
	return dst
}

// Encode is the inverse of Decode.
func (s Space) Encode(values []float32, channels int, dst []byte) []byte {
	dst = dst[:0]
	for i, v := range values {
		if channels == 4 && i%4 == 3 {
			dst = append(dst, quantize(float64(min(max(v, 0), 1))))
			continue
		}
		dst = append(dst, s.FromLinear(v))
	}
	return dst
}
