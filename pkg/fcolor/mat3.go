package fcolor

import(
	"fmt"

	"golang.org/x/image/math/f64"
	"gonum.org/v1/gonum/mat"
)

// 3x3 matrixes and 3-vectors, used for camera color transforms.

type Vec3 f64.Vec3
type Mat3 f64.Mat3

func Identity3() Mat3 {
	return Mat3{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

func (a Mat3)Mult(b Mat3) Mat3 {
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[3*i+j] = a[3*i+0]*b[3*0+j] + a[3*i+1]*b[3*1+j] + a[3*i+2]*b[3*2+j]
		}
	}
	return out
}

func (m Mat3)Apply(v Vec3) Vec3 {
	return Vec3{
		m[3*0+0]*v[0] + m[3*0+1]*v[1] + m[3*0+2]*v[2],
		m[3*1+0]*v[0] + m[3*1+1]*v[1] + m[3*1+2]*v[2],
		m[3*2+0]*v[0] + m[3*2+1]*v[1] + m[3*2+2]*v[2],
	}
}

// Inverse inverts the matrix. Camera matrices are well-conditioned;
// a singular one gets the identity back rather than poisoning the
// pipeline with NaNs.
func (m Mat3)Inverse() Mat3 {
	src := mat.NewDense(3, 3, []float64{
		m[0], m[1], m[2],
		m[3], m[4], m[5],
		m[6], m[7], m[8],
	})
	var inv mat.Dense
	if err := inv.Inverse(src); err != nil {
		return Identity3()
	}
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[3*i+j] = inv.At(i, j)
		}
	}
	return out
}

func (m Mat3)String() string {
	str := fmt.Sprintf("[%10f, %10f, %10f]\n", m[0], m[1], m[2])
	str += fmt.Sprintf("[%10f, %10f, %10f]\n", m[3], m[4], m[5])
	str += fmt.Sprintf("[%10f, %10f, %10f]\n", m[6], m[7], m[8])
	return str
}

func (v Vec3)String() string {
	return fmt.Sprintf("[%12.10f, %12.10f, %12.10f]", v[0], v[1], v[2])
}

func (v Vec3)Min() float64 {
	min := v[0]
	if v[1] < min { min = v[1] }
	if v[2] < min { min = v[2] }
	return min
}
