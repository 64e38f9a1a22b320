package camera

import (
	"fmt"
	"math"
)

// Pose is the rigid sonar-to-camera transform: an axis-angle rotation
// vector (Rodrigues form, radians) and a translation in meters. The last
// saved pose wins; there is no versioning.
type Pose struct {
	Rotation    [3]float64 `json:"rvec"`
	Translation [3]float64 `json:"tvec"`
}

// Validate checks both vectors are finite.
func (p *Pose) Validate() error {
	if p == nil {
		return fmt.Errorf("pose is nil")
	}
	for i := 0; i < 3; i++ {
		if math.IsNaN(p.Rotation[i]) || math.IsInf(p.Rotation[i], 0) {
			return fmt.Errorf("rotation component %d is not finite", i)
		}
		if math.IsNaN(p.Translation[i]) || math.IsInf(p.Translation[i], 0) {
			return fmt.Errorf("translation component %d is not finite", i)
		}
	}
	return nil
}

// RotationMatrix expands the axis-angle vector into a row-major 3x3
// rotation matrix.
func (p *Pose) RotationMatrix() [9]float64 {
	return AxisAngleToMatrix(p.Rotation)
}

// Apply transforms a sonar-frame point into the camera frame.
func (p *Pose) Apply(x, y, z float64) (cx, cy, cz float64) {
	r := p.RotationMatrix()
	cx = r[0]*x + r[1]*y + r[2]*z + p.Translation[0]
	cy = r[3]*x + r[4]*y + r[5]*z + p.Translation[1]
	cz = r[6]*x + r[7]*y + r[8]*z + p.Translation[2]
	return cx, cy, cz
}

// AxisAngleToMatrix converts a Rodrigues rotation vector to a row-major
// 3x3 rotation matrix.
func AxisAngleToMatrix(r [3]float64) [9]float64 {
	theta := math.Sqrt(r[0]*r[0] + r[1]*r[1] + r[2]*r[2])
	if theta < 1e-12 {
		// First-order expansion near identity.
		return [9]float64{
			1, -r[2], r[1],
			r[2], 1, -r[0],
			-r[1], r[0], 1,
		}
	}
	kx, ky, kz := r[0]/theta, r[1]/theta, r[2]/theta
	c := math.Cos(theta)
	s := math.Sin(theta)
	t := 1 - c
	return [9]float64{
		c + kx*kx*t, kx*ky*t - kz*s, kx*kz*t + ky*s,
		ky*kx*t + kz*s, c + ky*ky*t, ky*kz*t - kx*s,
		kz*kx*t - ky*s, kz*ky*t + kx*s, c + kz*kz*t,
	}
}

// MatrixToAxisAngle converts a row-major 3x3 rotation matrix back to a
// Rodrigues rotation vector.
func MatrixToAxisAngle(m [9]float64) [3]float64 {
	trace := m[0] + m[4] + m[8]
	cosTheta := (trace - 1) / 2
	if cosTheta > 1 {
		cosTheta = 1
	} else if cosTheta < -1 {
		cosTheta = -1
	}
	theta := math.Acos(cosTheta)

	if theta < 1e-9 {
		return [3]float64{}
	}
	if math.Pi-theta < 1e-6 {
		// Near 180 degrees the off-diagonal differences vanish; recover the
		// axis from the diagonal instead.
		kx := math.Sqrt(math.Max(0, (m[0]+1)/2))
		ky := math.Sqrt(math.Max(0, (m[4]+1)/2))
		kz := math.Sqrt(math.Max(0, (m[8]+1)/2))
		// Fix signs using the largest component.
		switch {
		case kx >= ky && kx >= kz:
			if m[1]+m[3] < 0 {
				ky = -ky
			}
			if m[2]+m[6] < 0 {
				kz = -kz
			}
		case ky >= kx && ky >= kz:
			if m[1]+m[3] < 0 {
				kx = -kx
			}
			if m[5]+m[7] < 0 {
				kz = -kz
			}
		default:
			if m[2]+m[6] < 0 {
				kx = -kx
			}
			if m[5]+m[7] < 0 {
				ky = -ky
			}
		}
		return [3]float64{kx * theta, ky * theta, kz * theta}
	}

	scale := theta / (2 * math.Sin(theta))
	return [3]float64{
		(m[7] - m[5]) * scale,
		(m[2] - m[6]) * scale,
		(m[3] - m[1]) * scale,
	}
}
