package randomutil

import (
	"math/rand"
)

type RandomGenerator interface {
	GenerateFloat32() float32
}

type RandomNumberGenerator struct{}

func (RandomNumberGenerator) GenerateFloat32() float32 {
	return rand.Float32()
}
