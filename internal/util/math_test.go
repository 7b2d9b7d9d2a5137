package util

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoerce(t *testing.T) {
	// GIVEN
	expectedInputOutput := map[float64]float64{
		-100.0: -10.0,
		-10.0:  -10.0,
		0.0:    0.0,
		9.99:   9.99,
		62.1:   10.0,
	}

	for input, output := range expectedInputOutput {
		// WHEN
		result := Coerce(input, -10.0, 10.0)

		// THEN
		assert.Equal(t, output, result)
	}
}

func TestCoerce_Int(t *testing.T) {
	assert.Equal(t, 255, Coerce(300, 0, 255))
	assert.Equal(t, 0, Coerce(-1, 0, 255))
}

func TestIsFinite(t *testing.T) {
	assert.True(t, IsFinite(0))
	assert.True(t, IsFinite(-12.5))
	assert.False(t, IsFinite(math.NaN()))
	assert.False(t, IsFinite(math.Inf(1)))
	assert.False(t, IsFinite(math.Inf(-1)))
}

func TestAvg(t *testing.T) {
	assert.Equal(t, 0.0, Avg(nil))
	assert.Equal(t, 2.0, Avg([]float64{1, 2, 3}))
}

func TestMinMax(t *testing.T) {
	// GIVEN
	values := []float64{3, -1, 7, 2}

	// THEN
	assert.Equal(t, -1.0, Min(values))
	assert.Equal(t, 7.0, Max(values))
	assert.Equal(t, 0.0, Min(nil))
	assert.Equal(t, 0.0, Max(nil))
}
