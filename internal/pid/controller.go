package pid

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/markusressel/depth2go/internal/util"
)

const (
	// DefaultMaxThrust is the symmetric output limit used when no other limit is configured
	DefaultMaxThrust = 10.0
)

var (
	ErrInvalidTimeStep   = errors.New("time step must be greater than zero")
	ErrNonFinite         = errors.New("value must be a finite number")
	ErrInvalidMaxThrust  = errors.New("max thrust must be a finite number greater than zero")
	ErrUnknownAntiWindup = errors.New("unknown anti-windup policy")
)

// AntiWindup selects how the integral term behaves while the output is saturated.
type AntiWindup string

const (
	// AntiWindupNone always integrates the error, even when the output is clamped.
	// The integral may grow without bound during long saturated phases.
	AntiWindupNone AntiWindup = "none"
	// AntiWindupConditional skips integration while the last command was saturated
	// and the current error pushes further into the same limit.
	AntiWindupConditional AntiWindup = "conditional"
)

// ParseAntiWindup converts a (case-insensitive) policy name, empty means AntiWindupNone.
func ParseAntiWindup(value string) (AntiWindup, error) {
	switch AntiWindup(strings.ToLower(strings.TrimSpace(value))) {
	case "", AntiWindupNone:
		return AntiWindupNone, nil
	case AntiWindupConditional:
		return AntiWindupConditional, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownAntiWindup, value)
}

type Gains struct {
	P float64 `json:"p"`
	I float64 `json:"i"`
	D float64 `json:"d"`
}

// Result describes a single Step of the Controller.
type Result struct {
	Error      float64 `json:"error"`
	Integral   float64 `json:"integral"`
	Derivative float64 `json:"derivative"`
	// Raw is the unclamped weighted sum of all terms
	Raw float64 `json:"raw"`
	// Command is Raw, clamped to [-MaxThrust, +MaxThrust]
	Command   float64 `json:"command"`
	Saturated bool    `json:"saturated"`
}

// Controller is a fixed time step PID controller.
//
// A Controller is not safe for concurrent use, it is meant to be owned
// by exactly one control loop.
type Controller struct {
	gains      Gains
	timeStep   time.Duration
	dt         float64
	maxThrust  float64
	antiWindup AntiWindup

	setpoint float64

	// accumulated error * dt
	integral float64
	// error of the previous Step, 0 before the first one
	previousError float64

	last Result
}

type Option func(c *Controller)

// WithMaxThrust sets the symmetric output limit
func WithMaxThrust(maxThrust float64) Option {
	return func(c *Controller) {
		c.maxThrust = maxThrust
	}
}

func WithAntiWindup(policy AntiWindup) Option {
	return func(c *Controller) {
		c.antiWindup = policy
	}
}

// NewController creates a Controller for the given gains, setpoint and fixed time step.
// Invalid parameters are rejected, no Controller is returned in that case.
func NewController(gains Gains, setpoint float64, dt time.Duration, options ...Option) (*Controller, error) {
	c := &Controller{
		gains:      gains,
		timeStep:   dt,
		dt:         dt.Seconds(),
		maxThrust:  DefaultMaxThrust,
		antiWindup: AntiWindupNone,
		setpoint:   setpoint,
	}
	for _, option := range options {
		option(c)
	}

	if dt <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTimeStep, dt)
	}
	parameters := []struct {
		name  string
		value float64
	}{
		{"p", gains.P},
		{"i", gains.I},
		{"d", gains.D},
		{"setpoint", setpoint},
	}
	for _, parameter := range parameters {
		if !util.IsFinite(parameter.value) {
			return nil, fmt.Errorf("%s: %w", parameter.name, ErrNonFinite)
		}
	}
	if !util.IsFinite(c.maxThrust) || c.maxThrust <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMaxThrust, c.maxThrust)
	}
	policy, err := ParseAntiWindup(string(c.antiWindup))
	if err != nil {
		return nil, err
	}
	c.antiWindup = policy

	return c, nil
}

// Compute advances the controller by one time step and returns the clamped command
// for the given measurement.
func (c *Controller) Compute(measurement float64) float64 {
	return c.Step(measurement).Command
}

// Step advances the controller by one time step.
//
// The derivative uses the error of the previous step, which is 0 on the very first call.
// The first derivative term therefore reflects the full initial error (cold-start transient).
func (c *Controller) Step(measurement float64) Result {
	err := c.setpoint - measurement

	if c.shouldIntegrate(err) {
		c.integral += err * c.dt
	}
	derivative := (err - c.previousError) / c.dt

	raw := c.gains.P*err + c.gains.I*c.integral + c.gains.D*derivative

	c.previousError = err

	command := util.Coerce(raw, -c.maxThrust, c.maxThrust)

	c.last = Result{
		Error:      err,
		Integral:   c.integral,
		Derivative: derivative,
		Raw:        raw,
		Command:    command,
		Saturated:  command != raw,
	}
	return c.last
}

func (c *Controller) shouldIntegrate(err float64) bool {
	if c.antiWindup != AntiWindupConditional || !c.last.Saturated {
		return true
	}
	if c.last.Command >= c.maxThrust && err > 0 {
		return false
	}
	if c.last.Command <= -c.maxThrust && err < 0 {
		return false
	}
	return true
}

// Reset discards the accumulated history (integral and previous error).
// Gains, setpoint and time step are kept.
func (c *Controller) Reset() {
	c.integral = 0
	c.previousError = 0
	c.last = Result{}
}

// SetSetpoint changes the target without resetting the accumulated history,
// call Reset as well for a clean restart.
func (c *Controller) SetSetpoint(setpoint float64) error {
	if !util.IsFinite(setpoint) {
		return fmt.Errorf("setpoint: %w", ErrNonFinite)
	}
	c.setpoint = setpoint
	return nil
}

func (c *Controller) Setpoint() float64 {
	return c.setpoint
}

func (c *Controller) Gains() Gains {
	return c.gains
}

func (c *Controller) TimeStep() time.Duration {
	return c.timeStep
}

func (c *Controller) MaxThrust() float64 {
	return c.maxThrust
}

func (c *Controller) AntiWindup() AntiWindup {
	return c.antiWindup
}

func (c *Controller) Integral() float64 {
	return c.integral
}

func (c *Controller) PreviousError() float64 {
	return c.previousError
}

// LastResult returns the result of the most recent Step, or the zero value
// if Step has not been called since creation or the last Reset.
func (c *Controller) LastResult() Result {
	return c.last
}
