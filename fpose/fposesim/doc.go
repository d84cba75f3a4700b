// Package fposesim generates synthetic position samples for testing
// pipelines without a camera or detector attached.
//
// The model is a discrete-time double integrator driven by Gaussian
// random acceleration: positions wander smoothly, velocities stay
// bounded in distribution, and the whole trajectory is reproducible
// from a seed.
package fposesim
