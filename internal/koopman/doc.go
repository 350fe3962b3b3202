// Package koopman computes expectations of trajectory observables under
// parameter uncertainty.
//
// The default method integrates the observable against the joint parameter
// density with a tensor-product Gauss–Legendre rule, raising the order until
// two successive estimates agree. Each quadrature level is one ensemble of
// independent ODE solves handed to a compute.Backend in batches. The joint
// density is the product of the per-parameter marginals; correlations
// between parameters in the posterior are not carried over.
package koopman
