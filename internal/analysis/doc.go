// Package analysis provides Markov chain diagnostics.
//
//   - [Autocorrelation]: normalised autocorrelation via FFT
//   - [EffectiveSampleSize]: Geyer initial positive sequence estimate
//   - [SplitRHat]: Gelman-Rubin potential scale reduction on split chains
//   - [AcceptanceRate]: fraction of moves in a Metropolis chain
//   - [Histogram]: fixed-width binning for terminal plots
//
// # Convergence
//
// Chains are usually considered mixed when every parameter has split R-hat
// below 1.01 and an effective sample size of a few hundred:
//
//	rhat, err := analysis.SplitRHat(columns)
//	if rhat > 1.01 {
//	    // run longer or reparameterise
//	}
package analysis
