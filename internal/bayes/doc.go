// Package bayes fits ODE parameters to observations.
//
// A Model pairs a problem with a dataset, one prior per parameter and a
// prior on the observation noise scale. Its log density re-solves the ODE
// at each candidate point on the dataset's time grid and scores the
// residuals under independent Gaussian noise. Sampling is delegated to a
// Sampler; the default is gonum's Metropolis-Hastings with a proposal
// covariance adapted during warmup.
//
// Run executes several independent chains concurrently and returns a
// Posterior that keeps the chains apart, so convergence can be judged with
// per-chain diagnostics and split R-hat:
//
//	post, err := bayes.Run(ctx, model, bayes.DefaultOptions(), logger)
//	if err != nil {
//	    return err
//	}
//	for _, w := range post.Warnings() {
//	    logger.Warn(w)
//	}
package bayes
