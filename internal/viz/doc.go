// Package viz renders pipeline results for the terminal.
//
//   - [Fit]: truth, predictive band and observations of one state
//   - [DensityPlot]: a marginal density over its support
//   - [Canvas]: Braille scatter plots of joint posterior draws
//   - [SummaryTable], [ExpectationTable], [RunTable]: styled tables
//
// Colors follow the active [Theme]; [SetTheme] switches it.
package viz
