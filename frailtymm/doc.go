/*
Package frailtymm fits shared frailty proportional hazards models by a
minorize-maximization (MM) algorithm, with optional penalized variable
selection.

The frailty term captures dependence between related survival times:
subjects in the same cluster, multiple event types on one subject, or
recurrent events on one subject share a latent multiplicative hazard
factor.  Gamma, log-normal, inverse Gaussian, and PVF frailty
distributions are supported.  Each MM iteration replaces the marginal
log-likelihood with a separable surrogate that touches it at the current
point, so the observed log-likelihood never decreases.

Variable selection uses LASSO, MCP, or SCAD penalties fit over a
regularization path with warm starts, and a modified BIC selects the
tuning value.
*/
package frailtymm
