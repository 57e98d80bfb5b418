// Package study contains the core entities of a hyperparameter search:
// studies, trials, optimization direction, and the search-space
// distributions trials are sampled from. It is independent of any
// storage backend or scheduling mechanism.
package study
