// Package compose implements the configuration-composition resolver.
//
// A tuning document declares an ordered defaults list of group/variant
// bindings (dataset: cifar10, model: resnet20, ...). The resolver
// locates each variant file under the config directory, merges the
// selected variants in order, positions the document's own body at the
// _self_ marker, applies override directives, and interpolates
// templated expressions such as ${dataset.name} and ${now:%Y-%m-%d}.
package compose
