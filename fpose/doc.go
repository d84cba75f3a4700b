// Package fpose defines the 2D position sample carried by tracking
// pipelines, together with the standard combination functions used
// when several position estimators feed one combiner.
package fpose
