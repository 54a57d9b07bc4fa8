// Package util provides small generic data structures shared across the
// monitor's packages
package util
