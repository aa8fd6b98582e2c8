// Package compare resolves which products a user wants compared and lays them
// out as a fixed-shape table, with an optional model-written summary on top.
package compare
