// Package variant resolves a cart target to one concrete buyable variant before
// any cart mutation is attempted.
//
// Preflight works on cached product detail only and never calls the backend:
// without detail it answers NeedsFetch and the caller fetches first. Two or more
// eligible variants produce a ranked choice list for the user; a variant is
// eligible when it is buyable and has a part number.
package variant
